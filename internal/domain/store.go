package domain

import "context"

// FileStore is the cloud persistence capability. The pipeline only ever
// creates files and lists names; it never reads content back.
type FileStore interface {
	CreateFile(ctx context.Context, req CreateFileRequest) (*StoredFile, error)
	ListFiles(ctx context.Context, req ListFilesRequest) (*FileList, error)
	Healthy(ctx context.Context) error
}

type CreateFileRequest struct {
	Name     string
	ParentID string
	MIMEType string
	Body     []byte
}

// StoredFile identifies a persisted file.
type StoredFile struct {
	ID   string
	Name string
}

// ListFilesRequest selects files under a folder. PageToken continues a
// previous listing; callers must loop until NextPageToken comes back empty.
type ListFilesRequest struct {
	ParentID     string
	NameContains string
	OrderBy      string
	PageSize     int
	PageToken    string
}

type FileList struct {
	Files         []StoredFile
	NextPageToken string
}
