// Package store implements the cloud file-store capability against the
// Google Drive v3 REST API.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"memobot/internal/domain"
)

const (
	driveAPIBase    = "https://www.googleapis.com/drive/v3"
	driveUploadBase = "https://www.googleapis.com/upload/drive/v3"

	driveTimeout = 60 * time.Second
)

// Drive implements domain.FileStore over the Drive v3 REST API using a
// service-account token source. No Google SDK is involved.
type Drive struct {
	tokens     *tokenSource
	client     *http.Client
	apiBase    string
	uploadBase string
	logger     *slog.Logger
}

type DriveConfig struct {
	ServiceAccountFile string
	Logger             *slog.Logger

	// APIBase and UploadBase override the Google endpoints in tests.
	APIBase    string
	UploadBase string
	TokenURI   string
}

func NewDrive(cfg DriveConfig) (*Drive, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := &http.Client{Timeout: driveTimeout}

	tokens, err := newTokenSource(cfg.ServiceAccountFile, client)
	if err != nil {
		return nil, err
	}
	if cfg.TokenURI != "" {
		tokens.tokenURI = cfg.TokenURI
	}

	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = driveAPIBase
	}
	uploadBase := cfg.UploadBase
	if uploadBase == "" {
		uploadBase = driveUploadBase
	}

	return &Drive{
		tokens:     tokens,
		client:     client,
		apiBase:    apiBase,
		uploadBase: uploadBase,
		logger:     cfg.Logger,
	}, nil
}

type driveFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type driveFileList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

// CreateFile uploads a file into the given parent folder with a multipart
// related request (metadata part + content part).
func (d *Drive) CreateFile(ctx context.Context, req domain.CreateFileRequest) (*domain.StoredFile, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		"name":    req.Name,
		"parents": []string{req.ParentID},
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "text/markdown"
	}
	bodyPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeType},
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}
	if _, err := bodyPart.Write(req.Body); err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}

	endpoint := d.uploadBase + "/files?uploadType=multipart"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, &buf)
	if err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.StorageError{Op: "create", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.StorageError{Op: "create", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", string(respBody))}
	}

	var created driveFile
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, &domain.StorageError{Op: "create", Err: fmt.Errorf("parse response: %w", err)}
	}

	d.logger.Info("file saved to drive", "name", req.Name, "id", created.ID)
	return &domain.StoredFile{ID: created.ID, Name: created.Name}, nil
}

// ListFiles returns one page of file names under a folder. Callers follow
// NextPageToken until it is empty.
func (d *Drive) ListFiles(ctx context.Context, req domain.ListFilesRequest) (*domain.FileList, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("'%s' in parents", req.ParentID)
	if req.NameContains != "" {
		query += fmt.Sprintf(" and name contains '%s'", req.NameContains)
	}

	params := url.Values{}
	params.Set("q", query)
	if req.OrderBy != "" {
		params.Set("orderBy", req.OrderBy)
	}
	if req.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(req.PageSize))
	}
	if req.PageToken != "" {
		params.Set("pageToken", req.PageToken)
	}
	params.Set("fields", "nextPageToken, files(id, name)")

	endpoint := d.apiBase + "/files?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.StorageError{Op: "list", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", string(respBody))}
	}

	var listed driveFileList
	if err := json.Unmarshal(respBody, &listed); err != nil {
		return nil, &domain.StorageError{Op: "list", Err: fmt.Errorf("parse response: %w", err)}
	}

	out := &domain.FileList{NextPageToken: listed.NextPageToken}
	for _, f := range listed.Files {
		out.Files = append(out.Files, domain.StoredFile{ID: f.ID, Name: f.Name})
	}
	return out, nil
}

// Healthy verifies that a token can be minted.
func (d *Drive) Healthy(ctx context.Context) error {
	_, err := d.tokens.Token(ctx)
	return err
}
