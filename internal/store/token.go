package store

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"memobot/internal/domain"
)

const (
	googleTokenURL = "https://oauth2.googleapis.com/token"
	driveFileScope = "https://www.googleapis.com/auth/drive.file"

	jwtGrantType  = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	tokenLifetime = time.Hour
)

// serviceAccountKey is the subset of the Google service account JSON key
// the token source needs.
type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// tokenSource mints and caches Drive access tokens from a service account
// key using the JWT bearer grant.
type tokenSource struct {
	email    string
	key      *rsa.PrivateKey
	tokenURI string
	client   *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(keyFile string, client *http.Client) (*tokenSource, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}

	var sa serviceAccountKey
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account key missing client_email or private_key")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = googleTokenURL
	}

	rsaKey, err := parsePrivateKey(sa.PrivateKey)
	if err != nil {
		return nil, err
	}

	return &tokenSource{
		email:    sa.ClientEmail,
		key:      rsaKey,
		tokenURI: sa.TokenURI,
		client:   client,
	}, nil
}

func parsePrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("service account private_key is not PEM")
	}
	// Google issues PKCS#8 keys; accept PKCS#1 as well.
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("service account key is not RSA")
		}
		return rsaKey, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Token returns a cached access token, minting a fresh one when the cached
// token is within a minute of expiry.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && time.Now().Before(ts.expires.Add(-time.Minute)) {
		return ts.token, nil
	}

	assertion, err := ts.signedJWT(time.Now())
	if err != nil {
		return "", &domain.StorageError{Op: "token", Err: err}
	}

	form := url.Values{
		"grant_type": {jwtGrantType},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, "POST", ts.tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &domain.StorageError{Op: "token", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", &domain.StorageError{Op: "token", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.StorageError{Op: "token", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &domain.StorageError{Op: "token", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", string(body))}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &domain.StorageError{Op: "token", Err: fmt.Errorf("parse token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", &domain.StorageError{Op: "token", Err: fmt.Errorf("empty access token")}
	}

	ts.token = tok.AccessToken
	ts.expires = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return ts.token, nil
}

// signedJWT builds the RS256-signed bearer assertion for the drive.file scope.
func (ts *tokenSource) signedJWT(now time.Time) (string, error) {
	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	claims := map[string]any{
		"iss":   ts.email,
		"scope": driveFileScope,
		"aud":   ts.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(tokenLifetime).Unix(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, ts.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	return signingInput + "." + enc.EncodeToString(sig), nil
}
