package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aldoetobex/clearinsure-backend/pkg/config"
)

/*
Supabase wraps the handful of Supabase Storage REST calls the portal uses.

Both `apikey` and `Authorization: Bearer <key>` are sent; a service_role JWT
needs both, a secret API key ignores the second.
*/
type Supabase struct {
	baseURL string // e.g. https://<project>.supabase.co
	apiKey  string
	bucket  string
	client  *http.Client
}

func NewSupabase(cfg config.StorageConfig) *Supabase {
	return &Supabase{
		baseURL: strings.TrimRight(cfg.SupabaseURL, "/"),
		apiKey:  cfg.SupabaseKey,
		bucket:  cfg.SupabaseBucket,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Supabase) newRequest(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	return req, nil
}

func (s *Supabase) do(req *http.Request, op string) (*http.Response, error) {
	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase %s: %w", op, err)
	}
	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil, ErrNotFound
	}
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return nil, fmt.Errorf("supabase %s error: %s | %s", op, res.Status, string(b))
	}
	return res, nil
}

// Put uploads an object: POST /storage/v1/object/{bucket}/{key}
func (s *Supabase) Put(ctx context.Context, key string, r io.Reader, contentType string, size int64) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
	req, err := s.newRequest(ctx, http.MethodPost, url, r, contentType)
	if err != nil {
		return err
	}
	req.ContentLength = size

	res, err := s.do(req, "upload")
	if err != nil {
		return err
	}
	return res.Body.Close()
}

// Move renames an object inside the bucket: POST /storage/v1/object/move
func (s *Supabase) Move(ctx context.Context, src, dst string) error {
	url := fmt.Sprintf("%s/storage/v1/object/move", s.baseURL)
	body, _ := json.Marshal(map[string]string{
		"bucketId":       s.bucket,
		"sourceKey":      src,
		"destinationKey": dst,
	})
	req, err := s.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	res, err := s.do(req, "move")
	if err != nil {
		return err
	}
	return res.Body.Close()
}

// Delete removes an object: DELETE /storage/v1/object/{bucket}/{key}.
// A missing object counts as deleted.
func (s *Supabase) Delete(ctx context.Context, key string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)
	req, err := s.newRequest(ctx, http.MethodDelete, url, nil, "")
	if err != nil {
		return err
	}
	res, err := s.do(req, "delete")
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return res.Body.Close()
}

// SignedURL creates a short-lived download link:
// POST /storage/v1/object/sign/{bucket}/{key}  body: {"expiresIn": <seconds>}
func (s *Supabase) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, s.bucket, key)
	body, _ := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})
	req, err := s.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}
	res, err := s.do(req, "sign")
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signedURL in response")
	}
	// API returns a path relative to /storage/v1.
	return s.baseURL + "/storage/v1" + out.SignedURL, nil
}
