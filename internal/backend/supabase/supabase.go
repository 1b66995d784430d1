package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/glr76/PlannyWeb/internal/store"
)

const listLimit = 1000

type Options struct {
	URL        string
	Bucket     string
	Key        string
	HTTPClient *http.Client
}

// Backend uses the Supabase Storage REST API. Storage exposes no revision
// on download, so the revision is the sha256 of the content and writes
// compare it under a process-local lock before upserting.
type Backend struct {
	mu      sync.Mutex
	baseURL string
	bucket  string
	key     string
	client  *http.Client
}

type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supabase %s %d: %s", e.Op, e.Status, e.Body)
}

type listRequest struct {
	Prefix string            `json:"prefix"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	SortBy map[string]string `json:"sortBy"`
}

type listItem struct {
	Name     string  `json:"name"`
	ID       *string `json:"id"`
	Metadata struct {
		ETag string `json:"eTag"`
		Size int64  `json:"size"`
	} `json:"metadata"`
}

func New(opts Options) (*Backend, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		return nil, errors.New("supabase url is required")
	}
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("supabase bucket is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Backend{
		baseURL: base,
		bucket:  strings.TrimSpace(opts.Bucket),
		key:     strings.TrimSpace(opts.Key),
		client:  client,
	}, nil
}

func (b *Backend) Name() string {
	return "supabase"
}

func (b *Backend) Fetch(ctx context.Context, p string) (store.Object, bool, error) {
	req, err := b.newRequest(ctx, http.MethodGet, b.objectURL(p), nil)
	if err != nil {
		return store.Object{}, false, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return store.Object{}, false, err
	}
	defer resp.Body.Close()

	if notFound(resp) {
		return store.Object{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return store.Object{}, false, statusError("GET", resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return store.Object{}, false, err
	}
	return store.Object{Content: data, Revision: store.SHA256Hex(data)}, true, nil
}

func (b *Backend) PutConditional(ctx context.Context, p string, content []byte, expectedRevision string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, exists, err := b.Fetch(ctx, p)
	if err != nil {
		return "", err
	}
	if exists != (expectedRevision != "") || (exists && current.Revision != expectedRevision) {
		return "", &store.ConflictError{Path: p, Expected: expectedRevision}
	}

	req, err := b.newRequest(ctx, http.MethodPost, b.objectURL(p), bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("x-upsert", "true")
	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError("UPLOAD", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return store.SHA256Hex(content), nil
}

func (b *Backend) ListFirstLevel(ctx context.Context, prefix string) ([]store.FileMeta, error) {
	dir := strings.Trim(prefix, "/")
	payload, err := json.Marshal(listRequest{
		Prefix: dir,
		Limit:  listLimit,
		SortBy: map[string]string{"column": "name", "order": "asc"},
	})
	if err != nil {
		return nil, err
	}
	req, err := b.newRequest(ctx, http.MethodPost, b.baseURL+"/storage/v1/object/list/"+url.PathEscape(b.bucket), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if notFound(resp) {
		return []store.FileMeta{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("LIST", resp)
	}
	var items []listItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("supabase LIST decode: %w", err)
	}

	files := make([]store.FileMeta, 0, len(items))
	for _, item := range items {
		// folders come back without an id
		if item.ID == nil || item.Name == "" || item.Name == ".emptyFolderPlaceholder" {
			continue
		}
		full := item.Name
		if dir != "" {
			full = dir + "/" + item.Name
		}
		files = append(files, store.FileMeta{Name: item.Name, Path: full, Revision: strings.Trim(item.Metadata.ETag, `"`)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (b *Backend) objectURL(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return b.baseURL + "/storage/v1/object/" + url.PathEscape(b.bucket) + "/" + strings.Join(segments, "/")
}

func (b *Backend) newRequest(ctx context.Context, method string, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if b.key != "" {
		req.Header.Set("Authorization", "Bearer "+b.key)
		req.Header.Set("apikey", b.key)
	}
	return req, nil
}

// Storage answers a missing object with 400 and a JSON body naming the
// error, not only with 404.
func notFound(resp *http.Response) bool {
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	if resp.StatusCode != http.StatusBadRequest {
		return false
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body = io.NopCloser(bytes.NewReader(data))
	lower := strings.ToLower(string(data))
	return strings.Contains(lower, "not_found") || strings.Contains(lower, "not found")
}

func statusError(op string, resp *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
