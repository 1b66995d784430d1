package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/glr76/PlannyWeb/internal/store"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultBranch  = "main"
	apiVersion     = "2022-11-28"
	userAgent      = "planny-server/1.0"
	maxErrorBody   = 300
)

type Options struct {
	BaseURL    string
	Repo       string
	Branch     string
	Token      string
	HTTPClient *http.Client
}

// Backend talks to the GitHub Contents API. The revision is the blob sha
// GitHub returns for the file; a PUT carrying a stale sha is rejected by
// GitHub and surfaces as a conflict.
type Backend struct {
	baseURL string
	repo    string
	branch  string
	token   string
	client  *http.Client
}

type contentResponse struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Size        int64  `json:"size"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github %s %d: %s", e.Op, e.Status, e.Body)
}

func New(opts Options) (*Backend, error) {
	repo := strings.Trim(strings.TrimSpace(opts.Repo), "/")
	if repo == "" || !strings.Contains(repo, "/") {
		return nil, errors.New("github repo must be owner/name")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	branch := strings.TrimSpace(opts.Branch)
	if branch == "" {
		branch = DefaultBranch
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Backend{
		baseURL: baseURL,
		repo:    repo,
		branch:  branch,
		token:   strings.TrimSpace(opts.Token),
		client:  client,
	}, nil
}

func (b *Backend) Name() string {
	return "github"
}

func (b *Backend) Branch() string {
	return b.branch
}

func (b *Backend) Fetch(ctx context.Context, p string) (store.Object, bool, error) {
	resp, err := b.do(ctx, http.MethodGet, b.contentsURL(p, true), nil)
	if err != nil {
		return store.Object{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return store.Object{}, false, nil
	default:
		return store.Object{}, false, statusError("GET", resp)
	}

	var body contentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return store.Object{}, false, fmt.Errorf("github GET decode: %w", err)
	}
	if body.Type != "" && body.Type != "file" {
		return store.Object{}, false, nil
	}

	var content []byte
	switch {
	case body.Encoding == "base64" || (body.Encoding == "" && body.Content != ""):
		content, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
		if err != nil {
			return store.Object{}, false, fmt.Errorf("github GET content: %w", err)
		}
	case body.Size > 0 && body.DownloadURL != "":
		// files above 1MB come back without inline content
		content, err = b.download(ctx, body.DownloadURL)
		if err != nil {
			return store.Object{}, false, err
		}
	default:
		content = []byte{}
	}
	return store.Object{Content: content, Revision: body.SHA}, true, nil
}

func (b *Backend) PutConditional(ctx context.Context, p string, content []byte, expectedRevision string) (string, error) {
	payload, err := json.Marshal(putRequest{
		Message: fmt.Sprintf("update %s via API", p),
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  b.branch,
		SHA:     expectedRevision,
	})
	if err != nil {
		return "", err
	}
	resp, err := b.do(ctx, http.MethodPut, b.contentsURL(p, false), payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return "", &store.ConflictError{Path: p, Expected: expectedRevision, Err: statusError("PUT", resp)}
	case http.StatusUnprocessableEntity:
		statusErr := statusError("PUT", resp)
		if strings.Contains(strings.ToLower(statusErr.Body), "sha") {
			return "", &store.ConflictError{Path: p, Expected: expectedRevision, Err: statusErr}
		}
		return "", statusErr
	default:
		return "", statusError("PUT", resp)
	}

	var body putResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("github PUT decode: %w", err)
	}
	return body.Content.SHA, nil
}

func (b *Backend) ListFirstLevel(ctx context.Context, prefix string) ([]store.FileMeta, error) {
	resp, err := b.do(ctx, http.MethodGet, b.contentsURL(prefix, true), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return []store.FileMeta{}, nil
	default:
		return nil, statusError("LIST", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var items []contentResponse
	if err := json.Unmarshal(data, &items); err != nil {
		// a file path answers with a single object, not a listing
		return []store.FileMeta{}, nil
	}
	files := make([]store.FileMeta, 0, len(items))
	for _, item := range items {
		if item.Type != "file" {
			continue
		}
		files = append(files, store.FileMeta{Name: item.Name, Path: item.Path, Revision: item.SHA})
	}
	return files, nil
}

func (b *Backend) contentsURL(p string, withRef bool) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	u := b.baseURL + "/repos/" + b.repo + "/contents/" + strings.Join(segments, "/")
	if withRef {
		query := url.Values{}
		query.Set("ref", b.branch)
		query.Set("_t", fmt.Sprintf("%d", time.Now().UnixNano()))
		u += "?" + query.Encode()
	}
	return u
}

func (b *Backend) do(ctx context.Context, method string, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.client.Do(req)
}

func (b *Backend) download(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("RAW", resp)
	}
	return io.ReadAll(resp.Body)
}

func statusError(op string, resp *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
