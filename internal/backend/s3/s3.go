package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/glr76/PlannyWeb/internal/store"
)

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
	Transport http.RoundTripper
}

// Backend stores files as objects in one bucket. The revision is the
// object ETag. S3 offers no compare-and-swap here, so the conditional
// write compares the current ETag under a process-local lock.
type Backend struct {
	mu     sync.Mutex
	cl     *minio.Client
	bucket string
}

func New(cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.Transport != nil {
		opts.Transport = cfg.Transport
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, err
	}
	return &Backend{cl: cl, bucket: cfg.Bucket}, nil
}

func (b *Backend) Name() string {
	return "s3"
}

func (b *Backend) Fetch(ctx context.Context, p string) (store.Object, bool, error) {
	obj, err := b.cl.GetObject(ctx, b.bucket, p, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return store.Object{}, false, nil
		}
		return store.Object{}, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return store.Object{}, false, nil
		}
		return store.Object{}, false, err
	}
	info, err := obj.Stat()
	if err != nil {
		if isNotFound(err) {
			return store.Object{}, false, nil
		}
		return store.Object{}, false, err
	}
	return store.Object{Content: data, Revision: info.ETag}, true, nil
}

func (b *Backend) PutConditional(ctx context.Context, p string, content []byte, expectedRevision string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info, err := b.cl.StatObject(ctx, b.bucket, p, minio.StatObjectOptions{})
	switch {
	case err == nil:
		if info.ETag != expectedRevision {
			return "", &store.ConflictError{Path: p, Expected: expectedRevision}
		}
	case isNotFound(err):
		if expectedRevision != "" {
			return "", &store.ConflictError{Path: p, Expected: expectedRevision}
		}
	default:
		return "", err
	}

	upload, err := b.cl.PutObject(ctx, b.bucket, p, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType:  "text/plain; charset=utf-8",
		CacheControl: "no-cache",
	})
	if err != nil {
		return "", err
	}
	return upload.ETag, nil
}

func (b *Backend) ListFirstLevel(ctx context.Context, prefix string) ([]store.FileMeta, error) {
	listPrefix := strings.Trim(prefix, "/")
	if listPrefix != "" {
		listPrefix += "/"
	}
	files := []store.FileMeta{}
	for info := range b.cl.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: listPrefix, Recursive: false}) {
		if info.Err != nil {
			if isNotFound(info.Err) {
				return []store.FileMeta{}, nil
			}
			return nil, info.Err
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		files = append(files, store.FileMeta{Name: path.Base(info.Key), Path: info.Key, Revision: info.ETag})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound {
		return true
	}
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
