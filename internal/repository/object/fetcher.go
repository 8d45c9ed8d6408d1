package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docextract/internal/domain"
)

// Scheme prefixes an object storage input path.
const Scheme = "s3://"

// Config holds the S3-compatible endpoint credentials.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	MaxBytes        int64 // 0 = unlimited
}

// Fetcher downloads s3://bucket/key inputs to local temp files.
type Fetcher struct {
	client   *minio.Client
	maxBytes int64
	logger   *zap.Logger
}

// NewFetcher creates a fetcher. No request is made until Fetch.
func NewFetcher(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &Fetcher{client: client, maxBytes: cfg.MaxBytes, logger: logger}, nil
}

// IsRemote reports whether p names an object storage input.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, Scheme)
}

// Handles reports whether the fetcher serves p.
func (f *Fetcher) Handles(p string) bool { return IsRemote(p) }

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return "", "", &domain.ValidationError{Path: uri, Msg: "not an s3:// path"}
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", &domain.ValidationError{Path: uri, Msg: "s3 path must look like s3://bucket/key"}
	}
	return bucket, key, nil
}

// Fetch downloads the object to a temp file that keeps the key's extension.
// On success the caller runs cleanup once done with the file.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (string, func(), error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", nil, err
	}

	info, err := f.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return "", nil, f.statError(uri, err)
	}
	if f.maxBytes > 0 && info.Size > f.maxBytes {
		return "", nil, &domain.ValidationError{
			Path: uri,
			Msg:  fmt.Sprintf("object is %d bytes, limit is %d", info.Size, f.maxBytes),
		}
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", nil, &domain.ValidationError{Path: uri, Msg: "object is not readable", Err: err}
	}
	defer obj.Close()

	tmp, err := os.CreateTemp("", "docextract-*"+path.Ext(key))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		if rerr := os.Remove(tmp.Name()); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			f.logger.Warn("Failed to remove downloaded image", zap.String("path", tmp.Name()), zap.Error(rerr))
		}
	}

	n, err := io.Copy(tmp, obj)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", nil, &domain.ValidationError{Path: uri, Msg: "object download failed", Err: err}
	}

	f.logger.Debug("Downloaded object",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("bytes", n),
		zap.String("path", tmp.Name()),
	)
	return tmp.Name(), cleanup, nil
}

func (f *Fetcher) statError(uri string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.Code == "NoSuchKey", resp.Code == "NoSuchBucket":
		return &domain.ValidationError{Path: uri, Msg: "object does not exist", Err: err}
	default:
		return &domain.ValidationError{Path: uri, Msg: "object is not readable", Err: err}
	}
}
