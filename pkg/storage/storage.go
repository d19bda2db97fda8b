// Package storage provides access to the folders report exports land in and
// to the archive destination. Backends: local directory, S3, GCS and memory.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	rferrors "github.com/logflow/reportflow/pkg/errors"
)

// ObjectInfo describes a stored file. ID is the backend key used to open it;
// Name is the final path element, which carries the report metadata.
type ObjectInfo struct {
	ID           string
	Name         string
	Size         int64
	LastModified time.Time
}

// Filter narrows a listing.
type Filter struct {
	// Suffix keeps only names ending in Suffix (e.g. ".csv").
	Suffix string
	// ModifiedAfter keeps only objects modified strictly after it.
	ModifiedAfter time.Time
}

// Match reports whether info passes the filter.
func (f Filter) Match(info ObjectInfo) bool {
	if f.Suffix != "" && !strings.HasSuffix(info.Name, f.Suffix) {
		return false
	}
	if !f.ModifiedAfter.IsZero() && !info.LastModified.After(f.ModifiedAfter) {
		return false
	}
	return true
}

// Source lists and downloads report files.
type Source interface {
	List(ctx context.Context, folder string, filter Filter) ([]ObjectInfo, error)
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// Sink receives archived objects.
type Sink interface {
	Put(ctx context.Context, key string, data io.Reader) error
}

// Store is a backend that is both a Source and a Sink.
type Store interface {
	Source
	Sink
	// Scheme returns the storage scheme (file, s3, gs, memory).
	Scheme() string
	Close() error
}

// Kinds of store.
const (
	KindLocal  = "local"
	KindS3     = "s3"
	KindGCS    = "gcs"
	KindMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Kind            string
	Root            string
	Bucket          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	DownloadTimeout time.Duration
}

// Open returns the backend described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Kind {
	case KindLocal, "":
		return NewLocal(cfg.Root)
	case KindS3:
		s3cfg := DefaultS3Config(cfg.Bucket, cfg.Region)
		s3cfg.Endpoint = cfg.Endpoint
		s3cfg.UsePathStyle = cfg.UsePathStyle
		if cfg.DownloadTimeout > 0 {
			s3cfg.DownloadTimeout = cfg.DownloadTimeout
		}
		return NewS3(ctx, s3cfg)
	case KindGCS:
		return NewGCS(ctx, GCSConfig{Bucket: cfg.Bucket, Endpoint: cfg.Endpoint, DownloadTimeout: cfg.DownloadTimeout})
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, rferrors.InvalidConfig("unsupported storage kind: %s", cfg.Kind)
	}
}

// ParseURL splits a folder URL such as s3://bucket/exports into the kind,
// bucket and key prefix. Paths without a scheme are local.
func ParseURL(raw string) (kind, bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return KindLocal, "", raw, nil
	}

	switch u.Scheme {
	case "file":
		return KindLocal, "", u.Path, nil
	case "s3":
		return KindS3, u.Host, strings.TrimPrefix(u.Path, "/"), nil
	case "gs":
		return KindGCS, u.Host, strings.TrimPrefix(u.Path, "/"), nil
	default:
		return "", "", "", fmt.Errorf("unsupported storage scheme: %s", u.Scheme)
	}
}

// baseName returns the last element of an object key.
func baseName(key string) string {
	return path.Base(key)
}

// folderPrefix turns a folder into a key prefix ending in "/".
func folderPrefix(folder string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" || folder == "." {
		return ""
	}
	return folder + "/"
}

func listFailed(err error, folder string) error {
	return rferrors.Wrap(err, rferrors.CodeListFailed, "failed to list folder").WithContext("folder", folder)
}

func downloadFailed(err error, id string) error {
	return rferrors.Wrap(err, rferrors.CodeDownloadFailed, "failed to open object").WithContext("id", id)
}

func uploadFailed(err error, key string) error {
	return rferrors.Wrap(err, rferrors.CodeUploadFailed, "failed to write object").WithContext("key", key)
}
