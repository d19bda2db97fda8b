package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig configures a GCS store. Credentials come from the application
// default chain.
type GCSConfig struct {
	Bucket          string
	Endpoint        string
	DownloadTimeout time.Duration
}

// GCS is a store over one Google Cloud Storage bucket.
type GCS struct {
	cfg    GCSConfig
	client *gcstorage.Client
}

// NewGCS creates a GCS store.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 5 * time.Minute
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCS{cfg: cfg, client: client}, nil
}

// Scheme returns "gs".
func (g *GCS) Scheme() string {
	return "gs"
}

// List returns the objects directly under folder.
func (g *GCS) List(ctx context.Context, folder string, filter Filter) ([]ObjectInfo, error) {
	it := g.client.Bucket(g.cfg.Bucket).Objects(ctx, &gcstorage.Query{
		Prefix:    folderPrefix(folder),
		Delimiter: "/",
	})

	var results []ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, listFailed(err, folder)
		}
		// Synthetic directory entries only carry a Prefix.
		if attrs.Name == "" {
			continue
		}
		info := ObjectInfo{
			ID:           attrs.Name,
			Name:         baseName(attrs.Name),
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		}
		if filter.Match(info) {
			results = append(results, info)
		}
	}
	return results, nil
}

// Open returns a reader for the object id.
func (g *GCS) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.DownloadTimeout)

	r, err := g.client.Bucket(g.cfg.Bucket).Object(id).NewReader(ctx)
	if err != nil {
		cancel()
		return nil, downloadFailed(err, id)
	}
	return &cancelOnCloseReader{ReadCloser: r, cancel: cancel}, nil
}

// Put uploads data to key. The object is committed when the writer closes.
func (g *GCS) Put(ctx context.Context, key string, data io.Reader) error {
	w := g.client.Bucket(g.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType(key)

	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return uploadFailed(err, key)
	}
	if err := w.Close(); err != nil {
		return uploadFailed(err, key)
	}
	return nil
}

// Close releases the client.
func (g *GCS) Close() error {
	return g.client.Close()
}
