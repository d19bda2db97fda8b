package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Local serves a directory tree. Object IDs are slash-separated paths
// relative to the root.
type Local struct {
	root string
}

// NewLocal creates a local store rooted at root, creating it if needed.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	return &Local{root: absRoot}, nil
}

// Scheme returns "file".
func (s *Local) Scheme() string {
	return "file"
}

// Root returns the absolute root directory.
func (s *Local) Root() string {
	return s.root
}

// List returns the files directly inside folder, sorted by name.
func (s *Local) List(ctx context.Context, folder string, filter Filter) ([]ObjectInfo, error) {
	dir, err := s.fullPath(folder)
	if err != nil {
		return nil, listFailed(err, folder)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, listFailed(err, folder)
	}

	prefix := folderPrefix(filepath.ToSlash(folder))
	var results []ObjectInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		obj := ObjectInfo{
			ID:           prefix + entry.Name(),
			Name:         entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		}
		if filter.Match(obj) {
			results = append(results, obj)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})
	return results, nil
}

// Open returns a reader for the file id.
func (s *Local) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	fullPath, err := s.fullPath(id)
	if err != nil {
		return nil, downloadFailed(err, id)
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, downloadFailed(err, id)
	}
	return f, nil
}

// Put writes data to key, creating parent directories.
func (s *Local) Put(ctx context.Context, key string, data io.Reader) error {
	fullPath, err := s.fullPath(key)
	if err != nil {
		return uploadFailed(err, key)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return uploadFailed(err, key)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return uploadFailed(err, key)
	}

	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return uploadFailed(err, key)
	}
	if err := f.Close(); err != nil {
		return uploadFailed(err, key)
	}
	return nil
}

// Close is a no-op.
func (s *Local) Close() error {
	return nil
}

// fullPath resolves key under the root and refuses paths that escape it.
func (s *Local) fullPath(key string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &fs.PathError{Op: "resolve", Path: key, Err: fs.ErrPermission}
	}
	return full, nil
}
