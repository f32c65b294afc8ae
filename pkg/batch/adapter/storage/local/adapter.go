// Package local implements storage on the local file system. A bucket is a directory under
// base_dir and an object is a slash-separated path inside it.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageAdapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// ProviderType is the storage type handled by this package.
const ProviderType = "local"

// fileStore is a StorageConnection over a directory tree.
type fileStore struct {
	name          string
	root          string // absolute base_dir
	defaultBucket string
}

var _ storageAdapter.StorageConnection = (*fileStore)(nil)

// NewLocalAdapter returns a connection rooted at cfg.BaseDir. A missing base_dir is created.
func NewLocalAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage '%s': base_dir is required", name)
	}
	root, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("local storage '%s': %w", name, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("local storage '%s': cannot use base_dir '%s': %w", name, cfg.BaseDir, err)
	}
	return &fileStore{name: name, root: root, defaultBucket: cfg.BucketName}, nil
}

func (s *fileStore) Close() error { return nil }
func (s *fileStore) Type() string { return ProviderType }
func (s *fileStore) Name() string { return s.name }

// locate maps bucket/object to a file path. Paths leaving the root are refused.
func (s *fileStore) locate(bucket, object string) (string, error) {
	if bucket == "" {
		bucket = s.defaultBucket
	}
	full := filepath.Join(s.root, filepath.FromSlash(path.Join(bucket, object)))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object '%s' resolves outside of base_dir '%s'", path.Join(bucket, object), s.root)
	}
	return full, nil
}

// Upload writes to a temporary file next to the target and renames it into place, so readers
// never see a partial object.
func (s *fileStore) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.locate(bucket, objectName)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("local storage '%s': %w", s.name, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("local storage '%s': %w", s.name, err)
	}
	_, copyErr := io.Copy(tmp, data)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local storage '%s': writing '%s': %w", s.name, objectName, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local storage '%s': %w", s.name, err)
	}
	logger.Debugf("Local storage '%s' stored '%s' (%s).", s.name, target, contentType)
	return nil
}

func (s *fileStore) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source, err := s.locate(bucket, objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("local storage '%s': %w", s.name, err)
	}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("local storage '%s': '%s' is a directory", s.name, source)
	}
	return f, nil
}

// ListObjects walks the bucket directory in lexical order. Temporary upload files are skipped.
func (s *fileStore) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	dir, err := s.locate(bucket, "")
	if err != nil {
		return err
	}
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if name := filepath.ToSlash(rel); strings.HasPrefix(name, prefix) {
			return fn(name)
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		return fmt.Errorf("local storage '%s': listing '%s': %w", s.name, prefix, walkErr)
	}
	return nil
}

func (s *fileStore) DeleteObject(ctx context.Context, bucket, objectName string) error {
	target, err := s.locate(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local storage '%s': %w", s.name, err)
	}
	return nil
}

// LocalProvider opens local connections from the storage section and keeps one per name.
type LocalProvider struct {
	cfg *coreConfig.Config

	mu    sync.Mutex
	conns map[string]storageAdapter.StorageConnection
}

var _ storageAdapter.StorageProvider = (*LocalProvider)(nil)

// NewLocalProvider returns a provider reading its sections from cfg.Storage.
func NewLocalProvider(cfg *coreConfig.Config) *LocalProvider {
	return &LocalProvider{cfg: cfg, conns: map[string]storageAdapter.StorageConnection{}}
}

func (p *LocalProvider) Type() string { return ProviderType }

// GetConnection implements storage.StorageProvider. The base directory is created on first use.
func (p *LocalProvider) GetConnection(name string) (storageAdapter.StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.conns[name]; ok {
		return conn, nil
	}

	cfg, err := storageConfig.Load(p.cfg.Storage, name)
	if err != nil {
		return nil, err
	}
	if cfg.Type != ProviderType {
		return nil, fmt.Errorf("storage '%s' has type '%s', not '%s'", name, cfg.Type, ProviderType)
	}
	conn, err := NewLocalAdapter(cfg, name)
	if err != nil {
		return nil, err
	}
	p.conns[name] = conn
	logger.Debugf("Local storage '%s' rooted at '%s'.", name, cfg.BaseDir)
	return conn, nil
}

// CloseAll implements storage.StorageProvider.
func (p *LocalProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result *multierror.Error
	for name, conn := range p.conns {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage '%s': %w", name, err))
		}
	}
	p.conns = map[string]storageAdapter.StorageConnection{}
	return result.ErrorOrNil()
}
