package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalContentStore persists scanned paper bytes on disk under a base
// directory. Callers address content by the opaque reference returned from
// Put and never interpret it.
type LocalContentStore struct {
	baseDir string
}

// NewLocalContentStore ensures the base directory exists and returns a handle.
func NewLocalContentStore(baseDir string) (*LocalContentStore, error) {
	if baseDir == "" {
		baseDir = "./scans"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scan directory: %w", err)
	}
	return &LocalContentStore{baseDir: baseDir}, nil
}

// Put stores the bytes and returns an opaque content reference.
func (s *LocalContentStore) Put(_ context.Context, data []byte) (string, error) {
	ref := filepath.ToSlash(filepath.Join(time.Now().UTC().Format("2006/01/02"), uuid.NewString()+".bin"))
	path, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare scan directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write scan file: %w", err)
	}
	return ref, nil
}

// Get loads the bytes behind a content reference.
func (s *LocalContentStore) Get(_ context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scan file: %w", err)
	}
	return data, nil
}

// Delete removes the stored bytes if present and reports whether anything was
// removed. Deletion is best-effort for callers; a false return is not an error.
func (s *LocalContentStore) Delete(_ context.Context, ref string) bool {
	path, err := s.resolve(ref)
	if err != nil {
		return false
	}
	if err := os.Remove(path); err != nil {
		return false
	}
	return true
}

// resolve rejects references that escape the base directory.
func (s *LocalContentStore) resolve(ref string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid content reference %q", ref)
	}
	return filepath.Join(s.baseDir, cleaned), nil
}
