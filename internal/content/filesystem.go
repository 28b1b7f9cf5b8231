package content

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"custody-go/internal/custody"
	"custody-go/internal/model"
)

// FileSystemStore keeps content as files named by their reference:
//
//	<root>/
//	  <first two hex chars>/
//	    <ref hex>
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a content store rooted at root, creating it if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) path(ref model.ContentRef) string {
	name := ref.String()
	return filepath.Join(s.root, name[:2], name)
}

// PutContent stores content identified by ref.
// The operation is idempotent: storing the same ref multiple times is safe.
func (s *FileSystemStore) PutContent(ctx context.Context, ref model.ContentRef, r io.Reader, size int64) error {
	destPath := s.path(ref)

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create content directory: %w", err)
	}
	return writeFile(destPath, ref, r, size)
}

// GetContent retrieves content by ref and writes it to w.
func (s *FileSystemStore) GetContent(ctx context.Context, ref model.ContentRef, w io.Writer) error {
	f, err := os.Open(s.path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return custody.Errorf(custody.KindNotFound, "content %s", ref)
		}
		return fmt.Errorf("failed to open content: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the root is an accessible directory.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("content root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("content root is not a directory: %s", s.root)
	}
	return nil
}

// writeFile writes r to destPath via a temp file and rename, after checking
// that the bytes hash to ref.
func writeFile(destPath string, ref model.ContentRef, r io.Reader, size int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	hr := newHashingReader(r)
	if _, err := io.Copy(tmpFile, hr); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := hr.verify(ref, size); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

var _ custody.ContentStore = (*FileSystemStore)(nil)
