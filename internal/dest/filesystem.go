package dest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"obs-go/internal/obs"
)

// FileSystemDestination stores exported archives as files under a root
// directory, one file per archive name.
type FileSystemDestination struct {
	name string
	root string
}

var _ obs.Destination = (*FileSystemDestination)(nil)

// NewFileSystemDestination creates a destination rooted at the given path.
func NewFileSystemDestination(name, root string) (*FileSystemDestination, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}
	return &FileSystemDestination{name: name, root: root}, nil
}

// Put stores an archive under the given name using an atomic write
// (temp file + rename) so a failed export never leaves a partial file.
func (d *FileSystemDestination) Put(name string, r io.Reader, size int64) error {
	destPath := filepath.Join(d.root, name)

	tmpFile, err := os.CreateTemp(d.root, ".tmp-*")
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

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Get retrieves a stored archive by name and writes it to w.
func (d *FileSystemDestination) Get(name string, w io.Writer) error {
	f, err := os.Open(filepath.Join(d.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive not found: %s", name)
		}
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the destination directory is accessible.
func (d *FileSystemDestination) ValidateSetup() error {
	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("destination root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination root is not a directory: %s", d.root)
	}
	return nil
}
