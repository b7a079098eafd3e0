package dest

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"obs-go/internal/obs"
)

// MemoryDestination keeps archives in memory. Use in tests.
type MemoryDestination struct {
	mu    sync.Mutex
	items map[string][]byte
}

var _ obs.Destination = (*MemoryDestination)(nil)

// NewMemoryDestination creates an empty in-memory destination.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{items: make(map[string][]byte)}
}

// Put stores an archive under the given name.
func (d *MemoryDestination) Put(name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading data: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	d.mu.Lock()
	d.items[name] = data
	d.mu.Unlock()
	return nil
}

// Get retrieves a stored archive by name and writes it to w.
func (d *MemoryDestination) Get(name string, w io.Writer) error {
	d.mu.Lock()
	data, ok := d.items[name]
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("archive not found: %s", name)
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

// ValidateSetup always succeeds for the in-memory destination.
func (d *MemoryDestination) ValidateSetup() error { return nil }

// Names returns the stored archive names. Test helper.
func (d *MemoryDestination) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.items))
	for n := range d.items {
		names = append(names, n)
	}
	return names
}
