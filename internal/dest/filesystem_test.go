package dest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemDestination_Put(t *testing.T) {
	root := t.TempDir()
	d, err := NewFileSystemDestination("local", root)
	if err != nil {
		t.Fatalf("NewFileSystemDestination: %v", err)
	}

	t.Run("stores archive", func(t *testing.T) {
		data := []byte("archive bytes")
		if err := d.Put("report-1.zip", bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("Put: %v", err)
		}

		stored, err := os.ReadFile(filepath.Join(root, "report-1.zip"))
		if err != nil {
			t.Fatalf("reading stored file: %v", err)
		}
		if !bytes.Equal(stored, data) {
			t.Errorf("stored = %q, want %q", stored, data)
		}
	})

	t.Run("size mismatch leaves no file", func(t *testing.T) {
		data := []byte("short")
		err := d.Put("report-2.zip", bytes.NewReader(data), int64(len(data))+10)
		if err == nil {
			t.Fatal("expected size mismatch error")
		}
		if _, err := os.Stat(filepath.Join(root, "report-2.zip")); !os.IsNotExist(err) {
			t.Error("partial file left behind after failed Put")
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".tmp-") {
				t.Errorf("temp file %s not cleaned up", e.Name())
			}
		}
	})

	t.Run("overwrite replaces content", func(t *testing.T) {
		updated := []byte("updated archive bytes")
		if err := d.Put("report-1.zip", bytes.NewReader(updated), int64(len(updated))); err != nil {
			t.Fatalf("Put: %v", err)
		}

		var buf bytes.Buffer
		if err := d.Get("report-1.zip", &buf); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(buf.Bytes(), updated) {
			t.Errorf("Get = %q, want %q", buf.Bytes(), updated)
		}
	})
}

func TestFileSystemDestination_Get(t *testing.T) {
	d, err := NewFileSystemDestination("local", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemDestination: %v", err)
	}

	var buf bytes.Buffer
	if err := d.Get("absent.zip", &buf); err == nil {
		t.Fatal("expected error for missing archive")
	}
}

func TestFileSystemDestination_ValidateSetup(t *testing.T) {
	t.Run("existing directory", func(t *testing.T) {
		d, err := NewFileSystemDestination("local", t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemDestination: %v", err)
		}
		if err := d.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup: %v", err)
		}
	})

	t.Run("removed directory fails", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "exports")
		d, err := NewFileSystemDestination("local", root)
		if err != nil {
			t.Fatalf("NewFileSystemDestination: %v", err)
		}
		if err := os.RemoveAll(root); err != nil {
			t.Fatal(err)
		}
		if err := d.ValidateSetup(); err == nil {
			t.Error("expected error for missing destination root")
		}
	})
}

func TestMemoryDestination(t *testing.T) {
	d := NewMemoryDestination()

	data := []byte("archive bytes")
	if err := d.Put("report-1.zip", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var buf bytes.Buffer
	if err := d.Get("report-1.zip", &buf); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Errorf("Get = %q, want %q", buf.Bytes(), data)
	}

	if names := d.Names(); len(names) != 1 || names[0] != "report-1.zip" {
		t.Errorf("Names = %v", names)
	}

	if err := d.Get("absent.zip", &buf); err == nil {
		t.Error("expected error for missing archive")
	}
}
