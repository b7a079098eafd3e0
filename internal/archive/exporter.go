// Package archive serializes event packages into portable zip
// containers. Entry names are a de facto contract for downstream
// consumers: annotations.json, metadata.json, media.<ext>, and
// media_metadata.json.
package archive

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"obs-go/internal/model"
	"obs-go/internal/obs"
)

// compressionLevel trades CPU for size at a moderate, fixed point.
// Deliberately not flate.BestCompression.
const compressionLevel = 6

// Exporter implements obs.Archiver.
type Exporter struct{}

var _ obs.Archiver = (*Exporter)(nil)

// NewExporter creates an Exporter.
func NewExporter() *Exporter { return &Exporter{} }

// archiveMetadata is the metadata.json payload summarizing package
// identity and provenance.
type archiveMetadata struct {
	ID              string    `json:"id"`
	Version         string    `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	CreatedBy       string    `json:"createdBy,omitempty"`
	Source          string    `json:"source"`
	AnnotationCount int       `json:"annotationCount"`
	HasMedia        bool      `json:"hasMedia"`
}

// mediaMetadata is the media_metadata.json payload recording the
// original file attributes of the embedded media.
type mediaMetadata struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// ToArchive serializes pkg into a zip container. Two exports of the
// same package with the same options produce the same entries with the
// same content; entry timestamps are pinned to the package's CreatedAt
// so the output is stable across runs. Any entry-write failure aborts
// the whole export.
func (e *Exporter) ToArchive(pkg *model.EventPackage, opts obs.ArchiveOptions) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, compressionLevel)
	})

	annotations, err := json.Marshal(pkg.Annotations)
	if err != nil {
		return nil, &obs.ArchiveError{Entry: "annotations.json", Err: err}
	}
	if err := writeEntry(zw, "annotations.json", annotations, pkg.Metadata.CreatedAt); err != nil {
		return nil, err
	}

	if opts.IncludeMetadata {
		meta, err := json.Marshal(archiveMetadata{
			ID:              pkg.ID,
			Version:         pkg.Version,
			CreatedAt:       pkg.Metadata.CreatedAt,
			CreatedBy:       pkg.Metadata.CreatedBy,
			Source:          pkg.Metadata.Source,
			AnnotationCount: len(pkg.Annotations),
			HasMedia:        pkg.Media != nil,
		})
		if err != nil {
			return nil, &obs.ArchiveError{Entry: "metadata.json", Err: err}
		}
		if err := writeEntry(zw, "metadata.json", meta, pkg.Metadata.CreatedAt); err != nil {
			return nil, err
		}
	}

	if pkg.Media != nil && opts.IncludeMedia {
		raw, err := base64.StdEncoding.DecodeString(pkg.Media.Data)
		if err != nil {
			return nil, &obs.ArchiveError{Entry: "media", Err: fmt.Errorf("decoding media payload: %w", err)}
		}

		mediaName := "media." + extForMIME(pkg.Media.Type)
		if err := writeEntry(zw, mediaName, raw, pkg.Metadata.CreatedAt); err != nil {
			return nil, err
		}

		mm, err := json.Marshal(mediaMetadata{
			Name:         pkg.Media.Name,
			Type:         pkg.Media.Type,
			Size:         pkg.Media.Size,
			LastModified: pkg.Media.LastModified,
		})
		if err != nil {
			return nil, &obs.ArchiveError{Entry: "media_metadata.json", Err: err}
		}
		if err := writeEntry(zw, "media_metadata.json", mm, pkg.Metadata.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, &obs.ArchiveError{Err: err}
	}
	return buf.Bytes(), nil
}

// writeEntry adds one named entry with a pinned modification time.
func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return &obs.ArchiveError{Entry: name, Err: err}
	}
	if _, err := w.Write(data); err != nil {
		return &obs.ArchiveError{Entry: name, Err: err}
	}
	return nil
}

// extForMIME derives the media entry's filename extension from the
// MIME subtype: image/jpeg -> jpeg, video/mp4 -> mp4.
func extForMIME(mime string) string {
	if i := strings.IndexByte(mime, '/'); i >= 0 && i < len(mime)-1 {
		return mime[i+1:]
	}
	return "bin"
}
