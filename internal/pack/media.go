package pack

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"obs-go/internal/model"
	"obs-go/internal/obs"
)

// mimeByExtension is the allow-list of embeddable media. MIME detection
// goes by file extension; anything else fails the build.
var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
}

// AllowedMIME reports whether a MIME type is on the embed allow-list.
func AllowedMIME(mime string) bool {
	for _, m := range mimeByExtension {
		if m == mime {
			return true
		}
	}
	return false
}

// LoadMedia reads a media file and produces an EventMedia record with a
// faithful base64 encoding: Size is the original byte count, and name
// plus last-modified instant are preserved from the file. Any failure
// yields MediaProcessingError so the caller's build aborts whole.
func LoadMedia(path string) (*model.EventMedia, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := mimeByExtension[ext]
	if !ok {
		return nil, &obs.MediaProcessingError{Path: path, Err: fmt.Errorf("unsupported media extension %q", ext)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &obs.MediaProcessingError{Path: path, Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &obs.MediaProcessingError{Path: path, Err: err}
	}

	return &model.EventMedia{
		Type:         mime,
		Data:         base64.StdEncoding.EncodeToString(data),
		Name:         filepath.Base(path),
		Size:         int64(len(data)),
		LastModified: info.ModTime().UTC(),
	}, nil
}
