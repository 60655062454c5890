// Package upload accepts candidate image files, keeps only the formats the
// analysis backend understands, and reads them into memory for staging.
package upload

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Image is a staged image: payload plus filename.
type Image struct {
	Name     string
	MIMEType string
	Data     []byte
}

// accepted lists the MIME types the backend analyses.
var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/jpg":  true,
}

// Accepted reports whether a MIME type (parameters ignored) is stageable.
func Accepted(mimeType string) bool {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = mimeType
	}
	return accepted[strings.ToLower(mt)]
}

// Filter returns the images whose MIME type is accepted, in input order.
// Rejected files are dropped silently.
func Filter(files []Image) []Image {
	out := make([]Image, 0, len(files))
	for _, f := range files {
		if Accepted(f.MIMEType) {
			out = append(out, f)
		}
	}
	return out
}

// Load reads files from disk and detects their MIME type from content,
// falling back to the file extension. It does not filter.
func Load(paths ...string) ([]Image, error) {
	images := make([]Image, 0, len(paths))
	for _, p := range paths {
		img, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// LoadFile reads a single file.
func LoadFile(path string) (Image, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Image{}, fmt.Errorf("upload: read %s: %w", path, err)
	}
	return Image{
		Name:     filepath.Base(path),
		MIMEType: DetectType(path, data),
		Data:     data,
	}, nil
}

// DetectType sniffs the content type, using the extension when sniffing
// yields nothing specific.
func DetectType(path string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if mt, _, err := mime.ParseMediaType(sniffed); err == nil && mt != "application/octet-stream" && mt != "text/plain" {
		return mt
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		if mt, _, err := mime.ParseMediaType(byExt); err == nil {
			return mt
		}
	}
	return "application/octet-stream"
}
