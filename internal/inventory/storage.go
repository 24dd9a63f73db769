package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// PhotoStore keeps label photos that were read by a reader with no server side storage
type PhotoStore interface {
	// Save saves a photo and returns its path
	Save(filename string, data []byte) (string, error)

	// Delete removes a photo
	Delete(path string) error
}

// LocalPhotos implements the PhotoStore interface using the local filesystem
type LocalPhotos struct {
	basePath string
}

// NewLocalPhotos creates a new LocalPhotos instance
func NewLocalPhotos(basePath string) (*LocalPhotos, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating photo directory: %w", err)
	}

	return &LocalPhotos{
		basePath: basePath,
	}, nil
}

// Save writes a photo under the base directory and returns its full path
func (l *LocalPhotos) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing photo: %w", err)
	}
	return path, nil
}

// Delete removes a photo saved by Save
func (l *LocalPhotos) Delete(path string) error {
	if filepath.Dir(path) != filepath.Clean(l.basePath) {
		return fmt.Errorf("deleting photo: %s is outside %s", path, l.basePath)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting photo: %w", err)
	}
	return nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up phone generated file names: special characters are removed,
// spaces collapsed and the base truncated
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = filenameSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	const maxLen = 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "label"
	}
	return base + ext
}
