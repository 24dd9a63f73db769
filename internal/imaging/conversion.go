// Package imaging decodes product photos from the formats phones produce (JPEG, PNG, GIF,
// HEIC/HEIF and PDF scans) and re-encodes them as PNG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// MIME types handled explicitly.
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeGIF  = "image/gif"
	MimeHEIC = "image/heic"
	MimeHEIF = "image/heif"
	MimePDF  = "application/pdf"
)

// ErrUnsupportedFormat is returned for data none of the decoders understand
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ContentTypeFromName guesses a MIME type from a file extension
func ContentTypeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return MimeJPEG
	case ".png":
		return MimePNG
	case ".gif":
		return MimeGIF
	case ".pdf":
		return MimePDF
	case ".heic":
		return MimeHEIC
	case ".heif":
		return MimeHEIF
	default:
		return "application/octet-stream"
	}
}

// NormalizeContentType lowercases and trims a MIME type, defaulting to JPEG
func NormalizeContentType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		return MimeJPEG
	}
	return mimeType
}

// Decode turns photo bytes into an image. PDFs yield their first page.
func Decode(data []byte, contentType string) (image.Image, error) {
	mimeType := NormalizeContentType(contentType)

	switch {
	case mimeType == MimePDF:
		return decodePDF(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %v", ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// ToPNG converts a photo to PNG. PNG input is returned unchanged along with false.
func ToPNG(data []byte, contentType string) ([]byte, bool, error) {
	mimeType := NormalizeContentType(contentType)
	if mimeType == MimePNG && !isHEICFormat(data) {
		return data, false, nil
	}

	img, err := Decode(data, mimeType)
	if err != nil {
		return nil, false, fmt.Errorf("converting %s to PNG: %w", mimeType, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), true, nil
}

// decodePDF renders the first page of a scanned label
func decodePDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for an ftyp box with a HEIC brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
