package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/zombor/expiryguard/internal/api"
	"github.com/zombor/expiryguard/internal/imaging"
)

// Uploader sends a photo to the API's OCR endpoint
type Uploader interface {
	UploadImage(ctx context.Context, filename string, data []byte) (*api.UploadResult, error)
}

// Remote implements the LabelReader interface with the API's OCR endpoint. The server
// stores the photo, so the result carries its URL.
type Remote struct {
	uploader Uploader
}

// NewRemote creates a reader that uploads photos through uploader
func NewRemote(uploader Uploader) *Remote {
	return &Remote{uploader: uploader}
}

// ReadLabel uploads the photo and returns what the server read from it
func (r *Remote) ReadLabel(ctx context.Context, data []byte, contentType string) (*LabelData, error) {
	res, err := r.uploader.UploadImage(ctx, uploadName(contentType), data)
	if err != nil {
		return nil, err
	}

	label := &LabelData{
		ProductName:      strings.TrimSpace(res.ProductName),
		ExpiryDate:       normalizeDate(res.ExpiryDate),
		BestBeforeMonths: res.BestBeforeMonths,
		Text:             res.ExtractedText,
		ImageURL:         res.ImageURL,
	}
	fillFromText(label)
	return label, nil
}

// Close is a no-op; the API client is owned by the caller
func (r *Remote) Close() error {
	return nil
}

func uploadName(contentType string) string {
	ext := "jpg"
	switch imaging.NormalizeContentType(contentType) {
	case imaging.MimePNG:
		ext = "png"
	case imaging.MimeGIF:
		ext = "gif"
	case imaging.MimeHEIC:
		ext = "heic"
	case imaging.MimeHEIF:
		ext = "heif"
	case imaging.MimePDF:
		ext = "pdf"
	}
	return fmt.Sprintf("label.%s", ext)
}
