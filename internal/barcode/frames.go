package barcode

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zombor/expiryguard/internal/imaging"
)

// FrameSource supplies camera frames in capture order. Next returns io.EOF when
// the stream has no more frames.
type FrameSource interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// DirFrames replays the photos in a directory as camera frames, in file name order
type DirFrames struct {
	mu    sync.Mutex
	paths []string
	pos   int
}

// OpenDirFrames lists the image files in dir
func OpenDirFrames(dir string) (*DirFrames, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imaging.ContentTypeFromName(entry.Name()) == "application/octet-stream" {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image frames in %s", dir)
	}
	sort.Strings(paths)

	return &DirFrames{paths: paths}, nil
}

// Next decodes the next photo
func (f *DirFrames) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.pos >= len(f.paths) {
		f.mu.Unlock()
		return nil, io.EOF
	}
	path := f.paths[f.pos]
	f.pos++
	f.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	img, err := imaging.Decode(data, imaging.ContentTypeFromName(path))
	if err != nil {
		return nil, fmt.Errorf("decoding frame %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Close releases the listing
func (f *DirFrames) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = len(f.paths)
	return nil
}

// StaticFrames serves images held in memory
type StaticFrames struct {
	mu     sync.Mutex
	frames []image.Image
	closed bool
}

// NewStaticFrames creates a source over frames
func NewStaticFrames(frames ...image.Image) *StaticFrames {
	return &StaticFrames{frames: frames}
}

// Next returns the next frame
func (f *StaticFrames) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.frames) == 0 {
		return nil, io.EOF
	}
	img := f.frames[0]
	f.frames = f.frames[1:]
	return img, nil
}

// Close stops the source
func (f *StaticFrames) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close has been called
func (f *StaticFrames) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
