package barcode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// OpenFunc acquires a frame source for the given configuration
type OpenFunc func(ctx context.Context, cfg Config) (FrameSource, error)

// ImageDecoder is a Decoder that reads linear barcodes from a FrameSource. Frames are pulled
// at the configured frequency, decoded by a pool of workers and reported in frame order.
type ImageDecoder struct {
	open OpenFunc
	log  zerolog.Logger

	mu      sync.Mutex
	cfg     Config
	source  FrameSource
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewImageDecoder creates a decoder that acquires frames through open
func NewImageDecoder(open OpenFunc, log zerolog.Logger) *ImageDecoder {
	return &ImageDecoder{open: open, log: log}
}

// Init opens the frame source
func (d *ImageDecoder) Init(ctx context.Context, cfg Config) error {
	if len(cfg.Symbologies) == 0 {
		return errors.New("no symbologies configured")
	}
	if _, err := newReaders(cfg.Symbologies); err != nil {
		return err
	}

	source, err := d.open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening camera: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.source = source
	return nil
}

// Start launches the decoding pipeline
func (d *ImageDecoder) Start(ctx context.Context) (<-chan Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.source == nil {
		return nil, errors.New("decoder not initialised")
	}
	if d.cancel != nil {
		return nil, errors.New("decoder already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.stopped = make(chan struct{})

	out := make(chan Detection)
	go d.pipeline(ctx, d.cfg, d.source, out, d.stopped)
	return out, nil
}

// Stop halts decoding and releases the frame source. It is safe to call more than once
// and before Start.
func (d *ImageDecoder) Stop() error {
	d.mu.Lock()
	cancel, stopped, source := d.cancel, d.stopped, d.source
	d.cancel, d.source = nil, nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
	if source != nil {
		if err := source.Close(); err != nil {
			return fmt.Errorf("closing frame source: %w", err)
		}
	}
	return nil
}

// frameJob carries one frame to a worker; the worker answers on result
type frameJob struct {
	seq    int
	img    image.Image
	result chan string
}

func (d *ImageDecoder) pipeline(ctx context.Context, cfg Config, source FrameSource, out chan<- Detection, stopped chan<- struct{}) {
	defer close(stopped)
	defer close(out)

	workers := cfg.Workers
	if workers <= 0 {
		workers = fallbackWorkers
	}
	frequency := cfg.Frequency
	if frequency <= 0 {
		frequency = defaultFrequency
	}

	jobs := make(chan frameJob, workers)
	pending := make(chan chan string, workers)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		defer close(pending)

		ticker := time.NewTicker(time.Second / time.Duration(frequency))
		defer ticker.Stop()

		for seq := 0; ; seq++ {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			img, err := source.Next(ctx)
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				d.log.Warn().Err(err).Int("frame", seq).Msg("skipping unreadable frame")
				continue
			}

			job := frameJob{seq: seq, img: img, result: make(chan string, 1)}
			select {
			case pending <- job.result:
			case <-ctx.Done():
				return nil
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return nil
			}
		}
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			readers, err := newReaders(cfg.Symbologies)
			if err != nil {
				return err
			}
			hints := decodeHints(cfg)
			for job := range jobs {
				job.result <- decodeFrame(job.img, readers, hints)
			}
			return nil
		})
	}

	g.Go(func() error {
		for result := range pending {
			var code string
			select {
			case code = <-result:
			case <-ctx.Done():
				return nil
			}
			if code == "" {
				continue
			}
			select {
			case out <- Detection{Code: code}:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		d.log.Error().Err(err).Msg("decoder pipeline stopped")
	}
}

// newReaders builds one reader per symbology. Readers keep scratch state, so every
// worker needs its own set.
func newReaders(symbologies []Symbology) ([]gozxing.Reader, error) {
	readers := make([]gozxing.Reader, 0, len(symbologies))
	for _, sym := range symbologies {
		switch sym {
		case EAN13:
			readers = append(readers, oned.NewEAN13Reader())
		case EAN8:
			readers = append(readers, oned.NewEAN8Reader())
		case UPCA:
			readers = append(readers, oned.NewUPCAReader())
		case Code128:
			readers = append(readers, oned.NewCode128Reader())
		default:
			return nil, fmt.Errorf("unsupported symbology %q", sym)
		}
	}
	return readers, nil
}

func decodeHints(cfg Config) map[gozxing.DecodeHintType]interface{} {
	hints := make(map[gozxing.DecodeHintType]interface{})
	if cfg.Locate {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return hints
}

// decodeFrame returns the first code any reader finds in img, or ""
func decodeFrame(img image.Image, readers []gozxing.Reader, hints map[gozxing.DecodeHintType]interface{}) string {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return ""
	}
	for _, reader := range readers {
		result, err := reader.Decode(bmp, hints)
		reader.Reset()
		if err == nil && result != nil {
			return result.GetText()
		}
	}
	return ""
}
