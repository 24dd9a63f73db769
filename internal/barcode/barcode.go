// Package barcode runs live barcode scanning sessions: it drives a camera decoder, confirms codes
// that are read on consecutive frames and offers manual entry as the fallback.
package barcode

import (
	"context"
	"runtime"
)

// Detection is a code read from a single camera frame
type Detection struct {
	Code string
}

// Symbology is a linear barcode format the decoder looks for
type Symbology string

// Supported symbologies.
const (
	EAN13   Symbology = "ean_13"
	EAN8    Symbology = "ean_8"
	UPCA    Symbology = "upc_a"
	Code128 Symbology = "code_128"
)

// FacingEnvironment selects the back camera
const FacingEnvironment = "environment"

const (
	defaultWidth     = 400
	defaultHeight    = 300
	defaultFrequency = 10
	fallbackWorkers  = 4
)

// hardwareConcurrency reports the host's logical CPUs, or 0 when unknown
var hardwareConcurrency = runtime.NumCPU

// Config is handed to the decoder when a session acquires the camera
type Config struct {
	FacingMode  string
	Width       int
	Height      int
	Symbologies []Symbology
	// Locate enables barcode localisation within the frame
	Locate bool
	// Workers is the number of parallel frame decoders
	Workers int
	// Frequency is the number of frames decoded per second
	Frequency int
	// Multiple allows several codes per frame; sessions always run single-result
	Multiple bool
}

// DefaultConfig returns the scanning configuration: back camera, 400x300, retail symbologies,
// localisation on, one worker per CPU and 10 frames per second
func DefaultConfig() Config {
	workers := hardwareConcurrency()
	if workers <= 0 {
		workers = fallbackWorkers
	}
	return Config{
		FacingMode:  FacingEnvironment,
		Width:       defaultWidth,
		Height:      defaultHeight,
		Symbologies: []Symbology{EAN13, EAN8, UPCA, Code128},
		Locate:      true,
		Workers:     workers,
		Frequency:   defaultFrequency,
		Multiple:    false,
	}
}

// Decoder is the camera and decoding resource. A session calls Init once, then Start,
// and always Stop, whatever way it ends.
type Decoder interface {
	// Init acquires the camera with cfg. It fails when the camera is denied or unavailable.
	Init(ctx context.Context, cfg Config) error

	// Start begins decoding and returns the stream of detections in frame order
	Start(ctx context.Context) (<-chan Detection, error)

	// Stop releases the camera
	Stop() error
}
