package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/rs/zerolog"

	"github.com/zombor/expiryguard/internal/api"
	"github.com/zombor/expiryguard/internal/barcode"
	"github.com/zombor/expiryguard/internal/inventory"
	"github.com/zombor/expiryguard/internal/scanning"
)

// app holds the global flags and the dependencies built from them on first use
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	apiURL      *string
	dbPath      *string
	logLevel    *string
	logFormat   *string
	readerType  *string
	geminiKey   *string
	geminiModel *string
	ollamaURL   *string
	ollamaModel *string
	photosDir   *string
	framesDir   *string

	log     zerolog.Logger
	db      *inventory.BoltDB
	client  *api.Client
	service *inventory.Service
	reader  scanning.LabelReader
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr, log: zerolog.Nop()}
}

func (a *app) rootFlags() *ff.FlagSet {
	fs := ff.NewFlagSet("expiryguard")
	a.apiURL = fs.StringLong("api", api.DefaultBaseURL, "ExpiryGuard API base URL")
	a.dbPath = fs.StringLong("db", "expiryguard.db", "Local cache and session file path")
	a.logLevel = fs.StringLong("log-level", "warn", "Log level: debug, info, warn, error")
	a.logFormat = fs.StringLong("log-format", "console", "Log format: 'console' or 'json'")
	a.readerType = fs.StringLong("reader", "remote", "Label reader: 'remote', 'gemini' or 'ollama'")
	a.geminiKey = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	a.geminiModel = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
	a.ollamaURL = fs.StringLong("ollama-url", scanning.DefaultOllamaURL, "Ollama API base URL")
	a.ollamaModel = fs.StringLong("ollama-model", scanning.DefaultOllamaModel, "Ollama model name (e.g., llava, qwen2-vl)")
	a.photosDir = fs.StringLong("photos", "", "Keep label photos read by gemini or ollama in this directory")
	a.framesDir = fs.StringLong("frames", "", "Directory of camera frames to scan barcodes from")
	fs.StringLong("config", "", "Config file (optional)")
	return fs
}

// open builds the logger, database, API client and service
func (a *app) open() error {
	if a.service != nil {
		return nil
	}

	log, err := newLogger(a.stderr, *a.logLevel, *a.logFormat)
	if err != nil {
		return err
	}
	a.log = log

	a.log.Debug().Str("path", *a.dbPath).Msg("opening database")
	db, err := inventory.NewBoltDB(*a.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	a.db = db

	a.client = api.NewClient(*a.apiURL, db, a.log.With().Str("component", "api").Logger())
	a.service = inventory.NewService(a.client, db, a.log.With().Str("component", "inventory").Logger())
	return nil
}

// labelReader builds the configured label reader
func (a *app) labelReader(ctx context.Context) (scanning.LabelReader, error) {
	if a.reader != nil {
		return a.reader, nil
	}

	var (
		reader scanning.LabelReader
		err    error
	)
	switch *a.readerType {
	case "remote":
		reader = scanning.NewRemote(a.client)
	case "gemini":
		apiKey := *a.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		a.log.Info().Str("model", *a.geminiModel).Msg("initializing gemini reader")
		reader, err = scanning.NewGemini(ctx, apiKey, *a.geminiModel, a.log)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
	case "ollama":
		a.log.Info().Str("url", *a.ollamaURL).Str("model", *a.ollamaModel).Msg("initializing ollama reader")
		reader = scanning.NewOllama(*a.ollamaURL, *a.ollamaModel, a.log)
	default:
		return nil, fmt.Errorf("invalid reader %q: valid readers are remote, gemini and ollama", *a.readerType)
	}
	a.reader = reader
	return reader, nil
}

// scanner builds the barcode engine. Without --frames there is no camera and scans fall
// back to typed codes.
func (a *app) scanner() *barcode.Engine {
	log := a.log.With().Str("component", "barcode").Logger()
	if *a.framesDir == "" {
		return barcode.NewEngine(nil, log)
	}
	dir := *a.framesDir
	decoder := barcode.NewImageDecoder(func(ctx context.Context, cfg barcode.Config) (barcode.FrameSource, error) {
		return barcode.OpenDirFrames(dir)
	}, log)
	return barcode.NewEngine(decoder, log)
}

// form builds an add-product form
func (a *app) form(ctx context.Context, opts ...inventory.FormOption) (*inventory.Form, error) {
	reader, err := a.labelReader(ctx)
	if err != nil {
		return nil, err
	}
	if *a.readerType != "remote" && *a.photosDir != "" {
		photos, err := inventory.NewLocalPhotos(*a.photosDir)
		if err != nil {
			return nil, fmt.Errorf("initializing photo store: %w", err)
		}
		opts = append(opts, inventory.WithPhotoStore(photos))
	}
	notifier := &consoleNotifier{w: a.stderr}
	return inventory.NewForm(a.service, a.scanner(), reader, notifier, a.log.With().Str("component", "form").Logger(), opts...), nil
}

func (a *app) close() {
	if a.reader != nil {
		if err := a.reader.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing label reader")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing database")
		}
	}
}

// withService wraps a command body so the dependencies are ready when it runs
func (a *app) withService(fn func(ctx context.Context, args []string) error) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if err := a.open(); err != nil {
			return err
		}
		return fn(ctx, args)
	}
}
