package barcode

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// User-facing failure messages reported through a session's onError callback.
const (
	msgCameraUnavailable = "Camera not available on this device"
	msgInitFailed        = "Failed to initialize camera: "
	msgScannerInUse      = "Scanner is already in use"
)

// Engine hands out scanning sessions over a single decoder. Only one session may own
// the decoder at a time.
type Engine struct {
	decoder Decoder
	config  Config
	log     zerolog.Logger

	mu      sync.Mutex
	current *Session
}

// Option configures an Engine
type Option func(*Engine)

// WithConfig overrides the decoder configuration
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// NewEngine creates an Engine. decoder is nil when the host has no camera.
func NewEngine(decoder Decoder, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		decoder: decoder,
		config:  DefaultConfig(),
		log:     log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether a camera decoder was provided
func (e *Engine) Available() bool {
	return e.decoder != nil
}

// Config returns the configuration sessions hand to the decoder
func (e *Engine) Config() Config {
	return e.config
}

// StartSession opens the camera and begins scanning. onConfirmed receives the confirmed code
// exactly once; onError receives a message when the camera cannot be acquired. Either callback
// runs on the session's goroutine. The returned session is always non-nil.
func (e *Engine) StartSession(ctx context.Context, onConfirmed func(code string), onError func(message string)) *Session {
	s := newSession(e, onConfirmed, onError)

	e.mu.Lock()
	switch {
	case e.decoder == nil:
		e.mu.Unlock()
		s.fail(msgCameraUnavailable)
		return s
	case e.current != nil && e.current.Active():
		e.mu.Unlock()
		e.log.Warn().Str("session_id", s.id).Str("active_session_id", e.current.id).Msg("scanner already in use")
		s.fail(msgScannerInUse)
		return s
	}
	e.current = s
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.decoder = e.decoder

	e.log.Debug().Str("session_id", s.id).Int("workers", e.config.Workers).Int("frequency", e.config.Frequency).Msg("starting scan session")
	go s.run(runCtx, e.config)
	return s
}

// Session is one open-to-closed lifecycle of the camera for a single scan
type Session struct {
	id          string
	log         zerolog.Logger
	onConfirmed func(string)
	onError     func(string)

	decoder Decoder
	cancel  context.CancelFunc
	done    chan struct{}

	releaseOnce sync.Once

	mu      sync.Mutex
	active  bool
	loading bool
	policy  Confirmation
	result  string
}

func newSession(e *Engine, onConfirmed func(string), onError func(string)) *Session {
	id := uuid.NewString()
	if onConfirmed == nil {
		onConfirmed = func(string) {}
	}
	if onError == nil {
		onError = func(string) {}
	}
	return &Session{
		id:          id,
		log:         e.log.With().Str("session_id", id).Logger(),
		onConfirmed: onConfirmed,
		onError:     onError,
		cancel:      func() {},
		done:        make(chan struct{}),
		active:      true,
		loading:     true,
	}
}

// ID identifies the session in logs
func (s *Session) ID() string {
	return s.id
}

// Active reports whether the session is still scanning
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Loading reports whether the camera is still being acquired
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastCode returns the most recent raw read, confirmed or not
func (s *Session) LastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.LastCode()
}

// Result returns the confirmed code, or "" if the session ended without one
func (s *Session) Result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Done is closed once the session goroutine has exited and the decoder is released
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session without a result and releases the camera. Closing an
// inactive session does nothing.
func (s *Session) Close() {
	if !s.deactivate("") {
		return
	}
	s.log.Debug().Msg("scan session closed")
	s.cancel()
	<-s.done
}

// ManualEntry accepts a typed barcode. A valid code ends the session as if it had been
// scanned and is returned; an invalid one leaves the session untouched. When the camera
// confirmed a code first, that code is returned instead.
func (s *Session) ManualEntry(input string) (string, error) {
	code, err := ParseManualCode(input)
	if err != nil {
		return "", err
	}
	if s.deactivate(code) {
		s.log.Info().Str("code", code).Msg("barcode entered manually")
		s.cancel()
		<-s.done
		s.onConfirmed(code)
		return code, nil
	}
	if result := s.Result(); result != "" {
		return result, nil
	}
	return code, nil
}

// deactivate moves the session to inactive. Only the first caller wins.
func (s *Session) deactivate(result string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	s.active = false
	s.loading = false
	s.result = result
	return true
}

// fail ends a session that never reached the decoder
func (s *Session) fail(message string) {
	s.deactivate("")
	close(s.done)
	s.onError(message)
}

func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if err := s.decoder.Stop(); err != nil {
			s.log.Warn().Err(err).Msg("stopping decoder")
		}
	})
}

func (s *Session) run(ctx context.Context, cfg Config) {
	defer close(s.done)
	defer s.release()
	defer s.cancel()

	if err := s.decoder.Init(ctx, cfg); err != nil {
		s.abort(ctx, "camera initialisation failed", err)
		return
	}

	detections, err := s.decoder.Start(ctx)
	if err != nil {
		s.abort(ctx, "decoder start failed", err)
		return
	}

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			s.deactivate("")
			return
		case d, ok := <-detections:
			if !ok {
				// The stream ran dry; the camera stays open until the user closes
				// the scanner or types the code.
				<-ctx.Done()
				s.deactivate("")
				return
			}
			if code, confirmed := s.observe(d.Code); confirmed {
				s.release()
				s.log.Info().Str("code", code).Msg("barcode confirmed")
				s.onConfirmed(code)
				return
			}
		}
	}
}

// abort ends a session whose camera could not be acquired. A cancelled context is a
// close, not a failure, and is not reported.
func (s *Session) abort(ctx context.Context, msg string, err error) {
	if ctx.Err() != nil {
		s.deactivate("")
		return
	}
	s.log.Error().Err(err).Msg(msg)
	if s.deactivate("") {
		s.release()
		s.onError(msgInitFailed + err.Error())
	}
}

// observe applies the confirmation policy and ends the session on a confirmed read
func (s *Session) observe(code string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return "", false
	}
	s.log.Debug().Str("code", code).Msg("barcode detected")
	if !s.policy.Observe(code) {
		return "", false
	}
	s.active = false
	s.loading = false
	s.result = code
	return code, true
}
