package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zombor/expiryguard/internal/api"
	"github.com/zombor/expiryguard/internal/barcode"
	"github.com/zombor/expiryguard/internal/expiry"
	"github.com/zombor/expiryguard/internal/imaging"
	"github.com/zombor/expiryguard/internal/scanning"
)

// MaxImageSize is the largest label photo the form accepts
const MaxImageSize = 5 * 1024 * 1024

// Messages shown through the Notifier.
const (
	msgMissingFields      = "Please fill in all required fields"
	msgMissingBestBefore  = "Please enter manufacturing date and best before months"
	msgInvalidExpiry      = "Please enter a valid expiry date (DD/MM/YYYY)"
	msgProductAdded       = "Product added successfully!"
	msgAddFailed          = "Failed to add product"
	msgImageTooLarge      = "Image size should be less than 5MB"
	msgImageFailed        = "Failed to process image"
	msgExpiryExtracted    = "Expiry date extracted successfully!"
	msgNameDetected       = "Product name detected!"
	msgBarcodeManual      = "Barcode scanned! Please enter product details manually."
	msgSpeechUnsupported  = "Speech recognition not supported on this device."
	msgVoiceProcessed     = "Voice input processed!"
	msgVoiceRequestFailed = "Failed to process voice input."
)

var (
	// ErrMissingFields is returned by Submit when the name or the expiry is missing
	ErrMissingFields = errors.New("product name and expiry date are required")
	// ErrMissingBestBefore is returned by Submit when best-before mode lacks its inputs
	ErrMissingBestBefore = errors.New("manufacturing date and best before months are required")
	// ErrInvalidExpiry is returned by Submit when the expiry is not a real DD/MM/YYYY date
	ErrInvalidExpiry = errors.New("invalid expiry date")
	// ErrEmptyImage is returned by UploadImage when there are no photo bytes
	ErrEmptyImage = errors.New("image is empty")
	// ErrImageTooLarge is returned for photos over MaxImageSize
	ErrImageTooLarge = errors.New("image too large")
	// ErrSpeechUnavailable is returned by VoiceInput when no recognizer was provided
	ErrSpeechUnavailable = errors.New("speech recognition unavailable")
)

// Notifier shows short feedback messages to the user
type Notifier interface {
	Success(msg string)
	Info(msg string)
	Error(msg string)
}

// SpeechRecognizer turns one spoken sentence into text
type SpeechRecognizer interface {
	Listen(ctx context.Context) (string, error)
}

// FormService is what the form needs from the Service
type FormService interface {
	LookupBarcode(ctx context.Context, code string) (*api.BarcodeProduct, error)
	AddProduct(ctx context.Context, in api.ProductInput) (*api.Product, error)
	ParseVoice(ctx context.Context, transcript string) (*api.VoiceResult, error)
}

// FormState is a snapshot of the form
type FormState struct {
	Input         api.ProductInput
	BestBefore    expiry.Inputs
	DerivedExpiry string
	ExtractedText string
	Scanned       *api.BarcodeProduct
	Scanning      bool
	LookingUp     bool
	Uploading     bool
}

// Form is the add-product form. It owns the barcode scanner and the best-before deriver
// and reports every outcome through the Notifier.
type Form struct {
	svc     FormService
	scanner *barcode.Engine
	reader  scanning.LabelReader
	notify  Notifier
	log     zerolog.Logger
	deriver *expiry.Deriver

	speech SpeechRecognizer
	photos PhotoStore

	mu            sync.Mutex
	input         api.ProductInput
	extractedText string
	scanned       *api.BarcodeProduct
	localPhoto    string
	session       *barcode.Session
	lookingUp     bool
	uploading     bool
}

// FormOption configures a Form
type FormOption func(*Form)

// WithSpeech enables voice input
func WithSpeech(r SpeechRecognizer) FormOption {
	return func(f *Form) {
		f.speech = r
	}
}

// WithPhotoStore keeps photos locally when the label reader does not store them
func WithPhotoStore(p PhotoStore) FormOption {
	return func(f *Form) {
		f.photos = p
	}
}

// NewForm creates an empty form
func NewForm(svc FormService, scanner *barcode.Engine, reader scanning.LabelReader, notify Notifier, log zerolog.Logger, opts ...FormOption) *Form {
	f := &Form{
		svc:     svc,
		scanner: scanner,
		reader:  reader,
		notify:  notify,
		log:     log,
	}
	f.deriver = expiry.NewDeriver(f.setDerivedExpiry)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// setDerivedExpiry is the deriver's sink. It must not be called with f.mu held.
func (f *Form) setDerivedExpiry(date string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input.ExpiryDate = date
}

// State returns a snapshot of the form
func (f *Form) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FormState{
		Input:         f.input,
		BestBefore:    f.deriver.Inputs(),
		DerivedExpiry: f.deriver.Value(),
		ExtractedText: f.extractedText,
		Scanned:       f.scanned,
		Scanning:      f.session != nil && f.session.Active(),
		LookingUp:     f.lookingUp,
		Uploading:     f.uploading,
	}
}

// SetProductName sets the name field
func (f *Form) SetProductName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input.ProductName = strings.TrimSpace(name)
}

// SetExpiryDate sets the expiry field. While best-before mode is on the next derivation
// overwrites it.
func (f *Form) SetExpiryDate(date string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input.ExpiryDate = strings.TrimSpace(date)
}

// SetBestBefore toggles best-before mode and returns the derived expiry
func (f *Form) SetBestBefore(enabled bool) string {
	return f.deriver.SetEnabled(enabled)
}

// SetManufacturingDate sets the manufacturing date and returns the derived expiry
func (f *Form) SetManufacturingDate(date string) string {
	return f.deriver.SetManufacturingDate(strings.TrimSpace(date))
}

// SetShelfLifeMonths sets the best-before months and returns the derived expiry
func (f *Form) SetShelfLifeMonths(months string) string {
	return f.deriver.SetShelfLifeMonths(months)
}

// OpenScanner starts a barcode scanning session, or returns the one already running.
// A confirmed code is looked up before the session's Done channel closes.
func (f *Form) OpenScanner(ctx context.Context) *barcode.Session {
	f.mu.Lock()
	if f.session != nil && f.session.Active() {
		s := f.session
		f.mu.Unlock()
		return s
	}
	f.mu.Unlock()

	s := f.scanner.StartSession(ctx,
		func(code string) { f.HandleBarcodeScanned(ctx, code) },
		f.notify.Error,
	)

	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
	return s
}

// CloseScanner ends the scanning session without a result
func (f *Form) CloseScanner() {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// ManualBarcode accepts a typed barcode. It ends a running scan as if the code had been read.
func (f *Form) ManualBarcode(ctx context.Context, input string) (string, error) {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()

	if s != nil && s.Active() {
		code, err := s.ManualEntry(input)
		if err != nil {
			f.notify.Error(barcode.ManualEntryHint)
			return "", err
		}
		if s.Result() == "" {
			// The scanner was closed before the code arrived.
			f.HandleBarcodeScanned(ctx, code)
		}
		return code, nil
	}

	code, err := barcode.ParseManualCode(input)
	if err != nil {
		f.notify.Error(barcode.ManualEntryHint)
		return "", err
	}
	f.HandleBarcodeScanned(ctx, code)
	return code, nil
}

// HandleBarcodeScanned looks a confirmed barcode up and fills the form. A failed lookup keeps
// the barcode so the user can type the details.
func (f *Form) HandleBarcodeScanned(ctx context.Context, code string) {
	f.mu.Lock()
	f.lookingUp = true
	f.mu.Unlock()

	product, err := f.svc.LookupBarcode(ctx, code)

	f.mu.Lock()
	f.lookingUp = false
	f.input.Barcode = code
	f.scanned = product
	if err == nil && product != nil && product.ProductName != "" {
		f.input.ProductName = product.ProductName
	}
	f.mu.Unlock()

	switch {
	case err != nil:
		f.log.Warn().Err(err).Str("barcode", code).Msg("barcode lookup failed")
		f.notify.Info(msgBarcodeManual)
	case product == nil:
		f.notify.Success(msgBarcodeManual)
	default:
		f.notify.Success(fmt.Sprintf("Product found: %s (%s)", product.ProductName, product.SourceLabel()))
	}
}

// UploadImage reads a label photo and merges what was found into the form. Detected
// best-before months switch the form to best-before mode.
func (f *Form) UploadImage(ctx context.Context, filename string, data []byte) (*scanning.LabelData, error) {
	if len(data) == 0 {
		f.notify.Error(msgImageFailed)
		return nil, ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		f.notify.Error(msgImageTooLarge)
		return nil, ErrImageTooLarge
	}

	f.mu.Lock()
	f.uploading = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.uploading = false
		f.mu.Unlock()
	}()

	label, err := f.reader.ReadLabel(ctx, data, imaging.ContentTypeFromName(filename))
	if err != nil {
		f.log.Error().Err(err).Str("filename", filename).Int("file_size", len(data)).Msg("failed to read label")
		f.notify.Error(msgImageFailed)
		return nil, err
	}

	imageURL := label.ImageURL
	var localPhoto string
	if imageURL == "" && f.photos != nil {
		path, err := f.photos.Save(uuid.NewString()+"_"+sanitizeFilename(filename), data)
		if err != nil {
			f.log.Warn().Err(err).Msg("keeping label photo")
		} else {
			imageURL, localPhoto = path, path
		}
	}

	f.mu.Lock()
	f.input.ImageURL = imageURL
	if label.ExpiryDate != "" {
		f.input.ExpiryDate = label.ExpiryDate
	}
	if label.ProductName != "" {
		f.input.ProductName = label.ProductName
	}
	f.extractedText = label.Text
	previous := f.localPhoto
	f.localPhoto = localPhoto
	f.mu.Unlock()

	f.deletePhoto(previous)

	if label.BestBeforeMonths > 0 {
		f.deriver.SetShelfLifeMonths(strconv.Itoa(int(label.BestBeforeMonths)))
		f.deriver.SetEnabled(true)
		f.notify.Success(fmt.Sprintf("Best before %d months detected! Please enter manufacturing date.", label.BestBeforeMonths))
	}
	if label.ExpiryDate != "" {
		f.notify.Success(msgExpiryExtracted)
	}
	if label.ProductName != "" {
		f.notify.Success(msgNameDetected)
	}
	return label, nil
}

// VoiceInput listens for a sentence such as "milk expires on 12 June" and fills the name and
// expiry fields from it
func (f *Form) VoiceInput(ctx context.Context) error {
	if f.speech == nil {
		f.notify.Error(msgSpeechUnsupported)
		return ErrSpeechUnavailable
	}

	transcript, err := f.speech.Listen(ctx)
	if err != nil {
		f.notify.Error("Speech recognition error: " + err.Error())
		return fmt.Errorf("listening: %w", err)
	}
	f.notify.Info("Recognized: " + transcript)

	res, err := f.svc.ParseVoice(ctx, transcript)
	var voiceErr *api.VoiceError
	switch {
	case errors.As(err, &voiceErr):
		f.notify.Error("Voice input error: " + voiceErr.Message)
		return err
	case err != nil:
		f.log.Error().Err(err).Msg("voice relay failed")
		f.notify.Error(msgVoiceRequestFailed)
		return err
	}

	f.mu.Lock()
	if res.ProductName != "" {
		f.input.ProductName = res.ProductName
	}
	if res.ExpiryDate != "" {
		f.input.ExpiryDate = res.ExpiryDate
	}
	f.mu.Unlock()

	f.notify.Success(msgVoiceProcessed)
	return nil
}

// Submit validates the form and adds the product. The form is cleared on success.
func (f *Form) Submit(ctx context.Context) (*api.Product, error) {
	state := f.State()
	in := state.Input
	bb := state.BestBefore

	if in.ProductName == "" || (in.ExpiryDate == "" && !bb.Enabled) {
		f.notify.Error(msgMissingFields)
		return nil, ErrMissingFields
	}
	if bb.Enabled {
		// Only a date derived from the current inputs is submitted in best-before mode.
		if state.DerivedExpiry == "" {
			f.notify.Error(msgMissingBestBefore)
			return nil, ErrMissingBestBefore
		}
		in.ExpiryDate = state.DerivedExpiry
	}
	if !expiry.IsValidDate(in.ExpiryDate) {
		f.notify.Error(msgInvalidExpiry)
		return nil, ErrInvalidExpiry
	}

	product, err := f.svc.AddProduct(ctx, in)
	if err != nil {
		f.log.Error().Err(err).Str("product_name", in.ProductName).Msg("failed to add product")
		f.notify.Error(msgAddFailed)
		return nil, err
	}

	f.notify.Success(msgProductAdded)
	f.reset()
	return product, nil
}

// Discard clears the form and removes a photo kept only for it
func (f *Form) Discard() {
	f.mu.Lock()
	photo := f.localPhoto
	f.mu.Unlock()

	f.deletePhoto(photo)
	f.reset()
}

func (f *Form) reset() {
	f.mu.Lock()
	f.input = api.ProductInput{}
	f.extractedText = ""
	f.scanned = nil
	f.localPhoto = ""
	f.mu.Unlock()
	f.deriver.Reset()
}

func (f *Form) deletePhoto(path string) {
	if path == "" || f.photos == nil {
		return
	}
	if err := f.photos.Delete(path); err != nil {
		f.log.Warn().Err(err).Str("path", path).Msg("removing label photo")
	}
}
