package inventory

import (
	"context"
	"errors"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/zombor/expiryguard/internal/api"
	"github.com/zombor/expiryguard/internal/barcode"
	"github.com/zombor/expiryguard/internal/scanning"
)

// mockNotifier records messages as "kind: text"
type mockNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *mockNotifier) add(kind, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, kind+": "+msg)
}

func (m *mockNotifier) Success(msg string) { m.add("success", msg) }
func (m *mockNotifier) Info(msg string)    { m.add("info", msg) }
func (m *mockNotifier) Error(msg string)   { m.add("error", msg) }

func (m *mockNotifier) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

// chanDecoder is a camera that reports whatever the test sends
type chanDecoder struct {
	mu         sync.Mutex
	detections chan barcode.Detection
	stops      int
}

func newChanDecoder() *chanDecoder {
	return &chanDecoder{detections: make(chan barcode.Detection, 8)}
}

func (c *chanDecoder) Init(ctx context.Context, cfg barcode.Config) error { return nil }

func (c *chanDecoder) Start(ctx context.Context) (<-chan barcode.Detection, error) {
	return c.detections, nil
}

func (c *chanDecoder) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *chanDecoder) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

// mockReader is a LabelReader returning a canned label
type mockReader struct {
	label       *scanning.LabelData
	err         error
	contentType string
}

func (m *mockReader) ReadLabel(ctx context.Context, data []byte, contentType string) (*scanning.LabelData, error) {
	m.contentType = contentType
	if m.err != nil {
		return nil, m.err
	}
	copied := *m.label
	return &copied, nil
}

func (m *mockReader) Close() error { return nil }

// mockSpeech returns a canned transcript
type mockSpeech struct {
	transcript string
	err        error
}

func (m *mockSpeech) Listen(ctx context.Context) (string, error) {
	return m.transcript, m.err
}

// mockPhotos is an in-memory PhotoStore
type mockPhotos struct {
	saved   map[string][]byte
	deleted []string
}

func (m *mockPhotos) Save(filename string, data []byte) (string, error) {
	path := "/photos/" + filename
	m.saved[path] = data
	return path, nil
}

func (m *mockPhotos) Delete(path string) error {
	m.deleted = append(m.deleted, path)
	delete(m.saved, path)
	return nil
}

var _ = Describe("Form", func() {
	var (
		client   *mockAPI
		db       *mockDB
		decoder  *chanDecoder
		engine   *barcode.Engine
		reader   *mockReader
		notifier *mockNotifier
		opts     []FormOption
		form     *Form
		ctx      context.Context
	)

	BeforeEach(func() {
		client = &mockAPI{}
		db = newMockDB()
		decoder = newChanDecoder()
		engine = barcode.NewEngine(decoder, zerolog.Nop())
		reader = &mockReader{label: &scanning.LabelData{}}
		notifier = &mockNotifier{}
		opts = nil
		ctx = context.Background()
	})

	JustBeforeEach(func() {
		service := NewService(client, db, zerolog.Nop())
		form = NewForm(service, engine, reader, notifier, zerolog.Nop(), opts...)
	})

	AfterEach(func() {
		form.CloseScanner()
	})

	Describe("scanning a barcode", func() {
		When("the product is in a catalogue", func() {
			BeforeEach(func() {
				client.lookup = &api.BarcodeProduct{ProductName: "Oat Milk", Barcode: "5012345678900", Source: api.SourceOpenFoodFacts}
			})

			It("should fill the barcode and name after two matching reads", func() {
				session := form.OpenScanner(ctx)
				Expect(form.State().Scanning).To(BeTrue())

				decoder.detections <- barcode.Detection{Code: "5012345678900"}
				decoder.detections <- barcode.Detection{Code: "5012345678900"}
				Eventually(session.Done()).Should(BeClosed())

				state := form.State()
				Expect(state.Scanning).To(BeFalse())
				Expect(state.LookingUp).To(BeFalse())
				Expect(state.Input.Barcode).To(Equal("5012345678900"))
				Expect(state.Input.ProductName).To(Equal("Oat Milk"))
				Expect(state.Scanned.Source).To(Equal(api.SourceOpenFoodFacts))
				Expect(notifier.Messages()).To(Equal([]string{"success: Product found: Oat Milk (Open Food Facts)"}))
				Expect(decoder.Stops()).To(Equal(1))
				Expect(client.lookupCalls).To(Equal(1))
			})

			It("should hand back the running session when opened twice", func() {
				first := form.OpenScanner(ctx)
				Expect(form.OpenScanner(ctx)).To(BeIdenticalTo(first))
				Expect(notifier.Messages()).To(BeEmpty())
			})
		})

		When("the lookup fails", func() {
			BeforeEach(func() {
				client.lookupErr = errors.New("bad gateway")
			})

			It("should keep the code and fall back to manual details", func() {
				form.SetProductName("Typed Name")
				_, err := form.ManualBarcode(ctx, "12345678")
				Expect(err).NotTo(HaveOccurred())

				state := form.State()
				Expect(state.Input.Barcode).To(Equal("12345678"))
				Expect(state.Input.ProductName).To(Equal("Typed Name"))
				Expect(state.Scanned).To(BeNil())
				Expect(notifier.Messages()).To(Equal([]string{"info: " + msgBarcodeManual}))
			})
		})

		When("the barcode is unknown", func() {
			It("should ask for manual details", func() {
				_, err := form.ManualBarcode(ctx, "12345678")
				Expect(err).NotTo(HaveOccurred())
				Expect(notifier.Messages()).To(Equal([]string{"success: " + msgBarcodeManual}))
			})
		})

		When("the host has no camera", func() {
			BeforeEach(func() {
				engine = barcode.NewEngine(nil, zerolog.Nop())
			})

			It("should report it", func() {
				session := form.OpenScanner(ctx)
				Expect(session.Active()).To(BeFalse())
				Expect(notifier.Messages()).To(Equal([]string{"error: Camera not available on this device"}))
			})
		})

		Describe("typing a barcode while scanning", func() {
			var session *barcode.Session

			JustBeforeEach(func() {
				session = form.OpenScanner(ctx)
			})

			It("should reject a bad code and keep scanning", func() {
				_, err := form.ManualBarcode(ctx, "1234")
				Expect(err).To(MatchError(barcode.ErrInvalidBarcode))
				Expect(session.Active()).To(BeTrue())
				Expect(notifier.Messages()).To(Equal([]string{"error: " + barcode.ManualEntryHint}))
			})

			It("should end the scan with a good code", func() {
				code, err := form.ManualBarcode(ctx, " 87654321 ")
				Expect(err).NotTo(HaveOccurred())
				Expect(code).To(Equal("87654321"))
				Expect(session.Active()).To(BeFalse())
				Expect(decoder.Stops()).To(Equal(1))
				Expect(form.State().Input.Barcode).To(Equal("87654321"))
			})
		})
	})

	Describe("best-before mode", func() {
		It("should derive the expiry and overwrite a typed one", func() {
			form.SetExpiryDate("01/01/2030")
			form.SetBestBefore(true)
			form.SetShelfLifeMonths("6")
			Expect(form.SetManufacturingDate("31/08/2024")).To(Equal("03/03/2025"))
			Expect(form.State().Input.ExpiryDate).To(Equal("03/03/2025"))
		})

		It("should keep the last expiry while the inputs are incomplete", func() {
			form.SetBestBefore(true)
			form.SetShelfLifeMonths("12")
			form.SetManufacturingDate("15/01/2024")
			Expect(form.State().Input.ExpiryDate).To(Equal("15/01/2025"))

			Expect(form.SetManufacturingDate("15/01/20")).To(BeEmpty())
			state := form.State()
			Expect(state.DerivedExpiry).To(BeEmpty())
			Expect(state.Input.ExpiryDate).To(Equal("15/01/2025"))
		})

		It("should leave the expiry alone while disabled", func() {
			form.SetExpiryDate("01/01/2030")
			form.SetShelfLifeMonths("6")
			form.SetManufacturingDate("31/08/2024")
			Expect(form.State().Input.ExpiryDate).To(Equal("01/01/2030"))
		})
	})

	Describe("UploadImage", func() {
		It("should reject an empty photo", func() {
			label, err := form.UploadImage(ctx, "empty.jpg", nil)
			Expect(err).To(MatchError(ErrEmptyImage))
			Expect(label).To(BeNil())
			Expect(notifier.Messages()).To(Equal([]string{"error: " + msgImageFailed}))
		})

		It("should reject photos over 5MB", func() {
			_, err := form.UploadImage(ctx, "big.jpg", make([]byte, MaxImageSize+1))
			Expect(err).To(MatchError(ErrImageTooLarge))
			Expect(notifier.Messages()).To(Equal([]string{"error: " + msgImageTooLarge}))
		})

		When("the label shows a best-before period", func() {
			BeforeEach(func() {
				reader.label = &scanning.LabelData{ProductName: "Face Cream", BestBeforeMonths: 12, ImageURL: "/uploads/a.jpg", Text: "Face Cream 12M"}
			})

			It("should switch to best-before mode", func() {
				_, err := form.UploadImage(ctx, "cream.jpg", []byte("jpeg"))
				Expect(err).NotTo(HaveOccurred())
				Expect(reader.contentType).To(Equal("image/jpeg"))

				state := form.State()
				Expect(state.BestBefore.Enabled).To(BeTrue())
				Expect(state.BestBefore.ShelfLifeMonths).To(Equal("12"))
				Expect(state.Input.ProductName).To(Equal("Face Cream"))
				Expect(state.Input.ImageURL).To(Equal("/uploads/a.jpg"))
				Expect(state.ExtractedText).To(Equal("Face Cream 12M"))
				Expect(notifier.Messages()).To(Equal([]string{
					"success: Best before 12 months detected! Please enter manufacturing date.",
					"success: " + msgNameDetected,
				}))

				Expect(form.SetManufacturingDate("10/03/2024")).To(Equal("10/03/2025"))
				Expect(form.State().Input.ExpiryDate).To(Equal("10/03/2025"))
			})
		})

		When("the label shows an expiry date", func() {
			BeforeEach(func() {
				reader.label = &scanning.LabelData{ExpiryDate: "12/06/2024"}
			})

			It("should fill it and keep the typed name", func() {
				form.SetProductName("Milk")
				_, err := form.UploadImage(ctx, "milk.png", []byte("png"))
				Expect(err).NotTo(HaveOccurred())
				state := form.State()
				Expect(state.Input.ExpiryDate).To(Equal("12/06/2024"))
				Expect(state.Input.ProductName).To(Equal("Milk"))
				Expect(state.Uploading).To(BeFalse())
				Expect(notifier.Messages()).To(Equal([]string{"success: " + msgExpiryExtracted}))
			})
		})

		When("the reader fails", func() {
			BeforeEach(func() {
				reader.err = errors.New("ocr down")
			})

			It("should report it", func() {
				_, err := form.UploadImage(ctx, "milk.png", []byte("png"))
				Expect(err).To(MatchError("ocr down"))
				Expect(notifier.Messages()).To(Equal([]string{"error: " + msgImageFailed}))
			})
		})

		When("the reader does not store photos", func() {
			var photos *mockPhotos

			BeforeEach(func() {
				photos = &mockPhotos{saved: map[string][]byte{}}
				opts = append(opts, WithPhotoStore(photos))
				reader.label = &scanning.LabelData{ProductName: "Jam"}
			})

			It("should keep a local copy and remove it on Discard", func() {
				_, err := form.UploadImage(ctx, "My Jam!.jpg", []byte("jpeg"))
				Expect(err).NotTo(HaveOccurred())

				url := form.State().Input.ImageURL
				Expect(url).To(HavePrefix("/photos/"))
				Expect(url).To(HaveSuffix("_My Jam.jpg"))
				Expect(photos.saved).To(HaveKey(url))

				form.Discard()
				Expect(photos.deleted).To(Equal([]string{url}))
				Expect(form.State().Input.ProductName).To(BeEmpty())
			})
		})
	})

	Describe("VoiceInput", func() {
		When("there is no recognizer", func() {
			It("should report that speech is unsupported", func() {
				Expect(form.VoiceInput(ctx)).To(MatchError(ErrSpeechUnavailable))
				Expect(notifier.Messages()).To(Equal([]string{"error: " + msgSpeechUnsupported}))
			})
		})

		When("the relay understands the sentence", func() {
			BeforeEach(func() {
				opts = append(opts, WithSpeech(&mockSpeech{transcript: "milk expires 12 June 2024"}))
				client.voice = &api.VoiceResult{ProductName: "Milk", ExpiryDate: "12/06/2024"}
			})

			It("should fill the fields", func() {
				Expect(form.VoiceInput(ctx)).To(Succeed())
				state := form.State()
				Expect(state.Input.ProductName).To(Equal("Milk"))
				Expect(state.Input.ExpiryDate).To(Equal("12/06/2024"))
				Expect(notifier.Messages()).To(Equal([]string{
					"info: Recognized: milk expires 12 June 2024",
					"success: " + msgVoiceProcessed,
				}))
			})
		})

		When("the relay cannot parse it", func() {
			BeforeEach(func() {
				opts = append(opts, WithSpeech(&mockSpeech{transcript: "hmm"}))
				client.voiceErr = &api.VoiceError{Message: "Could not parse"}
			})

			It("should show the relay error", func() {
				Expect(form.VoiceInput(ctx)).NotTo(Succeed())
				Expect(notifier.Messages()).To(ContainElement("error: Voice input error: Could not parse"))
			})
		})

		When("the microphone fails", func() {
			BeforeEach(func() {
				opts = append(opts, WithSpeech(&mockSpeech{err: errors.New("no-speech")}))
			})

			It("should report the recognition error", func() {
				Expect(form.VoiceInput(ctx)).NotTo(Succeed())
				Expect(notifier.Messages()).To(Equal([]string{"error: Speech recognition error: no-speech"}))
			})
		})
	})

	Describe("Submit", func() {
		It("should require a name and an expiry", func() {
			form.SetExpiryDate("12/06/2024")
			_, err := form.Submit(ctx)
			Expect(err).To(MatchError(ErrMissingFields))
			Expect(notifier.Messages()).To(Equal([]string{"error: " + msgMissingFields}))
			Expect(client.added).To(BeEmpty())
		})

		It("should require both best-before inputs", func() {
			form.SetProductName("Cream")
			form.SetBestBefore(true)
			form.SetShelfLifeMonths("12")
			_, err := form.Submit(ctx)
			Expect(err).To(MatchError(ErrMissingBestBefore))
		})

		It("should not submit a typed expiry while the derived one is pending", func() {
			form.SetProductName("Cream")
			form.SetExpiryDate("01/01/2030")
			form.SetBestBefore(true)
			form.SetShelfLifeMonths("6")
			Expect(form.SetManufacturingDate("31/02/2024")).To(BeEmpty())

			_, err := form.Submit(ctx)
			Expect(err).To(MatchError(ErrMissingBestBefore))
			Expect(notifier.Messages()).To(Equal([]string{"error: " + msgMissingBestBefore}))
			Expect(client.added).To(BeEmpty())
		})

		It("should not submit an expiry derived from inputs that have since changed", func() {
			form.SetProductName("Cream")
			form.SetBestBefore(true)
			form.SetShelfLifeMonths("6")
			Expect(form.SetManufacturingDate("15/01/2024")).To(Equal("15/07/2024"))
			form.SetManufacturingDate("15/01/202")

			_, err := form.Submit(ctx)
			Expect(err).To(MatchError(ErrMissingBestBefore))
			Expect(client.added).To(BeEmpty())
		})

		It("should submit the derived expiry over a date typed afterwards", func() {
			form.SetProductName("Cream")
			form.SetBestBefore(true)
			form.SetShelfLifeMonths("6")
			form.SetManufacturingDate("15/01/2024")
			form.SetExpiryDate("01/01/2030")

			_, err := form.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.added).To(HaveLen(1))
			Expect(client.added[0].ExpiryDate).To(Equal("15/07/2024"))
		})

		It("should reject an impossible expiry", func() {
			form.SetProductName("Milk")
			form.SetExpiryDate("31/02/2024")
			_, err := form.Submit(ctx)
			Expect(err).To(MatchError(ErrInvalidExpiry))
			Expect(client.added).To(BeEmpty())
		})

		When("the product is complete", func() {
			BeforeEach(func() {
				client.lookup = &api.BarcodeProduct{ProductName: "Oat Milk", Source: api.SourceUserInventory}
			})

			It("should add it and reset the form", func() {
				_, err := form.ManualBarcode(ctx, "5012345678900")
				Expect(err).NotTo(HaveOccurred())
				form.SetBestBefore(true)
				form.SetShelfLifeMonths("1")
				form.SetManufacturingDate("31/01/2024")

				product, err := form.Submit(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(product.ProductName).To(Equal("Oat Milk"))
				Expect(client.added).To(Equal([]api.ProductInput{{
					ProductName: "Oat Milk",
					ExpiryDate:  "02/03/2024",
					Barcode:     "5012345678900",
				}}))

				state := form.State()
				Expect(state.Input).To(Equal(api.ProductInput{}))
				Expect(state.BestBefore.Enabled).To(BeFalse())
				Expect(state.Scanned).To(BeNil())
				Expect(notifier.Messages()).To(ContainElement("success: " + msgProductAdded))
			})
		})

		When("the server refuses the product", func() {
			BeforeEach(func() {
				client.addErr = errors.New("boom")
			})

			It("should keep the fields", func() {
				form.SetProductName("Milk")
				form.SetExpiryDate("12/06/2024")
				_, err := form.Submit(ctx)
				Expect(err).To(MatchError("boom"))
				Expect(form.State().Input.ProductName).To(Equal("Milk"))
				last := notifier.Messages()[len(notifier.Messages())-1]
				Expect(strings.HasPrefix(last, "error: ")).To(BeTrue())
			})
		})
	})
})
