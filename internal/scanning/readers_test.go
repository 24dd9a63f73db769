package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/rs/zerolog"

	"github.com/zombor/expiryguard/internal/api"
)

func pngBytes() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)))).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		reader *Ollama
		label  *LabelData
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		reader = NewOllama(server.URL(), "", zerolog.Nop())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		label, err = reader.ReadLabel(context.Background(), pngBytes(), "image/png")
	})

	When("the model reads the label", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				func(w http.ResponseWriter, r *http.Request) {
					body, err := io.ReadAll(r.Body)
					Expect(err).NotTo(HaveOccurred())
					var req ollamaChatRequest
					Expect(json.Unmarshal(body, &req)).To(Succeed())
					Expect(req.Model).To(Equal(DefaultOllamaModel))
					Expect(req.Format).To(Equal("json"))
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"product_name": "Milk", "expiry_date": "2024-06-12"}`},
					Done:    true,
				}),
			))
		})

		It("should return the normalised label", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(label.ProductName).To(Equal("Milk"))
			Expect(label.ExpiryDate).To(Equal("12/06/2024"))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should return the status and body", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})
})

type fakeUploader struct {
	filename string
	data     []byte
	result   *api.UploadResult
	err      error
}

func (f *fakeUploader) UploadImage(ctx context.Context, filename string, data []byte) (*api.UploadResult, error) {
	f.filename = filename
	f.data = data
	return f.result, f.err
}

var _ = Describe("Remote", func() {
	var (
		uploader *fakeUploader
		label    *LabelData
		err      error
	)

	BeforeEach(func() {
		uploader = &fakeUploader{}
	})

	JustBeforeEach(func() {
		label, err = NewRemote(uploader).ReadLabel(context.Background(), []byte("photo"), "image/png")
	})

	When("the server reads the label", func() {
		BeforeEach(func() {
			uploader.result = &api.UploadResult{
				ImageURL:         "/uploads/abc.png",
				ProductName:      " Face Cream ",
				ExtractedText:    "Face Cream\nEXP 06/2025",
				BestBeforeMonths: 12,
			}
		})

		It("should upload the photo with a matching file name", func() {
			Expect(uploader.filename).To(Equal("label.png"))
			Expect(uploader.data).To(Equal([]byte("photo")))
		})

		It("should merge the server fields with what the text shows", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(label.ProductName).To(Equal("Face Cream"))
			Expect(label.ExpiryDate).To(Equal("30/06/2025"))
			Expect(label.BestBeforeMonths).To(Equal(api.Months(12)))
			Expect(label.ImageURL).To(Equal("/uploads/abc.png"))
		})
	})

	When("the upload fails", func() {
		BeforeEach(func() {
			uploader.err = errors.New("connection refused")
		})

		It("should return the error", func() {
			Expect(err).To(MatchError("connection refused"))
			Expect(label).To(BeNil())
		})
	})
})
