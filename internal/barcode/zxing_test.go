package barcode

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
)

func ean13Image(code string) image.Image {
	matrix, err := oned.NewEAN13Writer().Encode(code, gozxing.BarcodeFormat_EAN_13, 380, 120, nil)
	Expect(err).NotTo(HaveOccurred())
	return matrix
}

func blankImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 380, 120))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return img
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Frequency = 200
	cfg.Workers = 2
	return cfg
}

var _ = Describe("ImageDecoder", func() {
	var (
		frames  *StaticFrames
		decoder *ImageDecoder
		opened  int
	)

	BeforeEach(func() {
		opened = 0
	})

	JustBeforeEach(func() {
		decoder = NewImageDecoder(func(ctx context.Context, cfg Config) (FrameSource, error) {
			opened++
			return frames, nil
		}, zerolog.Nop())
	})

	collect := func() []string {
		Expect(decoder.Init(context.Background(), fastConfig())).To(Succeed())
		detections, err := decoder.Start(context.Background())
		Expect(err).NotTo(HaveOccurred())
		var codes []string
		for d := range detections {
			codes = append(codes, d.Code)
		}
		return codes
	}

	When("frames contain a barcode", func() {
		BeforeEach(func() {
			frames = NewStaticFrames(blankImage(), ean13Image("5012345678900"), blankImage(), ean13Image("5012345678900"))
		})

		It("should report a detection per readable frame in order", func() {
			Expect(collect()).To(Equal([]string{"5012345678900", "5012345678900"}))
			Expect(opened).To(Equal(1))
		})

		It("should close the frame source on Stop", func() {
			collect()
			Expect(decoder.Stop()).To(Succeed())
			Expect(frames.Closed()).To(BeTrue())
		})
	})

	When("the configuration has no symbologies", func() {
		BeforeEach(func() {
			frames = NewStaticFrames()
		})

		It("should fail to initialise without opening the camera", func() {
			cfg := fastConfig()
			cfg.Symbologies = nil
			Expect(decoder.Init(context.Background(), cfg)).To(MatchError("no symbologies configured"))
			Expect(opened).To(Equal(0))
		})
	})

	When("Stop is called before Start", func() {
		BeforeEach(func() {
			frames = NewStaticFrames()
		})

		It("should not fail and should be repeatable", func() {
			Expect(decoder.Stop()).To(Succeed())
			Expect(decoder.Init(context.Background(), fastConfig())).To(Succeed())
			Expect(decoder.Stop()).To(Succeed())
			Expect(decoder.Stop()).To(Succeed())
		})
	})

	When("Start is called before Init", func() {
		BeforeEach(func() {
			frames = NewStaticFrames()
		})

		It("returns the error", func() {
			_, err := decoder.Start(context.Background())
			Expect(err).To(MatchError("decoder not initialised"))
		})
	})
})

var _ = Describe("scanning photos end to end", func() {
	It("should confirm a code from a directory of frames and release the camera once", func() {
		dir := GinkgoT().TempDir()
		for i, img := range []image.Image{blankImage(), ean13Image("5012345678900"), ean13Image("5012345678900")} {
			f, err := os.Create(filepath.Join(dir, "frame"+string(rune('0'+i))+".png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(png.Encode(f, toGray(img))).To(Succeed())
			Expect(f.Close()).To(Succeed())
		}

		var source *DirFrames
		decoder := NewImageDecoder(func(ctx context.Context, cfg Config) (FrameSource, error) {
			var err error
			source, err = OpenDirFrames(dir)
			return source, err
		}, zerolog.Nop())
		engine := NewEngine(decoder, zerolog.Nop(), WithConfig(fastConfig()))

		confirmed := make(chan string, 1)
		session := engine.StartSession(context.Background(), func(code string) { confirmed <- code }, nil)

		Eventually(confirmed, "5s").Should(Receive(Equal("5012345678900")))
		Eventually(session.Done(), "5s").Should(BeClosed())
		Expect(session.Active()).To(BeFalse())
		_, err := source.Next(context.Background())
		Expect(err).To(HaveOccurred())
	})
})

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}
