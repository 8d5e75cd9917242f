package scanning

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"net/http"

	"github.com/disintegration/imaging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func testPNG(w, h int) []byte {
	var buf bytes.Buffer
	Expect(imaging.Encode(&buf, imaging.New(w, h, color.White), imaging.PNG)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		data    []byte
		result  *Recognition
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		DeferCleanup(server.Close)

		scanner, err = NewOllama(server.URL()+"/", "llava")
		Expect(err).NotTo(HaveOccurred())
		data = testPNG(20, 20)
	})

	JustBeforeEach(func() {
		result, err = scanner.Recognize(context.Background(), data, "image/png")
	})

	When("the model answers with JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"store_name": "Lidl", "items": [{"description": "Chleb", "total": "4,50"}]}`},
					Done:    true,
				}),
			))
		})

		It("should return segmented fields", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Fields.StoreName).To(Equal("Lidl"))
			Expect(result.Fields.Items).To(HaveLen(1))
		})

		It("should send the image with the user message", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns a RecognitionError", func() {
			var recErr *RecognitionError
			Expect(errors.As(err, &recErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})

	When("the file is not an image", func() {
		BeforeEach(func() {
			data = []byte("definitely not a png")
		})

		It("returns a RecognitionError without calling the API", func() {
			var recErr *RecognitionError
			Expect(errors.As(err, &recErr)).To(BeTrue())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})

var _ = Describe("content types", func() {
	DescribeTable("SupportedContentType",
		func(ct string, expected bool) {
			Expect(SupportedContentType(ct)).To(Equal(expected))
		},
		Entry("jpeg", "image/jpeg", true),
		Entry("jpg alias with parameters", "Image/JPG; charset=binary", true),
		Entry("pdf", "application/pdf", true),
		Entry("heic", "image/heic", true),
		Entry("text", "text/plain", false),
		Entry("empty", "", false),
	)

	It("should detect HEIC by magic bytes", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic0000"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x89PNG\r\n\x1a\n0000"))).To(BeFalse())
	})

	It("should shrink oversized images", func() {
		out, err := prepareImageData(testPNG(maxEdge*2, 100), "image/png", true)
		Expect(err).NotTo(HaveOccurred())
		img, err := imaging.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(maxEdge))
	})
})
