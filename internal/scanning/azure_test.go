package scanning

import (
	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func ptr(s string) *string {
	return &s
}

func resultLine(box string, words ...string) computervision.OcrLine {
	ws := make([]computervision.OcrWord, len(words))
	for i, w := range words {
		ws[i] = computervision.OcrWord{Text: ptr(w)}
	}
	return computervision.OcrLine{BoundingBox: ptr(box), Words: &ws}
}

var _ = Describe("Azure OCR result handling", func() {
	Describe("ocrLines", func() {
		It("should flatten regions into positioned lines", func() {
			result := computervision.OcrResult{
				Regions: &[]computervision.OcrRegion{
					{Lines: &[]computervision.OcrLine{resultLine("10,100,80,20", "Mleko", "2", "x", "3,99")}},
					{Lines: &[]computervision.OcrLine{resultLine("300,102,40,20", "7,98", "C")}},
				},
			}

			lines := ocrLines(result)
			Expect(lines).To(HaveLen(2))
			Expect(lines[0].text).To(Equal("Mleko 2 x 3,99"))
			Expect(lines[1].x).To(Equal(300))
		})

		It("should skip lines with a broken bounding box", func() {
			result := computervision.OcrResult{
				Regions: &[]computervision.OcrRegion{
					{Lines: &[]computervision.OcrLine{resultLine("10,abc", "noise")}},
				},
			}
			Expect(ocrLines(result)).To(BeEmpty())
		})

		It("should handle an empty result", func() {
			Expect(ocrLines(computervision.OcrResult{})).To(BeEmpty())
		})
	})

	Describe("mergeRows", func() {
		It("should join the description and price columns of one row", func() {
			rows := mergeRows([]ocrLine{
				{text: "7,98 C", x: 300, y: 102, height: 20},
				{text: "Mleko 2 x 3,99", x: 10, y: 100, height: 20},
				{text: "Chleb 1 x 4,50", x: 10, y: 130, height: 20},
				{text: "4,50 C", x: 300, y: 131, height: 20},
				{text: "BIEDRONKA", x: 50, y: 10, height: 30},
			})

			Expect(rows).To(Equal([]string{
				"BIEDRONKA",
				"Mleko 2 x 3,99 7,98 C",
				"Chleb 1 x 4,50 4,50 C",
			}))
		})
	})
})
