package scanning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
)

// Azure implements the Scanner interface with Azure Computer Vision printed-text OCR.
// It returns raw text; segmentation is left to the receipt normalizer.
type Azure struct {
	client   computervision.BaseClient
	language computervision.OcrLanguages
}

// NewAzure creates a new Azure OCR Scanner instance
func NewAzure(endpoint, apiKey, language string) (*Azure, error) {
	if endpoint == "" || apiKey == "" {
		return nil, fmt.Errorf("azure endpoint and key are required")
	}
	if language == "" {
		language = "pl"
	}

	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)

	return &Azure{
		client:   client,
		language: computervision.OcrLanguages(language),
	}, nil
}

// Recognize enhances the image and runs printed-text OCR on it
func (a *Azure) Recognize(ctx context.Context, data []byte, contentType string) (*Recognition, error) {
	imageData, err := prepareImageData(data, contentType, true)
	if err != nil {
		return nil, err
	}

	result, err := a.client.RecognizePrintedTextInStream(ctx, true, io.NopCloser(bytes.NewReader(imageData)), a.language)
	if err != nil {
		return nil, &RecognitionError{Reason: "engine error", Err: fmt.Errorf("recognizing text: %w", err)}
	}

	text := strings.Join(mergeRows(ocrLines(result)), "\n")
	if strings.TrimSpace(text) == "" {
		return nil, &RecognitionError{Reason: "no text found"}
	}
	return &Recognition{Text: text}, nil
}

// Close is a no-op for the HTTP-based client
func (a *Azure) Close() error {
	return nil
}

// ocrLine is one recognized line with its position on the page
type ocrLine struct {
	text   string
	x, y   int
	height int
}

// ocrLines flattens the OCR regions into positioned lines
func ocrLines(result computervision.OcrResult) []ocrLine {
	var lines []ocrLine
	if result.Regions == nil {
		return lines
	}
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil || line.BoundingBox == nil {
				continue
			}

			box := make([]int, 0, 4)
			for _, part := range strings.Split(*line.BoundingBox, ",") {
				v, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil {
					break
				}
				box = append(box, v)
			}
			if len(box) < 4 {
				continue
			}

			words := make([]string, 0, len(*line.Words))
			for _, word := range *line.Words {
				if word.Text != nil {
					words = append(words, *word.Text)
				}
			}
			lines = append(lines, ocrLine{
				text:   strings.Join(words, " "),
				x:      box[0],
				y:      box[1],
				height: box[3],
			})
		}
	}
	return lines
}

// mergeRows joins lines sharing a baseline. Printed-text OCR splits a receipt
// row into a description region and a price region; the normalizer needs
// them back on one line.
func mergeRows(lines []ocrLine) []string {
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].y != lines[j].y {
			return lines[i].y < lines[j].y
		}
		return lines[i].x < lines[j].x
	})

	var (
		rows    []string
		current []ocrLine
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		sort.SliceStable(current, func(i, j int) bool { return current[i].x < current[j].x })
		parts := make([]string, len(current))
		for i, l := range current {
			parts[i] = l.text
		}
		rows = append(rows, strings.Join(parts, " "))
		current = current[:0]
	}

	for _, l := range lines {
		if len(current) > 0 {
			anchor := current[0]
			tolerance := anchor.height / 2
			if tolerance < 1 {
				tolerance = 1
			}
			if l.y-anchor.y > tolerance {
				flush()
			}
		}
		current = append(current, l)
	}
	flush()
	return rows
}
