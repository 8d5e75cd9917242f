package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// maxEdge bounds the longest side of an image sent to a recognition engine
const maxEdge = 2400

var supportedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
}

// NormalizeContentType lowercases a MIME type and strips parameters
func NormalizeContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return ct
}

// SupportedContentType reports whether a file of this MIME type can be recognized
func SupportedContentType(contentType string) bool {
	return supportedContentTypes[NormalizeContentType(contentType)]
}

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEICFormat checks the ftyp box for a HEIC/HEIF brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// decodeImage turns any supported upload into an image, honoring EXIF orientation
func decodeImage(data []byte, contentType string) (image.Image, error) {
	mimeType := NormalizeContentType(contentType)

	switch {
	case mimeType == "application/pdf":
		return pdfToImage(data)
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// enhance prepares a photographed receipt for printed-text OCR
func enhance(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() > maxEdge || b.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)
	out = imaging.Sharpen(out, 1.0)
	return out
}

// prepareImageData converts an upload to PNG, optionally enhanced for OCR.
// Decoding failures are reported as RecognitionError.
func prepareImageData(data []byte, contentType string, forOCR bool) ([]byte, error) {
	if !SupportedContentType(contentType) && !isHEICFormat(data) {
		return nil, &RecognitionError{Reason: "unsupported format", Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, contentType)}
	}

	img, err := decodeImage(data, contentType)
	if err != nil {
		return nil, &RecognitionError{Reason: "unreadable file", Err: err}
	}

	if forOCR {
		img = enhance(img)
	} else if b := img.Bounds(); b.Dx() > maxEdge || b.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
