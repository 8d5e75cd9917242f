package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/pantry-tracker/internal/ingest"
	"github.com/zombor/pantry-tracker/internal/receipt"
)

// uploadResponse lists one result per uploaded file, in upload order
type uploadResponse struct {
	Results []ingest.Result `json:"results"`
}

// contentTypeFor returns the declared type of a part, guessing from the
// extension when the client sent none
func contentTypeFor(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// handleUploadReceipts ingests every "file" part of a multipart request
func (s *Server) handleUploadReceipts(w http.ResponseWriter, r *http.Request) {
	// parts above the per-file limit are still read up to one byte over, so
	// the pipeline can report them as too large
	maxRequest := int64(s.cfg.MaxFiles) * (s.cfg.MaxFileSize + 1<<20)
	r.Body = http.MaxBytesReader(w, r.Body, maxRequest)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, fmt.Sprintf("Upload is too large. Send at most %d files of %d MB each.",
				s.cfg.MaxFiles, s.cfg.MaxFileSize>>20), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		jsonError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
		return
	}
	if len(headers) > s.cfg.MaxFiles {
		jsonError(w, fmt.Sprintf("Too many files. Send at most %d per request.", s.cfg.MaxFiles), http.StatusBadRequest)
		return
	}

	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		data, err := readPart(header, s.cfg.MaxFileSize)
		if err != nil {
			slog.Error("Error reading file data", "error", err, "filename", header.Filename)
			jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
			return
		}
		files = append(files, ingest.File{
			Name:        header.Filename,
			ContentType: contentTypeFor(header),
			Data:        data,
		})
	}

	results := s.services.Ingester.Ingest(r.Context(), files)
	writeJSON(w, http.StatusOK, uploadResponse{Results: results})
}

// readPart reads at most limit+1 bytes of a part
func readPart(header *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit+1))
}

// handleListReceipts returns one page of receipts matching the query
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := receipt.Filter{
		Flag:  receipt.Flag(q.Get("flag")),
		Store: q.Get("store"),
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(name); v != "" {
			d, err := receipt.ParseDate(v)
			if err != nil {
				jsonError(w, fmt.Sprintf("Invalid %s date", name), http.StatusBadRequest)
				return
			}
			*dst = &d
		}
	}
	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		jsonError(w, "Invalid page", http.StatusBadRequest)
		return
	}
	if filter.PerPage, err = intParam(q.Get("per_page")); err != nil {
		jsonError(w, "Invalid per_page", http.StatusBadRequest)
		return
	}

	page, err := s.services.Receipts.ListReceipts(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.services.Receipts.GetReceipt(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetReceiptFile returns the uploaded source file of a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.services.Receipts.GetReceiptFile(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleReceiptVersions returns every stored version of a receipt
func (s *Server) handleReceiptVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.services.Receipts.Versions(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// handleCorrectItem applies a manual correction to one item
func (s *Server) handleCorrectItem(w http.ResponseWriter, r *http.Request) {
	line, err := strconv.Atoi(r.PathValue("line"))
	if err != nil || line < 1 {
		jsonError(w, "Invalid line number", http.StatusBadRequest)
		return
	}

	var c receipt.Correction
	if !decodeBody(w, r, &c) {
		return
	}

	rec, err := s.services.Receipts.CorrectItem(r.PathValue("id"), line, c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
