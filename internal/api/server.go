// Package api serves the upload and query surface over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/analytics"
	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/ingest"
	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/receipt"
)

// Receipts is the receipt query and correction service
type Receipts interface {
	ListReceipts(filter receipt.Filter) (*receipt.Page, error)
	GetReceipt(id string) (*receipt.Receipt, error)
	GetReceiptFile(id string) ([]byte, string, error)
	Versions(id string) ([]*receipt.Receipt, error)
	CorrectItem(id string, line int, c receipt.Correction) (*receipt.Receipt, error)
}

// Ingester runs uploaded files through the pipeline
type Ingester interface {
	Ingest(ctx context.Context, files []ingest.File) []ingest.Result
}

// Pantry is the pantry query and manual edit service
type Pantry interface {
	List(filter pantry.Filter) ([]*pantry.Entry, error)
	SetFrozen(key string, frozen bool) (*pantry.Entry, error)
	SetExpiry(key string, date time.Time) (*pantry.Entry, error)
	Consume(key string, amount decimal.Decimal) (*pantry.Entry, error)
}

// Analytics answers spend reports
type Analytics interface {
	Aggregate(ctx context.Context, w analytics.Window, asOf time.Time) (*analytics.Report, error)
}

// Categories is the category rule service
type Categories interface {
	ListCategories() ([]*category.Category, error)
	GetCategory(id category.ID) (*category.Category, error)
	UpsertCategory(c category.Category) (*category.Category, error)
	DeleteCategory(id category.ID) error
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Services groups the handlers' dependencies
type Services struct {
	Receipts   Receipts
	Ingester   Ingester
	Pantry     Pantry
	Analytics  Analytics
	Categories Categories
}

// Config holds request limits and the timezone analytics dates are read in
type Config struct {
	MaxFileSize int64
	MaxFiles    int
	Location    *time.Location
}

// Server handles HTTP requests
type Server struct {
	services   Services
	cfg        Config
	mux        *http.ServeMux
	timeSource TimeSource
}

// NewServer creates a new Server with default mux
func NewServer(services Services, cfg Config) *Server {
	return NewServerWithMux(services, cfg, http.NewServeMux(), &defaultTimeSource{})
}

// NewServerWithMux creates a new Server with a custom mux and time source for testing
func NewServerWithMux(services Services, cfg Config, mux *http.ServeMux, timeSrc TimeSource) *Server {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 << 20
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 20
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Server{
		services:   services,
		cfg:        cfg,
		mux:        mux,
		timeSource: timeSrc,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/receipts/{id}/file", s.handleGetReceiptFile)
	s.mux.HandleFunc("GET /api/receipts/{id}/versions", s.handleReceiptVersions)
	s.mux.HandleFunc("PATCH /api/receipts/{id}/items/{line}", s.handleCorrectItem)
	s.mux.HandleFunc("GET /api/receipts/{id}", s.handleGetReceipt)
	s.mux.HandleFunc("GET /api/receipts", s.handleListReceipts)
	s.mux.HandleFunc("POST /api/receipts", s.handleUploadReceipts)

	s.mux.HandleFunc("POST /api/pantry/{key}/frozen", s.handleSetFrozen)
	s.mux.HandleFunc("POST /api/pantry/{key}/expiry", s.handleSetExpiry)
	s.mux.HandleFunc("POST /api/pantry/{key}/consume", s.handleConsume)
	s.mux.HandleFunc("GET /api/pantry", s.handleListPantry)

	s.mux.HandleFunc("GET /api/analytics", s.handleAnalytics)

	s.mux.HandleFunc("GET /api/categories/{id}", s.handleGetCategory)
	s.mux.HandleFunc("PUT /api/categories/{id}", s.handlePutCategory)
	s.mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	s.mux.HandleFunc("GET /api/categories", s.handleListCategories)
	s.mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
}

// Handler returns the mux wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start serves HTTP until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
