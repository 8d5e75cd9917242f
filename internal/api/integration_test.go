package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/pantry-tracker/internal/analytics"
	"github.com/zombor/pantry-tracker/internal/boltdb"
	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/events"
	"github.com/zombor/pantry-tracker/internal/ingest"
	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/receipt"
	"github.com/zombor/pantry-tracker/internal/scanning"
)

// textScanner returns the same OCR text for every file
type textScanner struct {
	text  string
	calls int32
}

func (s *textScanner) Recognize(ctx context.Context, data []byte, contentType string) (*scanning.Recognition, error) {
	atomic.AddInt32(&s.calls, 1)
	return &scanning.Recognition{Text: s.text}, nil
}

func (s *textScanner) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		scanner  *textScanner
		pantryDB *pantry.BoltDB
		ghServer *ghttp.Server
	)

	upload := func(name string, content []byte) []ingest.Result {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(content)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		req, err := http.NewRequest(http.MethodPost, ghServer.URL()+"/api/receipts", body)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var out struct {
			Results []ingest.Result `json:"results"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
		return out.Results
	}

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		bolt, err := boltdb.Open(filepath.Join(dir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(bolt.Close)

		receiptDB, err := receipt.NewBoltDB(bolt)
		Expect(err).NotTo(HaveOccurred())
		storage, err := receipt.NewLocalStorage(filepath.Join(dir, "receipts"))
		Expect(err).NotTo(HaveOccurred())
		categoryDB, err := category.NewBoltDB(bolt)
		Expect(err).NotTo(HaveOccurred())
		pantryDB, err = pantry.NewBoltDB(bolt)
		Expect(err).NotTo(HaveOccurred())
		cache, err := analytics.NewBoltCache(bolt)
		Expect(err).NotTo(HaveOccurred())

		categories := category.NewService(categoryDB)
		_, err = categories.SeedDefaults()
		Expect(err).NotTo(HaveOccurred())

		normalizer := receipt.NewNormalizer(receipt.DefaultTolerance, "PLN")
		pantryService := pantry.NewService(pantryDB, categories, pantry.Config{Grace: 24 * time.Hour})

		scanner = &textScanner{text: "BIEDRONKA\nul. Polna 1, Warszawa\n2024-03-20 18:02\nPARAGON FISKALNY\n" +
			"Mleko 2 l x 3,99 7,98 C\nChleb 4,50 C\nSUMA PTU 0,62\nSUMA PLN 12,48\nKarta płatnicza"}

		coordinator := ingest.NewCoordinator(scanner, normalizer, categories, pantryService,
			receiptDB, storage, events.Noop{}, ingest.DefaultConfig())

		server := NewServer(Services{
			Receipts:   receipt.NewService(receiptDB, storage, normalizer),
			Ingester:   coordinator,
			Pantry:     pantryService,
			Analytics:  analytics.NewAggregator(receiptDB, cache, time.UTC),
			Categories: categories,
		}, Config{})

		ghServer = ghttp.NewServer()
		DeferCleanup(ghServer.Close)
		ghServer.AppendHandlers(server.ServeHTTP, server.ServeHTTP, server.ServeHTTP, server.ServeHTTP)
	})

	It("should carry an uploaded receipt into the pantry and analytics", func() {
		fileContent := []byte("%PDF-1.4 ... fake pdf content ...")

		// --- Step 1: upload ---
		results := upload("paragon.pdf", fileContent)
		Expect(results).To(HaveLen(1))
		Expect(results[0].Outcome).To(Equal(ingest.Committed))

		r := results[0].Receipt
		Expect(r.StoreName).To(Equal("BIEDRONKA"))
		Expect(r.PaymentMethod).To(Equal("card"))
		Expect(r.Total.Equal(dec("12.48"))).To(BeTrue())
		Expect(r.Flags).To(BeEmpty())
		Expect(r.Items[0].Category).To(Equal("dairy"))

		// --- Step 2: pantry ---
		resp, err := http.Get(ghServer.URL() + "/api/pantry?q=" + url.QueryEscape("mleko"))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var entries []pantry.Entry
		Expect(json.NewDecoder(resp.Body).Decode(&entries)).To(Succeed())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Key).To(Equal("mleko|l"))
		Expect(entries[0].Quantity.Equal(dec("2"))).To(BeTrue())

		// --- Step 3: analytics ---
		resp, err = http.Get(ghServer.URL() + "/api/analytics?window=week&as_of=2024-03-20")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		var report analytics.Report
		Expect(json.NewDecoder(resp.Body).Decode(&report)).To(Succeed())
		Expect(report.TotalSpend.Equal(dec("12.48"))).To(BeTrue())
		Expect(report.Categories).To(HaveLen(2))

		// --- Step 4: re-upload ---
		again := upload("copy.pdf", fileContent)
		Expect(again[0].Outcome).To(Equal(ingest.Duplicate))
		Expect(atomic.LoadInt32(&scanner.calls)).To(Equal(int32(1)))

		e, err := pantryDB.GetEntry("mleko|l")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Quantity.Equal(dec("2"))).To(BeTrue())
	})
})
