package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/events"
	"github.com/zombor/pantry-tracker/internal/keylock"
	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/receipt"
	"github.com/zombor/pantry-tracker/internal/scanning"
)

// receiptNamespace derives receipt IDs from content hashes, so a retried
// upload of the same file always targets the same receipt.
var receiptNamespace = uuid.MustParse("6f1d3c4e-2a8b-5e7f-9c0d-1b2a3f4e5d6c")

// ReceiptID returns the receipt ID for a content hash
func ReceiptID(hash string) string {
	return uuid.NewSHA1(receiptNamespace, []byte(hash)).String()
}

// ReceiptStore is the part of the receipt log the coordinator writes
type ReceiptStore interface {
	FindByHash(hash string) (*receipt.Receipt, error)
	SaveReceipt(r *receipt.Receipt) error
}

// Rules hands out the classification engine for the current rule set
type Rules interface {
	Engine() (*category.Engine, error)
}

// Reconciler folds receipts into the pantry
type Reconciler interface {
	Reconcile(ctx context.Context, r *receipt.Receipt) (*pantry.Delta, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Config holds the coordinator limits
type Config struct {
	Workers            int
	MaxFileSize        int64
	RecognitionTimeout time.Duration
	StoreTimeout       time.Duration
	Retry              RetryOptions
}

// DefaultConfig returns the limits used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Workers:            4,
		MaxFileSize:        10 << 20,
		RecognitionTimeout: 60 * time.Second,
		StoreTimeout:       10 * time.Second,
		Retry:              RetryOptions{MaxAttempts: 3},
	}
}

// Coordinator runs uploaded files through the ingestion pipeline
type Coordinator struct {
	scanner    scanning.Scanner
	normalizer *receipt.Normalizer
	rules      Rules
	pantry     Reconciler
	receipts   ReceiptStore
	storage    receipt.Storage
	publisher  events.Publisher
	cfg        Config
	hashLocks  *keylock.KeyLock
	timeSource TimeSource
}

// NewCoordinator creates a Coordinator with the default time source
func NewCoordinator(scanner scanning.Scanner, normalizer *receipt.Normalizer, rules Rules, reconciler Reconciler,
	receipts ReceiptStore, storage receipt.Storage, publisher events.Publisher, cfg Config) *Coordinator {
	return NewCoordinatorWithDeps(scanner, normalizer, rules, reconciler, receipts, storage, publisher, cfg, &defaultTimeSource{})
}

// NewCoordinatorWithDeps creates a Coordinator with custom dependencies for testing
func NewCoordinatorWithDeps(scanner scanning.Scanner, normalizer *receipt.Normalizer, rules Rules, reconciler Reconciler,
	receipts ReceiptStore, storage receipt.Storage, publisher events.Publisher, cfg Config, timeSrc TimeSource) *Coordinator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.RecognitionTimeout <= 0 {
		cfg.RecognitionTimeout = def.RecognitionTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Coordinator{
		scanner:    scanner,
		normalizer: normalizer,
		rules:      rules,
		pantry:     reconciler,
		receipts:   receipts,
		storage:    storage,
		publisher:  publisher,
		cfg:        cfg,
		hashLocks:  keylock.New(),
		timeSource: timeSrc,
	}
}

// Ingest processes a batch and returns one result per file in submission order.
// Cancelling ctx stops new files from starting; files already past recognition
// finish reconciliation and commit.
func (c *Coordinator) Ingest(ctx context.Context, files []File) []Result {
	results := make([]Result, len(files))

	engine, err := c.rules.Engine()
	if err != nil {
		slog.Error("Failed to load category rules", "error", err)
		for i, f := range files {
			results[i] = failed(f.Name, StageCategorize, "rules unavailable", err)
		}
		return results
	}

	// identical files run as one group on one worker, earliest submission first,
	// so later copies see the first one committed
	hashes := make([]string, len(files))
	groups := make(map[string][]int, len(files))
	for i, f := range files {
		hashes[i] = contentHash(f.Data)
		groups[hashes[i]] = append(groups[hashes[i]], i)
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i := range files {
		group := groups[hashes[i]]
		if group[0] != i {
			continue
		}
		if ctx.Err() != nil {
			for _, j := range group {
				results[j] = failed(files[j].Name, StageUpload, ReasonCancelled, ctx.Err())
			}
			continue
		}
		g.Go(func() error {
			for _, j := range group {
				// a slot may free up only after the batch was cancelled
				if ctx.Err() != nil {
					results[j] = failed(files[j].Name, StageUpload, ReasonCancelled, ctx.Err())
					continue
				}
				results[j] = c.process(ctx, engine, files[j], hashes[j])
			}
			return nil
		})
	}
	_ = g.Wait()

	committed, duplicates := 0, 0
	for _, r := range results {
		switch r.Outcome {
		case Committed:
			committed++
		case Duplicate:
			duplicates++
		}
	}
	slog.Info("Ingested batch",
		"files", len(files),
		"committed", committed,
		"duplicates", duplicates,
		"failed", len(files)-committed-duplicates)
	return results
}

// process runs one file through the pipeline. It never panics the batch and
// always returns a result.
func (c *Coordinator) process(ctx context.Context, engine *category.Engine, f File, hash string) Result {
	contentType := scanning.NormalizeContentType(f.ContentType)
	switch {
	case len(f.Data) == 0:
		return failed(f.Name, StageUpload, "empty file", nil)
	case int64(len(f.Data)) > c.cfg.MaxFileSize:
		return failed(f.Name, StageUpload, "file too large", nil)
	case !scanning.SupportedContentType(contentType):
		return failed(f.Name, StageUpload, "unsupported format", scanning.ErrUnsupportedFormat)
	}

	// identical files uploaded by concurrent batches wait for each other
	c.hashLocks.Lock(hash)
	defer c.hashLocks.Unlock(hash)

	existing, err := c.receipts.FindByHash(hash)
	switch {
	case err == nil && existing.Status == receipt.StatusCommitted:
		slog.Info("Duplicate upload", "file", f.Name, "receipt_id", existing.ID)
		return Result{File: f.Name, Outcome: Duplicate, Receipt: existing}
	case err != nil && !errors.Is(err, receipt.ErrNotFound):
		return failed(f.Name, StageUpload, ReasonUnavailable, err)
	}

	id := ReceiptID(hash)
	logger := slog.With("file", f.Name, "receipt_id", id)

	sourceFile, err := c.storage.Save(receipt.SourceFileName(id, f.Name), f.Data)
	if err != nil {
		logger.Error("Failed to store source file", "error", err)
		return failed(f.Name, StageUpload, ReasonUnavailable, err)
	}

	rec, res, ok := c.recognize(ctx, f, contentType)
	if !ok {
		c.discard(sourceFile)
		return res
	}

	r, err := c.normalizer.Normalize(rec)
	if err != nil {
		c.discard(sourceFile)
		var perr *receipt.ParseError
		if errors.As(err, &perr) {
			return failed(f.Name, StageNormalize, perr.Reason, err)
		}
		return failed(f.Name, StageNormalize, "unusable recognition output", err)
	}
	now := c.timeSource.Now()
	r.ID = id
	r.SourceFile = sourceFile
	r.ContentType = contentType
	r.ContentHash = hash
	r.CreatedAt = now
	r.UpdatedAt = now

	receipt.Categorize(r, engine)

	if ctx.Err() != nil {
		c.discard(sourceFile)
		return failed(f.Name, StageReconcile, ReasonCancelled, ctx.Err())
	}

	// reconcile and commit run to completion once started
	storeCtx := context.WithoutCancel(ctx)

	var delta *pantry.Delta
	err = withRetry(storeCtx, c.cfg.Retry, c.cfg.StoreTimeout, func(ctx context.Context) error {
		d, err := c.pantry.Reconcile(ctx, r)
		if err != nil {
			return err
		}
		delta = d
		return nil
	})
	if err != nil {
		logger.Error("Failed to reconcile pantry", "error", err)
		return failed(f.Name, StageReconcile, storeReason(err), err)
	}
	r.Status = receipt.StatusCommitted
	r.Version = 1
	err = withRetry(storeCtx, c.cfg.Retry, c.cfg.StoreTimeout, func(ctx context.Context) error {
		return c.receipts.SaveReceipt(r)
	})
	if err != nil {
		logger.Error("Failed to commit receipt", "error", err)
		return failed(f.Name, StageCommit, storeReason(err), err)
	}

	logger.Info("Committed receipt",
		"store", r.StoreName,
		"items", len(r.Items),
		"total", r.Total.String(),
		"flags", r.Flags)

	if err := c.publisher.PublishReceiptCommitted(storeCtx, events.NewReceiptCommitted(r)); err != nil {
		logger.Warn("Failed to publish receipt event", "error", err)
	}

	return Result{File: f.Name, Outcome: Committed, Receipt: r, Delta: delta}
}

// recognize calls the engine under the recognition timeout. The call is not
// interrupted by batch cancellation.
func (c *Coordinator) recognize(ctx context.Context, f File, contentType string) (*scanning.Recognition, Result, bool) {
	if ctx.Err() != nil {
		return nil, failed(f.Name, StageRecognition, ReasonCancelled, ctx.Err()), false
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RecognitionTimeout)
	defer cancel()

	rec, err := c.scanner.Recognize(rctx, f.Data, contentType)
	if err == nil && rctx.Err() != nil {
		err = rctx.Err()
	}
	if err != nil {
		slog.Warn("Recognition failed", "file", f.Name, "error", err)
		var rerr *scanning.RecognitionError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, failed(f.Name, StageRecognition, ReasonTimeout, err), false
		case errors.As(err, &rerr):
			return nil, failed(f.Name, StageRecognition, rerr.Reason, err), false
		default:
			return nil, failed(f.Name, StageRecognition, "engine unavailable", err), false
		}
	}
	if rec == nil {
		return nil, failed(f.Name, StageRecognition, "no output", nil), false
	}
	return rec, Result{}, true
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// discard removes the source file of a receipt that will not be committed
func (c *Coordinator) discard(name string) {
	if err := c.storage.Delete(name); err != nil {
		slog.Warn("Failed to remove source file", "file", name, "error", err)
	}
}

func storeReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonUnavailable
}
