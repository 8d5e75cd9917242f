package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/analytics"
	"github.com/zombor/pantry-tracker/internal/api"
	"github.com/zombor/pantry-tracker/internal/boltdb"
	"github.com/zombor/pantry-tracker/internal/category"
	"github.com/zombor/pantry-tracker/internal/events"
	"github.com/zombor/pantry-tracker/internal/ingest"
	"github.com/zombor/pantry-tracker/internal/pantry"
	"github.com/zombor/pantry-tracker/internal/receipt"
	"github.com/zombor/pantry-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type scannerConfig struct {
	kind          string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	azureEndpoint string
	azureKey      string
	azureLanguage string
}

func newScanner(ctx context.Context, cfg scannerConfig) (scanning.Scanner, error) {
	switch cfg.kind {
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.New("gemini API key is required, set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		return scanning.NewGemini(ctx, apiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	case "azure":
		slog.Info("Initializing Azure scanner...", "endpoint", cfg.azureEndpoint, "language", cfg.azureLanguage)
		return scanning.NewAzure(cfg.azureEndpoint, cfg.azureKey, cfg.azureLanguage)
	}
	return nil, fmt.Errorf("invalid scanner type %q, valid: gemini, ollama or azure", cfg.kind)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	fs := ff.NewFlagSet("pantry-tracker")
	var (
		port               = fs.IntLong("port", 8080, "HTTP server port")
		dbPath             = fs.StringLong("db", "pantry-tracker.db", "Database file path")
		storagePath        = fs.StringLong("storage", "./receipts", "Storage directory for uploaded files")
		scannerType        = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'ollama' or 'azure'")
		geminiKey          = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel        = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL          = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel        = fs.StringLong("ollama-model", "llava", "Ollama model name")
		azureEndpoint      = fs.StringLong("azure-endpoint", "", "Azure Computer Vision endpoint")
		azureKey           = fs.StringLong("azure-key", "", "Azure Computer Vision key")
		azureLanguage      = fs.StringLong("azure-language", "pl", "OCR language for Azure")
		workers            = fs.IntLong("workers", 4, "Files recognized concurrently per upload")
		maxFileSize        = fs.IntLong("max-file-size", 10, "Largest accepted file, in MB")
		maxFiles           = fs.IntLong("max-files", 20, "Most files accepted per upload")
		recognitionTimeout = fs.DurationLong("recognition-timeout", 60*time.Second, "Timeout of one recognition call")
		storeTimeout       = fs.DurationLong("store-timeout", 10*time.Second, "Timeout of one pantry or receipt write")
		reconcileAttempts  = fs.IntLong("reconcile-attempts", 3, "Attempts at a pantry or receipt write")
		tolerance          = fs.StringLong("tolerance", "0.01", "Largest difference between totals treated as equal")
		currency           = fs.StringLong("currency", "PLN", "Currency of receipts that do not state one")
		timezone           = fs.StringLong("timezone", "Europe/Warsaw", "Timezone of analytics calendar boundaries")
		defaultUnit        = fs.StringLong("default-unit", "szt", "Pantry unit of items printed without one")
		pantryGrace        = fs.DurationLong("pantry-grace", 720*time.Hour, "How long empty pantry entries are kept")
		purgeInterval      = fs.DurationLong("purge-interval", time.Hour, "How often empty pantry entries are purged")
		skipSeed           = fs.BoolLong("skip-seed", "Do not save the default categories into an empty database")
		amqpURL            = fs.StringLong("amqp-url", "", "AMQP broker URL (optional)")
		amqpExchange       = fs.StringLong("amqp-exchange", "pantry", "AMQP exchange name")
		amqpQueue          = fs.StringLong("amqp-queue", "receipt.committed", "AMQP queue name")
		logLevel           = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion        = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PANTRY_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		slog.Error("Invalid timezone", "timezone", *timezone, "error", err)
		os.Exit(1)
	}
	tol, err := decimal.NewFromString(*tolerance)
	if err != nil {
		slog.Error("Invalid tolerance", "tolerance", *tolerance, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	slog.Info("Initializing database...", "path", *dbPath)
	bolt, err := boltdb.Open(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer bolt.Close()

	receiptDB, err := receipt.NewBoltDB(bolt)
	if err != nil {
		slog.Error("Failed to initialize receipt store", "error", err)
		os.Exit(1)
	}
	categoryDB, err := category.NewBoltDB(bolt)
	if err != nil {
		slog.Error("Failed to initialize category store", "error", err)
		os.Exit(1)
	}
	pantryDB, err := pantry.NewBoltDB(bolt)
	if err != nil {
		slog.Error("Failed to initialize pantry store", "error", err)
		os.Exit(1)
	}
	cache, err := analytics.NewBoltCache(bolt)
	if err != nil {
		slog.Error("Failed to initialize analytics cache", "error", err)
		os.Exit(1)
	}

	categories := category.NewService(categoryDB)
	if !*skipSeed {
		n, err := categories.SeedDefaults()
		if err != nil {
			slog.Error("Failed to seed categories", "error", err)
			os.Exit(1)
		}
		if n > 0 {
			slog.Info("Seeded default categories", "count", n)
		}
	}

	scanner, err := newScanner(ctx, scannerConfig{
		kind:          *scannerType,
		geminiKey:     *geminiKey,
		geminiModel:   *geminiModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
		azureEndpoint: *azureEndpoint,
		azureKey:      *azureKey,
		azureLanguage: *azureLanguage,
	})
	if err != nil {
		slog.Error("Failed to initialize scanner", "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *storagePath)
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	normalizer := receipt.NewNormalizer(tol, *currency)
	pantryService := pantry.NewService(pantryDB, categories, pantry.Config{DefaultUnit: *defaultUnit, Grace: *pantryGrace})
	aggregator := analytics.NewAggregator(receiptDB, cache, loc)

	var publisher events.Publisher = events.Noop{}
	if *amqpURL != "" {
		client, err := events.NewClient(*amqpURL, *amqpExchange, *amqpQueue)
		if err != nil {
			slog.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client

		go func() {
			err := client.ConsumeReceiptCommitted(ctx, func(ctx context.Context, msg *events.ReceiptCommitted) error {
				day, err := msg.Day()
				if err != nil {
					return fmt.Errorf("%w: %v", events.ErrRejected, err)
				}
				return aggregator.Warm(ctx, day)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Message consumption failed", "error", err)
			}
		}()
	}

	coordinator := ingest.NewCoordinator(scanner, normalizer, categories, pantryService, receiptDB, store, publisher, ingest.Config{
		Workers:            *workers,
		MaxFileSize:        int64(*maxFileSize) << 20,
		RecognitionTimeout: *recognitionTimeout,
		StoreTimeout:       *storeTimeout,
		Retry:              ingest.RetryOptions{MaxAttempts: *reconcileAttempts},
	})

	go purgeLoop(ctx, pantryService, *purgeInterval)

	server := api.NewServer(api.Services{
		Receipts:   receipt.NewService(receiptDB, store, normalizer),
		Ingester:   coordinator,
		Pantry:     pantryService,
		Analytics:  aggregator,
		Categories: categories,
	}, api.Config{
		MaxFileSize: int64(*maxFileSize) << 20,
		MaxFiles:    *maxFiles,
		Location:    loc,
	})

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down...")
}

// purgeLoop removes pantry entries whose grace period has passed
func purgeLoop(ctx context.Context, service *pantry.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := service.Purge(ctx); err != nil {
				slog.Error("Pantry purge failed", "error", err)
			}
		}
	}
}
