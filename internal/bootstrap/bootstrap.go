package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/receipt-splitter/internal/config"
	"github.com/kirillkom/receipt-splitter/internal/core/domain"
	"github.com/kirillkom/receipt-splitter/internal/core/ports"
	"github.com/kirillkom/receipt-splitter/internal/core/usecase"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/extractor/receiptform"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/pdf"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/queue/nats"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/repository/textfile"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/resilience"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/receipt-splitter/internal/observability/logging"
	"github.com/kirillkom/receipt-splitter/internal/observability/metrics"
)

type Options struct {
	// Service names the log file and metric labels.
	Service string
	// Interactive selects the flat <vendor>/<receipt>.pdf layout.
	Interactive bool
	// SkipLedger builds only the queue, for enqueue-only commands.
	SkipLedger bool
	// LedgerOnly stops after the ledger is open.
	LedgerOnly bool
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	LogPath string

	Ledger   ports.Ledger
	Queue    *nats.Queue
	Metrics  *metrics.SplitMetrics
	Splitter *usecase.SplitUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate config", err)
	}
	if opts.Service == "" {
		opts.Service = "splitter"
	}
	if opts.Interactive {
		cfg.DateDirs = false
	}

	logger, logCloser, logPath, err := logging.NewRunLogger(opts.Service, cfg.LogLevel, cfg.LogDir, time.Now())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	app := &App{Config: cfg, Logger: logger, LogPath: logPath}
	app.onClose(func() { _ = logCloser.Close() })

	executor := resilience.NewExecutor(resilience.DefaultConfig()).WithLogger(logger)

	if cfg.NATSURL != "" {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			EventsSubject:      cfg.NATSEventsSubject,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.onClose(queue.Close)
	}
	if opts.SkipLedger {
		return app, nil
	}

	ledger, err := app.openLedger(ctx, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Ledger = ledger
	if opts.LedgerOnly {
		return app, nil
	}

	writer, err := localfs.NewWriter(cfg.OutputDir, cfg.DateDirs, pdf.NewPageExporter())
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init output library: %w", err)
	}
	archiver, err := localfs.NewArchiver(cfg.ArchiveDir)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init archive: %w", err)
	}

	app.Metrics = metrics.NewSplitMetrics(opts.Service)
	splitOpts := usecase.SplitOptions{
		ProgressInterval: cfg.ProgressInterval(),
		Metrics:          app.Metrics,
		Logger:           logger,
	}
	if app.Queue != nil {
		splitOpts.Publisher = app.Queue
	}
	if cfg.ReportPath != "" {
		splitOpts.Reporter = xlsx.NewReporter(cfg.ReportPath, logger)
	}

	extractor := receiptform.NewExtractorWithOptions(receiptform.Options{ReceiptPrefix: cfg.ReceiptPrefix})
	app.Splitter = usecase.NewSplitUseCase(pdf.NewTextSource(), extractor, ledger, writer, archiver, splitOpts)
	return app, nil
}

// openLedger tolerates an unreadable ledger: the run proceeds with what could
// be loaded and a warning.
func (a *App) openLedger(ctx context.Context, executor *resilience.Executor) (ports.Ledger, error) {
	cfg := a.Config
	switch cfg.LedgerBackend {
	case config.LedgerBackendPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.onClose(func() { _ = db.Close() })
		repo := postgres.NewLedgerRepository(db, executor)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		if err := repo.Load(ctx); err != nil {
			a.Logger.Warn("ledger_unavailable", "backend", cfg.LedgerBackend, "error", err)
		}
		return repo, nil
	default:
		ledger, err := textfile.Open(cfg.LedgerPath)
		if err != nil {
			a.Logger.Warn("ledger_unavailable", "backend", cfg.LedgerBackend, "path", cfg.LedgerPath, "error", err)
		}
		return ledger, nil
	}
}

// Documents lists the PDFs waiting in the input folder.
func (a *App) Documents() ([]string, error) {
	return localfs.ListDocuments(a.Config.InputDir)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
