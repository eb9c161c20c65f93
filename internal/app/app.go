package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"dms/internal/config"
	"dms/internal/database"
	"dms/internal/dms"
	"dms/internal/encryption"
	"dms/internal/events"
	"dms/internal/gateway"
	"dms/internal/metrics"
	"dms/internal/sessions"
)

// DMSApp is the application layer between the CLI and dms.Service.
// It constructs all dependencies from config, runs the event consumer for
// the lifetime of the app, and releases everything on Close.
type DMSApp struct {
	cfg      *config.Config
	db       *database.SQLiteDatabase
	gateway  dms.Gateway
	sessions sessions.Store
	queue    *events.Queue
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	service  *dms.Service
	op       *Operation
	logger   dms.Logger
	logFile  *os.File

	stopQueue context.CancelFunc
	queueDone chan struct{}
}

// NewDMSApp creates a fully wired DMSApp from the given config. Log records
// are also written to console when it is non-nil.
// The caller must call Close when done.
func NewDMSApp(ctx context.Context, cfg *config.Config, op *Operation, console io.Writer) (*DMSApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}

	gw, err := gateway.NewGatewayFromConfig(ctx, cfg.Gateway, cfg.Upload.PartSize, sealer)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating gateway: %w", err)
	}

	clock := dms.RealClock{}
	store, err := sessions.NewStoreFromConfig(cfg.Sessions, clock)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session store: %w", err)
	}

	zl, logFile, err := newLogger(cfg.LogDir, op.ID, cfg.LogLevel, console)
	if err != nil {
		store.Close()
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &zerologAdapter{l: zl}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	sinks := []events.Sink{events.LogSink{Logger: logger}}
	if cfg.Events.Notifications {
		sinks = append(sinks, events.NewNotificationSink(db, dms.UUIDGenerator{}, clock))
	}
	queue := events.NewQueue(cfg.Events.QueueSize, logger, m, sinks...)

	svc := dms.NewService(dms.Dependencies{
		Database: db,
		Gateway:  gw,
		Sessions: store,
		Events:   queue,
		Logger:   logger,
		Clock:    clock,
		IDs:      dms.UUIDGenerator{},
		Observer: m,
	}, serviceOptions(cfg))

	a := &DMSApp{
		cfg:       cfg,
		db:        db,
		gateway:   gw,
		sessions:  store,
		queue:     queue,
		registry:  registry,
		metrics:   m,
		service:   svc,
		op:        op,
		logger:    logger,
		logFile:   logFile,
		queueDone: make(chan struct{}),
	}

	var qctx context.Context
	qctx, a.stopQueue = context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer close(a.queueDone)
		_ = queue.Run(qctx)
	}()

	logger.Info("run started", "command", op.Command, "actor", op.Actor)
	return a, nil
}

// serviceOptions maps the config sections onto dms.Options.
func serviceOptions(cfg *config.Config) dms.Options {
	return dms.Options{
		RetentionWindow:    cfg.Lifecycle.RetentionWindow.Duration,
		BatchWorkers:       cfg.Lifecycle.BatchWorkers,
		PurgeBatchSize:     cfg.Lifecycle.PurgeBatchSize,
		ColdRestoreDays:    cfg.Lifecycle.ColdRestoreDays,
		PartURLExpiry:      cfg.Upload.PartURLExpiry.Duration,
		MultipartThreshold: cfg.Upload.MultipartThreshold,
		PartSize:           cfg.Upload.PartSize,
	}
}

// Service returns the wired document service.
func (a *DMSApp) Service() *dms.Service { return a.service }

// Gatherer returns the registry the app's metrics are registered with.
func (a *DMSApp) Gatherer() prometheus.Gatherer { return a.registry }

// Operation returns the CLI invocation this app serves.
func (a *DMSApp) Operation() *Operation { return a.op }

// Close delivers pending events, then closes the session store, the database
// and the log file. It returns the first error encountered.
func (a *DMSApp) Close() error {
	var firstErr error

	a.stopQueue()
	<-a.queueDone
	if n := a.queue.Dropped(); n > 0 {
		a.logger.Warn("events dropped during run", "count", n)
	}

	if err := a.sessions.Close(); err != nil {
		firstErr = fmt.Errorf("closing session store: %w", err)
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	a.logger.Info("run finished", "command", a.op.Command, "status", a.op.Status, "elapsed", a.op.Elapsed())
	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
