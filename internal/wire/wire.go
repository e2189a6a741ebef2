// Package wire provides dependency injection for the wfm application.
// It creates singleton services with lazy initialization.
package wire

import (
	"context"
	"database/sql"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	cliadapter "github.com/example/wfm/internal/adapters/cli"
	kafkabus "github.com/example/wfm/internal/adapters/kafka"
	pebblekv "github.com/example/wfm/internal/adapters/pebble"
	"github.com/example/wfm/internal/adapters/sqlite"
	"github.com/example/wfm/internal/app"
	"github.com/example/wfm/internal/config"
	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/db"
	"github.com/example/wfm/internal/logging"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

var (
	cfg    *config.Config
	logger zerolog.Logger

	database *sql.DB
	kv       *pebblekv.KVStore
	producer *kafkabus.Publisher

	records  *sqlite.RecordRepository
	projects *sqlite.ProjectRepository
	ledger   *sqlite.SequenceCounterRepository
	audit    *sqlite.AuditLogRepository
	opts     app.NumberingOptions

	recordService    primary.RecordService
	referenceService primary.ReferenceService
	legacyAllocator  *app.NonAtomicAllocator

	// Built by initNumbering.
	allocator       *app.AtomicAllocator
	backfillService primary.BackfillService
	renumberService primary.RenumberService
	router          *app.EventRouter

	once    sync.Once
	initErr error

	numberingMu sync.Mutex
)

// Init builds the services every command needs. Commands call it first so
// configuration and storage errors surface as command errors. The KV store
// is opened later, by the first command that allocates.
func Init() error {
	once.Do(func() { initErr = initServices() })
	return initErr
}

// initServices initializes the database-backed services.
// This is called once via sync.Once.
func initServices() error {
	wd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "failed to get working directory")
	}
	cfg, err = config.LoadConfig(wd)
	if err != nil {
		return err
	}
	logger = logging.New(os.Stderr, cfg.LogLevel)

	database, err = db.Open(cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}

	// Create repository adapters (secondary ports) - sqlite adapters with injected DB
	records = sqlite.NewRecordRepository(database)
	projects = sqlite.NewProjectRepository(database)
	branches := sqlite.NewBranchRepository(database)
	ledger = sqlite.NewSequenceCounterRepository(database)
	audit = sqlite.NewAuditLogRepository(database)

	opts = app.NumberingOptionsFromConfig(cfg)
	legacyAllocator = app.NewNonAtomicAllocator(ledger, opts)

	// With a bus the triggers run in `wfm serve` and writers never touch the
	// KV store; without one they run inline.
	var publisher secondary.EventPublisher = inlinePublisher{}
	if cfg.Kafka.Enabled() {
		producer = kafkabus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = producer
	}

	recordService = app.NewRecordService(records, audit, publisher, logger)
	referenceService = app.NewReferenceService(branches, projects)
	return nil
}

// initNumbering opens the KV store and builds the allocator and the
// triggers. Pebble locks its directory, so only one process at a time
// gets past this point for a given kv_path. A failed open is retried by
// the next caller.
func initNumbering() error {
	if err := Init(); err != nil {
		return err
	}
	numberingMu.Lock()
	defer numberingMu.Unlock()
	if router != nil {
		return nil
	}

	store, err := pebblekv.Open(cfg.KVPath, pebblekv.Options{Logger: logger})
	if err != nil {
		return err
	}
	kv = store

	allocator = app.NewAtomicAllocator(kv, ledger, opts, logger)
	locks := app.NewLockManager(kv, logger)

	assigner := app.NewCreationAssigner(records, projects, audit, allocator, opts, logger)
	backfillService = app.NewBackfillService(records, projects, audit, allocator, opts, logger)
	renumber := app.NewRenumberService(records, projects, audit, ledger, allocator, opts, logger)
	renumberService = renumber
	guard := app.NewDuplicateGuard(records, projects, audit, locks, renumber, opts, logger)
	router = app.NewEventRouter(assigner, guard, logger)
	return nil
}

// inlinePublisher hands events straight to the trigger router.
type inlinePublisher struct{}

func (inlinePublisher) Publish(ctx context.Context, event secondary.RecordEvent) error {
	if err := initNumbering(); err != nil {
		return err
	}
	return router.Publish(ctx, event)
}

// Close releases the database, the KV store and the producer.
func Close() error {
	var errs []error
	if producer != nil {
		errs = append(errs, producer.Close())
	}
	if kv != nil {
		errs = append(errs, kv.Close())
	}
	if database != nil {
		errs = append(errs, database.Close())
	}
	var out error
	for _, err := range errs {
		out = errors.CombineErrors(out, err)
	}
	return out
}

// Config returns the loaded configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the process logger.
func Logger() zerolog.Logger {
	return logger
}

// Context tags ctx with the configured actor for the audit log.
func Context(ctx context.Context) context.Context {
	actor := cfg.Actor
	if actor == "" {
		actor = os.Getenv("USER")
	}
	if actor == "" {
		return ctx
	}
	return ctxutil.WithActorID(ctx, actor)
}

// BackfillService returns the singleton BackfillService instance.
func BackfillService() (primary.BackfillService, error) {
	if err := initNumbering(); err != nil {
		return nil, err
	}
	return backfillService, nil
}

// Consumer returns a Kafka consumer feeding the trigger router, or nil when
// no brokers are configured.
func Consumer() (*kafkabus.Consumer, error) {
	if !cfg.Kafka.Enabled() {
		return nil, nil
	}
	if err := initNumbering(); err != nil {
		return nil, err
	}
	return kafkabus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, router, logger), nil
}

// RecordAdapter returns a new RecordAdapter writing to stdout.
// Each call creates a new adapter (adapters are stateless translators).
func RecordAdapter() *cliadapter.RecordAdapter {
	return RecordAdapterWithOutput(os.Stdout)
}

// RecordAdapterWithOutput returns a new RecordAdapter writing to the given output.
func RecordAdapterWithOutput(out io.Writer) *cliadapter.RecordAdapter {
	return cliadapter.NewRecordAdapter(recordService, out)
}

// ReferenceAdapter returns a new ReferenceAdapter writing to stdout.
func ReferenceAdapter() *cliadapter.ReferenceAdapter {
	return cliadapter.NewReferenceAdapter(referenceService, os.Stdout)
}

// NumberingAdapter returns a new NumberingAdapter writing to stdout.
func NumberingAdapter() (*cliadapter.NumberingAdapter, error) {
	return NumberingAdapterWithOutput(os.Stdout)
}

// NumberingAdapterWithOutput returns a new NumberingAdapter writing to the given output.
func NumberingAdapterWithOutput(out io.Writer) (*cliadapter.NumberingAdapter, error) {
	if err := initNumbering(); err != nil {
		return nil, err
	}
	return cliadapter.NewNumberingAdapter(cliadapter.NumberingServices{
		Allocator: allocator,
		Legacy:    legacyAllocator,
		Counters:  allocator,
		Backfill:  backfillService,
		Renumber:  renumberService,
	}, out), nil
}
