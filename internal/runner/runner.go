// Package runner wires configuration, storage, the sessionization engine,
// sinks and auditing into a single batch run.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/txn2/log-sessionizer/pkg/accesslog"
	"github.com/txn2/log-sessionizer/pkg/audit"
	auditpostgres "github.com/txn2/log-sessionizer/pkg/audit/postgres"
	"github.com/txn2/log-sessionizer/pkg/config"
	"github.com/txn2/log-sessionizer/pkg/sessionize"
	"github.com/txn2/log-sessionizer/pkg/sink"
	sinkpostgres "github.com/txn2/log-sessionizer/pkg/sink/postgres"
	"github.com/txn2/log-sessionizer/pkg/storage"
	"github.com/txn2/log-sessionizer/pkg/storage/s3"
)

// Version is set at build time.
var Version = "dev"

const dbPingTimeout = 10 * time.Second

// Result describes a completed run.
type Result struct {
	Run   audit.Run
	Stats sessionize.Stats
}

// Runner executes sessionization runs for one configuration.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
	opener *storage.Opener
	db     *sql.DB
	ownsDB bool

	auditStore *auditpostgres.Store
	auditor    audit.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithOpener sets the storage opener used for input and output locations.
func WithOpener(o *storage.Opener) Option {
	return func(r *Runner) {
		r.opener = o
	}
}

// WithDB uses an existing, already migrated database instead of opening
// database.dsn. The caller keeps ownership of db.
func WithDB(db *sql.DB) Option {
	return func(r *Runner) {
		r.db = db
	}
}

// New prepares a Runner: it opens the database and storage backends the
// configuration asks for. Close releases them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	if r.opener == nil {
		opener, err := newOpener(ctx, cfg)
		if err != nil {
			return nil, err
		}
		r.opener = opener
	}

	if r.db == nil && cfg.Database.DSN != "" {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			_ = r.opener.Close()
			return nil, err
		}
		r.db = db
		r.ownsDB = true
	}

	auditors := audit.Multi{audit.NewSlogLogger(r.logger)}
	if cfg.Audit.Enabled && r.db != nil {
		r.auditStore = auditpostgres.New(r.db, auditpostgres.Config{RetentionDays: cfg.Audit.RetentionDays})
		auditors = append(auditors, r.auditStore)
	}
	r.auditor = auditors

	return r, nil
}

// newOpener registers the S3 provider only when a location needs it, so
// purely local runs never load AWS configuration.
func newOpener(ctx context.Context, cfg *config.Config) (*storage.Opener, error) {
	needsS3 := false
	for _, raw := range []string{cfg.Input.LogFile, cfg.Input.InactivityPeriodFile, cfg.Output.File} {
		if raw == "" {
			continue
		}
		loc, err := storage.ParseLocation(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing location: %w", err)
		}
		if loc.Scheme == storage.SchemeS3 {
			needsS3 = true
		}
	}
	if !needsS3 {
		return storage.NewOpener(), nil
	}

	s3cfg := cfg.Storage.S3
	adapter, err := s3.NewFromConfig(ctx, s3.Config{
		Region:       s3cfg.Region,
		Endpoint:     s3cfg.Endpoint,
		AccessKeyID:  s3cfg.AccessKeyID,
		SecretKey:    s3cfg.SecretAccessKey,
		UsePathStyle: s3cfg.UsePathStyle,
		ReadOnly:     s3cfg.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 storage: %w", err)
	}
	return storage.NewOpener(storage.WithProvider(storage.SchemeS3, adapter)), nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// OpenDatabase opens and pings the configured PostgreSQL database without
// applying migrations.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// Run sessionizes the configured input into the configured outputs and
// records the run with every auditor. The output is closed before Run
// returns whether or not the run succeeded.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	period, err := r.inactivityPeriod(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving inactivity period: %w", err)
	}

	engine, err := sessionize.New(sessionize.Config{
		InactivityPeriod: period,
		RequireSorted:    r.cfg.RequireSortedInput(),
	}, sessionize.WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	run := audit.NewRun(r.cfg.Input.LogFile, r.cfg.Output.File, period)
	r.logger.Info("starting sessionization",
		"run_id", run.ID,
		"input", run.Input,
		"output", run.Output,
		"inactivity_period", period,
	)

	stats, runErr := r.execute(ctx, engine, run.ID)
	run.WithCounts(stats.Events, stats.Sessions, stats.PeakActive).Finish(runErr)

	r.record(ctx, *run)

	return &Result{Run: *run, Stats: stats}, runErr
}

func (r *Runner) inactivityPeriod(ctx context.Context) (time.Duration, error) {
	if r.cfg.Input.InactivityPeriodFile == "" {
		return r.cfg.InactivityPeriod()
	}

	rc, err := r.opener.Open(ctx, r.cfg.Input.InactivityPeriodFile)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	return config.ParseInactivityPeriod(rc)
}

func (r *Runner) execute(ctx context.Context, engine *sessionize.Engine, runID string) (sessionize.Stats, error) {
	in, err := r.opener.Open(ctx, r.cfg.Input.LogFile)
	if err != nil {
		return sessionize.Stats{}, fmt.Errorf("opening input: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := r.opener.Create(ctx, r.cfg.Output.File)
	if err != nil {
		return sessionize.Stats{}, fmt.Errorf("creating output: %w", err)
	}

	sinks := []sink.Sink{sink.NewCSVWriter(out)}
	if r.db != nil {
		sinks = append(sinks, sinkpostgres.New(r.db, sinkpostgres.Config{
			RunID:     runID,
			BatchSize: r.cfg.Database.BatchSize,
		}))
	}
	fanout := sink.NewMulti(sinks...)

	stats, runErr := engine.Run(ctx, accesslog.NewReader(in), fanout)
	if runErr != nil {
		runErr = fmt.Errorf("sessionizing %s: %w", r.cfg.Input.LogFile, runErr)
	}

	// Sessions emitted before a failure are still written, as a plain
	// streaming writer would have done.
	flushErr := fanout.Flush(context.WithoutCancel(ctx))
	if flushErr != nil {
		flushErr = fmt.Errorf("flushing output: %w", flushErr)
	}
	closeErr := fanout.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("closing output: %w", closeErr)
	}

	return stats, errors.Join(runErr, flushErr, closeErr)
}

// record hands the run to every auditor. Audit failures are logged and do
// not fail the run.
func (r *Runner) record(ctx context.Context, run audit.Run) {
	ctx = context.WithoutCancel(ctx)
	if err := r.auditor.Log(ctx, run); err != nil {
		r.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
	if r.auditStore != nil {
		if err := r.auditStore.Cleanup(ctx); err != nil {
			r.logger.Warn("failed to clean up run records", "error", err)
		}
	}
}

// Close releases the storage providers and, when the Runner opened it, the
// database.
func (r *Runner) Close() error {
	errs := []error{r.auditor.Close(), r.opener.Close()}
	if r.ownsDB {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

var _ io.Closer = (*Runner)(nil)
