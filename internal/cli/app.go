// Package cli implements the immobilog command tree. Each invocation loads
// configuration, opens the configured record store, runs one command against
// core.Service and releases everything again.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"

	"immobilog/internal/adapters/exports"
	"immobilog/internal/blob"
	"immobilog/internal/config"
	"immobilog/internal/core"
	"immobilog/internal/dosing"
	"immobilog/internal/export"
	"immobilog/internal/logging"
	"immobilog/pkg/domain"
)

// ServiceName tags every log entry.
const ServiceName = "immobilog"

// App holds the per-invocation dependencies.
type App struct {
	configPath string
	noColor    bool

	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	svc      *core.Service
	blobs    blob.Store
	render   export.Options
	ownsKV   bool

	// injected for tests
	kv      domain.KeyValueStore
	store   blob.Store
	clock   core.Clock
	ids     core.IDGenerator
	logSink io.Writer
}

// Option configures an App.
type Option func(*App)

// WithKeyValueStore uses kv instead of the configured storage driver. The
// caller keeps ownership of kv.
func WithKeyValueStore(kv domain.KeyValueStore) Option {
	return func(a *App) { a.kv = kv }
}

// WithBlobStore uses store instead of the configured blob driver.
func WithBlobStore(store blob.Store) Option {
	return func(a *App) { a.store = store }
}

// WithClock overrides the service clock.
func WithClock(c core.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(ids core.IDGenerator) Option {
	return func(a *App) { a.ids = ids }
}

// WithLogSink sends logs to w rather than stderr.
func WithLogSink(w io.Writer) Option {
	return func(a *App) { a.logSink = w }
}

// NewApp returns an App that is set up lazily by the root command.
func NewApp(opts ...Option) *App {
	a := &App{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	sink := a.logSink
	if sink == nil {
		sink = os.Stderr
	}
	a.logger = logging.NewWriter(sink, cfg.Log.Level, cfg.Log.Format, ServiceName)

	a.registry = prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(a.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	loc := time.Local
	if cfg.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("%s: %w", config.KeyTimezone, err)
		}
	}
	a.render = export.Options{Location: loc}

	opts := []core.ServiceOption{
		core.WithLogger(a.logger),
		core.WithMetricsRecorder(recorder),
	}
	if cfg.ProtocolsFile != "" {
		table, err := dosing.LoadFile(cfg.ProtocolsFile)
		if err != nil {
			return err
		}
		opts = append(opts, core.WithProtocols(table))
	}
	if a.clock != nil {
		opts = append(opts, core.WithClock(a.clock))
		a.render.Now = a.clock.Now
	}
	if a.ids != nil {
		opts = append(opts, core.WithIDGenerator(a.ids))
	}

	kv := a.kv
	if kv == nil {
		kv, err = core.OpenKeyValueStore(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
		}
		a.ownsKV = true
	}
	a.svc = core.NewService(kv, opts...)
	a.logger.Debug("configuration loaded",
		zap.String("config_file", cfg.File),
		zap.String("storage_driver", string(cfg.Storage.Driver)),
		zap.String("blob_driver", string(cfg.Blob.Driver)))
	return nil
}

// service returns the configured service. Commands only run after setup.
func (a *App) service() *core.Service { return a.svc }

// blobStore opens the artifact store on first use so commands that never
// export do not touch the filesystem or S3.
func (a *App) blobStore(ctx context.Context) (blob.Store, error) {
	if a.blobs != nil {
		return a.blobs, nil
	}
	if a.store != nil {
		a.blobs = a.store
		return a.blobs, nil
	}
	store, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, err
	}
	a.blobs = store
	return store, nil
}

func (a *App) publisher(ctx context.Context) (*exports.Publisher, error) {
	store, err := a.blobStore(ctx)
	if err != nil {
		return nil, err
	}
	return exports.NewPublisher(a.svc, store,
		exports.WithLogger(a.logger.Named("exports")),
		exports.WithRenderOptions(a.render),
	), nil
}

// Close writes the metrics file, if configured, and releases the store.
func (a *App) Close() error {
	var errs []error
	if a.registry != nil && a.cfg.MetricsFile != "" {
		if err := a.writeMetricsFile(a.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	if a.svc != nil && a.ownsKV {
		if err := a.svc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	a.svc = nil
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) writeMetricsFile(path string) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := writeMetrics(f, families); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeMetrics(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func (a *App) stamp(t time.Time) string {
	loc := a.render.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(export.DateTimeLayout)
}
