package cli

import (
	"fmt"

	"github.com/harun/toolgate/internal/config"
	"github.com/harun/toolgate/internal/logger"
	"github.com/harun/toolgate/internal/metrics"
	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/harun/toolgate/pkg/parser"
	"github.com/harun/toolgate/pkg/registry"
	"github.com/harun/toolgate/pkg/tsd"
)

// runtime is the assembled dispatch pipeline shared by the serve and
// stdio commands.
type runtime struct {
	cfg        *config.Config
	log        *logger.Logger
	metrics    *metrics.Metrics
	store      *tsd.Store
	applier    *tsd.Applier
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
}

// buildRuntime loads configuration and wires the pipeline. Console
// logging goes to stderr, so it is safe for the stdio transport too.
func buildRuntime(console bool) (*runtime, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   console,
		Pretty:    console,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zlog := log.GetZerolog()

	limiter := tsd.NewRateLimiter(zlog)
	m := metrics.NewMetrics(func() float64 {
		return float64(limiter.Len())
	})

	store, err := tsd.LoadDir(cfg.TSD.Dir, zlog)
	if err != nil {
		log.Close()
		return nil, err
	}
	if cfg.TSD.Watch {
		if err := store.Watch(); err != nil {
			zlog.Warn().Err(err).Msg("TSD hot reload unavailable")
		}
	}

	reg := registry.New(zlog)
	if err := registry.RegisterBuiltins(reg); err != nil {
		store.Close()
		log.Close()
		return nil, err
	}

	router := parser.NewRouter(parser.ModeFromFlag(cfg.Parser.Embedding), zlog)
	router.SetKnownToolNames(reg.ListToolNames())

	applier := tsd.NewApplier(tsd.ApplierConfig{
		Limiter: limiter,
		Logger:  zlog,
	})

	session := tsd.Session{
		ElevationPreApproved: cfg.Elevation.PreApproved,
		ElevationAllowlist:   cfg.Elevation.Allowlist,
	}

	dispatcher := dispatch.New(dispatch.Config{
		Router:   router,
		Applier:  applier,
		Registry: reg,
		Store:    store,
		Session:  session,
		Metrics:  m,
		Logger:   zlog,
	})

	return &runtime{
		cfg:        cfg,
		log:        log,
		metrics:    m,
		store:      store,
		applier:    applier,
		registry:   reg,
		dispatcher: dispatcher,
	}, nil
}

// close releases the runtime's resources.
func (rt *runtime) close() {
	rt.store.Close()
	rt.log.Close()
}
