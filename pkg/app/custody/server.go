// Package custody implements app.Runner for the custody engine process.
package custody

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JPCompany544/arbix-sub001/pkg/app"
	"github.com/JPCompany544/arbix-sub001/pkg/app/httpserver"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/custodystore"
	"github.com/JPCompany544/arbix-sub001/pkg/deposit"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/keys"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
	"github.com/JPCompany544/arbix-sub001/pkg/pgutil"
	"github.com/JPCompany544/arbix-sub001/pkg/txmonitor"
)

const (
	defaultHTTPMiddlewareTimeout = 60 * time.Second
	defaultHTTPReadTimeout       = 15 * time.Second
	defaultHTTPWriteTimeout      = 15 * time.Second
	defaultHTTPIdleTimeout       = 60 * time.Second

	queueIdleTimeout = 10 * time.Minute
)

var _ app.Runner = (*Server)(nil)

// Server holds configuration for the custody process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new custody Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run loads the master seed, starts the monitors and schedulers and serves
// the operational HTTP endpoints. It blocks until an OS shutdown signal is
// received or a fatal error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting custody engine")

	seed, err := loadSeed(ctx, &cfg.Secrets)
	if err != nil {
		// Nothing can be derived or signed without the seed.
		logger.Error("Failed to load master seed", zap.Error(err))
		return fmt.Errorf("load master seed: %w", err)
	}
	defer seed.Wipe()
	deriver := keys.NewDeriver(seed)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect custody db: %w", err)
	}
	defer func() { _ = db.Close() }()
	store := custodystore.NewStore(db)
	logger.Info("Database connection established")

	queue := nonce.NewQueue(queueIdleTimeout)
	defer queue.Close()
	nonces := nonce.NewManager()

	adapters, closeAdapters, err := buildAdapters(ctx, &cfg.Chains, deriver, queue, nonces, logger)
	if err != nil {
		return fmt.Errorf("initialize chain adapters: %w", err)
	}
	defer closeAdapters()

	publisher, closePublisher, err := newPublisher(ctx, &cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("initialize event publisher: %w", err)
	}
	defer closePublisher()

	engine := NewEngine(cfg, store, adapters, publisher, logger)

	depositMonitor := deposit.NewMonitor(deposit.Config{
		Pulse:            cfg.Deposit.Pulse,
		InterChainDelay:  cfg.Deposit.InterChainDelay,
		BalanceCallDelay: cfg.Deposit.BalanceCallDelay,
		Cooldown:         cfg.Deposit.Cooldown,
		PollingWindow:    cfg.Deposit.PollingWindow,
		UpgradeWindow:    cfg.Deposit.UpgradeWindow,
		ClockSkew:        cfg.Deposit.ClockSkew,
	}, store, engine.Journal, adapters, publisher, logger)

	statusMonitor := txmonitor.New(txmonitor.Config{
		Interval:      cfg.TxMonitor.Interval,
		DropTimeout:   cfg.TxMonitor.DropTimeout,
		BatchSize:     cfg.TxMonitor.BatchSize,
		UpgradeWindow: cfg.Deposit.UpgradeWindow,
	}, store, engine.Journal, adapters, publisher, logger)

	var ready atomic.Bool
	engine.Syncer.SyncAll(ctx)
	ready.Store(true)

	scheduler, err := newScheduler(ctx, cfg, engine, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Warn("Scheduler shutdown error", zap.Error(err))
		}
	}()

	router := s.newRouter(&ready, logger)
	httpServer := newHTTPServer(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		depositMonitor.Start(gctx)
		<-gctx.Done()
		depositMonitor.Stop()
		return nil
	})
	g.Go(func() error {
		statusMonitor.Start(gctx)
		<-gctx.Done()
		statusMonitor.Stop()
		return nil
	})
	g.Go(func() error {
		return httpserver.ServeAndWait(gctx, logger, httpServer, cfg.Shutdown.Timeout)
	})

	err = g.Wait()
	logger.Info("Custody engine stopped")
	return err
}

func loadSeed(ctx context.Context, cfg *config.SecretsConfig) (*keys.Seed, error) {
	var provider keys.SecretProvider
	switch cfg.Provider {
	case "plain":
		provider = keys.NewEnvSecretProvider(cfg.MnemonicEnv)
	case "cipher", "":
		masterKey, err := keys.MasterKeyFromEnv(cfg.MasterKeyEnv)
		if err != nil {
			return nil, err
		}
		p, err := keys.NewCipherSecretProvider(cfg.EncryptedMnemonic, masterKey)
		if err != nil {
			return nil, err
		}
		provider = p
	default:
		return nil, fmt.Errorf("unknown secret provider %q", cfg.Provider)
	}
	return keys.LoadSeed(ctx, provider, cfg.Passphrase)
}

func newPublisher(ctx context.Context, cfg *config.EventsConfig, logger *zap.Logger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		logger.Info("No NATS URL configured, domain events are discarded")
		return events.NopPublisher{}, func() {}, nil
	}
	js, err := events.NewJetStreamPublisher(ctx, cfg.NATSURL, cfg.Stream, logger)
	if err != nil {
		return nil, nil, err
	}
	return js, func() {
		if err := js.Close(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}, nil
}

func (s *Server) newRouter(ready *atomic.Bool, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	return r
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  defaultHTTPReadTimeout,
		WriteTimeout: defaultHTTPWriteTimeout,
		IdleTimeout:  defaultHTTPIdleTimeout,
	}
}
