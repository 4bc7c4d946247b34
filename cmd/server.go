package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maxpark/access-controller/internal"
	"github.com/maxpark/access-controller/internal/access"
	"github.com/maxpark/access-controller/internal/analytics"
	"github.com/maxpark/access-controller/internal/hw"
	"github.com/maxpark/access-controller/internal/metrics"
	"github.com/maxpark/access-controller/internal/relay"
	"github.com/maxpark/access-controller/internal/runtimeconf"
	"github.com/maxpark/access-controller/internal/session"
	"github.com/maxpark/access-controller/internal/system"
	"github.com/maxpark/access-controller/internal/translog"
	"github.com/maxpark/access-controller/internal/transport"
	"github.com/maxpark/access-controller/internal/transport/rest"
	"github.com/maxpark/access-controller/internal/upload"
	"github.com/maxpark/access-controller/internal/user"
	"github.com/maxpark/access-controller/internal/wiegand"
	"github.com/maxpark/access-controller/pkg/logger"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the access controller",
	Long:  `Start the Wiegand decoders, relay driver, upload pipeline and HTTP API.`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer()
	},
}

// Dependencies is everything the running appliance is made of. Workers
// are started from here under one errgroup so a fatal worker error
// stops the whole process.
type Dependencies struct {
	Config   *internal.Config
	Logger   *slog.Logger
	Router   *chi.Mux
	Chip     hw.Chip
	Manager  *wiegand.Manager
	Sessions *session.Service
	Uploader *upload.Uploader
	Drainer  *upload.Drainer
	TxMon    *translog.Monitor
}

func startServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port)
	deps.Logger.Info("starting access controller", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.Uploader.Run(ctx) })
	g.Go(func() error { return deps.Drainer.Run(ctx) })
	g.Go(func() error { return deps.TxMon.Run(ctx) })
	g.Go(func() error { return deps.Sessions.RunSweeper(ctx, 0) })
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		deps.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.Manager.Stop()
		if err := deps.Chip.Close(); err != nil {
			deps.Logger.Error("gpio close error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		deps.Logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	cfg, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Paths.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base dir: %w", err)
	}

	logger.Init(cfg.Logging.Env, cfg.Paths.LogFile(), cfg.Logging.Level)
	log := logger.LoggerWrapper()
	metrics.Init()

	// Hardware. A failed chip open falls back to the in-memory chip so
	// the API and local data stay available with the door offline.
	chip, gpioReady := openChip(cfg, log)

	userStore, err := user.NewStore(cfg.Paths.UsersFile(), cfg.Paths.BlockedFile(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to load user store: %w", err)
	}
	txStore, err := translog.NewStore(cfg.Paths.TransactionsDir(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction log: %w", err)
	}
	stats := analytics.NewDailyStats(cfg.Paths.DailyStatsFile(), log)
	cache := upload.NewCache(cfg.Paths.FailedCacheFile(), log)

	confStore := runtimeconf.NewStore(
		cfg.Paths.ConfigFile(),
		runtimeconf.Defaults(cfg.Wiegand.DefaultBits, cfg.Wiegand.TimeoutMS, cfg.Wiegand.ScanDelaySeconds, cfg.Wiegand.EntityID),
		log,
	)

	var (
		remote      upload.RemoteStore
		remoteCheck func(ctx context.Context) error
	)
	if cfg.Remote.Enabled {
		es, err := upload.NewElastic(cfg.Remote, confStore.EntityID, log)
		if err != nil {
			return nil, fmt.Errorf("failed to build remote store client: %w", err)
		}
		remote = es
		remoteCheck = es.Healthy
	}
	monitor := system.NewMonitor(remoteCheck, log)
	uploader := upload.NewUploader(remote, monitor.Online, cache, cfg.Remote.Timeout, log)
	drainer := upload.NewDrainer(cache, remote, monitor.Online, log)

	driver, err := relay.NewDriver(chip, cfg.GPIO.Relays[:], log)
	if err != nil {
		return nil, fmt.Errorf("failed to request relay lines: %w", err)
	}

	rc := confStore.Get()
	engine := access.NewEngine(
		userStore, driver, txStore, stats, uploader,
		access.NewRateLimiter(time.Duration(rc.ScanDelaySeconds)*time.Second),
		access.NewEntryExitTracker(),
		log,
	)
	engine.ConfigureTracking(rc.EntryExit.Enabled, time.Duration(rc.EntryExit.MinGapSeconds)*time.Second)

	pins := make([]wiegand.ReaderPins, len(cfg.GPIO.D0Pins))
	for i := range cfg.GPIO.D0Pins {
		pins[i] = wiegand.ReaderPins{D0: cfg.GPIO.D0Pins[i], D1: cfg.GPIO.D1Pins[i]}
	}
	manager := wiegand.NewManager(chip, pins, engine.HandleScan, log)
	confStore.Bind(manager, engine)

	// Readers failing to start leaves the API and relays usable; /status
	// reports the degraded state.
	if err := manager.Start(rc.BitsList(), rc.Timeout()); err != nil {
		log.Error("wiegand decoders failed to start", "error", err)
	}

	sessions := session.NewService(
		cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash,
		cfg.Auth.APIKey, cfg.Auth.APIKeyRequired,
		cfg.Auth.SessionTTL, confStore.BasicAuthEnabled, log,
	)

	txMon := translog.NewMonitor(txStore, cfg.Storage.MaxTxStorageBytes(), cfg.Storage.CleanupFraction, cfg.Storage.CheckInterval, log)

	systemHandler := &system.Handler{
		BaseHandler:    transport.NewBaseHandler(log),
		Monitor:        monitor,
		Time:           system.NewTimeControl(log),
		GPIOReady:      func() bool { return gpioReady },
		ReadersRunning: manager.Running,
		TxDirSize:      txStore.DirSize,
		CapGB:          cfg.Storage.MaxTxStorageGB,
		CleanupFrac:    cfg.Storage.CleanupFraction,
		FilesPresent: func() map[string]bool {
			users, blocked := userStore.FilesPresent()
			_, statsErr := os.Stat(cfg.Paths.DailyStatsFile())
			return map[string]bool{
				"users":       users,
				"blocked":     blocked,
				"daily_stats": statsErr == nil,
			}
		},
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Handlers{
		Session:   session.NewHandler(sessions),
		User:      user.NewHandler(userStore, sessions),
		Relay:     relay.NewHandler(driver),
		Config:    runtimeconf.NewHandler(confStore),
		Analytics: analytics.NewHandler(analytics.NewService(engine, txStore, userStore), stats),
		System:    systemHandler,
	}, log)

	return &Dependencies{
		Config:   cfg,
		Logger:   log,
		Router:   router,
		Chip:     chip,
		Manager:  manager,
		Sessions: sessions,
		Uploader: uploader,
		Drainer:  drainer,
		TxMon:    txMon,
	}, nil
}

func openChip(cfg *internal.Config, log *slog.Logger) (hw.Chip, bool) {
	if !cfg.GPIO.Enabled {
		log.Warn("gpio disabled, using in-memory chip")
		return hw.NewMemoryChip(), false
	}
	chip, err := hw.OpenChip(cfg.GPIO.Chip)
	if err != nil {
		log.Error("gpio chip open failed, running degraded", "chip", cfg.GPIO.Chip, "error", err)
		return hw.NewMemoryChip(), false
	}
	return chip, true
}
