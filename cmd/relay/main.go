package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/cwrk-planet/canvas-rooms/config"
	"github.com/cwrk-planet/canvas-rooms/internal/logger"
	"github.com/cwrk-planet/canvas-rooms/internal/postgres"
	"github.com/cwrk-planet/canvas-rooms/internal/relay"
	httpserver "github.com/cwrk-planet/canvas-rooms/internal/server/http"
	"github.com/cwrk-planet/canvas-rooms/internal/service"
	httpx "github.com/cwrk-planet/canvas-rooms/internal/transport/http"
	"github.com/cwrk-planet/canvas-rooms/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $CONFIG_PATH)")
	flag.Parse()

	// 1) load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		println("failed to load config:", err.Error())
		os.Exit(1)
	}

	// 2) init logger (set.Default)
	logger.Init(cfg.Logging.ToLoggerConfig())
	slog.Info("starting canvas-relay",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3) postgres
	db, err := postgres.New(ctx, cfg.Postgres.ToPGConfig())
	if err != nil {
		slog.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("postgres migrate failed", "err", err)
		os.Exit(1)
	}

	// 4) hub & services
	hub := relay.NewHub(cfg.Relay.ToHubOptions())
	roomSvc := service.NewRoomService(postgres.NewRoomRepository(db.Pool), hub)
	authSvc := service.NewAuthService(roomSvc, cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	if n := cfg.Directory.SeedCount; n > 0 {
		if _, err := roomSvc.Seed(ctx, cfg.Directory.SeedPrefix, n); err != nil {
			slog.Error("seed rooms failed", "err", err)
			os.Exit(1)
		}
	}

	// 5) transport
	wsServer := ws.NewServer(hub, authSvc, ws.Options{
		PingEvery:    cfg.Relay.PingEvery,
		WriteTimeout: cfg.Relay.WriteTimeout,
		ReadLimit:    cfg.Relay.ReadLimit,
	})
	router := httpx.NewRouter(httpx.NewHandler(roomSvc, authSvc), wsServer.HandleWS, httpx.RouterOptions{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Timeout:        cfg.HTTP.RequestTimeout,
	})
	srv := httpserver.New(httpserver.Config{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
	}, router)

	// 6) run http + sync job until signal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return roomSvc.RunSync(gctx, cfg.Directory.SyncEvery) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("relay stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("canvas-relay stopped")
}
