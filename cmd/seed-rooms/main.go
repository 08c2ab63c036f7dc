package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/cwrk-planet/canvas-rooms/config"
	"github.com/cwrk-planet/canvas-rooms/internal/logger"
	"github.com/cwrk-planet/canvas-rooms/internal/postgres"
	"github.com/cwrk-planet/canvas-rooms/internal/service"
)

func main() {
	var (
		configPath string
		prefix     string
		count      int
	)
	flag.StringVar(&configPath, "config", "", "path to config.yaml (default: $CONFIG_PATH)")
	flag.StringVar(&prefix, "prefix", "sd-multiplayer-room-", "room id prefix")
	flag.IntVar(&count, "count", 20, "number of rooms to ensure")
	flag.Parse()

	if err := run(configPath, prefix, count); err != nil {
		fmt.Fprintln(os.Stderr, "seed-rooms:", err)
		os.Exit(1)
	}
}

func run(configPath, prefix string, count int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	lc := cfg.Logging.ToLoggerConfig()
	lc.Service = "seed-rooms"
	logger.Init(lc)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Postgres.ToPGConfig())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Без живого хаба: счётчики не трогаем.
	svc := service.NewRoomService(postgres.NewRoomRepository(db.Pool), nil)
	rooms, err := svc.Seed(ctx, prefix, count)
	if err != nil {
		return err
	}
	slog.Info("rooms ensured", "count", len(rooms), "prefix", prefix)
	return nil
}
