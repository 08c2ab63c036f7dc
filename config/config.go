package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/cwrk-planet/canvas-rooms/internal/connection"
	"github.com/cwrk-planet/canvas-rooms/internal/grid"
	"github.com/cwrk-planet/canvas-rooms/internal/logger"
	"github.com/cwrk-planet/canvas-rooms/internal/postgres"
	"github.com/cwrk-planet/canvas-rooms/internal/relay"
)

const DefaultPath = "./config/config.yaml"

type HTTP struct {
	Addr            string        `yaml:"addr"`            // ":8080"
	AllowedOrigins  []string      `yaml:"allowedOrigins"`  // ["*"]
	ReadTimeout     time.Duration `yaml:"readTimeout"`     // "15s"
	IdleTimeout     time.Duration `yaml:"idleTimeout"`     // "60s"
	RequestTimeout  time.Duration `yaml:"requestTimeout"`  // "30s"
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"` // "10s"
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // canvas-relay
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

func (l Logging) ToLoggerConfig() logger.Config {
	return logger.Config{
		Service:   l.Service,
		Version:   l.Version,
		Env:       logger.ParseEnv(l.Env),
		Backend:   logger.Backend(l.Backend),
		Level:     logger.ParseLevel(l.Level),
		Debug:     l.Debug,
		AddSource: l.AddSource,
	}
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
}

func (p Postgres) ToPGConfig() postgres.Config {
	return postgres.Config{
		DSN:               p.DSN,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ApplicationName:   p.ApplicationName,
	}
}

type Auth struct {
	Secret   string        `yaml:"secret"`   // обязательно
	Issuer   string        `yaml:"issuer"`   // "canvas-relay"
	TokenTTL time.Duration `yaml:"tokenTTL"` // напр. 1h
}

type Relay struct {
	PingEvery     time.Duration `yaml:"pingEvery"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	ReadLimit     int64         `yaml:"readLimit"`
	SendQueue     int           `yaml:"sendQueue"`
	PresenceRate  float64       `yaml:"presenceRate"` // кадров presence в секунду на пира, 0 = без лимита
	PresenceBurst int           `yaml:"presenceBurst"`
}

func (r Relay) ToHubOptions() relay.Options {
	opts := relay.Options{SendQueue: r.SendQueue, PresenceBurst: r.PresenceBurst}
	if r.PresenceRate > 0 {
		opts.PresenceRate = rate.Limit(r.PresenceRate)
	}
	return opts
}

type Directory struct {
	SyncEvery time.Duration `yaml:"syncEvery"`
	// Seed rooms on startup when the catalog is empty.
	SeedPrefix string `yaml:"seedPrefix"`
	SeedCount  int    `yaml:"seedCount"`
}

type Canvas struct {
	Width        int `yaml:"width"`
	Height       int `yaml:"height"`
	GridSize     int `yaml:"gridSize"`
	FrameSize    int `yaml:"frameSize"`
	MaxOccupants int `yaml:"maxOccupants"`
}

func (c Canvas) Mapper() grid.Mapper {
	return grid.Mapper{Width: c.Width, Height: c.Height, GridSize: c.GridSize, FrameSize: c.FrameSize}
}

type Reconnect struct {
	Initial          time.Duration `yaml:"initial"`
	Max              time.Duration `yaml:"max"`
	Budget           int           `yaml:"budget"`
	UnavailableEvery time.Duration `yaml:"unavailableEvery"`
}

func (r Reconnect) ToBackoff() connection.Backoff {
	return connection.Backoff{
		Initial:          r.Initial,
		Max:              r.Max,
		Budget:           r.Budget,
		UnavailableEvery: r.UnavailableEvery,
	}.Normalize()
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	Auth      Auth      `yaml:"auth"`
	Relay     Relay     `yaml:"relay"`
	Directory Directory `yaml:"directory"`
	Canvas    Canvas    `yaml:"canvas"`
	Reconnect Reconnect `yaml:"reconnect"`
}

// Load читает yaml по явному пути, иначе CONFIG_PATH, иначе DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default is the configuration used when no file is given (bots, tests).
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.Canvas.GridSize < 0 || c.Canvas.FrameSize < 0 {
		return errors.New("canvas sizes must be >= 0")
	}
	if c.Relay.PresenceRate < 0 {
		return errors.New("relay.presenceRate must be >= 0")
	}
	c.setDefaults()
	if c.Canvas.FrameSize > c.Canvas.Width || c.Canvas.FrameSize > c.Canvas.Height {
		return errors.New("canvas.frameSize must fit into the canvas")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.tokenTTL must be > 0")
	}
	return nil
}

// установка дефолтов, если значения не указаны
func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"*"}
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}

	if c.Logging.Service == "" {
		c.Logging.Service = "canvas-relay"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = slog.LevelInfo.String()
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "canvas-relay"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}

	if c.Directory.SyncEvery == 0 {
		c.Directory.SyncEvery = 10 * time.Second
	}
	if c.Directory.SeedPrefix == "" {
		c.Directory.SeedPrefix = "sd-multiplayer-room-"
	}

	if c.Canvas.Width == 0 {
		c.Canvas.Width = 2048
	}
	if c.Canvas.Height == 0 {
		c.Canvas.Height = 2048
	}
	if c.Canvas.GridSize == 0 {
		c.Canvas.GridSize = 32
	}
	if c.Canvas.FrameSize == 0 {
		c.Canvas.FrameSize = 512
	}
	if c.Canvas.MaxOccupants == 0 {
		c.Canvas.MaxOccupants = 20
	}
}
