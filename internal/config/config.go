package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

type LogConfig struct {
	Level   string `koanf:"level"`
	Format  string `koanf:"format"`
	Console bool   `koanf:"console"`
	ToFile  bool   `koanf:"to_file"`
	File    string `koanf:"file"`
	Caller  bool   `koanf:"caller"`
}

type AppConfig struct {
	AppEnv   string `koanf:"app_env"`
	HTTPAddr string `koanf:"http_addr"`

	// DatabaseURL may be empty; the leaderboard then answers with a
	// configuration error instead of failing startup.
	DatabaseURL    string `koanf:"database_url"`
	DBMaxOpenConns int    `koanf:"db_max_open_conns"`
	DBMaxIdleConns int    `koanf:"db_max_idle_conns"`
	RedisURL       string `koanf:"redis_url"`

	// LeaderboardAPIURL sends scores to a remote leaderboard service instead
	// of the local database.
	LeaderboardAPIURL   string        `koanf:"leaderboard_api_url"`
	LeaderboardCacheTTL time.Duration `koanf:"leaderboard_cache_ttl"`

	StockfishPath  string        `koanf:"stockfish_path"`
	EnginePoolSize int           `koanf:"engine_pool_size"`
	EngineDelayMS  int           `koanf:"engine_delay_ms"`
	EngineTimeout  time.Duration `koanf:"engine_timeout"`
	// PresetDepths overrides the search depth per difficulty (file only).
	PresetDepths map[string]int `koanf:"preset_depths"`

	DefaultPlayerName string        `koanf:"default_player"`
	SessionTTLSec     int           `koanf:"session_ttl_sec"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	TickInterval      time.Duration `koanf:"tick_interval"`
	MessagesDir       string        `koanf:"messages_dir"`

	Log LogConfig `koanf:"log"`
}

func Defaults() *AppConfig {
	return &AppConfig{
		AppEnv:              "production",
		HTTPAddr:            ":8080",
		DBMaxOpenConns:      10,
		DBMaxIdleConns:      5,
		LeaderboardCacheTTL: 30 * time.Second,
		StockfishPath:       "stockfish",
		EnginePoolSize:      4,
		EngineDelayMS:       1000,
		EngineTimeout:       30 * time.Second,
		DefaultPlayerName:   "User",
		SessionTTLSec:       86400,
		IdleTimeout:         30 * time.Minute,
		TickInterval:        time.Second,
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Console: true,
			File:    "logs/chess-web.log",
		},
	}
}

// envKeys maps the environment variables the service understands onto
// config keys. Anything else in the environment is ignored.
var envKeys = map[string]string{
	"APP_ENV":                "app_env",
	"HTTP_ADDR":              "http_addr",
	"DATABASE_URL":           "database_url",
	"DB_MAX_OPEN_CONNS":      "db_max_open_conns",
	"DB_MAX_IDLE_CONNS":      "db_max_idle_conns",
	"REDIS_URL":              "redis_url",
	"LEADERBOARD_API_URL":    "leaderboard_api_url",
	"LEADERBOARD_CACHE_TTL":  "leaderboard_cache_ttl",
	"STOCKFISH_PATH":         "stockfish_path",
	"CHESS_ENGINE_POOL_SIZE": "engine_pool_size",
	"CHESS_ENGINE_DELAY_MS":  "engine_delay_ms",
	"CHESS_ENGINE_TIMEOUT":   "engine_timeout",
	"CHESS_DEFAULT_PLAYER":   "default_player",
	"CHESS_SESSION_TTL":      "session_ttl_sec",
	"CHESS_IDLE_TIMEOUT":     "idle_timeout",
	"CHESS_TICK_INTERVAL":    "tick_interval",
	"CHESS_MESSAGES_DIR":     "messages_dir",
	"LOG_LEVEL":              "log.level",
	"LOG_FORMAT":             "log.format",
	"LOG_TO_CONSOLE":         "log.console",
	"LOG_TO_FILE":            "log.to_file",
	"LOG_FILE":               "log.file",
	"LOG_CALLER":             "log.caller",
}

// Load layers defaults, the YAML file named by CHESS_CONFIG and the
// environment, in that order of precedence.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv("CHESS_CONFIG")); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	envProvider := env.Provider("", ".", func(s string) string {
		key, ok := envKeys[s]
		if !ok || strings.TrimSpace(os.Getenv(s)) == "" {
			return ""
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	cfg.trim()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) trim() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.LeaderboardAPIURL = strings.TrimSpace(c.LeaderboardAPIURL)
	c.StockfishPath = strings.TrimSpace(c.StockfishPath)
	c.DefaultPlayerName = strings.TrimSpace(c.DefaultPlayerName)
}

func (c *AppConfig) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return fmt.Errorf("%w: http_addr must not be empty", ErrInvalidConfig)
	case c.StockfishPath == "":
		return fmt.Errorf("%w: stockfish_path must not be empty", ErrInvalidConfig)
	case c.EnginePoolSize <= 0:
		return fmt.Errorf("%w: engine_pool_size must be > 0", ErrInvalidConfig)
	case c.EngineDelayMS < 0:
		return fmt.Errorf("%w: engine_delay_ms must be >= 0", ErrInvalidConfig)
	case c.SessionTTLSec <= 0:
		return fmt.Errorf("%w: session_ttl_sec must be > 0", ErrInvalidConfig)
	case c.IdleTimeout <= 0:
		return fmt.Errorf("%w: idle_timeout must be > 0", ErrInvalidConfig)
	case c.TickInterval < 0 || c.LeaderboardCacheTTL < 0 || c.EngineTimeout < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if c.DefaultPlayerName == "" {
		c.DefaultPlayerName = "User"
	}
	return nil
}

func (c *AppConfig) IsDevelopment() bool { return c.AppEnv == "development" }

func (c *AppConfig) EngineDelay() time.Duration {
	return time.Duration(c.EngineDelayMS) * time.Millisecond
}

func (c *AppConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}
