package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	defaultListenAddr    = ":8080"
	defaultDBPath        = "taskengine.db"
	defaultLogLevel      = "info"
	defaultQueueSize     = 100
	defaultWorkerCount   = 8
	defaultWorkDelay     = 2 * time.Second
	defaultSubmitTimeout = 5 * time.Second

	envPrefix     = "TASKENGINE"
	envConfigFile = "TASKENGINE_CONFIG"

	keyListenAddr    = "listen_addr"
	keyDBPath        = "db_path"
	keyLogLevel      = "log_level"
	keyQueueSize     = "queue_size"
	keyWorkerCount   = "worker_count"
	keyWorkDelay     = "work_delay"
	keySubmitTimeout = "submit_timeout"
	keyJWTSecret     = "jwt_secret"
)

var validate = validator.New()

// Config holds application configuration.
type Config struct {
	ListenAddr string
	// DBPath locates the history database. Empty disables history.
	DBPath   string
	LogLevel slog.Level

	QueueSize     int
	WorkerCount   int
	WorkDelay     time.Duration
	SubmitTimeout time.Duration

	// JWTSecret enables bearer-token auth on the task routes when set.
	JWTSecret string
}

// settings mirrors Config in the shape viper decodes and the validator checks.
type settings struct {
	ListenAddr    string        `mapstructure:"listen_addr" validate:"required"`
	DBPath        string        `mapstructure:"db_path"`
	LogLevel      string        `mapstructure:"log_level"`
	QueueSize     int           `mapstructure:"queue_size" validate:"gt=0"`
	WorkerCount   int           `mapstructure:"worker_count" validate:"gt=0"`
	WorkDelay     time.Duration `mapstructure:"work_delay" validate:"gte=0"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout" validate:"gt=0"`
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}

// Load reads configuration from TASKENGINE_* environment variables and, when
// TASKENGINE_CONFIG names a file, from that file. Environment variables take
// precedence over the file.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault(keyListenAddr, defaultListenAddr)
	v.SetDefault(keyDBPath, defaultDBPath)
	v.SetDefault(keyLogLevel, defaultLogLevel)
	v.SetDefault(keyQueueSize, defaultQueueSize)
	v.SetDefault(keyWorkerCount, defaultWorkerCount)
	v.SetDefault(keyWorkDelay, defaultWorkDelay)
	v.SetDefault(keySubmitTimeout, defaultSubmitTimeout)
	v.SetDefault(keyJWTSecret, "")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if path := os.Getenv(envConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := validate.Struct(s); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return Config{
		ListenAddr:    s.ListenAddr,
		DBPath:        s.DBPath,
		LogLevel:      parseLogLevel(s.LogLevel),
		QueueSize:     s.QueueSize,
		WorkerCount:   s.WorkerCount,
		WorkDelay:     s.WorkDelay,
		SubmitTimeout: s.SubmitTimeout,
		JWTSecret:     s.JWTSecret,
	}, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
