package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all argraph configuration.
type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Queue     QueueConfig    `mapstructure:"queue"`
	GC        GCConfig       `mapstructure:"gc"`
	Log       LogConfig      `mapstructure:"log"`
	Languages []string       `mapstructure:"languages"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type QueueConfig struct {
	// PollInterval is how often the drain loop looks for actions queued by
	// other processes, which do not wake it.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type GCConfig struct {
	// Grace spares objects younger than this. Fresh values are often
	// waiting for the edge that will make them reachable.
	Grace time.Duration `mapstructure:"grace"`
	// AfterDrain runs a collection each time the queue empties.
	AfterDrain bool `mapstructure:"after_drain"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // logrus level name
	Format string `mapstructure:"format"` // "text" or "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Queue: QueueConfig{
			PollInterval: 5 * time.Second,
		},
		GC: GCConfig{
			Grace:      10 * time.Minute,
			AfterDrain: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Languages: []string{"en", "fr"},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Load reads configuration from path, or from config.yaml in ~/.argraph when
// path is empty, on top of Default(). ARGRAPH_* environment variables
// override both (ARGRAPH_SERVER_PORT, ARGRAPH_GC_GRACE, ...). A missing
// config file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetDefault("server.bind", cfg.Server.Bind)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("queue.poll_interval", cfg.Queue.PollInterval)
	v.SetDefault("gc.grace", cfg.GC.Grace)
	v.SetDefault("gc.after_drain", cfg.GC.AfterDrain)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("languages", cfg.Languages)

	v.SetEnvPrefix("argraph")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".argraph"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = Default().Languages
	}
	return cfg, nil
}

// ConfigureLogging applies the log section to the standard logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(level)

	switch c.Log.Format {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("log format %q: want text or json", c.Log.Format)
	}
	return nil
}
