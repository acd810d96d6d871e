package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Server struct {
	Address  string `mapstructure:"address"`
	HTTPPort string `mapstructure:"http_port"`
}

type Database struct {
	// Driver: "mysql" | "postgres" | "" (no DB — relay runs without directory lookups)
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type Relay struct {
	// WriteTimeout bounds how long a write-to-card waits for the reader's ack.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigins for the websocket upgrade; empty list = accept any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Config struct {
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
	Logging  Logging  `mapstructure:"logging"`
	Relay    Relay    `mapstructure:"relay"`
}

// Load читает cardlink.yaml (или файл по path) + переменные окружения CARDLINK_*.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8087")
	v.SetDefault("database.driver", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("relay.write_timeout", 10*time.Second)
	v.SetDefault("relay.allowed_origins", []string{})

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cardlink")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cardlink")
	}

	v.SetEnvPrefix("CARDLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// конфиг-файл опционален; явно указанный path — нет
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Relay.WriteTimeout <= 0 {
		cfg.Relay.WriteTimeout = 10 * time.Second
	}
	return &cfg, nil
}
