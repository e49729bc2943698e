package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode      string `mapstructure:"mode"`
	ServerURL string `mapstructure:"server_url"`
	SocketURL string `mapstructure:"socket_url"`

	// Channel knobs.
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff"`
	AckTimeout        time.Duration `mapstructure:"ack_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`

	// Viewport knobs.
	ViewportQuiet time.Duration `mapstructure:"viewport_quiet"`
	MinZoom       float64       `mapstructure:"min_zoom"`

	// Devserver only.
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("socket_url", "ws://localhost:8080/api/ws/sync")
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("reconnect_backoff", "2s")
	v.SetDefault("ack_timeout", "10s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("viewport_quiet", "500ms")
	v.SetDefault("min_zoom", 9)
	v.SetDefault("port", 8080)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
