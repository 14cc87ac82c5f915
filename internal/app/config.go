package app

import (
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// Config contains all runtime configuration for the demo client binary.
type Config struct {
	URL   string
	Token string

	SocketTimeout      time.Duration
	ChannelCapacity    int
	MaxCloseWait       time.Duration
	GetStatesOnConnect bool
	SubscribeEvents    bool
	SubscribeEventType string

	LogLevel  string
	LogFormat string

	MetricsAddr string

	// DatabaseURL, when set, switches the demo CLI's event sink from the
	// in-memory ring buffer to sink.Postgres.
	DatabaseURL string
}

// yamlOverride mirrors the subset of Config an operator may want to check
// into a file rather than pass as environment variables. Fields left zero
// do not override the environment-derived default.
type yamlOverride struct {
	URL                 string `yaml:"url"`
	Token               string `yaml:"token"`
	SocketTimeout       string `yaml:"socket_timeout"`
	ChannelCapacity     int    `yaml:"channel_capacity"`
	MaxCloseWait        string `yaml:"max_close_wait"`
	GetStatesOnConnect  bool   `yaml:"get_states_on_connect"`
	SubscribeEvents     bool   `yaml:"subscribe_events"`
	SubscribeEventType  string `yaml:"subscribe_event_type"`
	LogLevel            string `yaml:"log_level"`
	LogFormat           string `yaml:"log_format"`
	MetricsAddr         string `yaml:"metrics_addr"`
	DatabaseURL         string `yaml:"database_url"`
}

// LoadConfig loads Config from HASSWS_* environment variables with
// defaults, then applies path (if non-empty) as a YAML override layered on
// top: "env defaults, optional file override."
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		URL:   EnvString("HASSWS_URL", ""),
		Token: EnvString("HASSWS_TOKEN", ""),

		SocketTimeout:      EnvDuration("HASSWS_SOCKET_TIMEOUT", 5*time.Second),
		ChannelCapacity:    EnvInt("HASSWS_CHANNEL_CAPACITY", 200),
		MaxCloseWait:       EnvDuration("HASSWS_MAX_CLOSE_WAIT", 5*time.Second),
		GetStatesOnConnect: EnvBool("HASSWS_GET_STATES_ON_CONNECT", true),
		SubscribeEvents:    EnvBool("HASSWS_SUBSCRIBE_EVENTS", true),
		SubscribeEventType: EnvString("HASSWS_SUBSCRIBE_EVENT_TYPE", ""),

		LogLevel:  EnvString("HASSWS_LOG_LEVEL", "info"),
		LogFormat: EnvString("HASSWS_LOG_FORMAT", "auto"),

		MetricsAddr: EnvString("HASSWS_METRICS_ADDR", "0.0.0.0:9090"),
		DatabaseURL: EnvString("HASSWS_DATABASE_URL", ""),
	}

	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("app: read config file: %w", err)
	}
	var ov yamlOverride
	if err := yaml.Unmarshal(b, &ov); err != nil {
		return Config{}, fmt.Errorf("app: parse config file: %w", err)
	}
	applyYAMLOverride(&cfg, ov)
	return cfg, nil
}

func applyYAMLOverride(cfg *Config, ov yamlOverride) {
	if ov.URL != "" {
		cfg.URL = ov.URL
	}
	if ov.Token != "" {
		cfg.Token = ov.Token
	}
	if ov.SocketTimeout != "" {
		if d, err := time.ParseDuration(ov.SocketTimeout); err == nil {
			cfg.SocketTimeout = d
		}
	}
	if ov.ChannelCapacity > 0 {
		cfg.ChannelCapacity = ov.ChannelCapacity
	}
	if ov.MaxCloseWait != "" {
		if d, err := time.ParseDuration(ov.MaxCloseWait); err == nil {
			cfg.MaxCloseWait = d
		}
	}
	cfg.GetStatesOnConnect = ov.GetStatesOnConnect || cfg.GetStatesOnConnect
	cfg.SubscribeEvents = ov.SubscribeEvents || cfg.SubscribeEvents
	if ov.SubscribeEventType != "" {
		cfg.SubscribeEventType = ov.SubscribeEventType
	}
	if ov.LogLevel != "" {
		cfg.LogLevel = ov.LogLevel
	}
	if ov.LogFormat != "" {
		cfg.LogFormat = ov.LogFormat
	}
	if ov.MetricsAddr != "" {
		cfg.MetricsAddr = ov.MetricsAddr
	}
	if ov.DatabaseURL != "" {
		cfg.DatabaseURL = ov.DatabaseURL
	}
}
