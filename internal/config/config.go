package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"db_path" yaml:"db_path"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// HistoryLimit is the number of messages replayed on channel join.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
	// MaxMessageLen bounds message content length in runes.
	MaxMessageLen int `mapstructure:"max_message_len" yaml:"max_message_len"`

	// WSEventRate / WSEventBurst throttle inbound events per connection.
	WSEventRate  float64 `mapstructure:"ws_event_rate" yaml:"ws_event_rate"`
	WSEventBurst int     `mapstructure:"ws_event_burst" yaml:"ws_event_burst"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "channels.db",
		JWTIssuer:         "personly",
		JWTAudience:       "channels",
		HistoryLimit:      50,
		MaxMessageLen:     2000,
		WSEventRate:       20,
		WSEventBurst:      40,
	}
}
