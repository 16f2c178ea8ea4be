package config

import "time"

// Config holds relay and client configuration values.
type Config struct {
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	WSPath             string        `mapstructure:"ws_path" yaml:"ws_path"`
	Protocol           string        `mapstructure:"protocol" yaml:"protocol"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	MaxConnections     int           `mapstructure:"max_connections" yaml:"max_connections"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MessagesPerMinute  int           `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	LogLevel           string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat          string        `mapstructure:"log_format" yaml:"log_format"`

	Client ClientConfig `mapstructure:"client" yaml:"client"`
}

// ClientConfig configures the terminal client session.
type ClientConfig struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	Protocol     string        `mapstructure:"protocol" yaml:"protocol"`
	Name         string        `mapstructure:"name" yaml:"name"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	Reconnect    bool          `mapstructure:"reconnect" yaml:"reconnect"`
	Backoff      BackoffConfig `mapstructure:"backoff" yaml:"backoff"`
}

// BackoffConfig describes the reconnect delay policy.
type BackoffConfig struct {
	Min    time.Duration `mapstructure:"min" yaml:"min"`
	Max    time.Duration `mapstructure:"max" yaml:"max"`
	Factor float64       `mapstructure:"factor" yaml:"factor"`
	Jitter float64       `mapstructure:"jitter" yaml:"jitter"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":1337",
		WSPath:             "/",
		Protocol:           "chat",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		WriteTimeout:       5 * time.Second,
		PingInterval:       30 * time.Second,
		MaxConnections:     0,
		MaxMessageBytes:    4096,
		MessagesPerMinute:  0,
		InsecureSkipVerify: true,
		LogLevel:           "info",
		LogFormat:          "console",
		Client: ClientConfig{
			URL:          "ws://localhost:1337/",
			Protocol:     "chat",
			DialTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Second,
			Reconnect:    true,
			Backoff: BackoffConfig{
				Min:    500 * time.Millisecond,
				Max:    30 * time.Second,
				Factor: 2,
				Jitter: 0.2,
			},
		},
	}
}

