package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "EMOJICHAT"
	envConfigDefaultPath = "EMOJICHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
	dotEnvFile           = ".env"
)

// Load builds configuration from defaults, optional config file, env vars and flags, and returns the resolved path.
// Precedence: defaults < config file < env vars < flags that were explicitly set.
// Flags are matched to keys by name with dashes turned into underscores; when section is not empty
// a flag first binds to "<section>.<name>" if such key exists.
func Load(logger *zerolog.Logger, explicitPath string, flags *pflag.FlagSet, section string) (Config, string, error) {
	cfg := Default()

	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) && logger != nil {
		logger.Warn().Err(err).Str("path", dotEnvFile).Msg("failed to load env file")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, flags, section); err != nil {
		return cfg, "", err
	}

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("ws_path", cfg.WSPath)
	v.SetDefault("protocol", cfg.Protocol)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
	v.SetDefault("ping_interval", cfg.PingInterval)
	v.SetDefault("max_connections", cfg.MaxConnections)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("messages_per_minute", cfg.MessagesPerMinute)
	v.SetDefault("insecure_skip_verify", cfg.InsecureSkipVerify)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)

	v.SetDefault("client.url", cfg.Client.URL)
	v.SetDefault("client.protocol", cfg.Client.Protocol)
	v.SetDefault("client.name", cfg.Client.Name)
	v.SetDefault("client.dial_timeout", cfg.Client.DialTimeout)
	v.SetDefault("client.write_timeout", cfg.Client.WriteTimeout)
	v.SetDefault("client.reconnect", cfg.Client.Reconnect)
	v.SetDefault("client.backoff.min", cfg.Client.Backoff.Min)
	v.SetDefault("client.backoff.max", cfg.Client.Backoff.Max)
	v.SetDefault("client.backoff.factor", cfg.Client.Backoff.Factor)
	v.SetDefault("client.backoff.jitter", cfg.Client.Backoff.Jitter)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, section string) error {
	if flags == nil {
		return nil
	}

	known := make(map[string]struct{})
	for _, key := range v.AllKeys() {
		known[key] = struct{}{}
	}

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		name := strings.ReplaceAll(f.Name, "-", "_")
		key := ""
		if section != "" {
			if _, ok := known[section+"."+name]; ok {
				key = section + "." + name
			}
		}
		if key == "" {
			if _, ok := known[name]; !ok {
				return
			}
			key = name
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
