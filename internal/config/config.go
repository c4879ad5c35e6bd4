package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "PREF_HARNESS"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Server  ServerConfig  `mapstructure:"server"`
	Harness HarnessConfig `mapstructure:"harness"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes the server under test.
type ServerConfig struct {
	Binary         string        `mapstructure:"binary"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Args           []string      `mapstructure:"args"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	StopGrace      time.Duration `mapstructure:"stop_grace"`
}

type HarnessConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	FailurePolicy    string        `mapstructure:"failure_policy"`
	Report           string        `mapstructure:"report"` // text or json
}

// Load reads path, or config/config.<CONFIG_ENV>.yaml when path is empty. A missing default
// file is not an error; a missing explicit file is. PREF_HARNESS_* variables override both,
// e.g. PREF_HARNESS_SERVER_PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	explicit := path != ""
	if !explicit {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Debug().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Debug().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Debug().Str("module", "config").
		Str("binary", cfg.Server.Binary).
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Dur("timeout", cfg.Harness.Timeout).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.binary", "")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.args", []string{})
	v.SetDefault("server.startup_timeout", "10s")
	v.SetDefault("server.stop_grace", "3s")

	v.SetDefault("harness.timeout", "5s")
	v.SetDefault("harness.handshake_timeout", "5s")
	v.SetDefault("harness.write_timeout", "5s")
	v.SetDefault("harness.read_limit", 1<<20)
	v.SetDefault("harness.failure_policy", "continue")
	v.SetDefault("harness.report", "text")
}
