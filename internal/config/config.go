package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	ClassifierURL     string        `mapstructure:"classifier_url"`
	ClassifierTimeout time.Duration `mapstructure:"classifier_timeout"`
	CaptionThreshold  float64       `mapstructure:"caption_threshold"`
	DefaultCapacity   int           `mapstructure:"default_capacity"`

	SignalRate  float64 `mapstructure:"signal_rate"`
	SignalBurst int     `mapstructure:"signal_burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "signmeet-dev-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("classifier_url", "")
	v.SetDefault("classifier_timeout", "5s")
	v.SetDefault("caption_threshold", 0.7)
	v.SetDefault("default_capacity", 6)
	v.SetDefault("signal_rate", 20.0)
	v.SetDefault("signal_burst", 40)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) over the
// defaults. SIGNMEET_* environment variables override both.
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
	v.SetEnvPrefix("SIGNMEET")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).
		Bool("classifier", cfg.ClassifierURL != "").Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive")
	}
	if c.CaptionThreshold < 0 || c.CaptionThreshold >= 1 {
		return fmt.Errorf("caption_threshold must be in [0,1), got %v", c.CaptionThreshold)
	}
	return nil
}

// ApplyLogLevel sets the global zerolog level; unknown names fall back to info.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
