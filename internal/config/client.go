package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Client is the headless participant's configuration. Precedence is
// flag > SIGNMEET_* environment > default.
type Client struct {
	Server             string        `mapstructure:"server"`
	Name               string        `mapstructure:"name"`
	Codec              string        `mapstructure:"codec"`
	STUN               []string      `mapstructure:"stun"`
	Video              string        `mapstructure:"video"`
	Audio              string        `mapstructure:"audio"`
	Snapshots          string        `mapstructure:"snapshots"`
	SampleInterval     time.Duration `mapstructure:"sample_interval"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	LogLevel           string        `mapstructure:"log_level"`
}

// RegisterClientFlags declares the participant flags on fs.
func RegisterClientFlags(fs *pflag.FlagSet) {
	fs.String("server", "http://localhost:8080", "coordination server base URL")
	fs.String("name", "", "display name in the room")
	fs.String("codec", "json", "signaling codec: json or msgpack")
	fs.StringSlice("stun", []string{"stun:stun.l.google.com:19302"}, "STUN server URLs")
	fs.String("video", "", "IVF file used as camera")
	fs.String("audio", "", "Ogg/Opus file used as microphone")
	fs.String("snapshots", "", "directory of jpg/png frames used for sign sampling")
	fs.Duration("sample-interval", time.Second, "frame sampling interval")
	fs.Duration("negotiation-timeout", 0, "mark peers stalled after this long without media (0 disables)")
	fs.String("log-level", "info", "log level")
}

// LoadClient resolves the participant configuration from fs and the environment.
func LoadClient(fs *pflag.FlagSet) (*Client, error) {
	v := viper.New()
	v.SetEnvPrefix("SIGNMEET")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	cfg.Server = strings.TrimRight(cfg.Server, "/")
	if cfg.Server == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	return &cfg, nil
}

// SignalURL is the websocket endpoint derived from the server base URL.
func (c *Client) SignalURL() string {
	u := c.Server
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/ws/signal"
}
