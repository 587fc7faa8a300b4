package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrRelayURLEmpty = errors.New("relay url empty")

type Config struct {
	Mode         string        `mapstructure:"mode"`
	RelayURL     string        `mapstructure:"relay_url"`
	StatusPort   int           `mapstructure:"status_port"`
	LogLevel     string        `mapstructure:"log_level"`
	ICEServers   []string      `mapstructure:"ice_servers"`
	Label        string        `mapstructure:"data_channel_label"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	MaxBuffered  uint64        `mapstructure:"max_buffered"`
}

// Flags declares the command-line overrides understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("mesh", pflag.ContinueOnError)
	fs.String("relay-url", "", "websocket url of the signaling relay")
	fs.Int("status-port", 0, "port of the local status api, 0 disables it")
	fs.String("log-level", "", "zerolog level (debug, info, warn, error)")
	fs.StringSlice("ice-servers", nil, "stun/turn urls, comma separated")
	fs.String("label", "", "data channel label")
	return fs
}

// Load reads config/config.<CONFIG_ENV>.yaml when present, then MESH_*
// environment variables, then flags. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("relay_url", "")
	v.SetDefault("status_port", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("data_channel_label", "mesh")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("max_buffered", 1<<20)

	v.SetEnvPrefix("MESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		binds := map[string]string{
			"relay_url":          "relay-url",
			"status_port":        "status-port",
			"log_level":          "log-level",
			"ice_servers":        "ice-servers",
			"data_channel_label": "label",
		}
		for key, name := range binds {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.RelayURL == "" {
		return nil, ErrRelayURLEmpty
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Str("relay", cfg.RelayURL).Int("status_port", cfg.StatusPort).Msg("config ready")
	return &cfg, nil
}

// WebRTC builds the peer connection configuration from ICEServers.
func (c *Config) WebRTC() webrtc.Configuration {
	if len(c.ICEServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.ICEServers}},
	}
}
