package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "TANDEM"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the relay server configuration.
type Config struct {
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Secret       string        `mapstructure:"secret" validate:"required"`
	ReadLimit    int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod   time.Duration `mapstructure:"ping_period" validate:"gt=0"`
	PongWait     time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	WriteWait    time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	SendBuffer   int           `mapstructure:"send_buffer" validate:"min=1"`
	DatabasePath string        `mapstructure:"database_path" validate:"required"`
	LogLevel     string        `mapstructure:"log_level"`
	SignalRate   float64       `mapstructure:"signal_rate" validate:"gte=0"`
	SignalBurst  int           `mapstructure:"signal_burst" validate:"gte=0"`
	Backpressure string        `mapstructure:"backpressure" validate:"oneof=kick drop"`
}

var serverDefaults = map[string]any{
	"mode":          "release",
	"port":          8080,
	"secret":        "tandem-dev-secret",
	"read_limit":    32768,
	"ping_period":   "54s",
	"pong_wait":     "60s",
	"write_wait":    "10s",
	"send_buffer":   64,
	"database_path": "tandem.db",
	"log_level":     "info",
	"signal_rate":   50,
	"signal_burst":  100,
	"backpressure":  "kick",
}

// PeerConfig configures the headless calling endpoint.
type PeerConfig struct {
	ServerURL     string        `mapstructure:"server_url" validate:"required,url"`
	UserID        string        `mapstructure:"user_id" validate:"required,max=64"`
	Call          string        `mapstructure:"call" validate:"max=64"`
	AutoAccept    bool          `mapstructure:"auto_accept"`
	ICEServers    []string      `mapstructure:"ice_servers"`
	Audio         bool          `mapstructure:"audio"`
	Video         bool          `mapstructure:"video"`
	GatherTimeout time.Duration `mapstructure:"gather_timeout" validate:"gt=0"`
	LogLevel      string        `mapstructure:"log_level"`
}

var peerDefaults = map[string]any{
	"server_url":     "ws://localhost:8080/api/ws/signal",
	"user_id":        "",
	"call":           "",
	"auto_accept":    false,
	"ice_servers":    []string{"stun:stun.l.google.com:19302"},
	"audio":          true,
	"video":          true,
	"gather_timeout": "5s",
	"log_level":      "info",
}

func profile() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return env
}

// Load reads config/config.<CONFIG_ENV>.yaml.
func Load() (*Config, error) {
	return LoadFrom(fmt.Sprintf("config/config.%s.yaml", profile()))
}

func LoadFrom(fileName string) (*Config, error) {
	var cfg Config
	if err := load(fileName, serverDefaults, &cfg); err != nil {
		return nil, err
	}
	if cfg.PingPeriod >= cfg.PongWait {
		return nil, fmt.Errorf("invalid config: ping_period (%s) must be shorter than pong_wait (%s)", cfg.PingPeriod, cfg.PongWait)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("database", cfg.DatabasePath).Msg("server config")
	return &cfg, nil
}

// LoadPeer reads config/peer.<CONFIG_ENV>.yaml.
func LoadPeer() (*PeerConfig, error) {
	return LoadPeerFrom(fmt.Sprintf("config/peer.%s.yaml", profile()))
}

func LoadPeerFrom(fileName string) (*PeerConfig, error) {
	var cfg PeerConfig
	if err := load(fileName, peerDefaults, &cfg); err != nil {
		return nil, err
	}
	if !cfg.Audio && !cfg.Video {
		return nil, errors.New("invalid config: at least one of audio or video must be enabled")
	}
	log.Info().Str("module", "config").Str("user", cfg.UserID).Str("server", cfg.ServerURL).Msg("peer config")
	return &cfg, nil
}

// load layers defaults, the yaml file, .env and TANDEM_* variables, in
// increasing precedence.
func load(fileName string, defaults map[string]any, out any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("module", "config").Msg("failed to read .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
