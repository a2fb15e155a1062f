package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type RateLimit struct {
	MaxMessages int           `mapstructure:"max_messages"`
	Window      time.Duration `mapstructure:"window"`
}

// Peer holds settings used only by the headless peer CLI.
type Peer struct {
	ServerURL  string `mapstructure:"server_url"`
	Role       string `mapstructure:"role"`
	RoomCode   string `mapstructure:"room_code"`
	PlayerCode string `mapstructure:"player_code"`
	Name       string `mapstructure:"name"`

	// PositionPeriod is how often a hosting peer pushes player poses; 0 disables it.
	PositionPeriod time.Duration `mapstructure:"position_period"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	LogLevel   string        `mapstructure:"log_level"`
	ICEServers []ICEServer   `mapstructure:"ice_servers"`
	RateLimit  RateLimit     `mapstructure:"rate_limit"`
	Peer       Peer          `mapstructure:"peer"`
}

// PongWait is how long the server waits for a pong before giving up on a socket.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// DefaultFile is config/config.<CONFIG_ENV>.yaml, with CONFIG_ENV defaulting to dev.
func DefaultFile() string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("config/config.%s.yaml", env)
}

type Loader struct {
	v    *viper.Viper
	file string
}

func NewLoader(file string) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(file)

	v.SetEnvPrefix("VOICEMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("log_level", "info")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("rate_limit.max_messages", 0)
	v.SetDefault("rate_limit.window", "1s")
	v.SetDefault("peer.server_url", "ws://localhost:8080")
	v.SetDefault("peer.role", "owner")
	v.SetDefault("peer.name", "")
	v.SetDefault("peer.position_period", "250ms")

	return &Loader{v: v, file: file}
}

// BindFlag lets a command line flag override key.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not defined", key)
	}
	return l.v.BindPFlag(key, flag)
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", l.file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", l.file).Msg("loaded config")
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PingPeriod <= 0 {
		return nil, fmt.Errorf("ping_period must be positive, got %s", cfg.PingPeriod)
	}
	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("send_buffer must be positive, got %d", cfg.SendBuffer)
	}
	return &cfg, nil
}

// Watch reloads the file on change and hands the fresh config to onChange.
// Only settings read at use time, such as the log level, take effect live.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload failed, keeping previous config")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// ApplyLogLevel sets the zerolog global level from cfg.
func ApplyLogLevel(cfg *Config) {
	zerolog.SetGlobalLevel(cfg.Level())
}
