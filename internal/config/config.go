// Package config loads client settings from a file, the environment
// (P2PTRADE_ prefix) and flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"p2p_trade/internal/cryptographic/dh"
	"p2p_trade/internal/protocol/envelope"

	"github.com/spf13/viper"
)

const EnvPrefix = "P2PTRADE"

type (
	Config struct {
		Relays      []string `mapstructure:"relays"`
		Facilitator string   `mapstructure:"facilitator"`
		PoW         int      `mapstructure:"pow"`
		// Mode is the envelope used for trade requests.
		Mode  string `mapstructure:"mode"`
		Admin bool   `mapstructure:"admin"`

		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		RequestRetries uint64        `mapstructure:"request_retries"`
		// RequestExpiry, when set, asks relays to drop requests after this long.
		RequestExpiry  time.Duration `mapstructure:"request_expiry"`
		PollInterval   time.Duration `mapstructure:"poll_interval"`
		OrdersLookback time.Duration `mapstructure:"orders_lookback"`
		SnapshotLimit  int           `mapstructure:"snapshot_limit"`
		ChatLookback   time.Duration `mapstructure:"chat_lookback"`

		Attachment AttachmentConfig `mapstructure:"attachment"`
		Mongo      MongoConfig      `mapstructure:"mongo"`
		Redis      RedisConfig      `mapstructure:"redis"`

		LogLevel string `mapstructure:"log_level"`
		LogFile  string `mapstructure:"log_file"`
	}

	AttachmentConfig struct {
		MaxBytes    int64         `mapstructure:"max_bytes"`
		Timeout     time.Duration `mapstructure:"timeout"`
		DownloadDir string        `mapstructure:"download_dir"`
	}

	MongoConfig struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	}

	RedisConfig struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("relays", []string{})
	v.SetDefault("facilitator", "")
	v.SetDefault("pow", 0)
	v.SetDefault("mode", envelope.AnonymousWrap.String())
	v.SetDefault("admin", false)
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("request_retries", 1)
	v.SetDefault("request_expiry", 0)
	v.SetDefault("poll_interval", 10*time.Second)
	v.SetDefault("orders_lookback", 7*24*time.Hour)
	v.SetDefault("snapshot_limit", 1000)
	v.SetDefault("chat_lookback", 7*24*time.Hour)
	v.SetDefault("attachment.max_bytes", 25<<20)
	v.SetDefault("attachment.timeout", 30*time.Second)
	v.SetDefault("attachment.download_dir", "downloads")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "p2ptrade")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path when given and decodes everything into a Config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if len(c.Relays) == 0 {
		return errors.New("config: at least one relay is required")
	}
	for _, r := range c.Relays {
		if !strings.HasPrefix(r, "ws://") && !strings.HasPrefix(r, "wss://") {
			return fmt.Errorf("config: relay %q is not a websocket url", r)
		}
	}
	if _, err := dh.ParsePubKeyHex(c.Facilitator); err != nil {
		return fmt.Errorf("config: facilitator: %w", err)
	}
	if _, err := c.EnvelopeMode(); err != nil {
		return err
	}
	if c.PoW < 0 || c.PoW > 256 {
		return fmt.Errorf("config: pow %d out of range", c.PoW)
	}
	if c.RequestTimeout <= 0 || c.PollInterval <= 0 || c.Attachment.Timeout <= 0 {
		return errors.New("config: timeouts and intervals must be positive")
	}
	if c.Attachment.MaxBytes <= 0 {
		return errors.New("config: attachment.max_bytes must be positive")
	}
	return nil
}

func (c *Config) EnvelopeMode() (envelope.Mode, error) {
	for _, m := range []envelope.Mode{envelope.Plain, envelope.AnonymousWrap, envelope.SignedWrap} {
		if c.Mode == m.String() {
			return m, nil
		}
	}
	return 0, fmt.Errorf("config: unknown mode %q", c.Mode)
}
