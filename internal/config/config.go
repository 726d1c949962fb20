// Package config loads CLI configuration from a config file, a .env file
// and CLAWDVAULT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/inavhq/clawdvault-sdk/internal/logging"
	"github.com/inavhq/clawdvault-sdk/pkg/clawdvault"
	"github.com/inavhq/clawdvault-sdk/pkg/stream"
	"github.com/inavhq/clawdvault-sdk/pkg/trade"
)

const (
	// EnvPrefix prefixes every environment override, e.g. CLAWDVAULT_API_URL.
	EnvPrefix  = "CLAWDVAULT"
	configName = "clawdvault"
)

// Config is the full CLI configuration.
type Config struct {
	API struct {
		URL        string        `mapstructure:"url"`
		StreamURL  string        `mapstructure:"stream_url"`
		Timeout    time.Duration `mapstructure:"timeout"`
		MaxRetries int           `mapstructure:"max_retries"`
	} `mapstructure:"api"`

	RPC struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"rpc"`

	Wallet struct {
		// Keypair is a Solana CLI keypair file.
		Keypair string `mapstructure:"keypair"`
		// BridgeURL reaches a wallet bridge instead of a local key.
		BridgeURL string `mapstructure:"bridge_url"`
	} `mapstructure:"wallet"`

	Session struct {
		Token string `mapstructure:"token"`
		// File caches the session token between CLI runs.
		File string `mapstructure:"file"`
	} `mapstructure:"session"`

	Trade struct {
		PollInterval    time.Duration `mapstructure:"poll_interval"`
		ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
		DefaultSlippage string        `mapstructure:"default_slippage"`
	} `mapstructure:"trade"`

	Stream struct {
		AutoReconnect        bool          `mapstructure:"auto_reconnect"`
		MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
		InitialDelay         time.Duration `mapstructure:"initial_delay"`
		MaxDelay             time.Duration `mapstructure:"max_delay"`
		PingInterval         time.Duration `mapstructure:"ping_interval"`
		ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	} `mapstructure:"stream"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`

	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`

	ClickHouse struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"clickhouse"`

	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	client := clawdvault.DefaultConfig()

	v.SetDefault("api.url", client.APIURL)
	v.SetDefault("api.stream_url", "")
	v.SetDefault("api.timeout", client.HTTPTimeout)
	v.SetDefault("api.max_retries", client.MaxRetries)
	v.SetDefault("rpc.url", "")

	v.SetDefault("wallet.keypair", "")
	v.SetDefault("wallet.bridge_url", "")
	v.SetDefault("session.token", "")
	v.SetDefault("session.file", defaultSessionFile())

	v.SetDefault("trade.poll_interval", client.Trade.PollInterval)
	v.SetDefault("trade.confirm_timeout", client.Trade.ConfirmTimeout)
	v.SetDefault("trade.default_slippage", "0.02")

	v.SetDefault("stream.auto_reconnect", client.Reconnect.AutoReconnect)
	v.SetDefault("stream.max_reconnect_attempts", client.Reconnect.MaxReconnectAttempts)
	v.SetDefault("stream.initial_delay", client.Reconnect.InitialDelay)
	v.SetDefault("stream.max_delay", client.Reconnect.MaxDelay)
	v.SetDefault("stream.ping_interval", client.WS.PingInterval)
	v.SetDefault("stream.read_timeout", client.WS.ReadTimeout)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("clickhouse.dsn", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "clawdvault-events")
	v.SetDefault("metrics.addr", "")
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configName, "session")
}

// Load reads configuration. configFile may be empty, in which case
// clawdvault.{yaml,toml,json} is looked up in the working directory and the
// user config directory. envFile is loaded first if it exists; variables
// already set in the environment win over it.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return errors.New("api.url is required")
	}
	if c.Trade.PollInterval <= 0 || c.Trade.ConfirmTimeout <= 0 {
		return errors.New("trade.poll_interval and trade.confirm_timeout must be positive")
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return errors.New("stream.max_reconnect_attempts must not be negative")
	}
	if _, err := c.Slippage(); err != nil {
		return err
	}
	if c.Wallet.Keypair != "" && c.Wallet.BridgeURL != "" {
		return errors.New("set only one of wallet.keypair and wallet.bridge_url")
	}
	return nil
}

// Slippage returns trade.default_slippage as a fraction in [0, 1).
func (c *Config) Slippage() (decimal.Decimal, error) {
	s, err := decimal.NewFromString(c.Trade.DefaultSlippage)
	if err != nil {
		return decimal.Zero, fmt.Errorf("trade.default_slippage: %w", err)
	}
	if s.IsNegative() || s.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("trade.default_slippage %s is outside [0, 1)", s)
	}
	return s, nil
}

// ClientConfig maps the configuration onto the SDK client.
func (c *Config) ClientConfig() clawdvault.Config {
	cfg := clawdvault.DefaultConfig()
	cfg.APIURL = c.API.URL
	cfg.StreamURL = c.API.StreamURL
	cfg.RPCURL = c.RPC.URL
	cfg.HTTPTimeout = c.API.Timeout
	cfg.MaxRetries = c.API.MaxRetries
	cfg.Trade = trade.Config{
		PollInterval:   c.Trade.PollInterval,
		ConfirmTimeout: c.Trade.ConfirmTimeout,
	}
	cfg.Reconnect = stream.Options{
		AutoReconnect:        c.Stream.AutoReconnect,
		MaxReconnectAttempts: c.Stream.MaxReconnectAttempts,
		InitialDelay:         c.Stream.InitialDelay,
		MaxDelay:             c.Stream.MaxDelay,
		DialTimeout:          cfg.Reconnect.DialTimeout,
	}
	cfg.WS.PingInterval = c.Stream.PingInterval
	cfg.WS.ReadTimeout = c.Stream.ReadTimeout
	return cfg
}

// LogConfig maps the log section onto logging.Config.
func (c *Config) LogConfig() logging.Config {
	return logging.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		File:   c.Log.File,
	}
}
