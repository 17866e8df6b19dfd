// Package config loads server and client settings from an optional .env file,
// the environment and defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"securetx/internal/crypto"
	"securetx/internal/ledger"
	"securetx/internal/proto"
)

const (
	TransportTCP  = "tcp"
	TransportQUIC = "quic"

	DefaultSeedAccounts = "1234567890123456=5000,6543210987654321=3000,1111222233334444=1500"

	// Development keys. Only used when DEV_KEYS or --dev-keys is set.
	devSecretKey = "dev-only-shared-secret-change-me"
	devAESKey    = "dev-only-aes-256-key-change-me!!"
)

var ErrMissingKeys = errors.New("SECRET_KEY and AES_KEY must be set (or enable DEV_KEYS for local testing)")

type Config struct {
	SecretKey          string `mapstructure:"SECRET_KEY"`
	AESKey             string `mapstructure:"AES_KEY"`
	ServerHost         string `mapstructure:"SERVER_HOST"`
	ServerPort         int    `mapstructure:"SERVER_PORT"`
	Transport          string `mapstructure:"TRANSPORT"`
	TokenMaxAgeSeconds int    `mapstructure:"TOKEN_MAX_AGE_SECONDS"`
	MaxConnsPerIP      int    `mapstructure:"MAX_CONNS_PER_IP"`
	ShutdownPolicy     string `mapstructure:"SHUTDOWN_POLICY"`
	AdminAddr          string `mapstructure:"ADMIN_ADDR"`
	MetricsPath        string `mapstructure:"METRICS_PATH"`
	PprofAddr          string `mapstructure:"PPROF_ADDR"`
	PprofAllowPublic   bool   `mapstructure:"PPROF_ALLOW_PUBLIC"`
	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	EventsExchange     string `mapstructure:"EVENTS_EXCHANGE"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	LogPretty          bool   `mapstructure:"LOG_PRETTY"`
	SeedAccounts       string `mapstructure:"SEED_ACCOUNTS"`
	DevKeys            bool   `mapstructure:"DEV_KEYS"`
}

var keys = []string{
	"SECRET_KEY", "AES_KEY", "SERVER_HOST", "SERVER_PORT", "TRANSPORT",
	"TOKEN_MAX_AGE_SECONDS", "MAX_CONNS_PER_IP", "SHUTDOWN_POLICY",
	"ADMIN_ADDR", "METRICS_PATH", "PPROF_ADDR", "PPROF_ALLOW_PUBLIC",
	"RABBITMQ_URL", "EVENTS_EXCHANGE",
	"LOG_LEVEL", "LOG_PRETTY", "SEED_ACCOUNTS", "DEV_KEYS",
}

// Load reads dir/.env when present, then the environment. Values already in
// the environment win over the file. Load does not validate.
func Load(dir string) (Config, error) {
	if dir != "" {
		if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("TRANSPORT", TransportTCP)
	v.SetDefault("TOKEN_MAX_AGE_SECONDS", crypto.DefaultTokenMaxAge)
	v.SetDefault("MAX_CONNS_PER_IP", 0)
	v.SetDefault("SHUTDOWN_POLICY", "abandon")
	v.SetDefault("EVENTS_EXCHANGE", "ledger_events")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("SEED_ACCOUNTS", DefaultSeedAccounts)
	v.SetDefault("DEV_KEYS", false)
	v.SetDefault("PPROF_ALLOW_PUBLIC", false)
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ServerHost = strings.TrimSpace(cfg.ServerHost)
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	cfg.ShutdownPolicy = strings.ToLower(strings.TrimSpace(cfg.ShutdownPolicy))
	return cfg, nil
}

// ApplyDevKeys fills missing secrets with the development keys when DevKeys is
// set and reports whether it did.
func (c *Config) ApplyDevKeys() bool {
	if !c.DevKeys {
		return false
	}
	used := false
	if c.SecretKey == "" {
		c.SecretKey = devSecretKey
		used = true
	}
	if c.AESKey == "" {
		c.AESKey = devAESKey
		used = true
	}
	return used
}

// ValidateKeys is the subset of Validate the client needs.
func (c Config) ValidateKeys() error {
	if c.SecretKey == "" || c.AESKey == "" {
		return ErrMissingKeys
	}
	if err := crypto.CheckKey([]byte(c.AESKey)); err != nil {
		return fmt.Errorf("AES_KEY: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.ValidateKeys(); err != nil {
		return err
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.ServerPort)
	}
	switch c.Transport {
	case TransportTCP, TransportQUIC:
	default:
		return fmt.Errorf("TRANSPORT must be tcp or quic, got %q", c.Transport)
	}
	if c.TokenMaxAgeSeconds < 0 {
		return fmt.Errorf("TOKEN_MAX_AGE_SECONDS must be >= 0")
	}
	if c.MaxConnsPerIP < 0 {
		return fmt.Errorf("MAX_CONNS_PER_IP must be >= 0")
	}
	switch c.ShutdownPolicy {
	case "abandon", "drain", "close":
	default:
		return fmt.Errorf("SHUTDOWN_POLICY must be abandon, drain or close, got %q", c.ShutdownPolicy)
	}
	if _, err := c.Seed(); err != nil {
		return fmt.Errorf("SEED_ACCOUNTS: %w", err)
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

func (c Config) Keys() proto.Keys {
	return proto.Keys{Cipher: []byte(c.AESKey), MAC: []byte(c.SecretKey)}
}

func (c Config) Seed() (map[string]decimal.Decimal, error) {
	return ledger.ParseSeed(c.SeedAccounts)
}
