package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"securetx/internal/crypto"
)

const testAESKey = "0123456789abcdef0123456789abcdef"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		unsetEnvWithCleanup(t, k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ServerHost != "0.0.0.0" || cfg.ServerPort != 8080 || cfg.Transport != TransportTCP {
		t.Fatalf("unexpected listen defaults: %+v", cfg)
	}
	if cfg.TokenMaxAgeSeconds != crypto.DefaultTokenMaxAge || cfg.MaxConnsPerIP != 0 || cfg.ShutdownPolicy != "abandon" {
		t.Fatalf("unexpected server defaults: %+v", cfg)
	}
	if cfg.SeedAccounts != DefaultSeedAccounts || !cfg.LogPretty || cfg.LogLevel != "info" {
		t.Fatalf("unexpected ambient defaults: %+v", cfg)
	}
	if !errors.Is(cfg.Validate(), ErrMissingKeys) {
		t.Fatalf("expected missing keys error, got %v", cfg.Validate())
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr())
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	setEnvWithCleanup(t, "SECRET_KEY", "s3cret")
	setEnvWithCleanup(t, "AES_KEY", testAESKey)
	setEnvWithCleanup(t, "SERVER_PORT", "9090")
	setEnvWithCleanup(t, "TRANSPORT", "QUIC")
	setEnvWithCleanup(t, "TOKEN_MAX_AGE_SECONDS", "5")
	setEnvWithCleanup(t, "LOG_PRETTY", "false")
	setEnvWithCleanup(t, "SHUTDOWN_POLICY", "drain")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ServerPort != 9090 || cfg.Transport != TransportQUIC || cfg.TokenMaxAgeSeconds != 5 || cfg.LogPretty || cfg.ShutdownPolicy != "drain" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	k := cfg.Keys()
	if string(k.MAC) != "s3cret" || string(k.Cipher) != testAESKey {
		t.Fatalf("unexpected keys")
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	setEnvWithCleanup(t, "SERVER_PORT", "7000")
	dir := t.TempDir()
	data := "SECRET_KEY=from-file\nAES_KEY=" + testAESKey + "\nSERVER_PORT=7001\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(data), 0600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SecretKey != "from-file" || cfg.AESKey != testAESKey {
		t.Fatalf("expected keys from .env, got %+v", cfg)
	}
	if cfg.ServerPort != 7000 {
		t.Fatalf("environment should win over .env, got port %d", cfg.ServerPort)
	}
}

func TestDevKeys(t *testing.T) {
	clearEnv(t)
	setEnvWithCleanup(t, "DEV_KEYS", "true")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.ApplyDevKeys() {
		t.Fatalf("expected dev keys to be applied")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dev keys should validate: %v", err)
	}
	if cfg.ApplyDevKeys() {
		t.Fatalf("second apply should be a no-op")
	}

	off := Config{}
	if off.ApplyDevKeys() || off.SecretKey != "" {
		t.Fatalf("dev keys applied without opt-in")
	}
}

func TestValidateRejects(t *testing.T) {
	base := Config{
		SecretKey: "s", AESKey: testAESKey, ServerPort: 8080, Transport: TransportTCP,
		ShutdownPolicy: "abandon", SeedAccounts: DefaultSeedAccounts,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	cases := map[string]func(c *Config){
		"short aes key":  func(c *Config) { c.AESKey = "too-short" },
		"zero port":      func(c *Config) { c.ServerPort = 0 },
		"big port":       func(c *Config) { c.ServerPort = 70000 },
		"transport":      func(c *Config) { c.Transport = "udp" },
		"negative age":   func(c *Config) { c.TokenMaxAgeSeconds = -1 },
		"negative cap":   func(c *Config) { c.MaxConnsPerIP = -1 },
		"policy":         func(c *Config) { c.ShutdownPolicy = "later" },
		"seed":           func(c *Config) { c.SeedAccounts = "a=notanumber" },
		"missing secret": func(c *Config) { c.SecretKey = "" },
	}
	for name, mutate := range cases {
		c := base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
