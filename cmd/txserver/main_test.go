package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func clearKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SECRET_KEY", "AES_KEY", "DEV_KEYS"} {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { _ = os.Setenv(k, v) })
		}
		_ = os.Unsetenv(k)
	}
}

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"--help"}, &out, &out)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out.String(), "txserver") || !strings.Contains(out.String(), "-dev-keys") {
		t.Fatalf("unexpected help output: %s", out.String())
	}
}

func TestMissingKeysIsFatal(t *testing.T) {
	clearKeys(t)
	var out bytes.Buffer
	code := run([]string{"--env-dir", t.TempDir()}, &out, &out)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out.String(), "SECRET_KEY") {
		t.Fatalf("expected missing key message, got %s", out.String())
	}
}

func TestBadFlags(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"--nope"}, &out, &out); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if code := run([]string{"extra"}, &out, &out); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestInvalidTransport(t *testing.T) {
	clearKeys(t)
	var out bytes.Buffer
	code := run([]string{"--env-dir", t.TempDir(), "--dev-keys", "--transport", "udp"}, &out, &out)
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(out.String(), "development keys") {
		t.Fatalf("expected dev key warning, got %s", out.String())
	}
}
