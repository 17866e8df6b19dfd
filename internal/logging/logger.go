package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger once at process start. Unknown levels
// fall back to info.
func Setup(level string, pretty bool, out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// Redact keeps the first 8 characters of a secret-derived value.
func Redact(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "…"
}

var (
	rlMu    sync.Mutex
	rlLast  = make(map[string]time.Time)
	rlSweep = time.Now()
)

// Limited reports whether a message under key may be logged now, allowing at
// most one per interval. Stale keys are swept as a side effect.
func Limited(key string, interval time.Duration) bool {
	if key == "" {
		return true
	}
	now := time.Now()
	rlMu.Lock()
	defer rlMu.Unlock()
	if last, ok := rlLast[key]; ok && now.Sub(last) < interval {
		return false
	}
	rlLast[key] = now
	if now.Sub(rlSweep) > 2*interval {
		for k, ts := range rlLast {
			if now.Sub(ts) > 4*interval {
				delete(rlLast, k)
			}
		}
		rlSweep = now
	}
	return true
}
