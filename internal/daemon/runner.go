package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"securetx/internal/config"
	"securetx/internal/events"
	"securetx/internal/ledger"
	"securetx/internal/metrics"
	"securetx/internal/network"
	"securetx/internal/pprofutil"
)

const (
	adminShutdownTimeout = 5 * time.Second
	eventQueueSize       = 256
)

// Runner assembles a Service, its listener, the optional admin HTTP server and
// the optional event publisher from a validated Config.
type Runner struct {
	cfg       config.Config
	policy    ShutdownPolicy
	svc       *Service
	publisher events.Publisher

	mu        sync.RWMutex
	listen    string
	adminAddr string
}

func NewRunner(cfg config.Config) (*Runner, error) {
	policy, err := ParseShutdownPolicy(cfg.ShutdownPolicy)
	if err != nil {
		return nil, err
	}
	seed, err := cfg.Seed()
	if err != nil {
		return nil, fmt.Errorf("seed accounts: %w", err)
	}
	var pub events.Publisher = events.Noop{}
	if cfg.RabbitMQURL != "" {
		rp, err := events.DialRabbit(cfg.RabbitMQURL, cfg.EventsExchange)
		if err != nil {
			log.Warn().Err(err).Msg("rabbitmq unavailable, events disabled")
		} else {
			log.Info().Str("exchange", cfg.EventsExchange).Msg("publishing ledger events")
			pub = events.NewAsync(rp, eventQueueSize)
		}
	}
	svc, err := NewService(Options{
		Keys:        cfg.Keys(),
		TokenMaxAge: cfg.TokenMaxAgeSeconds,
		Ledger:      ledger.New(seed),
		History:     ledger.NewHistory(),
		Metrics:     metrics.New(),
		Publisher:   pub,
	})
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	return &Runner{cfg: cfg, policy: policy, svc: svc, publisher: pub}, nil
}

func (r *Runner) Service() *Service {
	return r.svc
}

func (r *Runner) ListenAddr() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listen
}

func (r *Runner) AdminAddr() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adminAddr
}

// RunWithContext listens, reports the bound address on ready and serves until
// ctx is done. Bind failures are returned before anything is served. A Runner
// runs once.
func (r *Runner) RunWithContext(ctx context.Context, ready chan<- string) error {
	defer r.finish()

	ln, err := network.Listen(r.cfg.Transport, r.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.cfg.Addr(), err)
	}
	srv := NewServer(r.svc, ln, ServerOptions{Policy: r.policy, MaxConnsPerIP: r.cfg.MaxConnsPerIP})

	var admin *http.Server
	if r.cfg.AdminAddr != "" {
		adminLn, err := net.Listen("tcp", r.cfg.AdminAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("admin listen %s: %w", r.cfg.AdminAddr, err)
		}
		admin = &http.Server{Handler: NewAdminRouter(r.svc, srv), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := admin.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin server stopped")
			}
		}()
		r.mu.Lock()
		r.adminAddr = adminLn.Addr().String()
		r.mu.Unlock()
		log.Info().Str("addr", adminLn.Addr().String()).Msg("admin listening")
	}

	var prof *pprofutil.Server
	if r.cfg.PprofAddr != "" {
		prof, err = pprofutil.Start(r.cfg.PprofAddr, r.cfg.PprofAllowPublic)
		if err != nil {
			log.Warn().Err(err).Msg("pprof disabled")
		}
	}

	actual := ln.Addr().String()
	r.mu.Lock()
	r.listen = actual
	r.mu.Unlock()
	log.Info().
		Str("addr", actual).
		Str("transport", r.cfg.Transport).
		Int("token_max_age", r.cfg.TokenMaxAgeSeconds).
		Str("shutdown_policy", string(r.policy)).
		Msg("server listening")
	if ready != nil {
		select {
		case ready <- actual:
		default:
		}
	}

	err = srv.Serve(ctx)
	if admin != nil {
		sctx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		_ = admin.Shutdown(sctx)
		cancel()
	}
	if prof != nil {
		sctx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		_ = prof.Shutdown(sctx)
		cancel()
	}
	return err
}

func (r *Runner) finish() {
	if err := r.publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("close event publisher")
	}
	if err := r.svc.Metrics().WriteSnapshot(r.cfg.MetricsPath); err != nil {
		log.Warn().Err(err).Str("path", r.cfg.MetricsPath).Msg("write metrics snapshot")
	}
	LogStatus(r.svc.Status(statusRecent))
}
