// Package pprofutil serves the runtime profiler on a separate, normally
// loopback-only listener.
package pprofutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start binds addr and serves /debug/pprof/ until Shutdown. A non-loopback
// addr is refused unless allowPublic is set.
func Start(addr string, allowPublic bool) (*Server, error) {
	if !allowPublic && !isLoopbackBind(addr) {
		return nil, fmt.Errorf("PPROF_ADDR must be loopback unless PPROF_ALLOW_PUBLIC is set: %s", addr)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pprof listen: %w", err)
	}
	s := &Server{
		srv: &http.Server{Handler: handler(), ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("pprof server stopped")
		}
	}()
	log.Info().Str("url", "http://"+s.Addr()+"/debug/pprof/").Msg("pprof enabled")
	return s, nil
}

func handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown is a no-op on a nil Server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func isLoopbackBind(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
