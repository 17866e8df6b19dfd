package daemon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"securetx/internal/network"
	"securetx/internal/proto"
)

type ShutdownPolicy string

const (
	// ShutdownAbandon stops accepting and returns; handlers finish on their own.
	ShutdownAbandon ShutdownPolicy = "abandon"
	// ShutdownDrain stops accepting and waits for clients to disconnect.
	ShutdownDrain ShutdownPolicy = "drain"
	// ShutdownClose stops accepting, closes every connection and waits.
	ShutdownClose ShutdownPolicy = "close"
)

func ParseShutdownPolicy(s string) (ShutdownPolicy, error) {
	switch p := ShutdownPolicy(s); p {
	case "":
		return ShutdownAbandon, nil
	case ShutdownAbandon, ShutdownDrain, ShutdownClose:
		return p, nil
	}
	return "", fmt.Errorf("unknown shutdown policy %q", s)
}

// HandleInfo describes one live connection handler.
type HandleInfo struct {
	ID      uint64    `json:"id"`
	Remote  string    `json:"remote"`
	Started time.Time `json:"started"`
}

type handle struct {
	HandleInfo
	conn    network.Conn
	release func()
	done    chan struct{}
}

type ServerOptions struct {
	Policy        ShutdownPolicy
	MaxConnsPerIP int
}

// Server accepts connections and runs one handler goroutine per connection.
// There is no bound on the number of handlers unless MaxConnsPerIP is set.
type Server struct {
	svc     *Service
	ln      network.Listener
	policy  ShutdownPolicy
	limiter *network.IPLimiter

	nextID  atomic.Uint64
	mu      sync.Mutex
	handles map[uint64]*handle
	wg      sync.WaitGroup
}

func NewServer(svc *Service, ln network.Listener, opts ServerOptions) *Server {
	policy := opts.Policy
	if policy == "" {
		policy = ShutdownAbandon
	}
	return &Server{
		svc:     svc,
		ln:      ln,
		policy:  policy,
		limiter: network.NewIPLimiter(opts.MaxConnsPerIP),
		handles: make(map[uint64]*handle),
	}
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve accepts until ctx is done or the listener fails, then applies the
// shutdown policy. It returns nil after a ctx-initiated stop.
func (s *Server) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.ln.Close()
		case <-stop:
		}
	}()

	var serveErr error
	for {
		c, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, network.ErrListenerClosed) {
				serveErr = fmt.Errorf("accept: %w", err)
			}
			break
		}
		s.start(c)
	}
	_ = s.ln.Close()
	s.shutdown()
	return serveErr
}

func (s *Server) start(c network.Conn) {
	remote := ""
	if addr := c.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	release, ok := s.limiter.Acquire(c.RemoteAddr())
	if !ok {
		s.svc.metrics.IncConnRefused()
		s.svc.metrics.IncRejected(errConnLimit.Error())
		log.Warn().
			Str("remote", remote).
			Int("open", s.limiter.Count(network.RemoteHost(c.RemoteAddr()))).
			Msg("connection limit reached")
		_ = proto.WriteLine(c, proto.Failure(s.svc.now(), errConnLimit.Error()).String())
		_ = c.Close()
		return
	}
	h := &handle{
		HandleInfo: HandleInfo{ID: s.nextID.Add(1), Remote: remote, Started: time.Now().UTC()},
		conn:       c,
		release:    release,
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	s.handles[h.ID] = h
	s.mu.Unlock()
	s.wg.Add(1)
	s.svc.metrics.ConnOpened()
	log.Debug().Uint64("conn_id", h.ID).Str("remote", remote).Msg("connection accepted")
	go s.handle(h)
}

func (s *Server) handle(h *handle) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Uint64("conn_id", h.ID).Interface("panic", r).Msg("connection handler panicked")
		}
		_ = h.conn.Close()
		h.release()
		s.mu.Lock()
		delete(s.handles, h.ID)
		s.mu.Unlock()
		s.svc.metrics.ConnClosed()
		close(h.done)
		s.wg.Done()
	}()

	sc := proto.NewLineScanner(h.conn)
	for sc.Scan() {
		resp := s.svc.Process(sc.Text(), h.Remote)
		if err := proto.WriteLine(h.conn, resp.String()); err != nil {
			log.Debug().Err(err).Uint64("conn_id", h.ID).Msg("write failed")
			return
		}
	}
	switch err := proto.ScanErr(sc); {
	case err == nil:
	case errors.Is(err, proto.ErrLineTooLong):
		s.svc.metrics.IncRejected(proto.ErrLineTooLong.Error())
		log.Warn().Uint64("conn_id", h.ID).Str("remote", h.Remote).Msg("request line too long")
		_ = proto.WriteLine(h.conn, proto.Failure(s.svc.now(), proto.ErrLineTooLong.Error()).String())
	case errors.Is(err, proto.ErrTruncated):
		log.Debug().Uint64("conn_id", h.ID).Msg("peer closed mid-message")
	default:
		log.Debug().Err(err).Uint64("conn_id", h.ID).Msg("read failed")
	}
	log.Debug().Uint64("conn_id", h.ID).Msg("connection closed")
}

func (s *Server) shutdown() {
	switch s.policy {
	case ShutdownDrain:
		log.Info().Int("active", len(s.Active())).Msg("draining connections")
		s.wg.Wait()
	case ShutdownClose:
		s.mu.Lock()
		live := make([]*handle, 0, len(s.handles))
		for _, h := range s.handles {
			live = append(live, h)
		}
		s.mu.Unlock()
		for _, h := range live {
			_ = h.conn.Close()
		}
		for _, h := range live {
			<-h.done
		}
	default:
		if n := len(s.Active()); n > 0 {
			log.Info().Int("active", n).Msg("leaving connections to finish on their own")
		}
	}
}

// Active lists live handlers ordered by id.
func (s *Server) Active() []HandleInfo {
	s.mu.Lock()
	out := make([]HandleInfo, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h.HandleInfo)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Wait blocks until every handler has returned or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
