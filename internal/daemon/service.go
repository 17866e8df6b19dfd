package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"securetx/internal/crypto"
	"securetx/internal/events"
	"securetx/internal/ledger"
	"securetx/internal/logging"
	"securetx/internal/metrics"
	"securetx/internal/proto"
)

const (
	integrityLogInterval = 10 * time.Second
	eventDropLogInterval = 10 * time.Second
	statusRecent         = 5
)

// Options wires a Service. Nil Ledger, History, Metrics and Publisher get
// empty defaults; Now defaults to time.Now.
type Options struct {
	Keys        proto.Keys
	TokenMaxAge int
	Now         func() time.Time
	Ledger      *ledger.Ledger
	History     *ledger.History
	Metrics     *metrics.Metrics
	Publisher   events.Publisher
}

// Service turns one request line into one response. It is safe for
// concurrent use by every connection handler.
type Service struct {
	keys      proto.Keys
	maxAge    int
	now       func() time.Time
	ledger    *ledger.Ledger
	history   *ledger.History
	metrics   *metrics.Metrics
	publisher events.Publisher
}

func NewService(opts Options) (*Service, error) {
	if err := crypto.CheckKey(opts.Keys.Cipher); err != nil {
		return nil, fmt.Errorf("cipher key: %w", err)
	}
	if len(opts.Keys.MAC) == 0 {
		return nil, fmt.Errorf("missing shared secret")
	}
	if opts.TokenMaxAge < 0 {
		return nil, fmt.Errorf("negative token max age")
	}
	s := &Service{
		keys:      opts.Keys,
		maxAge:    opts.TokenMaxAge,
		now:       opts.Now,
		ledger:    opts.Ledger,
		history:   opts.History,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ledger == nil {
		s.ledger = ledger.New(nil)
	}
	if s.history == nil {
		s.history = ledger.NewHistory()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	return s, nil
}

func (s *Service) Ledger() *ledger.Ledger    { return s.ledger }
func (s *Service) History() *ledger.History  { return s.history }
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Process authenticates, decrypts, checks the token and executes one request.
// The token is checked before the ledger is touched.
func (s *Service) Process(line string, remote string) proto.Response {
	s.metrics.IncReceived()

	tx, err := proto.OpenLine(line, s.keys)
	if err != nil {
		return s.reject(err, remote, "")
	}
	if err := crypto.ValidateToken(tx.DynamicToken, s.keys.MAC, tx.ID, s.now(), s.maxAge); err != nil {
		log.Debug().Str("tx_id", tx.ID).Str("token", logging.Redact(tx.DynamicToken)).Str("timestamp", tx.Timestamp).Msg("token rejected")
		return s.reject(err, remote, tx.ID)
	}
	result, err := s.ledger.Execute(tx)
	if err != nil {
		return s.reject(err, remote, tx.ID)
	}

	now := s.now()
	s.history.Append(tx)
	s.metrics.IncExecuted(metrics.TxHeader{ID: tx.ID, Type: string(tx.Type), Amount: tx.Amount.String(), At: now.UTC()})
	switch err := s.publisher.Publish(context.Background(), events.FromTransaction(tx, result, now)); {
	case err == nil:
	case errors.Is(err, events.ErrQueueFull):
		s.metrics.IncEventDropped()
		if logging.Limited("events:dropped", eventDropLogInterval) {
			log.Warn().Str("tx_id", tx.ID).Msg("event queue full, dropping ledger events")
		}
	default:
		log.Warn().Err(err).Str("tx_id", tx.ID).Msg("event publish failed")
	}
	log.Info().
		Str("remote", remote).
		Str("tx_id", tx.ID).
		Str("type", string(tx.Type)).
		Str("amount", tx.Amount.String()).
		Msg("transaction executed")
	return proto.Success(now, tx.ID, result)
}

func (s *Service) reject(err error, remote, txID string) proto.Response {
	text, reason := errorText(err)
	s.metrics.IncRejected(reason)
	if errors.Is(err, crypto.ErrIntegrity) {
		host := remote
		if h, _, err := net.SplitHostPort(remote); err == nil {
			host = h
		}
		if logging.Limited("integrity:"+host, integrityLogInterval) {
			log.Warn().Str("remote", remote).Msg("integrity verification failed")
		}
	} else {
		log.Info().Str("remote", remote).Str("tx_id", txID).Str("reason", reason).Err(err).Msg("request rejected")
	}
	return proto.Failure(s.now(), text)
}

// errorText maps a pipeline error to the client-visible text and a bounded
// metrics reason. Ledger errors carry their detail to the client.
func errorText(err error) (text, reason string) {
	for _, sentinel := range []error{
		proto.ErrMalformedEnvelope,
		proto.ErrInvalidIV,
		crypto.ErrIntegrity,
		crypto.ErrDecryption,
		proto.ErrMalformedPayload,
		crypto.ErrTokenInvalid,
		proto.ErrLineTooLong,
		errConnLimit,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), sentinel.Error()
		}
	}
	for _, sentinel := range []error{
		ledger.ErrUnknownAccount,
		ledger.ErrInsufficientFunds,
		ledger.ErrUnsupportedType,
	} {
		if errors.Is(err, sentinel) {
			return err.Error(), sentinel.Error()
		}
	}
	if errors.Is(err, crypto.ErrKeySize) || errors.Is(err, crypto.ErrIVSize) {
		return crypto.ErrDecryption.Error(), crypto.ErrDecryption.Error()
	}
	return "internal error", "internal"
}

var errConnLimit = errors.New("connection limit reached")
