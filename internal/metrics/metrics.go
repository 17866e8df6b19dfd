package metrics

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TxHeader is the summary kept for a recently executed transaction. Account
// ids and tokens are left out.
type TxHeader struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Amount string    `json:"amount"`
	At     time.Time `json:"at"`
}

type Snapshot struct {
	GeneratedAt    time.Time         `json:"generated_at"`
	Requests       RequestMetrics    `json:"requests"`
	Conns          ConnMetrics       `json:"conns"`
	ExecutedByType map[string]uint64 `json:"executed_by_type"`
	RejectByReason map[string]uint64 `json:"reject_by_reason"`
	EventsDropped  uint64            `json:"events_dropped"`
	Recent         []TxHeader        `json:"recent"`
}

type RequestMetrics struct {
	Received uint64 `json:"received"`
	Executed uint64 `json:"executed"`
	Rejected uint64 `json:"rejected"`
}

type ConnMetrics struct {
	Accepted uint64 `json:"accepted"`
	Refused  uint64 `json:"refused"`
	Current  int64  `json:"current"`
}

type Metrics struct {
	received     atomic.Uint64
	executed     atomic.Uint64
	rejected     atomic.Uint64
	connAccepted atomic.Uint64
	connRefused  atomic.Uint64
	connCurrent  atomic.Int64
	eventDropped atomic.Uint64

	mu       sync.Mutex
	byType   map[string]uint64
	byReason map[string]uint64

	recent *TxRecent
}

func New() *Metrics {
	return &Metrics{
		byType:   make(map[string]uint64),
		byReason: make(map[string]uint64),
		recent:   NewTxRecent(64),
	}
}

func (m *Metrics) IncReceived() {
	m.received.Add(1)
}

// IncExecuted counts a successful execution and remembers its header.
func (m *Metrics) IncExecuted(h TxHeader) {
	m.executed.Add(1)
	m.mu.Lock()
	m.byType[h.Type]++
	m.mu.Unlock()
	m.recent.Add(h)
}

func (m *Metrics) IncRejected(reason string) {
	m.rejected.Add(1)
	m.mu.Lock()
	m.byReason[reason]++
	m.mu.Unlock()
}

func (m *Metrics) ConnOpened() {
	m.connAccepted.Add(1)
	m.connCurrent.Add(1)
}

func (m *Metrics) ConnClosed() {
	m.connCurrent.Add(-1)
}

func (m *Metrics) IncConnRefused() {
	m.connRefused.Add(1)
}

// IncEventDropped counts a ledger event the publisher queue had no room for.
func (m *Metrics) IncEventDropped() {
	m.eventDropped.Add(1)
}

func (m *Metrics) Snapshot() Snapshot {
	recent := []TxHeader{}
	if m.recent != nil {
		recent = m.recent.List()
	}
	m.mu.Lock()
	byType := make(map[string]uint64, len(m.byType))
	for k, v := range m.byType {
		byType[k] = v
	}
	byReason := make(map[string]uint64, len(m.byReason))
	for k, v := range m.byReason {
		byReason[k] = v
	}
	m.mu.Unlock()
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		Requests: RequestMetrics{
			Received: m.received.Load(),
			Executed: m.executed.Load(),
			Rejected: m.rejected.Load(),
		},
		Conns: ConnMetrics{
			Accepted: m.connAccepted.Load(),
			Refused:  m.connRefused.Load(),
			Current:  m.connCurrent.Load(),
		},
		ExecutedByType: byType,
		RejectByReason: byReason,
		EventsDropped:  m.eventDropped.Load(),
		Recent:         recent,
	}
}

func (m *Metrics) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.Snapshot())
}

func (m *Metrics) WriteSnapshot(path string) error {
	if path == "" {
		return nil
	}
	snap := m.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

type TxRecent struct {
	mu   sync.Mutex
	cap  int
	list []TxHeader
}

func NewTxRecent(capacity int) *TxRecent {
	if capacity <= 0 {
		capacity = 64
	}
	return &TxRecent{cap: capacity}
}

func (r *TxRecent) Add(h TxHeader) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.list) >= r.cap {
		copy(r.list, r.list[1:])
		r.list[len(r.list)-1] = h
		return
	}
	r.list = append(r.list, h)
}

func (r *TxRecent) List() []TxHeader {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TxHeader, len(r.list))
	copy(out, r.list)
	return out
}
