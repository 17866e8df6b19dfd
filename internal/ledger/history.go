// internal/ledger/history.go
package ledger

import (
	"sync"

	"securetx/internal/proto"
)

// History is the append-only record of executed transactions. It is
// diagnostic only; nothing reads it back into the ledger.
type History struct {
	mu  sync.Mutex
	txs []proto.Transaction
}

func NewHistory() *History {
	return &History{}
}

func (h *History) Append(tx proto.Transaction) {
	h.mu.Lock()
	h.txs = append(h.txs, tx)
	h.mu.Unlock()
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.txs)
}

// Recent returns a copy of the last n entries, oldest first.
func (h *History) Recent(n int) []proto.Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 {
		return nil
	}
	if n > len(h.txs) {
		n = len(h.txs)
	}
	out := make([]proto.Transaction, n)
	copy(out, h.txs[len(h.txs)-n:])
	return out
}
