package daemon

import (
	"time"

	"github.com/rs/zerolog/log"

	"securetx/internal/ledger"
	"securetx/internal/proto"
)

// StatusReport is the operator view: balances, history size and the most
// recent executed transactions.
type StatusReport struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	Accounts     []ledger.Account    `json:"accounts"`
	HistoryCount int                 `json:"history_count"`
	Recent       []proto.Transaction `json:"recent"`
	Active       []HandleInfo        `json:"active,omitempty"`
}

// Status reads balances and history separately, so the two parts may be a
// few transactions apart under load.
func (s *Service) Status(recent int) StatusReport {
	return StatusReport{
		GeneratedAt:  s.now().UTC(),
		Accounts:     s.ledger.Snapshot(),
		HistoryCount: s.history.Len(),
		Recent:       s.history.Recent(recent),
	}
}

func LogStatus(r StatusReport) {
	accounts := log.Info()
	for _, a := range r.Accounts {
		accounts = accounts.Str(a.ID, a.Balance.StringFixed(2))
	}
	accounts.Int("history_count", r.HistoryCount).Msg("ledger status")
	for _, tx := range r.Recent {
		log.Info().
			Str("tx_id", tx.ID).
			Str("type", string(tx.Type)).
			Str("amount", tx.Amount.String()).
			Str("timestamp", tx.Timestamp).
			Msg("recent transaction")
	}
}
