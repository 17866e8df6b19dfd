// Package events publishes executed transactions to a message broker. It is
// optional: with no broker configured the server uses Noop.
package events

import (
	"context"
	"strings"
	"time"

	"securetx/internal/proto"
)

// Event is the broker message for one executed transaction. The dynamic token
// is never included.
type Event struct {
	TxID        string    `json:"tx_id"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	AccountFrom string    `json:"account_from,omitempty"`
	AccountTo   string    `json:"account_to,omitempty"`
	ServiceCode string    `json:"service_code,omitempty"`
	Result      string    `json:"result"`
	ExecutedAt  time.Time `json:"executed_at"`
}

func FromTransaction(tx proto.Transaction, result string, at time.Time) Event {
	return Event{
		TxID:        tx.ID,
		Type:        string(tx.Type),
		Amount:      tx.Amount.String(),
		AccountFrom: tx.AccountFrom,
		AccountTo:   tx.AccountTo,
		ServiceCode: tx.ServiceCode,
		Result:      result,
		ExecutedAt:  at.UTC(),
	}
}

// RoutingKey is "transaction.<type>" in lower case, e.g. transaction.transfer.
func RoutingKey(typ string) string {
	return "transaction." + strings.ToLower(typ)
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
