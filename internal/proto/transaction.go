// internal/proto/transaction.go
package proto

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeTransfer Type = "TRANSFER"
	TypeBalance  Type = "BALANCE"
	TypePayment  Type = "PAYMENT"
	TypeDeposit  Type = "DEPOSIT"
)

func (t Type) Known() bool {
	switch t {
	case TypeTransfer, TypeBalance, TypePayment, TypeDeposit:
		return true
	}
	return false
}

// TimestampLayout is ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Transaction is built once by the client and only read afterwards.
// Reserved is the trailing payload field kept for wire compatibility; it is
// always sent empty and ignored on receipt.
type Transaction struct {
	ID           string          `json:"id"`
	Timestamp    string          `json:"timestamp"`
	Type         Type            `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	AccountFrom  string          `json:"account_from,omitempty"`
	AccountTo    string          `json:"account_to,omitempty"`
	ServiceCode  string          `json:"service_code,omitempty"`
	DynamicToken string          `json:"-"`
	Reserved     string          `json:"-"`
}
