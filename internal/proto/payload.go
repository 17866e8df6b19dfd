package proto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	PayloadFields = 9
	fieldSep      = "|"

	// MaxAmountScale bounds the fractional digits of an amount. Legacy
	// clients send six.
	MaxAmountScale = 8
	maxAmountLen   = 32
)

var (
	ErrMalformedPayload = errors.New("malformed transaction payload")
	ErrFieldDelimiter   = errors.New("field contains a reserved delimiter")
)

// EncodePayload joins the nine fields in wire order. Values are never escaped:
// a value holding '|' or a line break is refused here instead of producing a
// payload the server would split differently.
func EncodePayload(tx Transaction) (string, error) {
	if err := checkAmount(tx.Amount); err != nil {
		return "", err
	}
	fields := [PayloadFields]string{
		tx.ID,
		tx.Timestamp,
		string(tx.Type),
		tx.Amount.String(),
		tx.AccountFrom,
		tx.AccountTo,
		tx.ServiceCode,
		tx.DynamicToken,
		tx.Reserved,
	}
	for i, f := range fields {
		if strings.ContainsAny(f, "|\r\n") {
			return "", fmt.Errorf("%w: field %d", ErrFieldDelimiter, i)
		}
	}
	return strings.Join(fields[:], fieldSep), nil
}

func DecodePayload(s string) (Transaction, error) {
	parts := strings.Split(s, fieldSep)
	if len(parts) != PayloadFields {
		return Transaction{}, fmt.Errorf("%w: %d fields", ErrMalformedPayload, len(parts))
	}
	for i, f := range parts {
		if strings.ContainsAny(f, "\r\n") {
			return Transaction{}, fmt.Errorf("%w: line break in field %d", ErrMalformedPayload, i)
		}
	}
	// Plain decimal digits only: exponent notation would let a short field
	// carry an unbounded scale into the ledger.
	if len(parts[3]) > maxAmountLen || strings.ContainsAny(parts[3], "eE") {
		return Transaction{}, fmt.Errorf("%w: bad amount", ErrMalformedPayload)
	}
	amount, err := decimal.NewFromString(parts[3])
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: bad amount", ErrMalformedPayload)
	}
	if err := checkAmount(amount); err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:           parts[0],
		Timestamp:    parts[1],
		Type:         Type(parts[2]),
		Amount:       amount,
		AccountFrom:  parts[4],
		AccountTo:    parts[5],
		ServiceCode:  parts[6],
		DynamicToken: parts[7],
		Reserved:     parts[8],
	}, nil
}

func checkAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: negative amount", ErrMalformedPayload)
	}
	if d.Exponent() < -MaxAmountScale {
		return fmt.Errorf("%w: more than %d decimal places", ErrMalformedPayload, MaxAmountScale)
	}
	return nil
}
