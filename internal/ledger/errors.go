// internal/ledger/errors.go
package ledger

import "errors"

// Error texts are sent to clients verbatim after the detail is appended, so
// they must not contain '|'.
var (
	ErrUnknownAccount    = errors.New("unknown account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnsupportedType   = errors.New("unsupported transaction type")
)
