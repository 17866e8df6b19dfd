// internal/ledger/ledger.go

// Package ledger holds account balances and the executed-transaction history.
// Balances and history have separate locks and no path holds both.
package ledger

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"securetx/internal/proto"
)

type Ledger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// New copies seed; later changes to the caller's map are not seen.
func New(seed map[string]decimal.Decimal) *Ledger {
	l := &Ledger{balances: make(map[string]decimal.Decimal, len(seed))}
	for acct, bal := range seed {
		l.balances[acct] = bal
	}
	return l
}

// ParseSeed reads "acct=amount,acct=amount". Blank entries are skipped.
func ParseSeed(s string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		acct, amt, ok := strings.Cut(entry, "=")
		acct = strings.TrimSpace(acct)
		if !ok || acct == "" {
			return nil, fmt.Errorf("bad seed entry %q", entry)
		}
		if strings.ContainsAny(acct, "|\r\n") {
			return nil, fmt.Errorf("bad account id %q", acct)
		}
		bal, err := decimal.NewFromString(strings.TrimSpace(amt))
		if err != nil {
			return nil, fmt.Errorf("bad seed amount for %s: %w", acct, err)
		}
		if bal.IsNegative() {
			return nil, fmt.Errorf("negative seed balance for %s", acct)
		}
		out[acct] = bal
	}
	return out, nil
}

// Execute applies tx atomically and returns the human-readable result. On
// error nothing has changed.
func (l *Ledger) Execute(tx proto.Transaction) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch tx.Type {
	case proto.TypeTransfer:
		from, err := l.lookup(tx.AccountFrom)
		if err != nil {
			return "", err
		}
		if _, err := l.lookup(tx.AccountTo); err != nil {
			return "", err
		}
		if from.LessThan(tx.Amount) {
			return "", insufficient(tx.AccountFrom, from, tx.Amount)
		}
		// from == to leaves the balance unchanged.
		l.balances[tx.AccountFrom] = from.Sub(tx.Amount)
		l.balances[tx.AccountTo] = l.balances[tx.AccountTo].Add(tx.Amount)
		return fmt.Sprintf("TRANSFER SUCCESS - %s transferred from %s to %s; from balance: %s; to balance: %s",
			money(tx.Amount), tx.AccountFrom, tx.AccountTo,
			money(l.balances[tx.AccountFrom]), money(l.balances[tx.AccountTo])), nil

	case proto.TypeBalance:
		bal, err := l.lookup(tx.AccountFrom)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("BALANCE SUCCESS - account %s: %s", tx.AccountFrom, money(bal)), nil

	case proto.TypePayment:
		from, err := l.lookup(tx.AccountFrom)
		if err != nil {
			return "", err
		}
		if from.LessThan(tx.Amount) {
			return "", insufficient(tx.AccountFrom, from, tx.Amount)
		}
		rest := from.Sub(tx.Amount)
		l.balances[tx.AccountFrom] = rest
		return fmt.Sprintf("PAYMENT SUCCESS - %s paid to service %s from account %s; remaining balance: %s",
			money(tx.Amount), tx.ServiceCode, tx.AccountFrom, money(rest)), nil

	case proto.TypeDeposit:
		to, err := l.lookup(tx.AccountTo)
		if err != nil {
			return "", err
		}
		now := to.Add(tx.Amount)
		l.balances[tx.AccountTo] = now
		return fmt.Sprintf("DEPOSIT SUCCESS - %s deposited to account %s; current balance: %s",
			money(tx.Amount), tx.AccountTo, money(now)), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, tx.Type)
}

// lookup must be called with l.mu held.
func (l *Ledger) lookup(acct string) (decimal.Decimal, error) {
	bal, ok := l.balances[acct]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownAccount, acct)
	}
	return bal, nil
}

func insufficient(acct string, have, want decimal.Decimal) error {
	return fmt.Errorf("%w: account %s has %s, needs %s", ErrInsufficientFunds, acct, money(have), money(want))
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func (l *Ledger) Balance(acct string) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[acct]
	return bal, ok
}

type Account struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Snapshot returns every account sorted by id.
func (l *Ledger) Snapshot() []Account {
	l.mu.Lock()
	out := make([]Account, 0, len(l.balances))
	for id, bal := range l.balances {
		out = append(out, Account{ID: id, Balance: bal})
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Ledger) Total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	sum := decimal.Zero
	for _, bal := range l.balances {
		sum = sum.Add(bal)
	}
	return sum
}
