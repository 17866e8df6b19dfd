// Package client builds, seals and sends transactions to a server.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"securetx/internal/crypto"
	"securetx/internal/network"
	"securetx/internal/proto"
)

var ErrNoResponse = errors.New("server closed the connection without a response")

func Transfer(amount decimal.Decimal, from, to string) proto.Transaction {
	return proto.Transaction{Type: proto.TypeTransfer, Amount: amount, AccountFrom: from, AccountTo: to}
}

// Balance carries a zero amount; the server ignores it.
func Balance(account string) proto.Transaction {
	return proto.Transaction{Type: proto.TypeBalance, Amount: decimal.Zero, AccountFrom: account}
}

func Payment(amount decimal.Decimal, from, serviceCode string) proto.Transaction {
	return proto.Transaction{Type: proto.TypePayment, Amount: amount, AccountFrom: from, ServiceCode: serviceCode}
}

func Deposit(amount decimal.Decimal, to string) proto.Transaction {
	return proto.Transaction{Type: proto.TypeDeposit, Amount: amount, AccountTo: to}
}

type Client struct {
	addr   string
	keys   proto.Keys
	dialer network.Dialer
	now    func() time.Time
	newID  func() string
}

func New(addr string, keys proto.Keys, dialer network.Dialer) *Client {
	return &Client{
		addr:   addr,
		keys:   keys,
		dialer: dialer,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Prepare stamps tx with a fresh id, the current time and a dynamic token.
func (c *Client) Prepare(tx proto.Transaction) proto.Transaction {
	now := c.now()
	tx.ID = c.newID()
	tx.Timestamp = proto.FormatTimestamp(now)
	tx.DynamicToken = crypto.TokenAt(c.keys.MAC, tx.ID, now.Unix())
	tx.Reserved = ""
	return tx
}

// Send delivers one transaction on a fresh connection and waits for its
// response.
func (c *Client) Send(ctx context.Context, tx proto.Transaction) (proto.Transaction, proto.Response, error) {
	prepared := c.Prepare(tx)
	resps, err := c.exchange(ctx, []proto.Transaction{prepared})
	if err != nil {
		return prepared, proto.Response{}, err
	}
	return prepared, resps[0], nil
}

// SendAll pipelines txs on one connection. Responses come back in request
// order.
func (c *Client) SendAll(ctx context.Context, txs []proto.Transaction) ([]proto.Response, error) {
	prepared := make([]proto.Transaction, len(txs))
	for i, tx := range txs {
		prepared[i] = c.Prepare(tx)
	}
	return c.exchange(ctx, prepared)
}

func (c *Client) exchange(ctx context.Context, txs []proto.Transaction) ([]proto.Response, error) {
	lines := make([]string, len(txs))
	for i, tx := range txs {
		line, err := proto.Seal(tx, c.keys)
		if err != nil {
			return nil, fmt.Errorf("seal %s: %w", tx.Type, err)
		}
		lines[i] = line
	}

	conn, err := c.dialer.Dial(ctx, c.addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// Responses are read while requests are still being written; the server
	// stops reading once its replies back up.
	got := make(chan received, 1)
	go func() { got <- readResponses(conn, len(lines)) }()

	w := bufio.NewWriter(conn)
	for _, line := range lines {
		if err = proto.WriteLine(w, line); err != nil {
			break
		}
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		_ = conn.Close()
		r := <-got
		if ctx.Err() != nil {
			return r.resps, ctx.Err()
		}
		return r.resps, fmt.Errorf("send: %w", err)
	}

	r := <-got
	if r.err != nil && ctx.Err() != nil {
		return r.resps, ctx.Err()
	}
	return r.resps, r.err
}

type received struct {
	resps []proto.Response
	err   error
}

func readResponses(r io.Reader, n int) received {
	sc := proto.NewLineScanner(r)
	out := make([]proto.Response, 0, n)
	for len(out) < n && sc.Scan() {
		resp, err := proto.ParseResponse(sc.Text())
		if err != nil {
			return received{resps: out, err: err}
		}
		out = append(out, resp)
	}
	if len(out) < n {
		if err := proto.ScanErr(sc); err != nil && !errors.Is(err, io.EOF) {
			return received{resps: out, err: fmt.Errorf("receive: %w", err)}
		}
		return received{resps: out, err: ErrNoResponse}
	}
	return received{resps: out}
}
