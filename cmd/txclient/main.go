package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"securetx/internal/client"
	"securetx/internal/config"
	"securetx/internal/network"
	"securetx/internal/proto"
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("txclient", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr, fs) }
	envDir := fs.String("env-dir", ".", "directory holding an optional .env file")
	transport := fs.String("transport", "", "tcp or quic (default from TRANSPORT)")
	insecure := fs.Bool("insecure-tls", false, "skip QUIC certificate verification")
	devKeys := fs.Bool("dev-keys", false, "use built-in development keys when SECRET_KEY/AES_KEY are unset (unsafe)")
	timeout := fs.Duration("timeout", 10*time.Second, "overall request timeout")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	rest := fs.Args()
	if len(rest) < 3 {
		printUsage(stderr, fs)
		return 1
	}
	port, err := strconv.Atoi(rest[1])
	if err != nil || port <= 0 || port > 65535 {
		fmt.Fprintf(stderr, "invalid port %q\n", rest[1])
		return 1
	}
	tx, err := parseCommand(rest[2], rest[3:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		if errors.Is(err, errUsage) {
			printUsage(stderr, fs)
		}
		return 1
	}

	cfg, err := config.Load(*envDir)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if *devKeys {
		cfg.DevKeys = true
	}
	if cfg.ApplyDevKeys() {
		fmt.Fprintln(stderr, color.YellowString("WARNING: using built-in development keys"))
	}
	if err := cfg.ValidateKeys(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *transport != "" {
		cfg.Transport = strings.ToLower(*transport)
	}

	addr := net.JoinHostPort(rest[0], strconv.Itoa(port))
	c := client.New(addr, cfg.Keys(), network.Dialer{Transport: cfg.Transport, InsecureTLS: *insecure})
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sent, resp, err := c.Send(ctx, tx)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("failed:"), err)
		return 1
	}
	printResult(stdout, sent, resp)
	if !resp.OK() {
		return 1
	}
	return 0
}

// parseCommand maps the positional command form onto a transaction.
func parseCommand(cmd string, args []string) (proto.Transaction, error) {
	want := map[string]int{"transfer": 3, "balance": 1, "payment": 3, "deposit": 2}
	n, ok := want[strings.ToLower(cmd)]
	if !ok {
		return proto.Transaction{}, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if len(args) != n {
		return proto.Transaction{}, fmt.Errorf("%w: %s takes %d arguments, got %d", errUsage, cmd, n, len(args))
	}
	if strings.ToLower(cmd) == "balance" {
		return client.Balance(args[0]), nil
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil {
		return proto.Transaction{}, fmt.Errorf("invalid amount %q", args[0])
	}
	if amount.IsNegative() {
		return proto.Transaction{}, fmt.Errorf("amount must not be negative: %s", args[0])
	}
	if amount.Exponent() < -proto.MaxAmountScale {
		return proto.Transaction{}, fmt.Errorf("amount has more than %d decimal places: %s", proto.MaxAmountScale, args[0])
	}
	switch strings.ToLower(cmd) {
	case "transfer":
		return client.Transfer(amount, args[1], args[2]), nil
	case "payment":
		return client.Payment(amount, args[1], args[2]), nil
	default:
		return client.Deposit(amount, args[1]), nil
	}
}

func printResult(w io.Writer, sent proto.Transaction, resp proto.Response) {
	status := color.GreenString(resp.Status)
	if !resp.OK() {
		status = color.RedString(resp.Status)
	}
	fmt.Fprintf(w, "Transaction: %s %s\n", sent.Type, sent.ID)
	fmt.Fprintf(w, "Status:      %s\n", status)
	fmt.Fprintf(w, "Timestamp:   %s\n", resp.Timestamp)
	if resp.TxID != "" {
		fmt.Fprintf(w, "Server ID:   %s\n", resp.TxID)
	}
	fmt.Fprintf(w, "Result:      %s\n", resp.Text)
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "usage: txclient [flags] <host> <port> <command> [args...]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  transfer <amount> <from> <to>")
	fmt.Fprintln(w, "  balance <account>")
	fmt.Fprintln(w, "  payment <amount> <from> <service-code>")
	fmt.Fprintln(w, "  deposit <amount> <to>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "examples:")
	fmt.Fprintln(w, "  txclient localhost 8080 transfer 100.50 1234567890123456 6543210987654321")
	fmt.Fprintln(w, "  txclient localhost 8080 balance 1234567890123456")
	fmt.Fprintln(w, "  txclient localhost 8080 payment 75.25 1234567890123456 EAAB001")
	fmt.Fprintln(w, "  txclient localhost 8080 deposit 200.00 1234567890123456")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}
