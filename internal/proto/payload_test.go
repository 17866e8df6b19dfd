package proto

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEncodePayloadFieldOrder(t *testing.T) {
	tx := sampleTx()
	got, err := EncodePayload(tx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := tx.ID + "|2025-03-01T10:00:00.000Z|TRANSFER|100.5|1111|2222||" + tx.DynamicToken + "|"
	if got != want {
		t.Fatalf("unexpected payload:\n got %q\nwant %q", got, want)
	}
	if n := strings.Count(got, "|"); n != PayloadFields-1 {
		t.Fatalf("expected %d separators, got %d", PayloadFields-1, n)
	}
}

func TestPayloadRoundTripByteIdentical(t *testing.T) {
	txs := []Transaction{
		sampleTx(),
		{ID: "b", Timestamp: "t", Type: TypeBalance, Amount: decimal.Zero, AccountFrom: "1234567890123456", DynamicToken: "00"},
		{ID: "c", Timestamp: "t", Type: TypePayment, Amount: decimal.RequireFromString("75.25"), AccountFrom: "1", ServiceCode: "EAAB001"},
		{ID: "d", Timestamp: "t", Type: TypeDeposit, Amount: decimal.RequireFromString("200.00"), AccountTo: "2"},
		{},
	}
	for _, tx := range txs {
		first, err := EncodePayload(tx)
		if err != nil {
			t.Fatalf("encode %q: %v", tx.ID, err)
		}
		decoded, err := DecodePayload(first)
		if err != nil {
			t.Fatalf("decode %q: %v", first, err)
		}
		second, err := EncodePayload(decoded)
		if err != nil {
			t.Fatalf("re-encode %q: %v", tx.ID, err)
		}
		if first != second {
			t.Fatalf("round trip changed payload: %q -> %q", first, second)
		}
	}
}

func TestEncodePayloadRejectsDelimiters(t *testing.T) {
	for _, bad := range []string{"a|b", "a\nb", "a\rb"} {
		tx := sampleTx()
		tx.ServiceCode = bad
		if _, err := EncodePayload(tx); !errors.Is(err, ErrFieldDelimiter) {
			t.Fatalf("value %q: expected delimiter error, got %v", bad, err)
		}
	}
	for _, amt := range []string{"-1", "0.000000001"} {
		tx := sampleTx()
		tx.Amount = decimal.RequireFromString(amt)
		if _, err := EncodePayload(tx); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("amount %s: expected rejection, got %v", amt, err)
		}
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	cases := []string{
		"",
		"a|b|c|1|e|f|g|h",
		"a|b|c|1|e|f|g|h|i|j",
		"a|b|TRANSFER|abc|e|f|g|h|",
		"a|b|TRANSFER|-5|e|f|g|h|",
		"a|b|BALANCE|0|9999\nSUCCESS spoofed|||h|",
		"a|b|BALANCE|0|9999|\r||h|",
		"a\n|b|BALANCE|0|1|||h|",
		"a|b|DEPOSIT|1e-2000000||1||h|",
		"a|b|DEPOSIT|1E3||1||h|",
		"a|b|DEPOSIT|0.000000001||1||h|",
		"a|b|DEPOSIT|" + strings.Repeat("9", 33) + "||1||h|",
	}
	for _, s := range cases {
		if _, err := DecodePayload(s); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("payload %q: expected malformed, got %v", s, err)
		}
	}
}

func TestDecodePayloadAcceptsLegacyAmountsAndTypes(t *testing.T) {
	tx, err := DecodePayload("id|ts|REFUND|100.500000|1|2|svc|tok|")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("100.5")) {
		t.Fatalf("unexpected amount %s", tx.Amount)
	}
	if tx.Type.Known() {
		t.Fatalf("REFUND should not be a known type")
	}
	if tx.ServiceCode != "svc" || tx.DynamicToken != "tok" || tx.Reserved != "" {
		t.Fatalf("unexpected fields: %+v", tx)
	}
}

func TestDecodePayloadAmountScaleLimit(t *testing.T) {
	tx, err := DecodePayload("id|ts|DEPOSIT|0.00000001||1||tok|")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.Amount.Exponent() != -MaxAmountScale {
		t.Fatalf("unexpected exponent %d", tx.Amount.Exponent())
	}
}
