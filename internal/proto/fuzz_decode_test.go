package proto

import (
	"bytes"
	"testing"

	"securetx/internal/testutil"
)

func FuzzParseEnvelope(f *testing.F) {
	f.Add("AAAAAAAAAAAAAAAAAAAAAA==:YWJj:00")
	f.Add("::")
	f.Add("a:b:c:d")
	keys := testKeys()
	f.Fuzz(func(t *testing.T, line string) {
		line = string(testutil.CapBytes([]byte(line), testutil.DefaultMaxFuzzBytes))
		testutil.WithTimeout(t, testutil.DefaultFuzzTimeout, func() {
			env, err := ParseEnvelope(line)
			if err == nil {
				_, _ = Open(env, keys)
			}
		})
	})
}

func FuzzDecodePayload(f *testing.F) {
	f.Add("id|ts|TRANSFER|1.5|a|b|c|d|")
	f.Add("||||||||")
	f.Fuzz(func(t *testing.T, s string) {
		s = string(testutil.CapBytes([]byte(s), testutil.DefaultMaxFuzzBytes))
		testutil.WithTimeout(t, testutil.DefaultFuzzTimeout, func() {
			tx, err := DecodePayload(s)
			if err != nil {
				return
			}
			out, err := EncodePayload(tx)
			if err != nil {
				return
			}
			again, err := DecodePayload(out)
			if err != nil {
				t.Errorf("re-decode of %q failed: %v", out, err)
				return
			}
			if second, _ := EncodePayload(again); second != out {
				t.Errorf("unstable encoding %q -> %q", out, second)
			}
		})
	})
}

func FuzzLineScanner(f *testing.F) {
	f.Add([]byte("a\nb\r\nc"))
	f.Fuzz(func(t *testing.T, data []byte) {
		data = testutil.CapBytes(data, testutil.DefaultMaxFuzzBytes)
		testutil.WithTimeout(t, testutil.DefaultFuzzTimeout, func() {
			sc := NewLineScanner(bytes.NewReader(data))
			for sc.Scan() {
			}
			_ = ScanErr(sc)
		})
	})
}
