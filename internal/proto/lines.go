package proto

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxLineSize caps one wire line; the longest legitimate envelope is well
	// under 1 KiB.
	MaxLineSize = 64 << 10
	lineEnd     = '\n'
)

var (
	ErrLineTooLong = errors.New("message too large")
	ErrTruncated   = errors.New("connection closed mid-message")
)

// NewLineScanner yields one line per '\n'. Bytes after the newline stay
// buffered for the next Scan, so pipelined requests are all served. A trailing
// fragment without a newline is never yielded; Err reports ErrTruncated.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxLineSize)
	sc.Split(scanLines)
	return sc
}

func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, lineEnd); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if atEOF && len(data) > 0 {
		return 0, nil, ErrTruncated
	}
	return 0, nil, nil
}

// ScanErr maps bufio's size error onto ErrLineTooLong.
func ScanErr(sc *bufio.Scanner) error {
	err := sc.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		return ErrLineTooLong
	}
	return err
}

func WriteLine(w io.Writer, line string) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, lineEnd)
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("short write")
		}
		total += n
	}
	return nil
}
