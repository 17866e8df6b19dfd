package proto

import (
	"fmt"
	"strings"
	"time"
)

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Response is one server reply line. TxID is empty for errors.
type Response struct {
	Status    string
	Timestamp string
	TxID      string
	Text      string
}

func (r Response) OK() bool {
	return r.Status == StatusSuccess
}

func Success(now time.Time, txID, result string) Response {
	return Response{Status: StatusSuccess, Timestamp: FormatTimestamp(now), TxID: txID, Text: result}
}

func Failure(now time.Time, text string) Response {
	return Response{Status: StatusError, Timestamp: FormatTimestamp(now), Text: text}
}

func (r Response) String() string {
	if r.Status == StatusSuccess {
		return strings.Join([]string{r.Status, r.Timestamp, r.TxID, r.Text}, fieldSep)
	}
	return strings.Join([]string{r.Status, r.Timestamp, r.Text}, fieldSep)
}

// ParseResponse splits at most as many fields as the status allows, so the
// trailing text may itself contain '|'.
func ParseResponse(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")
	head := strings.SplitN(line, fieldSep, 2)
	if len(head) != 2 {
		return Response{}, fmt.Errorf("invalid response: %q", line)
	}
	switch head[0] {
	case StatusSuccess:
		parts := strings.SplitN(line, fieldSep, 4)
		if len(parts) != 4 {
			return Response{}, fmt.Errorf("invalid success response: %q", line)
		}
		return Response{Status: parts[0], Timestamp: parts[1], TxID: parts[2], Text: parts[3]}, nil
	case StatusError:
		parts := strings.SplitN(line, fieldSep, 3)
		if len(parts) != 3 {
			return Response{}, fmt.Errorf("invalid error response: %q", line)
		}
		return Response{Status: parts[0], Timestamp: parts[1], Text: parts[2]}, nil
	default:
		return Response{}, fmt.Errorf("unknown response status %q", head[0])
	}
}
