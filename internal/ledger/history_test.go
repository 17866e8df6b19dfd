package ledger

import (
	"fmt"
	"sync"
	"testing"

	"securetx/internal/proto"
)

func TestHistoryRecent(t *testing.T) {
	h := NewHistory()
	if got := h.Recent(5); len(got) != 0 {
		t.Fatalf("expected empty history, got %v", got)
	}
	for i := 0; i < 7; i++ {
		h.Append(proto.Transaction{ID: fmt.Sprint(i)})
	}
	if h.Len() != 7 {
		t.Fatalf("len=%d want=7", h.Len())
	}
	got := h.Recent(5)
	if len(got) != 5 || got[0].ID != "2" || got[4].ID != "6" {
		t.Fatalf("unexpected recent entries %v", got)
	}
	got[0].ID = "mutated"
	if h.Recent(5)[0].ID != "2" {
		t.Fatalf("Recent returned an alias")
	}
	if len(h.Recent(100)) != 7 {
		t.Fatalf("expected all entries")
	}
}

func TestHistoryConcurrentAppend(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				h.Append(proto.Transaction{})
			}
		}()
	}
	wg.Wait()
	if h.Len() != 1000 {
		t.Fatalf("len=%d want=1000", h.Len())
	}
}
