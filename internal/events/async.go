package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const publishTimeout = 5 * time.Second

var ErrQueueFull = errors.New("event queue full")

// Async hands events to a single background goroutine so request handlers
// never wait on the broker. When the queue is full the event is dropped and
// Publish reports ErrQueueFull.
type Async struct {
	next Publisher
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewAsync(next Publisher, queue int) *Async {
	if queue <= 0 {
		queue = 256
	}
	a := &Async{next: next, ch: make(chan Event, queue), done: make(chan struct{})}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := a.next.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("tx_id", ev.TxID).Msg("event publish failed")
		}
		cancel()
	}
}

// Publish never blocks. It must not be called after Close.
func (a *Async) Publish(_ context.Context, ev Event) error {
	select {
	case a.ch <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close flushes queued events and closes the wrapped publisher.
func (a *Async) Close() error {
	a.once.Do(func() { close(a.ch) })
	<-a.done
	return a.next.Close()
}
