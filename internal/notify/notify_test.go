package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pickup/internal/logging"

	"github.com/stretchr/testify/assert"
)

type fakeSink struct {
	mu   sync.Mutex
	msgs []Message
	fail bool
}

func (s *fakeSink) Deliver(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("channel unavailable")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, 1000, 10, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Send(ctx, Message{Target: 1, Content: "a"})
	d.Send(ctx, Message{Target: 1, Content: "b"})

	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	assert.Equal(t, "a", sink.msgs[0].Content)
	assert.Equal(t, "b", sink.msgs[1].Content)
	sink.mu.Unlock()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, 1000, 1, logging.Discard())

	// Not running: the second send must not block.
	done := make(chan struct{})
	go func() {
		d.Send(context.Background(), Message{Content: "kept"})
		d.Send(context.Background(), Message{Content: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
	assert.Len(t, d.queue, 1)
}

func TestDispatcherSurvivesSinkErrors(t *testing.T) {
	sink := &fakeSink{fail: true}
	d := NewDispatcher(sink, 1000, 10, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Send(ctx, Message{Content: "lost"})
	assert.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	d.Send(ctx, Message{Content: "delivered"})
	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}
