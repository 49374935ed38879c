package testutil

import (
	"context"
	"sync"

	"pickup/internal/notify"
)

// Recorder is a Notifier that keeps every message.
type Recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *Recorder) Send(_ context.Context, msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *Recorder) Messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.msgs...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}
