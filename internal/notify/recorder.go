package notify

import (
	"context"
	"sync"
)

// Recorded is a message captured by Recorder.
type Recorded struct {
	Message
	Edit bool
}

// Recorder keeps every message in memory. Set Err to make it fail.
type Recorder struct {
	mu       sync.Mutex
	messages []Recorded
	Err      error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	return r.record(msg, false)
}

func (r *Recorder) EditOrReplace(_ context.Context, msg Message) error {
	return r.record(msg, true)
}

func (r *Recorder) record(msg Message, edit bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Recorded{Message: msg, Edit: edit})
	return r.Err
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.messages...)
}

// To returns the messages addressed to one user.
func (r *Recorder) To(tenantID, userID int64) []Recorded {
	var out []Recorded
	for _, m := range r.Messages() {
		if m.TenantID == tenantID && m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
