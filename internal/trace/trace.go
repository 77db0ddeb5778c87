// Package trace keeps a bounded history of dispatch decisions and streams new
// ones to subscribers (the admin API websocket).
package trace

import (
	"sync"
	"time"

	"plugbot/pkg/bot"

	"github.com/google/uuid"
)

// Outcome is how a dispatch ended.
type Outcome string

// Dispatch outcomes
const (
	OutcomeHandled   Outcome = "handled"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeUnhandled Outcome = "unhandled"
)

// Rejection records one handler that matched but was refused.
type Rejection struct {
	Plugin string `json:"plugin"`
	Reason string `json:"reason"`
}

// Entry is one dispatched update.
type Entry struct {
	ID         string        `json:"id"`
	UpdateID   int64         `json:"update_id"`
	Kind       bot.Kind      `json:"kind"`
	ChatID     int64         `json:"chat_id,omitempty"`
	UserID     int64         `json:"user_id,omitempty"`
	Plugin     string        `json:"plugin,omitempty"`
	Handler    string        `json:"handler,omitempty"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Rejections []Rejection   `json:"rejections,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Time       time.Time     `json:"time"`
}

// NewID returns a fresh trace id.
func NewID() string {
	return uuid.NewString()
}

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 256

// Recorder is a fixed-size ring of recent entries.
type Recorder struct {
	mu   sync.Mutex
	buf  []Entry
	next int
	full bool
	subs map[chan Entry]struct{}
}

// NewRecorder creates a recorder holding up to capacity entries.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{
		buf:  make([]Entry, capacity),
		subs: make(map[chan Entry]struct{}),
	}
}

// Record stores e, assigning an id when it has none, and fans it out to
// subscribers. Slow subscribers miss entries instead of blocking dispatch.
func (r *Recorder) Record(e Entry) {
	if e.ID == "" {
		e.ID = NewID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}

	for ch := range r.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Recent returns the stored entries, newest first.
func (r *Recorder) Recent() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Subscribe returns a channel receiving new entries and a function that
// cancels the subscription and closes the channel.
func (r *Recorder) Subscribe(buffer int) (<-chan Entry, func()) {
	ch := make(chan Entry, buffer)

	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
}
