package testutil

import "sync"

// Recorder collects labelled calls from handlers running on any goroutine.
type Recorder struct {
	mu    sync.Mutex
	calls []string
	seen  chan string
}

// NewRecorder creates a recorder whose Seen channel buffers up to size calls.
func NewRecorder(size int) *Recorder {
	return &Recorder{seen: make(chan string, size)}
}

// Record appends call and publishes it on Seen without blocking.
func (r *Recorder) Record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	select {
	case r.seen <- call:
	default:
	}
}

// Calls returns a copy of every recorded call in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Seen delivers calls as they are recorded.
func (r *Recorder) Seen() <-chan string {
	return r.seen
}
