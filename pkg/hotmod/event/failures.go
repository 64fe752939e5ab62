package event

import (
	"fmt"
	"sync"
	"time"
)

// Failure records one recovered subscriber panic.
type Failure struct {
	Topic  string
	Handle Handle
	Err    error
	At     time.Time
}

// failureLog is a bounded in-memory ring of recent subscriber failures.
// Oldest entries are evicted once the capacity is reached.
type failureLog struct {
	mu      sync.Mutex
	max     int
	entries []Failure
}

const defaultFailureCap = 100

func newFailureLog(max int) *failureLog {
	if max <= 0 {
		max = defaultFailureCap
	}
	return &failureLog{max: max}
}

func (f *failureLog) record(topic string, handle Handle, recovered any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, Failure{
		Topic:  topic,
		Handle: handle,
		Err:    fmt.Errorf("subscriber panic: %v", recovered),
		At:     time.Now(),
	})
	if len(f.entries) > f.max {
		f.entries = f.entries[len(f.entries)-f.max:]
	}
}

func (f *failureLog) snapshot() []Failure {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Failure, len(f.entries))
	copy(out, f.entries)
	return out
}
