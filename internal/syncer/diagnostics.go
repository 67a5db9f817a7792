package syncer

import (
	"sync"
	"time"
)

// Failure is one captured sync problem.
type Failure struct {
	Task    string    `json:"task"`
	Key     string    `json:"key,omitempty"`
	Outcome string    `json:"outcome"`
	Err     string    `json:"error"`
	At      time.Time `json:"at"`
}

// Diagnostics is a bounded in-memory log of failures. The oldest entry is
// dropped once the limit is reached.
type Diagnostics struct {
	mu      sync.Mutex
	limit   int
	entries []Failure
	total   int
}

// NewDiagnostics creates a log holding at most limit entries.
func NewDiagnostics(limit int) *Diagnostics {
	if limit < 1 {
		limit = 1
	}
	return &Diagnostics{limit: limit}
}

func (d *Diagnostics) add(f Failure) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.total++
	if len(d.entries) == d.limit {
		copy(d.entries, d.entries[1:])
		d.entries = d.entries[:len(d.entries)-1]
	}
	d.entries = append(d.entries, f)
}

// Entries returns a copy of the retained failures, oldest first.
func (d *Diagnostics) Entries() []Failure {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Failure(nil), d.entries...)
}

// Total counts every failure ever captured, including evicted ones.
func (d *Diagnostics) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}
