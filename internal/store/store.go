package store

import (
	"sync"
	"time"

	"github.com/watermetergateway/exporter/pkg/types"
)

// DefaultWindow is the number of recent poll outcomes used for UptimePct.
const DefaultWindow = 20

// Entry is a reading together with the time it was fetched.
type Entry struct {
	Reading   types.Reading
	UpdatedAt time.Time
}

// Status summarises recent poll outcomes.
type Status struct {
	// Polls is the total number of recorded polls since startup.
	Polls int
	// LastSuccess is zero until the first successful poll.
	LastSuccess time.Time
	LastError   string
	LastErrorAt time.Time
	// ConsecutiveFailures resets to 0 on every success.
	ConsecutiveFailures int
	// UptimePct is the share of successful polls in the window, 0-100.
	UptimePct float64
}

// Store is a thread-safe record of poll outcomes.
type Store struct {
	mu      sync.RWMutex
	last    *Entry
	status  Status
	history []bool // newest last, at most window entries
	window  int
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Store tracking the last window outcomes. A non-positive
// window selects DefaultWindow.
func New(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{
		window:  window,
		history: make([]bool, 0, window),
		now:     time.Now,
	}
}

// RecordSuccess stores a copy of r as the latest reading.
func (s *Store) RecordSuccess(r types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.last = &Entry{Reading: r.Clone(), UpdatedAt: now}
	s.status.LastSuccess = now
	s.status.ConsecutiveFailures = 0
	s.record(true)
}

// RecordFailure notes a failed poll. The last reading is kept.
func (s *Store) RecordFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastErrorAt = s.now()
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.status.ConsecutiveFailures++
	s.record(false)
}

func (s *Store) record(ok bool) {
	s.status.Polls++
	if len(s.history) >= s.window {
		s.history = append(s.history[:0], s.history[1:]...)
	}
	s.history = append(s.history, ok)
}

// Last returns the most recent successful reading. ok is false before the
// first success. The returned reading must not be modified.
func (s *Store) Last() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Entry{}, false
	}
	return *s.last, true
}

// Status returns a snapshot of the poll statistics.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.UptimePct = s.uptimePct()
	return st
}

func (s *Store) uptimePct() float64 {
	if len(s.history) == 0 {
		return 0
	}
	var ok int
	for _, v := range s.history {
		if v {
			ok++
		}
	}
	return float64(ok) / float64(len(s.history)) * 100
}
