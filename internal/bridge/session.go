package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// unknownCount marks a session whose file was not in the listing. The count
// is adopted from the first batch.
const unknownCount = -1

// Progress is a snapshot of a transfer session.
type Progress struct {
	ID         string
	File       string
	Attempt    int
	BatchCount int
	Sent       int
	Acked      int
}

// SentPercent is the device to bridge progress.
func (p Progress) SentPercent() float64 { return percent(p.Sent, p.BatchCount) }

// AckedPercent is the bridge to host progress.
func (p Progress) AckedPercent() float64 { return percent(p.Acked, p.BatchCount) }

func percent(n, total int) float64 {
	if total <= 0 {
		if total == 0 {
			return 100
		}
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// session tracks one file transfer. Each retry starts a new attempt; acks
// belonging to an older attempt are ignored.
type session struct {
	id   string
	name string

	mu         sync.Mutex
	batchCount int
	attempt    int
	sent       map[int]struct{}
	acked      map[int]struct{}
	suggested  bool
	finished   bool
	done       chan struct{}
	watchdog   *time.Timer
}

func newSession(name string, batchCount int) *session {
	return &session{
		id:         uuid.NewString(),
		name:       name,
		batchCount: batchCount,
		sent:       make(map[int]struct{}),
		acked:      make(map[int]struct{}),
		done:       make(chan struct{}),
	}
}

// restart clears both index sets and begins a new attempt. A finished
// session keeps its final progress and restart reports false.
func (s *session) restart() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return 0, false
	}
	s.attempt++
	clear(s.sent)
	clear(s.acked)
	s.suggested = false
	s.checkLocked()
	return s.attempt, true
}

// recordSent notes a batch received from the device. It reports the
// attempt to tag the forward with, and whether a pending retry suggestion
// was cleared by this progress.
func (s *session) recordSent(index, count int) (attempt int, cleared, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return 0, false, false
	}
	if s.batchCount == unknownCount {
		s.batchCount = count
	}
	if index < 0 || index >= s.batchCount {
		return 0, false, false
	}
	s.sent[index] = struct{}{}
	cleared = s.suggested
	s.suggested = false
	return s.attempt, cleared, true
}

// recordAck notes a host acknowledgment. Acks for another attempt or an
// out of range index are ignored.
func (s *session) recordAck(attempt, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || attempt != s.attempt {
		return false
	}
	if index < 0 || index >= s.batchCount {
		return false
	}
	s.acked[index] = struct{}{}
	s.checkLocked()
	return true
}

// checkLocked resolves the completion future once every batch is acked.
func (s *session) checkLocked() {
	if s.finished || s.batchCount == unknownCount {
		return
	}
	if len(s.acked) >= s.batchCount {
		s.finishLocked()
	}
}

// abort ends the session without completing it.
func (s *session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked()
}

func (s *session) finishLocked() {
	if s.finished {
		return
	}
	s.finished = true
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	close(s.done)
}

// complete reports whether every batch was acknowledged.
func (s *session) complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchCount != unknownCount && len(s.acked) >= s.batchCount
}

// arm (re)starts the watchdog. fire runs if no further progress re-arms it
// within d.
func (s *session) arm(d time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	if s.watchdog == nil {
		s.watchdog = time.AfterFunc(d, fire)
		return
	}
	s.watchdog.Stop()
	s.watchdog.Reset(d)
}

// markSuggested records that a retry was suggested. It returns false once
// the session is over.
func (s *session) markSuggested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.suggested = true
	return true
}

func (s *session) progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Progress{
		ID:         s.id,
		File:       s.name,
		Attempt:    s.attempt,
		BatchCount: s.batchCount,
		Sent:       len(s.sent),
		Acked:      len(s.acked),
	}
}
