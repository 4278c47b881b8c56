package app

import (
	"fmt"
	"time"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
)

type PlayState string

const (
	StateIdle    PlayState = "idle"
	StatePaused  PlayState = "paused"
	StatePlaying PlayState = "playing"
)

const (
	// QueueCap bounds the shared queue; Enqueue past it fails with a
	// capacity error to the requester only.
	QueueCap = 100

	// restartThresholdSeconds: Previous restarts the current track
	// instead of moving the pointer once this much has elapsed.
	restartThresholdSeconds = 5

	// MaxPositionSeconds is the session seek bound every position is
	// clamped to.
	MaxPositionSeconds = 24 * 60 * 60
)

// Session is the server-authoritative shared playback state of one
// voice room. There is no ticking loop: the position is derived from a
// frozen base offset plus wall-clock time elapsed since the anchor, so
// state is O(1) per mutation and clients reconstruct locally.
//
// Session is not self-synchronized; the owning Room's lock serializes
// every call, keeping mutation and broadcast atomic.
type Session struct {
	queue   []domain.Track
	current int // index into queue, -1 = none
	state   PlayState
	basePos float64 // seconds, authoritative at anchor
	anchor  time.Time
	lastBy  domain.UserID
	lastAt  time.Time
	now     func() time.Time
}

func NewSession(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{current: -1, state: StateIdle, now: now}
}

// Position derives the playback offset at the current instant.
func (s *Session) Position() float64 {
	if s.state != StatePlaying {
		return s.basePos
	}
	return clampPosition(s.basePos + s.now().Sub(s.anchor).Seconds())
}

func clampPosition(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > MaxPositionSeconds {
		return MaxPositionSeconds
	}
	return p
}

func (s *Session) touch(by domain.UserID) {
	s.lastBy = by
	s.lastAt = s.now()
}

// rewind freezes the position at zero from this instant.
func (s *Session) rewind() {
	s.basePos = 0
	s.anchor = s.now()
}

func (s *Session) indexOf(id domain.TrackID) int {
	for i, t := range s.queue {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Enqueue appends a track. The first track of an empty selection
// becomes current, paused at position zero.
func (s *Session) Enqueue(t domain.Track, by domain.UserID) (bool, error) {
	if len(s.queue) >= QueueCap {
		return false, fmt.Errorf("%w: queue is full (%d tracks)", core.ErrCapacity, QueueCap)
	}
	s.queue = append(s.queue, t)
	if s.current == -1 {
		s.current = 0
		s.state = StatePaused
		s.rewind()
	}
	s.touch(by)
	return true, nil
}

func (s *Session) Play(by domain.UserID) (bool, error) {
	if s.current == -1 {
		return false, fmt.Errorf("%w: no current track", core.ErrValidation)
	}
	if s.state == StatePlaying {
		return false, nil
	}
	s.anchor = s.now()
	s.state = StatePlaying
	s.touch(by)
	return true, nil
}

func (s *Session) Pause(by domain.UserID) (bool, error) {
	if s.state != StatePlaying {
		return false, nil
	}
	s.basePos = s.Position()
	s.state = StatePaused
	s.touch(by)
	return true, nil
}

func (s *Session) Seek(positionSeconds float64, by domain.UserID) (bool, error) {
	if s.current == -1 {
		return false, fmt.Errorf("%w: no current track", core.ErrValidation)
	}
	s.basePos = clampPosition(positionSeconds)
	s.anchor = s.now()
	if s.state == StateIdle {
		s.state = StatePaused
	}
	s.touch(by)
	return true, nil
}

// Next advances the pointer. Past the last entry it clamps there and
// the session goes idle at position zero (end of queue, no wraparound).
func (s *Session) Next(by domain.UserID) (bool, error) {
	if s.current == -1 {
		return false, fmt.Errorf("%w: no current track", core.ErrValidation)
	}
	if s.current < len(s.queue)-1 {
		s.current++
		s.rewind()
		if s.state == StateIdle {
			s.state = StatePaused
		}
		s.touch(by)
		return true, nil
	}
	if s.state == StateIdle && s.basePos == 0 {
		return false, nil
	}
	s.state = StateIdle
	s.rewind()
	s.touch(by)
	return true, nil
}

// Previous moves the pointer back, unless enough of the current track
// has elapsed, in which case it restarts the current track instead.
// Paused at the start of the first track, there is nothing to change.
func (s *Session) Previous(by domain.UserID) (bool, error) {
	if s.current == -1 {
		return false, fmt.Errorf("%w: no current track", core.ErrValidation)
	}
	if s.Position() <= restartThresholdSeconds && s.current > 0 {
		s.current--
	} else if s.state == StatePaused && s.basePos == 0 {
		return false, nil
	}
	s.rewind()
	if s.state == StateIdle {
		s.state = StatePaused
	}
	s.touch(by)
	return true, nil
}

// SetCurrent jumps to an arbitrary queue entry by id.
func (s *Session) SetCurrent(id domain.TrackID, by domain.UserID) (bool, error) {
	idx := s.indexOf(id)
	if idx == -1 {
		return false, fmt.Errorf("%w: track %s", core.ErrNotFound, id)
	}
	s.current = idx
	s.rewind()
	if s.state == StateIdle {
		s.state = StatePaused
	}
	s.touch(by)
	return true, nil
}

// Remove deletes a queue entry, keeping the pointer on the same
// logical track when an earlier entry goes away.
func (s *Session) Remove(id domain.TrackID, by domain.UserID) (bool, error) {
	idx := s.indexOf(id)
	if idx == -1 {
		return false, fmt.Errorf("%w: track %s", core.ErrNotFound, id)
	}
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	switch {
	case len(s.queue) == 0:
		s.current = -1
		s.state = StateIdle
		s.rewind()
	case idx == s.current:
		if s.current > len(s.queue)-1 {
			s.current = len(s.queue) - 1
		}
		s.rewind()
	case idx < s.current:
		s.current--
	}
	s.touch(by)
	return true, nil
}

func (s *Session) Clear(by domain.UserID) (bool, error) {
	if len(s.queue) == 0 && s.current == -1 {
		return false, nil
	}
	s.queue = nil
	s.current = -1
	s.state = StateIdle
	s.rewind()
	s.touch(by)
	return true, nil
}

// TrackEnded is reported by whichever client renders the shared track.
// Stale reports (a track already superseded by another mutation) are
// ignored.
func (s *Session) TrackEnded(id domain.TrackID, by domain.UserID) (bool, error) {
	if s.current == -1 || s.queue[s.current].ID != id {
		return false, nil
	}
	return s.Next(by)
}

// ReportDuration back-fills a track's duration the first time any
// client measures it.
func (s *Session) ReportDuration(id domain.TrackID, seconds float64, by domain.UserID) (bool, error) {
	idx := s.indexOf(id)
	if idx == -1 || s.queue[idx].DurationSeconds != 0 {
		return false, nil
	}
	s.queue[idx].DurationSeconds = seconds
	s.touch(by)
	return true, nil
}

// Snapshot is the full-state view broadcast after accepted mutations.
type Snapshot struct {
	Queue           []domain.Track
	CurrentIndex    int
	Current         *domain.Track
	State           PlayState
	PositionSeconds float64
	LastMutatedBy   domain.UserID
	LastMutatedAt   time.Time
}

func (s *Session) Snapshot() Snapshot {
	queue := make([]domain.Track, len(s.queue))
	copy(queue, s.queue)
	snap := Snapshot{
		Queue:           queue,
		CurrentIndex:    s.current,
		State:           s.state,
		PositionSeconds: s.Position(),
		LastMutatedBy:   s.lastBy,
		LastMutatedAt:   s.lastAt,
	}
	if s.current != -1 {
		t := queue[s.current]
		snap.Current = &t
	}
	return snap
}
