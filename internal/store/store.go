// Package store is the handoff point between the capture/decision loop and
// the perception loop.
//
// It holds two independent latest-wins slots:
//
//   - frame slot: last captured frame. Publishing over an unread frame drops it.
//   - state slot: last fused GameState together with the detections it was
//     built from, plus the time of the last dispatched action.
//
// Each slot has its own mutex, held only for the copy/swap. Readers always get
// deep copies, so nothing handed out by the store aliases its internal values.
package store

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Desai0/CR-Neuro/internal/types"
)

// Never is what TimeSinceLastAction reports before the first action.
const Never = time.Duration(math.MaxInt64)

// Store is safe for concurrent use.
type Store struct {
	now func() time.Time

	// Frame slot
	frameMu     sync.Mutex
	frame       types.Frame
	hasFrame    bool
	frameUnread bool

	// State slot (action time shares its lock)
	stateMu    sync.RWMutex
	state      types.GameState
	detections []types.Detection
	stateSeq   uint64
	lastAction time.Time
	acted      bool

	framesPublished uint64
	framesDropped   uint64
	framesRead      uint64
}

// Stats is a snapshot of store counters.
type Stats struct {
	FramesPublished uint64 `json:"frames_published"`
	FramesDropped   uint64 `json:"frames_dropped"`
	FramesRead      uint64 `json:"frames_read"`
	StatesPublished uint64 `json:"states_published"`
}

// New creates an empty store using the wall clock (with its monotonic reading).
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty store with an injected clock, for tests.
func NewWithClock(now func() time.Time) *Store {
	return &Store{now: now}
}

// PublishFrame stores a copy of frame, replacing any previous one.
//
// An unread frame that gets overwritten counts as a drop: the perception loop
// was slower than capture. That is the expected steady state, not an error.
func (s *Store) PublishFrame(frame types.Frame) {
	cp := frame.Clone()

	s.frameMu.Lock()
	if s.frameUnread {
		atomic.AddUint64(&s.framesDropped, 1)
	}
	s.frame = cp
	s.hasFrame = true
	s.frameUnread = true
	s.frameMu.Unlock()

	atomic.AddUint64(&s.framesPublished, 1)
}

// ReadFrame returns a copy of the latest frame, or ok=false if none was ever published.
// The same frame may be returned more than once.
func (s *Store) ReadFrame() (frame types.Frame, ok bool) {
	s.frameMu.Lock()
	cur, has := s.frame, s.hasFrame
	if has && s.frameUnread {
		s.frameUnread = false
		atomic.AddUint64(&s.framesRead, 1)
	}
	s.frameMu.Unlock()

	if !has {
		return types.Frame{}, false
	}
	// Stored pixel buffers are never written after PublishFrame, so cloning outside the lock is safe.
	return cur.Clone(), true
}

// PublishState replaces the state and its detections as one pair and returns
// the new state sequence number.
func (s *Store) PublishState(state types.GameState, detections []types.Detection) uint64 {
	st := state.Clone()
	dets := types.CloneDetections(detections)

	s.stateMu.Lock()
	s.state = st
	s.detections = dets
	s.stateSeq++
	seq := s.stateSeq
	s.stateMu.Unlock()

	return seq
}

// ReadState returns copies of the latest state and detections. seq is 0 until
// the first PublishState; the zero GameState is returned in that case.
func (s *Store) ReadState() (state types.GameState, detections []types.Detection, seq uint64) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	return s.state.Clone(), types.CloneDetections(s.detections), s.stateSeq
}

// MarkActionTime records that an action was just dispatched.
func (s *Store) MarkActionTime() {
	now := s.now()

	s.stateMu.Lock()
	s.lastAction = now
	s.acted = true
	s.stateMu.Unlock()
}

// TimeSinceLastAction returns the elapsed time since MarkActionTime, or Never.
func (s *Store) TimeSinceLastAction() time.Duration {
	s.stateMu.RLock()
	last, acted := s.lastAction, s.acted
	s.stateMu.RUnlock()

	if !acted {
		return Never
	}
	return s.now().Sub(last)
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.stateMu.RLock()
	seq := s.stateSeq
	s.stateMu.RUnlock()

	return Stats{
		FramesPublished: atomic.LoadUint64(&s.framesPublished),
		FramesDropped:   atomic.LoadUint64(&s.framesDropped),
		FramesRead:      atomic.LoadUint64(&s.framesRead),
		StatesPublished: seq,
	}
}
