package strategy

import (
	"sync"
	"time"
)

// InstrumentState is the mutable per-instrument detector state.
// A fresh state has an empty window, a zero pressure EWMA, no last bid and an Idle sustain gate.
type InstrumentState struct {
	mu sync.Mutex

	window       *Window
	pressureEWMA float64
	sustainStart time.Time // zero means Idle
	lastBid      float64
	hasLastBid   bool
}

// StateView is a read-only copy of an InstrumentState.
type StateView struct {
	Samples      int
	PressureEWMA float64
	SustainStart time.Time
	LastBid      float64
	HasLastBid   bool
}

// Window exposes the ring for callers already holding the instrument via Store.With.
func (s *InstrumentState) Window() *Window { return s.window }

// PressureEWMA returns the smoothed pressure; only meaningful under Store.With.
func (s *InstrumentState) PressureEWMA() float64 { return s.pressureEWMA }

// SustainStart returns when the qualifying condition became continuously true (zero when Idle).
func (s *InstrumentState) SustainStart() time.Time { return s.sustainStart }

func (s *InstrumentState) view() StateView {
	return StateView{
		Samples:      s.window.Len(),
		PressureEWMA: s.pressureEWMA,
		SustainStart: s.sustainStart,
		LastBid:      s.lastBid,
		HasLastBid:   s.hasLastBid,
	}
}

// Store owns every InstrumentState. Entries are created lazily and never deleted, so an instrument
// dropped from the target set keeps inert history until it is targeted again.
type Store struct {
	capacity int
	mu       sync.RWMutex
	states   map[string]*InstrumentState
}

// NewStore builds a store whose windows hold windowCapacity samples.
func NewStore(windowCapacity int) *Store {
	if windowCapacity < 1 {
		windowCapacity = DefaultWindowCapacity
	}
	return &Store{
		capacity: windowCapacity,
		states:   make(map[string]*InstrumentState),
	}
}

// GetOrCreate returns the state for symbol, creating a zeroed entry on first reference.
func (s *Store) GetOrCreate(symbol string) *InstrumentState {
	s.mu.RLock()
	st := s.states[symbol]
	s.mu.RUnlock()
	if st != nil {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st = s.states[symbol]; st == nil {
		st = &InstrumentState{window: NewWindow(s.capacity)}
		s.states[symbol] = st
	}
	return st
}

// With runs fn holding the instrument's exclusive lock. Different instruments never block each other.
// The lock is released even if fn panics.
func (s *Store) With(symbol string, fn func(*InstrumentState)) {
	st := s.GetOrCreate(symbol)
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(st)
}

// Snapshot returns a copy of the state for symbol without creating it.
func (s *Store) Snapshot(symbol string) (StateView, bool) {
	s.mu.RLock()
	st := s.states[symbol]
	s.mu.RUnlock()
	if st == nil {
		return StateView{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.view(), true
}

// Len reports how many instruments have state.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
