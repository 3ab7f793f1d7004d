package state

import (
	"sync"
	"time"

	"valheimcli/pkg/logging"
)

// Classifier inspects the host and reports its current lifecycle phase.
type Classifier func() GameState

// ChangeEvent describes a transition observed by Tracker.Sample.
type ChangeEvent struct {
	Previous GameState
	Current  GameState
	At       time.Time
}

// ChangeHandler receives state transitions.
type ChangeHandler func(ChangeEvent)

// Tracker records the host's GameState. Sample is driven by the host tick
// loop; Current and Previous may be read from any goroutine.
type Tracker struct {
	classify Classifier

	mu       sync.RWMutex
	previous GameState
	current  GameState
	handlers []ChangeHandler
}

// NewTracker creates a tracker that starts in Unknown.
func NewTracker(classify Classifier) *Tracker {
	return &Tracker{
		classify: classify,
		previous: Unknown,
		current:  Unknown,
	}
}

// OnChange registers a handler invoked synchronously, on the sampling
// goroutine, for every transition.
func (t *Tracker) OnChange(handler ChangeHandler) {
	if handler == nil {
		return
	}
	t.mu.Lock()
	t.handlers = append(t.handlers, handler)
	t.mu.Unlock()
}

// Sample classifies the host once and raises a ChangeEvent when the state
// differs from the recorded one. It reports whether a transition happened.
func (t *Tracker) Sample() bool {
	if t.classify == nil {
		return false
	}
	next := t.classify()

	t.mu.Lock()
	if next == t.current {
		t.mu.Unlock()
		return false
	}
	event := ChangeEvent{Previous: t.current, Current: next, At: time.Now()}
	t.previous = t.current
	t.current = next
	handlers := make([]ChangeHandler, len(t.handlers))
	copy(handlers, t.handlers)
	t.mu.Unlock()

	logging.Debug("StateTracker", "State changed: %s -> %s", event.Previous, event.Current)

	// Handlers run outside the lock so they may call Current().
	for _, h := range handlers {
		h(event)
	}
	return true
}

// Current returns the most recently sampled state.
func (t *Tracker) Current() GameState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Previous returns the state before the most recent transition.
func (t *Tracker) Previous() GameState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.previous
}
