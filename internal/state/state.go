// Package state is a minimal action store. Action handlers dispatch a
// start/success/fail triple for every operation; views subscribe to react.
package state

import (
	"log/slog"
	"sync"
)

// Status is the phase of a dispatched action.
type Status string

const (
	StatusStart   Status = "start"
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// Action is one dispatched state change. For failed actions Payload carries
// the display message.
type Action struct {
	Type    string
	Status  Status
	Payload any
}

// Dispatcher receives actions from handlers.
type Dispatcher interface {
	Dispatch(Action)
}

const subscriberBuffer = 32

// Store keeps the latest action per type and fans dispatches out to
// subscribers. Delivery is best effort; a subscriber that stops draining
// loses actions.
type Store struct {
	mu   sync.Mutex
	last map[string]Action
	subs []chan Action
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{last: make(map[string]Action)}
}

// Dispatch implements [Dispatcher].
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[a.Type] = a
	for _, ch := range s.subs {
		select {
		case ch <- a:
		default:
			slog.Warn("Dropping action for slow subscriber", "type", a.Type, "status", a.Status)
		}
	}
}

// Last returns the most recent action of the given type.
func (s *Store) Last(actionType string) (Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.last[actionType]
	return a, ok
}

// Subscribe returns a channel receiving every dispatched action.
func (s *Store) Subscribe() <-chan Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Action, subscriberBuffer)
	s.subs = append(s.subs, ch)
	return ch
}
