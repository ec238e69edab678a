package audit

import (
	"context"
	"sync"

	id "georef/pkg/domain"
)

// InMemoryStore keeps events per image, used in development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.ImageID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.ImageID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ImageID] = append(s.events[event.ImageID], event)
	return nil
}

func (s *InMemoryStore) ListByImage(_ context.Context, imageID id.ImageID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[imageID]...), nil
}

// Types returns the event types recorded for an image, in emission order.
func (s *InMemoryStore) Types(imageID id.ImageID) []EventType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EventType, 0, len(s.events[imageID]))
	for _, e := range s.events[imageID] {
		out = append(out, e.Type)
	}
	return out
}
