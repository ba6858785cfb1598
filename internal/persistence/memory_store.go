package persistence

import (
	"context"
	"sync"

	"github.com/petrijr/turno/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe implementation of
// InstanceStore and HistoryStore backed by maps. It is non-durable and
// intended for tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*api.WorkflowInstance
	history   map[string][]api.HistoryEvent
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[string]*api.WorkflowInstance),
		history:   make(map[string][]api.HistoryEvent),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ InstanceStore = (*InMemoryStore)(nil)
var _ HistoryStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; exists {
		return ErrDuplicateInstance
	}

	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *InMemoryStore) UpdateInstance(ctx context.Context, inst *api.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; !exists {
		return ErrInstanceNotFound
	}

	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}

	cp := *inst
	return &cp, nil
}

func (s *InMemoryStore) ListInstances(ctx context.Context, filter api.InstanceListOptions) ([]*api.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.WorkflowInstance, 0, len(s.instances))
	for _, inst := range s.instances {
		if filter.Type != "" && inst.Type != filter.Type {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		cp := *inst
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) DeleteInstance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.instances, id)
	return nil
}

func (s *InMemoryStore) AppendEvents(ctx context.Context, instanceID string, expectedVersion int64, events []api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[instanceID]; !ok {
		return ErrInstanceNotFound
	}

	stream := s.history[instanceID]
	if int64(len(stream)) != expectedVersion {
		return ErrConflict
	}

	s.history[instanceID] = append(stream, events...)
	return nil
}

func (s *InMemoryStore) ReadHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.history[instanceID]
	out := make([]api.HistoryEvent, len(stream))
	copy(out, stream)
	return out, nil
}

func (s *InMemoryStore) DeleteHistory(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.history, instanceID)
	return nil
}
