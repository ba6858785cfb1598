package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/petrijr/turno/pkg/api"
)

type registry struct {
	mu             sync.RWMutex
	orchestrations map[string]api.OrchestratorFunc
	activities     map[string]api.ActivityDefinition
}

func newRegistry() *registry {
	return &registry{
		orchestrations: make(map[string]api.OrchestratorFunc),
		activities:     make(map[string]api.ActivityDefinition),
	}
}

func (r *registry) RegisterOrchestration(name string, fn api.OrchestratorFunc) error {
	if name == "" {
		return errors.New("orchestration name is required")
	}
	if fn == nil {
		return errors.New("orchestration function is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orchestrations[name]; exists {
		return fmt.Errorf("orchestration %q already registered", name)
	}

	r.orchestrations[name] = fn
	return nil
}

func (r *registry) RegisterActivity(def api.ActivityDefinition) error {
	if def.Name == "" {
		return errors.New("activity name is required")
	}
	if def.Fn == nil {
		return errors.New("activity function is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[def.Name]; exists {
		return fmt.Errorf("activity %q already registered", def.Name)
	}

	r.activities[def.Name] = def
	return nil
}

func (r *registry) Orchestration(name string) (api.OrchestratorFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.orchestrations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownOrchestration, name)
	}
	return fn, nil
}

func (r *registry) Activity(name string) (api.ActivityDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.activities[name]
	if !ok {
		return api.ActivityDefinition{}, fmt.Errorf("%w: %s", api.ErrUnknownActivity, name)
	}
	return def, nil
}
