package check

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kylerisse/dirhealth/pkg/probe"
)

// ErrUnknownCategory is returned for category names that are not registered
// or not recognized.
var ErrUnknownCategory = errors.New("unknown check category")

// UnknownCategoryError names the category that could not be resolved.
type UnknownCategoryError struct {
	Name string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown check category %q", e.Name)
}

// Unwrap lets errors.Is match ErrUnknownCategory.
func (e *UnknownCategoryError) Unwrap() error {
	return ErrUnknownCategory
}

// Factory creates a Check from the collaborator set and a raw option map.
// Each category registers a Factory with the Registry. Factories validate
// their options, including threshold relationships, and return an error
// for invalid configuration.
type Factory func(deps probe.Set, config map[string]any) (Check, error)

type registration struct {
	factory Factory
	desc    Descriptor
}

// Registry holds registered categories and their factories.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[Category]registration
	order   []Category
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Category]registration),
	}
}

// Register adds a category factory with its default Descriptor.
// Returns an error if the category is already registered.
func (r *Registry) Register(category Category, factory Factory, desc Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[category]; exists {
		return fmt.Errorf("check category %q is already registered", category)
	}
	r.entries[category] = registration{factory: factory, desc: desc}
	r.order = append(r.order, category)
	return nil
}

// Create instantiates the Check for a category using the collaborators and
// option map. Returns an error if the category is not registered or the
// factory rejects the options.
func (r *Registry) Create(category Category, deps probe.Set, config map[string]any) (Check, error) {
	r.mu.RLock()
	reg, exists := r.entries[category]
	r.mu.RUnlock()

	if !exists {
		return nil, &UnknownCategoryError{Name: string(category)}
	}
	if config == nil {
		config = map[string]any{}
	}
	return reg.factory(deps, config)
}

// Describe returns the default Descriptor registered for a category.
func (r *Registry) Describe(category Category) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, exists := r.entries[category]
	if !exists {
		return Descriptor{}, &UnknownCategoryError{Name: string(category)}
	}
	return reg.desc, nil
}

// Categories returns the registered categories in registration order.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Category, len(r.order))
	copy(out, r.order)
	return out
}
