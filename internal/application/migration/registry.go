package migrationapp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/erp/weclapp-migration/internal/domain/migration"
)

// Registry holds the definitions keyed by kind, in registration order.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry creates a registry holding defs
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a definition. Kinds must be unique.
func (r *Registry) Register(d Definition) error {
	kind := d.Kind()
	if kind == "" {
		return fmt.Errorf("definition for %s has no kind", d.DestinationType())
	}
	if _, ok := r.defs[kind]; ok {
		return fmt.Errorf("kind %s registered twice", kind)
	}
	r.defs[kind] = d
	r.order = append(r.order, kind)
	return nil
}

// Get returns the definition of kind
func (r *Registry) Get(kind string) (Definition, error) {
	d, ok := r.defs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", migration.ErrUnknownKind, kind)
	}
	return d, nil
}

// Kinds returns all kinds in registration order
func (r *Registry) Kinds() []string {
	return append([]string(nil), r.order...)
}

// Order returns the kinds sorted so that every kind follows its dependencies.
// Independent kinds keep their registration order. Unknown dependencies and
// cycles are configuration errors.
func (r *Registry) Order() ([]string, error) {
	position := make(map[string]int, len(r.order))
	for i, kind := range r.order {
		position[kind] = i
	}

	indegree := make(map[string]int, len(r.order))
	dependents := make(map[string][]string, len(r.order))
	for _, kind := range r.order {
		for _, dep := range r.defs[kind].DependsOn() {
			if _, ok := r.defs[dep]; !ok {
				return nil, fmt.Errorf("%s depends on unknown kind %s", kind, dep)
			}
			indegree[kind]++
			dependents[dep] = append(dependents[dep], kind)
		}
	}

	var ready []string
	for _, kind := range r.order {
		if indegree[kind] == 0 {
			ready = append(ready, kind)
		}
	}

	sorted := make([]string, 0, len(r.order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		kind := ready[0]
		ready = ready[1:]
		sorted = append(sorted, kind)
		for _, next := range dependents[kind] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(sorted) != len(r.order) {
		var cyclic []string
		for _, kind := range r.order {
			if indegree[kind] > 0 {
				cyclic = append(cyclic, kind)
			}
		}
		return nil, fmt.Errorf("dependency cycle between %s", strings.Join(cyclic, ", "))
	}
	return sorted, nil
}
