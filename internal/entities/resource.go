package entities

import "fmt"

// Resource represents an addressable entity in the repository.
// Resources form a type hierarchy: a permission query against a type
// also matches resources of its subtypes.
type Resource struct {
	ID   string // Stable unique ID
	Type string // Resource type name (e.g., "resource", "file")
}

// Validate checks if the resource is usable in a permission operation.
func (r *Resource) Validate() error {
	if r == nil {
		return fmt.Errorf("resource is required")
	}
	if r.ID == "" {
		return fmt.Errorf("resource ID is required")
	}
	return nil
}

// TypeRegistry records the resource type hierarchy. A query restricted to a
// type matches that type plus every registered descendant type.
// The registry is populated at startup and read-only afterwards.
type TypeRegistry struct {
	children map[string][]string
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{children: make(map[string][]string)}
}

// RegisterSubtype declares child as a direct subtype of parent.
func (t *TypeRegistry) RegisterSubtype(parent, child string) {
	t.children[parent] = append(t.children[parent], child)
}

// WithSubtypes returns the type plus all transitive subtypes.
// An empty type name matches everything and returns nil (no restriction).
func (t *TypeRegistry) WithSubtypes(typeName string) []string {
	if typeName == "" {
		return nil
	}
	if t == nil {
		return []string{typeName}
	}
	seen := map[string]bool{typeName: true}
	result := []string{typeName}
	for i := 0; i < len(result); i++ {
		for _, child := range t.children[result[i]] {
			if !seen[child] {
				seen[child] = true
				result = append(result, child)
			}
		}
	}
	return result
}
