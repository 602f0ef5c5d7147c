package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Permission names. Read through Owner are resource-level and ordered by
// priority; Create is repository-wide and sits outside the hierarchy.
const (
	PermissionCreate = "create"
	PermissionRead   = "read"
	PermissionUpdate = "update"
	PermissionDelete = "delete"
	PermissionOwner  = "owner"
)

// Predicate holds the stored relation URIs for one permission.
// Each permission has a distinct allow URI and deny URI.
type Predicate struct {
	Name     string // Permission name (e.g., "update")
	Priority int    // 0 for Create, 1-4 for Read..Owner
	AllowURI string // Relation URI marking an explicit grant
	DenyURI  string // Relation URI marking an explicit denial
}

// ResourceLevel reports whether the predicate applies to individual
// resources (priority > 0) rather than the repository as a whole.
func (p *Predicate) ResourceLevel() bool {
	return p.Priority > 0
}

// Catalog is the immutable table of permission predicates. It is built once
// at startup from configuration and safe for concurrent reads.
type Catalog struct {
	predicates []*Predicate // sorted by ascending priority
	byName     map[string]*Predicate
	byURI      map[string]*Predicate
}

// New builds a catalog from a predicate table, validating it for uniqueness
// and completeness. Errors here are configuration errors: they surface at
// startup, never per call.
func New(predicates []*Predicate) (*Catalog, error) {
	if len(predicates) == 0 {
		return nil, fmt.Errorf("predicate table is empty")
	}

	c := &Catalog{
		predicates: make([]*Predicate, 0, len(predicates)),
		byName:     make(map[string]*Predicate, len(predicates)),
		byURI:      make(map[string]*Predicate, 2*len(predicates)),
	}

	repositoryLevel := 0
	for _, p := range predicates {
		if p.Name == "" {
			return nil, fmt.Errorf("predicate name is required")
		}
		if p.AllowURI == "" || p.DenyURI == "" {
			return nil, fmt.Errorf("predicate %s: allow and deny URIs are required", p.Name)
		}
		if p.AllowURI == p.DenyURI {
			return nil, fmt.Errorf("predicate %s: allow and deny URIs must differ", p.Name)
		}
		if p.Priority < 0 {
			return nil, fmt.Errorf("predicate %s: priority must not be negative", p.Name)
		}

		name := strings.ToLower(p.Name)
		if _, ok := c.byName[name]; ok {
			return nil, fmt.Errorf("duplicate predicate name: %s", p.Name)
		}
		if _, ok := c.byURI[p.AllowURI]; ok {
			return nil, fmt.Errorf("duplicate predicate URI: %s", p.AllowURI)
		}
		if _, ok := c.byURI[p.DenyURI]; ok {
			return nil, fmt.Errorf("duplicate predicate URI: %s", p.DenyURI)
		}

		if p.Priority == 0 {
			repositoryLevel++
		}

		c.byName[name] = p
		c.byURI[p.AllowURI] = p
		c.byURI[p.DenyURI] = p
		c.predicates = append(c.predicates, p)
	}

	if repositoryLevel != 1 {
		return nil, fmt.Errorf("predicate table must contain exactly one repository-level predicate, got %d", repositoryLevel)
	}

	sort.Slice(c.predicates, func(i, j int) bool {
		return c.predicates[i].Priority < c.predicates[j].Priority
	})

	return c, nil
}

// Exists reports whether the permission name is known to the catalog.
func (c *Catalog) Exists(name string) bool {
	_, ok := c.byName[strings.ToLower(name)]
	return ok
}

// Get returns the predicate for a permission name.
func (c *Catalog) Get(name string) (*Predicate, error) {
	p, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown permission: %s", name)
	}
	return p, nil
}

// AllowURI returns the allow relation URI for a permission name.
func (c *Catalog) AllowURI(name string) (string, error) {
	p, err := c.Get(name)
	if err != nil {
		return "", err
	}
	return p.AllowURI, nil
}

// DenyURI returns the deny relation URI for a permission name.
func (c *Catalog) DenyURI(name string) (string, error) {
	p, err := c.Get(name)
	if err != nil {
		return "", err
	}
	return p.DenyURI, nil
}

// PermissionName resolves a permission name from either its allow or deny URI.
func (c *Catalog) PermissionName(uri string) (string, error) {
	p, ok := c.byURI[uri]
	if !ok {
		return "", fmt.Errorf("unknown predicate URI: %s", uri)
	}
	return p.Name, nil
}

// IsDenyURI reports whether the URI is the deny form of some predicate.
func (c *Catalog) IsDenyURI(uri string) bool {
	p, ok := c.byURI[uri]
	return ok && p.DenyURI == uri
}

// GrantRange returns the resource-level predicates affected by granting the
// named permission: the permission itself and everything with lower priority,
// in ascending priority order. Granting Delete therefore also covers Update,
// and every grant covers Read (whose deny edge gets cleared; allow-Read is
// never written).
func (c *Catalog) GrantRange(name string) ([]*Predicate, error) {
	p, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if !p.ResourceLevel() {
		return nil, fmt.Errorf("permission %s is not resource-level", name)
	}

	var result []*Predicate
	for _, candidate := range c.predicates {
		if candidate.ResourceLevel() && candidate.Priority <= p.Priority {
			result = append(result, candidate)
		}
	}
	return result, nil
}

// RevokeRange returns the resource-level predicates affected by revoking the
// named permission: the permission itself and everything with higher
// priority, in ascending priority order. Revoking Update therefore also
// covers Delete and Owner.
func (c *Catalog) RevokeRange(name string) ([]*Predicate, error) {
	p, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if !p.ResourceLevel() {
		return nil, fmt.Errorf("permission %s is not resource-level", name)
	}

	var result []*Predicate
	for _, candidate := range c.predicates {
		if candidate.ResourceLevel() && candidate.Priority >= p.Priority {
			result = append(result, candidate)
		}
	}
	return result, nil
}

// LessPrivileged returns the resource-level predicates strictly below the
// named permission's priority, in ascending priority order. Remove uses this
// to clear the deny edges a prior revoke would have left behind.
func (c *Catalog) LessPrivileged(name string) ([]*Predicate, error) {
	p, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if !p.ResourceLevel() {
		return nil, fmt.Errorf("permission %s is not resource-level", name)
	}

	var result []*Predicate
	for _, candidate := range c.predicates {
		if candidate.ResourceLevel() && candidate.Priority < p.Priority {
			result = append(result, candidate)
		}
	}
	return result, nil
}

// ResourcePredicates returns the resource-level predicates in ascending
// priority order (Read first).
func (c *Catalog) ResourcePredicates() []*Predicate {
	var result []*Predicate
	for _, p := range c.predicates {
		if p.ResourceLevel() {
			result = append(result, p)
		}
	}
	return result
}

// RepositoryPredicate returns the single repository-level predicate (Create).
func (c *Catalog) RepositoryPredicate() *Predicate {
	for _, p := range c.predicates {
		if !p.ResourceLevel() {
			return p
		}
	}
	return nil
}

// ResourceLevelURIs returns the flattened allow and deny URIs of all
// resource-level predicates.
func (c *Catalog) ResourceLevelURIs() []string {
	var uris []string
	for _, p := range c.predicates {
		if p.ResourceLevel() {
			uris = append(uris, p.AllowURI, p.DenyURI)
		}
	}
	return uris
}

// RepositoryLevelURIs returns the allow and deny URIs of the
// repository-level predicate.
func (c *Catalog) RepositoryLevelURIs() []string {
	p := c.RepositoryPredicate()
	if p == nil {
		return nil
	}
	return []string{p.AllowURI, p.DenyURI}
}
