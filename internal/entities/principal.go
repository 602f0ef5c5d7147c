package entities

import (
	"fmt"
	"strings"
	"time"
)

// PrincipalKind distinguishes the two kinds of principal that can hold
// permission relations: a single identity or a named group of identities.
type PrincipalKind string

const (
	KindIdentity PrincipalKind = "identity"
	KindGroup    PrincipalKind = "group"
)

// Identity represents a single user record in the directory.
// Identity names are unique case-insensitively.
type Identity struct {
	ID        string // Stable unique ID
	Name      string // Unique name (case-insensitive)
	CreatedAt time.Time
}

// Group represents a named collection of identities.
type Group struct {
	ID        string // Stable unique ID
	Name      string // Unique name (case-insensitive)
	CreatedAt time.Time
}

// PrincipalRef is a lightweight reference to an identity or group,
// used as the subject of permission relations.
type PrincipalRef struct {
	Kind PrincipalKind
	Name string
}

// IdentityRef returns a principal reference for an identity name.
func IdentityRef(name string) PrincipalRef {
	return PrincipalRef{Kind: KindIdentity, Name: name}
}

// GroupRef returns a principal reference for a group name.
func GroupRef(name string) PrincipalRef {
	return PrincipalRef{Kind: KindGroup, Name: name}
}

// String returns a string representation of the principal reference.
// Format: kind:name (e.g., "identity:alice", "group:administrators")
func (p PrincipalRef) String() string {
	return fmt.Sprintf("%s:%s", p.Kind, p.Name)
}

// Equal compares two principal references. Names compare case-insensitively.
func (p PrincipalRef) Equal(other PrincipalRef) bool {
	return p.Kind == other.Kind && strings.EqualFold(p.Name, other.Name)
}

// Validate checks if the principal reference is usable as a relation subject.
func (p PrincipalRef) Validate() error {
	if p.Kind != KindIdentity && p.Kind != KindGroup {
		return fmt.Errorf("principal kind must be %q or %q", KindIdentity, KindGroup)
	}
	if p.Name == "" {
		return fmt.Errorf("principal name is required")
	}
	return nil
}
