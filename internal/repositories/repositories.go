package repositories

import (
	"context"

	"github.com/jdm7dv/zentity-security/internal/entities"
)

// RelationFilter defines filter criteria for querying permission relations.
// Zero-valued fields are ignored; slice fields match any of their members.
type RelationFilter struct {
	SubjectKind   entities.PrincipalKind // Filter by subject kind (optional)
	SubjectName   string                 // Filter by subject name (optional)
	Subjects      []entities.PrincipalRef
	PredicateURI  string   // Filter by a single predicate URI (optional)
	PredicateURIs []string // Filter by any of these predicate URIs (optional)
	ObjectKind    entities.ObjectKind
	ObjectID      string
	ObjectTypes   []string // Restrict resource objects to these types (optional)
}

// PrincipalRepository provides lookup over the identity and group directory.
// Name lookups are case-insensitive. A missing record is reported as
// (nil, nil) / (false, nil), not as an error; errors mean the store failed.
type PrincipalRepository interface {
	// GetIdentityByName retrieves an identity by its unique name.
	GetIdentityByName(ctx context.Context, name string) (*entities.Identity, error)

	// GetGroupByName retrieves a group by its unique name.
	GetGroupByName(ctx context.Context, name string) (*entities.Group, error)

	// GroupsOf retrieves the groups an identity is a member of.
	GroupsOf(ctx context.Context, identityName string) ([]*entities.Group, error)

	// IsMember reports whether the identity is a member of the group.
	IsMember(ctx context.Context, identityName, groupName string) (bool, error)
}

// ResourceRepository provides lookup over repository resources.
type ResourceRepository interface {
	// GetByID retrieves a resource by its unique ID.
	GetByID(ctx context.Context, id string) (*entities.Resource, error)

	// ListByTypes retrieves all resources of the given types.
	// An empty type list means no type restriction.
	ListByTypes(ctx context.Context, types []string) ([]*entities.Resource, error)
}

// RelationRepository defines the mutation and query primitives over
// permission relations. Write and Delete stage individual edges; durability
// is the hosting application's commit, not this engine's.
type RelationRepository interface {
	// Write creates a permission relation. Writing an existing relation
	// is a no-op, not an error.
	Write(ctx context.Context, rel *entities.PermissionRelation) error

	// Delete removes a permission relation. Deleting an absent relation
	// is a no-op, not an error.
	Delete(ctx context.Context, rel *entities.PermissionRelation) error

	// Exists reports whether the exact permission relation is stored.
	Exists(ctx context.Context, rel *entities.PermissionRelation) (bool, error)

	// Read retrieves permission relations matching the filter.
	Read(ctx context.Context, filter *RelationFilter) ([]*entities.PermissionRelation, error)

	// AuthorizedResourceIDs returns the distinct IDs of resources related to
	// any of the subjects through the predicate URI, optionally restricted to
	// the given resource types. The filtering runs store-side; candidate
	// resources are never materialized here.
	AuthorizedResourceIDs(ctx context.Context, subjects []entities.PrincipalRef, predicateURI string, resourceTypes []string) ([]string, error)
}
