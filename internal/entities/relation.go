package entities

import (
	"fmt"
	"time"
)

// ObjectKind identifies what a permission relation points at: a resource
// for the resource-level permissions, or a principal for the
// repository-level Create permission (which is self-referencing).
type ObjectKind string

const (
	ObjectResource ObjectKind = "resource"
	ObjectIdentity ObjectKind = "identity"
	ObjectGroup    ObjectKind = "group"
)

// PermissionRelation represents a stored permission edge.
// Example: identity:alice --urn:repository:permission:update--> resource:doc1
// This means: identity "alice" holds the allow-Update relation on resource "doc1".
type PermissionRelation struct {
	SubjectKind  PrincipalKind // Subject kind ("identity" or "group")
	SubjectName  string        // Subject name (e.g., "alice")
	PredicateURI string        // Relation type (allow or deny URI of a permission)
	ObjectKind   ObjectKind    // Object kind ("resource", or a principal kind for Create)
	ObjectID     string        // Resource ID, or principal name for Create
	CreatedAt    time.Time
}

// String returns a string representation of the relation.
// Format: subject_kind:subject_name#predicate@object_kind:object_id
func (r *PermissionRelation) String() string {
	return fmt.Sprintf("%s:%s#%s@%s:%s",
		r.SubjectKind, r.SubjectName, r.PredicateURI, r.ObjectKind, r.ObjectID)
}

// Validate checks if the permission relation is valid.
func (r *PermissionRelation) Validate() error {
	if r.SubjectKind != KindIdentity && r.SubjectKind != KindGroup {
		return fmt.Errorf("subject kind must be %q or %q", KindIdentity, KindGroup)
	}
	if r.SubjectName == "" {
		return fmt.Errorf("subject name is required")
	}
	if r.PredicateURI == "" {
		return fmt.Errorf("predicate URI is required")
	}
	if r.ObjectKind != ObjectResource && r.ObjectKind != ObjectIdentity && r.ObjectKind != ObjectGroup {
		return fmt.Errorf("object kind must be %q, %q or %q", ObjectResource, ObjectIdentity, ObjectGroup)
	}
	if r.ObjectID == "" {
		return fmt.Errorf("object ID is required")
	}
	return nil
}
