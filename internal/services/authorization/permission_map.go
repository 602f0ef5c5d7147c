package authorization

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdm7dv/zentity-security/internal/catalog"
	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

// PermissionEntry is one row of the flat permission view used by
// administration UIs: a permission name with its explicit allow and deny
// flags for a principal.
type PermissionEntry struct {
	Permission string
	Allow      bool
	Deny       bool
}

// Mapper builds and applies flat permission maps, and computes the
// effective permission set of a caller on a resource.
type Mapper struct {
	directory *Directory
	catalog   *catalog.Catalog
	relations repositories.RelationRepository
	granter   *Granter
}

// NewMapper creates a new Mapper.
func NewMapper(directory *Directory, cat *catalog.Catalog, relations repositories.RelationRepository, granter *Granter) *Mapper {
	return &Mapper{
		directory: directory,
		catalog:   cat,
		relations: relations,
		granter:   granter,
	}
}

// PermissionsFor returns the permission names the caller effectively holds
// on the resource. ok=false means the caller has no access at all - an
// explicit Read denial withdraws even the implicit default. Owner is an
// administrative marker and never part of the returned set; owners get the
// full use-permission set instead.
func (m *Mapper) PermissionsFor(
	ctx context.Context,
	resource *entities.Resource,
	token *entities.AccessToken,
) ([]string, bool, error) {
	if err := resource.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := token.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	caller := token.IdentityName

	privileged, err := m.callerMayAdminister(ctx, resource.ID, token)
	if err != nil {
		return nil, false, err
	}
	if privileged {
		return []string{catalog.PermissionRead, catalog.PermissionUpdate, catalog.PermissionDelete}, true, nil
	}

	identity, err := m.directory.ResolveIdentity(ctx, caller)
	if err != nil {
		return nil, false, err
	}
	if identity == nil {
		return nil, false, fmt.Errorf("%w: identity %s not found", ErrInvalidToken, caller)
	}

	present, err := m.presentURIs(ctx, []entities.PrincipalRef{
		entities.IdentityRef(caller),
		entities.GroupRef(m.directory.Settings().AllUsersGroup),
	}, entities.ObjectResource, resource.ID)
	if err != nil {
		return nil, false, err
	}

	readPred, err := m.catalog.Get(catalog.PermissionRead)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if present[readPred.DenyURI] {
		// No read access at all: not even the implicit default survives.
		return nil, false, nil
	}

	permissions := []string{catalog.PermissionRead}
	if m.directory.IsGuest(caller) {
		return permissions, true, nil
	}

	for _, p := range m.catalog.ResourcePredicates() {
		if strings.EqualFold(p.Name, catalog.PermissionRead) || strings.EqualFold(p.Name, catalog.PermissionOwner) {
			continue
		}
		if present[p.AllowURI] && !present[p.DenyURI] {
			permissions = append(permissions, p.Name)
		}
	}
	return permissions, true, nil
}

// PermissionsForAll applies PermissionsFor to each resource; resources the
// caller cannot read at all are left out of the result.
func (m *Mapper) PermissionsForAll(
	ctx context.Context,
	resources []*entities.Resource,
	token *entities.AccessToken,
) (map[string][]string, error) {
	result := make(map[string][]string, len(resources))
	for _, r := range resources {
		permissions, ok, err := m.PermissionsFor(ctx, r, token)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		result[r.ID] = permissions
	}
	return result, nil
}

// BuildMap returns the explicit allow/deny flags of every resource-level
// permission for the principal on the resource. Callers that are neither
// administrators nor owners get an empty map, not an error; administrator
// principals get an empty map because their access is never stored.
func (m *Mapper) BuildMap(
	ctx context.Context,
	resource *entities.Resource,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) ([]PermissionEntry, error) {
	if err := resource.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := principal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	privileged, err := m.callerMayAdminister(ctx, resource.ID, token)
	if err != nil {
		return nil, err
	}
	if !privileged {
		return []PermissionEntry{}, nil
	}

	admin, err := m.directory.IsAdministrator(ctx, principal)
	if err != nil {
		return nil, err
	}
	if admin {
		return []PermissionEntry{}, nil
	}

	present, err := m.presentURIs(ctx, []entities.PrincipalRef{principal}, entities.ObjectResource, resource.ID)
	if err != nil {
		return nil, err
	}

	guest := principal.Kind == entities.KindIdentity && m.directory.IsGuest(principal.Name)

	var entries []PermissionEntry
	for _, p := range m.catalog.ResourcePredicates() {
		if guest && !strings.EqualFold(p.Name, catalog.PermissionRead) {
			continue
		}
		entries = append(entries, PermissionEntry{
			Permission: p.Name,
			Allow:      present[p.AllowURI],
			Deny:       present[p.DenyURI],
		})
	}
	return entries, nil
}

// BuildCreateMap returns the single-entry map for the repository-level
// Create permission. Only administrators may ask; administrator and guest
// principals yield nil because Create is never stored for them.
func (m *Mapper) BuildCreateMap(
	ctx context.Context,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) ([]PermissionEntry, error) {
	if err := principal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	callerAdmin, err := m.directory.IsAdministrator(ctx, entities.IdentityRef(token.IdentityName))
	if err != nil {
		return nil, err
	}
	if !callerAdmin {
		return []PermissionEntry{}, nil
	}

	admin, err := m.directory.IsAdministrator(ctx, principal)
	if err != nil {
		return nil, err
	}
	if admin || (principal.Kind == entities.KindIdentity && m.directory.IsGuest(principal.Name)) {
		return nil, nil
	}

	pred := m.catalog.RepositoryPredicate()
	if pred == nil {
		return nil, fmt.Errorf("%w: no repository-level predicate configured", ErrConfiguration)
	}

	objectKind := entities.ObjectIdentity
	if principal.Kind == entities.KindGroup {
		objectKind = entities.ObjectGroup
	}
	present, err := m.presentURIs(ctx, []entities.PrincipalRef{principal}, objectKind, principal.Name)
	if err != nil {
		return nil, err
	}

	return []PermissionEntry{{
		Permission: pred.Name,
		Allow:      present[pred.AllowURI],
		Deny:       present[pred.DenyURI],
	}}, nil
}

// SetMap compares the desired map against the current one and issues the
// minimal grant/revoke/remove calls. A desired entry with both allow and
// deny set fails validation before any mutation begins. The first mutation
// that does not succeed aborts the rest; earlier mutations are not rolled
// back here (the caller owns transaction scope).
func (m *Mapper) SetMap(
	ctx context.Context,
	resource *entities.Resource,
	desired []PermissionEntry,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (bool, error) {
	for _, entry := range desired {
		if entry.Allow && entry.Deny {
			return false, fmt.Errorf("%w: %s", ErrAllowDenyConflict, entry.Permission)
		}
		if !m.catalog.Exists(entry.Permission) {
			return false, fmt.Errorf("%w: %s", ErrInvalidPermission, entry.Permission)
		}
	}

	current, err := m.BuildMap(ctx, resource, principal, token)
	if err != nil {
		return false, err
	}
	currentByName := make(map[string]PermissionEntry, len(current))
	for _, entry := range current {
		currentByName[strings.ToLower(entry.Permission)] = entry
	}

	for _, want := range desired {
		have := currentByName[strings.ToLower(want.Permission)]
		switch {
		case want.Allow && !have.Allow:
			ok, err := m.granter.Grant(ctx, resource, want.Permission, principal, token)
			if err != nil || !ok {
				return false, err
			}
		case want.Deny && !have.Deny:
			ok, err := m.granter.Revoke(ctx, resource, want.Permission, principal, token)
			if err != nil || !ok {
				return false, err
			}
		case !want.Allow && !want.Deny && (have.Allow || have.Deny):
			ok, err := m.granter.Remove(ctx, resource, want.Permission, principal, token)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

// presentURIs reads the stored relations between the subjects and one
// object, and returns the set of predicate URIs present.
func (m *Mapper) presentURIs(
	ctx context.Context,
	subjects []entities.PrincipalRef,
	objectKind entities.ObjectKind,
	objectID string,
) (map[string]bool, error) {
	var uris []string
	if objectKind == entities.ObjectResource {
		uris = m.catalog.ResourceLevelURIs()
	} else {
		uris = m.catalog.RepositoryLevelURIs()
	}

	relations, err := m.relations.Read(ctx, &repositories.RelationFilter{
		Subjects:      subjects,
		PredicateURIs: uris,
		ObjectKind:    objectKind,
		ObjectID:      objectID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read permission relations: %w", err)
	}

	present := make(map[string]bool, len(relations))
	for _, rel := range relations {
		present[rel.PredicateURI] = true
	}
	return present, nil
}

func (m *Mapper) callerMayAdminister(ctx context.Context, resourceID string, token *entities.AccessToken) (bool, error) {
	admin, err := m.directory.IsAdministrator(ctx, entities.IdentityRef(token.IdentityName))
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	return m.directory.IsOwner(ctx, token.IdentityName, resourceID)
}
