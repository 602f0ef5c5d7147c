package authorization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jdm7dv/zentity-security/internal/catalog"
	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
	"github.com/jdm7dv/zentity-security/pkg/cache"
)

// Settings holds the well-known principal names and the group membership
// predicate, loaded once at startup.
type Settings struct {
	AdministratorsGroup string // Group whose members bypass all checks
	AdministratorName   string // Built-in administrator identity
	AllUsersGroup       string // Implicit group containing every identity
	GuestName           string // Guest identity (Read-only principal)
	MembershipURI       string // Predicate URI linking identities to groups
}

// Validate checks the settings for completeness at startup.
func (s Settings) Validate() error {
	if s.AdministratorsGroup == "" {
		return fmt.Errorf("%w: administrators group name is required", ErrConfiguration)
	}
	if s.AdministratorName == "" {
		return fmt.Errorf("%w: administrator identity name is required", ErrConfiguration)
	}
	if s.AllUsersGroup == "" {
		return fmt.Errorf("%w: all-users group name is required", ErrConfiguration)
	}
	if s.GuestName == "" {
		return fmt.Errorf("%w: guest identity name is required", ErrConfiguration)
	}
	if s.MembershipURI == "" {
		return fmt.Errorf("%w: group membership predicate URI is required", ErrConfiguration)
	}
	return nil
}

// Directory answers read-only questions about principals: who is an
// administrator, who is the guest, who belongs to which group, and which
// resources a caller owns. It never mutates the store.
type Directory struct {
	settings   Settings
	principals repositories.PrincipalRepository
	relations  repositories.RelationRepository
	catalog    *catalog.Catalog

	// Optional TTL cache for identity resolution and administrator checks.
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewDirectory creates a Directory without caching.
func NewDirectory(
	settings Settings,
	principals repositories.PrincipalRepository,
	relations repositories.RelationRepository,
	cat *catalog.Catalog,
) *Directory {
	return &Directory{
		settings:   settings,
		principals: principals,
		relations:  relations,
		catalog:    cat,
	}
}

// NewDirectoryWithCache creates a Directory that memoizes identity lookups
// and administrator-membership answers for the given TTL.
func NewDirectoryWithCache(
	settings Settings,
	principals repositories.PrincipalRepository,
	relations repositories.RelationRepository,
	cat *catalog.Catalog,
	c cache.Cache,
	ttl time.Duration,
) *Directory {
	d := NewDirectory(settings, principals, relations, cat)
	d.cache = c
	d.cacheTTL = ttl
	return d
}

// Settings returns the directory's configured well-known names.
func (d *Directory) Settings() Settings {
	return d.settings
}

// IsGuest reports whether the identity name is the configured guest.
func (d *Directory) IsGuest(identityName string) bool {
	return strings.EqualFold(identityName, d.settings.GuestName)
}

// IsAdministrator reports whether the principal is the Administrators group,
// the built-in administrator identity, or an identity that is a member of
// the Administrators group.
func (d *Directory) IsAdministrator(ctx context.Context, principal entities.PrincipalRef) (bool, error) {
	if principal.Kind == entities.KindGroup {
		return strings.EqualFold(principal.Name, d.settings.AdministratorsGroup), nil
	}

	if strings.EqualFold(principal.Name, d.settings.AdministratorName) {
		return true, nil
	}

	cacheKey := "admin:" + strings.ToLower(principal.Name)
	if d.cache != nil {
		if cached, found := d.cache.Get(ctx, cacheKey); found {
			if admin, ok := cached.(bool); ok {
				return admin, nil
			}
		}
	}

	admin, err := d.principals.IsMember(ctx, principal.Name, d.settings.AdministratorsGroup)
	if err != nil {
		return false, fmt.Errorf("failed to check administrator membership: %w", err)
	}

	if d.cache != nil {
		_ = d.cache.Set(ctx, cacheKey, admin, d.cacheTTL)
	}

	return admin, nil
}

// IsMemberOf reports whether the identity is a member of the group.
func (d *Directory) IsMemberOf(ctx context.Context, identityName, groupName string) (bool, error) {
	member, err := d.principals.IsMember(ctx, identityName, groupName)
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return member, nil
}

// ResolveIdentity looks up an identity record by name, case-insensitively.
// Returns (nil, nil) when no such identity exists.
func (d *Directory) ResolveIdentity(ctx context.Context, name string) (*entities.Identity, error) {
	cacheKey := "identity:" + strings.ToLower(name)
	if d.cache != nil {
		if cached, found := d.cache.Get(ctx, cacheKey); found {
			if identity, ok := cached.(*entities.Identity); ok {
				return identity, nil
			}
		}
	}

	identity, err := d.principals.GetIdentityByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity %s: %w", name, err)
	}

	if d.cache != nil && identity != nil {
		_ = d.cache.Set(ctx, cacheKey, identity, d.cacheTTL)
	}

	return identity, nil
}

// PrincipalSet returns the subjects whose grants apply to an identity: the
// identity itself, every group it belongs to, and the AllUsers group.
func (d *Directory) PrincipalSet(ctx context.Context, identityName string) ([]entities.PrincipalRef, error) {
	groups, err := d.principals.GroupsOf(ctx, identityName)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups of %s: %w", identityName, err)
	}

	subjects := make([]entities.PrincipalRef, 0, len(groups)+2)
	subjects = append(subjects, entities.IdentityRef(identityName))
	for _, g := range groups {
		subjects = append(subjects, entities.GroupRef(g.Name))
	}
	subjects = append(subjects, entities.GroupRef(d.settings.AllUsersGroup))
	return subjects, nil
}

// OwnedResourceIDs computes the IDs of resources the identity owns,
// optionally restricted to the given resource types. A resource is owned
// when the identity, one of its groups, or AllUsers holds the Owner allow
// relation and none of them holds the Owner deny relation - except that an
// explicit personal Owner allow always wins over a group-level deny.
func (d *Directory) OwnedResourceIDs(ctx context.Context, identityName string, resourceTypes []string) (map[string]struct{}, error) {
	owner, err := d.catalog.Get(catalog.PermissionOwner)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	subjects, err := d.PrincipalSet(ctx, identityName)
	if err != nil {
		return nil, err
	}

	allowedIDs, err := d.relations.AuthorizedResourceIDs(ctx, subjects, owner.AllowURI, resourceTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to query owned resources: %w", err)
	}
	deniedIDs, err := d.relations.AuthorizedResourceIDs(ctx, subjects, owner.DenyURI, resourceTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to query owner denials: %w", err)
	}
	personalIDs, err := d.relations.AuthorizedResourceIDs(ctx, []entities.PrincipalRef{entities.IdentityRef(identityName)}, owner.AllowURI, resourceTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to query personal ownership: %w", err)
	}

	owned := newIDSet(allowedIDs).except(newIDSet(deniedIDs)).union(newIDSet(personalIDs))
	return owned, nil
}

// IsOwner reports whether the identity owns the resource.
func (d *Directory) IsOwner(ctx context.Context, identityName, resourceID string) (bool, error) {
	owned, err := d.OwnedResourceIDs(ctx, identityName, nil)
	if err != nil {
		return false, err
	}
	_, ok := owned[resourceID]
	return ok, nil
}
