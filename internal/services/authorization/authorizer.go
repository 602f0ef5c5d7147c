package authorization

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdm7dv/zentity-security/internal/catalog"
	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

// Authorizer computes which resources a caller may access under a
// permission. It combines owned, allowed, and denied resource sets; it never
// mutates the store.
type Authorizer struct {
	directory *Directory
	catalog   *catalog.Catalog
	relations repositories.RelationRepository
	resources repositories.ResourceRepository
	types     *entities.TypeRegistry
}

// NewAuthorizer creates a new Authorizer.
func NewAuthorizer(
	directory *Directory,
	cat *catalog.Catalog,
	relations repositories.RelationRepository,
	resources repositories.ResourceRepository,
	types *entities.TypeRegistry,
) *Authorizer {
	return &Authorizer{
		directory: directory,
		catalog:   cat,
		relations: relations,
		resources: resources,
		types:     types,
	}
}

// AuthorizeResources returns the subset of candidates the caller may access
// under the permission. Administrators get the candidates back unchanged and
// the guest gets nothing except under Read; neither path touches the store.
func (a *Authorizer) AuthorizeResources(
	ctx context.Context,
	candidates []*entities.Resource,
	permission string,
	token *entities.AccessToken,
) ([]*entities.Resource, error) {
	pred, err := a.resourcePredicate(permission)
	if err != nil {
		return nil, err
	}
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	caller := token.IdentityName

	admin, err := a.directory.IsAdministrator(ctx, entities.IdentityRef(caller))
	if err != nil {
		return nil, err
	}
	if admin {
		return candidates, nil
	}

	isRead := strings.EqualFold(pred.Name, catalog.PermissionRead)
	if a.directory.IsGuest(caller) && !isRead {
		return []*entities.Resource{}, nil
	}

	if len(candidates) == 0 {
		return []*entities.Resource{}, nil
	}

	identity, err := a.directory.ResolveIdentity(ctx, caller)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, fmt.Errorf("%w: identity %s not found", ErrInvalidToken, caller)
	}

	types := candidateTypes(candidates)
	authorized, err := a.authorizedIDs(ctx, identity.Name, pred, isRead, types)
	if err != nil {
		return nil, err
	}

	result := make([]*entities.Resource, 0, len(candidates))
	for _, r := range candidates {
		if isRead {
			// Read is implicit: keep everything not excluded.
			if !authorized.excluded.contains(r.ID) {
				result = append(result, r)
			}
			continue
		}
		if authorized.allowed.contains(r.ID) {
			result = append(result, r)
		}
	}
	return result, nil
}

// AuthorizeResource reports whether the caller may access one resource
// under the permission.
func (a *Authorizer) AuthorizeResource(
	ctx context.Context,
	resource *entities.Resource,
	permission string,
	token *entities.AccessToken,
) (bool, error) {
	if err := resource.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	allowed, err := a.AuthorizeResources(ctx, []*entities.Resource{resource}, permission, token)
	if err != nil {
		return false, err
	}
	return len(allowed) > 0, nil
}

// AuthorizedResources returns every resource of the given type (including
// subtypes) the caller may access under the permission. The store performs
// the type narrowing; only the ID algebra happens in memory.
func (a *Authorizer) AuthorizedResources(
	ctx context.Context,
	resourceType string,
	permission string,
	token *entities.AccessToken,
) ([]*entities.Resource, error) {
	pred, err := a.resourcePredicate(permission)
	if err != nil {
		return nil, err
	}
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	caller := token.IdentityName
	isRead := strings.EqualFold(pred.Name, catalog.PermissionRead)
	if a.directory.IsGuest(caller) && !isRead {
		return []*entities.Resource{}, nil
	}

	types := a.types.WithSubtypes(resourceType)
	candidates, err := a.resources.ListByTypes(ctx, types)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	return a.AuthorizeResources(ctx, candidates, permission, token)
}

// authorizedSets carries the outcome of the set algebra. For Read the
// exclusion set is authoritative (Read is implicit unless denied); for every
// other permission the allowed set is.
type authorizedSets struct {
	allowed  idSet // (allowed - denied) | owned
	excluded idSet // denied - owned
}

// authorizedIDs computes the caller's allowed or excluded resource IDs for
// the predicate. Denials consider the caller identity and AllUsers;
// ownership additionally considers the caller's groups.
func (a *Authorizer) authorizedIDs(
	ctx context.Context,
	identityName string,
	pred *catalog.Predicate,
	isRead bool,
	resourceTypes []string,
) (*authorizedSets, error) {
	subjects := []entities.PrincipalRef{
		entities.IdentityRef(identityName),
		entities.GroupRef(a.directory.Settings().AllUsersGroup),
	}

	deniedIDs, err := a.relations.AuthorizedResourceIDs(ctx, subjects, pred.DenyURI, resourceTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to query denied resources: %w", err)
	}
	denied := newIDSet(deniedIDs)

	owned, err := a.directory.OwnedResourceIDs(ctx, identityName, resourceTypes)
	if err != nil {
		return nil, err
	}

	if isRead {
		// Ownership overrides an explicit Read denial.
		return &authorizedSets{excluded: denied.except(owned)}, nil
	}

	allowedIDs, err := a.relations.AuthorizedResourceIDs(ctx, subjects, pred.AllowURI, resourceTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to query allowed resources: %w", err)
	}

	return &authorizedSets{allowed: newIDSet(allowedIDs).except(denied).union(owned)}, nil
}

// resourcePredicate resolves a permission name and requires it to be
// resource-level.
func (a *Authorizer) resourcePredicate(permission string) (*catalog.Predicate, error) {
	if permission == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidArgument)
	}
	pred, err := a.catalog.Get(permission)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPermission, permission)
	}
	if !pred.ResourceLevel() {
		return nil, fmt.Errorf("%w: %s is not a resource-level permission", ErrInvalidPermission, permission)
	}
	return pred, nil
}

// candidateTypes collects the distinct types present in the candidate set so
// store queries can be narrowed to them.
func candidateTypes(candidates []*entities.Resource) []string {
	seen := make(map[string]bool)
	var types []string
	for _, r := range candidates {
		if r.Type != "" && !seen[r.Type] {
			seen[r.Type] = true
			types = append(types, r.Type)
		}
	}
	return types
}
