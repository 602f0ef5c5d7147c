package authorization

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdm7dv/zentity-security/internal/catalog"
	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

// Granter mutates the allow/deny relations between principals and resources
// following the permission hierarchy. Every operation leaves each affected
// (principal, resource, permission) triple in exactly one of three states:
// Unset, Allowed, or Denied. The engine stages edges through the relation
// repository; durability is the hosting application's commit.
type Granter struct {
	directory *Directory
	catalog   *catalog.Catalog
	relations repositories.RelationRepository
}

// NewGranter creates a new Granter.
func NewGranter(directory *Directory, cat *catalog.Catalog, relations repositories.RelationRepository) *Granter {
	return &Granter{
		directory: directory,
		catalog:   cat,
		relations: relations,
	}
}

// Grant gives the principal the permission on the resource, along with every
// less strict permission in the hierarchy. Returns false without error when
// the caller may not administer the resource or the principal cannot hold
// the permission; store failures surface as errors, with partial application
// possible (the caller owns transaction scope).
func (g *Granter) Grant(
	ctx context.Context,
	resource *entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (bool, error) {
	pred, err := g.validateMutation(resource, permission, principal, token)
	if err != nil {
		return false, err
	}

	legal, err := g.callerMayAdminister(ctx, resource.ID, token)
	if err != nil || !legal {
		return false, err
	}

	admin, err := g.directory.IsAdministrator(ctx, principal)
	if err != nil {
		return false, err
	}
	if admin {
		// Administrators have implicit access; nothing is ever stored.
		return true, nil
	}

	isRead := strings.EqualFold(pred.Name, catalog.PermissionRead)
	if g.isGuestPrincipal(principal) && !isRead {
		return false, nil
	}

	preds, err := g.catalog.GrantRange(pred.Name)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPermission, err)
	}

	for _, p := range preds {
		if !strings.EqualFold(p.Name, catalog.PermissionRead) {
			if err := g.relations.Write(ctx, resourceEdge(principal, p.AllowURI, resource.ID)); err != nil {
				return false, fmt.Errorf("failed to write allow relation for %s: %w", p.Name, err)
			}
		}
		if err := g.relations.Delete(ctx, resourceEdge(principal, p.DenyURI, resource.ID)); err != nil {
			return false, fmt.Errorf("failed to clear deny relation for %s: %w", p.Name, err)
		}
	}
	return true, nil
}

// Revoke denies the principal the permission on the resource, along with
// every more privileged permission in the hierarchy.
func (g *Granter) Revoke(
	ctx context.Context,
	resource *entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (bool, error) {
	pred, err := g.validateMutation(resource, permission, principal, token)
	if err != nil {
		return false, err
	}

	legal, err := g.callerMayAdminister(ctx, resource.ID, token)
	if err != nil || !legal {
		return false, err
	}

	admin, err := g.directory.IsAdministrator(ctx, principal)
	if err != nil {
		return false, err
	}
	if admin {
		return false, nil
	}

	var preds []*catalog.Predicate
	if g.isGuestPrincipal(principal) {
		// Guest can only ever hold Read; revoking anything else is a no-op.
		if !strings.EqualFold(pred.Name, catalog.PermissionRead) {
			return true, nil
		}
		read, err := g.catalog.Get(catalog.PermissionRead)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		preds = []*catalog.Predicate{read}
	} else {
		preds, err = g.catalog.RevokeRange(pred.Name)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidPermission, err)
		}
	}

	for _, p := range preds {
		if err := g.relations.Write(ctx, resourceEdge(principal, p.DenyURI, resource.ID)); err != nil {
			return false, fmt.Errorf("failed to write deny relation for %s: %w", p.Name, err)
		}
		if err := g.relations.Delete(ctx, resourceEdge(principal, p.AllowURI, resource.ID)); err != nil {
			return false, fmt.Errorf("failed to clear allow relation for %s: %w", p.Name, err)
		}
	}
	return true, nil
}

// Remove restores the Unset state across the affected hierarchy range:
// it deletes both allow and deny for the permission and everything more
// privileged, and deletes the deny edges of everything less privileged
// (undoing the side effects a prior Grant or Revoke produced).
func (g *Granter) Remove(
	ctx context.Context,
	resource *entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (bool, error) {
	pred, err := g.validateMutation(resource, permission, principal, token)
	if err != nil {
		return false, err
	}

	legal, err := g.callerMayAdminister(ctx, resource.ID, token)
	if err != nil || !legal {
		return false, err
	}

	admin, err := g.directory.IsAdministrator(ctx, principal)
	if err != nil {
		return false, err
	}
	if admin {
		return false, nil
	}

	if g.isGuestPrincipal(principal) && !strings.EqualFold(pred.Name, catalog.PermissionRead) {
		return true, nil
	}

	upper, err := g.catalog.RevokeRange(pred.Name)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPermission, err)
	}
	lower, err := g.catalog.LessPrivileged(pred.Name)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidPermission, err)
	}

	for _, p := range upper {
		if err := g.relations.Delete(ctx, resourceEdge(principal, p.AllowURI, resource.ID)); err != nil {
			return false, fmt.Errorf("failed to remove allow relation for %s: %w", p.Name, err)
		}
		if err := g.relations.Delete(ctx, resourceEdge(principal, p.DenyURI, resource.ID)); err != nil {
			return false, fmt.Errorf("failed to remove deny relation for %s: %w", p.Name, err)
		}
	}
	for _, p := range lower {
		if err := g.relations.Delete(ctx, resourceEdge(principal, p.DenyURI, resource.ID)); err != nil {
			return false, fmt.Errorf("failed to remove deny relation for %s: %w", p.Name, err)
		}
	}
	return true, nil
}

// GrantMany applies Grant to each resource independently and returns the
// subset for which the grant succeeded. Partial failure is expected and
// non-fatal to the batch.
func (g *Granter) GrantMany(
	ctx context.Context,
	resources []*entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) []*entities.Resource {
	return g.applyMany(resources, func(r *entities.Resource) (bool, error) {
		return g.Grant(ctx, r, permission, principal, token)
	})
}

// RevokeMany applies Revoke to each resource independently and returns the
// subset for which the revoke succeeded.
func (g *Granter) RevokeMany(
	ctx context.Context,
	resources []*entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) []*entities.Resource {
	return g.applyMany(resources, func(r *entities.Resource) (bool, error) {
		return g.Revoke(ctx, r, permission, principal, token)
	})
}

// RemoveMany applies Remove to each resource independently and returns the
// subset for which the removal succeeded.
func (g *Granter) RemoveMany(
	ctx context.Context,
	resources []*entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) []*entities.Resource {
	return g.applyMany(resources, func(r *entities.Resource) (bool, error) {
		return g.Remove(ctx, r, permission, principal, token)
	})
}

// GrantCreate marks the principal as allowed to create resources. The edge
// is repository-level and self-referencing; only administrators may grant it.
func (g *Granter) GrantCreate(
	ctx context.Context,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (bool, error) {
	pred, err := g.validateCreateMutation(principal, token)
	if err != nil {
		return false, err
	}

	legal, err := g.callerIsAdministrator(ctx, token)
	if err != nil || !legal {
		return false, err
	}

	admin, err := g.directory.IsAdministrator(ctx, principal)
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	if g.isGuestPrincipal(principal) {
		return false, nil
	}

	if err := g.relations.Write(ctx, selfEdge(principal, pred.AllowURI)); err != nil {
		return false, fmt.Errorf("failed to write create allow relation: %w", err)
	}
	if err := g.relations.Delete(ctx, selfEdge(principal, pred.DenyURI)); err != nil {
		return false, fmt.Errorf("failed to clear create deny relation: %w", err)
	}
	return true, nil
}

// RevokeCreate denies the principal the Create permission.
func (g *Granter) RevokeCreate(
	ctx context.Context,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (bool, error) {
	pred, err := g.validateCreateMutation(principal, token)
	if err != nil {
		return false, err
	}

	legal, err := g.callerIsAdministrator(ctx, token)
	if err != nil || !legal {
		return false, err
	}

	admin, err := g.directory.IsAdministrator(ctx, principal)
	if err != nil {
		return false, err
	}
	if admin {
		return false, nil
	}
	if g.isGuestPrincipal(principal) {
		// Guest can never hold Create; nothing to revoke.
		return true, nil
	}

	if err := g.relations.Write(ctx, selfEdge(principal, pred.DenyURI)); err != nil {
		return false, fmt.Errorf("failed to write create deny relation: %w", err)
	}
	if err := g.relations.Delete(ctx, selfEdge(principal, pred.AllowURI)); err != nil {
		return false, fmt.Errorf("failed to clear create allow relation: %w", err)
	}
	return true, nil
}

// RemoveCreate clears both the allow and deny Create relations.
func (g *Granter) RemoveCreate(
	ctx context.Context,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (bool, error) {
	pred, err := g.validateCreateMutation(principal, token)
	if err != nil {
		return false, err
	}

	legal, err := g.callerIsAdministrator(ctx, token)
	if err != nil || !legal {
		return false, err
	}

	admin, err := g.directory.IsAdministrator(ctx, principal)
	if err != nil {
		return false, err
	}
	if admin {
		return false, nil
	}
	if g.isGuestPrincipal(principal) {
		return true, nil
	}

	if err := g.relations.Delete(ctx, selfEdge(principal, pred.AllowURI)); err != nil {
		return false, fmt.Errorf("failed to remove create allow relation: %w", err)
	}
	if err := g.relations.Delete(ctx, selfEdge(principal, pred.DenyURI)); err != nil {
		return false, fmt.Errorf("failed to remove create deny relation: %w", err)
	}
	return true, nil
}

func (g *Granter) applyMany(resources []*entities.Resource, op func(*entities.Resource) (bool, error)) []*entities.Resource {
	succeeded := make([]*entities.Resource, 0, len(resources))
	for _, r := range resources {
		ok, err := op(r)
		if err != nil || !ok {
			continue
		}
		succeeded = append(succeeded, r)
	}
	return succeeded
}

// callerMayAdminister reports whether the caller is an administrator or
// owns the resource.
func (g *Granter) callerMayAdminister(ctx context.Context, resourceID string, token *entities.AccessToken) (bool, error) {
	admin, err := g.directory.IsAdministrator(ctx, entities.IdentityRef(token.IdentityName))
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	return g.directory.IsOwner(ctx, token.IdentityName, resourceID)
}

func (g *Granter) callerIsAdministrator(ctx context.Context, token *entities.AccessToken) (bool, error) {
	return g.directory.IsAdministrator(ctx, entities.IdentityRef(token.IdentityName))
}

func (g *Granter) isGuestPrincipal(principal entities.PrincipalRef) bool {
	return principal.Kind == entities.KindIdentity && g.directory.IsGuest(principal.Name)
}

// validateMutation checks the parameters of a resource-level mutation and
// resolves the caller identity.
func (g *Granter) validateMutation(
	resource *entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (*catalog.Predicate, error) {
	if err := resource.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := principal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if permission == "" {
		return nil, fmt.Errorf("%w: permission name is required", ErrInvalidArgument)
	}
	pred, err := g.catalog.Get(permission)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPermission, permission)
	}
	if !pred.ResourceLevel() {
		return nil, fmt.Errorf("%w: %s is not a resource-level permission", ErrInvalidPermission, permission)
	}
	return pred, nil
}

func (g *Granter) validateCreateMutation(principal entities.PrincipalRef, token *entities.AccessToken) (*catalog.Predicate, error) {
	if err := principal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := token.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	pred := g.catalog.RepositoryPredicate()
	if pred == nil {
		return nil, fmt.Errorf("%w: no repository-level predicate configured", ErrConfiguration)
	}
	return pred, nil
}

// resourceEdge builds a principal-to-resource permission relation.
func resourceEdge(principal entities.PrincipalRef, predicateURI, resourceID string) *entities.PermissionRelation {
	return &entities.PermissionRelation{
		SubjectKind:  principal.Kind,
		SubjectName:  principal.Name,
		PredicateURI: predicateURI,
		ObjectKind:   entities.ObjectResource,
		ObjectID:     resourceID,
	}
}

// selfEdge builds the self-referencing principal-to-principal relation used
// by the repository-level Create permission.
func selfEdge(principal entities.PrincipalRef, predicateURI string) *entities.PermissionRelation {
	objectKind := entities.ObjectIdentity
	if principal.Kind == entities.KindGroup {
		objectKind = entities.ObjectGroup
	}
	return &entities.PermissionRelation{
		SubjectKind:  principal.Kind,
		SubjectName:  principal.Name,
		PredicateURI: predicateURI,
		ObjectKind:   objectKind,
		ObjectID:     principal.Name,
	}
}
