package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jdm7dv/zentity-security/internal/catalog"
	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/infrastructure/metrics"
	"github.com/jdm7dv/zentity-security/internal/repositories"
	"github.com/jdm7dv/zentity-security/internal/services/authorization"
	"github.com/jdm7dv/zentity-security/pkg/cache"
)

// SecurityServiceInterface defines the public surface of the authorization
// engine: authorize, permission inspection, and permission mutation.
type SecurityServiceInterface interface {
	Authorize(ctx context.Context, candidates []*entities.Resource, permission string, token *entities.AccessToken) ([]*entities.Resource, error)
	AuthorizeResource(ctx context.Context, resource *entities.Resource, permission string, token *entities.AccessToken) (bool, error)
	AuthorizedResources(ctx context.Context, resourceType, permission string, token *entities.AccessToken) ([]*entities.Resource, error)

	GetPermissions(ctx context.Context, resource *entities.Resource, token *entities.AccessToken) ([]string, bool, error)
	GetPermissionsBatch(ctx context.Context, resources []*entities.Resource, token *entities.AccessToken) (map[string][]string, error)
	GetPermissionMap(ctx context.Context, resource *entities.Resource, principal entities.PrincipalRef, token *entities.AccessToken) ([]authorization.PermissionEntry, error)
	SetPermissionMap(ctx context.Context, resource *entities.Resource, desired []authorization.PermissionEntry, principal entities.PrincipalRef, token *entities.AccessToken) (bool, error)
	GetCreatePermissionMap(ctx context.Context, principal entities.PrincipalRef, token *entities.AccessToken) ([]authorization.PermissionEntry, error)

	Grant(ctx context.Context, resource *entities.Resource, permission string, principal entities.PrincipalRef, token *entities.AccessToken) (bool, error)
	Revoke(ctx context.Context, resource *entities.Resource, permission string, principal entities.PrincipalRef, token *entities.AccessToken) (bool, error)
	Remove(ctx context.Context, resource *entities.Resource, permission string, principal entities.PrincipalRef, token *entities.AccessToken) (bool, error)
	GrantMany(ctx context.Context, resources []*entities.Resource, permission string, principal entities.PrincipalRef, token *entities.AccessToken) ([]*entities.Resource, error)
	RevokeMany(ctx context.Context, resources []*entities.Resource, permission string, principal entities.PrincipalRef, token *entities.AccessToken) ([]*entities.Resource, error)
	RemoveMany(ctx context.Context, resources []*entities.Resource, permission string, principal entities.PrincipalRef, token *entities.AccessToken) ([]*entities.Resource, error)
	GrantCreate(ctx context.Context, principal entities.PrincipalRef, token *entities.AccessToken) (bool, error)
	RevokeCreate(ctx context.Context, principal entities.PrincipalRef, token *entities.AccessToken) (bool, error)
	RemoveCreate(ctx context.Context, principal entities.PrincipalRef, token *entities.AccessToken) (bool, error)

	HasCreatePermission(ctx context.Context, token *entities.AccessToken) (bool, error)
	IsAdmin(ctx context.Context, token *entities.AccessToken) (bool, error)
	IsGuest(token *entities.AccessToken) bool
	IsOwner(ctx context.Context, resource *entities.Resource, token *entities.AccessToken) (bool, error)
}

// SecurityService is the facade over the authorization engine. It validates
// parameters, translates denials into data rather than errors, and records
// metrics for every operation.
type SecurityService struct {
	settings   authorization.Settings
	catalog    *catalog.Catalog
	directory  *authorization.Directory
	authorizer *authorization.Authorizer
	granter    *authorization.Granter
	mapper     *authorization.Mapper
	relations  repositories.RelationRepository
	recorder   *metrics.Recorder
}

// Option configures optional facade behavior.
type Option func(*serviceOptions)

type serviceOptions struct {
	cache    cache.Cache
	cacheTTL time.Duration
	recorder *metrics.Recorder
	types    *entities.TypeRegistry
}

// WithDirectoryCache enables TTL caching of identity resolution and
// administrator checks.
func WithDirectoryCache(c cache.Cache, ttl time.Duration) Option {
	return func(o *serviceOptions) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithMetrics enables operation and decision metrics.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *serviceOptions) {
		o.recorder = recorder
	}
}

// WithTypeRegistry sets the resource type hierarchy used for type-narrowed
// queries.
func WithTypeRegistry(types *entities.TypeRegistry) Option {
	return func(o *serviceOptions) {
		o.types = types
	}
}

// NewSecurityService builds the engine over the store collaborators.
// Settings and predicate table problems surface here as configuration
// errors, never per call.
func NewSecurityService(
	settings authorization.Settings,
	cat *catalog.Catalog,
	principals repositories.PrincipalRepository,
	resources repositories.ResourceRepository,
	relations repositories.RelationRepository,
	opts ...Option,
) (*SecurityService, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, fmt.Errorf("%w: predicate catalog is required", authorization.ErrConfiguration)
	}
	if principals == nil || resources == nil || relations == nil {
		return nil, fmt.Errorf("%w: store repositories are required", authorization.ErrConfiguration)
	}

	var options serviceOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.types == nil {
		options.types = entities.NewTypeRegistry()
	}

	var directory *authorization.Directory
	if options.cache != nil {
		directory = authorization.NewDirectoryWithCache(settings, principals, relations, cat, options.cache, options.cacheTTL)
	} else {
		directory = authorization.NewDirectory(settings, principals, relations, cat)
	}

	granter := authorization.NewGranter(directory, cat, relations)

	return &SecurityService{
		settings:   settings,
		catalog:    cat,
		directory:  directory,
		authorizer: authorization.NewAuthorizer(directory, cat, relations, resources, options.types),
		granter:    granter,
		mapper:     authorization.NewMapper(directory, cat, relations, granter),
		relations:  relations,
		recorder:   options.recorder,
	}, nil
}

// Directory exposes the read-only directory facts component.
func (s *SecurityService) Directory() *authorization.Directory {
	return s.directory
}

// Authorize returns the subset of candidates the caller may access under
// the permission.
func (s *SecurityService) Authorize(
	ctx context.Context,
	candidates []*entities.Resource,
	permission string,
	token *entities.AccessToken,
) (result []*entities.Resource, err error) {
	defer s.observe("Authorize", time.Now(), &err)
	return s.authorizer.AuthorizeResources(ctx, candidates, permission, token)
}

// AuthorizeResource reports whether the caller may access one resource
// under the permission.
func (s *SecurityService) AuthorizeResource(
	ctx context.Context,
	resource *entities.Resource,
	permission string,
	token *entities.AccessToken,
) (allowed bool, err error) {
	defer s.observe("AuthorizeResource", time.Now(), &err)
	allowed, err = s.authorizer.AuthorizeResource(ctx, resource, permission, token)
	if err == nil {
		s.recorder.Decision(allowed)
	}
	return allowed, err
}

// AuthorizedResources returns every resource of the type (and its subtypes)
// the caller may access under the permission.
func (s *SecurityService) AuthorizedResources(
	ctx context.Context,
	resourceType, permission string,
	token *entities.AccessToken,
) (result []*entities.Resource, err error) {
	defer s.observe("AuthorizedResources", time.Now(), &err)
	return s.authorizer.AuthorizedResources(ctx, resourceType, permission, token)
}

// GetPermissions returns the permission names the caller effectively holds
// on the resource; ok=false means no access at all.
func (s *SecurityService) GetPermissions(
	ctx context.Context,
	resource *entities.Resource,
	token *entities.AccessToken,
) (permissions []string, ok bool, err error) {
	defer s.observe("GetPermissions", time.Now(), &err)
	return s.mapper.PermissionsFor(ctx, resource, token)
}

// GetPermissionsBatch returns the effective permission names per resource
// ID; resources the caller cannot read at all are omitted.
func (s *SecurityService) GetPermissionsBatch(
	ctx context.Context,
	resources []*entities.Resource,
	token *entities.AccessToken,
) (result map[string][]string, err error) {
	defer s.observe("GetPermissionsBatch", time.Now(), &err)
	return s.mapper.PermissionsForAll(ctx, resources, token)
}

// GetPermissionMap returns the explicit allow/deny flags of every
// resource-level permission for the principal on the resource.
func (s *SecurityService) GetPermissionMap(
	ctx context.Context,
	resource *entities.Resource,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (entries []authorization.PermissionEntry, err error) {
	defer s.observe("GetPermissionMap", time.Now(), &err)
	return s.mapper.BuildMap(ctx, resource, principal, token)
}

// SetPermissionMap diffs the desired map against the current one and issues
// the minimal grant/revoke/remove calls.
func (s *SecurityService) SetPermissionMap(
	ctx context.Context,
	resource *entities.Resource,
	desired []authorization.PermissionEntry,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (ok bool, err error) {
	defer s.observe("SetPermissionMap", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.mapper.SetMap(ctx, resource, desired, principal, token)
}

// GetCreatePermissionMap returns the single-entry map for the
// repository-level Create permission.
func (s *SecurityService) GetCreatePermissionMap(
	ctx context.Context,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (entries []authorization.PermissionEntry, err error) {
	defer s.observe("GetCreatePermissionMap", time.Now(), &err)
	return s.mapper.BuildCreateMap(ctx, principal, token)
}

// Grant gives the principal the permission (and everything less strict) on
// the resource.
func (s *SecurityService) Grant(
	ctx context.Context,
	resource *entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (ok bool, err error) {
	defer s.observe("Grant", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.granter.Grant(ctx, resource, permission, principal, token)
}

// Revoke denies the principal the permission (and everything more
// privileged) on the resource.
func (s *SecurityService) Revoke(
	ctx context.Context,
	resource *entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (ok bool, err error) {
	defer s.observe("Revoke", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.granter.Revoke(ctx, resource, permission, principal, token)
}

// Remove restores the Unset state for the permission across its hierarchy
// range on the resource.
func (s *SecurityService) Remove(
	ctx context.Context,
	resource *entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (ok bool, err error) {
	defer s.observe("Remove", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.granter.Remove(ctx, resource, permission, principal, token)
}

// GrantMany applies Grant per resource and returns the successful subset.
func (s *SecurityService) GrantMany(
	ctx context.Context,
	resources []*entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (succeeded []*entities.Resource, err error) {
	defer s.observe("GrantMany", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return nil, err
	}
	return s.granter.GrantMany(ctx, resources, permission, principal, token), nil
}

// RevokeMany applies Revoke per resource and returns the successful subset.
func (s *SecurityService) RevokeMany(
	ctx context.Context,
	resources []*entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (succeeded []*entities.Resource, err error) {
	defer s.observe("RevokeMany", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return nil, err
	}
	return s.granter.RevokeMany(ctx, resources, permission, principal, token), nil
}

// RemoveMany applies Remove per resource and returns the successful subset.
func (s *SecurityService) RemoveMany(
	ctx context.Context,
	resources []*entities.Resource,
	permission string,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (succeeded []*entities.Resource, err error) {
	defer s.observe("RemoveMany", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return nil, err
	}
	return s.granter.RemoveMany(ctx, resources, permission, principal, token), nil
}

// GrantCreate marks the principal as allowed to create resources.
func (s *SecurityService) GrantCreate(
	ctx context.Context,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (ok bool, err error) {
	defer s.observe("GrantCreate", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.granter.GrantCreate(ctx, principal, token)
}

// RevokeCreate denies the principal the Create permission.
func (s *SecurityService) RevokeCreate(
	ctx context.Context,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (ok bool, err error) {
	defer s.observe("RevokeCreate", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.granter.RevokeCreate(ctx, principal, token)
}

// RemoveCreate clears both Create relations for the principal.
func (s *SecurityService) RemoveCreate(
	ctx context.Context,
	principal entities.PrincipalRef,
	token *entities.AccessToken,
) (ok bool, err error) {
	defer s.observe("RemoveCreate", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.granter.RemoveCreate(ctx, principal, token)
}

// HasCreatePermission reports whether the caller may create resources:
// administrators always, the guest never, everyone else iff they or
// AllUsers hold the Create allow relation and neither holds the deny.
func (s *SecurityService) HasCreatePermission(ctx context.Context, token *entities.AccessToken) (allowed bool, err error) {
	defer s.observe("HasCreatePermission", time.Now(), &err)

	if err := token.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", authorization.ErrInvalidToken, err)
	}

	admin, err := s.directory.IsAdministrator(ctx, entities.IdentityRef(token.IdentityName))
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	if s.directory.IsGuest(token.IdentityName) {
		return false, nil
	}
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}

	pred := s.catalog.RepositoryPredicate()
	if pred == nil {
		return false, fmt.Errorf("%w: no repository-level predicate configured", authorization.ErrConfiguration)
	}

	subjects := []entities.PrincipalRef{
		entities.IdentityRef(token.IdentityName),
		entities.GroupRef(s.settings.AllUsersGroup),
	}

	var hasAllow, hasDeny bool
	for _, subject := range subjects {
		allowEdge, denyEdge := createEdges(subject, pred.AllowURI, pred.DenyURI)

		exists, err := s.relations.Exists(ctx, allowEdge)
		if err != nil {
			return false, fmt.Errorf("failed to check create allow relation: %w", err)
		}
		hasAllow = hasAllow || exists

		exists, err = s.relations.Exists(ctx, denyEdge)
		if err != nil {
			return false, fmt.Errorf("failed to check create deny relation: %w", err)
		}
		hasDeny = hasDeny || exists
	}

	return hasAllow && !hasDeny, nil
}

// IsAdmin reports whether the caller is an administrator.
func (s *SecurityService) IsAdmin(ctx context.Context, token *entities.AccessToken) (admin bool, err error) {
	defer s.observe("IsAdmin", time.Now(), &err)
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.directory.IsAdministrator(ctx, entities.IdentityRef(token.IdentityName))
}

// IsGuest reports whether the caller is the guest identity.
func (s *SecurityService) IsGuest(token *entities.AccessToken) bool {
	if token == nil {
		return false
	}
	return s.directory.IsGuest(token.IdentityName)
}

// IsOwner reports whether the caller owns the resource.
func (s *SecurityService) IsOwner(ctx context.Context, resource *entities.Resource, token *entities.AccessToken) (owner bool, err error) {
	defer s.observe("IsOwner", time.Now(), &err)
	if err := resource.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", authorization.ErrInvalidArgument, err)
	}
	if err := s.resolveCaller(ctx, token); err != nil {
		return false, err
	}
	return s.directory.IsOwner(ctx, token.IdentityName, resource.ID)
}

// resolveCaller validates the token and requires its identity to exist in
// the directory.
func (s *SecurityService) resolveCaller(ctx context.Context, token *entities.AccessToken) error {
	if err := token.Validate(); err != nil {
		return fmt.Errorf("%w: %v", authorization.ErrInvalidToken, err)
	}
	identity, err := s.directory.ResolveIdentity(ctx, token.IdentityName)
	if err != nil {
		return err
	}
	if identity == nil {
		return fmt.Errorf("%w: identity %s not found", authorization.ErrInvalidToken, token.IdentityName)
	}
	return nil
}

func (s *SecurityService) observe(operation string, start time.Time, err *error) {
	s.recorder.Observe(operation, start, *err)
}

// createEdges builds the self-referencing allow and deny Create relations
// for a principal.
func createEdges(principal entities.PrincipalRef, allowURI, denyURI string) (*entities.PermissionRelation, *entities.PermissionRelation) {
	objectKind := entities.ObjectIdentity
	if principal.Kind == entities.KindGroup {
		objectKind = entities.ObjectGroup
	}
	allow := &entities.PermissionRelation{
		SubjectKind:  principal.Kind,
		SubjectName:  principal.Name,
		PredicateURI: allowURI,
		ObjectKind:   objectKind,
		ObjectID:     principal.Name,
	}
	deny := &entities.PermissionRelation{
		SubjectKind:  principal.Kind,
		SubjectName:  principal.Name,
		PredicateURI: denyURI,
		ObjectKind:   objectKind,
		ObjectID:     principal.Name,
	}
	return allow, deny
}
