// Package zentity exposes the resource repository security engine to
// hosting applications: configuration loading, store backend selection,
// and the SecurityService facade with the types its operations consume.
package zentity

import (
	"context"
	"fmt"
	"time"

	"github.com/jdm7dv/zentity-security/internal/catalog"
	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/infrastructure/config"
	"github.com/jdm7dv/zentity-security/internal/infrastructure/database"
	"github.com/jdm7dv/zentity-security/internal/infrastructure/metrics"
	"github.com/jdm7dv/zentity-security/internal/repositories"
	neo4jstore "github.com/jdm7dv/zentity-security/internal/repositories/neo4j"
	"github.com/jdm7dv/zentity-security/internal/repositories/postgres"
	"github.com/jdm7dv/zentity-security/internal/services"
	"github.com/jdm7dv/zentity-security/internal/services/authorization"
	"github.com/jdm7dv/zentity-security/pkg/cache"
	"github.com/jdm7dv/zentity-security/pkg/cache/memorycache"
)

// Engine surface.
type (
	SecurityService          = services.SecurityService
	SecurityServiceInterface = services.SecurityServiceInterface
	Option                   = services.Option

	Settings        = authorization.Settings
	PermissionEntry = authorization.PermissionEntry

	Catalog   = catalog.Catalog
	Predicate = catalog.Predicate
)

// Domain value types.
type (
	Identity           = entities.Identity
	Group              = entities.Group
	PrincipalRef       = entities.PrincipalRef
	PrincipalKind      = entities.PrincipalKind
	Resource           = entities.Resource
	TypeRegistry       = entities.TypeRegistry
	PermissionRelation = entities.PermissionRelation
	ObjectKind         = entities.ObjectKind
	AccessToken        = entities.AccessToken
)

// Store collaborator contracts, for hosting applications that bring their
// own backend instead of using OpenStores.
type (
	PrincipalRepository = repositories.PrincipalRepository
	ResourceRepository  = repositories.ResourceRepository
	RelationRepository  = repositories.RelationRepository
	RelationFilter      = repositories.RelationFilter
)

// Configuration and metrics.
type (
	Config             = config.Config
	Collector          = metrics.Collector
	Recorder           = metrics.Recorder
	PrometheusExporter = metrics.PrometheusExporter
)

const (
	KindIdentity = entities.KindIdentity
	KindGroup    = entities.KindGroup

	ObjectResource = entities.ObjectResource
	ObjectIdentity = entities.ObjectIdentity
	ObjectGroup    = entities.ObjectGroup

	PermissionCreate = catalog.PermissionCreate
	PermissionRead   = catalog.PermissionRead
	PermissionUpdate = catalog.PermissionUpdate
	PermissionDelete = catalog.PermissionDelete
	PermissionOwner  = catalog.PermissionOwner
)

// Sentinel errors of the engine; match with errors.Is.
var (
	ErrInvalidArgument   = authorization.ErrInvalidArgument
	ErrInvalidPermission = authorization.ErrInvalidPermission
	ErrInvalidToken      = authorization.ErrInvalidToken
	ErrAllowDenyConflict = authorization.ErrAllowDenyConflict
	ErrConfiguration     = authorization.ErrConfiguration
)

// Re-exported constructors and options.
var (
	InitConfig = config.InitConfig
	LoadConfig = config.Load

	NewCatalog         = catalog.New
	NewSecurityService = services.NewSecurityService

	NewAccessToken  = entities.NewAccessToken
	IdentityRef     = entities.IdentityRef
	GroupRef        = entities.GroupRef
	NewTypeRegistry = entities.NewTypeRegistry

	WithDirectoryCache = services.WithDirectoryCache
	WithMetrics        = services.WithMetrics
	WithTypeRegistry   = services.WithTypeRegistry

	NewCollector          = metrics.NewCollector
	NewRecorder           = metrics.NewRecorder
	NewPrometheusExporter = metrics.NewPrometheusExporter
)

// Stores bundles the three repositories of one store backend.
type Stores struct {
	Principals PrincipalRepository
	Resources  ResourceRepository
	Relations  RelationRepository

	close func(context.Context) error
}

// Close releases the backend connection.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenStores connects the store backend selected by cfg.Store.Backend and
// returns its repositories.
func OpenStores(ctx context.Context, cfg *Config) (*Stores, error) {
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := database.NewPostgres(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return &Stores{
			Principals: postgres.NewPostgresPrincipalRepository(pg.DB, cfg.Security.MembershipURI),
			Resources:  postgres.NewPostgresResourceRepository(pg.DB),
			Relations:  postgres.NewPostgresRelationRepository(pg.DB),
			close:      func(context.Context) error { return pg.Close() },
		}, nil

	case "neo4j":
		driver, err := neo4jstore.Connect(ctx, &cfg.Neo4j)
		if err != nil {
			return nil, fmt.Errorf("failed to open neo4j store: %w", err)
		}
		store := neo4jstore.NewStore(driver, cfg.Neo4j.Database, cfg.Security.MembershipURI)
		return &Stores{
			Principals: store,
			Resources:  store,
			Relations:  store,
			close:      store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported store backend %q", ErrConfiguration, cfg.Store.Backend)
	}
}

// New builds the security engine from configuration: it opens the
// configured store backend, assembles the predicate catalog and directory
// settings, and enables the directory cache when configured. The caller
// owns the returned Stores and closes them after the service is done.
func New(ctx context.Context, cfg *Config, opts ...Option) (*SecurityService, *Stores, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	cat, err := NewCatalog(cfg.Security.Predicates())
	if err != nil {
		stores.Close(ctx)
		return nil, nil, fmt.Errorf("%w: invalid predicate table: %v", ErrConfiguration, err)
	}

	if cfg.Cache.Enabled {
		var c cache.Cache
		c, err = memorycache.New(&memorycache.Config{
			MaxKeys:       cfg.Cache.MaxKeys,
			DefaultTTL:    time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
			EnableMetrics: true,
		})
		if err != nil {
			stores.Close(ctx)
			return nil, nil, fmt.Errorf("failed to create directory cache: %w", err)
		}
		opts = append(opts, WithDirectoryCache(c, time.Duration(cfg.Cache.TTLMinutes)*time.Minute))
	}

	service, err := NewSecurityService(cfg.Security.Settings(), cat, stores.Principals, stores.Resources, stores.Relations, opts...)
	if err != nil {
		stores.Close(ctx)
		return nil, nil, err
	}

	return service, stores, nil
}
