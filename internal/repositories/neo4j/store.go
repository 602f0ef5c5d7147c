// Package neo4j implements the directory, resource, and relation
// repositories over a Neo4j graph. Principals and resources are nodes;
// every permission relation is a PERMISSION edge carrying its predicate
// URI, which keeps the store isomorphic to the relational layout.
package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/infrastructure/config"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

// Store implements PrincipalRepository, ResourceRepository, and
// RelationRepository over one Neo4j database.
type Store struct {
	driver        neo4j.DriverWithContext
	database      string
	membershipURI string
}

var (
	_ repositories.PrincipalRepository = (*Store)(nil)
	_ repositories.ResourceRepository  = (*Store)(nil)
	_ repositories.RelationRepository  = (*Store)(nil)
)

// Connect creates a Neo4j driver and verifies connectivity.
func Connect(ctx context.Context, cfg *config.Neo4jConfig) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("unable to connect to Neo4j: %w", err)
	}

	return driver, nil
}

// NewStore creates a store over an existing driver.
func NewStore(driver neo4j.DriverWithContext, database, membershipURI string) *Store {
	return &Store{driver: driver, database: database, membershipURI: membershipURI}
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) run(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver,
		cypher,
		params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	for _, record := range result.Records {
		records = append(records, record.AsMap())
	}
	return records, nil
}

// labelFor maps a validated principal kind to its node label. Kinds are
// enum values, never user input, so interpolating the label is safe.
func labelFor(kind entities.PrincipalKind) string {
	if kind == entities.KindGroup {
		return "Group"
	}
	return "Identity"
}

func objectLabel(kind entities.ObjectKind) string {
	switch kind {
	case entities.ObjectGroup:
		return "Group"
	case entities.ObjectIdentity:
		return "Identity"
	default:
		return "Resource"
	}
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// GetIdentityByName retrieves an identity node by name (case-insensitive).
// Returns (nil, nil) when absent.
func (s *Store) GetIdentityByName(ctx context.Context, name string) (*entities.Identity, error) {
	records, err := s.run(ctx, `
		MATCH (i:Identity)
		WHERE toLower(i.name) = toLower($name)
		RETURN i.name AS name, i.created_at AS created_at
	`, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	return &entities.Identity{
		ID:        strings.ToLower(asString(records[0]["name"])),
		Name:      asString(records[0]["name"]),
		CreatedAt: asTime(records[0]["created_at"]),
	}, nil
}

// GetGroupByName retrieves a group node by name (case-insensitive).
// Returns (nil, nil) when absent.
func (s *Store) GetGroupByName(ctx context.Context, name string) (*entities.Group, error) {
	records, err := s.run(ctx, `
		MATCH (g:Group)
		WHERE toLower(g.name) = toLower($name)
		RETURN g.name AS name, g.created_at AS created_at
	`, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	return &entities.Group{
		ID:        strings.ToLower(asString(records[0]["name"])),
		Name:      asString(records[0]["name"]),
		CreatedAt: asTime(records[0]["created_at"]),
	}, nil
}

// GroupsOf retrieves the groups an identity is a direct member of,
// following the membership edges.
func (s *Store) GroupsOf(ctx context.Context, identityName string) ([]*entities.Group, error) {
	records, err := s.run(ctx, `
		MATCH (i:Identity)-[r:PERMISSION {uri: $membership}]->(g:Group)
		WHERE toLower(i.name) = toLower($name)
		RETURN g.name AS name, g.created_at AS created_at
	`, map[string]any{"membership": s.membershipURI, "name": identityName})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups of identity: %w", err)
	}

	var groups []*entities.Group
	for _, record := range records {
		groups = append(groups, &entities.Group{
			ID:        strings.ToLower(asString(record["name"])),
			Name:      asString(record["name"]),
			CreatedAt: asTime(record["created_at"]),
		})
	}
	return groups, nil
}

// IsMember reports whether the identity has a membership edge to the group.
func (s *Store) IsMember(ctx context.Context, identityName, groupName string) (bool, error) {
	records, err := s.run(ctx, `
		MATCH (i:Identity)-[r:PERMISSION {uri: $membership}]->(g:Group)
		WHERE toLower(i.name) = toLower($identity)
			AND toLower(g.name) = toLower($group)
		RETURN count(r) AS n
	`, map[string]any{"membership": s.membershipURI, "identity": identityName, "group": groupName})
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	if len(records) == 0 {
		return false, nil
	}

	n, _ := records[0]["n"].(int64)
	return n > 0, nil
}

// GetByID retrieves a resource node by ID. Returns (nil, nil) when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*entities.Resource, error) {
	records, err := s.run(ctx, `
		MATCH (r:Resource {id: $id})
		RETURN r.id AS id, r.resource_type AS resource_type
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	return &entities.Resource{
		ID:   asString(records[0]["id"]),
		Type: asString(records[0]["resource_type"]),
	}, nil
}

// ListByTypes retrieves all resource nodes of the given types.
// An empty type list means no type restriction.
func (s *Store) ListByTypes(ctx context.Context, types []string) ([]*entities.Resource, error) {
	cypher := `MATCH (r:Resource)`
	params := map[string]any{}
	if len(types) > 0 {
		cypher += ` WHERE r.resource_type IN $types`
		params["types"] = types
	}
	cypher += ` RETURN r.id AS id, r.resource_type AS resource_type ORDER BY r.id`

	records, err := s.run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}

	var resources []*entities.Resource
	for _, record := range records {
		resources = append(resources, &entities.Resource{
			ID:   asString(record["id"]),
			Type: asString(record["resource_type"]),
		})
	}
	return resources, nil
}

// Write creates a permission edge, merging its endpoint nodes as needed.
// Writing an existing edge is a no-op thanks to MERGE.
func (s *Store) Write(ctx context.Context, rel *entities.PermissionRelation) error {
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("invalid permission relation: %w", err)
	}

	cypher := fmt.Sprintf(`
		MERGE (s:%s {name_key: toLower($subjectName)})
		ON CREATE SET s.name = $subjectName, s.kind = $subjectKind, s.id = $subjectName, s.created_at = datetime()
		MERGE (o:%s {id: $objectID})
		ON CREATE SET o.kind = $objectKind, o.name = $objectID, o.name_key = toLower($objectID), o.created_at = datetime()
		MERGE (s)-[r:PERMISSION {uri: $uri}]->(o)
		ON CREATE SET r.created_at = datetime()
	`, labelFor(rel.SubjectKind), objectLabel(rel.ObjectKind))

	_, err := s.run(ctx, cypher, map[string]any{
		"subjectName": rel.SubjectName,
		"subjectKind": string(rel.SubjectKind),
		"objectID":    rel.ObjectID,
		"objectKind":  string(rel.ObjectKind),
		"uri":         rel.PredicateURI,
	})
	if err != nil {
		return fmt.Errorf("failed to write relation: %w", err)
	}
	return nil
}

// Delete removes a permission edge. The endpoint nodes stay. Deleting an
// absent edge is a no-op.
func (s *Store) Delete(ctx context.Context, rel *entities.PermissionRelation) error {
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("invalid permission relation: %w", err)
	}

	cypher := fmt.Sprintf(`
		MATCH (s:%s)-[r:PERMISSION {uri: $uri}]->(o:%s {id: $objectID})
		WHERE toLower(s.name) = toLower($subjectName)
		DELETE r
	`, labelFor(rel.SubjectKind), objectLabel(rel.ObjectKind))

	_, err := s.run(ctx, cypher, map[string]any{
		"subjectName": rel.SubjectName,
		"objectID":    rel.ObjectID,
		"uri":         rel.PredicateURI,
	})
	if err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}
	return nil
}

// Exists reports whether the exact permission edge is stored.
func (s *Store) Exists(ctx context.Context, rel *entities.PermissionRelation) (bool, error) {
	if err := rel.Validate(); err != nil {
		return false, fmt.Errorf("invalid permission relation: %w", err)
	}

	cypher := fmt.Sprintf(`
		MATCH (s:%s)-[r:PERMISSION {uri: $uri}]->(o:%s {id: $objectID})
		WHERE toLower(s.name) = toLower($subjectName)
		RETURN count(r) AS n
	`, labelFor(rel.SubjectKind), objectLabel(rel.ObjectKind))

	records, err := s.run(ctx, cypher, map[string]any{
		"subjectName": rel.SubjectName,
		"objectID":    rel.ObjectID,
		"uri":         rel.PredicateURI,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check relation existence: %w", err)
	}
	if len(records) == 0 {
		return false, nil
	}

	n, _ := records[0]["n"].(int64)
	return n > 0, nil
}

// Read retrieves permission edges matching the filter.
func (s *Store) Read(ctx context.Context, filter *repositories.RelationFilter) ([]*entities.PermissionRelation, error) {
	cypher := `MATCH (s)-[r:PERMISSION]->(o)`
	params := map[string]any{}
	var conditions []string

	if filter != nil {
		if len(filter.Subjects) > 0 {
			conditions = append(conditions,
				`any(sub IN $subjects WHERE sub.kind = s.kind AND sub.name = toLower(s.name))`)
			subjects := make([]map[string]any, 0, len(filter.Subjects))
			for _, subject := range filter.Subjects {
				subjects = append(subjects, map[string]any{
					"kind": string(subject.Kind),
					"name": strings.ToLower(subject.Name),
				})
			}
			params["subjects"] = subjects
		} else {
			if filter.SubjectKind != "" {
				conditions = append(conditions, `s.kind = $subjectKind`)
				params["subjectKind"] = string(filter.SubjectKind)
			}
			if filter.SubjectName != "" {
				conditions = append(conditions, `toLower(s.name) = toLower($subjectName)`)
				params["subjectName"] = filter.SubjectName
			}
		}
		if len(filter.PredicateURIs) > 0 {
			conditions = append(conditions, `r.uri IN $uris`)
			params["uris"] = filter.PredicateURIs
		} else if filter.PredicateURI != "" {
			conditions = append(conditions, `r.uri = $uri`)
			params["uri"] = filter.PredicateURI
		}
		if filter.ObjectKind != "" {
			conditions = append(conditions, `o.kind = $objectKind`)
			params["objectKind"] = string(filter.ObjectKind)
		}
		if filter.ObjectID != "" {
			conditions = append(conditions, `o.id = $objectID`)
			params["objectID"] = filter.ObjectID
		}
		if len(filter.ObjectTypes) > 0 {
			conditions = append(conditions, `o.resource_type IN $objectTypes`)
			params["objectTypes"] = filter.ObjectTypes
		}
	}

	if len(conditions) > 0 {
		cypher += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	cypher += `
		RETURN s.kind AS subject_kind, s.name AS subject_name, r.uri AS uri,
			o.kind AS object_kind, o.id AS object_id, r.created_at AS created_at
	`

	records, err := s.run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("failed to read relations: %w", err)
	}

	var relations []*entities.PermissionRelation
	for _, record := range records {
		relations = append(relations, &entities.PermissionRelation{
			SubjectKind:  entities.PrincipalKind(asString(record["subject_kind"])),
			SubjectName:  asString(record["subject_name"]),
			PredicateURI: asString(record["uri"]),
			ObjectKind:   entities.ObjectKind(asString(record["object_kind"])),
			ObjectID:     asString(record["object_id"]),
			CreatedAt:    asTime(record["created_at"]),
		})
	}
	return relations, nil
}

// AuthorizedResourceIDs returns the distinct resource IDs reachable from
// any of the subjects through the predicate URI, optionally restricted by
// resource type. The traversal runs graph-side.
func (s *Store) AuthorizedResourceIDs(
	ctx context.Context,
	subjects []entities.PrincipalRef,
	predicateURI string,
	resourceTypes []string,
) ([]string, error) {
	if len(subjects) == 0 {
		return nil, nil
	}

	cypher := `
		MATCH (s)-[r:PERMISSION {uri: $uri}]->(o:Resource)
		WHERE any(sub IN $subjects WHERE sub.kind = s.kind AND sub.name = toLower(s.name))
	`
	params := map[string]any{"uri": predicateURI}

	subjectParams := make([]map[string]any, 0, len(subjects))
	for _, subject := range subjects {
		subjectParams = append(subjectParams, map[string]any{
			"kind": string(subject.Kind),
			"name": strings.ToLower(subject.Name),
		})
	}
	params["subjects"] = subjectParams

	if len(resourceTypes) > 0 {
		cypher += ` AND o.resource_type IN $types`
		params["types"] = resourceTypes
	}
	cypher += ` RETURN DISTINCT o.id AS id`

	records, err := s.run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query authorized resource IDs: %w", err)
	}

	var ids []string
	for _, record := range records {
		ids = append(ids, asString(record["id"]))
	}
	return ids, nil
}
