package authorization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jdm7dv/zentity-security/internal/catalog"
	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

// mockStore is an in-memory implementation of all three repositories,
// shared by the engine tests.
type mockStore struct {
	identities map[string]*entities.Identity // lower name -> identity
	groups     map[string]*entities.Group    // lower name -> group
	members    map[string]map[string]bool    // lower group -> lower identity -> member
	resources  map[string]*entities.Resource // id -> resource
	relations  map[string]*entities.PermissionRelation

	failWith error // when set, every store call fails with this error
}

func newMockStore() *mockStore {
	return &mockStore{
		identities: make(map[string]*entities.Identity),
		groups:     make(map[string]*entities.Group),
		members:    make(map[string]map[string]bool),
		resources:  make(map[string]*entities.Resource),
		relations:  make(map[string]*entities.PermissionRelation),
	}
}

func (m *mockStore) addIdentity(name string) {
	m.identities[strings.ToLower(name)] = &entities.Identity{
		ID:        strings.ToLower(name),
		Name:      name,
		CreatedAt: time.Now(),
	}
}

func (m *mockStore) addGroup(name string) {
	m.groups[strings.ToLower(name)] = &entities.Group{
		ID:        strings.ToLower(name),
		Name:      name,
		CreatedAt: time.Now(),
	}
}

func (m *mockStore) addMember(identityName, groupName string) {
	group := strings.ToLower(groupName)
	if m.members[group] == nil {
		m.members[group] = make(map[string]bool)
	}
	m.members[group][strings.ToLower(identityName)] = true
}

func (m *mockStore) addResource(id, resourceType string) *entities.Resource {
	r := &entities.Resource{ID: id, Type: resourceType}
	m.resources[id] = r
	return r
}

func relKey(rel *entities.PermissionRelation) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		rel.SubjectKind, strings.ToLower(rel.SubjectName), rel.PredicateURI, rel.ObjectKind, rel.ObjectID)
}

// addRelation stores an edge directly, bypassing the engine.
func (m *mockStore) addRelation(rel *entities.PermissionRelation) {
	m.relations[relKey(rel)] = rel
}

// has reports whether the exact edge is stored, for asserting mutations.
func (m *mockStore) has(rel *entities.PermissionRelation) bool {
	_, ok := m.relations[relKey(rel)]
	return ok
}

// --- PrincipalRepository ---

func (m *mockStore) GetIdentityByName(ctx context.Context, name string) (*entities.Identity, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.identities[strings.ToLower(name)], nil
}

func (m *mockStore) GetGroupByName(ctx context.Context, name string) (*entities.Group, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.groups[strings.ToLower(name)], nil
}

func (m *mockStore) GroupsOf(ctx context.Context, identityName string) ([]*entities.Group, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var groups []*entities.Group
	identity := strings.ToLower(identityName)
	for group, members := range m.members {
		if members[identity] {
			if g, ok := m.groups[group]; ok {
				groups = append(groups, g)
			}
		}
	}
	return groups, nil
}

func (m *mockStore) IsMember(ctx context.Context, identityName, groupName string) (bool, error) {
	if m.failWith != nil {
		return false, m.failWith
	}
	members := m.members[strings.ToLower(groupName)]
	return members[strings.ToLower(identityName)], nil
}

// --- ResourceRepository ---

func (m *mockStore) GetByID(ctx context.Context, id string) (*entities.Resource, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.resources[id], nil
}

func (m *mockStore) ListByTypes(ctx context.Context, types []string) ([]*entities.Resource, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var result []*entities.Resource
	for _, r := range m.resources {
		if len(types) == 0 || containsFold(types, r.Type) {
			result = append(result, r)
		}
	}
	return result, nil
}

// --- RelationRepository ---

func (m *mockStore) Write(ctx context.Context, rel *entities.PermissionRelation) error {
	if m.failWith != nil {
		return m.failWith
	}
	if err := rel.Validate(); err != nil {
		return err
	}
	m.relations[relKey(rel)] = rel
	return nil
}

func (m *mockStore) Delete(ctx context.Context, rel *entities.PermissionRelation) error {
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.relations, relKey(rel))
	return nil
}

func (m *mockStore) Exists(ctx context.Context, rel *entities.PermissionRelation) (bool, error) {
	if m.failWith != nil {
		return false, m.failWith
	}
	return m.has(rel), nil
}

func (m *mockStore) Read(ctx context.Context, filter *repositories.RelationFilter) ([]*entities.PermissionRelation, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var result []*entities.PermissionRelation
	for _, rel := range m.relations {
		if matchesFilter(rel, filter) {
			result = append(result, rel)
		}
	}
	return result, nil
}

func (m *mockStore) AuthorizedResourceIDs(
	ctx context.Context,
	subjects []entities.PrincipalRef,
	predicateURI string,
	resourceTypes []string,
) ([]string, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	seen := make(map[string]bool)
	var ids []string
	for _, rel := range m.relations {
		if rel.PredicateURI != predicateURI || rel.ObjectKind != entities.ObjectResource {
			continue
		}
		if !subjectMatches(rel, subjects) {
			continue
		}
		if len(resourceTypes) > 0 {
			r, ok := m.resources[rel.ObjectID]
			if !ok || !containsFold(resourceTypes, r.Type) {
				continue
			}
		}
		if !seen[rel.ObjectID] {
			seen[rel.ObjectID] = true
			ids = append(ids, rel.ObjectID)
		}
	}
	return ids, nil
}

func subjectMatches(rel *entities.PermissionRelation, subjects []entities.PrincipalRef) bool {
	for _, s := range subjects {
		if rel.SubjectKind == s.Kind && strings.EqualFold(rel.SubjectName, s.Name) {
			return true
		}
	}
	return false
}

func matchesFilter(rel *entities.PermissionRelation, filter *repositories.RelationFilter) bool {
	if filter == nil {
		return true
	}
	if len(filter.Subjects) > 0 && !subjectMatches(rel, filter.Subjects) {
		return false
	}
	if filter.SubjectKind != "" && rel.SubjectKind != filter.SubjectKind {
		return false
	}
	if filter.SubjectName != "" && !strings.EqualFold(rel.SubjectName, filter.SubjectName) {
		return false
	}
	if len(filter.PredicateURIs) > 0 && !containsFold(filter.PredicateURIs, rel.PredicateURI) {
		return false
	}
	if filter.PredicateURI != "" && rel.PredicateURI != filter.PredicateURI {
		return false
	}
	if filter.ObjectKind != "" && rel.ObjectKind != filter.ObjectKind {
		return false
	}
	if filter.ObjectID != "" && rel.ObjectID != filter.ObjectID {
		return false
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// --- fixtures ---

func testSettings() Settings {
	return Settings{
		AdministratorsGroup: "Administrators",
		AdministratorName:   "Administrator",
		AllUsersGroup:       "AllUsers",
		GuestName:           "Guest",
		MembershipURI:       "urn:test:member-of",
	}
}

func testCatalog(t interface{ Fatalf(string, ...interface{}) }) *catalog.Catalog {
	cat, err := catalog.New([]*catalog.Predicate{
		{Name: catalog.PermissionCreate, Priority: 0, AllowURI: "urn:test:allow-create", DenyURI: "urn:test:deny-create"},
		{Name: catalog.PermissionRead, Priority: 1, AllowURI: "urn:test:allow-read", DenyURI: "urn:test:deny-read"},
		{Name: catalog.PermissionUpdate, Priority: 2, AllowURI: "urn:test:allow-update", DenyURI: "urn:test:deny-update"},
		{Name: catalog.PermissionDelete, Priority: 3, AllowURI: "urn:test:allow-delete", DenyURI: "urn:test:deny-delete"},
		{Name: catalog.PermissionOwner, Priority: 4, AllowURI: "urn:test:allow-owner", DenyURI: "urn:test:deny-owner"},
	})
	if err != nil {
		t.Fatalf("failed to build test catalog: %v", err)
	}
	return cat
}

// fixture bundles the engine components over one mock store, pre-populated
// with the well-known principals and a few regular identities.
type fixture struct {
	store     *mockStore
	catalog   *catalog.Catalog
	directory *Directory
	granter   *Granter
}

func newFixture(t interface{ Fatalf(string, ...interface{}) }) *fixture {
	store := newMockStore()
	store.addIdentity("Administrator")
	store.addIdentity("Guest")
	store.addIdentity("alice")
	store.addIdentity("bob")
	store.addIdentity("carol")
	store.addGroup("Administrators")
	store.addGroup("AllUsers")
	store.addGroup("editors")

	cat := testCatalog(t)
	directory := NewDirectory(testSettings(), store, store, cat)

	return &fixture{
		store:     store,
		catalog:   cat,
		directory: directory,
		granter:   NewGranter(directory, cat, store),
	}
}

func (f *fixture) authorizer(types *entities.TypeRegistry) *Authorizer {
	if types == nil {
		types = entities.NewTypeRegistry()
	}
	return NewAuthorizer(f.directory, f.catalog, f.store, f.store, types)
}

func (f *fixture) mapper() *Mapper {
	return NewMapper(f.directory, f.catalog, f.store, f.granter)
}

// allowEdge builds an allow relation for the named permission on a resource.
func (f *fixture) allowEdge(principal entities.PrincipalRef, permission, resourceID string) *entities.PermissionRelation {
	uri, _ := f.catalog.AllowURI(permission)
	return resourceEdge(principal, uri, resourceID)
}

// denyEdge builds a deny relation for the named permission on a resource.
func (f *fixture) denyEdge(principal entities.PrincipalRef, permission, resourceID string) *entities.PermissionRelation {
	uri, _ := f.catalog.DenyURI(permission)
	return resourceEdge(principal, uri, resourceID)
}
