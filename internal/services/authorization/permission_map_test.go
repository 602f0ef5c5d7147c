package authorization

import (
	"context"
	"errors"
	"testing"

	"github.com/jdm7dv/zentity-security/internal/entities"
)

func entriesByName(entries []PermissionEntry) map[string]PermissionEntry {
	result := make(map[string]PermissionEntry, len(entries))
	for _, e := range entries {
		result[e.Permission] = e
	}
	return result
}

func TestMapper_PermissionsFor(t *testing.T) {
	f := newFixture(t)
	doc1 := f.store.addResource("doc1", "file")
	mapper := f.mapper()
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func()
		caller  string
		want    []string
		wantOK  bool
		wantErr error
	}{
		{
			name:   "administrator gets the full use set",
			caller: "Administrator",
			want:   []string{"read", "update", "delete"},
			wantOK: true,
		},
		{
			name: "owner gets the full use set",
			setup: func() {
				f.store.addRelation(f.allowEdge(entities.IdentityRef("alice"), "owner", "doc1"))
			},
			caller: "alice",
			want:   []string{"read", "update", "delete"},
			wantOK: true,
		},
		{
			name:   "implicit read only",
			caller: "bob",
			want:   []string{"read"},
			wantOK: true,
		},
		{
			name: "explicit grants add to read",
			setup: func() {
				f.store.addRelation(f.allowEdge(entities.IdentityRef("bob"), "update", "doc1"))
			},
			caller: "bob",
			want:   []string{"read", "update"},
			wantOK: true,
		},
		{
			name: "deny wins over allow",
			setup: func() {
				f.store.addRelation(f.allowEdge(entities.IdentityRef("carol"), "update", "doc1"))
				f.store.addRelation(f.denyEdge(entities.GroupRef("AllUsers"), "update", "doc1"))
			},
			caller: "carol",
			want:   []string{"read"},
			wantOK: true,
		},
		{
			name: "read denial withdraws everything",
			setup: func() {
				f.store.addRelation(f.denyEdge(entities.IdentityRef("carol"), "read", "doc1"))
			},
			caller: "carol",
			wantOK: false,
		},
		{
			name:   "guest gets read only",
			caller: "Guest",
			want:   []string{"read"},
			wantOK: true,
		},
		{
			name:    "unknown identity",
			caller:  "nobody",
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}

			permissions, ok, err := mapper.PermissionsFor(ctx, doc1, entities.NewAccessToken(tt.caller))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("PermissionsFor() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("PermissionsFor() ok = %v, want %v", ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}

			if len(permissions) != len(tt.want) {
				t.Fatalf("PermissionsFor() = %v, want %v", permissions, tt.want)
			}
			got := make(map[string]bool, len(permissions))
			for _, p := range permissions {
				got[p] = true
			}
			for _, w := range tt.want {
				if !got[w] {
					t.Errorf("PermissionsFor() = %v, missing %s", permissions, w)
				}
			}
		})
	}
}

func TestMapper_PermissionsForNeverContainsOwner(t *testing.T) {
	f := newFixture(t)
	doc1 := f.store.addResource("doc1", "file")
	f.store.addRelation(f.allowEdge(entities.IdentityRef("alice"), "owner", "doc1"))
	mapper := f.mapper()
	ctx := context.Background()

	permissions, ok, err := mapper.PermissionsFor(ctx, doc1, entities.NewAccessToken("alice"))
	if err != nil || !ok {
		t.Fatalf("PermissionsFor() = %v, %v, %v", permissions, ok, err)
	}
	for _, p := range permissions {
		if p == "owner" {
			t.Error("PermissionsFor() contains owner; ownership is an administrative marker")
		}
	}
}

func TestMapper_PermissionsForAll(t *testing.T) {
	f := newFixture(t)
	doc1 := f.store.addResource("doc1", "file")
	doc2 := f.store.addResource("doc2", "file")
	f.store.addRelation(f.denyEdge(entities.IdentityRef("bob"), "read", "doc2"))
	mapper := f.mapper()
	ctx := context.Background()

	result, err := mapper.PermissionsForAll(ctx, []*entities.Resource{doc1, doc2}, entities.NewAccessToken("bob"))
	if err != nil {
		t.Fatalf("PermissionsForAll() error = %v", err)
	}

	if _, ok := result["doc1"]; !ok {
		t.Error("PermissionsForAll() missing doc1")
	}
	if _, ok := result["doc2"]; ok {
		t.Error("PermissionsForAll() contains doc2; unreadable resources are omitted")
	}
}

func TestMapper_BuildMap(t *testing.T) {
	f := newFixture(t)
	doc1 := f.store.addResource("doc1", "file")
	f.store.addRelation(f.allowEdge(entities.IdentityRef("alice"), "owner", "doc1"))
	mapper := f.mapper()
	ctx := context.Background()
	bob := entities.IdentityRef("bob")

	f.store.addRelation(f.allowEdge(bob, "update", "doc1"))
	f.store.addRelation(f.denyEdge(bob, "owner", "doc1"))

	entries, err := mapper.BuildMap(ctx, doc1, bob, entities.NewAccessToken("alice"))
	if err != nil {
		t.Fatalf("BuildMap() error = %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("BuildMap() returned %d entries, want 4 resource-level permissions", len(entries))
	}

	byName := entriesByName(entries)
	if !byName["update"].Allow || byName["update"].Deny {
		t.Errorf("update entry = %+v, want allow only", byName["update"])
	}
	if byName["owner"].Allow || !byName["owner"].Deny {
		t.Errorf("owner entry = %+v, want deny only", byName["owner"])
	}
	if byName["read"].Allow || byName["read"].Deny {
		t.Errorf("read entry = %+v, want neither flag", byName["read"])
	}

	// Unprivileged callers get an empty map, not an error.
	entries, err = mapper.BuildMap(ctx, doc1, bob, entities.NewAccessToken("carol"))
	if err != nil {
		t.Fatalf("BuildMap() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("BuildMap() for unprivileged caller = %v, want empty", entries)
	}

	// Administrator principals have no stored permissions to show.
	entries, err = mapper.BuildMap(ctx, doc1, entities.GroupRef("Administrators"), entities.NewAccessToken("alice"))
	if err != nil {
		t.Fatalf("BuildMap() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("BuildMap() for administrator principal = %v, want empty", entries)
	}

	// Guest principals show the read entry only.
	entries, err = mapper.BuildMap(ctx, doc1, entities.IdentityRef("Guest"), entities.NewAccessToken("alice"))
	if err != nil {
		t.Fatalf("BuildMap() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Permission != "read" {
		t.Errorf("BuildMap() for guest principal = %v, want just read", entries)
	}
}

func TestMapper_BuildCreateMap(t *testing.T) {
	f := newFixture(t)
	mapper := f.mapper()
	ctx := context.Background()
	bob := entities.IdentityRef("bob")
	denyURI, _ := f.catalog.DenyURI("create")
	f.store.addRelation(selfEdge(bob, denyURI))

	entries, err := mapper.BuildCreateMap(ctx, bob, entities.NewAccessToken("Administrator"))
	if err != nil {
		t.Fatalf("BuildCreateMap() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("BuildCreateMap() returned %d entries, want 1", len(entries))
	}
	if entries[0].Permission != "create" || entries[0].Allow || !entries[0].Deny {
		t.Errorf("BuildCreateMap() entry = %+v, want create deny", entries[0])
	}

	// Non-administrator callers get an empty map.
	entries, err = mapper.BuildCreateMap(ctx, bob, entities.NewAccessToken("alice"))
	if err != nil {
		t.Fatalf("BuildCreateMap() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("BuildCreateMap() for non-administrator = %v, want empty", entries)
	}

	// Administrator and guest principals yield nil.
	entries, err = mapper.BuildCreateMap(ctx, entities.GroupRef("Administrators"), entities.NewAccessToken("Administrator"))
	if err != nil {
		t.Fatalf("BuildCreateMap() error = %v", err)
	}
	if entries != nil {
		t.Errorf("BuildCreateMap() for administrator principal = %v, want nil", entries)
	}
}

func TestMapper_SetMap(t *testing.T) {
	f := newFixture(t)
	doc1 := f.store.addResource("doc1", "file")
	f.store.addRelation(f.allowEdge(entities.IdentityRef("alice"), "owner", "doc1"))
	mapper := f.mapper()
	ctx := context.Background()
	bob := entities.IdentityRef("bob")
	token := entities.NewAccessToken("alice")

	desired := []PermissionEntry{
		{Permission: "update", Allow: true},
		{Permission: "delete", Deny: true},
	}
	ok, err := mapper.SetMap(ctx, doc1, desired, bob, token)
	if err != nil || !ok {
		t.Fatalf("SetMap() = %v, %v; want true, nil", ok, err)
	}

	entries, err := mapper.BuildMap(ctx, doc1, bob, token)
	if err != nil {
		t.Fatalf("BuildMap() error = %v", err)
	}
	byName := entriesByName(entries)
	if !byName["update"].Allow {
		t.Errorf("update entry = %+v, want allow", byName["update"])
	}
	if !byName["delete"].Deny {
		t.Errorf("delete entry = %+v, want deny", byName["delete"])
	}

	// Clearing an entry removes its relations.
	desired = []PermissionEntry{{Permission: "delete"}}
	ok, err = mapper.SetMap(ctx, doc1, desired, bob, token)
	if err != nil || !ok {
		t.Fatalf("SetMap(clear) = %v, %v; want true, nil", ok, err)
	}
	entries, err = mapper.BuildMap(ctx, doc1, bob, token)
	if err != nil {
		t.Fatalf("BuildMap() error = %v", err)
	}
	byName = entriesByName(entries)
	if byName["delete"].Allow || byName["delete"].Deny {
		t.Errorf("delete entry after clear = %+v, want neither flag", byName["delete"])
	}
}

func TestMapper_SetMapValidation(t *testing.T) {
	f := newFixture(t)
	doc1 := f.store.addResource("doc1", "file")
	mapper := f.mapper()
	ctx := context.Background()
	bob := entities.IdentityRef("bob")
	token := entities.NewAccessToken("Administrator")

	// Conflicting flags fail before any mutation.
	ok, err := mapper.SetMap(ctx, doc1, []PermissionEntry{{Permission: "update", Allow: true, Deny: true}}, bob, token)
	if ok {
		t.Error("SetMap() with conflicting flags = true, want false")
	}
	if !errors.Is(err, ErrAllowDenyConflict) {
		t.Errorf("error = %v, want ErrAllowDenyConflict", err)
	}
	if len(f.store.relations) != 0 {
		t.Error("conflicting SetMap() mutated the store")
	}

	// Unknown permission names fail too.
	ok, err = mapper.SetMap(ctx, doc1, []PermissionEntry{{Permission: "publish", Allow: true}}, bob, token)
	if ok || !errors.Is(err, ErrInvalidPermission) {
		t.Errorf("SetMap(publish) = %v, %v; want false, ErrInvalidPermission", ok, err)
	}
}
