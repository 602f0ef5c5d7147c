package postgres

import (
	"context"
	"testing"

	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

func TestRelationRepository_Write(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRelationRepository(db)
	ctx := context.Background()

	t.Run("creates a relation", func(t *testing.T) {
		rel := &entities.PermissionRelation{
			SubjectKind:  entities.KindIdentity,
			SubjectName:  "alice",
			PredicateURI: "urn:test:allow-update",
			ObjectKind:   entities.ObjectResource,
			ObjectID:     "doc1",
		}

		if err := repo.Write(ctx, rel); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		exists, err := repo.Exists(ctx, rel)
		if err != nil {
			t.Fatalf("Exists() error = %v", err)
		}
		if !exists {
			t.Error("Exists() = false after Write()")
		}
	})

	t.Run("duplicate write is idempotent", func(t *testing.T) {
		rel := &entities.PermissionRelation{
			SubjectKind:  entities.KindGroup,
			SubjectName:  "editors",
			PredicateURI: "urn:test:allow-delete",
			ObjectKind:   entities.ObjectResource,
			ObjectID:     "doc2",
		}

		if err := repo.Write(ctx, rel); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if err := repo.Write(ctx, rel); err != nil {
			t.Fatalf("duplicate Write() error = %v", err)
		}
	})

	t.Run("case variant of the subject is the same relation", func(t *testing.T) {
		rel := &entities.PermissionRelation{
			SubjectKind:  entities.KindIdentity,
			SubjectName:  "Bob",
			PredicateURI: "urn:test:allow-read",
			ObjectKind:   entities.ObjectResource,
			ObjectID:     "doc3",
		}

		if err := repo.Write(ctx, rel); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		lowered := *rel
		lowered.SubjectName = "bob"
		if err := repo.Write(ctx, &lowered); err != nil {
			t.Fatalf("case-variant Write() error = %v", err)
		}

		result, err := repo.Read(ctx, &repositories.RelationFilter{
			ObjectKind: entities.ObjectResource,
			ObjectID:   "doc3",
		})
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(result) != 1 {
			t.Errorf("Read() returned %d relations after case-variant writes, want 1", len(result))
		}
	})

	t.Run("invalid relation is rejected", func(t *testing.T) {
		rel := &entities.PermissionRelation{
			SubjectKind:  entities.KindIdentity,
			SubjectName:  "",
			PredicateURI: "urn:test:allow-update",
			ObjectKind:   entities.ObjectResource,
			ObjectID:     "doc1",
		}

		if err := repo.Write(ctx, rel); err == nil {
			t.Error("Write() with empty subject name = nil, want error")
		}
	})
}

func TestRelationRepository_ExistsCaseInsensitive(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRelationRepository(db)
	ctx := context.Background()

	rel := &entities.PermissionRelation{
		SubjectKind:  entities.KindIdentity,
		SubjectName:  "Alice",
		PredicateURI: "urn:test:allow-read",
		ObjectKind:   entities.ObjectResource,
		ObjectID:     "doc1",
	}
	if err := repo.Write(ctx, rel); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lowered := *rel
	lowered.SubjectName = "alice"
	exists, err := repo.Exists(ctx, &lowered)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false for a case variant of the subject name")
	}
}

func TestRelationRepository_Delete(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRelationRepository(db)
	ctx := context.Background()

	rel := &entities.PermissionRelation{
		SubjectKind:  entities.KindIdentity,
		SubjectName:  "alice",
		PredicateURI: "urn:test:allow-update",
		ObjectKind:   entities.ObjectResource,
		ObjectID:     "doc1",
	}
	if err := repo.Write(ctx, rel); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := repo.Delete(ctx, rel); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, err := repo.Exists(ctx, rel)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true after Delete()")
	}

	// Deleting an absent relation is a no-op.
	if err := repo.Delete(ctx, rel); err != nil {
		t.Errorf("Delete() of absent relation error = %v", err)
	}
}

func TestRelationRepository_Read(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRelationRepository(db)
	ctx := context.Background()

	InsertTestResource(t, db, "doc1", "file")
	InsertTestResource(t, db, "img1", "image")

	seed := []*entities.PermissionRelation{
		{SubjectKind: entities.KindIdentity, SubjectName: "alice", PredicateURI: "urn:test:allow-update", ObjectKind: entities.ObjectResource, ObjectID: "doc1"},
		{SubjectKind: entities.KindIdentity, SubjectName: "alice", PredicateURI: "urn:test:deny-delete", ObjectKind: entities.ObjectResource, ObjectID: "doc1"},
		{SubjectKind: entities.KindGroup, SubjectName: "AllUsers", PredicateURI: "urn:test:allow-update", ObjectKind: entities.ObjectResource, ObjectID: "img1"},
		{SubjectKind: entities.KindIdentity, SubjectName: "bob", PredicateURI: "urn:test:allow-update", ObjectKind: entities.ObjectResource, ObjectID: "doc1"},
	}
	for _, rel := range seed {
		if err := repo.Write(ctx, rel); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	t.Run("filter by subject set and predicates", func(t *testing.T) {
		result, err := repo.Read(ctx, &repositories.RelationFilter{
			Subjects: []entities.PrincipalRef{
				entities.IdentityRef("ALICE"),
				entities.GroupRef("allusers"),
			},
			PredicateURIs: []string{"urn:test:allow-update", "urn:test:deny-delete"},
		})
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(result) != 3 {
			t.Errorf("Read() returned %d relations, want 3", len(result))
		}
	})

	t.Run("filter by object", func(t *testing.T) {
		result, err := repo.Read(ctx, &repositories.RelationFilter{
			ObjectKind: entities.ObjectResource,
			ObjectID:   "doc1",
		})
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(result) != 3 {
			t.Errorf("Read() returned %d relations, want 3", len(result))
		}
	})

	t.Run("filter by resource type", func(t *testing.T) {
		result, err := repo.Read(ctx, &repositories.RelationFilter{
			PredicateURI: "urn:test:allow-update",
			ObjectTypes:  []string{"image"},
		})
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(result) != 1 || result[0].ObjectID != "img1" {
			t.Errorf("Read() = %v, want just the img1 relation", result)
		}
	})
}

func TestRelationRepository_AuthorizedResourceIDs(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)

	repo := NewPostgresRelationRepository(db)
	ctx := context.Background()

	InsertTestResource(t, db, "doc1", "file")
	InsertTestResource(t, db, "doc2", "file")
	InsertTestResource(t, db, "img1", "image")

	seed := []*entities.PermissionRelation{
		{SubjectKind: entities.KindIdentity, SubjectName: "alice", PredicateURI: "urn:test:allow-update", ObjectKind: entities.ObjectResource, ObjectID: "doc1"},
		{SubjectKind: entities.KindGroup, SubjectName: "AllUsers", PredicateURI: "urn:test:allow-update", ObjectKind: entities.ObjectResource, ObjectID: "doc2"},
		{SubjectKind: entities.KindIdentity, SubjectName: "alice", PredicateURI: "urn:test:allow-update", ObjectKind: entities.ObjectResource, ObjectID: "img1"},
		{SubjectKind: entities.KindIdentity, SubjectName: "bob", PredicateURI: "urn:test:allow-update", ObjectKind: entities.ObjectResource, ObjectID: "doc1"},
	}
	for _, rel := range seed {
		if err := repo.Write(ctx, rel); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	subjects := []entities.PrincipalRef{
		entities.IdentityRef("alice"),
		entities.GroupRef("AllUsers"),
	}

	t.Run("restricted to resource types", func(t *testing.T) {
		ids, err := repo.AuthorizedResourceIDs(ctx, subjects, "urn:test:allow-update", []string{"file"})
		if err != nil {
			t.Fatalf("AuthorizedResourceIDs() error = %v", err)
		}
		got := make(map[string]bool, len(ids))
		for _, id := range ids {
			got[id] = true
		}
		if len(ids) != 2 || !got["doc1"] || !got["doc2"] {
			t.Errorf("AuthorizedResourceIDs() = %v, want doc1 and doc2", ids)
		}
	})

	t.Run("unrestricted", func(t *testing.T) {
		ids, err := repo.AuthorizedResourceIDs(ctx, subjects, "urn:test:allow-update", nil)
		if err != nil {
			t.Fatalf("AuthorizedResourceIDs() error = %v", err)
		}
		if len(ids) != 3 {
			t.Errorf("AuthorizedResourceIDs() returned %d IDs, want 3", len(ids))
		}
	})

	t.Run("empty subject set", func(t *testing.T) {
		ids, err := repo.AuthorizedResourceIDs(ctx, nil, "urn:test:allow-update", nil)
		if err != nil {
			t.Fatalf("AuthorizedResourceIDs() error = %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("AuthorizedResourceIDs() = %v, want empty", ids)
		}
	})
}
