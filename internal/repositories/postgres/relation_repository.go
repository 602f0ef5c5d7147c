package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

// PostgresRelationRepository implements RelationRepository using PostgreSQL
type PostgresRelationRepository struct {
	db *sql.DB
}

// NewPostgresRelationRepository creates a new PostgreSQL relation repository
func NewPostgresRelationRepository(db *sql.DB) repositories.RelationRepository {
	return &PostgresRelationRepository{db: db}
}

// Write creates a permission relation. Writing an existing relation is a
// no-op thanks to ON CONFLICT DO NOTHING.
func (r *PostgresRelationRepository) Write(ctx context.Context, rel *entities.PermissionRelation) error {
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("invalid permission relation: %w", err)
	}

	query := `
		INSERT INTO relations (
			subject_kind, subject_name, predicate_uri, object_kind, object_id, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_kind, LOWER(subject_name), predicate_uri, object_kind, object_id)
		DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		string(rel.SubjectKind), rel.SubjectName, rel.PredicateURI,
		string(rel.ObjectKind), rel.ObjectID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write relation: %w", err)
	}

	return nil
}

// Delete removes a permission relation. Deleting an absent relation is a
// no-op.
func (r *PostgresRelationRepository) Delete(ctx context.Context, rel *entities.PermissionRelation) error {
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("invalid permission relation: %w", err)
	}

	query := `
		DELETE FROM relations
		WHERE subject_kind = $1
			AND LOWER(subject_name) = LOWER($2)
			AND predicate_uri = $3
			AND object_kind = $4
			AND object_id = $5
	`
	_, err := r.db.ExecContext(ctx, query,
		string(rel.SubjectKind), rel.SubjectName, rel.PredicateURI,
		string(rel.ObjectKind), rel.ObjectID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}

	return nil
}

// Exists reports whether the exact permission relation is stored
func (r *PostgresRelationRepository) Exists(ctx context.Context, rel *entities.PermissionRelation) (bool, error) {
	if err := rel.Validate(); err != nil {
		return false, fmt.Errorf("invalid permission relation: %w", err)
	}

	query := `
		SELECT EXISTS(
			SELECT 1 FROM relations
			WHERE subject_kind = $1
				AND LOWER(subject_name) = LOWER($2)
				AND predicate_uri = $3
				AND object_kind = $4
				AND object_id = $5
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query,
		string(rel.SubjectKind), rel.SubjectName, rel.PredicateURI,
		string(rel.ObjectKind), rel.ObjectID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check relation existence: %w", err)
	}

	return exists, nil
}

// Read retrieves permission relations matching the filter
func (r *PostgresRelationRepository) Read(ctx context.Context, filter *repositories.RelationFilter) ([]*entities.PermissionRelation, error) {
	query := `
		SELECT subject_kind, subject_name, predicate_uri, object_kind, object_id, created_at
		FROM relations
		WHERE 1=1
	`
	var args []interface{}
	argIdx := 1

	// Build dynamic WHERE clause based on filter
	if filter != nil {
		if len(filter.Subjects) > 0 {
			clause, subjectArgs := subjectsClause(filter.Subjects, &argIdx)
			query += " AND " + clause
			args = append(args, subjectArgs...)
		} else {
			if filter.SubjectKind != "" {
				query += fmt.Sprintf(" AND subject_kind = $%d", argIdx)
				args = append(args, string(filter.SubjectKind))
				argIdx++
			}
			if filter.SubjectName != "" {
				query += fmt.Sprintf(" AND LOWER(subject_name) = LOWER($%d)", argIdx)
				args = append(args, filter.SubjectName)
				argIdx++
			}
		}
		if len(filter.PredicateURIs) > 0 {
			query += fmt.Sprintf(" AND predicate_uri = ANY($%d)", argIdx)
			args = append(args, pq.Array(filter.PredicateURIs))
			argIdx++
		} else if filter.PredicateURI != "" {
			query += fmt.Sprintf(" AND predicate_uri = $%d", argIdx)
			args = append(args, filter.PredicateURI)
			argIdx++
		}
		if filter.ObjectKind != "" {
			query += fmt.Sprintf(" AND object_kind = $%d", argIdx)
			args = append(args, string(filter.ObjectKind))
			argIdx++
		}
		if filter.ObjectID != "" {
			query += fmt.Sprintf(" AND object_id = $%d", argIdx)
			args = append(args, filter.ObjectID)
			argIdx++
		}
		if len(filter.ObjectTypes) > 0 {
			query += fmt.Sprintf(" AND object_id IN (SELECT id FROM resources WHERE resource_type = ANY($%d))", argIdx)
			args = append(args, pq.Array(filter.ObjectTypes))
			argIdx++
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read relations: %w", err)
	}
	defer rows.Close()

	var relations []*entities.PermissionRelation
	for rows.Next() {
		var rel entities.PermissionRelation
		var subjectKind, objectKind string

		err := rows.Scan(&subjectKind, &rel.SubjectName, &rel.PredicateURI, &objectKind, &rel.ObjectID, &rel.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relation: %w", err)
		}

		rel.SubjectKind = entities.PrincipalKind(subjectKind)
		rel.ObjectKind = entities.ObjectKind(objectKind)
		relations = append(relations, &rel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relations: %w", err)
	}

	return relations, nil
}

// AuthorizedResourceIDs returns the distinct resource IDs related to any of
// the subjects through the predicate URI, optionally restricted by resource
// type. The type restriction joins against the resources table so candidate
// resources are never materialized client-side.
func (r *PostgresRelationRepository) AuthorizedResourceIDs(
	ctx context.Context,
	subjects []entities.PrincipalRef,
	predicateURI string,
	resourceTypes []string,
) ([]string, error) {
	if len(subjects) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT rel.object_id
		FROM relations rel
	`
	var args []interface{}
	argIdx := 1

	if len(resourceTypes) > 0 {
		query += fmt.Sprintf(" JOIN resources res ON res.id = rel.object_id AND res.resource_type = ANY($%d)", argIdx)
		args = append(args, pq.Array(resourceTypes))
		argIdx++
	}

	query += fmt.Sprintf(" WHERE rel.predicate_uri = $%d", argIdx)
	args = append(args, predicateURI)
	argIdx++

	query += fmt.Sprintf(" AND rel.object_kind = $%d", argIdx)
	args = append(args, string(entities.ObjectResource))
	argIdx++

	clause, subjectArgs := subjectsClause(subjects, &argIdx)
	query += " AND " + clause
	args = append(args, subjectArgs...)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query authorized resource IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan resource ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resource IDs: %w", err)
	}

	return ids, nil
}

// subjectsClause builds an OR clause matching any of the subjects, with
// case-insensitive name comparison. The column prefix is implicit since
// every caller queries the relations table (possibly aliased as rel).
func subjectsClause(subjects []entities.PrincipalRef, argIdx *int) (string, []interface{}) {
	clause := "("
	var args []interface{}
	for i, subject := range subjects {
		if i > 0 {
			clause += " OR "
		}
		clause += fmt.Sprintf("(subject_kind = $%d AND LOWER(subject_name) = LOWER($%d))", *argIdx, *argIdx+1)
		args = append(args, string(subject.Kind), subject.Name)
		*argIdx += 2
	}
	clause += ")"
	return clause, args
}
