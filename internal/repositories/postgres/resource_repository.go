package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

// PostgresResourceRepository implements ResourceRepository using PostgreSQL
type PostgresResourceRepository struct {
	db *sql.DB
}

// NewPostgresResourceRepository creates a new PostgreSQL resource repository
func NewPostgresResourceRepository(db *sql.DB) repositories.ResourceRepository {
	return &PostgresResourceRepository{db: db}
}

// GetByID retrieves a resource by ID. Returns (nil, nil) when absent.
func (r *PostgresResourceRepository) GetByID(ctx context.Context, id string) (*entities.Resource, error) {
	query := `
		SELECT id, resource_type
		FROM resources
		WHERE id = $1
	`
	var resource entities.Resource
	err := r.db.QueryRowContext(ctx, query, id).Scan(&resource.ID, &resource.Type)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}

	return &resource, nil
}

// ListByTypes retrieves all resources of the given types.
// An empty type list means no type restriction.
func (r *PostgresResourceRepository) ListByTypes(ctx context.Context, types []string) ([]*entities.Resource, error) {
	query := `
		SELECT id, resource_type
		FROM resources
	`
	var args []interface{}
	if len(types) > 0 {
		query += " WHERE resource_type = ANY($1)"
		args = append(args, pq.Array(types))
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []*entities.Resource
	for rows.Next() {
		var resource entities.Resource
		if err := rows.Scan(&resource.ID, &resource.Type); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, &resource)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}

	return resources, nil
}
