package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jdm7dv/zentity-security/internal/entities"
	"github.com/jdm7dv/zentity-security/internal/repositories"
)

// PostgresPrincipalRepository implements PrincipalRepository using PostgreSQL.
// Group membership is stored as relations under the membership predicate URI
// (identity subject, group object), alongside the permission relations.
type PostgresPrincipalRepository struct {
	db            *sql.DB
	membershipURI string
}

// NewPostgresPrincipalRepository creates a new PostgreSQL principal repository
func NewPostgresPrincipalRepository(db *sql.DB, membershipURI string) repositories.PrincipalRepository {
	return &PostgresPrincipalRepository{db: db, membershipURI: membershipURI}
}

// GetIdentityByName retrieves an identity by name (case-insensitive).
// Returns (nil, nil) when no identity with that name exists.
func (r *PostgresPrincipalRepository) GetIdentityByName(ctx context.Context, name string) (*entities.Identity, error) {
	query := `
		SELECT id, name, created_at
		FROM identities
		WHERE LOWER(name) = LOWER($1)
	`
	var identity entities.Identity
	err := r.db.QueryRowContext(ctx, query, name).Scan(&identity.ID, &identity.Name, &identity.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return &identity, nil
}

// GetGroupByName retrieves a group by name (case-insensitive).
// Returns (nil, nil) when no group with that name exists.
func (r *PostgresPrincipalRepository) GetGroupByName(ctx context.Context, name string) (*entities.Group, error) {
	query := `
		SELECT id, name, created_at
		FROM groups
		WHERE LOWER(name) = LOWER($1)
	`
	var group entities.Group
	err := r.db.QueryRowContext(ctx, query, name).Scan(&group.ID, &group.Name, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return &group, nil
}

// GroupsOf retrieves the groups an identity is a direct member of.
func (r *PostgresPrincipalRepository) GroupsOf(ctx context.Context, identityName string) ([]*entities.Group, error) {
	query := `
		SELECT g.id, g.name, g.created_at
		FROM groups g
		JOIN relations r
			ON r.object_kind = $1
			AND LOWER(r.object_id) = LOWER(g.name)
		WHERE r.subject_kind = $2
			AND LOWER(r.subject_name) = LOWER($3)
			AND r.predicate_uri = $4
	`
	rows, err := r.db.QueryContext(ctx, query,
		string(entities.ObjectGroup), string(entities.KindIdentity), identityName, r.membershipURI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups of identity: %w", err)
	}
	defer rows.Close()

	var groups []*entities.Group
	for rows.Next() {
		var group entities.Group
		if err := rows.Scan(&group.ID, &group.Name, &group.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &group)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	return groups, nil
}

// IsMember reports whether the identity is a direct member of the group.
func (r *PostgresPrincipalRepository) IsMember(ctx context.Context, identityName, groupName string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM relations
			WHERE subject_kind = $1
				AND LOWER(subject_name) = LOWER($2)
				AND predicate_uri = $3
				AND object_kind = $4
				AND LOWER(object_id) = LOWER($5)
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query,
		string(entities.KindIdentity), identityName, r.membershipURI,
		string(entities.ObjectGroup), groupName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}

	return exists, nil
}
