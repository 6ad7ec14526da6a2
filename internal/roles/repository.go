package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitcoach/access/internal/platform/db"
	"github.com/fitcoach/access/internal/rbac"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence for role assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const (
	revokeActiveSQL = `UPDATE role_assignments
SET revoked_at = now()
WHERE identity_id = $1::uuid AND revoked_at IS NULL`

	insertAssignmentSQL = `INSERT INTO role_assignments (identity_id, role, priority, assigned_by, expires_at)
VALUES ($1::uuid, $2, $3, NULLIF($4, '')::uuid, $5)
RETURNING id, assigned_at`

	currentAssignmentSQL = `SELECT id, identity_id::text, role, priority, COALESCE(assigned_by::text, ''), assigned_at, expires_at
FROM role_assignments
WHERE identity_id = $1::uuid
  AND revoked_at IS NULL
  AND (expires_at IS NULL OR expires_at > now())
ORDER BY priority DESC, assigned_at DESC
LIMIT 1`

	lockCurrentSQL = currentAssignmentSQL + `
FOR UPDATE`

	distributionSQL = `SELECT role, count(DISTINCT identity_id)
FROM role_assignments
WHERE revoked_at IS NULL
  AND (expires_at IS NULL OR expires_at > now())
GROUP BY role`
)

// Assign revokes every active assignment of the identity and inserts the new one in a
// single transaction. params.Check, when set, vets the replaced assignment first.
func (r *Repository) Assign(ctx context.Context, params AssignParams) (Assignment, error) {
	assignment := Assignment{
		IdentityID: params.IdentityID,
		Role:       params.Role,
		Priority:   params.Priority,
		AssignedBy: params.AssignedBy,
		ExpiresAt:  params.ExpiresAt,
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := vet(ctx, tx, params.IdentityID, params.Check); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, revokeActiveSQL, params.IdentityID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, insertAssignmentSQL,
			params.IdentityID,
			params.Role.String(),
			params.Priority,
			params.AssignedBy,
			params.ExpiresAt,
		).Scan(&assignment.ID, &assignment.AssignedAt)
	})
	if err != nil {
		return Assignment{}, err
	}
	return assignment, nil
}

// Revoke ends every active assignment of the identity. check, when set, vets the
// assignment being ended.
func (r *Repository) Revoke(ctx context.Context, identityID string, check ReachCheck) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := vet(ctx, tx, identityID, check); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, revokeActiveSQL, identityID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Current returns the authoritative active assignment.
func (r *Repository) Current(ctx context.Context, identityID string) (Assignment, error) {
	return current(ctx, r.pool, currentAssignmentSQL, identityID)
}

func vet(ctx context.Context, q rowQuerier, identityID string, check ReachCheck) error {
	if check == nil {
		return nil
	}
	held, err := current(ctx, q, lockCurrentSQL, identityID)
	switch {
	case errors.Is(err, ErrNotFound):
		return check(nil)
	case err != nil:
		return err
	}
	return check(&held)
}

func current(ctx context.Context, q rowQuerier, query, identityID string) (Assignment, error) {
	var (
		a    Assignment
		role string
	)
	err := q.QueryRow(ctx, query, identityID).Scan(
		&a.ID, &a.IdentityID, &role, &a.Priority, &a.AssignedBy, &a.AssignedAt, &a.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, err
	}
	a.Role = rbac.NormalizeRole(role)
	return a, nil
}

// Distribution counts identities per actively assigned role.
func (r *Repository) Distribution(ctx context.Context) (map[rbac.Role]int, error) {
	rows, err := r.pool.Query(ctx, distributionSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[rbac.Role]int)
	for rows.Next() {
		var (
			role  string
			count int
		)
		if err := rows.Scan(&role, &count); err != nil {
			return nil, err
		}
		counts[rbac.NormalizeRole(role)] += count
	}
	return counts, rows.Err()
}
