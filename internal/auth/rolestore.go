package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier is the subset of pgxpool.Pool used by PGRoleStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const activeRoleQuery = `SELECT role, expires_at
FROM role_assignments
WHERE identity_id = $1
  AND revoked_at IS NULL
  AND (expires_at IS NULL OR expires_at > now())
ORDER BY priority DESC, assigned_at DESC
LIMIT 1`

// PGRoleStore reads role assignments from PostgreSQL.
type PGRoleStore struct {
	db Querier
}

// NewPGRoleStore constructs a PostgreSQL role store.
func NewPGRoleStore(db Querier) *PGRoleStore {
	return &PGRoleStore{db: db}
}

// ActiveRoleAssignment returns the highest-priority active assignment.
func (s *PGRoleStore) ActiveRoleAssignment(ctx context.Context, identityID string) (string, bool, error) {
	role, found, _, err := s.ActiveRoleAssignmentUntil(ctx, identityID)
	return role, found, err
}

// ActiveRoleAssignmentUntil returns the highest-priority active assignment and its expiry.
func (s *PGRoleStore) ActiveRoleAssignmentUntil(ctx context.Context, identityID string) (string, bool, time.Time, error) {
	var (
		role      string
		expiresAt *time.Time
	)
	if err := s.db.QueryRow(ctx, activeRoleQuery, identityID).Scan(&role, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, time.Time{}, nil
		}
		return "", false, time.Time{}, err
	}
	var until time.Time
	if expiresAt != nil {
		until = *expiresAt
	}
	return role, true, until, nil
}

var _ ExpiringRoleStore = (*PGRoleStore)(nil)
