package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fitcoach/access/internal/rbac"
)

// RepositoryPort defines data access methods for role assignments.
type RepositoryPort interface {
	Assign(ctx context.Context, params AssignParams) (Assignment, error)
	Revoke(ctx context.Context, identityID string, check ReachCheck) error
	Current(ctx context.Context, identityID string) (Assignment, error)
	Distribution(ctx context.Context) (map[rbac.Role]int, error)
}

// Invalidator drops cached role lookups for an identity.
type Invalidator interface {
	Invalidate(ctx context.Context, identityID string) error
}

// Service handles role assignment rules.
type Service struct {
	repo   RepositoryPort
	cache  Invalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. cache may be nil when lookups are not cached.
func NewService(repo RepositoryPort, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// Current returns the active assignment of an identity.
func (s *Service) Current(ctx context.Context, identityID string) (Assignment, error) {
	return s.repo.Current(ctx, normalizeID(identityID))
}

// Overview summarises active assignments per role in registry order.
func (s *Service) Overview(ctx context.Context) ([]RoleCount, error) {
	counts, err := s.repo.Distribution(ctx)
	if err != nil {
		return nil, fmt.Errorf("roles: distribution: %w", err)
	}
	out := make([]RoleCount, 0, len(rbac.Roles()))
	for _, role := range rbac.Roles() {
		out = append(out, RoleCount{Role: role, Identities: counts[role]})
	}
	return out, nil
}

// Assign grants role to identityID on behalf of actor. The actor may not touch their own
// assignment, grant above their own level, or replace an assignment above their level.
func (s *Service) Assign(ctx context.Context, actor rbac.Principal, identityID string, role rbac.Role, expiresAt *time.Time) (Assignment, error) {
	identityID = normalizeID(identityID)
	if identityID == normalizeID(actor.IdentityID) {
		return Assignment{}, ErrSelfAssignment
	}
	if !rbac.CanAssignRole(actor.Role, role) {
		return Assignment{}, ErrEscalation
	}
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return Assignment{}, ErrInvalidExpiry
	}

	assignment, err := s.repo.Assign(ctx, AssignParams{
		IdentityID: identityID,
		Role:       role,
		Priority:   role.Level(),
		AssignedBy: actor.IdentityID,
		ExpiresAt:  expiresAt,
		Check:      withinReach(actor),
	})
	if err != nil {
		return Assignment{}, fmt.Errorf("roles: assign: %w", err)
	}
	s.logger.Info("role assigned",
		slog.String("identity", identityID),
		slog.String("role", role.String()),
		slog.String("by", actor.IdentityID))
	if err := s.invalidate(ctx, identityID); err != nil {
		return Assignment{}, err
	}
	return assignment, nil
}

// Revoke ends the active assignment of identityID, leaving the identity a guest.
func (s *Service) Revoke(ctx context.Context, actor rbac.Principal, identityID string) error {
	identityID = normalizeID(identityID)
	if identityID == normalizeID(actor.IdentityID) {
		return ErrSelfAssignment
	}
	if !rbac.HasPermission(actor.Role, rbac.PermManageRoles) {
		return ErrEscalation
	}
	if err := s.repo.Revoke(ctx, identityID, withinReach(actor)); err != nil {
		return err
	}
	s.logger.Info("role revoked", slog.String("identity", identityID), slog.String("by", actor.IdentityID))
	return s.invalidate(ctx, identityID)
}

// withinReach refuses to replace or end an assignment above the actor's own level.
func withinReach(actor rbac.Principal) ReachCheck {
	return func(current *Assignment) error {
		if current != nil && !rbac.CanAssignRole(actor.Role, current.Role) {
			return ErrEscalation
		}
		return nil
	}
}

func (s *Service) invalidate(ctx context.Context, identityID string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, identityID); err != nil {
		s.logger.Error("role cache invalidation", slog.String("identity", identityID), slog.Any("error", err))
		return fmt.Errorf("roles: invalidate: %w", err)
	}
	return nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
