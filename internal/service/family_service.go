package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Maxborland/EvaCalendar-sub000/internal/metrics"
	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// ============================================
// Family Service
// ============================================

// FamilyService manages families and memberships. A user belongs to at most
// one family, and every family has exactly one owner.
type FamilyService interface {
	CreateFamily(ctx context.Context, name, ownerUUID string) (*FamilyView, error)
	// GetUserFamily returns nil without error when the user has no family.
	GetUserFamily(ctx context.Context, userUUID string) (*UserFamily, error)
	GetFamilyWithMembers(ctx context.Context, familyUUID string) (*FamilyView, error)
	UpdateFamilyName(ctx context.Context, familyUUID, name, callerUUID string) (*FamilyView, error)
	DeleteFamily(ctx context.Context, familyUUID, callerUUID string) error

	// Member operations
	GetMembers(ctx context.Context, familyUUID, callerUUID string) ([]*repository.MemberWithUser, error)
	UpdateMemberRole(ctx context.Context, familyUUID, targetUserUUID string, role types.Role, callerUUID string) (*repository.MemberWithUser, error)
	RemoveMember(ctx context.Context, familyUUID, targetUserUUID, callerUUID string) error
	LeaveFamily(ctx context.Context, userUUID string) error

	// AddMember inserts an active member row through tx. Callers are
	// responsible for having authorised the join.
	AddMember(ctx context.Context, tx repository.Store, familyUUID, userUUID string, role types.Role, invitedBy string, invitedAt time.Time) (*repository.FamilyMember, error)
}

type familyService struct {
	store repository.Store
	cache MembershipCache
	now   func() time.Time
}

// NewFamilyService creates a new family service. cache may be nil.
func NewFamilyService(store repository.Store, cache MembershipCache) FamilyService {
	if cache == nil {
		cache = noopCache{}
	}
	return &familyService{store: store, cache: cache, now: time.Now}
}

func (s *familyService) CreateFamily(ctx context.Context, name, ownerUUID string) (*FamilyView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError(msgNameRequired)
	}

	var view *FamilyView
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		existing, err := tx.Members().FindByUser(ctx, ownerUUID)
		if err != nil {
			return fmt.Errorf("find membership: %w", err)
		}
		if existing != nil {
			return conflict(msgAlreadyInFamily)
		}

		family := &repository.Family{Name: name, OwnerUUID: ownerUUID}
		if err := tx.Families().Create(ctx, family); err != nil {
			return fmt.Errorf("create family: %w", err)
		}

		now := s.now()
		owner := &repository.FamilyMember{
			FamilyUUID: family.UUID,
			UserUUID:   ownerUUID,
			Role:       types.RoleOwner,
			Status:     types.MemberStatusActive,
			AcceptedAt: &now,
		}
		if err := tx.Members().Create(ctx, owner); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict(msgAlreadyInFamily)
			}
			return fmt.Errorf("create owner membership: %w", err)
		}

		view, err = loadView(ctx, tx, family)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, ownerUUID)
	metrics.Family("created")
	slog.InfoContext(ctx, "family created", "family_uuid", view.Family.UUID, "owner_uuid", ownerUUID)
	return view, nil
}

func (s *familyService) GetUserFamily(ctx context.Context, userUUID string) (*UserFamily, error) {
	cached, gen, ok := s.cache.GetUserFamily(ctx, userUUID)
	if ok {
		return cached, nil
	}

	member, err := s.store.Members().FindByUser(ctx, userUUID)
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	if member == nil {
		return nil, nil
	}

	family, err := s.store.Families().FindByID(ctx, member.FamilyUUID)
	if err != nil {
		return nil, fmt.Errorf("find family: %w", err)
	}
	if family == nil {
		return nil, nil
	}

	view, err := loadView(ctx, s.store, family)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	result := &UserFamily{FamilyView: *view, Role: member.Role}
	s.cache.SetUserFamily(ctx, userUUID, result, gen)
	return result, nil
}

func (s *familyService) GetFamilyWithMembers(ctx context.Context, familyUUID string) (*FamilyView, error) {
	family, err := s.store.Families().FindByID(ctx, familyUUID)
	if err != nil {
		return nil, fmt.Errorf("find family: %w", err)
	}
	if family == nil {
		return nil, notFound(msgFamilyNotFound)
	}
	view, err := loadView(ctx, s.store, family)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return view, nil
}

func (s *familyService) UpdateFamilyName(ctx context.Context, familyUUID, name, callerUUID string) (*FamilyView, error) {
	var view *FamilyView
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := NewAuthorizationGate(tx).AssertAdmin(ctx, familyUUID, callerUUID); err != nil {
			return err
		}

		name = strings.TrimSpace(name)
		if name == "" {
			return validationError(msgNameRequired)
		}

		if err := tx.Families().UpdateName(ctx, familyUUID, name); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound(msgFamilyNotFound)
			}
			return fmt.Errorf("update family name: %w", err)
		}

		family, err := tx.Families().FindByID(ctx, familyUUID)
		if err != nil {
			return fmt.Errorf("find family: %w", err)
		}
		if family == nil {
			return notFound(msgFamilyNotFound)
		}
		view, err = loadView(ctx, tx, family)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, memberUUIDs(view.Members)...)
	metrics.Family("renamed")
	return view, nil
}

func (s *familyService) DeleteFamily(ctx context.Context, familyUUID, callerUUID string) error {
	var affected []string
	var detached int64
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		family, err := tx.Families().FindByID(ctx, familyUUID)
		if err != nil {
			return fmt.Errorf("find family: %w", err)
		}
		if family == nil {
			return notFound(msgFamilyNotFound)
		}
		if family.OwnerUUID != callerUUID {
			return forbidden(msgOnlyOwnerDeletes)
		}

		members, err := tx.Members().ListWithUsers(ctx, familyUUID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		affected = memberUUIDs(members)

		// Order matters: tasks, invitations and members all reference the family row.
		if detached, err = tx.Tasks().DetachFamily(ctx, familyUUID); err != nil {
			return fmt.Errorf("detach tasks: %w", err)
		}
		if _, err := tx.Invitations().DeleteByFamily(ctx, familyUUID); err != nil {
			return fmt.Errorf("delete invitations: %w", err)
		}
		if _, err := tx.Members().DeleteByFamily(ctx, familyUUID); err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		if err := tx.Families().Delete(ctx, familyUUID); err != nil {
			return fmt.Errorf("delete family: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, affected...)
	metrics.Family("deleted")
	slog.InfoContext(ctx, "family deleted",
		"family_uuid", familyUUID,
		"members", len(affected),
		"tasks_detached", detached,
	)
	return nil
}

func (s *familyService) GetMembers(ctx context.Context, familyUUID, callerUUID string) ([]*repository.MemberWithUser, error) {
	if _, err := NewAuthorizationGate(s.store).AssertMember(ctx, familyUUID, callerUUID); err != nil {
		return nil, err
	}
	members, err := s.store.Members().ListWithUsers(ctx, familyUUID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *familyService) UpdateMemberRole(ctx context.Context, familyUUID, targetUserUUID string, role types.Role, callerUUID string) (*repository.MemberWithUser, error) {
	var updated *repository.MemberWithUser
	var members []*repository.MemberWithUser
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		requester, err := NewAuthorizationGate(tx).AssertAdmin(ctx, familyUUID, callerUUID)
		if err != nil {
			return err
		}
		if role != types.RoleAdmin && role != types.RoleMember {
			return validationError(msgInvalidRole)
		}
		if requester.Role != types.RoleOwner {
			return forbidden(msgOnlyOwnerSetsRoles)
		}

		target, err := tx.Members().FindMember(ctx, familyUUID, targetUserUUID)
		if err != nil {
			return fmt.Errorf("find member: %w", err)
		}
		if target == nil {
			return notFound(msgMemberNotFound)
		}
		if target.Role == types.RoleOwner {
			return forbidden(msgCannotChangeOwner)
		}

		if err := tx.Members().UpdateRole(ctx, familyUUID, targetUserUUID, role); err != nil {
			return fmt.Errorf("update role: %w", err)
		}

		members, err = tx.Members().ListWithUsers(ctx, familyUUID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		for _, m := range members {
			if m.UserUUID == targetUserUUID {
				updated = m
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, memberUUIDs(members)...)
	metrics.Family("role_changed")
	slog.InfoContext(ctx, "member role changed",
		"family_uuid", familyUUID,
		"user_uuid", targetUserUUID,
		"role", string(role),
	)
	return updated, nil
}

func (s *familyService) RemoveMember(ctx context.Context, familyUUID, targetUserUUID, callerUUID string) error {
	var remaining []*repository.MemberWithUser
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		requester, err := NewAuthorizationGate(tx).AssertAdmin(ctx, familyUUID, callerUUID)
		if err != nil {
			return err
		}
		requesterRole := requester.Role

		target, err := tx.Members().FindMember(ctx, familyUUID, targetUserUUID)
		if err != nil {
			return fmt.Errorf("find member: %w", err)
		}
		if target == nil {
			return notFound(msgMemberNotFound)
		}
		if target.Role == types.RoleOwner {
			return forbidden(msgCannotRemoveOwner)
		}
		if target.Role == types.RoleAdmin && requesterRole != types.RoleOwner {
			return forbidden(msgOnlyOwnerRemoves)
		}

		if err := tx.Members().Delete(ctx, familyUUID, targetUserUUID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}

		remaining, err = tx.Members().ListWithUsers(ctx, familyUUID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, append(memberUUIDs(remaining), targetUserUUID)...)
	metrics.Family("member_removed")
	slog.InfoContext(ctx, "member removed",
		"family_uuid", familyUUID,
		"user_uuid", targetUserUUID,
		"removed_by", callerUUID,
	)
	return nil
}

func (s *familyService) LeaveFamily(ctx context.Context, userUUID string) error {
	var familyUUID string
	var remaining []*repository.MemberWithUser
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		member, err := tx.Members().FindByUser(ctx, userUUID)
		if err != nil {
			return fmt.Errorf("find membership: %w", err)
		}
		if member == nil {
			return notFound(msgNoFamily)
		}
		if member.Role == types.RoleOwner {
			return forbidden(msgOwnerCannotLeave)
		}
		familyUUID = member.FamilyUUID

		if err := tx.Members().Delete(ctx, member.FamilyUUID, userUUID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}

		remaining, err = tx.Members().ListWithUsers(ctx, member.FamilyUUID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, append(memberUUIDs(remaining), userUUID)...)
	metrics.Family("member_left")
	slog.InfoContext(ctx, "member left family", "family_uuid", familyUUID, "user_uuid", userUUID)
	return nil
}

func (s *familyService) AddMember(ctx context.Context, tx repository.Store, familyUUID, userUUID string, role types.Role, invitedBy string, invitedAt time.Time) (*repository.FamilyMember, error) {
	existing, err := tx.Members().FindByUser(ctx, userUUID)
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	if existing != nil {
		return nil, conflict(msgAlreadyInFamily)
	}

	now := s.now()
	member := &repository.FamilyMember{
		FamilyUUID: familyUUID,
		UserUUID:   userUUID,
		Role:       role,
		Status:     types.MemberStatusActive,
		AcceptedAt: &now,
	}
	if invitedBy != "" {
		member.InvitedBy = &invitedBy
		member.InvitedAt = &invitedAt
	}
	if err := tx.Members().Create(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, conflict(msgAlreadyInFamily)
		}
		return nil, fmt.Errorf("create membership: %w", err)
	}
	return member, nil
}
