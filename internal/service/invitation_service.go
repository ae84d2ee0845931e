package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Maxborland/EvaCalendar-sub000/internal/metrics"
	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// DefaultInvitationTTL is how long an invitation stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

const tokenBytes = 32

// InvitationService issues and redeems family invitations. It never sends
// email; delivering the token is the caller's job.
type InvitationService interface {
	CreateInvitation(ctx context.Context, familyUUID, email, invitedByUUID string) (*InvitationView, error)
	AcceptInvitation(ctx context.Context, token, callerUUID string) (*FamilyView, error)
	ListPendingInvitations(ctx context.Context, familyUUID, callerUUID string) ([]*repository.Invitation, error)
	CancelInvitation(ctx context.Context, invitationUUID, callerUUID string) error
	GetInvitationPreview(ctx context.Context, token string) (*InvitationView, error)
}

type invitationService struct {
	store    repository.Store
	families FamilyService
	cache    MembershipCache
	ttl      time.Duration
	now      func() time.Time
	newToken func() (string, error)
}

// NewInvitationService creates a new invitation service. cache may be nil and
// a zero ttl selects DefaultInvitationTTL.
func NewInvitationService(store repository.Store, families FamilyService, cache MembershipCache, ttl time.Duration) InvitationService {
	if cache == nil {
		cache = noopCache{}
	}
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	return &invitationService{
		store:    store,
		families: families,
		cache:    cache,
		ttl:      ttl,
		now:      time.Now,
		newToken: generateToken,
	}
}

// generateToken returns 32 random bytes, hex encoded.
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *invitationService) CreateInvitation(ctx context.Context, familyUUID, email, invitedByUUID string) (*InvitationView, error) {
	var view *InvitationView
	var staleExpired int64
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := NewAuthorizationGate(tx).AssertAdmin(ctx, familyUUID, invitedByUUID); err != nil {
			return err
		}

		email = strings.TrimSpace(email)
		if email == "" {
			return validationError(msgEmailRequired)
		}

		isMember, err := tx.Members().ExistsByEmail(ctx, familyUUID, email)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if isMember {
			return conflict(msgAlreadyMember)
		}

		now := s.now()
		// Stale pending rows would otherwise hold the (family, email) slot.
		if staleExpired, err = tx.Invitations().ExpireStale(ctx, familyUUID, email, now); err != nil {
			return fmt.Errorf("expire stale invitations: %w", err)
		}
		pending, err := tx.Invitations().FindPending(ctx, familyUUID, email, now)
		if err != nil {
			return fmt.Errorf("find pending invitation: %w", err)
		}
		if pending != nil {
			return conflict(msgInvitationExists)
		}

		token, err := s.newToken()
		if err != nil {
			return err
		}
		inv := &repository.Invitation{
			FamilyUUID: familyUUID,
			Email:      email,
			Token:      token,
			Status:     types.InvitationPending,
			InvitedBy:  invitedByUUID,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}
		if err := tx.Invitations().Create(ctx, inv); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflict(msgInvitationExists)
			}
			return fmt.Errorf("create invitation: %w", err)
		}

		view, err = s.describe(ctx, tx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.Invitation("expired", int(staleExpired))
	metrics.Invitation("created", 1)
	slog.InfoContext(ctx, "invitation created",
		"invitation_uuid", view.Invitation.UUID,
		"family_uuid", familyUUID,
		"invited_by", invitedByUUID,
	)
	return view, nil
}

func (s *invitationService) AcceptInvitation(ctx context.Context, token, callerUUID string) (*FamilyView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, validationError(msgTokenRequired)
	}

	inv, err := s.store.Invitations().FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	if inv == nil || inv.Status != types.InvitationPending {
		return nil, notFound(msgInvitationGone)
	}

	now := s.now()
	if inv.Expired(now) {
		// Expiry is materialised lazily, here, when someone tries to use it.
		moved, err := s.store.Invitations().Transition(ctx, inv.UUID, types.InvitationPending, types.InvitationExpired)
		if err != nil {
			return nil, fmt.Errorf("expire invitation: %w", err)
		}
		if moved {
			metrics.Invitation("expired", 1)
		}
		return nil, validationError(msgInvitationExpired)
	}

	var view *FamilyView
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		// Re-check under the row lock so a concurrent accept of the same
		// token observes the winner's status change.
		locked, err := tx.Invitations().LockByToken(ctx, token)
		if err != nil {
			return fmt.Errorf("lock invitation: %w", err)
		}
		if locked == nil || locked.Status != types.InvitationPending {
			return notFound(msgInvitationGone)
		}
		if locked.Expired(now) {
			return validationError(msgInvitationExpired)
		}

		user, err := tx.Users().FindByID(ctx, callerUUID)
		if err != nil {
			return fmt.Errorf("find user: %w", err)
		}
		if user == nil || user.Email != locked.Email {
			return forbidden(msgEmailMismatch)
		}

		if _, err := s.families.AddMember(ctx, tx, locked.FamilyUUID, callerUUID, types.RoleMember, locked.InvitedBy, locked.CreatedAt); err != nil {
			return err
		}

		moved, err := tx.Invitations().Transition(ctx, locked.UUID, types.InvitationPending, types.InvitationAccepted)
		if err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}
		if !moved {
			return notFound(msgInvitationGone)
		}

		// The invitation row pins the family until commit.
		family, err := tx.Families().FindByID(ctx, locked.FamilyUUID)
		if err != nil {
			return fmt.Errorf("find family: %w", err)
		}
		if family == nil {
			return notFound(msgFamilyNotFound)
		}
		view, err = loadView(ctx, tx, family)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, memberUUIDs(view.Members)...)
	metrics.Invitation("accepted", 1)
	slog.InfoContext(ctx, "invitation accepted",
		"invitation_uuid", inv.UUID,
		"family_uuid", inv.FamilyUUID,
		"user_uuid", callerUUID,
	)
	return view, nil
}

func (s *invitationService) ListPendingInvitations(ctx context.Context, familyUUID, callerUUID string) ([]*repository.Invitation, error) {
	if _, err := NewAuthorizationGate(s.store).AssertAdmin(ctx, familyUUID, callerUUID); err != nil {
		return nil, err
	}
	invitations, err := s.store.Invitations().ListPending(ctx, familyUUID, s.now())
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

// CancelInvitation records the cancelled status instead of deleting the row,
// so the invitation's history survives until the retention purge.
func (s *invitationService) CancelInvitation(ctx context.Context, invitationUUID, callerUUID string) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		inv, err := tx.Invitations().FindByID(ctx, invitationUUID)
		if err != nil {
			return fmt.Errorf("find invitation: %w", err)
		}
		if inv == nil || inv.Status != types.InvitationPending {
			return notFound(msgInvitationGone)
		}

		if _, err := NewAuthorizationGate(tx).AssertAdmin(ctx, inv.FamilyUUID, callerUUID); err != nil {
			return err
		}

		moved, err := tx.Invitations().Transition(ctx, inv.UUID, types.InvitationPending, types.InvitationCancelled)
		if err != nil {
			return fmt.Errorf("cancel invitation: %w", err)
		}
		if !moved {
			return notFound(msgInvitationGone)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.Invitation("cancelled", 1)
	slog.InfoContext(ctx, "invitation cancelled", "invitation_uuid", invitationUUID, "cancelled_by", callerUUID)
	return nil
}

func (s *invitationService) GetInvitationPreview(ctx context.Context, token string) (*InvitationView, error) {
	inv, err := s.store.Invitations().FindByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	if inv == nil || inv.Status != types.InvitationPending || inv.Expired(s.now()) {
		return nil, notFound(msgInvitationGone)
	}
	return s.describe(ctx, s.store, inv)
}

// describe attaches the family and inviter display names.
func (s *invitationService) describe(ctx context.Context, store repository.Store, inv *repository.Invitation) (*InvitationView, error) {
	view := &InvitationView{Invitation: inv}

	family, err := store.Families().FindByID(ctx, inv.FamilyUUID)
	if err != nil {
		return nil, fmt.Errorf("find family: %w", err)
	}
	if family != nil {
		view.FamilyName = family.Name
	}

	inviter, err := store.Users().FindByID(ctx, inv.InvitedBy)
	if err != nil {
		return nil, fmt.Errorf("find inviter: %w", err)
	}
	if inviter != nil {
		view.InviterName = inviter.Username
	}
	return view, nil
}
