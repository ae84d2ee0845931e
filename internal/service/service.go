package service

import (
	"context"
	"time"

	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// ============================================
// Views
// ============================================

// FamilyView is a family joined with its active members.
type FamilyView struct {
	Family  *repository.Family
	Members []*repository.MemberWithUser
}

// UserFamily is the caller's family together with the caller's own role.
type UserFamily struct {
	FamilyView
	Role types.Role
}

// InvitationView is an invitation with the display names an email needs.
type InvitationView struct {
	Invitation  *repository.Invitation
	FamilyName  string
	InviterName string
}

// MembershipCache caches GetUserFamily results. Each user has a generation
// that Invalidate advances. SetUserFamily writes only while the generation
// still equals the one GetUserFamily reported, so a read that overlapped a
// membership change is never cached. A negative generation means unknown and
// disables the write. Implementations must be safe for concurrent use and may
// drop entries at any time.
type MembershipCache interface {
	GetUserFamily(ctx context.Context, userUUID string) (family *UserFamily, gen int64, ok bool)
	SetUserFamily(ctx context.Context, userUUID string, family *UserFamily, gen int64)
	Invalidate(ctx context.Context, userUUIDs ...string)
}

type noopCache struct{}

func (noopCache) GetUserFamily(context.Context, string) (*UserFamily, int64, bool) { return nil, -1, false }
func (noopCache) SetUserFamily(context.Context, string, *UserFamily, int64)        {}
func (noopCache) Invalidate(context.Context, ...string)                            {}

// ============================================
// Services Container
// ============================================

type Services struct {
	Family     FamilyService
	Invitation InvitationService
	Gate       AuthorizationGate
}

// ServiceDeps contains all dependencies needed to create services
type ServiceDeps struct {
	Store repository.Store
	// Cache is optional.
	Cache MembershipCache
	// InvitationTTL defaults to seven days.
	InvitationTTL time.Duration
}

func NewServices(deps *ServiceDeps) *Services {
	familySvc := NewFamilyService(deps.Store, deps.Cache)
	return &Services{
		Family:     familySvc,
		Invitation: NewInvitationService(deps.Store, familySvc, deps.Cache, deps.InvitationTTL),
		Gate:       NewAuthorizationGate(deps.Store),
	}
}

func loadView(ctx context.Context, store repository.Store, family *repository.Family) (*FamilyView, error) {
	members, err := store.Members().ListWithUsers(ctx, family.UUID)
	if err != nil {
		return nil, err
	}
	return &FamilyView{Family: family, Members: members}, nil
}

func memberUUIDs(members []*repository.MemberWithUser) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserUUID)
	}
	return ids
}
