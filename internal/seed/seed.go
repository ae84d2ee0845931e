// Package seed fills the in-memory store with demo accounts and one family so
// a local run with STORE=memory can exercise the invitation flow end to end.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/repository/memory"
	"github.com/Maxborland/EvaCalendar-sub000/internal/service"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// Demo accounts. Their uuids are the JWT subjects to sign local tokens with.
var Users = []repository.User{
	{UUID: "00000000-0000-4000-8000-000000000001", Username: "anna", Email: "anna@evacalendar.local"},
	{UUID: "00000000-0000-4000-8000-000000000002", Username: "boris", Email: "boris@evacalendar.local"},
	{UUID: "00000000-0000-4000-8000-000000000003", Username: "vera", Email: "vera@evacalendar.local"},
	{UUID: "00000000-0000-4000-8000-000000000004", Username: "gosha", Email: "gosha@evacalendar.local"},
}

// Result describes what SeedData created.
type Result struct {
	FamilyUUID string
	// PendingToken is an open invitation for Users[2].
	PendingToken string
}

// SeedData registers the demo users and builds a family through the
// services: Users[0] owns it, Users[1] joined as admin, Users[2] holds a
// pending invitation and Users[3] is left without a family.
func SeedData(ctx context.Context, store *memory.Store, services *service.Services) (*Result, error) {
	for _, u := range Users {
		store.PutUser(u)
	}
	owner, admin, invitee := Users[0], Users[1], Users[2]

	family, err := services.Family.CreateFamily(ctx, "Demo family", owner.UUID)
	if err != nil {
		return nil, fmt.Errorf("create family: %w", err)
	}
	familyUUID := family.Family.UUID

	joined, err := services.Invitation.CreateInvitation(ctx, familyUUID, admin.Email, owner.UUID)
	if err != nil {
		return nil, fmt.Errorf("invite %s: %w", admin.Username, err)
	}
	if _, err := services.Invitation.AcceptInvitation(ctx, joined.Invitation.Token, admin.UUID); err != nil {
		return nil, fmt.Errorf("accept for %s: %w", admin.Username, err)
	}
	if _, err := services.Family.UpdateMemberRole(ctx, familyUUID, admin.UUID, types.RoleAdmin, owner.UUID); err != nil {
		return nil, fmt.Errorf("promote %s: %w", admin.Username, err)
	}

	pending, err := services.Invitation.CreateInvitation(ctx, familyUUID, invitee.Email, admin.UUID)
	if err != nil {
		return nil, fmt.Errorf("invite %s: %w", invitee.Username, err)
	}

	shared := familyUUID
	store.PutTask(repository.TaskAccess{UUID: "00000000-0000-4000-9000-000000000001", CreatorUUID: owner.UUID, FamilyUUID: &shared})
	store.PutTask(repository.TaskAccess{UUID: "00000000-0000-4000-9000-000000000002", CreatorUUID: owner.UUID})

	slog.Info("demo data seeded",
		"family_uuid", familyUUID,
		"owner", owner.Email,
		"admin", admin.Email,
		"pending_invitee", invitee.Email,
	)
	return &Result{FamilyUUID: familyUUID, PendingToken: pending.Invitation.Token}, nil
}
