package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

func newFamily(t *testing.T, s *Store, owner string) *repository.Family {
	t.Helper()
	family := &repository.Family{Name: "Test", OwnerUUID: owner}
	if err := s.Families().Create(context.Background(), family); err != nil {
		t.Fatalf("create family: %v", err)
	}
	return family
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	var created string
	err := s.WithTx(ctx, func(tx repository.Store) error {
		family := &repository.Family{Name: "Ghost", OwnerUUID: "u1"}
		if err := tx.Families().Create(ctx, family); err != nil {
			return err
		}
		created = family.UUID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want %v", err, boom)
	}

	got, err := s.Families().FindByID(ctx, created)
	if err != nil || got != nil {
		t.Errorf("rolled back family still visible: %v, %v", got, err)
	}
}

func TestWithTxNested(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.WithTx(ctx, func(tx repository.Store) error {
		return tx.WithTx(ctx, func(inner repository.Store) error {
			return inner.Families().Create(ctx, &repository.Family{Name: "Inner", OwnerUUID: "u1"})
		})
	})
	if err != nil {
		t.Fatalf("nested WithTx() error = %v", err)
	}
}

func TestWithTxCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().WithTx(ctx, func(repository.Store) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("WithTx() = %v, called = %v", err, called)
	}
}

func TestMemberConstraints(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := newFamily(t, s, "u1")
	b := newFamily(t, s, "u2")

	owner := &repository.FamilyMember{FamilyUUID: a.UUID, UserUUID: "u1", Role: types.RoleOwner}
	if err := s.Members().Create(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if owner.UUID == "" || owner.Status != types.MemberStatusActive {
		t.Errorf("defaults not applied: %+v", owner)
	}

	// One membership per user.
	err := s.Members().Create(ctx, &repository.FamilyMember{FamilyUUID: b.UUID, UserUUID: "u1", Role: types.RoleMember})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("second membership error = %v, want ErrDuplicate", err)
	}

	// One owner per family.
	err = s.Members().Create(ctx, &repository.FamilyMember{FamilyUUID: a.UUID, UserUUID: "u3", Role: types.RoleOwner})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("second owner error = %v, want ErrDuplicate", err)
	}

	err = s.Members().Create(ctx, &repository.FamilyMember{FamilyUUID: "missing", UserUUID: "u4", Role: types.RoleMember})
	if !errors.Is(err, ErrForeignKey) {
		t.Errorf("orphan membership error = %v, want ErrForeignKey", err)
	}
}

func TestFamilyDeleteRestricted(t *testing.T) {
	ctx := context.Background()
	s := New()
	family := newFamily(t, s, "u1")
	if err := s.Members().Create(ctx, &repository.FamilyMember{FamilyUUID: family.UUID, UserUUID: "u1", Role: types.RoleOwner}); err != nil {
		t.Fatal(err)
	}

	if err := s.Families().Delete(ctx, family.UUID); !errors.Is(err, ErrForeignKey) {
		t.Fatalf("Delete() with members error = %v, want ErrForeignKey", err)
	}

	if _, err := s.Members().DeleteByFamily(ctx, family.UUID); err != nil {
		t.Fatal(err)
	}
	if err := s.Families().Delete(ctx, family.UUID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Families().Delete(ctx, family.UUID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestInvitationLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	family := newFamily(t, s, "u1")
	now := time.Now()

	inv := &repository.Invitation{
		FamilyUUID: family.UUID,
		Email:      "a@example.com",
		Token:      "tok-1",
		InvitedBy:  "u1",
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := s.Invitations().Create(ctx, inv); err != nil {
		t.Fatal(err)
	}

	dup := *inv
	dup.UUID, dup.Token = "", "tok-2"
	if err := s.Invitations().Create(ctx, &dup); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("second pending invitation error = %v, want ErrDuplicate", err)
	}

	moved, err := s.Invitations().Transition(ctx, inv.UUID, types.InvitationPending, types.InvitationAccepted)
	if err != nil || !moved {
		t.Fatalf("Transition() = %v, %v", moved, err)
	}
	moved, err = s.Invitations().Transition(ctx, inv.UUID, types.InvitationPending, types.InvitationCancelled)
	if err != nil || moved {
		t.Errorf("Transition() from stale status = %v, %v; want false", moved, err)
	}

	// The pending slot frees up once the first invitation leaves pending.
	if err := s.Invitations().Create(ctx, &dup); err != nil {
		t.Errorf("re-invite after accept: %v", err)
	}
}

func TestExpireStaleAndPurge(t *testing.T) {
	ctx := context.Background()
	s := New()
	family := newFamily(t, s, "u1")
	now := time.Now()
	old := now.Add(-100 * 24 * time.Hour)

	seed := []repository.Invitation{
		{Token: "stale", Email: "a@example.com", Status: types.InvitationPending, CreatedAt: old, ExpiresAt: old.Add(time.Hour)},
		{Token: "done", Email: "b@example.com", Status: types.InvitationAccepted, CreatedAt: old, ExpiresAt: old.Add(time.Hour)},
		{Token: "recent", Email: "c@example.com", Status: types.InvitationCancelled, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{Token: "live", Email: "d@example.com", Status: types.InvitationPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	for i := range seed {
		seed[i].FamilyUUID = family.UUID
		seed[i].InvitedBy = "u1"
		if err := s.Invitations().Create(ctx, &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Invitations().ExpireStale(ctx, family.UUID, "a@example.com", now)
	if err != nil || n != 1 {
		t.Fatalf("ExpireStale() = %d, %v; want 1", n, err)
	}
	if status, _ := s.InvitationStatus(seed[0].UUID); status != types.InvitationExpired {
		t.Errorf("stale status = %q", status)
	}

	purged, err := s.Invitations().PurgeTerminal(ctx, now.Add(-90*24*time.Hour))
	if err != nil || purged != 2 {
		t.Fatalf("PurgeTerminal() = %d, %v; want 2", purged, err)
	}
	for _, inv := range seed[2:] {
		if _, ok := s.InvitationStatus(inv.UUID); !ok {
			t.Errorf("invitation %s should survive the purge", inv.Token)
		}
	}
}

func TestListWithUsers(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutUser(repository.User{UUID: "u1", Username: "olga", Email: "olga@example.com"})
	family := newFamily(t, s, "u1")
	for _, m := range []repository.FamilyMember{
		{FamilyUUID: family.UUID, UserUUID: "u1", Role: types.RoleOwner},
		{FamilyUUID: family.UUID, UserUUID: "ghost", Role: types.RoleMember},
	} {
		m := m
		if err := s.Members().Create(ctx, &m); err != nil {
			t.Fatal(err)
		}
	}

	members, err := s.Members().ListWithUsers(ctx, family.UUID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	for _, m := range members {
		switch m.UserUUID {
		case "u1":
			if m.Username != "olga" {
				t.Errorf("username = %q", m.Username)
			}
		case "ghost":
			if m.Username != "" || m.Email != "" {
				t.Errorf("missing user should leave display fields empty, got %q %q", m.Username, m.Email)
			}
		}
	}

	ok, err := s.Members().ExistsByEmail(ctx, family.UUID, "OLGA@example.com")
	if err != nil || ok {
		t.Errorf("ExistsByEmail() is case-sensitive, got %v, %v", ok, err)
	}
}
