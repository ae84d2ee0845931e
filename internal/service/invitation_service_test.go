package service

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

func TestCreateInvitation(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.setClock(now)
	familyUUID := f.createFamily(t)

	view, err := f.services.Invitation.CreateInvitation(f.ctx, familyUUID, "  gleb@example.com ", ownerID)
	if err != nil {
		t.Fatalf("CreateInvitation() error = %v", err)
	}
	inv := view.Invitation
	if inv.Email != "gleb@example.com" {
		t.Errorf("email = %q, want trimmed", inv.Email)
	}
	if inv.Status != types.InvitationPending {
		t.Errorf("status = %q", inv.Status)
	}
	if inv.InvitedBy != ownerID || inv.FamilyUUID != familyUUID {
		t.Errorf("invitation = %+v", inv)
	}
	if !inv.ExpiresAt.Equal(now.Add(DefaultInvitationTTL)) {
		t.Errorf("expires at %v, want %v", inv.ExpiresAt, now.Add(DefaultInvitationTTL))
	}
	if raw, err := hex.DecodeString(inv.Token); err != nil || len(raw) != 32 {
		t.Errorf("token %q is not 32 hex-encoded bytes", inv.Token)
	}
	if view.FamilyName != "Ivanovs" || view.InviterName != "olga" {
		t.Errorf("display names = %q, %q", view.FamilyName, view.InviterName)
	}
}

func TestCreateInvitationCustomTTL(t *testing.T) {
	f := newFixture(t)
	f.services = NewServices(&ServiceDeps{Store: f.store, Cache: f.cache, InvitationTTL: time.Hour})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.setClock(now)
	familyUUID := f.createFamily(t)

	inv := f.invite(t, familyUUID, "gleb@example.com")
	if !inv.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expires at %v, want one hour after creation", inv.ExpiresAt)
	}
}

func TestCreateInvitationTokensUnique(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)

	seen := map[string]bool{}
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
		inv := f.invite(t, familyUUID, email)
		if seen[inv.Token] {
			t.Fatalf("token %q issued twice", inv.Token)
		}
		seen[inv.Token] = true
	}
}

func TestCreateInvitationRules(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.familyWithRoles(t)
	f.invite(t, familyUUID, "gleb@example.com")

	tests := []struct {
		name   string
		caller string
		email  string
		kind   error
		msg    string
	}{
		{"outsider", otherID, "x@example.com", ErrForbidden, msgNotMember},
		{"plain member", memberID, "x@example.com", ErrForbidden, msgInsufficientRole},
		{"blank email", ownerID, "   ", ErrValidation, msgEmailRequired},
		{"existing member", ownerID, "masha@example.com", ErrConflict, msgAlreadyMember},
		{"pending duplicate", adminID, "gleb@example.com", ErrConflict, msgInvitationExists},
		{"admin may invite", adminID, "oleg@example.com", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.services.Invitation.CreateInvitation(f.ctx, familyUUID, tt.email, tt.caller)
			if tt.kind != nil {
				assertKind(t, err, tt.kind, tt.msg)
				return
			}
			if err != nil {
				t.Fatalf("CreateInvitation() error = %v", err)
			}
		})
	}
}

func TestCreateInvitationDuplicate(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)
	f.invite(t, familyUUID, "m@x.com")

	_, err := f.services.Invitation.CreateInvitation(f.ctx, familyUUID, "m@x.com", ownerID)
	assertKind(t, err, ErrConflict, msgInvitationExists)
}

func TestCreateInvitationConcurrent(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)

	const attempts = 6
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.services.Invitation.CreateInvitation(f.ctx, familyUUID, "gleb@example.com", ownerID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assertKind(t, err, ErrConflict, msgInvitationExists)
	}
	if created != 1 {
		t.Errorf("%d invitations created, want 1", created)
	}
}

func TestCreateInvitationReplacesExpired(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)
	old := f.invite(t, familyUUID, "gleb@example.com")
	f.store.SetInvitationExpiry(old.UUID, time.Now().Add(-time.Minute))

	fresh := f.invite(t, familyUUID, "gleb@example.com")
	if fresh.Token == old.Token {
		t.Error("a new token should be issued")
	}
	if status, _ := f.store.InvitationStatus(old.UUID); status != types.InvitationExpired {
		t.Errorf("stale invitation status = %q, want expired", status)
	}
}

func TestAcceptInvitation(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)
	inv := f.invite(t, familyUUID, "gleb@example.com")

	view, err := f.services.Invitation.AcceptInvitation(f.ctx, inv.Token, guestID)
	if err != nil {
		t.Fatalf("AcceptInvitation() error = %v", err)
	}
	if view.Family.UUID != familyUUID || len(view.Members) != 2 {
		t.Fatalf("view = %+v with %d members", view.Family, len(view.Members))
	}

	var joined bool
	for _, m := range view.Members {
		if m.UserUUID != guestID {
			continue
		}
		joined = true
		if m.Role != types.RoleMember {
			t.Errorf("new member role = %q", m.Role)
		}
		if m.InvitedBy == nil || *m.InvitedBy != ownerID {
			t.Error("membership should record the inviter")
		}
		if m.AcceptedAt == nil {
			t.Error("membership should record acceptance time")
		}
	}
	if !joined {
		t.Fatal("guest missing from members")
	}

	if status, _ := f.store.InvitationStatus(inv.UUID); status != types.InvitationAccepted {
		t.Errorf("status = %q, want accepted", status)
	}
	if f.cache.invalidated[guestID] == 0 || f.cache.invalidated[ownerID] == 0 {
		t.Error("accept should invalidate every member's cache entry")
	}

	// Tokens are single use.
	_, err = f.services.Invitation.AcceptInvitation(f.ctx, inv.Token, guestID)
	assertKind(t, err, ErrNotFound, msgInvitationGone)
}

// An expired invitation is rejected, marked expired and no longer listed.
func TestAcceptExpiredInvitation(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)
	inv := f.invite(t, familyUUID, "gleb@example.com")
	f.store.SetInvitationExpiry(inv.UUID, time.Now().Add(-time.Second))

	_, err := f.services.Invitation.AcceptInvitation(f.ctx, inv.Token, guestID)
	assertKind(t, err, ErrValidation, msgInvitationExpired)

	if status, _ := f.store.InvitationStatus(inv.UUID); status != types.InvitationExpired {
		t.Errorf("status = %q, want expired", status)
	}
	if n := f.store.CountMemberships(guestID); n != 0 {
		t.Errorf("guest joined through an expired invitation")
	}
	pending, err := f.services.Invitation.ListPendingInvitations(f.ctx, familyUUID, ownerID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expired invitation still listed: %d pending", len(pending))
	}

	// Once expired the token reads as unknown.
	_, err = f.services.Invitation.AcceptInvitation(f.ctx, inv.Token, guestID)
	assertKind(t, err, ErrNotFound, msgInvitationGone)
}

func TestAcceptInvitationRejections(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)

	// otherID already owns a family of their own.
	if _, err := f.services.Family.CreateFamily(f.ctx, "Petrovs", otherID); err != nil {
		t.Fatal(err)
	}
	busy := f.invite(t, familyUUID, "oleg@example.com")
	forGleb := f.invite(t, familyUUID, "gleb@example.com")
	upper := f.invite(t, familyUUID, "Masha@example.com")

	tests := []struct {
		name   string
		token  string
		caller string
		kind   error
		msg    string
	}{
		{"blank token", "  ", guestID, ErrValidation, msgTokenRequired},
		{"unknown token", "deadbeef", guestID, ErrNotFound, msgInvitationGone},
		{"wrong account", forGleb.Token, memberID, ErrForbidden, msgEmailMismatch},
		{"email case differs", upper.Token, memberID, ErrForbidden, msgEmailMismatch},
		{"unknown user", forGleb.Token, "user-ghost", ErrForbidden, msgEmailMismatch},
		{"already in a family", busy.Token, otherID, ErrConflict, msgAlreadyInFamily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.services.Invitation.AcceptInvitation(f.ctx, tt.token, tt.caller)
			assertKind(t, err, tt.kind, tt.msg)
		})
	}

	// Failed attempts leave the invitations usable.
	for _, inv := range []string{busy.UUID, forGleb.UUID, upper.UUID} {
		if status, _ := f.store.InvitationStatus(inv); status != types.InvitationPending {
			t.Errorf("invitation %s status = %q, want pending", inv, status)
		}
	}
	if _, err := f.services.Invitation.AcceptInvitation(f.ctx, forGleb.Token, guestID); err != nil {
		t.Errorf("rightful recipient could not accept: %v", err)
	}
}

func TestAcceptInvitationConcurrent(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)
	inv := f.invite(t, familyUUID, "gleb@example.com")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.services.Invitation.AcceptInvitation(f.ctx, inv.Token, guestID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assertKind(t, err, ErrNotFound, msgInvitationGone)
	}
	if accepted != 1 {
		t.Errorf("%d accepts succeeded, want 1", accepted)
	}
	if n := f.store.CountMemberships(guestID); n != 1 {
		t.Errorf("guest has %d memberships, want 1", n)
	}
}

func TestListPendingInvitations(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.familyWithRoles(t)
	first := f.invite(t, familyUUID, "gleb@example.com")
	second := f.invite(t, familyUUID, "oleg@example.com")
	gone := f.invite(t, familyUUID, "late@example.com")
	cancelled := f.invite(t, familyUUID, "nope@example.com")

	f.store.SetInvitationExpiry(gone.UUID, time.Now().Add(-time.Hour))
	if err := f.services.Invitation.CancelInvitation(f.ctx, cancelled.UUID, ownerID); err != nil {
		t.Fatal(err)
	}

	pending, err := f.services.Invitation.ListPendingInvitations(f.ctx, familyUUID, adminID)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, inv := range pending {
		got[inv.UUID] = true
	}
	if len(pending) != 2 || !got[first.UUID] || !got[second.UUID] {
		t.Errorf("pending = %v, want only %s and %s", got, first.UUID, second.UUID)
	}

	_, err = f.services.Invitation.ListPendingInvitations(f.ctx, familyUUID, memberID)
	assertKind(t, err, ErrForbidden, msgInsufficientRole)
}

func TestCancelInvitation(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.familyWithRoles(t)
	inv := f.invite(t, familyUUID, "gleb@example.com")

	err := f.services.Invitation.CancelInvitation(f.ctx, inv.UUID, memberID)
	assertKind(t, err, ErrForbidden, msgInsufficientRole)

	err = f.services.Invitation.CancelInvitation(f.ctx, inv.UUID, otherID)
	assertKind(t, err, ErrForbidden, msgNotMember)

	if err := f.services.Invitation.CancelInvitation(f.ctx, inv.UUID, adminID); err != nil {
		t.Fatalf("CancelInvitation() error = %v", err)
	}
	if status, _ := f.store.InvitationStatus(inv.UUID); status != types.InvitationCancelled {
		t.Errorf("status = %q, want cancelled", status)
	}

	err = f.services.Invitation.CancelInvitation(f.ctx, inv.UUID, adminID)
	assertKind(t, err, ErrNotFound, msgInvitationGone)

	_, err = f.services.Invitation.AcceptInvitation(f.ctx, inv.Token, guestID)
	assertKind(t, err, ErrNotFound, msgInvitationGone)

	// The slot is free again.
	f.invite(t, familyUUID, "gleb@example.com")
}

func TestCancelUnknownInvitation(t *testing.T) {
	f := newFixture(t)
	f.createFamily(t)
	err := f.services.Invitation.CancelInvitation(f.ctx, "missing", ownerID)
	assertKind(t, err, ErrNotFound, msgInvitationGone)
}

func TestGetInvitationPreview(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)
	inv := f.invite(t, familyUUID, "gleb@example.com")

	view, err := f.services.Invitation.GetInvitationPreview(f.ctx, inv.Token)
	if err != nil {
		t.Fatalf("GetInvitationPreview() error = %v", err)
	}
	if view.FamilyName != "Ivanovs" || view.InviterName != "olga" || view.Invitation.Email != "gleb@example.com" {
		t.Errorf("preview = %+v / %q / %q", view.Invitation, view.FamilyName, view.InviterName)
	}

	f.store.SetInvitationExpiry(inv.UUID, time.Now().Add(-time.Second))
	_, err = f.services.Invitation.GetInvitationPreview(f.ctx, inv.Token)
	assertKind(t, err, ErrNotFound, msgInvitationGone)

	_, err = f.services.Invitation.GetInvitationPreview(f.ctx, "unknown")
	assertKind(t, err, ErrNotFound, msgInvitationGone)
}

func TestDeletedFamilyInvitationUnusable(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)
	inv := f.invite(t, familyUUID, "gleb@example.com")

	if err := f.services.Family.DeleteFamily(f.ctx, familyUUID, ownerID); err != nil {
		t.Fatal(err)
	}
	_, err := f.services.Invitation.AcceptInvitation(f.ctx, inv.Token, guestID)
	assertKind(t, err, ErrNotFound, msgInvitationGone)
}

// commitHookStore runs afterCommit once a top-level transaction has committed.
type commitHookStore struct {
	repository.Store
	afterCommit func()
}

func (s *commitHookStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if err := s.Store.WithTx(ctx, fn); err != nil {
		return err
	}
	if hook := s.afterCommit; hook != nil {
		s.afterCommit = nil
		hook()
	}
	return nil
}

// The accepted view comes from the accepting transaction, so a family deleted
// right after commit does not turn a successful accept into an error.
func TestAcceptInvitationViewFromCommittedTx(t *testing.T) {
	f := newFixture(t)
	familyUUID := f.createFamily(t)
	inv := f.invite(t, familyUUID, "gleb@example.com")

	hooked := &commitHookStore{Store: f.store}
	accepting := NewServices(&ServiceDeps{Store: hooked, Cache: f.cache})
	hooked.afterCommit = func() {
		if err := f.services.Family.DeleteFamily(f.ctx, familyUUID, ownerID); err != nil {
			t.Errorf("DeleteFamily() error = %v", err)
		}
	}

	view, err := accepting.Invitation.AcceptInvitation(f.ctx, inv.Token, guestID)
	if err != nil {
		t.Fatalf("AcceptInvitation() error = %v", err)
	}
	if view.Family.UUID != familyUUID || len(view.Members) != 2 {
		t.Errorf("view = %+v with %d members, want the joined family with 2", view.Family, len(view.Members))
	}
	if hooked.afterCommit != nil {
		t.Error("accept did not commit a transaction")
	}
}
