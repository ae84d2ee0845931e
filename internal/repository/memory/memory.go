// Package memory provides an in-process repository.Store. It backs the
// service tests and local runs with STORE=memory, and mirrors the unique and
// foreign-key constraints declared by the SQL migrations.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// ErrForeignKey mirrors a RESTRICT foreign key rejecting a delete.
var ErrForeignKey = errors.New("foreign key violation")

type state struct {
	families    map[string]repository.Family
	members     []repository.FamilyMember
	invitations []repository.Invitation
	users       map[string]repository.User
	tasks       map[string]repository.TaskAccess
}

func newState() *state {
	return &state{
		families: map[string]repository.Family{},
		users:    map[string]repository.User{},
		tasks:    map[string]repository.TaskAccess{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.families {
		c.families[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	c.members = append([]repository.FamilyMember(nil), s.members...)
	c.invitations = append([]repository.Invitation(nil), s.invitations...)
	return c
}

// Store is a repository.Store held in memory. Transactions are serialised by
// a single mutex and roll back by restoring a snapshot.
type Store struct {
	mu   *sync.Mutex
	data *state
	inTx bool
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, data: newState()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Families() repository.FamilyRepository       { return familyRepo{s} }
func (s *Store) Members() repository.MemberRepository         { return memberRepo{s} }
func (s *Store) Invitations() repository.InvitationRepository { return invitationRepo{s} }
func (s *Store) Users() repository.UserRepository             { return userRepo{s} }
func (s *Store) Tasks() repository.TaskRepository             { return taskRepo{s} }

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.data.clone()
	if err := fn(&Store{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

// PutUser registers an account, standing in for the auth subsystem.
func (s *Store) PutUser(u repository.User) {
	defer s.lock()()
	s.data.users[u.UUID] = u
}

// PutTask registers a task, standing in for the task subsystem.
func (s *Store) PutTask(t repository.TaskAccess) {
	defer s.lock()()
	s.data.tasks[t.UUID] = t
}

// Task returns the stored task access record.
func (s *Store) Task(taskUUID string) (repository.TaskAccess, bool) {
	defer s.lock()()
	t, ok := s.data.tasks[taskUUID]
	return t, ok
}

// SetInvitationExpiry overwrites an invitation's deadline.
func (s *Store) SetInvitationExpiry(invitationUUID string, expiresAt time.Time) bool {
	defer s.lock()()
	for i := range s.data.invitations {
		if s.data.invitations[i].UUID == invitationUUID {
			s.data.invitations[i].ExpiresAt = expiresAt
			return true
		}
	}
	return false
}

// InvitationStatus returns the stored status of an invitation.
func (s *Store) InvitationStatus(invitationUUID string) (types.InvitationStatus, bool) {
	defer s.lock()()
	for _, inv := range s.data.invitations {
		if inv.UUID == invitationUUID {
			return inv.Status, true
		}
	}
	return "", false
}

// CountMemberships returns how many membership rows the user has.
func (s *Store) CountMemberships(userUUID string) int {
	defer s.lock()()
	n := 0
	for _, m := range s.data.members {
		if m.UserUUID == userUUID {
			n++
		}
	}
	return n
}

// ============================================
// Families
// ============================================

type familyRepo struct{ s *Store }

func (r familyRepo) Create(ctx context.Context, family *repository.Family) error {
	defer r.s.lock()()
	if family.UUID == "" {
		family.UUID = uuid.New().String()
	}
	if _, ok := r.s.data.families[family.UUID]; ok {
		return fmt.Errorf("%w: families_pkey", repository.ErrDuplicate)
	}
	now := time.Now()
	family.CreatedAt, family.UpdatedAt = now, now
	r.s.data.families[family.UUID] = *family
	return nil
}

func (r familyRepo) FindByID(ctx context.Context, familyUUID string) (*repository.Family, error) {
	defer r.s.lock()()
	f, ok := r.s.data.families[familyUUID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (r familyRepo) UpdateName(ctx context.Context, familyUUID, name string) error {
	defer r.s.lock()()
	f, ok := r.s.data.families[familyUUID]
	if !ok {
		return repository.ErrNotFound
	}
	f.Name = name
	f.UpdatedAt = time.Now()
	r.s.data.families[familyUUID] = f
	return nil
}

func (r familyRepo) Delete(ctx context.Context, familyUUID string) error {
	defer r.s.lock()()
	if _, ok := r.s.data.families[familyUUID]; !ok {
		return repository.ErrNotFound
	}
	for _, m := range r.s.data.members {
		if m.FamilyUUID == familyUUID {
			return fmt.Errorf("%w: family_members_family_uuid_fkey", ErrForeignKey)
		}
	}
	for _, inv := range r.s.data.invitations {
		if inv.FamilyUUID == familyUUID {
			return fmt.Errorf("%w: family_invitations_family_uuid_fkey", ErrForeignKey)
		}
	}
	for _, t := range r.s.data.tasks {
		if t.FamilyUUID != nil && *t.FamilyUUID == familyUUID {
			return fmt.Errorf("%w: tasks_family_uuid_fkey", ErrForeignKey)
		}
	}
	delete(r.s.data.families, familyUUID)
	return nil
}

// ============================================
// Members
// ============================================

type memberRepo struct{ s *Store }

func (r memberRepo) Create(ctx context.Context, member *repository.FamilyMember) error {
	defer r.s.lock()()
	if _, ok := r.s.data.families[member.FamilyUUID]; !ok {
		return fmt.Errorf("%w: family_members_family_uuid_fkey", ErrForeignKey)
	}
	for _, m := range r.s.data.members {
		if m.UserUUID == member.UserUUID {
			return fmt.Errorf("%w: uq_family_members_user", repository.ErrDuplicate)
		}
		if member.Role == types.RoleOwner && m.Role == types.RoleOwner && m.FamilyUUID == member.FamilyUUID {
			return fmt.Errorf("%w: uq_family_members_owner", repository.ErrDuplicate)
		}
	}
	if member.UUID == "" {
		member.UUID = uuid.New().String()
	}
	if member.Status == "" {
		member.Status = types.MemberStatusActive
	}
	member.CreatedAt = time.Now()
	r.s.data.members = append(r.s.data.members, *member)
	return nil
}

func (r memberRepo) find(match func(m repository.FamilyMember) bool) *repository.FamilyMember {
	for _, m := range r.s.data.members {
		if m.Status == types.MemberStatusActive && match(m) {
			found := m
			return &found
		}
	}
	return nil
}

func (r memberRepo) FindByUser(ctx context.Context, userUUID string) (*repository.FamilyMember, error) {
	defer r.s.lock()()
	return r.find(func(m repository.FamilyMember) bool { return m.UserUUID == userUUID }), nil
}

func (r memberRepo) FindMember(ctx context.Context, familyUUID, userUUID string) (*repository.FamilyMember, error) {
	defer r.s.lock()()
	return r.find(func(m repository.FamilyMember) bool {
		return m.FamilyUUID == familyUUID && m.UserUUID == userUUID
	}), nil
}

func (r memberRepo) ListWithUsers(ctx context.Context, familyUUID string) ([]*repository.MemberWithUser, error) {
	defer r.s.lock()()
	members := []*repository.MemberWithUser{}
	for _, m := range r.s.data.members {
		if m.FamilyUUID != familyUUID || m.Status != types.MemberStatusActive {
			continue
		}
		row := &repository.MemberWithUser{FamilyMember: m}
		if u, ok := r.s.data.users[m.UserUUID]; ok {
			row.Username, row.Email = u.Username, u.Email
		}
		members = append(members, row)
	}
	return members, nil
}

func (r memberRepo) ExistsByEmail(ctx context.Context, familyUUID, email string) (bool, error) {
	defer r.s.lock()()
	for _, m := range r.s.data.members {
		if m.FamilyUUID != familyUUID || m.Status != types.MemberStatusActive {
			continue
		}
		if u, ok := r.s.data.users[m.UserUUID]; ok && u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r memberRepo) UpdateRole(ctx context.Context, familyUUID, userUUID string, role types.Role) error {
	defer r.s.lock()()
	for i, m := range r.s.data.members {
		if m.FamilyUUID == familyUUID && m.UserUUID == userUUID {
			r.s.data.members[i].Role = role
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r memberRepo) Delete(ctx context.Context, familyUUID, userUUID string) error {
	defer r.s.lock()()
	for i, m := range r.s.data.members {
		if m.FamilyUUID == familyUUID && m.UserUUID == userUUID {
			r.s.data.members = append(r.s.data.members[:i], r.s.data.members[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r memberRepo) DeleteByFamily(ctx context.Context, familyUUID string) (int64, error) {
	defer r.s.lock()()
	kept := r.s.data.members[:0]
	var n int64
	for _, m := range r.s.data.members {
		if m.FamilyUUID == familyUUID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.s.data.members = kept
	return n, nil
}

// ============================================
// Invitations
// ============================================

type invitationRepo struct{ s *Store }

func (r invitationRepo) Create(ctx context.Context, invitation *repository.Invitation) error {
	defer r.s.lock()()
	if _, ok := r.s.data.families[invitation.FamilyUUID]; !ok {
		return fmt.Errorf("%w: family_invitations_family_uuid_fkey", ErrForeignKey)
	}
	if invitation.Status == "" {
		invitation.Status = types.InvitationPending
	}
	for _, inv := range r.s.data.invitations {
		if inv.Token == invitation.Token {
			return fmt.Errorf("%w: family_invitations_token_key", repository.ErrDuplicate)
		}
		if invitation.Status == types.InvitationPending && inv.Status == types.InvitationPending &&
			inv.FamilyUUID == invitation.FamilyUUID && inv.Email == invitation.Email {
			return fmt.Errorf("%w: family_invitations_pending_email_idx", repository.ErrDuplicate)
		}
	}
	if invitation.UUID == "" {
		invitation.UUID = uuid.New().String()
	}
	if invitation.CreatedAt.IsZero() {
		invitation.CreatedAt = time.Now()
	}
	invitation.UpdatedAt = invitation.CreatedAt
	r.s.data.invitations = append(r.s.data.invitations, *invitation)
	return nil
}

func (r invitationRepo) find(match func(inv repository.Invitation) bool) *repository.Invitation {
	for _, inv := range r.s.data.invitations {
		if match(inv) {
			found := inv
			return &found
		}
	}
	return nil
}

func (r invitationRepo) FindByID(ctx context.Context, invitationUUID string) (*repository.Invitation, error) {
	defer r.s.lock()()
	return r.find(func(inv repository.Invitation) bool { return inv.UUID == invitationUUID }), nil
}

func (r invitationRepo) FindByToken(ctx context.Context, token string) (*repository.Invitation, error) {
	defer r.s.lock()()
	return r.find(func(inv repository.Invitation) bool { return inv.Token == token }), nil
}

// LockByToken relies on the store-wide transaction mutex for exclusion.
func (r invitationRepo) LockByToken(ctx context.Context, token string) (*repository.Invitation, error) {
	return r.FindByToken(ctx, token)
}

func (r invitationRepo) FindPending(ctx context.Context, familyUUID, email string, now time.Time) (*repository.Invitation, error) {
	defer r.s.lock()()
	return r.find(func(inv repository.Invitation) bool {
		return inv.FamilyUUID == familyUUID && inv.Email == email &&
			inv.Status == types.InvitationPending && !inv.Expired(now)
	}), nil
}

func (r invitationRepo) ListPending(ctx context.Context, familyUUID string, now time.Time) ([]*repository.Invitation, error) {
	defer r.s.lock()()
	invitations := []*repository.Invitation{}
	for _, inv := range r.s.data.invitations {
		if inv.FamilyUUID == familyUUID && inv.Status == types.InvitationPending && !inv.Expired(now) {
			found := inv
			invitations = append(invitations, &found)
		}
	}
	sort.SliceStable(invitations, func(i, j int) bool {
		return invitations[i].CreatedAt.After(invitations[j].CreatedAt)
	})
	return invitations, nil
}

func (r invitationRepo) ExpireStale(ctx context.Context, familyUUID, email string, now time.Time) (int64, error) {
	defer r.s.lock()()
	var n int64
	for i, inv := range r.s.data.invitations {
		if inv.FamilyUUID == familyUUID && inv.Email == email &&
			inv.Status == types.InvitationPending && inv.Expired(now) {
			r.s.data.invitations[i].Status = types.InvitationExpired
			r.s.data.invitations[i].UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r invitationRepo) Transition(ctx context.Context, invitationUUID string, from, to types.InvitationStatus) (bool, error) {
	defer r.s.lock()()
	for i, inv := range r.s.data.invitations {
		if inv.UUID == invitationUUID {
			if inv.Status != from {
				return false, nil
			}
			r.s.data.invitations[i].Status = to
			r.s.data.invitations[i].UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r invitationRepo) DeleteByFamily(ctx context.Context, familyUUID string) (int64, error) {
	defer r.s.lock()()
	return r.deleteWhere(func(inv repository.Invitation) bool { return inv.FamilyUUID == familyUUID }), nil
}

func (r invitationRepo) PurgeTerminal(ctx context.Context, createdBefore time.Time) (int64, error) {
	defer r.s.lock()()
	return r.deleteWhere(func(inv repository.Invitation) bool {
		return inv.Status.Terminal() && inv.CreatedAt.Before(createdBefore)
	}), nil
}

func (r invitationRepo) deleteWhere(match func(inv repository.Invitation) bool) int64 {
	kept := r.s.data.invitations[:0]
	var n int64
	for _, inv := range r.s.data.invitations {
		if match(inv) {
			n++
			continue
		}
		kept = append(kept, inv)
	}
	r.s.data.invitations = kept
	return n
}

// ============================================
// Users and tasks
// ============================================

type userRepo struct{ s *Store }

func (r userRepo) FindByID(ctx context.Context, userUUID string) (*repository.User, error) {
	defer r.s.lock()()
	u, ok := r.s.data.users[userUUID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type taskRepo struct{ s *Store }

func (r taskRepo) FindAccess(ctx context.Context, taskUUID string) (*repository.TaskAccess, error) {
	defer r.s.lock()()
	t, ok := r.s.data.tasks[taskUUID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r taskRepo) DetachFamily(ctx context.Context, familyUUID string) (int64, error) {
	defer r.s.lock()()
	var n int64
	for id, t := range r.s.data.tasks {
		if t.FamilyUUID != nil && *t.FamilyUUID == familyUUID {
			t.FamilyUUID = nil
			r.s.data.tasks[id] = t
			n++
		}
	}
	return n, nil
}
