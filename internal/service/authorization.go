package service

import (
	"context"
	"fmt"

	"github.com/Maxborland/EvaCalendar-sub000/internal/repository"
	"github.com/Maxborland/EvaCalendar-sub000/internal/types"
)

// AuthorizationGate holds the read-only permission checks every privileged
// family operation starts with. It is also how the task subsystem decides
// whether a family-shared task is visible to a user.
type AuthorizationGate interface {
	AssertMember(ctx context.Context, familyUUID, userUUID string) (*repository.FamilyMember, error)
	AssertAdmin(ctx context.Context, familyUUID, userUUID string) (*repository.FamilyMember, error)
	CanViewTask(ctx context.Context, task *repository.TaskAccess, userUUID string) (bool, error)
	CanViewTaskByID(ctx context.Context, taskUUID, userUUID string) (bool, error)
}

type authorizationGate struct {
	members repository.MemberRepository
	tasks   repository.TaskRepository
}

// NewAuthorizationGate binds the gate to store, which may be transactional.
func NewAuthorizationGate(store repository.Store) AuthorizationGate {
	return &authorizationGate{members: store.Members(), tasks: store.Tasks()}
}

func (g *authorizationGate) AssertMember(ctx context.Context, familyUUID, userUUID string) (*repository.FamilyMember, error) {
	member, err := g.members.FindMember(ctx, familyUUID, userUUID)
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}
	if member == nil || member.Status != types.MemberStatusActive {
		return nil, forbidden(msgNotMember)
	}
	return member, nil
}

func (g *authorizationGate) AssertAdmin(ctx context.Context, familyUUID, userUUID string) (*repository.FamilyMember, error) {
	member, err := g.AssertMember(ctx, familyUUID, userUUID)
	if err != nil {
		return nil, err
	}
	if !member.Role.AtLeast(types.RoleAdmin) {
		return nil, forbidden(msgInsufficientRole)
	}
	return member, nil
}

// CanViewTask reports whether userUUID created, is assigned to, or shares a
// family with the task.
func (g *authorizationGate) CanViewTask(ctx context.Context, task *repository.TaskAccess, userUUID string) (bool, error) {
	if task == nil || userUUID == "" {
		return false, nil
	}
	if task.CreatorUUID == userUUID {
		return true, nil
	}
	if task.AssigneeUUID != nil && *task.AssigneeUUID == userUUID {
		return true, nil
	}
	if task.FamilyUUID == nil {
		return false, nil
	}
	member, err := g.members.FindMember(ctx, *task.FamilyUUID, userUUID)
	if err != nil {
		return false, fmt.Errorf("find member: %w", err)
	}
	return member != nil && member.Status == types.MemberStatusActive, nil
}

func (g *authorizationGate) CanViewTaskByID(ctx context.Context, taskUUID, userUUID string) (bool, error) {
	task, err := g.tasks.FindAccess(ctx, taskUUID)
	if err != nil {
		return false, fmt.Errorf("find task: %w", err)
	}
	return g.CanViewTask(ctx, task, userUUID)
}
