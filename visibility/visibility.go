// Package visibility decides which tasks a principal may see and mutate,
// based on role and linkage.
package visibility

import (
	"context"

	"leaddesk-api/domain"
)

// Store is the task read surface visibility queries run against.
type Store interface {
	TasksByOwner(ctx context.Context, ownerID string, status domain.TaskStatus) ([]domain.Task, error)
}

// Rule computes visible task sets.
type Rule struct {
	store Store
}

// NewRule creates a visibility Rule over the given store.
func NewRule(store Store) *Rule {
	if store == nil {
		panic("visibility.NewRule: store is nil")
	}
	return &Rule{store: store}
}

// TasksFor returns the task set visible to the principal for one status
// bucket (empty bucket means all). Managers see their own partition. Clients
// see only tasks explicitly assigned to them, which is narrower than tasks
// they created. Admins see an explicitly chosen target manager's partition;
// targetManagerID is ignored for other roles.
func (r *Rule) TasksFor(ctx context.Context, p domain.Principal, bucket domain.TaskStatus, targetManagerID string) ([]domain.Task, error) {
	switch p.Role {
	case domain.RoleManager:
		return r.store.TasksByOwner(ctx, p.ID, bucket)

	case domain.RoleClient:
		if p.LinkStatus != domain.LinkApproved || p.LinkedManagerID == "" {
			return []domain.Task{}, nil
		}
		tasks, err := r.store.TasksByOwner(ctx, p.LinkedManagerID, bucket)
		if err != nil {
			return nil, err
		}
		visible := []domain.Task{}
		for _, t := range tasks {
			if t.AssignedContains(p.ID) {
				visible = append(visible, t)
			}
		}
		return visible, nil

	case domain.RoleAdmin:
		if targetManagerID == "" {
			return nil, domain.ErrNotAuthorized
		}
		return r.store.TasksByOwner(ctx, targetManagerID, bucket)
	}
	return nil, domain.ErrNotAuthorized
}

// EffectiveOwner resolves who a new task belongs to. A client's tasks are
// forced onto its linked manager; createdBy keeps the true author for audit.
func EffectiveOwner(p domain.Principal) (ownerID, createdBy string, err error) {
	switch p.Role {
	case domain.RoleManager:
		return p.ID, p.ID, nil
	case domain.RoleClient:
		if p.LinkStatus != domain.LinkApproved || p.LinkedManagerID == "" {
			return "", "", domain.ErrNotAuthorized
		}
		return p.LinkedManagerID, p.ID, nil
	}
	return "", "", domain.ErrNotAuthorized
}

// CanMutate reports whether the principal may update or delete the task.
// Only the owning manager may.
func CanMutate(p domain.Principal, t domain.Task) bool {
	return p.Role == domain.RoleManager && t.OwnerID == p.ID
}

// CanComment reports whether the principal may append to the task's comment
// thread: the owning manager, or an approved client linked to that manager.
func CanComment(p domain.Principal, t domain.Task) bool {
	if CanMutate(p, t) {
		return true
	}
	return p.Role == domain.RoleClient &&
		p.LinkStatus == domain.LinkApproved &&
		p.LinkedManagerID == t.OwnerID
}

// CanView reports whether the principal may read the task at all.
func CanView(p domain.Principal, t domain.Task) bool {
	switch p.Role {
	case domain.RoleManager:
		return t.OwnerID == p.ID
	case domain.RoleClient:
		return t.AssignedContains(p.ID)
	case domain.RoleAdmin:
		return true
	}
	return false
}
