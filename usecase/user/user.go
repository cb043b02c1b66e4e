package user

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
	"github.com/taskboard/backend/usecase/relation"
)

// UseCase owns the user lifecycle. Task-side writes for pendingTasks changes
// go through the relation coordinator.
type UseCase struct {
	users    repository.UserStore
	tasks    repository.TaskStore
	relation *relation.Coordinator
	cache    repository.EntityCache
	logger   *zap.Logger
}

func New(users repository.UserStore, tasks repository.TaskStore, coordinator *relation.Coordinator, cache repository.EntityCache, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		users:    users,
		tasks:    tasks,
		relation: coordinator,
		cache:    cache,
		logger:   logger,
	}
}

func (uc *UseCase) List(ctx context.Context, q repository.Query) ([]domain.User, error) {
	return uc.users.List(ctx, q)
}

func (uc *UseCase) Count(ctx context.Context, where []repository.Condition) (int64, error) {
	return uc.users.Count(ctx, where)
}

func (uc *UseCase) Get(ctx context.Context, id string) (*domain.User, error) {
	if uc.cache != nil {
		var cached domain.User
		if ok, err := uc.cache.Get(ctx, repository.CollectionUsers, id, &cached); err == nil && ok {
			return &cached, nil
		}
	}
	user, err := uc.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, repository.CollectionUsers, id, user); err != nil {
			uc.logger.Warn("user cache write failed", zap.String("user_id", id), zap.Error(err))
		}
	}
	return user, nil
}

// Create validates and persists a new user. An initial pendingTasks list is
// bulk-attached afterwards, which detaches each listed task from any prior
// owner first: a task can have only one owner.
func (uc *UseCase) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := validate(user); err != nil {
		return nil, err
	}
	user.ID = ""

	if _, err := uc.users.GetByEmail(ctx, user.Email); err == nil {
		return nil, domain.ErrEmailTaken
	} else if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
		return nil, err
	}

	pending, err := uc.resolveTaskIDs(ctx, user.PendingTasks)
	if err != nil {
		return nil, err
	}
	user.PendingTasks = pending

	created, err := uc.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}

	if len(created.PendingTasks) > 0 {
		if err := uc.relation.BulkAttach(ctx, created.ID, created.PendingTasks); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// Update replaces the user document. The pendingTasks diff runs removals
// before additions so a mid-operation failure under-attaches rather than
// leaving a task claimed by two users.
func (uc *UseCase) Update(ctx context.Context, id string, patch *domain.User) (*domain.User, error) {
	if err := validate(patch); err != nil {
		return nil, err
	}

	existing, err := uc.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Email != existing.Email {
		if other, err := uc.users.GetByEmail(ctx, patch.Email); err == nil && other.ID != id {
			return nil, domain.ErrEmailTaken
		} else if err != nil && !domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return nil, err
		}
	}

	pending, err := uc.resolveTaskIDs(ctx, patch.PendingTasks)
	if err != nil {
		return nil, err
	}

	removed, added := diff(existing.PendingTasks, pending)
	for _, taskID := range removed {
		if err := uc.relation.Detach(ctx, id, taskID); err != nil {
			return nil, err
		}
	}
	for _, taskID := range added {
		if _, err := uc.relation.Attach(ctx, id, taskID); err != nil {
			return nil, err
		}
	}

	// The coordinator calls above bumped the stored revision; refresh before
	// the version-checked write of the full record.
	current, err := uc.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	current.Name = patch.Name
	current.Email = patch.Email
	current.PendingTasks = pending

	if err := uc.users.Update(ctx, current); err != nil {
		return nil, err
	}
	uc.invalidate(ctx, id)
	return current, nil
}

// Delete resets every task owned by the user to the unassigned sentinel
// before removing the record, so no task is ever left referencing a deleted
// user.
func (uc *UseCase) Delete(ctx context.Context, id string) error {
	if _, err := uc.users.GetByID(ctx, id); err != nil {
		return err
	}

	if err := uc.relation.BulkDetachAll(ctx, id); err != nil {
		return err
	}
	if err := uc.users.Delete(ctx, id); err != nil {
		return err
	}
	uc.invalidate(ctx, id)
	return nil
}

// resolveTaskIDs dedupes the list and drops ids that resolve to nothing,
// matching the match-what-exists semantics of bulk task updates. Dropping
// instead of failing keeps the persisted list free of dangling references.
func (uc *UseCase) resolveTaskIDs(ctx context.Context, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := uc.tasks.GetByID(ctx, id); err != nil {
			if domain.IsDomainError(err, domain.ErrCodeNotFound) {
				uc.logger.Warn("dropping unknown task id from pendingTasks", zap.String("task_id", id))
				continue
			}
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (uc *UseCase) invalidate(ctx context.Context, id string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx, repository.CollectionUsers, id); err != nil {
		uc.logger.Warn("user cache invalidation failed", zap.String("user_id", id), zap.Error(err))
	}
}

// diff returns the ids present only in old (removed) and only in new (added).
func diff(oldIDs, newIDs []string) (removed, added []string) {
	oldSet := make(map[string]bool, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = true
	}
	newSet := make(map[string]bool, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = true
	}
	for _, id := range oldIDs {
		if !newSet[id] {
			removed = append(removed, id)
		}
	}
	for _, id := range newIDs {
		if !oldSet[id] {
			added = append(added, id)
		}
	}
	return removed, added
}

func validate(user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(user.Name) == "" || strings.TrimSpace(user.Email) == "" {
		return domain.NewError(domain.ErrCodeInvalid, "name and email are required")
	}
	return nil
}
