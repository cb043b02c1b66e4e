package task

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
	"github.com/taskboard/backend/usecase/relation"
)

// UseCase owns the task lifecycle. Cross-entity side effects go through the
// relation coordinator; this code never touches a user's pendingTasks.
type UseCase struct {
	tasks    repository.TaskStore
	users    repository.UserStore
	relation *relation.Coordinator
	cache    repository.EntityCache
	logger   *zap.Logger
}

func New(tasks repository.TaskStore, users repository.UserStore, coordinator *relation.Coordinator, cache repository.EntityCache, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tasks:    tasks,
		users:    users,
		relation: coordinator,
		cache:    cache,
		logger:   logger,
	}
}

func (uc *UseCase) List(ctx context.Context, q repository.Query) ([]domain.Task, error) {
	return uc.tasks.List(ctx, q)
}

func (uc *UseCase) Count(ctx context.Context, where []repository.Condition) (int64, error) {
	return uc.tasks.Count(ctx, where)
}

func (uc *UseCase) Get(ctx context.Context, id string) (*domain.Task, error) {
	if uc.cache != nil {
		var cached domain.Task
		if ok, err := uc.cache.Get(ctx, repository.CollectionTasks, id, &cached); err == nil && ok {
			return &cached, nil
		}
	}
	task, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if uc.cache != nil {
		if err := uc.cache.Set(ctx, repository.CollectionTasks, id, task); err != nil {
			uc.logger.Warn("task cache write failed", zap.String("task_id", id), zap.Error(err))
		}
	}
	return task, nil
}

// Create validates and persists a new task. The owner, when given, is
// resolved before anything is written, so a bad reference never leaves an
// orphaned row behind.
func (uc *UseCase) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if err := validate(task); err != nil {
		return nil, err
	}
	task.ID = ""

	if task.AssignedUser != "" {
		owner, err := uc.users.GetByID(ctx, task.AssignedUser)
		if err != nil {
			return nil, err
		}
		task.AssignedUserName = owner.Name
	} else {
		task.AssignedUserName = domain.UnassignedName
	}

	created, err := uc.tasks.Create(ctx, task)
	if err != nil {
		return nil, err
	}

	if created.AssignedUser != "" {
		if _, err := uc.relation.Attach(ctx, created.AssignedUser, created.ID); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// Update replaces the task document. An ownership change runs through the
// coordinator before the patch is persisted, so a failed reassignment never
// leaves the task pointing at an owner whose pending list was not updated.
func (uc *UseCase) Update(ctx context.Context, id string, patch *domain.Task) (*domain.Task, error) {
	if err := validate(patch); err != nil {
		return nil, err
	}

	existing, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch.ID = id
	patch.DateCreated = existing.DateCreated

	if patch.AssignedUser != existing.AssignedUser {
		owner, err := uc.relation.Reassign(ctx, id, existing.AssignedUser, patch.AssignedUser)
		if err != nil {
			return nil, err
		}
		if owner != nil {
			patch.AssignedUserName = owner.Name
		} else {
			patch.AssignedUserName = domain.UnassignedName
		}
		// The reassignment bumped the stored revision; refresh before the
		// version-checked write.
		current, err := uc.tasks.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		patch.Version = current.Version
	} else {
		// The denormalized name is service-managed, never caller-supplied.
		patch.AssignedUserName = existing.AssignedUserName
		if patch.AssignedUser == "" {
			patch.AssignedUserName = domain.UnassignedName
		}
		patch.Version = existing.Version
	}

	if err := uc.tasks.Update(ctx, patch); err != nil {
		return nil, err
	}
	uc.invalidate(ctx, id)
	return patch, nil
}

// Delete detaches the task from its owner before removing the row, so a
// failed detach leaves the task existing and correctly referenced rather
// than deleted but still claimed.
func (uc *UseCase) Delete(ctx context.Context, id string) error {
	existing, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if existing.AssignedUser != "" {
		if err := uc.relation.Detach(ctx, existing.AssignedUser, id); err != nil {
			return err
		}
	}
	if err := uc.tasks.Delete(ctx, id); err != nil {
		return err
	}
	uc.invalidate(ctx, id)
	return nil
}

func (uc *UseCase) invalidate(ctx context.Context, id string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx, repository.CollectionTasks, id); err != nil {
		uc.logger.Warn("task cache invalidation failed", zap.String("task_id", id), zap.Error(err))
	}
}

func validate(task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}
	if strings.TrimSpace(task.Name) == "" || task.Deadline.IsZero() {
		return domain.NewError(domain.ErrCodeInvalid, "name and deadline are required")
	}
	return nil
}
