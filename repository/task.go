package repository

import (
	"context"

	"github.com/taskboard/backend/domain"
)

// CollectionTasks and CollectionUsers name the two persisted collections.
const (
	CollectionTasks = "tasks"
	CollectionUsers = "users"
)

// TaskStore persists task documents. Update performs a version check and
// fails with a conflict when the stored revision moved underneath the caller.
type TaskStore interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, q Query) ([]domain.Task, error)
	Count(ctx context.Context, where []Condition) (int64, error)
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id string) error

	// SetAssignment points the task at the given owner and display name.
	SetAssignment(ctx context.Context, taskID, userID, userName string) error

	// ClearAssignment resets the task to the unassigned sentinel, but only
	// while it still points at ownerID. Clearing a task that moved on or no
	// longer exists is a no-op, which keeps detach idempotent.
	ClearAssignment(ctx context.Context, taskID, ownerID string) error

	// DetachAllFrom resets every task owned by userID in one sweep and
	// returns the ids that were touched.
	DetachAllFrom(ctx context.Context, userID string) ([]string, error)
}
