package repository

import (
	"context"

	"github.com/taskboard/backend/domain"
)

// UserStore persists user documents. The pending-task mutators are targeted
// single-document writes so they stay idempotent without read-modify-write.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, q Query) ([]domain.User, error)
	Count(ctx context.Context, where []Condition) (int64, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, id string) error

	// AddPendingTask appends taskID to the user's pending set if absent.
	// Fails with not-found when the user does not exist.
	AddPendingTask(ctx context.Context, userID, taskID string) error

	// RemovePendingTask drops taskID from the user's pending set. Removing
	// from a missing user or an absent entry is a no-op.
	RemovePendingTask(ctx context.Context, userID, taskID string) error
}
