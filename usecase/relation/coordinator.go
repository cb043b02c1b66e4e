// Package relation owns every write that crosses the task/user relationship.
// A task's assignedUser pointer and the owning user's pendingTasks set are
// two views of the same fact stored in separate documents; the coordinator
// is the only code path allowed to touch the far side of that fact.
package relation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/pkg/keylock"
	"github.com/taskboard/backend/repository"
)

// Journal persists in-flight operations so an interrupted multi-write
// sequence can be replayed. Implemented by the bolt journal store.
type Journal interface {
	Record(ctx context.Context, payload interface{}) (string, error)
	Clear(ctx context.Context, id string) error
}

// Coordinator keeps the bidirectional task/user references consistent. The
// store offers no multi-document transaction, so each operation is a short
// sequence of independent writes: removal-side writes go first, every write
// is idempotent, and a per-identifier critical section serializes operations
// touching the same documents.
type Coordinator struct {
	tasks   repository.TaskStore
	users   repository.UserStore
	cache   repository.EntityCache
	journal Journal
	locks   *keylock.KeyLock
	logger  *zap.Logger
}

// New builds a coordinator. The cache and journal are optional.
func New(tasks repository.TaskStore, users repository.UserStore, cache repository.EntityCache, journal Journal, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		tasks:   tasks,
		users:   users,
		cache:   cache,
		journal: journal,
		locks:   keylock.New(),
		logger:  logger,
	}
}

// Attach adds taskID to the user's pendingTasks set and points the task at
// the user, detaching it from any prior owner first: a task has exactly one
// owner. It returns the resolved owner so callers can use the display name.
// Attaching an already-attached pair changes nothing.
func (c *Coordinator) Attach(ctx context.Context, userID, taskID string) (*domain.User, error) {
	if userID == "" || taskID == "" {
		return nil, domain.ErrInvalidPayload
	}
	return c.run(ctx, Op{Kind: OpAttach, UserID: userID, TaskID: taskID})
}

// Detach removes taskID from the user's pendingTasks set and resets the
// task's pointer to the unassigned sentinel. Detaching from an empty userID
// or an already-detached pair is a no-op.
func (c *Coordinator) Detach(ctx context.Context, userID, taskID string) error {
	if userID == "" {
		return nil
	}
	_, err := c.run(ctx, Op{Kind: OpDetach, UserID: userID, TaskID: taskID})
	return err
}

// Reassign moves a task's ownership from oldUserID to newUserID, either of
// which may be empty. The removal side runs first, so an interruption leaves
// at most a missing link, never a doubly-owned task. Returns the new owner,
// or nil when the task ends up unassigned.
func (c *Coordinator) Reassign(ctx context.Context, taskID, oldUserID, newUserID string) (*domain.User, error) {
	if oldUserID == newUserID {
		return nil, nil
	}
	return c.run(ctx, Op{Kind: OpReassign, TaskID: taskID, OldUserID: oldUserID, NewUserID: newUserID})
}

// BulkAttach points each listed task at the user, detaching it from any
// prior owner first. A task can have only one owner, so the detach is a
// correctness requirement, not an optimization. Unknown task ids are skipped.
func (c *Coordinator) BulkAttach(ctx context.Context, userID string, taskIDs []string) error {
	if userID == "" {
		return domain.ErrInvalidPayload
	}
	if len(taskIDs) == 0 {
		return nil
	}
	_, err := c.run(ctx, Op{Kind: OpBulkAttach, UserID: userID, TaskIDs: taskIDs})
	return err
}

// BulkDetachAll resets every task currently owned by userID to the
// unassigned sentinel in one sweep.
func (c *Coordinator) BulkDetachAll(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	_, err := c.run(ctx, Op{Kind: OpDetachAll, UserID: userID})
	return err
}

// Apply executes a previously journaled operation without re-journaling it.
// The replayer uses this to finish sequences interrupted by a crash.
func (c *Coordinator) Apply(ctx context.Context, op Op) error {
	unlock := c.locks.Lock(op.lockKeys()...)
	defer unlock()
	_, err := c.execute(ctx, op)
	return err
}

// run journals the operation, executes it inside the critical section and
// clears the journal entry once the sequence completed. A mid-sequence
// failure keeps the entry so the replayer can retry; a not-found failure
// clears it, since replaying can never make a missing document appear.
func (c *Coordinator) run(ctx context.Context, op Op) (*domain.User, error) {
	entryID := c.record(ctx, op)

	unlock := c.locks.Lock(op.lockKeys()...)
	defer unlock()

	user, err := c.execute(ctx, op)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			c.clear(ctx, entryID)
		}
		return nil, err
	}
	c.clear(ctx, entryID)
	return user, nil
}

func (c *Coordinator) execute(ctx context.Context, op Op) (*domain.User, error) {
	switch op.Kind {
	case OpAttach:
		return c.attach(ctx, op.UserID, op.TaskID)
	case OpDetach:
		return nil, c.detach(ctx, op.UserID, op.TaskID)
	case OpReassign:
		return c.reassign(ctx, op.TaskID, op.OldUserID, op.NewUserID)
	case OpBulkAttach:
		return nil, c.bulkAttach(ctx, op.UserID, op.TaskIDs)
	case OpDetachAll:
		return nil, c.detachAll(ctx, op.UserID)
	default:
		return nil, fmt.Errorf("unsupported relation op %q", op.Kind)
	}
}

func (c *Coordinator) attach(ctx context.Context, userID, taskID string) (*domain.User, error) {
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.attachOne(ctx, user, taskID); err != nil {
		return nil, err
	}
	return user, nil
}

// attachOne points one task at the resolved user. The task's current owner is
// read first and its pending entry removed before the additive writes, so the
// task never sits in two pendingTasks lists, however stale the caller's view.
func (c *Coordinator) attachOne(ctx context.Context, user *domain.User, taskID string) error {
	task, err := c.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.AssignedUser != "" && task.AssignedUser != user.ID {
		if err := c.users.RemovePendingTask(ctx, task.AssignedUser, taskID); err != nil {
			return err
		}
		c.invalidate(ctx, []string{task.AssignedUser}, nil)
	}
	if err := c.users.AddPendingTask(ctx, user.ID, taskID); err != nil {
		return err
	}
	if err := c.tasks.SetAssignment(ctx, taskID, user.ID, user.Name); err != nil {
		return err
	}
	c.invalidate(ctx, []string{user.ID}, []string{taskID})
	return nil
}

func (c *Coordinator) detach(ctx context.Context, userID, taskID string) error {
	if userID == "" {
		return nil
	}
	// Set removal first: an interruption here leaves the task pointing at a
	// user whose list lacks it, which a retry of the same call repairs.
	if err := c.users.RemovePendingTask(ctx, userID, taskID); err != nil {
		return err
	}
	if err := c.tasks.ClearAssignment(ctx, taskID, userID); err != nil {
		return err
	}
	c.invalidate(ctx, []string{userID}, []string{taskID})
	return nil
}

func (c *Coordinator) reassign(ctx context.Context, taskID, oldUserID, newUserID string) (*domain.User, error) {
	if oldUserID == newUserID {
		return nil, nil
	}
	if err := c.detach(ctx, oldUserID, taskID); err != nil {
		return nil, err
	}
	if newUserID == "" {
		return nil, nil
	}
	return c.attach(ctx, newUserID, taskID)
}

func (c *Coordinator) bulkAttach(ctx context.Context, userID string, taskIDs []string) error {
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	for _, taskID := range dedupe(taskIDs) {
		if err := c.attachOne(ctx, user, taskID); err != nil {
			if domain.IsDomainError(err, domain.ErrCodeNotFound) {
				c.logger.Warn("skipping unknown task during bulk attach",
					zap.String("task_id", taskID),
					zap.String("user_id", userID))
				continue
			}
			return err
		}
	}
	return nil
}

func (c *Coordinator) detachAll(ctx context.Context, userID string) error {
	ids, err := c.tasks.DetachAllFrom(ctx, userID)
	if err != nil {
		return err
	}
	c.invalidate(ctx, []string{userID}, ids)
	return nil
}

func (c *Coordinator) record(ctx context.Context, op Op) string {
	if c.journal == nil {
		return ""
	}
	id, err := c.journal.Record(ctx, op)
	if err != nil {
		c.logger.Warn("failed to journal relation op", zap.String("kind", op.Kind), zap.Error(err))
		return ""
	}
	return id
}

func (c *Coordinator) clear(ctx context.Context, entryID string) {
	if c.journal == nil || entryID == "" {
		return
	}
	if err := c.journal.Clear(ctx, entryID); err != nil {
		c.logger.Warn("failed to clear journaled relation op", zap.String("entry_id", entryID), zap.Error(err))
	}
}

func (c *Coordinator) invalidate(ctx context.Context, userIDs, taskIDs []string) {
	if c.cache == nil {
		return
	}
	if len(userIDs) > 0 {
		if err := c.cache.Invalidate(ctx, repository.CollectionUsers, userIDs...); err != nil {
			c.logger.Warn("user cache invalidation failed", zap.Error(err))
		}
	}
	if len(taskIDs) > 0 {
		if err := c.cache.Invalidate(ctx, repository.CollectionTasks, taskIDs...); err != nil {
			c.logger.Warn("task cache invalidation failed", zap.Error(err))
		}
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
