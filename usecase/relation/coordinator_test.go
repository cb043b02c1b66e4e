package relation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
	"github.com/taskboard/backend/repository/memory"
)

func listAll() repository.Query {
	return repository.Query{Limit: repository.DefaultLimit}
}

func newFixture(t *testing.T) (*memory.Store, *Coordinator) {
	t.Helper()
	store := memory.New()
	coordinator := New(store.Tasks(), store.Users(), nil, nil, nil)
	return store, coordinator
}

func seedUser(t *testing.T, store *memory.Store, name, email string) *domain.User {
	t.Helper()
	user, err := store.Users().Create(context.Background(), &domain.User{Name: name, Email: email})
	require.NoError(t, err)
	return user
}

func seedTask(t *testing.T, store *memory.Store, name string) *domain.Task {
	t.Helper()
	task, err := store.Tasks().Create(context.Background(), &domain.Task{
		Name:             name,
		Deadline:         time.Now().Add(24 * time.Hour),
		AssignedUserName: domain.UnassignedName,
	})
	require.NoError(t, err)
	return task
}

// requireConsistent asserts the bidirectional reference invariant: every
// owned task appears in its owner's pending list, and every pending entry
// points back at a task owned by that user.
func requireConsistent(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()

	tasks, err := store.Tasks().List(ctx, listAll())
	require.NoError(t, err)
	users, err := store.Users().List(ctx, listAll())
	require.NoError(t, err)

	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, task := range tasks {
		if task.AssignedUser == "" {
			assert.Equal(t, domain.UnassignedName, task.AssignedUserName, "task %s", task.ID)
			continue
		}
		owner, ok := byID[task.AssignedUser]
		require.True(t, ok, "task %s points at missing user %s", task.ID, task.AssignedUser)
		assert.True(t, owner.HasPendingTask(task.ID), "task %s missing from owner's pending list", task.ID)
	}

	for _, user := range users {
		for _, taskID := range user.PendingTasks {
			task, err := store.Tasks().GetByID(ctx, taskID)
			require.NoError(t, err, "user %s lists missing task %s", user.ID, taskID)
			assert.Equal(t, user.ID, task.AssignedUser, "pending task %s not owned by user %s", taskID, user.ID)
		}
	}
}

func TestAttach(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	user := seedUser(t, store, "Ada", "ada@example.com")
	task := seedTask(t, store, "write report")

	owner, err := c.Attach(ctx, user.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner.ID)

	got, err := store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.AssignedUser)
	assert.Equal(t, "Ada", got.AssignedUserName)
	requireConsistent(t, store)
}

func TestAttachIsIdempotent(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	user := seedUser(t, store, "Ada", "ada@example.com")
	task := seedTask(t, store, "write report")

	_, err := c.Attach(ctx, user.ID, task.ID)
	require.NoError(t, err)
	_, err = c.Attach(ctx, user.ID, task.ID)
	require.NoError(t, err)

	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, got.PendingTasks)
	requireConsistent(t, store)
}

func TestAttachStealsFromPriorOwner(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	bob := seedUser(t, store, "Bob", "bob@example.com")
	task := seedTask(t, store, "contested")

	_, err := c.Attach(ctx, alice.ID, task.ID)
	require.NoError(t, err)

	// Attaching to a second user must pull the task out of the first user's
	// pending list: a task has exactly one owner.
	_, err = c.Attach(ctx, bob.ID, task.ID)
	require.NoError(t, err)

	gotAlice, err := store.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, gotAlice.PendingTasks)

	gotBob, err := store.Users().GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, gotBob.PendingTasks)

	got, err := store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.AssignedUser)
	requireConsistent(t, store)
}

func TestAttachUnknownTask(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	user := seedUser(t, store, "Ada", "ada@example.com")

	_, err := c.Attach(ctx, user.ID, "missing")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))

	// The failed attach left no dangling pending entry behind.
	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PendingTasks)
}

func TestAttachUnknownUser(t *testing.T) {
	store, c := newFixture(t)
	task := seedTask(t, store, "write report")

	_, err := c.Attach(context.Background(), "missing", task.ID)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestDetach(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	user := seedUser(t, store, "Ada", "ada@example.com")
	task := seedTask(t, store, "write report")
	_, err := c.Attach(ctx, user.ID, task.ID)
	require.NoError(t, err)

	require.NoError(t, c.Detach(ctx, user.ID, task.ID))

	got, err := store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedUser)
	assert.Equal(t, domain.UnassignedName, got.AssignedUserName)

	// Detaching again changes nothing.
	require.NoError(t, c.Detach(ctx, user.ID, task.ID))
	requireConsistent(t, store)
}

func TestDetachEmptyUserIsNoop(t *testing.T) {
	_, c := newFixture(t)
	require.NoError(t, c.Detach(context.Background(), "", "any"))
}

func TestDetachDoesNotClobberNewOwner(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	bob := seedUser(t, store, "Bob", "bob@example.com")
	task := seedTask(t, store, "write report")

	_, err := c.Attach(ctx, bob.ID, task.ID)
	require.NoError(t, err)

	// A stale detach naming the wrong owner must leave Bob's ownership alone.
	require.NoError(t, c.Detach(ctx, alice.ID, task.ID))

	got, err := store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.AssignedUser)
	requireConsistent(t, store)
}

func TestReassign(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	bob := seedUser(t, store, "Bob", "bob@example.com")
	task := seedTask(t, store, "write report")

	_, err := c.Attach(ctx, alice.ID, task.ID)
	require.NoError(t, err)

	owner, err := c.Reassign(ctx, task.ID, alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, bob.ID, owner.ID)

	gotAlice, err := store.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, gotAlice.PendingTasks)
	requireConsistent(t, store)
}

func TestReassignToUnassigned(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	task := seedTask(t, store, "write report")
	_, err := c.Attach(ctx, alice.ID, task.ID)
	require.NoError(t, err)

	owner, err := c.Reassign(ctx, task.ID, alice.ID, "")
	require.NoError(t, err)
	assert.Nil(t, owner)

	got, err := store.Tasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AssignedUser)
	requireConsistent(t, store)
}

func TestReassignSameOwnerIsNoop(t *testing.T) {
	_, c := newFixture(t)
	owner, err := c.Reassign(context.Background(), "t1", "u1", "u1")
	require.NoError(t, err)
	assert.Nil(t, owner)
}

func TestBulkAttachStealsFromPriorOwner(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	bob := seedUser(t, store, "Bob", "bob@example.com")
	t1 := seedTask(t, store, "one")
	t2 := seedTask(t, store, "two")

	_, err := c.Attach(ctx, alice.ID, t1.ID)
	require.NoError(t, err)

	require.NoError(t, c.BulkAttach(ctx, bob.ID, []string{t1.ID, t2.ID}))

	gotAlice, err := store.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, gotAlice.PendingTasks)

	gotBob, err := store.Users().GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{t1.ID, t2.ID}, gotBob.PendingTasks)
	requireConsistent(t, store)
}

func TestBulkAttachSkipsUnknownTasks(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	user := seedUser(t, store, "Ada", "ada@example.com")
	task := seedTask(t, store, "write report")

	require.NoError(t, c.BulkAttach(ctx, user.ID, []string{task.ID, "missing", task.ID}))

	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, got.PendingTasks)
	requireConsistent(t, store)
}

func TestBulkDetachAll(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	user := seedUser(t, store, "Ada", "ada@example.com")
	t1 := seedTask(t, store, "one")
	t2 := seedTask(t, store, "two")
	require.NoError(t, c.BulkAttach(ctx, user.ID, []string{t1.ID, t2.ID}))

	require.NoError(t, c.BulkDetachAll(ctx, user.ID))

	for _, id := range []string{t1.ID, t2.ID} {
		got, err := store.Tasks().GetByID(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got.AssignedUser)
		assert.Equal(t, domain.UnassignedName, got.AssignedUserName)
	}
}

func TestApplyStaleReassignKeepsOneOwner(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	bob := seedUser(t, store, "Bob", "bob@example.com")
	carol := seedUser(t, store, "Carol", "carol@example.com")
	task := seedTask(t, store, "contested")

	_, err := c.Attach(ctx, alice.ID, task.ID)
	require.NoError(t, err)

	// A reassign alice -> bob is journaled, then the world moves on and
	// carol takes the task before the entry is replayed.
	_, err = c.Reassign(ctx, task.ID, alice.ID, carol.ID)
	require.NoError(t, err)

	op := Op{Kind: OpReassign, TaskID: task.ID, OldUserID: alice.ID, NewUserID: bob.ID}
	require.NoError(t, c.Apply(ctx, op))

	// Whatever owner the replay settles on, the task is in exactly one
	// pending list and both sides of the reference agree.
	gotCarol, err := store.Users().GetByID(ctx, carol.ID)
	require.NoError(t, err)
	assert.Empty(t, gotCarol.PendingTasks)
	requireConsistent(t, store)
}

func TestApplyReplaysInterruptedDetach(t *testing.T) {
	store, c := newFixture(t)
	ctx := context.Background()

	user := seedUser(t, store, "Ada", "ada@example.com")
	task := seedTask(t, store, "write report")
	_, err := c.Attach(ctx, user.ID, task.ID)
	require.NoError(t, err)

	// Fail the task-side write once, as a crash between the two writes would.
	calls := 0
	store.Fail = func(op string) error {
		if op == "task.clear_assignment" && calls == 0 {
			calls++
			return domain.NewError(domain.ErrCodeInternal, "store unavailable")
		}
		return nil
	}

	op := Op{Kind: OpDetach, UserID: user.ID, TaskID: task.ID}
	require.Error(t, c.Apply(ctx, op))

	// Replaying the same op completes the half-finished sequence.
	require.NoError(t, c.Apply(ctx, op))
	requireConsistent(t, store)
}
