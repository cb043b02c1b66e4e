package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository/memory"
	"github.com/taskboard/backend/usecase/relation"
)

func newFixture(t *testing.T) (*memory.Store, *UseCase) {
	t.Helper()
	store := memory.New()
	coordinator := relation.New(store.Tasks(), store.Users(), nil, nil, nil)
	uc := New(store.Tasks(), store.Users(), coordinator, nil, nil)
	return store, uc
}

func seedUser(t *testing.T, store *memory.Store, name, email string) *domain.User {
	t.Helper()
	user, err := store.Users().Create(context.Background(), &domain.User{Name: name, Email: email})
	require.NoError(t, err)
	return user
}

func validTask() *domain.Task {
	return &domain.Task{
		Name:     "write report",
		Deadline: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreate(t *testing.T) {
	_, uc := newFixture(t)

	created, err := uc.Create(context.Background(), validTask())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.DateCreated.IsZero())
	assert.Empty(t, created.AssignedUser)
	assert.Equal(t, domain.UnassignedName, created.AssignedUserName)
}

func TestCreateValidation(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	cases := map[string]*domain.Task{
		"nil task":         nil,
		"missing name":     {Deadline: time.Now()},
		"blank name":       {Name: "   ", Deadline: time.Now()},
		"missing deadline": {Name: "write report"},
	}
	for label, task := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := uc.Create(ctx, task)
			require.Error(t, err)
			assert.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
		})
	}
}

func TestCreateWithOwner(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	user := seedUser(t, store, "Ada", "ada@example.com")

	task := validTask()
	task.AssignedUser = user.ID
	created, err := uc.Create(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, "Ada", created.AssignedUserName)

	got, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, got.PendingTasks)
}

func TestCreateWithUnknownOwnerLeavesNoOrphan(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	task := validTask()
	task.AssignedUser = "missing"
	_, err := uc.Create(ctx, task)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))

	// The owner is resolved before anything is written.
	count, err := store.Tasks().Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGet(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	created, err := uc.Create(ctx, validTask())
	require.NoError(t, err)

	got, err := uc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = uc.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestUpdateReassignsOwner(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	bob := seedUser(t, store, "Bob", "bob@example.com")

	task := validTask()
	task.AssignedUser = alice.ID
	created, err := uc.Create(ctx, task)
	require.NoError(t, err)

	patch := validTask()
	patch.AssignedUser = bob.ID
	updated, err := uc.Update(ctx, created.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, "Bob", updated.AssignedUserName)

	gotAlice, err := store.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, gotAlice.PendingTasks)

	gotBob, err := store.Users().GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, gotBob.PendingTasks)
}

func TestUpdateIgnoresCallerSuppliedOwnerName(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")

	task := validTask()
	task.AssignedUser = alice.ID
	created, err := uc.Create(ctx, task)
	require.NoError(t, err)

	patch := validTask()
	patch.AssignedUser = alice.ID
	patch.AssignedUserName = "Impostor"
	updated, err := uc.Update(ctx, created.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.AssignedUserName)

	got, err := store.Tasks().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.AssignedUserName)
}

func TestUpdateUnassigns(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")

	task := validTask()
	task.AssignedUser = alice.ID
	created, err := uc.Create(ctx, task)
	require.NoError(t, err)

	patch := validTask()
	updated, err := uc.Update(ctx, created.ID, patch)
	require.NoError(t, err)
	assert.Empty(t, updated.AssignedUser)
	assert.Equal(t, domain.UnassignedName, updated.AssignedUserName)

	gotAlice, err := store.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, gotAlice.PendingTasks)
}

func TestUpdateMissingTask(t *testing.T) {
	_, uc := newFixture(t)

	_, err := uc.Update(context.Background(), "missing", validTask())
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestUpdatePreservesDateCreated(t *testing.T) {
	_, uc := newFixture(t)
	ctx := context.Background()

	created, err := uc.Create(ctx, validTask())
	require.NoError(t, err)

	patch := validTask()
	patch.DateCreated = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	updated, err := uc.Update(ctx, created.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, created.DateCreated, updated.DateCreated)
}

func TestDeleteDetachesFirst(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	task := validTask()
	task.AssignedUser = alice.ID
	created, err := uc.Create(ctx, task)
	require.NoError(t, err)

	require.NoError(t, uc.Delete(ctx, created.ID))

	_, err = store.Tasks().GetByID(ctx, created.ID)
	require.Error(t, err)

	gotAlice, err := store.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, gotAlice.PendingTasks)
}

func TestDeleteAbortsWhenDetachFails(t *testing.T) {
	store, uc := newFixture(t)
	ctx := context.Background()

	alice := seedUser(t, store, "Alice", "alice@example.com")
	task := validTask()
	task.AssignedUser = alice.ID
	created, err := uc.Create(ctx, task)
	require.NoError(t, err)

	store.Fail = func(op string) error {
		if op == "user.remove_pending" {
			return domain.NewError(domain.ErrCodeInternal, "store unavailable")
		}
		return nil
	}

	require.Error(t, uc.Delete(ctx, created.ID))

	// The failed detach leaves the task in place rather than deleted but
	// still referenced.
	store.Fail = nil
	got, err := store.Tasks().GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.AssignedUser)
}

func TestDeleteMissingTask(t *testing.T) {
	_, uc := newFixture(t)

	err := uc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}
