// Package memory provides an in-memory implementation of the store
// interfaces. It backs the package tests; persistence lives in
// repository/postgres.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
)

// Store holds both collections behind one lock.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
	users map[string]*domain.User

	// Fail, when set, is consulted with the operation name before every
	// mutating call so tests can inject failures mid-sequence.
	Fail func(op string) error
}

func New() *Store {
	return &Store{
		tasks: make(map[string]*domain.Task),
		users: make(map[string]*domain.User),
	}
}

// Tasks returns the store's TaskStore view.
func (s *Store) Tasks() repository.TaskStore { return &taskStore{s} }

// Users returns the store's UserStore view.
func (s *Store) Users() repository.UserStore { return &userStore{s} }

func (s *Store) failFor(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

type taskStore struct{ s *Store }

func (t *taskStore) GetByID(_ context.Context, id string) (*domain.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	task, ok := t.s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return copyTask(task), nil
}

func (t *taskStore) List(_ context.Context, q repository.Query) ([]domain.Task, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var matched []*domain.Task
	for _, task := range t.s.tasks {
		ok, err := matches(task, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, task)
		}
	}
	sortEntities(matched, q.Sort)

	limit := q.Limit
	if limit <= 0 || limit > repository.DefaultLimit {
		limit = repository.DefaultLimit
	}

	var out []domain.Task
	for i := q.Skip; i < len(matched) && len(out) < limit; i++ {
		out = append(out, *copyTask(matched[i]))
	}
	return out, nil
}

func (t *taskStore) Count(_ context.Context, conds []repository.Condition) (int64, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var count int64
	for _, task := range t.s.tasks {
		ok, err := matches(task, conds)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (t *taskStore) Create(_ context.Context, task *domain.Task) (*domain.Task, error) {
	if err := t.s.failFor("task.create"); err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.DateCreated.IsZero() {
		task.DateCreated = time.Now().UTC()
	}
	task.Version = 1
	t.s.tasks[task.ID] = copyTask(task)
	return task, nil
}

func (t *taskStore) Update(_ context.Context, task *domain.Task) error {
	if err := t.s.failFor("task.update"); err != nil {
		return err
	}
	if task == nil {
		return domain.ErrInvalidPayload
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	stored, ok := t.s.tasks[task.ID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	if stored.Version != task.Version {
		return domain.ErrVersionConflict
	}
	task.Version++
	t.s.tasks[task.ID] = copyTask(task)
	return nil
}

func (t *taskStore) Delete(_ context.Context, id string) error {
	if err := t.s.failFor("task.delete"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if _, ok := t.s.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(t.s.tasks, id)
	return nil
}

func (t *taskStore) SetAssignment(_ context.Context, taskID, userID, userName string) error {
	if err := t.s.failFor("task.set_assignment"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	task, ok := t.s.tasks[taskID]
	if !ok {
		return domain.ErrTaskNotFound
	}
	task.AssignedUser = userID
	task.AssignedUserName = userName
	task.Version++
	return nil
}

func (t *taskStore) ClearAssignment(_ context.Context, taskID, ownerID string) error {
	if err := t.s.failFor("task.clear_assignment"); err != nil {
		return err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	task, ok := t.s.tasks[taskID]
	if !ok || task.AssignedUser != ownerID {
		return nil
	}
	task.AssignedUser = ""
	task.AssignedUserName = domain.UnassignedName
	task.Version++
	return nil
}

func (t *taskStore) DetachAllFrom(_ context.Context, userID string) ([]string, error) {
	if err := t.s.failFor("task.detach_all"); err != nil {
		return nil, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	var ids []string
	for id, task := range t.s.tasks {
		if task.AssignedUser == userID {
			task.AssignedUser = ""
			task.AssignedUserName = domain.UnassignedName
			task.Version++
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type userStore struct{ s *Store }

func (u *userStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(user), nil
}

func (u *userStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()
	for _, user := range u.s.users {
		if user.Email == email {
			return copyUser(user), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (u *userStore) List(_ context.Context, q repository.Query) ([]domain.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	var matched []*domain.User
	for _, user := range u.s.users {
		ok, err := matches(user, q.Where)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, user)
		}
	}
	sortEntities(matched, q.Sort)

	limit := q.Limit
	if limit <= 0 || limit > repository.DefaultLimit {
		limit = repository.DefaultLimit
	}

	var out []domain.User
	for i := q.Skip; i < len(matched) && len(out) < limit; i++ {
		out = append(out, *copyUser(matched[i]))
	}
	return out, nil
}

func (u *userStore) Count(_ context.Context, conds []repository.Condition) (int64, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	var count int64
	for _, user := range u.s.users {
		ok, err := matches(user, conds)
		if err != nil {
			return 0, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

func (u *userStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if err := u.s.failFor("user.create"); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidPayload
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for _, existing := range u.s.users {
		if existing.Email == user.Email {
			return nil, domain.ErrEmailTaken
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.DateCreated.IsZero() {
		user.DateCreated = time.Now().UTC()
	}
	if user.PendingTasks == nil {
		user.PendingTasks = []string{}
	}
	user.Version = 1
	u.s.users[user.ID] = copyUser(user)
	return user, nil
}

func (u *userStore) Update(_ context.Context, user *domain.User) error {
	if err := u.s.failFor("user.update"); err != nil {
		return err
	}
	if user == nil {
		return domain.ErrInvalidPayload
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	stored, ok := u.s.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if stored.Version != user.Version {
		return domain.ErrVersionConflict
	}
	for id, existing := range u.s.users {
		if id != user.ID && existing.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	if user.PendingTasks == nil {
		user.PendingTasks = []string{}
	}
	user.Version++
	u.s.users[user.ID] = copyUser(user)
	return nil
}

func (u *userStore) Delete(_ context.Context, id string) error {
	if err := u.s.failFor("user.delete"); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(u.s.users, id)
	return nil
}

func (u *userStore) AddPendingTask(_ context.Context, userID, taskID string) error {
	if err := u.s.failFor("user.add_pending"); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	for _, id := range user.PendingTasks {
		if id == taskID {
			return nil
		}
	}
	user.PendingTasks = append(user.PendingTasks, taskID)
	user.Version++
	return nil
}

func (u *userStore) RemovePendingTask(_ context.Context, userID, taskID string) error {
	if err := u.s.failFor("user.remove_pending"); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	user, ok := u.s.users[userID]
	if !ok {
		return nil
	}
	kept := user.PendingTasks[:0]
	for _, id := range user.PendingTasks {
		if id != taskID {
			kept = append(kept, id)
		}
	}
	user.PendingTasks = kept
	user.Version++
	return nil
}

func copyTask(t *domain.Task) *domain.Task {
	c := *t
	if t.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(t.Extra))
		for k, v := range t.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

func copyUser(u *domain.User) *domain.User {
	c := *u
	c.PendingTasks = append([]string(nil), u.PendingTasks...)
	return &c
}

// matches evaluates the conditions against the entity's JSON document, the
// same view the SQL translation queries.
func matches(entity interface{}, conds []repository.Condition) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}
	doc, err := toDoc(entity)
	if err != nil {
		return false, err
	}
	for _, cond := range conds {
		if !matchCondition(doc[cond.Field], cond) {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(docValue interface{}, cond repository.Condition) bool {
	if cond.Op == repository.OpIn {
		values, ok := cond.Value.([]interface{})
		if !ok {
			return false
		}
		for _, v := range values {
			if scalarEqual(docValue, v) {
				return true
			}
		}
		return false
	}

	switch cond.Op {
	case repository.OpEq:
		return scalarEqual(docValue, cond.Value)
	case repository.OpNe:
		return !scalarEqual(docValue, cond.Value)
	case repository.OpGt:
		return scalarCompare(docValue, cond.Value) > 0
	case repository.OpGte:
		return scalarCompare(docValue, cond.Value) >= 0
	case repository.OpLt:
		return scalarCompare(docValue, cond.Value) < 0
	case repository.OpLte:
		return scalarCompare(docValue, cond.Value) <= 0
	default:
		return false
	}
}

func scalarEqual(a, b interface{}) bool {
	return scalarCompare(a, b) == 0
}

// scalarCompare orders two document scalars: numerically when both are
// numbers, by text otherwise. Incomparable pairs order as unequal.
func scalarCompare(a, b interface{}) int {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := textOf(a), textOf(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func textOf(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func toDoc(entity interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]interface{})
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func sortEntities[T any](entities []*T, spec []repository.SortField) {
	if len(spec) == 0 {
		return
	}
	docs := make(map[*T]map[string]interface{}, len(entities))
	for _, e := range entities {
		doc, err := toDoc(e)
		if err != nil {
			doc = map[string]interface{}{}
		}
		docs[e] = doc
	}
	sort.SliceStable(entities, func(i, j int) bool {
		for _, s := range spec {
			cmp := scalarCompare(docs[entities[i]][s.Field], docs[entities[j]][s.Field])
			if cmp == 0 {
				continue
			}
			if s.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
