package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskboard/backend/domain"
	"github.com/taskboard/backend/repository"
)

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository returns a Postgres-backed implementation of TaskStore.
// Tasks live in the "tasks" collection as jsonb documents.
func NewTaskRepository(pool *pgxpool.Pool) repository.TaskStore {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	const query = `SELECT doc, version FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

func (r *taskRepository) List(ctx context.Context, q repository.Query) ([]domain.Task, error) {
	args := make([]interface{}, 0, len(q.Where)+2)
	where, err := buildWhere(q.Where, &args)
	if err != nil {
		return nil, err
	}
	orderBy, err := buildOrderBy(q.Sort)
	if err != nil {
		return nil, err
	}

	args = append(args, clampLimit(q.Limit))
	limitArg := len(args)
	args = append(args, q.Skip)
	skipArg := len(args)

	query := fmt.Sprintf(
		`SELECT doc, version FROM tasks WHERE %s %s LIMIT $%d OFFSET $%d`,
		where, orderBy, limitArg, skipArg,
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Count(ctx context.Context, conds []repository.Condition) (int64, error) {
	args := make([]interface{}, 0, len(conds))
	where, err := buildWhere(conds, &args)
	if err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tasks WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.DateCreated.IsZero() {
		task.DateCreated = time.Now().UTC()
	}

	doc, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	const query = `INSERT INTO tasks (id, doc) VALUES ($1, $2) RETURNING version`
	if err := r.pool.QueryRow(ctx, query, task.ID, doc).Scan(&task.Version); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) Update(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return domain.ErrInvalidPayload
	}

	doc, err := json.Marshal(task)
	if err != nil {
		return err
	}

	const query = `
	UPDATE tasks
	SET doc = $2, version = version + 1, updated_at = NOW()
	WHERE id = $1 AND version = $3
	RETURNING version
	`
	if err := r.pool.QueryRow(ctx, query, task.ID, doc, task.Version).Scan(&task.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, task.ID)
		}
		return err
	}
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM tasks WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) SetAssignment(ctx context.Context, taskID, userID, userName string) error {
	const query = `
	UPDATE tasks
	SET doc = jsonb_set(jsonb_set(doc, '{assignedUser}', to_jsonb($2::text)), '{assignedUserName}', to_jsonb($3::text)),
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, taskID, userID, userName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *taskRepository) ClearAssignment(ctx context.Context, taskID, ownerID string) error {
	const query = `
	UPDATE tasks
	SET doc = jsonb_set(jsonb_set(doc, '{assignedUser}', '""'::jsonb), '{assignedUserName}', to_jsonb($3::text)),
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND doc->>'assignedUser' = $2
	`
	// Zero rows means the task moved on or is gone; clearing stays a no-op.
	_, err := r.pool.Exec(ctx, query, taskID, ownerID, domain.UnassignedName)
	return err
}

func (r *taskRepository) DetachAllFrom(ctx context.Context, userID string) ([]string, error) {
	const query = `
	UPDATE tasks
	SET doc = jsonb_set(jsonb_set(doc, '{assignedUser}', '""'::jsonb), '{assignedUserName}', to_jsonb($2::text)),
		version = version + 1,
		updated_at = NOW()
	WHERE doc->>'assignedUser' = $1
	RETURNING id
	`
	rows, err := r.pool.Query(ctx, query, userID, domain.UnassignedName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *taskRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrVersionConflict
	}
	return domain.ErrTaskNotFound
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	var task domain.Task
	if err := json.Unmarshal(doc, &task); err != nil {
		return nil, err
	}
	task.Version = version
	return &task, nil
}
