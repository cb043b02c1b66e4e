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

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation of UserStore.
// A unique index over the email field enforces the uniqueness contract.
func NewUserRepository(pool *pgxpool.Pool) repository.UserStore {
	return &userRepository{pool: pool}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT doc, version FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT doc, version FROM users WHERE doc->>'email' = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *userRepository) List(ctx context.Context, q repository.Query) ([]domain.User, error) {
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
		`SELECT doc, version FROM users WHERE %s %s LIMIT $%d OFFSET $%d`,
		where, orderBy, limitArg, skipArg,
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *userRepository) Count(ctx context.Context, conds []repository.Condition) (int64, error) {
	args := make([]interface{}, 0, len(conds))
	where, err := buildWhere(conds, &args)
	if err != nil {
		return 0, err
	}

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM users WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, domain.ErrInvalidPayload
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

	doc, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}

	const query = `INSERT INTO users (id, doc) VALUES ($1, $2) RETURNING version`
	if err := r.pool.QueryRow(ctx, query, user.ID, doc).Scan(&user.Version); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidPayload
	}
	if user.PendingTasks == nil {
		user.PendingTasks = []string{}
	}

	doc, err := json.Marshal(user)
	if err != nil {
		return err
	}

	const query = `
	UPDATE users
	SET doc = $2, version = version + 1, updated_at = NOW()
	WHERE id = $1 AND version = $3
	RETURNING version
	`
	if err := r.pool.QueryRow(ctx, query, user.ID, doc, user.Version).Scan(&user.Version); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missOrConflict(ctx, user.ID)
		}
		return err
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) AddPendingTask(ctx context.Context, userID, taskID string) error {
	// The containment guard makes the append idempotent: re-adding an id
	// already in the set matches zero rows.
	const query = `
	UPDATE users
	SET doc = jsonb_set(doc, '{pendingTasks}', COALESCE(doc->'pendingTasks', '[]'::jsonb) || to_jsonb($2::text)),
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND NOT (COALESCE(doc->'pendingTasks', '[]'::jsonb) @> to_jsonb($2::text))
	`
	tag, err := r.pool.Exec(ctx, query, userID, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) RemovePendingTask(ctx context.Context, userID, taskID string) error {
	const query = `
	UPDATE users
	SET doc = jsonb_set(doc, '{pendingTasks}', COALESCE(doc->'pendingTasks', '[]'::jsonb) - $2::text),
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1
	`
	// Removing from a missing user is a no-op by contract.
	_, err := r.pool.Exec(ctx, query, userID, taskID)
	return err
}

func (r *userRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return domain.ErrVersionConflict
	}
	return domain.ErrUserNotFound
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	var user domain.User
	if err := json.Unmarshal(doc, &user); err != nil {
		return nil, err
	}
	user.Version = version
	return &user, nil
}
