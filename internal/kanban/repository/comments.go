package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
)

type CommentRepository struct {
	db *sql.DB
}

func NewCommentRepository(db *sql.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

const commentColumns = `id, task_id, author_id, body, created_at, updated_at`

func scanComment(row rowScanner) (*domain.Comment, error) {
	var c domain.Comment
	if err := row.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Add stores the comment and records a commented activity with it.
func (r *CommentRepository) Add(ctx context.Context, boardID string, c *domain.Comment) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
insert into task_comments (id, task_id, author_id, body)
values ($1, $2, $3, $4)
returning created_at, updated_at`, c.ID, c.TaskID, c.AuthorID, c.Body).Scan(&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			if postgres.ForeignKeyViolation(err) {
				return domain.ErrTaskNotFound
			}
			return fmt.Errorf("insert comment: %w", err)
		}
		return insertActivity(ctx, tx, domain.Activity{
			TaskID:      c.TaskID,
			BoardID:     boardID,
			ActorID:     c.AuthorID,
			Type:        domain.ActivityCommented,
			Description: excerpt(c.Body, 80),
			After:       snapshot(map[string]any{"commentId": c.ID}),
		})
	})
}

func (r *CommentRepository) Get(ctx context.Context, id string) (*domain.Comment, error) {
	if !validID(id) {
		return nil, domain.ErrCommentNotFound
	}
	c, err := scanComment(r.db.QueryRowContext(ctx, `select `+commentColumns+` from task_comments where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

// List returns a task's comments oldest first.
func (r *CommentRepository) List(ctx context.Context, taskID string) ([]domain.Comment, error) {
	out := []domain.Comment{}
	if !validID(taskID) {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`select `+commentColumns+` from task_comments where task_id = $1 order by created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrCommentNotFound
	}
	res, err := r.db.ExecContext(ctx, `delete from task_comments where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return expectOne(res, domain.ErrCommentNotFound)
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
