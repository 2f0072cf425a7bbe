package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
)

// ActivityRepository reads the task audit trail. Writes happen inside the
// transactions that change the tasks.
type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, task_id, board_id, actor_id, type, description, before, after, created_at`

func (r *ActivityRepository) ListByTask(ctx context.Context, taskID string, page domain.Page) ([]domain.Activity, error) {
	if !validID(taskID) {
		return []domain.Activity{}, nil
	}
	return r.list(ctx, `task_id = $1`, taskID, page)
}

func (r *ActivityRepository) ListByBoard(ctx context.Context, boardID string, page domain.Page) ([]domain.Activity, error) {
	if !validID(boardID) {
		return []domain.Activity{}, nil
	}
	return r.list(ctx, `board_id = $1`, boardID, page)
}

// list returns newest first.
func (r *ActivityRepository) list(ctx context.Context, where, id string, page domain.Page) ([]domain.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `
select `+activityColumns+`
from task_activities
where `+where+`
order by created_at desc, id
limit $2 offset $3`, id, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		var (
			a             domain.Activity
			taskID        sql.NullString
			kind          string
			before, after []byte
		)
		if err := rows.Scan(&a.ID, &taskID, &a.BoardID, &a.ActorID, &kind, &a.Description,
			&before, &after, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.TaskID = taskID.String
		a.Type = domain.ActivityType(kind)
		if len(before) > 0 {
			a.Before = before
		}
		if len(after) > 0 {
			a.After = after
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
