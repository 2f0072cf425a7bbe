package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
)

// createAttempts bounds retries when two creators race for the same slot.
const createAttempts = 3

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskAccessJoin = `
	, p.owner_id, b.member_ids || p.member_ids, b.admin_ids, b.archived, b.title
from tasks t
join boards b on b.id = t.board_id
join projects p on p.id = t.project_id
where t.id = $1`

// loadTask reads a task with its access context; lock adds FOR UPDATE on the
// task row.
func loadTask(ctx context.Context, q postgres.Queryer, id string, lock bool) (*domain.Task, domain.TaskAccess, string, error) {
	var (
		access     domain.TaskAccess
		boardTitle string
	)
	if !validID(id) {
		return nil, access, "", domain.ErrTaskNotFound
	}
	query := `select ` + taskColumns + taskAccessJoin
	if lock {
		query += ` for update of t`
	}

	row := q.QueryRowContext(ctx, query, id)
	t, err := scanTask(scanFunc(func(dest ...any) error {
		dest = append(dest, &access.Board.ProjectOwnerID, pq.Array(&access.Board.MemberIDs),
			pq.Array(&access.Board.AdminIDs), &access.Board.Archived, &boardTitle)
		return row.Scan(dest...)
	}))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, access, "", domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, access, "", fmt.Errorf("load task: %w", err)
	}
	access.Board.BoardID = t.BoardID
	access.Board.ProjectID = t.ProjectID
	access.TaskID = t.ID
	access.ColumnID = t.ColumnID
	access.CreatorID = t.CreatorID
	access.AssigneeIDs = t.AssigneeIDs
	return t, access, boardTitle, nil
}

// scanFunc lets a scanner append trailing columns to an existing scan.
type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

// Load returns a task and what permission checks need to know about it.
func (r *TaskRepository) Load(ctx context.Context, id string) (*domain.Task, domain.TaskAccess, error) {
	t, a, _, err := loadTask(ctx, r.db, id, false)
	return t, a, err
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*domain.Task, error) {
	t, _, _, err := loadTask(ctx, r.db, id, false)
	return t, err
}

// Create appends a task to the bottom of its column. The column row lock
// serialises creators; the unique (column_id, position) constraint backs it
// and a conflict is retried with a fresh read.
func (r *TaskRepository) Create(ctx context.Context, in domain.NewTask, table domain.StatusTable) (*domain.Task, error) {
	if !validID(in.ColumnID) {
		return nil, domain.ErrColumnNotFound
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityMedium
	}
	var created *domain.Task

	err := postgres.WithRetryTx(ctx, r.db, createAttempts, func(tx *sql.Tx) error {
		var (
			col        domain.Column
			projectID  string
			boardTitle string
			archived   bool
			wip        sql.NullInt64
			mapped     sql.NullString
		)
		err := tx.QueryRowContext(ctx, `
select c.id, c.board_id, c.title, c.wip_limit, c.status_key, b.project_id, b.title, b.archived
from board_columns c
join boards b on b.id = c.board_id
where c.id = $1
for update of c`, in.ColumnID).Scan(&col.ID, &col.BoardID, &col.Title, &wip, &mapped, &projectID, &boardTitle, &archived)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrColumnNotFound
		}
		if err != nil {
			return fmt.Errorf("lock column: %w", err)
		}
		if archived {
			return domain.ErrBoardArchived
		}
		if mapped.Valid {
			s := domain.TaskStatus(mapped.String)
			col.MappedStatus = &s
		}

		var active, next int
		if err := tx.QueryRowContext(ctx, `
select count(*) filter (where status <> 'archived'), coalesce(max(position), -1) + 1
from tasks where column_id = $1`, in.ColumnID).Scan(&active, &next); err != nil {
			return fmt.Errorf("next task position: %w", err)
		}
		if wip.Valid && active >= int(wip.Int64) {
			return domain.ErrWIPLimitReached
		}

		status, ok := table.Resolve(col)
		if !ok {
			status = domain.StatusTodo
		}
		t := &domain.Task{
			ID:             uuid.New().String(),
			ProjectID:      projectID,
			BoardID:        col.BoardID,
			ColumnID:       col.ID,
			Title:          in.Title,
			Description:    in.Description,
			Position:       next,
			Status:         status,
			Priority:       in.Priority,
			AssigneeIDs:    nonNil(in.AssigneeIDs),
			CreatorID:      in.CreatorID,
			DueDate:        in.DueDate,
			StartDate:      in.StartDate,
			Tags:           nonNil(in.Tags),
			EstimatedHours: in.EstimatedHours,
		}
		err = tx.QueryRowContext(ctx, `
insert into tasks (id, project_id, board_id, column_id, title, description, position, status, priority,
	assignee_ids, creator_id, due_date, start_date, tags, estimated_hours, completed_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	case when $8 = 'done' then now() end)
returning completed_at, created_at, updated_at`,
			t.ID, t.ProjectID, t.BoardID, t.ColumnID, t.Title, t.Description, t.Position, string(t.Status),
			string(t.Priority), pq.Array(t.AssigneeIDs), t.CreatorID, t.DueDate, t.StartDate,
			pq.Array(t.Tags), t.EstimatedHours,
		).Scan(nullTimeDest(&t.CompletedAt), &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}

		if err := insertActivity(ctx, tx, domain.Activity{
			TaskID:      t.ID,
			BoardID:     t.BoardID,
			ActorID:     in.CreatorID,
			Type:        domain.ActivityCreated,
			Description: fmt.Sprintf("created in %s", col.Title),
			After:       snapshot(t),
		}); err != nil {
			return err
		}
		if err := enqueueTaskNotes(ctx, tx, taskNote{
			Kind: notify.KindTaskAssigned, Task: t, BoardTitle: boardTitle,
			ActorID: in.CreatorID, Recipients: t.AssigneeIDs,
		}); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Move relocates a task within or across columns of one board, in a single
// transaction.
func (r *TaskRepository) Move(ctx context.Context, req domain.MoveRequest, table domain.StatusTable, authorize domain.Authorizer) (*domain.MoveResult, error) {
	if !validID(req.SourceColumnID) || !validID(req.DestColumnID) {
		return nil, domain.ErrColumnNotFound
	}
	var result *domain.MoveResult

	err := postgres.WithRetryTx(ctx, r.db, createAttempts, func(tx *sql.Tx) error {
		before, access, boardTitle, err := loadTask(ctx, tx, req.TaskID, true)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(access); err != nil {
				return err
			}
		}
		if access.Board.Archived {
			return domain.ErrBoardArchived
		}

		cols, err := lockColumns(ctx, tx, req.SourceColumnID, req.DestColumnID)
		if err != nil {
			return err
		}
		src, ok := cols[req.SourceColumnID]
		if !ok {
			return domain.ErrColumnNotFound
		}
		dst, ok := cols[req.DestColumnID]
		if !ok {
			return domain.ErrColumnNotFound
		}
		if src.BoardID != dst.BoardID || dst.BoardID != before.BoardID {
			return domain.ErrCrossBoardMove
		}
		if before.ColumnID != src.ID {
			return domain.ErrStaleSource
		}
		same := src.ID == dst.ID

		var others, active int
		if err := tx.QueryRowContext(ctx, `
select count(*), count(*) filter (where status <> 'archived')
from tasks where column_id = $1 and id <> $2`, dst.ID, before.ID).Scan(&others, &active); err != nil {
			return fmt.Errorf("count destination: %w", err)
		}
		if !same && dst.WIPLimit != nil && active >= *dst.WIPLimit {
			return domain.ErrWIPLimitReached
		}
		index := min(max(req.Index, 0), others)

		if _, err := tx.ExecContext(ctx, `
update tasks set position = position - 1
where column_id = $1 and position > $2`, src.ID, before.Position); err != nil {
			return fmt.Errorf("close source gap: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
update tasks set position = position + 1
where column_id = $1 and position >= $2 and id <> $3`, dst.ID, index, before.ID); err != nil {
			return fmt.Errorf("open destination slot: %w", err)
		}

		status := before.Status
		if !same && before.Status != domain.StatusArchived {
			if s, ok := table.Resolve(dst); ok {
				status = s
			}
		}
		after, err := scanTask(tx.QueryRowContext(ctx, `
update tasks t
set column_id = $2, position = $3, status = $4,
	completed_at = case when $4 = 'done' then coalesce(t.completed_at, now()) end,
	updated_at = now()
where t.id = $1
returning `+taskColumns, before.ID, dst.ID, index, string(status)))
		if err != nil {
			return fmt.Errorf("move task: %w", err)
		}

		moved := domain.Activity{
			TaskID:  after.ID,
			BoardID: after.BoardID,
			ActorID: req.ActorID,
			Type:    domain.ActivityMoved,
			Before:  snapshot(placement{ColumnID: src.ID, Position: before.Position, Status: before.Status}),
			After:   snapshot(placement{ColumnID: dst.ID, Position: after.Position, Status: after.Status}),
		}
		if same {
			moved.Description = fmt.Sprintf("reordered in %s", dst.Title)
		} else {
			moved.Description = fmt.Sprintf("moved from %s to %s", src.Title, dst.Title)
		}
		if err := insertActivity(ctx, tx, moved); err != nil {
			return err
		}
		changed := after.Status != before.Status
		if changed {
			if err := insertActivity(ctx, tx, statusActivity(after, req.ActorID, before.Status)); err != nil {
				return err
			}
		}
		if !same {
			if err := enqueueTaskNotes(ctx, tx, taskNote{
				Kind: notify.KindTaskMoved, Task: after, BoardTitle: boardTitle,
				ActorID: req.ActorID, Recipients: after.AssigneeIDs,
				Extra: map[string]any{"from_column": src.Title, "to_column": dst.Title},
			}); err != nil {
				return err
			}
		}

		result = &domain.MoveResult{
			Task:          *after,
			FromColumnID:  src.ID,
			ToColumnID:    dst.ID,
			PrevStatus:    before.Status,
			StatusChanged: changed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type placement struct {
	ColumnID string            `json:"columnId"`
	Position int               `json:"position"`
	Status   domain.TaskStatus `json:"status"`
}

func statusActivity(t *domain.Task, actorID string, prev domain.TaskStatus) domain.Activity {
	return domain.Activity{
		TaskID:      t.ID,
		BoardID:     t.BoardID,
		ActorID:     actorID,
		Type:        domain.ActivityStatusChanged,
		Description: fmt.Sprintf("status changed from %s to %s", prev, t.Status),
		Before:      snapshot(map[string]any{"status": prev}),
		After:       snapshot(map[string]any{"status": t.Status}),
	}
}

// lockColumns locks the given columns in id order so concurrent moves between
// the same pair cannot deadlock.
func lockColumns(ctx context.Context, tx *sql.Tx, ids ...string) (map[string]domain.Column, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	ids = slices.Compact(sorted)
	rows, err := tx.QueryContext(ctx, `
select c.id::text, c.board_id::text, c.title, c.position, c.wip_limit, c.status_key
from board_columns c
where c.id = any($1::uuid[])
order by c.id
for update`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lock columns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Column, len(ids))
	for rows.Next() {
		var (
			c      domain.Column
			wip    sql.NullInt64
			status sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Title, &c.Position, &wip, &status); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if wip.Valid {
			n := int(wip.Int64)
			c.WIPLimit = &n
		}
		if status.Valid {
			s := domain.TaskStatus(status.String)
			c.MappedStatus = &s
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

// Update applies a patch. An explicit status change is recorded separately
// from the field edit.
func (r *TaskRepository) Update(ctx context.Context, id, actorID string, p domain.TaskPatch, authorize domain.Authorizer) (*domain.Task, error) {
	var updated *domain.Task
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		before, access, _, err := loadTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(access); err != nil {
				return err
			}
		}

		var (
			set  []string
			args = []any{id}
		)
		add := func(col string, v any) {
			args = append(args, v)
			set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		if p.Title != nil {
			add("title", *p.Title)
		}
		if p.Description != nil {
			add("description", *p.Description)
		}
		if p.Priority != nil {
			add("priority", string(*p.Priority))
		}
		if p.Status != nil && *p.Status != before.Status {
			add("status", string(*p.Status))
			if *p.Status == domain.StatusDone {
				set = append(set, "completed_at = now()")
			} else {
				set = append(set, "completed_at = null")
			}
		}
		if p.DueDate != nil {
			add("due_date", *p.DueDate)
		}
		if p.StartDate != nil {
			add("start_date", *p.StartDate)
		}
		if p.CompletionPercentage != nil {
			add("completion_percentage", *p.CompletionPercentage)
		}
		if p.Tags != nil {
			add("tags", pq.Array(p.Tags))
		}
		if p.EstimatedHours != nil {
			add("estimated_hours", *p.EstimatedHours)
		}
		if len(set) == 0 {
			updated = before
			return nil
		}

		after, err := scanTask(tx.QueryRowContext(ctx,
			`update tasks t set `+strings.Join(set, ", ")+`, updated_at = now() where t.id = $1 returning `+taskColumns,
			args...))
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if err := insertActivity(ctx, tx, domain.Activity{
			TaskID:      after.ID,
			BoardID:     after.BoardID,
			ActorID:     actorID,
			Type:        domain.ActivityUpdated,
			Description: "updated " + strings.Join(changedFields(set), ", "),
			Before:      snapshot(before),
			After:       snapshot(after),
		}); err != nil {
			return err
		}
		if after.Status != before.Status {
			if err := insertActivity(ctx, tx, statusActivity(after, actorID, before.Status)); err != nil {
				return err
			}
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func changedFields(set []string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		out = append(out, strings.TrimSpace(strings.SplitN(s, "=", 2)[0]))
	}
	return out
}

// Assign adds assignees and notifies the new ones.
func (r *TaskRepository) Assign(ctx context.Context, id, actorID string, userIDs []string, authorize domain.Authorizer) (*domain.Task, error) {
	return r.setAssignees(ctx, id, actorID, authorize, func(cur []string) ([]string, []string) {
		next := slices.Clone(cur)
		var added []string
		for _, u := range userIDs {
			if !slices.Contains(next, u) {
				next = append(next, u)
				added = append(added, u)
			}
		}
		return next, added
	}, domain.ActivityAssigned)
}

func (r *TaskRepository) Unassign(ctx context.Context, id, actorID string, userIDs []string, authorize domain.Authorizer) (*domain.Task, error) {
	return r.setAssignees(ctx, id, actorID, authorize, func(cur []string) ([]string, []string) {
		next := []string{}
		var removed []string
		for _, u := range cur {
			if slices.Contains(userIDs, u) {
				removed = append(removed, u)
				continue
			}
			next = append(next, u)
		}
		return next, removed
	}, domain.ActivityUnassigned)
}

func (r *TaskRepository) setAssignees(ctx context.Context, id, actorID string, authorize domain.Authorizer,
	apply func(cur []string) (next, changed []string), kind domain.ActivityType) (*domain.Task, error) {
	var updated *domain.Task
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		before, access, boardTitle, err := loadTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(access); err != nil {
				return err
			}
		}
		next, changed := apply(before.AssigneeIDs)
		if len(changed) == 0 {
			updated = before
			return nil
		}

		after, err := scanTask(tx.QueryRowContext(ctx,
			`update tasks t set assignee_ids = $2, updated_at = now() where t.id = $1 returning `+taskColumns,
			id, pq.Array(next)))
		if err != nil {
			return fmt.Errorf("update assignees: %w", err)
		}
		if err := insertActivity(ctx, tx, domain.Activity{
			TaskID:      after.ID,
			BoardID:     after.BoardID,
			ActorID:     actorID,
			Type:        kind,
			Description: fmt.Sprintf("%s %d user(s)", kind, len(changed)),
			Before:      snapshot(map[string]any{"assigneeIds": before.AssigneeIDs}),
			After:       snapshot(map[string]any{"assigneeIds": after.AssigneeIDs}),
		}); err != nil {
			return err
		}
		if kind == domain.ActivityAssigned {
			if err := enqueueTaskNotes(ctx, tx, taskNote{
				Kind: notify.KindTaskAssigned, Task: after, BoardTitle: boardTitle,
				ActorID: actorID, Recipients: changed,
			}); err != nil {
				return err
			}
		}
		updated = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Archive marks the task archived. It keeps its column slot.
func (r *TaskRepository) Archive(ctx context.Context, id, actorID string, authorize domain.Authorizer) (*domain.Task, error) {
	var archived *domain.Task
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		before, access, _, err := loadTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(access); err != nil {
				return err
			}
		}
		if before.Status == domain.StatusArchived {
			archived = before
			return nil
		}
		after, err := scanTask(tx.QueryRowContext(ctx,
			`update tasks t set status = 'archived', updated_at = now() where t.id = $1 returning `+taskColumns, id))
		if err != nil {
			return fmt.Errorf("archive task: %w", err)
		}
		if err := insertActivity(ctx, tx, domain.Activity{
			TaskID:  after.ID,
			BoardID: after.BoardID,
			ActorID: actorID,
			Type:    domain.ActivityArchived,
			Before:  snapshot(map[string]any{"status": before.Status}),
			After:   snapshot(map[string]any{"status": after.Status}),
		}); err != nil {
			return err
		}
		archived = after
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// Delete removes the task and closes the gap in its column. Comments cascade;
// the task's activity stays on the board with task_id cleared, followed by a
// deleted record carrying the final snapshot.
func (r *TaskRepository) Delete(ctx context.Context, id, actorID string, authorize domain.Authorizer) (*domain.Task, error) {
	var deleted *domain.Task
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		t, access, _, err := loadTask(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(access); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `delete from tasks where id = $1`, id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
update tasks set position = position - 1
where column_id = $1 and position > $2`, t.ColumnID, t.Position); err != nil {
			return fmt.Errorf("compact column: %w", err)
		}
		if err := insertActivity(ctx, tx, domain.Activity{
			BoardID:     t.BoardID,
			ActorID:     actorID,
			Type:        domain.ActivityDeleted,
			Description: t.Title,
			Before: snapshot(map[string]any{
				"taskId":      t.ID,
				"title":       t.Title,
				"columnId":    t.ColumnID,
				"position":    t.Position,
				"status":      t.Status,
				"assigneeIds": t.AssigneeIDs,
			}),
		}); err != nil {
			return err
		}
		deleted = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// List returns tasks matching f, ordered by column then position.
func (r *TaskRepository) List(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ColumnID != "" {
		if !validID(f.ColumnID) {
			return []domain.Task{}, nil
		}
		add("t.column_id = $%d", f.ColumnID)
	}
	if f.BoardID != "" {
		if !validID(f.BoardID) {
			return []domain.Task{}, nil
		}
		add("t.board_id = $%d", f.BoardID)
	}
	if f.AssigneeID != "" {
		add("$%d = any(t.assignee_ids)", f.AssigneeID)
	}
	if f.Status != "" {
		add("t.status = $%d", string(f.Status))
	} else if !f.IncludeArchived {
		where = append(where, "t.status <> 'archived'")
	}
	if f.Priority != "" {
		add("t.priority = $%d", string(f.Priority))
	}

	q := `select ` + taskColumns + ` from tasks t join board_columns c on c.id = t.column_id`
	if len(where) > 0 {
		q += ` where ` + strings.Join(where, " and ")
	}
	q += ` order by c.position, t.position`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	out := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type nullTimeScanner struct {
	dst **time.Time
}

func nullTimeDest(dst **time.Time) *nullTimeScanner {
	return &nullTimeScanner{dst: dst}
}

func (n *nullTimeScanner) Scan(src any) error {
	var t sql.NullTime
	if err := t.Scan(src); err != nil {
		return err
	}
	*n.dst = timePtr(t)
	return nil
}
