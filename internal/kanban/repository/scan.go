package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
)

// Derived arrays are read back ordered by position; nothing stores them.
const (
	projectColumns = `p.id, p.name, p.key, p.description, p.status, p.owner_id, p.member_ids,
	array(select b.id::text from boards b where b.project_id = p.id order by b.created_at, b.id),
	p.start_date, p.end_date, p.created_at, p.updated_at`

	boardColumns = `b.id, b.project_id, b.title, b.description,
	array(select c.id::text from board_columns c where c.board_id = b.id order by c.position),
	b.member_ids, b.admin_ids, b.archived, b.created_by, b.created_at, b.updated_at`

	columnColumns = `c.id, c.board_id, c.title, c.position,
	array(select t.id::text from tasks t where t.column_id = c.id order by t.position),
	c.wip_limit, c.status_key, c.color, c.created_at, c.updated_at`

	taskColumns = `t.id, t.project_id, t.board_id, t.column_id, t.title, t.description, t.position,
	t.status, t.priority, t.assignee_ids, t.creator_id, t.due_date, t.start_date,
	t.completion_percentage, t.tags, t.estimated_hours, t.completed_at, t.created_at, t.updated_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p          domain.Project
		status     string
		start, end sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Key, &p.Description, &status, &p.OwnerID,
		pq.Array(&p.MemberIDs), pq.Array(&p.BoardIDs), &start, &end, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.ProjectStatus(status)
	p.StartDate, p.EndDate = timePtr(start), timePtr(end)
	p.MemberIDs, p.BoardIDs = nonNil(p.MemberIDs), nonNil(p.BoardIDs)
	return &p, nil
}

func scanBoard(row rowScanner) (*domain.Board, error) {
	var b domain.Board
	err := row.Scan(&b.ID, &b.ProjectID, &b.Title, &b.Description, pq.Array(&b.ColumnOrder),
		pq.Array(&b.MemberIDs), pq.Array(&b.AdminIDs), &b.Archived, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.ColumnOrder, b.MemberIDs, b.AdminIDs = nonNil(b.ColumnOrder), nonNil(b.MemberIDs), nonNil(b.AdminIDs)
	return &b, nil
}

func scanColumn(row rowScanner) (*domain.Column, error) {
	var (
		c      domain.Column
		wip    sql.NullInt64
		status sql.NullString
	)
	err := row.Scan(&c.ID, &c.BoardID, &c.Title, &c.Position, pq.Array(&c.TaskIDs),
		&wip, &status, &c.Color, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if wip.Valid {
		n := int(wip.Int64)
		c.WIPLimit = &n
	}
	if status.Valid {
		s := domain.TaskStatus(status.String)
		c.MappedStatus = &s
	}
	c.TaskIDs = nonNil(c.TaskIDs)
	return &c, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                    domain.Task
		status, priority     string
		due, start, complete sql.NullTime
		hours                sql.NullFloat64
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.BoardID, &t.ColumnID, &t.Title, &t.Description, &t.Position,
		&status, &priority, pq.Array(&t.AssigneeIDs), &t.CreatorID, &due, &start,
		&t.CompletionPercentage, pq.Array(&t.Tags), &hours, &complete, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TaskStatus(status)
	t.Priority = domain.Priority(priority)
	t.DueDate, t.StartDate, t.CompletedAt = timePtr(due), timePtr(start), timePtr(complete)
	if hours.Valid {
		h := hours.Float64
		t.EstimatedHours = &h
	}
	t.AssigneeIDs, t.Tags = nonNil(t.AssigneeIDs), nonNil(t.Tags)
	return &t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func statusKey(s *domain.TaskStatus) any {
	if s == nil || *s == "" {
		return nil
	}
	return string(*s)
}

// insertActivity appends one audit record through q.
func insertActivity(ctx context.Context, q postgres.Queryer, a domain.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := q.ExecContext(ctx, `
insert into task_activities (id, task_id, board_id, actor_id, type, description, before, after)
values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, nullableID(a.TaskID), a.BoardID, a.ActorID, string(a.Type), a.Description, jsonArg(a.Before), jsonArg(a.After))
	if err != nil {
		return fmt.Errorf("insert %s activity: %w", a.Type, err)
	}
	return nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func snapshot(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
