package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
)

// ProjectRepository provides persistence operations for projects
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, in domain.NewProject) (*domain.Project, error) {
	id := uuid.New().String()
	if in.Status == "" {
		in.Status = domain.ProjectPlanning
	}
	members := nonNil(in.MemberIDs)

	_, err := r.db.ExecContext(ctx, `
insert into projects (id, name, key, description, status, owner_id, member_ids, start_date, end_date)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, in.Name, in.Key, in.Description, string(in.Status), in.OwnerID, pq.Array(members), in.StartDate, in.EndDate)
	if err != nil {
		if c, ok := postgres.UniqueViolation(err); ok && c == "projects_key_key" {
			return nil, domain.ErrProjectKeyTaken
		}
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*domain.Project, error) {
	if !validID(id) {
		return nil, domain.ErrProjectNotFound
	}
	p, err := scanProject(r.db.QueryRowContext(ctx, `select `+projectColumns+` from projects p where p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepository) Access(ctx context.Context, id string) (domain.ProjectAccess, error) {
	a := domain.ProjectAccess{ProjectID: id}
	if !validID(id) {
		return a, domain.ErrProjectNotFound
	}
	err := r.db.QueryRowContext(ctx, `select owner_id, member_ids from projects where id = $1`, id).
		Scan(&a.OwnerID, pq.Array(&a.MemberIDs))
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.ErrProjectNotFound
	}
	if err != nil {
		return a, fmt.Errorf("project access: %w", err)
	}
	return a, nil
}

// List returns every project when all is set, otherwise the ones userID owns
// or is a member of.
func (r *ProjectRepository) List(ctx context.Context, userID string, all bool, status domain.ProjectStatus) ([]domain.Project, error) {
	var (
		where []string
		args  []any
	)
	if !all {
		args = append(args, userID)
		where = append(where, fmt.Sprintf("(p.owner_id::text = $%d or $%d = any(p.member_ids))", len(args), len(args)))
	}
	if status != "" {
		args = append(args, string(status))
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}
	q := `select ` + projectColumns + ` from projects p`
	if len(where) > 0 {
		q += ` where ` + strings.Join(where, " and ")
	}
	q += ` order by p.created_at desc, p.id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *ProjectRepository) Update(ctx context.Context, id string, p domain.ProjectPatch) (*domain.Project, error) {
	if !validID(id) {
		return nil, domain.ErrProjectNotFound
	}
	var (
		set  []string
		args = []any{id}
	)
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.StartDate != nil {
		add("start_date", *p.StartDate)
	}
	if p.EndDate != nil {
		add("end_date", *p.EndDate)
	}
	if len(set) == 0 {
		return r.Get(ctx, id)
	}

	res, err := r.db.ExecContext(ctx,
		`update projects set `+strings.Join(set, ", ")+`, updated_at = now() where id = $1`, args...)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	if err := expectOne(res, domain.ErrProjectNotFound); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// AddMember is idempotent.
func (r *ProjectRepository) AddMember(ctx context.Context, id, userID string) (*domain.Project, error) {
	return r.editMembers(ctx, id, `array_append(array_remove(member_ids, $2), $2)`, userID)
}

func (r *ProjectRepository) RemoveMember(ctx context.Context, id, userID string) (*domain.Project, error) {
	return r.editMembers(ctx, id, `array_remove(member_ids, $2)`, userID)
}

func (r *ProjectRepository) editMembers(ctx context.Context, id, expr, userID string) (*domain.Project, error) {
	if !validID(id) {
		return nil, domain.ErrProjectNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`update projects set member_ids = `+expr+`, updated_at = now() where id = $1`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("update project members: %w", err)
	}
	if err := expectOne(res, domain.ErrProjectNotFound); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes the project; boards, columns, tasks and their history cascade.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrProjectNotFound
	}
	res, err := r.db.ExecContext(ctx, `delete from projects where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return expectOne(res, domain.ErrProjectNotFound)
}
