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

// DefaultColumns are created with a board when requested.
var DefaultColumns = []string{"To Do", "In Progress", "Review", "Done"}

type BoardRepository struct {
	db *sql.DB
}

func NewBoardRepository(db *sql.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

func (r *BoardRepository) Create(ctx context.Context, in domain.NewBoard) (*domain.Board, error) {
	if !validID(in.ProjectID) {
		return nil, domain.ErrProjectNotFound
	}
	id := uuid.New().String()

	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
insert into boards (id, project_id, title, description, member_ids, admin_ids, created_by)
values ($1, $2, $3, $4, $5, $6, $7)`,
			id, in.ProjectID, in.Title, in.Description,
			pq.Array(nonNil(in.MemberIDs)), pq.Array(nonNil(in.AdminIDs)), in.CreatedBy)
		if err != nil {
			if postgres.ForeignKeyViolation(err) {
				return domain.ErrProjectNotFound
			}
			return fmt.Errorf("insert board: %w", err)
		}
		if !in.DefaultColumns {
			return nil
		}
		for i, title := range DefaultColumns {
			if _, err := tx.ExecContext(ctx, `
insert into board_columns (id, board_id, title, position)
values ($1, $2, $3, $4)`, uuid.New().String(), id, title, i); err != nil {
				return fmt.Errorf("insert default column: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *BoardRepository) Get(ctx context.Context, id string) (*domain.Board, error) {
	return getBoard(ctx, r.db, id)
}

func getBoard(ctx context.Context, q postgres.Queryer, id string) (*domain.Board, error) {
	if !validID(id) {
		return nil, domain.ErrBoardNotFound
	}
	b, err := scanBoard(q.QueryRowContext(ctx, `select `+boardColumns+` from boards b where b.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get board: %w", err)
	}
	return b, nil
}

const boardAccessQuery = `
select b.id, b.project_id, p.owner_id, b.member_ids || p.member_ids, b.admin_ids, b.archived
from boards b
join projects p on p.id = b.project_id
where b.id = $1`

// Access loads what permission checks need to know about a board. Project
// members count as board members.
func (r *BoardRepository) Access(ctx context.Context, id string) (domain.BoardAccess, error) {
	var a domain.BoardAccess
	if !validID(id) {
		return a, domain.ErrBoardNotFound
	}
	err := r.db.QueryRowContext(ctx, boardAccessQuery, id).
		Scan(&a.BoardID, &a.ProjectID, &a.ProjectOwnerID, pq.Array(&a.MemberIDs), pq.Array(&a.AdminIDs), &a.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.ErrBoardNotFound
	}
	if err != nil {
		return a, fmt.Errorf("board access: %w", err)
	}
	return a, nil
}

func (r *BoardRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Board, error) {
	out := []domain.Board{}
	if !validID(projectID) {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`select `+boardColumns+` from boards b where b.project_id = $1 order by b.created_at, b.id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// View returns the board with its columns and their tasks, read from one
// snapshot. Archived tasks keep their slot in taskIds but are only listed
// when includeArchived is set.
func (r *BoardRepository) View(ctx context.Context, id string, includeArchived bool) (*domain.BoardView, error) {
	if !validID(id) {
		return nil, domain.ErrBoardNotFound
	}
	var view *domain.BoardView
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := postgres.WithTxOptions(ctx, r.db, opts, func(tx *sql.Tx) error {
		b, err := getBoard(ctx, tx, id)
		if err != nil {
			return err
		}
		view = &domain.BoardView{Board: *b, Columns: []domain.ColumnView{}}

		cols, err := listColumns(ctx, tx, id)
		if err != nil {
			return err
		}
		index := make(map[string]int, len(cols))
		for i, c := range cols {
			index[c.ID] = i
			view.Columns = append(view.Columns, domain.ColumnView{Column: c, Tasks: []domain.Task{}})
		}

		q := `select ` + taskColumns + ` from tasks t where t.board_id = $1`
		if !includeArchived {
			q += ` and t.status <> 'archived'`
		}
		q += ` order by t.column_id, t.position`
		rows, err := tx.QueryContext(ctx, q, id)
		if err != nil {
			return fmt.Errorf("board tasks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return fmt.Errorf("scan task: %w", err)
			}
			if i, ok := index[t.ColumnID]; ok {
				view.Columns[i].Tasks = append(view.Columns[i].Tasks, *t)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (r *BoardRepository) Update(ctx context.Context, id string, p domain.BoardPatch) (*domain.Board, error) {
	if !validID(id) {
		return nil, domain.ErrBoardNotFound
	}
	var (
		set  []string
		args = []any{id}
	)
	if p.Title != nil {
		args = append(args, *p.Title)
		set = append(set, fmt.Sprintf("title = $%d", len(args)))
	}
	if p.Description != nil {
		args = append(args, *p.Description)
		set = append(set, fmt.Sprintf("description = $%d", len(args)))
	}
	if len(set) == 0 {
		return r.Get(ctx, id)
	}
	res, err := r.db.ExecContext(ctx,
		`update boards set `+strings.Join(set, ", ")+`, updated_at = now() where id = $1`, args...)
	if err != nil {
		return nil, fmt.Errorf("update board: %w", err)
	}
	if err := expectOne(res, domain.ErrBoardNotFound); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *BoardRepository) SetArchived(ctx context.Context, id string, archived bool) (*domain.Board, error) {
	if !validID(id) {
		return nil, domain.ErrBoardNotFound
	}
	res, err := r.db.ExecContext(ctx, `update boards set archived = $2, updated_at = now() where id = $1`, id, archived)
	if err != nil {
		return nil, fmt.Errorf("archive board: %w", err)
	}
	if err := expectOne(res, domain.ErrBoardNotFound); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// AddMember adds userID to the board, and to its admins when admin is set.
func (r *BoardRepository) AddMember(ctx context.Context, id, userID string, admin bool) (*domain.Board, error) {
	set := `member_ids = array_append(array_remove(member_ids, $2), $2)`
	if admin {
		set += `, admin_ids = array_append(array_remove(admin_ids, $2), $2)`
	}
	return r.editMembers(ctx, id, set, userID)
}

func (r *BoardRepository) RemoveMember(ctx context.Context, id, userID string) (*domain.Board, error) {
	return r.editMembers(ctx, id, `member_ids = array_remove(member_ids, $2), admin_ids = array_remove(admin_ids, $2)`, userID)
}

func (r *BoardRepository) editMembers(ctx context.Context, id, set, userID string) (*domain.Board, error) {
	if !validID(id) {
		return nil, domain.ErrBoardNotFound
	}
	res, err := r.db.ExecContext(ctx, `update boards set `+set+`, updated_at = now() where id = $1`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("update board members: %w", err)
	}
	if err := expectOne(res, domain.ErrBoardNotFound); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *BoardRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrBoardNotFound
	}
	res, err := r.db.ExecContext(ctx, `delete from boards where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return expectOne(res, domain.ErrBoardNotFound)
}
