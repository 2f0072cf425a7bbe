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

type ColumnRepository struct {
	db *sql.DB
}

func NewColumnRepository(db *sql.DB) *ColumnRepository {
	return &ColumnRepository{db: db}
}

// lockBoard serialises structural changes to a board's columns.
func lockBoard(ctx context.Context, tx *sql.Tx, boardID string) (archived bool, err error) {
	err = tx.QueryRowContext(ctx, `select archived from boards where id = $1 for update`, boardID).Scan(&archived)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrBoardNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock board: %w", err)
	}
	return archived, nil
}

// Create appends the column after the board's last one.
func (r *ColumnRepository) Create(ctx context.Context, in domain.NewColumn) (*domain.Column, error) {
	if !validID(in.BoardID) {
		return nil, domain.ErrBoardNotFound
	}
	id := uuid.New().String()

	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		archived, err := lockBoard(ctx, tx, in.BoardID)
		if err != nil {
			return err
		}
		if archived {
			return domain.ErrBoardArchived
		}
		var next int
		if err := tx.QueryRowContext(ctx,
			`select coalesce(max(position), -1) + 1 from board_columns where board_id = $1`, in.BoardID).Scan(&next); err != nil {
			return fmt.Errorf("next column position: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
insert into board_columns (id, board_id, title, position, wip_limit, status_key, color)
values ($1, $2, $3, $4, $5, $6, $7)`,
			id, in.BoardID, in.Title, next, in.WIPLimit, statusKey(in.MappedStatus), in.Color)
		if err != nil {
			return fmt.Errorf("insert column: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *ColumnRepository) Get(ctx context.Context, id string) (*domain.Column, error) {
	if !validID(id) {
		return nil, domain.ErrColumnNotFound
	}
	c, err := scanColumn(r.db.QueryRowContext(ctx, `select `+columnColumns+` from board_columns c where c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrColumnNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get column: %w", err)
	}
	return c, nil
}

func listColumns(ctx context.Context, q postgres.Queryer, boardID string) ([]domain.Column, error) {
	rows, err := q.QueryContext(ctx,
		`select `+columnColumns+` from board_columns c where c.board_id = $1 order by c.position`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	out := []domain.Column{}
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ColumnRepository) ListByBoard(ctx context.Context, boardID string) ([]domain.Column, error) {
	if !validID(boardID) {
		return []domain.Column{}, nil
	}
	return listColumns(ctx, r.db, boardID)
}

func (r *ColumnRepository) Update(ctx context.Context, id string, p domain.ColumnPatch) (*domain.Column, error) {
	if !validID(id) {
		return nil, domain.ErrColumnNotFound
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
	if p.WIPLimit != nil {
		if *p.WIPLimit <= 0 {
			add("wip_limit", nil)
		} else {
			add("wip_limit", *p.WIPLimit)
		}
	}
	if p.MappedStatus != nil {
		add("status_key", statusKey(p.MappedStatus))
	}
	if p.Color != nil {
		add("color", *p.Color)
	}
	if len(set) == 0 {
		return r.Get(ctx, id)
	}

	res, err := r.db.ExecContext(ctx,
		`update board_columns set `+strings.Join(set, ", ")+`, updated_at = now() where id = $1`, args...)
	if err != nil {
		return nil, fmt.Errorf("update column: %w", err)
	}
	if err := expectOne(res, domain.ErrColumnNotFound); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Delete removes an empty column, or a non-empty one with its tasks when
// force is set, and closes the gap it leaves. It returns the board id.
func (r *ColumnRepository) Delete(ctx context.Context, id string, force bool) (string, error) {
	if !validID(id) {
		return "", domain.ErrColumnNotFound
	}
	var boardID string
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var pos int
		err := tx.QueryRowContext(ctx, `select board_id, position from board_columns where id = $1`, id).Scan(&boardID, &pos)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrColumnNotFound
		}
		if err != nil {
			return fmt.Errorf("load column: %w", err)
		}
		if _, err := lockBoard(ctx, tx, boardID); err != nil {
			return err
		}

		var n int
		if err := tx.QueryRowContext(ctx, `select count(*) from tasks where column_id = $1`, id).Scan(&n); err != nil {
			return fmt.Errorf("count column tasks: %w", err)
		}
		if n > 0 && !force {
			return domain.ErrColumnNotEmpty
		}

		res, err := tx.ExecContext(ctx, `delete from board_columns where id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete column: %w", err)
		}
		if err := expectOne(res, domain.ErrColumnNotFound); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
update board_columns set position = position - 1, updated_at = now()
where board_id = $1 and position > $2`, boardID, pos); err != nil {
			return fmt.Errorf("compact columns: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return boardID, nil
}

// Reorder sets the board's column order to ids, which must be a permutation
// of the board's columns. Positions are rewritten in one statement; the
// deferred unique constraint is checked at commit.
func (r *ColumnRepository) Reorder(ctx context.Context, boardID string, ids []string) error {
	if !validID(boardID) {
		return domain.ErrBoardNotFound
	}
	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := lockBoard(ctx, tx, boardID); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `select id::text from board_columns where board_id = $1`, boardID)
		if err != nil {
			return fmt.Errorf("load columns: %w", err)
		}
		current := map[string]bool{}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan column id: %w", err)
			}
			current[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !isPermutation(current, ids) {
			return domain.ErrInvalidOrder
		}
		if len(ids) == 0 {
			return nil
		}

		res, err := tx.ExecContext(ctx, `
update board_columns c
set position = o.ord - 1, updated_at = now()
from unnest($2::uuid[]) with ordinality as o(id, ord)
where c.id = o.id and c.board_id = $1`, boardID, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("reorder columns: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if int(n) != len(ids) {
			return domain.ErrInvalidOrder
		}
		return nil
	})
}

func isPermutation(current map[string]bool, ids []string) bool {
	if len(ids) != len(current) {
		return false
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !current[id] || seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}
