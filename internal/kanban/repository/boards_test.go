package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	col0 = "77777777-0000-4000-8000-000000000000"
	col1 = "77777777-0000-4000-8000-000000000001"
	col2 = "77777777-0000-4000-8000-000000000002"
	col3 = "77777777-0000-4000-8000-000000000003"
)

var boardCols = []string{
	"id", "project_id", "title", "description", "column_order",
	"member_ids", "admin_ids", "archived", "created_by", "created_at", "updated_at",
}

var columnCols = []string{
	"id", "board_id", "title", "position", "task_ids", "wip_limit", "status_key", "color", "created_at", "updated_at",
}

func boardRow(order string) []driver.Value {
	now := time.Now()
	return []driver.Value{boardID, projectID, "Sprint 1", "", order, "{}", "{}", false, actorID, now, now}
}

func expectBoardLock(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta(`select archived from boards where id = $1 for update`)).
		WithArgs(boardID).
		WillReturnRows(sqlmock.NewRows([]string{"archived"}).AddRow(false))
}

func expectColumnIDs(mock sqlmock.Sqlmock, ids ...string) {
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	mock.ExpectQuery(`select id::text from board_columns where board_id`).WillReturnRows(rows)
}

func TestReorder_WritesSubmittedOrderInOneStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	order := []string{col3, col1, col0, col2}

	mock.ExpectBegin()
	expectBoardLock(mock)
	expectColumnIDs(mock, col0, col1, col2, col3)
	mock.ExpectExec(`update board_columns c set position = o.ord - 1 .* from unnest\(\$2::uuid\[\]\) with ordinality`).
		WithArgs(boardID, arrayArg(order)).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	// The board read back derives columnOrder from positions.
	mock.ExpectQuery(`from boards b where b.id = \$1`).
		WithArgs(boardID).
		WillReturnRows(sqlmock.NewRows(boardCols).AddRow(boardRow("{" + col3 + "," + col1 + "," + col0 + "," + col2 + "}")...))

	ctx := context.Background()
	require.NoError(t, NewColumnRepository(db).Reorder(ctx, boardID, order))

	b, err := NewBoardRepository(db).Get(ctx, boardID)
	require.NoError(t, err)
	assert.Equal(t, order, b.ColumnOrder)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReorder_RejectsNonPermutations(t *testing.T) {
	cases := map[string][]string{
		"missing column":   {col3, col1, col0},
		"duplicate column": {col3, col1, col0, col0},
		"foreign column":   {col3, col1, col0, taskID},
	}
	for name, order := range cases {
		t.Run(name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectBegin()
			expectBoardLock(mock)
			expectColumnIDs(mock, col0, col1, col2, col3)
			mock.ExpectRollback()

			err = NewColumnRepository(db).Reorder(context.Background(), boardID, order)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestView_NestsColumnsAndTasksFromOneSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	task := func(id, column string, pos int) []driver.Value {
		return []driver.Value{
			id, projectID, boardID, column, "t" + id[len(id)-1:], "", pos,
			"todo", "low", "{}", actorID, nil, nil, 0, "{}", nil, nil, now, now,
		}
	}
	t1 := "88888888-0000-4000-8000-000000000001"
	t2 := "88888888-0000-4000-8000-000000000002"
	t3 := "88888888-0000-4000-8000-000000000003"

	mock.ExpectBegin()
	mock.ExpectQuery(`from boards b where b.id`).
		WillReturnRows(sqlmock.NewRows(boardCols).AddRow(boardRow("{" + col1 + "," + col0 + "}")...))
	mock.ExpectQuery(`from board_columns c where c.board_id = \$1 order by c.position`).
		WithArgs(boardID).
		WillReturnRows(sqlmock.NewRows(columnCols).
			AddRow(col1, boardID, "Doing", 0, "{"+t2+"}", 3, "in-progress", "", now, now).
			AddRow(col0, boardID, "To Do", 1, "{"+t1+","+t3+"}", nil, nil, "", now, now))
	mock.ExpectQuery(`from tasks t where t.board_id = \$1 and t.status <> 'archived' order by t.column_id, t.position`).
		WithArgs(boardID).
		WillReturnRows(sqlmock.NewRows(taskCols).
			AddRow(task(t1, col0, 0)...).
			AddRow(task(t3, col0, 1)...).
			AddRow(task(t2, col1, 0)...))
	mock.ExpectCommit()

	view, err := NewBoardRepository(db).View(context.Background(), boardID, false)
	require.NoError(t, err)

	assert.Equal(t, []string{col1, col0}, view.ColumnOrder)
	require.Len(t, view.Columns, 2)
	assert.Equal(t, col1, view.Columns[0].ID)
	require.NotNil(t, view.Columns[0].WIPLimit)
	assert.Equal(t, 3, *view.Columns[0].WIPLimit)
	assert.Equal(t, domain.StatusInProgress, *view.Columns[0].MappedStatus)

	// Every listed task sits in the column whose taskIds name it.
	for _, c := range view.Columns {
		for _, task := range c.Tasks {
			assert.Equal(t, c.ID, task.ColumnID)
			assert.Contains(t, c.TaskIDs, task.ID)
		}
	}
	assert.Equal(t, []string{t1, t3}, view.Columns[1].TaskIDs)
	assert.Len(t, view.Columns[1].Tasks, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestColumnDelete(t *testing.T) {
	t.Run("refuses a column with tasks", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`select board_id, position from board_columns`).
			WithArgs(col1).
			WillReturnRows(sqlmock.NewRows([]string{"board_id", "position"}).AddRow(boardID, 1))
		expectBoardLock(mock)
		mock.ExpectQuery(`select count\(\*\) from tasks where column_id`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		_, err = NewColumnRepository(db).Delete(context.Background(), col1, false)
		assert.ErrorIs(t, err, domain.ErrColumnNotEmpty)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("force deletes and compacts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`select board_id, position from board_columns`).
			WillReturnRows(sqlmock.NewRows([]string{"board_id", "position"}).AddRow(boardID, 1))
		expectBoardLock(mock)
		mock.ExpectQuery(`select count\(\*\) from tasks`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectExec(regexp.QuoteMeta(`delete from board_columns where id = $1`)).
			WithArgs(col1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`update board_columns set position = position - 1`).
			WithArgs(boardID, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		got, err := NewColumnRepository(db).Delete(context.Background(), col1, true)
		require.NoError(t, err)
		assert.Equal(t, boardID, got)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestColumnCreate_AppendsUnderBoardLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	expectBoardLock(mock)
	mock.ExpectQuery(`select coalesce\(max\(position\), -1\) \+ 1 from board_columns`).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectExec(`insert into board_columns`).
		WithArgs(sqlmock.AnyArg(), boardID, "Blocked", int64(4), nil, nil, "#f00").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`from board_columns c where c.id`).
		WillReturnRows(sqlmock.NewRows(columnCols).AddRow(col0, boardID, "Blocked", 4, "{}", nil, nil, "#f00", now, now))

	c, err := NewColumnRepository(db).Create(context.Background(), domain.NewColumn{BoardID: boardID, Title: "Blocked", Color: "#f00"})
	require.NoError(t, err)
	assert.Equal(t, 4, c.Position)
	assert.Empty(t, c.TaskIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectCreate_DuplicateKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`insert into projects`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "projects_key_key"})

	_, err = NewProjectRepository(db).Create(context.Background(), domain.NewProject{
		Name: "Apollo", Key: "APL", OwnerID: actorID,
	})
	assert.ErrorIs(t, err, domain.ErrProjectKeyTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectList_ScopesToMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`from projects p where \(p.owner_id::text = \$1 or \$1 = any\(p.member_ids\)\) and p.status = \$2`).
		WithArgs(actorID, "active").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "key", "description", "status", "owner_id", "member_ids", "board_ids",
			"start_date", "end_date", "created_at", "updated_at",
		}).AddRow(projectID, "Apollo", "APL", "", "active", actorID, "{}", "{"+boardID+"}", nil, nil, now, now))

	got, err := NewProjectRepository(db).List(context.Background(), actorID, false, domain.ProjectActive)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{boardID}, got[0].BoardIDs)
	assert.Equal(t, []string{}, got[0].MemberIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}
