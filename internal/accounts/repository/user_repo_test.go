package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "6f1c1c7e-8a52-4a8e-9d7a-0d2b7f4b9a11"

var userCols = []string{
	"id", "name", "email", "password_hash", "role", "phone", "department", "company_name",
	"employee_id", "client_id", "is_verified", "account_status", "id_assigned", "decline_reason",
	"last_login_at", "created_at", "updated_at",
}

func userRow(status string, clientID any) []driver.Value {
	now := time.Now()
	return []driver.Value{
		userID, "Jo", "jo@x.io", "hash", "client", "", "", "Acme",
		nil, clientID, true, status, clientID != nil, "",
		nil, now, now,
	}
}

func TestUpdateStatus_ApproveWritesOutboxInSameTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	clientID := "CLIAB123456"
	assigned := true

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`select account_status from users where id = $1 for update`)).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"account_status"}).AddRow("pending"))
	mock.ExpectQuery(`update users set`).
		WithArgs(userID, "approved", nil, &clientID, &assigned, nil).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("approved", clientID)...))
	mock.ExpectExec(`insert into notification_outbox`).
		WithArgs(sqlmock.AnyArg(), "account_approved", "jo@x.io", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewUserRepository(db)
	u, err := repo.UpdateStatus(context.Background(), userID, domain.StatusUpdate{
		Status:     domain.StatusApproved,
		From:       []domain.AccountStatus{domain.StatusPending},
		ClientID:   &clientID,
		IDAssigned: &assigned,
	}, notify.Notification{Kind: notify.KindAccountApproved, Recipient: "jo@x.io"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, u.AccountStatus)
	assert.Equal(t, permissions.RoleClient, u.Role)
	require.NotNil(t, u.ClientID)
	assert.Equal(t, clientID, *u.ClientID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_RejectedTransitionRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`select account_status from users`).
		WillReturnRows(sqlmock.NewRows([]string{"account_status"}).AddRow("approved"))
	mock.ExpectRollback()

	_, err = NewUserRepository(db).UpdateStatus(context.Background(), userID, domain.StatusUpdate{
		Status: domain.StatusDeclined,
		From:   []domain.AccountStatus{domain.StatusPending},
	}, notify.Notification{Kind: notify.KindAccountDeclined, Recipient: "jo@x.io"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_OutboxFailureRollsBackApproval(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`select account_status from users`).
		WillReturnRows(sqlmock.NewRows([]string{"account_status"}).AddRow("pending"))
	mock.ExpectQuery(`update users set`).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userRow("approved", "C-1")...))
	mock.ExpectExec(`insert into notification_outbox`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = NewUserRepository(db).UpdateStatus(context.Background(), userID, domain.StatusUpdate{
		Status: domain.StatusApproved,
	}, notify.Notification{Kind: notify.KindAccountApproved, Recipient: "jo@x.io"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_DuplicateIdentifier(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`select account_status from users`).
		WillReturnRows(sqlmock.NewRows([]string{"account_status"}).AddRow("pending"))
	mock.ExpectQuery(`update users set`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_client_id_key"})
	mock.ExpectRollback()

	_, err = NewUserRepository(db).UpdateStatus(context.Background(), userID, domain.StatusUpdate{Status: domain.StatusApproved})
	assert.ErrorIs(t, err, domain.ErrIdentifierTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_EmailTaken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	mock.ExpectRollback()

	err = NewUserRepository(db).Create(context.Background(), &domain.User{Email: "jo@x.io", Role: permissions.RoleEmployee})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUserRepository(db)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	mock.ExpectQuery(`from users where id = \$1`).WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(userCols))
	_, err = repo.GetByID(context.Background(), userID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_FiltersAndPaging(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := append(append([]string{}, userCols...), "count")
	mock.ExpectQuery(`where true and account_status = \$1 and role = any\(\$2\) and \(name ilike \$3.*order by name desc, id limit \$4 offset \$5`).
		WithArgs("pending", sqlmock.AnyArg(), "%jo%", 10, 10).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(append(userRow("pending", nil), 11)...))

	page, err := NewUserRepository(db).List(context.Background(), domain.UserFilter{
		Status:    domain.StatusPending,
		OnlyRoles: []permissions.Role{permissions.RoleEmployee, permissions.RoleClient},
		Search:    "jo",
		Page:      2,
		Limit:     10,
		Sort:      "-name",
	})
	require.NoError(t, err)
	assert.Equal(t, 11, page.Total)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "jo@x.io", page.Users[0].Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_OwnerOfProjects(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`delete from users`).WithArgs(userID).
		WillReturnError(&pgconn.PgError{Code: "23503"})
	err = NewUserRepository(db).Delete(context.Background(), userID)
	assert.ErrorIs(t, err, domain.ErrHasDependents)

	mock.ExpectExec(`delete from users`).WithArgs(userID).WillReturnResult(sqlmock.NewResult(0, 0))
	err = NewUserRepository(db).Delete(context.Background(), userID)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`group by role, account_status`).
		WillReturnRows(sqlmock.NewRows([]string{"role", "account_status", "count"}).
			AddRow("client", "pending", 2).
			AddRow("client", "approved", 3).
			AddRow("admin", "approved", 1))

	st, err := NewUserRepository(db).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, st.Total)
	assert.Equal(t, 5, st.ByRole[permissions.RoleClient])
	assert.Equal(t, 4, st.ByStatus[domain.StatusApproved])
	assert.Equal(t, 2, st.Matrix[permissions.RoleClient][domain.StatusPending])
	require.NoError(t, mock.ExpectationsWereMet())
}
