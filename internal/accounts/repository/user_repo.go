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
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/staffboard/staffboard-backend/internal/storage/postgres"
)

const userColumns = `id, name, email, password_hash, role, phone, department, company_name,
	employee_id, client_id, is_verified, account_status, id_assigned, decline_reason,
	last_login_at, created_at, updated_at`

// UserRepository handles PostgreSQL operations for accounts
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		role       string
		status     string
		employeeID sql.NullString
		clientID   sql.NullString
		lastLogin  sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Phone, &u.Department, &u.CompanyName,
		&employeeID, &clientID, &u.IsVerified, &status, &u.IDAssigned, &u.DeclineReason,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = permissions.Role(role)
	u.AccountStatus = domain.AccountStatus(status)
	if employeeID.Valid {
		u.EmployeeID = &employeeID.String
	}
	if clientID.Valid {
		u.ClientID = &clientID.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// mapWriteError translates constraint violations into domain errors.
func mapWriteError(err error) error {
	if constraint, ok := postgres.UniqueViolation(err); ok {
		switch constraint {
		case "users_email_key":
			return domain.ErrEmailTaken
		case "users_employee_id_key", "users_client_id_key":
			return domain.ErrIdentifierTaken
		}
	}
	if postgres.ForeignKeyViolation(err) {
		return domain.ErrHasDependents
	}
	return err
}

// Create inserts a verified user and enqueues notes in the same transaction.
func (r *UserRepository) Create(ctx context.Context, u *domain.User, notes ...notify.Notification) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}

	const q = `
insert into users (id, name, email, password_hash, role, phone, department, company_name,
	employee_id, client_id, is_verified, account_status, id_assigned)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
returning created_at, updated_at`

	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, q,
			u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Phone, u.Department, u.CompanyName,
			u.EmployeeID, u.ClientID, u.IsVerified, string(u.AccountStatus), u.IDAssigned,
		).Scan(&u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert user: %w", mapWriteError(err))
		}
		return notify.Enqueue(ctx, tx, notes...)
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}
	u, err := scanUser(r.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `select exists(select 1 from users where email = $1)`, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// Approvers returns approved admin and hr accounts, who are told about new
// registrations.
func (r *UserRepository) Approvers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`select `+userColumns+` from users where role in ('admin', 'hr') and account_status = 'approved' order by created_at`)
	if err != nil {
		return nil, fmt.Errorf("list approvers: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approver: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"name":       "name",
	"email":      "email",
	"role":       "role",
}

func (r *UserRepository) List(ctx context.Context, f domain.UserFilter) (*domain.UserPage, error) {
	where := []string{"true"}
	args := []any{}
	idx := 1

	if f.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", idx))
		args = append(args, string(f.Role))
		idx++
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("account_status = $%d", idx))
		args = append(args, string(f.Status))
		idx++
	}
	if len(f.OnlyRoles) > 0 {
		roles := make([]string, len(f.OnlyRoles))
		for i, r := range f.OnlyRoles {
			roles[i] = string(r)
		}
		where = append(where, fmt.Sprintf("role = any($%d)", idx))
		args = append(args, pq.Array(roles))
		idx++
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, fmt.Sprintf(
			"(name ilike $%d or email ilike $%d or coalesce(employee_id, '') ilike $%d or coalesce(client_id, '') ilike $%d)",
			idx, idx, idx, idx))
		args = append(args, "%"+s+"%")
		idx++
	}

	order := "created_at desc"
	if f.Sort != "" {
		col, desc := strings.TrimPrefix(f.Sort, "-"), strings.HasPrefix(f.Sort, "-")
		if c, ok := sortColumns[col]; ok {
			order = c + " asc"
			if desc {
				order = c + " desc"
			}
		}
	}

	q := fmt.Sprintf(`select `+userColumns+`, count(*) over() from users where %s order by %s, id limit $%d offset $%d`,
		strings.Join(where, " and "), order, idx, idx+1)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	page := &domain.UserPage{Users: []domain.User{}, Page: f.Page, Limit: f.Limit}
	for rows.Next() {
		var total int
		u, err := scanUser(scanWithTotal{rows: rows, total: &total})
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		page.Total = total
		page.Users = append(page.Users, *u)
	}
	return page, rows.Err()
}

// scanWithTotal appends the window count column to a user scan.
type scanWithTotal struct {
	rows  *sql.Rows
	total *int
}

func (s scanWithTotal) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.total)...)
}

// UpdateStatus locks the user row, checks the transition, applies it and
// enqueues notes, all in one transaction.
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, upd domain.StatusUpdate, notes ...notify.Notification) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}

	var out *domain.User
	err := postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `select account_status from users where id = $1 for update`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if len(upd.From) > 0 && !slices.Contains(upd.From, domain.AccountStatus(current)) {
			return domain.ErrInvalidTransition
		}

		const q = `
update users set
	account_status = $2,
	employee_id    = coalesce($3, employee_id),
	client_id      = coalesce($4, client_id),
	id_assigned    = coalesce($5, id_assigned),
	decline_reason = coalesce($6, decline_reason),
	updated_at     = now()
where id = $1
returning ` + userColumns

		u, err := scanUser(tx.QueryRowContext(ctx, q, id, string(upd.Status), upd.EmployeeID, upd.ClientID, upd.IDAssigned, upd.DeclineReason))
		if err != nil {
			return fmt.Errorf("update user status: %w", mapWriteError(err))
		}
		if err := notify.Enqueue(ctx, tx, notes...); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrUserNotFound
	}

	set := []string{}
	args := []any{}
	idx := 1
	add := func(col string, v any) {
		set = append(set, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, v)
		idx++
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Phone != nil {
		add("phone", *p.Phone)
	}
	if p.Department != nil {
		add("department", *p.Department)
	}
	if p.CompanyName != nil {
		add("company_name", *p.CompanyName)
	}
	if p.Role != nil {
		add("role", string(*p.Role))
	}
	if p.EmployeeID != nil {
		add("employee_id", nullIfEmpty(*p.EmployeeID))
	}
	if p.ClientID != nil {
		add("client_id", nullIfEmpty(*p.ClientID))
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	q := fmt.Sprintf(`update users set %s, updated_at = now() where id = $%d returning `+userColumns,
		strings.Join(set, ", "), idx)
	args = append(args, id)

	u, err := scanUser(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", mapWriteError(err))
	}
	return u, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, `update users set password_hash = $2, updated_at = now() where id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res)
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `update users set last_login_at = $2 where id = $1`, id, at); err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrUserNotFound
	}
	res, err := r.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", mapWriteError(err))
	}
	return expectOne(res)
}

func (r *UserRepository) Stats(ctx context.Context) (*domain.Stats, error) {
	rows, err := r.db.QueryContext(ctx, `select role, account_status, count(*) from users group by role, account_status`)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	defer rows.Close()

	st := &domain.Stats{
		ByRole:   map[permissions.Role]int{},
		ByStatus: map[domain.AccountStatus]int{},
		Matrix:   map[permissions.Role]map[domain.AccountStatus]int{},
	}
	for rows.Next() {
		var (
			role, status string
			n            int
		)
		if err := rows.Scan(&role, &status, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		r, s := permissions.Role(role), domain.AccountStatus(status)
		st.Total += n
		st.ByRole[r] += n
		st.ByStatus[s] += n
		if st.Matrix[r] == nil {
			st.Matrix[r] = map[domain.AccountStatus]int{}
		}
		st.Matrix[r][s] = n
	}
	return st, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
