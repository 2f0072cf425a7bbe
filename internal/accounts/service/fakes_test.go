package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/accounts/repository"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memOutbox is an in-memory outbox usable both as the service's Outbox and as
// the dispatcher's OutboxStore.
type memOutbox struct {
	mu   sync.Mutex
	rows []notify.Notification
}

func (m *memOutbox) Enqueue(_ context.Context, ns ...notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range ns {
		n.ID = uuid.New().String()
		n.Status = notify.StatusPending
		m.rows = append(m.rows, n)
	}
	return nil
}

func (m *memOutbox) Claim(_ context.Context, limit int) ([]notify.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Notification
	for _, n := range m.rows {
		if n.Status == notify.StatusPending && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memOutbox) MarkSent(_ context.Context, id string) error {
	return m.set(id, notify.StatusSent)
}

func (m *memOutbox) MarkFailed(_ context.Context, id, _ string, _ time.Time, final bool) error {
	if final {
		return m.set(id, notify.StatusFailed)
	}
	return nil
}

func (m *memOutbox) set(id string, s notify.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Status = s
			m.rows[i].Attempts++
		}
	}
	return nil
}

func (m *memOutbox) byKind(k notify.Kind) []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notify.Notification
	for _, n := range m.rows {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

type countingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *countingMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// fakeUsers mimics the postgres store: notes passed to writes land in the
// outbox only when the write succeeds.
type fakeUsers struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	outbox *memOutbox
}

func newFakeUsers(outbox *memOutbox) *fakeUsers {
	return &fakeUsers{users: map[string]*domain.User{}, outbox: outbox}
}

func (f *fakeUsers) Create(ctx context.Context, u *domain.User, notes ...notify.Notification) error {
	f.mu.Lock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			f.mu.Unlock()
			return domain.ErrEmailTaken
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	cp := *u
	f.users[u.ID] = &cp
	f.mu.Unlock()
	return f.outbox.Enqueue(ctx, notes...)
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := f.GetByEmail(ctx, email)
	return err == nil, nil
}

func (f *fakeUsers) Approvers(context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.User
	for _, u := range f.users {
		if permissions.IsElevated(u.Role) && u.AccountStatus == domain.StatusApproved {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) List(_ context.Context, flt domain.UserFilter) (*domain.UserPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	page := &domain.UserPage{Users: []domain.User{}, Page: flt.Page, Limit: flt.Limit}
	for _, u := range f.users {
		if flt.Role != "" && u.Role != flt.Role {
			continue
		}
		if len(flt.OnlyRoles) > 0 && !slices.Contains(flt.OnlyRoles, u.Role) {
			continue
		}
		if flt.Status != "" && u.AccountStatus != flt.Status {
			continue
		}
		if flt.Search != "" && !strings.Contains(u.Name+u.Email, flt.Search) {
			continue
		}
		page.Users = append(page.Users, *u)
	}
	page.Total = len(page.Users)
	return page, nil
}

func (f *fakeUsers) UpdateStatus(ctx context.Context, id string, upd domain.StatusUpdate, notes ...notify.Notification) (*domain.User, error) {
	f.mu.Lock()
	u, ok := f.users[id]
	if !ok {
		f.mu.Unlock()
		return nil, domain.ErrUserNotFound
	}
	if len(upd.From) > 0 && !slices.Contains(upd.From, u.AccountStatus) {
		f.mu.Unlock()
		return nil, domain.ErrInvalidTransition
	}
	for _, other := range f.users {
		if other.ID == id {
			continue
		}
		if upd.ClientID != nil && other.ClientID != nil && *other.ClientID == *upd.ClientID {
			f.mu.Unlock()
			return nil, domain.ErrIdentifierTaken
		}
		if upd.EmployeeID != nil && other.EmployeeID != nil && *other.EmployeeID == *upd.EmployeeID {
			f.mu.Unlock()
			return nil, domain.ErrIdentifierTaken
		}
	}
	u.AccountStatus = upd.Status
	if upd.ClientID != nil {
		u.ClientID = upd.ClientID
	}
	if upd.EmployeeID != nil {
		u.EmployeeID = upd.EmployeeID
	}
	if upd.IDAssigned != nil {
		u.IDAssigned = *upd.IDAssigned
	}
	if upd.DeclineReason != nil {
		u.DeclineReason = *upd.DeclineReason
	}
	cp := *u
	f.mu.Unlock()

	if err := f.outbox.Enqueue(ctx, notes...); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (f *fakeUsers) Update(_ context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.EmployeeID != nil {
		u.EmployeeID = p.EmployeeID
	}
	if p.ClientID != nil {
		u.ClientID = p.ClientID
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsers) TouchLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUsers) Stats(context.Context) (*domain.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := &domain.Stats{
		ByRole:   map[permissions.Role]int{},
		ByStatus: map[domain.AccountStatus]int{},
		Matrix:   map[permissions.Role]map[domain.AccountStatus]int{},
	}
	for _, u := range f.users {
		st.Total++
		st.ByRole[u.Role]++
		st.ByStatus[u.AccountStatus]++
		if st.Matrix[u.Role] == nil {
			st.Matrix[u.Role] = map[domain.AccountStatus]int{}
		}
		st.Matrix[u.Role][u.AccountStatus]++
	}
	return st, nil
}

// seed inserts a user directly with the given password.
func (f *fakeUsers) seed(t *testing.T, email string, role permissions.Role, status domain.AccountStatus, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u := &domain.User{
		ID:            uuid.New().String(),
		Name:          strings.Split(email, "@")[0],
		Email:         email,
		PasswordHash:  string(hash),
		Role:          role,
		IsVerified:    true,
		AccountStatus: status,
	}
	f.mu.Lock()
	f.users[u.ID] = u
	f.mu.Unlock()
	cp := *u
	return &cp
}

type fixture struct {
	svc     *Service
	users   *fakeUsers
	outbox  *memOutbox
	pending *repository.PendingRepository
	mr      *miniredis.Miniredis
	issuer  *auth.JWTIssuer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.MinCost
	}
	outbox := &memOutbox{}
	users := newFakeUsers(outbox)
	pending := repository.NewPendingRepository(client)
	issuer := auth.NewJWTIssuer("test-secret", "staffboard", time.Hour)

	return &fixture{
		svc:     New(users, pending, outbox, issuer, opts, nil),
		users:   users,
		outbox:  outbox,
		pending: pending,
		mr:      mr,
		issuer:  issuer,
	}
}

func actorOf(u *domain.User) auth.Principal {
	return auth.Principal{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}
