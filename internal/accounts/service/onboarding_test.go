package service

import (
	"context"
	"testing"
	"time"

	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastCode(t *testing.T, o *memOutbox, kind notify.Kind) string {
	t.Helper()
	notes := o.byKind(kind)
	require.NotEmpty(t, notes)
	code, ok := notes[len(notes)-1].Payload["code"].(string)
	require.True(t, ok)
	return code
}

func registerReq(email, role string) domain.RegisterRequest {
	return domain.RegisterRequest{Name: "Jo Doe", Email: email, Password: "s3cret-pass", Role: role}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	cases := []struct {
		name  string
		req   domain.RegisterRequest
		field string
	}{
		{"missing name", domain.RegisterRequest{Email: "a@x.io", Password: "s3cret-pass", Role: "employee"}, "name"},
		{"bad email", registerReq("not-an-email", "employee"), "email"},
		{"short password", domain.RegisterRequest{Name: "A", Email: "a@x.io", Password: "short", Role: "employee"}, "password"},
		{"admin self signup", registerReq("a@x.io", "admin"), "role"},
		{"unknown role", registerReq("a@x.io", "boss"), "role"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.req)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestRegister_EmailTaken(t *testing.T) {
	f := newFixture(t, Options{})
	f.users.seed(t, "taken@x.io", permissions.RoleEmployee, domain.StatusApproved, "password1")

	_, err := f.svc.Register(context.Background(), registerReq("Taken@X.io", "employee"))
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestRegisterAndVerify(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	admin := f.users.seed(t, "admin@x.io", permissions.RoleAdmin, domain.StatusApproved, "password1")
	f.users.seed(t, "hr@x.io", permissions.RoleHR, domain.StatusApproved, "password1")

	expires, err := f.svc.Register(ctx, registerReq(" New@X.io ", "client"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expires, 5*time.Second)

	// nothing is in the user store until the code is confirmed
	exists, _ := f.users.EmailExists(ctx, "new@x.io")
	assert.False(t, exists)
	assert.True(t, f.mr.Exists("reg:pending:new@x.io"))

	code := lastCode(t, f.outbox, notify.KindOTP)
	assert.Len(t, code, 6)

	u, err := f.svc.VerifyOTP(ctx, "new@x.io", code)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)
	assert.Equal(t, domain.StatusPending, u.AccountStatus)
	assert.Equal(t, permissions.RoleClient, u.Role)
	assert.False(t, f.mr.Exists("reg:pending:new@x.io"))

	notes := f.outbox.byKind(notify.KindRegistrationPending)
	require.Len(t, notes, 2)
	recipients := []string{notes[0].Recipient, notes[1].Recipient}
	assert.ElementsMatch(t, []string{admin.Email, "hr@x.io"}, recipients)

	_, err = f.svc.Login(ctx, "new@x.io", "s3cret-pass")
	assert.ErrorIs(t, err, domain.ErrAwaitingApproval)
}

func TestVerifyOTP_HRNotToldAboutElevatedSignups(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.users.seed(t, "admin@x.io", permissions.RoleAdmin, domain.StatusApproved, "password1")
	f.users.seed(t, "hr@x.io", permissions.RoleHR, domain.StatusApproved, "password1")

	_, err := f.svc.Register(ctx, registerReq("newhr@x.io", "hr"))
	require.NoError(t, err)
	_, err = f.svc.VerifyOTP(ctx, "newhr@x.io", lastCode(t, f.outbox, notify.KindOTP))
	require.NoError(t, err)

	notes := f.outbox.byKind(notify.KindRegistrationPending)
	require.Len(t, notes, 1)
	assert.Equal(t, "admin@x.io", notes[0].Recipient)
}

func TestVerifyOTP_AttemptLimit(t *testing.T) {
	f := newFixture(t, Options{MaxAttempts: 3})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registerReq("a@x.io", "employee"))
	require.NoError(t, err)
	code := lastCode(t, f.outbox, notify.KindOTP)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err = f.svc.VerifyOTP(ctx, "a@x.io", wrong)
	assert.ErrorIs(t, err, domain.ErrInvalidOTP)
	_, err = f.svc.VerifyOTP(ctx, "a@x.io", wrong)
	assert.ErrorIs(t, err, domain.ErrInvalidOTP)
	_, err = f.svc.VerifyOTP(ctx, "a@x.io", wrong)
	assert.ErrorIs(t, err, domain.ErrTooManyAttempts)

	// the staged registration is gone, even the right code no longer works
	_, err = f.svc.VerifyOTP(ctx, "a@x.io", code)
	assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
}

func TestVerifyOTP_Expired(t *testing.T) {
	f := newFixture(t, Options{OTPTTL: time.Minute})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, registerReq("a@x.io", "employee"))
	require.NoError(t, err)
	code := lastCode(t, f.outbox, notify.KindOTP)

	f.mr.FastForward(2 * time.Minute)
	_, err = f.svc.VerifyOTP(ctx, "a@x.io", code)
	assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
}

func TestResendOTP(t *testing.T) {
	f := newFixture(t, Options{ResendInterval: time.Minute})
	ctx := context.Background()
	base := time.Now()
	f.svc.now = func() time.Time { return base }

	_, err := f.svc.Register(ctx, registerReq("a@x.io", "employee"))
	require.NoError(t, err)
	first := lastCode(t, f.outbox, notify.KindOTP)

	_, err = f.svc.ResendOTP(ctx, "a@x.io")
	assert.ErrorIs(t, err, domain.ErrResendTooSoon)
	_, err = f.svc.Register(ctx, registerReq("a@x.io", "employee"))
	assert.ErrorIs(t, err, domain.ErrResendTooSoon)

	f.svc.now = func() time.Time { return base.Add(90 * time.Second) }
	_, err = f.svc.ResendOTP(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Len(t, f.outbox.byKind(notify.KindOTP), 2)

	second := lastCode(t, f.outbox, notify.KindOTP)
	if first != second {
		_, err = f.svc.VerifyOTP(ctx, "a@x.io", first)
		assert.ErrorIs(t, err, domain.ErrInvalidOTP)
	}
	_, err = f.svc.VerifyOTP(ctx, "a@x.io", second)
	assert.NoError(t, err)

	_, err = f.svc.ResendOTP(ctx, "nobody@x.io")
	assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
}

func TestLogin(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	ok := f.users.seed(t, "ok@x.io", permissions.RoleEmployee, domain.StatusApproved, "password1")
	f.users.seed(t, "blocked@x.io", permissions.RoleEmployee, domain.StatusBlocked, "password1")
	f.users.seed(t, "declined@x.io", permissions.RoleClient, domain.StatusDeclined, "password1")

	res, err := f.svc.Login(ctx, "OK@x.io", "password1")
	require.NoError(t, err)
	assert.Equal(t, ok.ID, res.User.ID)
	assert.NotNil(t, res.User.LastLoginAt)

	p, err := f.issuer.Verify(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, ok.ID, p.UserID)
	assert.Equal(t, permissions.RoleEmployee, p.Role)

	_, err = f.svc.Login(ctx, "ok@x.io", "wrong-password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ghost@x.io", "password1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "blocked@x.io", "password1")
	assert.ErrorIs(t, err, domain.ErrAccountBlocked)
	_, err = f.svc.Login(ctx, "declined@x.io", "password1")
	assert.ErrorIs(t, err, domain.ErrAccountDeclined)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.users.seed(t, "ok@x.io", permissions.RoleEmployee, domain.StatusApproved, "password1")

	require.NoError(t, f.svc.ForgotPassword(ctx, "ghost@x.io"))
	assert.Empty(t, f.outbox.byKind(notify.KindPasswordReset))

	require.NoError(t, f.svc.ForgotPassword(ctx, "ok@x.io"))
	code := lastCode(t, f.outbox, notify.KindPasswordReset)

	err := f.svc.ResetPassword(ctx, "ok@x.io", code, "short")
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, f.svc.ResetPassword(ctx, "ok@x.io", code, "new-password"))
	_, err = f.svc.Login(ctx, "ok@x.io", "new-password")
	assert.NoError(t, err)

	// codes are single use
	err = f.svc.ResetPassword(ctx, "ok@x.io", code, "another-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidOTP)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	u := f.users.seed(t, "ok@x.io", permissions.RoleEmployee, domain.StatusApproved, "password1")

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, u.ID, "nope-nope", "password2"), domain.ErrInvalidCredentials)
	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "password1", "password2"))
	_, err := f.svc.Login(ctx, "ok@x.io", "password2")
	assert.NoError(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureAdmin(ctx, "Root@x.io", "password1", "Root"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "root@x.io", "password1", "Root"))

	st, err := f.users.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ByRole[permissions.RoleAdmin])

	res, err := f.svc.Login(ctx, "root@x.io", "password1")
	require.NoError(t, err)
	assert.Equal(t, permissions.RoleAdmin, res.User.Role)
}

func TestActiveVerifier(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	admin := f.users.seed(t, "admin@x.io", permissions.RoleAdmin, domain.StatusApproved, "password1")
	u := f.users.seed(t, "ok@x.io", permissions.RoleEmployee, domain.StatusApproved, "password1")

	res, err := f.svc.Login(ctx, "ok@x.io", "password1")
	require.NoError(t, err)

	v := NewActiveVerifier(f.issuer, f.users)
	p, err := v.Verify(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)

	_, err = f.svc.BlockUser(ctx, actorOf(admin), u.ID)
	require.NoError(t, err)
	_, err = v.Verify(ctx, res.Token)
	assert.ErrorIs(t, err, auth.ErrInactiveUser)

	_, err = f.svc.PrincipalByEmail(ctx, "ok@x.io")
	assert.ErrorIs(t, err, auth.ErrInactiveUser)
	p, err = f.svc.PrincipalByEmail(ctx, "ADMIN@x.io")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, p.UserID)
}
