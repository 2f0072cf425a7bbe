package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingRepo(t *testing.T) (*PendingRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPendingRepository(client), mr
}

func TestPendingRepository_Lifecycle(t *testing.T) {
	repo, mr := newPendingRepo(t)
	ctx := context.Background()
	expires := time.Now().Add(10 * time.Minute)

	_, err := repo.Get(ctx, "jo@x.io")
	assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)

	require.NoError(t, repo.Save(ctx, &domain.PendingRegistration{
		Email: "jo@x.io", Name: "Jo", Role: permissions.RoleClient, OTPHash: "h", ExpiresAt: expires,
	}))
	assert.True(t, mr.Exists("reg:pending:jo@x.io"))
	assert.InDelta(t, (10 * time.Minute).Seconds(), mr.TTL("reg:pending:jo@x.io").Seconds(), 2)

	n, err := repo.RecordFailedAttempt(ctx, "jo@x.io", expires)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = repo.RecordFailedAttempt(ctx, "jo@x.io", expires)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, err := repo.Get(ctx, "jo@x.io")
	require.NoError(t, err)
	assert.Equal(t, "Jo", p.Name)
	assert.Equal(t, permissions.RoleClient, p.Role)
	assert.Equal(t, 2, p.Attempts)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// re-saving issues a new code and clears the failures
	require.NoError(t, repo.Save(ctx, p))
	p, err = repo.Get(ctx, "jo@x.io")
	require.NoError(t, err)
	assert.Zero(t, p.Attempts)

	require.NoError(t, repo.Delete(ctx, "jo@x.io"))
	_, err = repo.Get(ctx, "jo@x.io")
	assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
	count, _ = repo.Count(ctx)
	assert.Zero(t, count)
}

func TestPendingRepository_Expiry(t *testing.T) {
	repo, mr := newPendingRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &domain.PendingRegistration{Email: "jo@x.io", ExpiresAt: time.Now().Add(time.Minute)}))
	mr.FastForward(2 * time.Minute)

	_, err := repo.Get(ctx, "jo@x.io")
	assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)

	pruned, err := repo.PruneIndex(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	err = repo.Save(ctx, &domain.PendingRegistration{Email: "old@x.io", ExpiresAt: time.Now().Add(-time.Second)})
	assert.Error(t, err)
}

func TestPendingRepository_Reset(t *testing.T) {
	repo, _ := newPendingRepo(t)
	ctx := context.Background()
	expires := time.Now().Add(5 * time.Minute)

	_, err := repo.GetReset(ctx, "jo@x.io")
	assert.ErrorIs(t, err, domain.ErrInvalidOTP)

	require.NoError(t, repo.SaveReset(ctx, &domain.PasswordReset{Email: "jo@x.io", OTPHash: "h", ExpiresAt: expires}))
	_, err = repo.RecordFailedReset(ctx, "jo@x.io", expires)
	require.NoError(t, err)

	r, err := repo.GetReset(ctx, "jo@x.io")
	require.NoError(t, err)
	assert.Equal(t, "h", r.OTPHash)
	assert.Equal(t, 1, r.Attempts)

	require.NoError(t, repo.DeleteReset(ctx, "jo@x.io"))
	_, err = repo.GetReset(ctx, "jo@x.io")
	assert.ErrorIs(t, err, domain.ErrInvalidOTP)
}
