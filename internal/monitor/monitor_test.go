package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPending struct {
	n   int64
	err error
}

func (s stubPending) Count(context.Context) (int64, error) { return s.n, s.err }

type stubOutbox map[notify.Status]int64

func (s stubOutbox) Counts(context.Context) (map[notify.Status]int64, error) { return s, nil }

func expectDatabase(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`select pg_database_size\(current_database\(\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_database_size"}).AddRow(int64(9_000_000)))
	mock.ExpectQuery(`from pg_stat_user_tables`).
		WillReturnRows(sqlmock.NewRows([]string{"relname", "n_live_tup", "size"}).
			AddRow("tasks", int64(120), int64(65536)).
			AddRow("users", int64(8), int64(16384)))
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCollect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectDatabase(mock)

	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "2"))

	c := NewCollector(db, rdb, stubPending{n: 3}, stubOutbox{notify.StatusPending: 4, notify.StatusFailed: 1, notify.StatusSent: 40}, nil)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.NotNil(t, snap.Database)
	assert.Equal(t, int64(9_000_000), snap.Database.SizeBytes)
	assert.Equal(t, []Table{{"tasks", 120, 65536}, {"users", 8, 16384}}, snap.Database.Tables)

	// miniredis has no memory section, so only the key count is known.
	require.NotNil(t, snap.Redis)
	assert.Equal(t, int64(2), snap.Redis.Keys)
	assert.Zero(t, snap.Redis.UsedMemory)

	assert.Equal(t, int64(3), snap.PendingRegistrations)
	assert.Equal(t, int64(4), snap.OutboxPending)
	assert.Equal(t, int64(1), snap.OutboxFailed)
	assert.Equal(t, "2026-03-01T12:00:00Z", snap.TakenAt.Format(time.RFC3339))
}

func TestCollect_OptionalSources(t *testing.T) {
	snap, err := NewCollector(nil, nil, nil, nil, nil).Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Database)
	assert.Nil(t, snap.Redis)
	assert.False(t, snap.TakenAt.IsZero())

	_, err = NewCollector(nil, nil, stubPending{err: errors.New("boom")}, nil, nil).Collect(context.Background())
	assert.Error(t, err)
}

func TestParseInfo(t *testing.T) {
	info := "# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\n\r\nmaxmemory_policy:noeviction\r\n"
	got := parseInfo(info)
	assert.Equal(t, "1048576", got["used_memory"])
	assert.Equal(t, "1.00M", got["used_memory_human"])
	assert.Equal(t, "noeviction", got["maxmemory_policy"])
	assert.NotContains(t, got, "# Memory")
}

func TestStorageEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectDatabase(mock)

	issuer := auth.NewJWTIssuer("secret", "staffboard", time.Hour)
	r := gin.New()
	admin := r.Group("/api/admin", auth.RequireAuth(issuer), auth.RequireCapability(permissions.CanViewStorageStats))
	NewHandler(NewCollector(db, nil, nil, stubOutbox{}, nil), nil).Register(admin)

	call := func(role permissions.Role) *httptest.ResponseRecorder {
		token, _, err := issuer.Issue(auth.Principal{UserID: "u-" + string(role), Role: role})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/api/admin/storage", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusForbidden, call(permissions.RoleHR).Code)

	rr := call(permissions.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body apierrors.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	data := body.Data.(map[string]any)
	assert.Equal(t, float64(9_000_000), data["database"].(map[string]any)["sizeBytes"])
	assert.NotContains(t, data, "redis")
	require.NoError(t, mock.ExpectationsWereMet())
}
