package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/internal/kanban/kanbantest"
	"github.com/staffboard/staffboard-backend/internal/kanban/service"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanBus hands out a pre-filled, closed channel so the stream ends on its own.
type chanBus struct {
	events []events.BoardEvent
	err    error
	boards []string
}

func (b *chanBus) Subscribe(_ context.Context, boardID string) (<-chan events.BoardEvent, func(), error) {
	if b.err != nil {
		return nil, nil, b.err
	}
	b.boards = append(b.boards, boardID)
	ch := make(chan events.BoardEvent, len(b.events))
	for _, ev := range b.events {
		ch <- ev
	}
	close(ch)
	return ch, func() {}, nil
}

type testEnv struct {
	router *gin.Engine
	issuer *auth.JWTIssuer
	bus    *chanBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := kanbantest.New()
	svc := service.New(service.Stores{
		Projects: mem.Projects(), Boards: mem.Boards(), Columns: mem.Columns(),
		Tasks: mem.Tasks(), Comments: mem.Comments(), Activity: mem.Activity(),
	}, domain.DefaultStatusTable(), &kanbantest.Recorder{}, nil)

	bus := &chanBus{}
	issuer := auth.NewJWTIssuer("secret", "staffboard", time.Hour)
	r := gin.New()
	New(svc, bus, nil).Register(r.Group("/api", auth.RequireAuth(issuer)))
	return &testEnv{router: r, issuer: issuer, bus: bus}
}

func (e *testEnv) token(t *testing.T, role permissions.Role) (string, string) {
	t.Helper()
	id := uuid.NewString()
	token, _, err := e.issuer.Issue(auth.Principal{UserID: id, Email: id + "@x.io", Role: role})
	require.NoError(t, err)
	return id, token
}

func (e *testEnv) do(method, path, token string, body any) (*httptest.ResponseRecorder, apierrors.Response) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	var env apierrors.Response
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return rr, env
}

type boardEnv struct {
	*testEnv
	owner, member, outsider string
	memberID                string
	boardID                 string
	columns                 []string
}

// seedBoard creates a project and a board with the default columns through
// the API.
func seedBoard(t *testing.T) *boardEnv {
	t.Helper()
	e := newTestEnv(t)
	_, owner := e.token(t, permissions.RoleEmployee)
	memberID, member := e.token(t, permissions.RoleEmployee)
	_, outsider := e.token(t, permissions.RoleEmployee)

	rr, body := e.do(http.MethodPost, "/api/projects", owner, gin.H{
		"name": "Apollo", "key": "apl", "memberIds": []string{memberID},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	projectID := body.Data.(map[string]any)["id"].(string)

	rr, body = e.do(http.MethodPost, "/api/projects/"+projectID+"/boards", owner, gin.H{"title": "Sprint 1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	board := body.Data.(map[string]any)

	var cols []string
	for _, id := range board["columnOrder"].([]any) {
		cols = append(cols, id.(string))
	}
	require.Len(t, cols, 4)

	return &boardEnv{
		testEnv: e, owner: owner, member: member, outsider: outsider, memberID: memberID,
		boardID: board["id"].(string), columns: cols,
	}
}

func (b *boardEnv) createTask(t *testing.T, col int, title string) string {
	t.Helper()
	rr, body := b.do(http.MethodPost, "/api/columns/"+b.columns[col]+"/tasks", b.member, gin.H{"title": title})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return body.Data.(map[string]any)["id"].(string)
}

func TestProjectEndpoints(t *testing.T) {
	e := newTestEnv(t)
	_, emp := e.token(t, permissions.RoleEmployee)
	_, client := e.token(t, permissions.RoleClient)

	rr, body := e.do(http.MethodPost, "/api/projects", emp, gin.H{"name": "Apollo", "key": "ap1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "AP1", body.Data.(map[string]any)["key"])

	rr, _ = e.do(http.MethodPost, "/api/projects", emp, gin.H{"name": "Again", "key": "AP1"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, body = e.do(http.MethodPost, "/api/projects", emp, gin.H{"name": "Bad", "key": "!"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body.Error, "key")

	rr, _ = e.do(http.MethodPost, "/api/projects", emp, gin.H{"key": "NONAME"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = e.do(http.MethodPost, "/api/projects", client, gin.H{"name": "Client", "key": "CL"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = e.do(http.MethodGet, "/api/projects", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, body = e.do(http.MethodGet, "/api/projects", emp, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body.Data.([]any), 1)

	rr, _ = e.do(http.MethodGet, "/api/projects/"+uuid.NewString(), emp, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetBoardEndpoint(t *testing.T) {
	b := seedBoard(t)
	taskID := b.createTask(t, 0, "First")

	rr, body := b.do(http.MethodGet, "/api/boards/"+b.boardID, b.member, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := body.Data.(map[string]any)
	cols := view["columns"].([]any)
	require.Len(t, cols, 4)
	first := cols[0].(map[string]any)
	assert.Equal(t, "To Do", first["title"])
	assert.Equal(t, []any{taskID}, first["taskIds"])
	assert.Equal(t, taskID, first["tasks"].([]any)[0].(map[string]any)["id"])

	rr, _ = b.do(http.MethodGet, "/api/boards/"+b.boardID, b.outsider, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMoveTaskEndpoint(t *testing.T) {
	b := seedBoard(t)
	taskID := b.createTask(t, 0, "Ship it")
	path := "/api/tasks/" + taskID + "/move"

	rr, _ := b.do(http.MethodPost, path, b.member, gin.H{
		"sourceColumnId": b.columns[0], "destinationColumnId": b.columns[3],
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "index is required")

	rr, _ = b.do(http.MethodPost, path, b.outsider, gin.H{
		"sourceColumnId": b.columns[0], "destinationColumnId": b.columns[3], "index": 0,
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, body := b.do(http.MethodPost, path, b.member, gin.H{
		"sourceColumnId": b.columns[0], "destinationColumnId": b.columns[3], "index": 9,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := body.Data.(map[string]any)
	task := res["task"].(map[string]any)
	assert.Equal(t, b.columns[3], task["columnId"])
	assert.Equal(t, "done", task["status"])
	assert.Equal(t, float64(0), task["position"])
	assert.Equal(t, true, res["statusChanged"])

	rr, _ = b.do(http.MethodPost, path, b.member, gin.H{
		"sourceColumnId": b.columns[0], "destinationColumnId": b.columns[1], "index": 0,
	})
	assert.Equal(t, http.StatusConflict, rr.Code, "stale source")

	rr, _ = b.do(http.MethodPost, "/api/tasks/"+uuid.NewString()+"/move", b.member, gin.H{
		"sourceColumnId": b.columns[0], "destinationColumnId": b.columns[1], "index": 0,
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestColumnEndpoints(t *testing.T) {
	b := seedBoard(t)
	b.createTask(t, 1, "Busy")

	order := []string{b.columns[3], b.columns[2], b.columns[1], b.columns[0]}
	rr, _ := b.do(http.MethodPut, "/api/boards/"+b.boardID+"/columns/order", b.member, gin.H{"columnOrder": order})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = b.do(http.MethodPut, "/api/boards/"+b.boardID+"/columns/order", b.owner, gin.H{"columnOrder": order[:2]})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body := b.do(http.MethodPut, "/api/boards/"+b.boardID+"/columns/order", b.owner, gin.H{"columnOrder": order})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []any{order[0], order[1], order[2], order[3]}, body.Data.(map[string]any)["columnOrder"])

	rr, _ = b.do(http.MethodDelete, "/api/columns/"+b.columns[1], b.owner, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = b.do(http.MethodDelete, "/api/columns/"+b.columns[1]+"?force=true", b.owner, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, body = b.do(http.MethodPost, "/api/boards/"+b.boardID+"/columns", b.member, gin.H{
		"title": "Blocked", "wipLimit": 2, "mappedStatus": "in-progress",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	col := body.Data.(map[string]any)
	assert.Equal(t, float64(2), col["wipLimit"])
	assert.Equal(t, float64(3), col["position"])

	rr, _ = b.do(http.MethodPost, "/api/boards/"+b.boardID+"/columns", b.member, gin.H{
		"title": "Nope", "mappedStatus": "archived",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCommentEndpoints(t *testing.T) {
	b := seedBoard(t)
	taskID := b.createTask(t, 0, "Logo")

	rr, body := b.do(http.MethodPost, "/api/tasks/"+taskID+"/comments", b.member, gin.H{"body": "Looks good"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	commentID := body.Data.(map[string]any)["id"].(string)

	rr, body = b.do(http.MethodGet, "/api/tasks/"+taskID+"/comments", b.owner, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body.Data.([]any), 1)

	rr, _ = b.do(http.MethodDelete, "/api/comments/"+commentID, b.owner, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = b.do(http.MethodDelete, "/api/comments/"+commentID, b.member, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, body = b.do(http.MethodGet, "/api/tasks/"+taskID+"/activity?limit=5", b.member, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	acts := body.Data.([]any)
	require.NotEmpty(t, acts)
	assert.Equal(t, "commented", acts[0].(map[string]any)["type"])
}

func TestBoardEventsEndpoint(t *testing.T) {
	b := seedBoard(t)
	b.bus.events = []events.BoardEvent{{Type: events.TaskMoved, BoardID: b.boardID, TaskID: "t1"}}

	rr, _ := b.do(http.MethodGet, "/api/boards/"+b.boardID+"/events", b.outsider, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, b.bus.boards)

	rr, _ = b.do(http.MethodGet, "/api/boards/"+b.boardID+"/events", b.member, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	out := rr.Body.String()
	assert.Contains(t, out, "event: initial\n")
	assert.Contains(t, out, "event: task.moved\n")
	assert.Less(t, bytes.Index(rr.Body.Bytes(), []byte("event: initial")), bytes.Index(rr.Body.Bytes(), []byte("event: task.moved")))
	assert.Equal(t, []string{b.boardID}, b.bus.boards)
	assert.Contains(t, out, `"boardId":"`+b.boardID+`"`)

	rr, _ = b.do(http.MethodGet, "/api/boards/"+strings.ToUpper(b.boardID)+"/events", b.member, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{b.boardID, b.boardID}, b.bus.boards)

	b.bus.err = errors.New("redis down")
	rr, _ = b.do(http.MethodGet, "/api/boards/"+b.boardID+"/events", b.member, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
