package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/events"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
	"go.uber.org/zap"
)

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}

func pageQuery(c *gin.Context) domain.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return domain.Page{Limit: limit, Offset: offset}
}

// GetBoard returns the board with its columns and tasks nested in order.
// ?includeArchived=true also lists archived tasks.
func (h *Handler) GetBoard(c *gin.Context) {
	v, err := h.svc.GetBoard(c.Request.Context(), principal(c), c.Param("id"), queryBool(c, "includeArchived"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, v)
}

func (h *Handler) UpdateBoard(c *gin.Context) {
	var req updateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	b, err := h.svc.UpdateBoard(c.Request.Context(), principal(c), c.Param("id"), domain.BoardPatch{
		Title: req.Title, Description: req.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, b)
}

func (h *Handler) DeleteBoard(c *gin.Context) {
	if err := h.svc.DeleteBoard(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgDeleted, nil)
}

func (h *Handler) ArchiveBoard(c *gin.Context)   { h.setArchived(c, true) }
func (h *Handler) UnarchiveBoard(c *gin.Context) { h.setArchived(c, false) }

func (h *Handler) setArchived(c *gin.Context, archived bool) {
	b, err := h.svc.ArchiveBoard(c.Request.Context(), principal(c), c.Param("id"), archived)
	if err != nil {
		h.respondError(c, err)
		return
	}
	msg := apierrors.MsgUpdated
	if archived {
		msg = apierrors.MsgBoardArchived
	}
	apierrors.Success(c, http.StatusOK, msg, b)
}

func (h *Handler) AddBoardMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	b, err := h.svc.AddBoardMember(c.Request.Context(), principal(c), c.Param("id"), req.UserID, req.Admin)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, b)
}

func (h *Handler) RemoveBoardMember(c *gin.Context) {
	b, err := h.svc.RemoveBoardMember(c.Request.Context(), principal(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, b)
}

// BoardActivity supports ?limit=&offset=
func (h *Handler) BoardActivity(c *gin.Context) {
	res, err := h.svc.BoardActivity(c.Request.Context(), principal(c), c.Param("id"), pageQuery(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, res)
}

// BoardEvents streams the board's change events over SSE, starting with the
// current board as the "initial" event.
func (h *Handler) BoardEvents(c *gin.Context) {
	if h.bus == nil {
		apierrors.Fail(c, http.StatusServiceUnavailable, apierrors.MsgInternalError, "event stream is not configured")
		return
	}
	ctx := c.Request.Context()
	actor := principal(c)
	id := events.CanonicalID(c.Param("id"))

	if err := h.svc.AuthorizeBoardView(ctx, actor, id); err != nil {
		h.respondError(c, err)
		return
	}
	// Subscribe before reading the snapshot so no change falls between them.
	ch, cancel, err := h.bus.Subscribe(ctx, id)
	if err != nil {
		h.logger.Error("subscribe to board events", zap.String("board_id", id), zap.Error(err))
		apierrors.Fail(c, http.StatusServiceUnavailable, apierrors.MsgInternalError, "")
		return
	}
	defer cancel()

	view, err := h.svc.GetBoard(ctx, actor, id, false)
	if err != nil {
		h.respondError(c, err)
		return
	}
	events.Stream(c, ch, view)
}

func (h *Handler) CreateColumn(c *gin.Context) {
	var req createColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	col, err := h.svc.CreateColumn(c.Request.Context(), principal(c), domain.NewColumn{
		BoardID:      c.Param("id"),
		Title:        req.Title,
		WIPLimit:     req.WIPLimit,
		MappedStatus: statusPtr(req.MappedStatus),
		Color:        req.Color,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusCreated, apierrors.MsgCreated, col)
}

// ReorderColumns takes the complete new column order.
func (h *Handler) ReorderColumns(c *gin.Context) {
	var req reorderColumnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	b, err := h.svc.ReorderColumns(c.Request.Context(), principal(c), c.Param("id"), req.ColumnOrder)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgColumnsReordered, b)
}

func (h *Handler) UpdateColumn(c *gin.Context) {
	var req updateColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	col, err := h.svc.UpdateColumn(c.Request.Context(), principal(c), c.Param("id"), domain.ColumnPatch{
		Title:        req.Title,
		WIPLimit:     req.WIPLimit,
		MappedStatus: statusPtr(req.MappedStatus),
		Color:        req.Color,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, col)
}

// DeleteColumn refuses a column with tasks unless ?force=true.
func (h *Handler) DeleteColumn(c *gin.Context) {
	if err := h.svc.DeleteColumn(c.Request.Context(), principal(c), c.Param("id"), queryBool(c, "force")); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgDeleted, nil)
}
