package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
)

// ListColumnTasks supports ?assigneeId=&status=&priority=&includeArchived=
func (h *Handler) ListColumnTasks(c *gin.Context) {
	res, err := h.svc.ListTasks(c.Request.Context(), principal(c), domain.TaskFilter{
		ColumnID:        c.Param("id"),
		AssigneeID:      c.Query("assigneeId"),
		Status:          domain.TaskStatus(c.Query("status")),
		Priority:        domain.Priority(c.Query("priority")),
		IncludeArchived: queryBool(c, "includeArchived"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, res)
}

func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	t, err := h.svc.CreateTask(c.Request.Context(), principal(c), domain.NewTask{
		ColumnID:       c.Param("id"),
		Title:          req.Title,
		Description:    req.Description,
		Priority:       domain.Priority(req.Priority),
		AssigneeIDs:    req.AssigneeIDs,
		DueDate:        req.DueDate,
		StartDate:      req.StartDate,
		Tags:           req.Tags,
		EstimatedHours: req.EstimatedHours,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusCreated, apierrors.MsgCreated, t)
}

func (h *Handler) GetTask(c *gin.Context) {
	t, err := h.svc.GetTask(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, t)
}

func (h *Handler) UpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	t, err := h.svc.UpdateTask(c.Request.Context(), principal(c), c.Param("id"), req.patch())
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, t)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	if err := h.svc.DeleteTask(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgDeleted, nil)
}

// MoveTask applies a drag: the task leaves sourceColumnId and lands at index
// in destinationColumnId.
func (h *Handler) MoveTask(c *gin.Context) {
	var req moveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	res, err := h.svc.MoveTask(c.Request.Context(), principal(c), domain.MoveRequest{
		TaskID:         c.Param("id"),
		SourceColumnID: req.SourceColumnID,
		DestColumnID:   req.DestinationColumnID,
		Index:          *req.Index,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgTaskMoved, res)
}

func (h *Handler) AssignTask(c *gin.Context) {
	var req assigneesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	t, err := h.svc.AssignTask(c.Request.Context(), principal(c), c.Param("id"), req.UserIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, t)
}

func (h *Handler) UnassignTask(c *gin.Context) {
	var req assigneesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	t, err := h.svc.UnassignTask(c.Request.Context(), principal(c), c.Param("id"), req.UserIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, t)
}

func (h *Handler) ArchiveTask(c *gin.Context) {
	t, err := h.svc.ArchiveTask(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, t)
}

func (h *Handler) ListComments(c *gin.Context) {
	res, err := h.svc.ListComments(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, res)
}

func (h *Handler) AddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	cm, err := h.svc.AddComment(c.Request.Context(), principal(c), c.Param("id"), req.Body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusCreated, apierrors.MsgCreated, cm)
}

func (h *Handler) DeleteComment(c *gin.Context) {
	if err := h.svc.DeleteComment(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgDeleted, nil)
}

func (h *Handler) TaskActivity(c *gin.Context) {
	res, err := h.svc.TaskActivity(c.Request.Context(), principal(c), c.Param("id"), pageQuery(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, res)
}
