package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/kanban/domain"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
)

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.CurrentPrincipal(c)
	return p
}

// ListProjects supports ?status=
func (h *Handler) ListProjects(c *gin.Context) {
	res, err := h.svc.ListProjects(c.Request.Context(), principal(c), domain.ProjectStatus(c.Query("status")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, res)
}

func (h *Handler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	p, err := h.svc.CreateProject(c.Request.Context(), principal(c), domain.NewProject{
		Name:        req.Name,
		Key:         req.Key,
		Description: req.Description,
		Status:      domain.ProjectStatus(req.Status),
		MemberIDs:   req.MemberIDs,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusCreated, apierrors.MsgCreated, p)
}

func (h *Handler) GetProject(c *gin.Context) {
	p, err := h.svc.GetProject(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, p)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	p, err := h.svc.UpdateProject(c.Request.Context(), principal(c), c.Param("id"), req.patch())
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, p)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.svc.DeleteProject(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgDeleted, nil)
}

func (h *Handler) AddProjectMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	p, err := h.svc.AddProjectMember(c.Request.Context(), principal(c), c.Param("id"), req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, p)
}

func (h *Handler) RemoveProjectMember(c *gin.Context) {
	p, err := h.svc.RemoveProjectMember(c.Request.Context(), principal(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, p)
}

func (h *Handler) ListBoards(c *gin.Context) {
	res, err := h.svc.ListBoards(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, res)
}

// CreateBoard seeds the default columns unless defaultColumns is false.
func (h *Handler) CreateBoard(c *gin.Context) {
	var req createBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	b, err := h.svc.CreateBoard(c.Request.Context(), principal(c), domain.NewBoard{
		ProjectID:      c.Param("id"),
		Title:          req.Title,
		Description:    req.Description,
		MemberIDs:      req.MemberIDs,
		AdminIDs:       req.AdminIDs,
		DefaultColumns: req.DefaultColumns == nil || *req.DefaultColumns,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusCreated, apierrors.MsgCreated, b)
}
