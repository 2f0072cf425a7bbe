package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
)

func principal(c *gin.Context) auth.Principal {
	p, _ := auth.CurrentPrincipal(c)
	return p
}

// ListUsers supports ?role=&status=&search=&page=&limit=&sort=
func (h *Handler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	res, err := h.svc.ListUsers(c.Request.Context(), principal(c), domain.UserFilter{
		Role:   permissions.Role(c.Query("role")),
		Status: domain.AccountStatus(c.Query("status")),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
		Sort:   c.Query("sort"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, res)
}

func (h *Handler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, st)
}

func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, u)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	patch := domain.UserPatch{
		Name:        req.Name,
		Phone:       req.Phone,
		Department:  req.Department,
		CompanyName: req.CompanyName,
		EmployeeID:  req.EmployeeID,
		ClientID:    req.ClientID,
	}
	if req.Role != nil {
		r := permissions.Role(*req.Role)
		patch.Role = &r
	}

	u, err := h.svc.UpdateUser(c.Request.Context(), principal(c), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUpdated, u)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgDeleted, nil)
}

// ApproveUser accepts an optional {"employeeId"} or {"clientId"} body.
func (h *Handler) ApproveUser(c *gin.Context) {
	var req approveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
			return
		}
	}
	u, err := h.svc.ApproveUser(c.Request.Context(), principal(c), c.Param("id"), domain.ApproveRequest{
		EmployeeID: req.EmployeeID,
		ClientID:   req.ClientID,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUserApproved, u)
}

func (h *Handler) DeclineUser(c *gin.Context) {
	var req declineRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
			return
		}
	}
	u, err := h.svc.DeclineUser(c.Request.Context(), principal(c), c.Param("id"), req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUserDeclined, u)
}

func (h *Handler) BlockUser(c *gin.Context) {
	u, err := h.svc.BlockUser(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUserBlocked, u)
}

func (h *Handler) UnblockUser(c *gin.Context) {
	u, err := h.svc.UnblockUser(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgUserUnblocked, u)
}
