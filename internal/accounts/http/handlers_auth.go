package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
)

// RegisterUser stages a sign-up and emails the verification code
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}

	expires, err := h.svc.Register(c.Request.Context(), domain.RegisterRequest{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
		Phone:       req.Phone,
		Department:  req.Department,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusAccepted, apierrors.MsgOTPSent, gin.H{"expiresAt": expires.UTC().Format(time.RFC3339)})
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	u, err := h.svc.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusCreated, apierrors.MsgOTPVerified, u)
}

func (h *Handler) ResendOTP(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	expires, err := h.svc.ResendOTP(c.Request.Context(), req.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOTPSent, gin.H{"expiresAt": expires.UTC().Format(time.RFC3339)})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgLoginSuccess, res)
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	if err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgPasswordResetSent, nil)
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgPasswordReset, nil)
}

// Me returns the current user's profile
func (h *Handler) Me(c *gin.Context) {
	u, err := h.svc.Me(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgOK, u)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.Fail(c, http.StatusBadRequest, apierrors.MsgInvalidRequest, err.Error())
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), auth.UserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		h.respondError(c, err)
		return
	}
	apierrors.Success(c, http.StatusOK, apierrors.MsgPasswordChanged, nil)
}
