package http

import (
	"github.com/staffboard/staffboard-backend/internal/accounts/service"
	"go.uber.org/zap"
)

type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

type registerRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	Role        string `json:"role" binding:"required"`
	Phone       string `json:"phone"`
	Department  string `json:"department"`
	CompanyName string `json:"companyName"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type approveRequest struct {
	EmployeeID string `json:"employeeId"`
	ClientID   string `json:"clientId"`
}

type declineRequest struct {
	Reason string `json:"reason"`
}

type updateUserRequest struct {
	Name        *string `json:"name"`
	Phone       *string `json:"phone"`
	Department  *string `json:"department"`
	CompanyName *string `json:"companyName"`
	Role        *string `json:"role"`
	EmployeeID  *string `json:"employeeId"`
	ClientID    *string `json:"clientId"`
}
