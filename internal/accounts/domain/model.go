package domain

import (
	"time"

	"github.com/staffboard/staffboard-backend/internal/permissions"
)

type AccountStatus string

const (
	StatusPending  AccountStatus = "pending"
	StatusApproved AccountStatus = "approved"
	StatusDeclined AccountStatus = "declined"
	StatusBlocked  AccountStatus = "blocked"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDeclined, StatusBlocked:
		return true
	}
	return false
}

// User is a verified account. Unverified sign-ups live in PendingRegistration
// until their OTP is confirmed.
type User struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	PasswordHash  string           `json:"-"`
	Role          permissions.Role `json:"role"`
	Phone         string           `json:"phone,omitempty"`
	Department    string           `json:"department,omitempty"`
	CompanyName   string           `json:"companyName,omitempty"`
	EmployeeID    *string          `json:"employeeId,omitempty"`
	ClientID      *string          `json:"clientId,omitempty"`
	IsVerified    bool             `json:"isVerified"`
	AccountStatus AccountStatus    `json:"accountStatus"`
	IDAssigned    bool             `json:"idAssigned"`
	DeclineReason string           `json:"declineReason,omitempty"`
	LastLoginAt   *time.Time       `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// PendingRegistration is held in redis with a TTL equal to the OTP lifetime.
type PendingRegistration struct {
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	PasswordHash string           `json:"password_hash"`
	Role         permissions.Role `json:"role"`
	Phone        string           `json:"phone,omitempty"`
	Department   string           `json:"department,omitempty"`
	CompanyName  string           `json:"company_name,omitempty"`
	OTPHash      string           `json:"otp_hash"`
	Attempts     int              `json:"attempts"`
	CreatedAt    time.Time        `json:"created_at"`
	LastSentAt   time.Time        `json:"last_sent_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
}

// PasswordReset is a short-lived reset code for an existing account.
type PasswordReset struct {
	Email     string    `json:"email"`
	OTPHash   string    `json:"otp_hash"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RegisterRequest struct {
	Name        string
	Email       string
	Password    string
	Role        string
	Phone       string
	Department  string
	CompanyName string
}

type UserFilter struct {
	Role   permissions.Role
	Status AccountStatus
	Search string
	Page   int
	Limit  int
	Sort   string // created_at | name | email, prefix "-" for descending

	// OnlyRoles restricts results to these roles; set for HR callers.
	OnlyRoles []permissions.Role
}

type UserPage struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// UserPatch holds admin edits. Nil fields are left unchanged.
type UserPatch struct {
	Name        *string
	Phone       *string
	Department  *string
	CompanyName *string
	Role        *permissions.Role
	EmployeeID  *string
	ClientID    *string
}

// ApproveRequest carries the identifier to assign on approval; only the one
// matching the user's role is used.
type ApproveRequest struct {
	EmployeeID string
	ClientID   string
}

// StatusUpdate describes an account status transition.
type StatusUpdate struct {
	Status        AccountStatus
	From          []AccountStatus // allowed current statuses; empty means any
	EmployeeID    *string
	ClientID      *string
	IDAssigned    *bool
	DeclineReason *string
}

type Stats struct {
	Total    int                                        `json:"total"`
	ByRole   map[permissions.Role]int                   `json:"byRole"`
	ByStatus map[AccountStatus]int                      `json:"byStatus"`
	Matrix   map[permissions.Role]map[AccountStatus]int `json:"matrix"`
}
