package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"go.uber.org/zap"
)

// Register stages a sign-up in the pending store and emails a verification
// code. The user record is only created once the code is confirmed.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (time.Time, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)

	if name == "" {
		return time.Time{}, domain.Invalid("name", "is required")
	}
	if !validEmail(email) {
		return time.Time{}, domain.Invalid("email", "is not a valid address")
	}
	if err := validatePassword(req.Password); err != nil {
		return time.Time{}, err
	}
	role, ok := permissions.ParseRole(req.Role)
	if !ok || role == permissions.RoleAdmin {
		return time.Time{}, domain.Invalid("role", "must be one of hr, employee, client")
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return time.Time{}, err
	}
	if exists {
		return time.Time{}, domain.ErrEmailTaken
	}

	now := s.now()
	if prev, err := s.pending.Get(ctx, email); err == nil {
		if now.Sub(prev.LastSentAt) < s.opts.ResendInterval {
			return time.Time{}, domain.ErrResendTooSoon
		}
	} else if !errors.Is(err, domain.ErrRegistrationNotFound) {
		return time.Time{}, err
	}

	pwHash, err := s.hash(req.Password)
	if err != nil {
		return time.Time{}, fmt.Errorf("hash password: %w", err)
	}
	code, otpHash, err := s.issueCode()
	if err != nil {
		return time.Time{}, err
	}

	p := &domain.PendingRegistration{
		Email:        email,
		Name:         name,
		PasswordHash: pwHash,
		Role:         role,
		Phone:        strings.TrimSpace(req.Phone),
		Department:   strings.TrimSpace(req.Department),
		CompanyName:  strings.TrimSpace(req.CompanyName),
		OTPHash:      otpHash,
		CreatedAt:    now,
		LastSentAt:   now,
		ExpiresAt:    now.Add(s.opts.OTPTTL),
	}
	if err := s.pending.Save(ctx, p); err != nil {
		return time.Time{}, err
	}
	if err := s.outbox.Enqueue(ctx, s.codeNote(notify.KindOTP, email, name, code)); err != nil {
		return time.Time{}, err
	}
	return p.ExpiresAt, nil
}

// VerifyOTP promotes a pending registration to a verified user awaiting
// approval and tells the approvers about it.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*domain.User, error) {
	email = normalizeEmail(email)
	p, err := s.pending.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if p.Attempts >= s.opts.MaxAttempts {
		_ = s.pending.Delete(ctx, email)
		return nil, domain.ErrTooManyAttempts
	}
	if !matches(p.OTPHash, strings.TrimSpace(code)) {
		n, err := s.pending.RecordFailedAttempt(ctx, email, p.ExpiresAt)
		if err != nil {
			return nil, err
		}
		if n >= s.opts.MaxAttempts {
			_ = s.pending.Delete(ctx, email)
			return nil, domain.ErrTooManyAttempts
		}
		return nil, domain.ErrInvalidOTP
	}

	u := &domain.User{
		Name:          p.Name,
		Email:         p.Email,
		PasswordHash:  p.PasswordHash,
		Role:          p.Role,
		Phone:         p.Phone,
		Department:    p.Department,
		CompanyName:   p.CompanyName,
		IsVerified:    true,
		AccountStatus: domain.StatusPending,
	}

	approvers, err := s.users.Approvers(ctx)
	if err != nil {
		return nil, err
	}
	notes := make([]notify.Notification, 0, len(approvers))
	for _, a := range approvers {
		// HR only reviews the roles it may approve.
		if a.Role == permissions.RoleHR && permissions.IsElevated(u.Role) {
			continue
		}
		notes = append(notes, notify.Notification{
			Kind:      notify.KindRegistrationPending,
			Recipient: a.Email,
			Payload:   map[string]any{"name": u.Name, "email": u.Email, "role": string(u.Role)},
		})
	}

	if err := s.users.Create(ctx, u, notes...); err != nil {
		return nil, err
	}
	if err := s.pending.Delete(ctx, email); err != nil {
		s.logger.Warn("failed to clear pending registration", zap.String("email", email), zap.Error(err))
	}
	return u, nil
}

// ResendOTP issues a fresh code for a pending registration.
func (s *Service) ResendOTP(ctx context.Context, email string) (time.Time, error) {
	email = normalizeEmail(email)
	p, err := s.pending.Get(ctx, email)
	if err != nil {
		return time.Time{}, err
	}
	now := s.now()
	if now.Sub(p.LastSentAt) < s.opts.ResendInterval {
		return time.Time{}, domain.ErrResendTooSoon
	}

	code, otpHash, err := s.issueCode()
	if err != nil {
		return time.Time{}, err
	}
	p.OTPHash = otpHash
	p.Attempts = 0
	p.LastSentAt = now
	p.ExpiresAt = now.Add(s.opts.OTPTTL)
	if err := s.pending.Save(ctx, p); err != nil {
		return time.Time{}, err
	}
	if err := s.outbox.Enqueue(ctx, s.codeNote(notify.KindOTP, email, p.Name, code)); err != nil {
		return time.Time{}, err
	}
	return p.ExpiresAt, nil
}

// LoginResult is returned to the client after a successful sign-in.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !matches(u.PasswordHash, password) {
		return nil, domain.ErrInvalidCredentials
	}
	if err := statusError(u); err != nil {
		return nil, err
	}

	token, exp, err := s.tokens.Issue(principalOf(u))
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	now := s.now()
	if err := s.users.TouchLogin(ctx, u.ID, now); err != nil {
		s.logger.Warn("failed to record login", zap.String("user_id", u.ID), zap.Error(err))
	} else {
		u.LastLoginAt = &now
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// ForgotPassword emails a reset code. Unknown addresses succeed silently so
// the endpoint cannot be used to probe for accounts.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	code, otpHash, err := s.issueCode()
	if err != nil {
		return err
	}
	reset := &domain.PasswordReset{Email: email, OTPHash: otpHash, ExpiresAt: s.now().Add(s.opts.OTPTTL)}
	if err := s.pending.SaveReset(ctx, reset); err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, s.codeNote(notify.KindPasswordReset, email, u.Name, code))
}

func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	reset, err := s.pending.GetReset(ctx, email)
	if err != nil {
		return err
	}
	if reset.Attempts >= s.opts.MaxAttempts {
		_ = s.pending.DeleteReset(ctx, email)
		return domain.ErrTooManyAttempts
	}
	if !matches(reset.OTPHash, strings.TrimSpace(code)) {
		n, err := s.pending.RecordFailedReset(ctx, email, reset.ExpiresAt)
		if err != nil {
			return err
		}
		if n >= s.opts.MaxAttempts {
			_ = s.pending.DeleteReset(ctx, email)
			return domain.ErrTooManyAttempts
		}
		return domain.ErrInvalidOTP
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}
	return s.pending.DeleteReset(ctx, email)
}

func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !matches(u.PasswordHash, oldPassword) {
		return domain.ErrInvalidCredentials
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, u.ID, hash)
}

func (s *Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

// EnsureAdmin creates the bootstrap administrator when the address is free.
func (s *Service) EnsureAdmin(ctx context.Context, email, password, name string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil || exists {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		Role:          permissions.RoleAdmin,
		IsVerified:    true,
		AccountStatus: domain.StatusApproved,
	}
	if err := s.users.Create(ctx, u); err != nil && !errors.Is(err, domain.ErrEmailTaken) {
		return err
	}
	s.logger.Info("bootstrap admin ensured", zap.String("email", email))
	return nil
}

func (s *Service) issueCode() (code, hash string, err error) {
	code, err = newOTP(s.opts.OTPLength)
	if err != nil {
		return "", "", fmt.Errorf("generate otp: %w", err)
	}
	hash, err = s.hash(code)
	if err != nil {
		return "", "", fmt.Errorf("hash otp: %w", err)
	}
	return code, hash, nil
}

func (s *Service) codeNote(kind notify.Kind, email, name, code string) notify.Notification {
	return notify.Notification{
		Kind:      kind,
		Recipient: email,
		Payload: map[string]any{
			"name":        name,
			"code":        code,
			"ttl_minutes": ttlMinutes(s.opts.OTPTTL),
		},
	}
}

// statusError reports why a user may not sign in, or nil.
func statusError(u *domain.User) error {
	switch u.AccountStatus {
	case domain.StatusBlocked:
		return domain.ErrAccountBlocked
	case domain.StatusDeclined:
		return domain.ErrAccountDeclined
	case domain.StatusPending:
		return domain.ErrAwaitingApproval
	}
	if !u.IsVerified {
		return domain.ErrNotVerified
	}
	return nil
}

func principalOf(u *domain.User) auth.Principal {
	return auth.Principal{UserID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}
