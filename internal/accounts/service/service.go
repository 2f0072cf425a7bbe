package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/auth"
	"github.com/staffboard/staffboard-backend/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the persistent account store.
type UserStore interface {
	Create(ctx context.Context, u *domain.User, notes ...notify.Notification) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Approvers(ctx context.Context) ([]domain.User, error)
	List(ctx context.Context, f domain.UserFilter) (*domain.UserPage, error)
	UpdateStatus(ctx context.Context, id string, upd domain.StatusUpdate, notes ...notify.Notification) (*domain.User, error)
	Update(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.Stats, error)
}

// PendingStore holds registrations and password resets awaiting a code.
type PendingStore interface {
	Save(ctx context.Context, p *domain.PendingRegistration) error
	Get(ctx context.Context, email string) (*domain.PendingRegistration, error)
	RecordFailedAttempt(ctx context.Context, email string, expiresAt time.Time) (int, error)
	Delete(ctx context.Context, email string) error
	SaveReset(ctx context.Context, p *domain.PasswordReset) error
	GetReset(ctx context.Context, email string) (*domain.PasswordReset, error)
	RecordFailedReset(ctx context.Context, email string, expiresAt time.Time) (int, error)
	DeleteReset(ctx context.Context, email string) error
}

// Outbox queues emails that are not tied to a database transaction.
type Outbox interface {
	Enqueue(ctx context.Context, ns ...notify.Notification) error
}

// TokenIssuer signs access tokens for logged-in users.
type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

type Options struct {
	OTPTTL         time.Duration
	OTPLength      int
	MaxAttempts    int
	ResendInterval time.Duration
	BcryptCost     int
}

// Service implements onboarding, login and user administration.
type Service struct {
	users   UserStore
	pending PendingStore
	outbox  Outbox
	tokens  TokenIssuer
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

func New(users UserStore, pending PendingStore, outbox Outbox, tokens TokenIssuer, opts Options, logger *zap.Logger) *Service {
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = 10 * time.Minute
	}
	if opts.OTPLength <= 0 {
		opts.OTPLength = 6
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:   users,
		pending: pending,
		outbox:  outbox,
		tokens:  tokens,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return domain.Invalid("password", "must be at least 8 characters")
	}
	if len(pw) > 72 {
		return domain.Invalid("password", "must be at most 72 characters")
	}
	return nil
}

func (s *Service) hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), s.opts.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func matches(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// newOTP returns a uniformly random numeric code of n digits.
func newOTP(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func ttlMinutes(d time.Duration) int {
	m := int(d.Round(time.Minute) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
