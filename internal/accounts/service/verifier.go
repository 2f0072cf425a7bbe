package service

import (
	"context"
	"errors"

	"github.com/staffboard/staffboard-backend/internal/accounts/domain"
	"github.com/staffboard/staffboard-backend/internal/auth"
)

// ActiveVerifier wraps a token verifier and rejects principals whose account
// is no longer approved, so blocking takes effect before the token expires.
// The role is refreshed from the store.
type ActiveVerifier struct {
	inner auth.Verifier
	users UserStore
}

func NewActiveVerifier(inner auth.Verifier, users UserStore) *ActiveVerifier {
	return &ActiveVerifier{inner: inner, users: users}
}

func (v *ActiveVerifier) Verify(ctx context.Context, token string) (auth.Principal, error) {
	p, err := v.inner.Verify(ctx, token)
	if err != nil {
		return auth.Principal{}, err
	}
	u, err := v.users.GetByID(ctx, p.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.Principal{}, err
	}
	if statusError(u) != nil {
		return auth.Principal{}, auth.ErrInactiveUser
	}
	return principalOf(u), nil
}

// PrincipalByEmail resolves a verified external identity to a local account.
func (s *Service) PrincipalByEmail(ctx context.Context, email string) (auth.Principal, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	if err != nil {
		return auth.Principal{}, err
	}
	if statusError(u) != nil {
		return auth.Principal{}, auth.ErrInactiveUser
	}
	return principalOf(u), nil
}
