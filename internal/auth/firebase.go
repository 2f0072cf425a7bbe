package auth

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// InitializeFirebase initializes the Firebase Admin SDK and returns an Auth client
func InitializeFirebase(ctx context.Context, credentialsPath string) (*fbauth.Client, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required")
	}

	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Auth client: %w", err)
	}

	return authClient, nil
}

// IDTokenVerifier is the part of *fbauth.Client the verifier needs.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// PrincipalLookup resolves an active account by its email address.
type PrincipalLookup interface {
	PrincipalByEmail(ctx context.Context, email string) (Principal, error)
}

// FirebaseVerifier accepts Firebase ID tokens and maps them onto local
// accounts by email, so roles and approval state stay in our database.
type FirebaseVerifier struct {
	tokens IDTokenVerifier
	lookup PrincipalLookup
}

func NewFirebaseVerifier(tokens IDTokenVerifier, lookup PrincipalLookup) *FirebaseVerifier {
	return &FirebaseVerifier{tokens: tokens, lookup: lookup}
}

func (f *FirebaseVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	decoded, err := f.tokens.VerifyIDToken(ctx, token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}

	email, _ := decoded.Claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Principal{}, ErrInvalidToken
	}

	p, err := f.lookup.PrincipalByEmail(ctx, email)
	if err != nil {
		return Principal{}, err
	}
	return p, nil
}
