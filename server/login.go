package server

import (
	"context"
	"fmt"
	"log/slog"
)

// Authenticator is the authentication step bridging a credential
// submission to token issuance.
type Authenticator struct {
	verifier    CredentialVerifier
	issuer      *Issuer
	maxAttempts int
	logger      *slog.Logger
}

// NewAuthenticator constructs the authentication step.
func NewAuthenticator(verifier CredentialVerifier, issuer *Issuer, cfg Config, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		verifier:    verifier,
		issuer:      issuer,
		maxAttempts: cfg.Sessions.MaxLoginAttempts,
		logger:      logger,
	}
}

// Authenticate verifies the submitted credentials against the pending
// interaction and, on success, hands off to the issuance coordinator.
// The submitted email and password are persisted onto the interaction
// before verification so a failed attempt can prefill the login form.
func (a *Authenticator) Authenticate(ctx context.Context, sess *Session, email, password string) (*User, GrantResult, error) {
	inter := sess.Interaction
	if inter == nil || len(inter.ResponseType) == 0 {
		return nil, GrantResult{}, &SessionError{Reason: "no authorization context for this login"}
	}

	inter.Email = email
	inter.Password = password
	inter.Attempts++

	if a.maxAttempts > 0 && inter.Attempts > a.maxAttempts {
		return nil, GrantResult{}, &AuthError{cause: fmt.Errorf("attempt limit reached after %d tries", inter.Attempts)}
	}

	user, err := a.verifier.Verify(ctx, email, password)
	if err != nil {
		return nil, GrantResult{}, &AuthError{cause: err}
	}

	grant, err := a.issuer.Issue(user, inter.Client, inter)
	if err != nil {
		return user, GrantResult{}, err
	}
	return user, grant, nil
}
