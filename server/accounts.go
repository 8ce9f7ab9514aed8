package server

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// CredentialVerifier authenticates end-user credentials.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*User, error)
}

type account struct {
	user User
	hash []byte
}

// AccountStore is an in-memory credential verifier seeded from config.
type AccountStore struct {
	mu      sync.RWMutex
	byEmail map[string]account
}

// NewAccountStore hashes configured passwords and indexes accounts by
// lowercased email.
func NewAccountStore(cfgs []UserConfig) (*AccountStore, error) {
	store := &AccountStore{byEmail: make(map[string]account, len(cfgs))}
	for i, cfg := range cfgs {
		email := normalizeEmail(cfg.Email)
		if email == "" {
			return nil, fmt.Errorf("users[%d]: email required", i)
		}
		hash := []byte(cfg.PasswordHash)
		if len(hash) == 0 {
			h, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("users[%d] (%s): hash password: %w", i, email, err)
			}
			hash = h
		}
		store.byEmail[email] = account{
			user: User{ID: "local:" + email, Email: email, Name: cfg.Name},
			hash: hash,
		}
	}
	return store, nil
}

// Verify checks credentials and returns the account's identity.
func (s *AccountStore) Verify(_ context.Context, email, password string) (*User, error) {
	s.mu.RLock()
	acct, ok := s.byEmail[normalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no account for %q", email)
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return nil, fmt.Errorf("password mismatch for %q: %w", email, err)
	}
	user := acct.user
	return &user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
