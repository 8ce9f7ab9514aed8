package server

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Server.PublicURL = "http://auth.test"
	cfg.Tokens.AccessTTL = Duration(time.Minute)
	cfg.Tokens.IDTokenTTL = Duration(time.Hour)
	cfg.Keys.KeystorePath = ""

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwks, err := NewJWKSManager(cfg.Keys, logger)
	if err != nil {
		t.Fatalf("NewJWKSManager: %v", err)
	}
	return NewTokenService(cfg, jwks, logger)
}

func TestCreateIDTokenClaims(t *testing.T) {
	ts := newTestTokenService(t)
	user := &User{ID: "local:dev@example.com", Email: "dev@example.com", Name: "Dev User"}
	client := &Client{ClientID: "abc"}

	token, err := ts.CreateIDToken(user, client, []string{"openid", "email", "profile"}, "n1")
	if err != nil {
		t.Fatalf("CreateIDToken: %v", err)
	}

	claims, err := ts.ParseIDToken(token)
	if err != nil {
		t.Fatalf("ParseIDToken: %v", err)
	}
	if claims.Subject != "local:dev@example.com" {
		t.Fatalf("unexpected subject: %q", claims.Subject)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "abc" {
		t.Fatalf("unexpected audience: %v", claims.Audience)
	}
	if claims.Nonce != "n1" {
		t.Fatalf("nonce not bound: %q", claims.Nonce)
	}
	if claims.Email != "dev@example.com" || claims.Name != "Dev User" {
		t.Fatalf("scoped claims missing: %+v", claims)
	}
	if claims.AuthTime == 0 {
		t.Fatalf("auth_time missing")
	}
}

func TestCreateIDTokenScopeGatesProfileClaims(t *testing.T) {
	ts := newTestTokenService(t)
	user := &User{ID: "local:dev@example.com", Email: "dev@example.com", Name: "Dev User"}
	client := &Client{ClientID: "abc"}

	token, err := ts.CreateIDToken(user, client, []string{"openid"}, "")
	if err != nil {
		t.Fatalf("CreateIDToken: %v", err)
	}
	claims, err := ts.ParseIDToken(token)
	if err != nil {
		t.Fatalf("ParseIDToken: %v", err)
	}
	if claims.Email != "" || claims.Name != "" {
		t.Fatalf("claims released without scope: %+v", claims)
	}
}

func TestCreateAccessToken(t *testing.T) {
	ts := newTestTokenService(t)
	user := &User{ID: "local:dev@example.com"}
	client := &Client{ClientID: "abc"}
	scope := []string{"openid", "email"}

	first, err := ts.CreateAccessToken(user, client, scope)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	second, err := ts.CreateAccessToken(user, client, scope)
	if err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if first == "" || first == second {
		t.Fatalf("expected distinct non-empty tokens")
	}

	tok, err := jwt.ParseWithClaims(first, &AccessTokenClaims{}, ts.jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	claims, ok := tok.Claims.(*AccessTokenClaims)
	if !ok || !tok.Valid {
		t.Fatalf("invalid access token claims")
	}
	if claims.Scope != "openid email" {
		t.Fatalf("granted scope not carried: %q", claims.Scope)
	}
	if claims.ClientID != "abc" || claims.Subject != "local:dev@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestPublicKeySetRetainsPreviousKeyAfterRotation(t *testing.T) {
	ts := newTestTokenService(t)
	if got := len(ts.PublicKeySet().Keys); got != 1 {
		t.Fatalf("expected 1 key, got %d", got)
	}
	if err := ts.CreateSigningKey(); err != nil {
		t.Fatalf("CreateSigningKey: %v", err)
	}
	if got := len(ts.PublicKeySet().Keys); got != 2 {
		t.Fatalf("expected rotation overlap of 2 keys, got %d", got)
	}
}

func TestKeystoreExportImportRoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	user := &User{ID: "local:dev@example.com"}
	client := &Client{ClientID: "abc"}

	token, err := ts.CreateIDToken(user, client, []string{"openid"}, "")
	if err != nil {
		t.Fatalf("CreateIDToken: %v", err)
	}

	var buf bytes.Buffer
	if err := ts.ExportKeystore(&buf); err != nil {
		t.Fatalf("ExportKeystore: %v", err)
	}

	other := newTestTokenService(t)
	if err := other.ImportKeystore(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("ImportKeystore: %v", err)
	}
	if _, err := other.ParseIDToken(token); err != nil {
		t.Fatalf("imported keystore cannot verify token: %v", err)
	}
}
