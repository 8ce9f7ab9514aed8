package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenSigner is the signing capability the issuance coordinator drives.
// Backing implementations are swappable; the core never assumes more
// than these operations.
type TokenSigner interface {
	CreateIDToken(user *User, client *Client, scope []string, nonce string) (string, error)
	CreateAccessToken(user *User, client *Client, scope []string) (string, error)
	PublicKeySet() jose.JSONWebKeySet
	CreateSigningKey() error
	ImportKeystore(r io.Reader) error
	ExportKeystore(w io.Writer) error
}

// IDTokenClaims captures the ID token claim set.
type IDTokenClaims struct {
	Nonce    string `json:"nonce,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenClaims captures the access token claim set.
type AccessTokenClaims struct {
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// TokenService mints signed ID and access tokens through the JWKS
// manager's current key.
type TokenService struct {
	issuer     string
	accessTTL  time.Duration
	idTokenTTL time.Duration
	jwks       *JWKSManager
	logger     *slog.Logger
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg Config, jwks *JWKSManager, logger *slog.Logger) *TokenService {
	return &TokenService{
		issuer:     cfg.Issuer(),
		accessTTL:  cfg.Tokens.AccessTTL.Std(),
		idTokenTTL: cfg.Tokens.IDTokenTTL.Std(),
		jwks:       jwks,
		logger:     logger,
	}
}

// CreateIDToken signs an ID token bound to the user, the client, and
// the granted scope set. Profile claims are released only when the
// matching scope was granted.
func (ts *TokenService) CreateIDToken(user *User, client *Client, scope []string, nonce string) (string, error) {
	now := time.Now()
	claims := IDTokenClaims{
		Nonce:    nonce,
		AuthTime: now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{client.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.idTokenTTL)),
		},
	}
	if scopeContains(scope, "email") {
		claims.Email = user.Email
	}
	if scopeContains(scope, "profile") {
		claims.Name = user.Name
	}

	token, err := ts.sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign id_token: %w", err)
	}
	return token, nil
}

// CreateAccessToken signs an access token bound to the user, the
// client, and the granted scope.
func (ts *TokenService) CreateAccessToken(user *User, client *Client, scope []string) (string, error) {
	now := time.Now()
	claims := AccessTokenClaims{
		Scope:    JoinScope(scope),
		ClientID: client.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{client.ClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
			ID:        NewID(),
		},
	}

	token, err := ts.sign(claims)
	if err != nil {
		return "", fmt.Errorf("sign access_token: %w", err)
	}
	return token, nil
}

// PublicKeySet exposes the signer's public keys for the JWKS endpoint.
func (ts *TokenService) PublicKeySet() jose.JSONWebKeySet {
	return ts.jwks.PublicJWKS()
}

// CreateSigningKey rotates in a fresh signing key.
func (ts *TokenService) CreateSigningKey() error {
	return ts.jwks.CreateSigningKey()
}

// ImportKeystore replaces the signer's key material.
func (ts *TokenService) ImportKeystore(r io.Reader) error {
	return ts.jwks.ImportKeystore(r)
}

// ExportKeystore writes the signer's full key material.
func (ts *TokenService) ExportKeystore(w io.Writer) error {
	return ts.jwks.ExportKeystore(w)
}

// ParseIDToken validates a token minted by this service. Used by tests
// and the diagnostic surface.
func (ts *TokenService) ParseIDToken(token string) (*IDTokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	tok, err := jwt.ParseWithClaims(token, &IDTokenClaims{}, ts.jwks.Keyfunc, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*IDTokenClaims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Issuer != ts.issuer {
		return nil, fmt.Errorf("invalid issuer")
	}
	return claims, nil
}

func (ts *TokenService) sign(claims any) (string, error) {
	mapClaims, err := claimsToMap(claims)
	if err != nil {
		return "", err
	}
	token, _, err := ts.jwks.Sign(mapClaims)
	return token, err
}

func claimsToMap(claims any) (jwt.MapClaims, error) {
	b, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	var out jwt.MapClaims
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func scopeContains(scope []string, value string) bool {
	for _, s := range scope {
		if s == value {
			return true
		}
	}
	return false
}

// JoinScope renders a scope set back to its wire form.
func JoinScope(scope []string) string {
	return strings.Join(scope, " ")
}
