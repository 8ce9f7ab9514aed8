package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

type keyPair struct {
	PrivateKey *rsa.PrivateKey
	JWK        jose.JSONWebKey
	Kid        string
	CreatedAt  time.Time
}

// JWKSManager owns the signing key lifecycle: generation, rotation,
// keystore persistence, and public JSON Web Key Set exposure.
type JWKSManager struct {
	mu          sync.RWMutex
	current     keyPair
	previous    []keyPair
	rotateEvery time.Duration
	storePath   string
	logger      *slog.Logger
}

// NewJWKSManager loads the keystore from disk or creates a fresh key.
func NewJWKSManager(cfg KeyConfig, logger *slog.Logger) (*JWKSManager, error) {
	manager := &JWKSManager{
		rotateEvery: cfg.RotateInterval.Std(),
		storePath:   cfg.KeystorePath,
		logger:      logger,
	}

	if cfg.KeystorePath != "" {
		if err := manager.loadFromDisk(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	if manager.current.PrivateKey == nil {
		if err := manager.CreateSigningKey(); err != nil {
			return nil, err
		}
	}

	return manager, nil
}

// StartRotation launches the background rotation ticker.
func (m *JWKSManager) StartRotation(stop <-chan struct{}) {
	if m.rotateEvery <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.rotateEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.CreateSigningKey(); err != nil {
					m.logger.Error("signing key rotation failed", "error", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Sign signs claims with the current key and returns the compact token
// and the kid it was signed under.
func (m *JWKSManager) Sign(claims jwt.MapClaims) (string, string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	m.mu.RLock()
	defer m.mu.RUnlock()
	token.Header["kid"] = m.current.Kid
	signed, err := token.SignedString(m.current.PrivateKey)
	if err != nil {
		return "", "", err
	}
	return signed, m.current.Kid, nil
}

// Keyfunc resolves verification keys during JWT validation.
func (m *JWKSManager) Keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if kid == "" || kid == m.current.Kid {
		return &m.current.PrivateKey.PublicKey, nil
	}
	for _, prev := range m.previous {
		if prev.Kid == kid {
			return &prev.PrivateKey.PublicKey, nil
		}
	}
	return &m.current.PrivateKey.PublicKey, nil
}

// PublicJWKS exposes public keys, current first. Previous keys stay
// published so tokens signed before a rotation remain verifiable.
func (m *JWKSManager) PublicJWKS() jose.JSONWebKeySet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := []jose.JSONWebKey{m.current.JWK.Public()}
	for _, prev := range m.previous {
		keys = append(keys, prev.JWK.Public())
	}
	return jose.JSONWebKeySet{Keys: keys}
}

// CreateSigningKey generates a fresh RSA key and makes it current. The
// most recent previous key is retained for verification overlap.
func (m *JWKSManager) CreateSigningKey() error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}
	kid := randomKID()
	jwk := jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: string(jose.RS256), Use: "sig"}

	m.mu.Lock()
	if m.current.PrivateKey != nil {
		m.previous = append([]keyPair{m.current}, m.previous...)
		if len(m.previous) > 1 {
			m.previous = m.previous[:1]
		}
	}
	m.current = keyPair{PrivateKey: key, JWK: jwk, Kid: kid, CreatedAt: time.Now()}
	m.mu.Unlock()

	if m.storePath != "" {
		return m.persist()
	}
	return nil
}

// ExportKeystore writes the full keystore, private keys included, as a
// JWKS document.
func (m *JWKSManager) ExportKeystore(w io.Writer) error {
	m.mu.RLock()
	keys := []jose.JSONWebKey{m.current.JWK}
	for _, prev := range m.previous {
		keys = append(keys, prev.JWK)
	}
	m.mu.RUnlock()

	payload, err := json.MarshalIndent(jose.JSONWebKeySet{Keys: keys}, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ImportKeystore replaces the key material with the keys from a JWKS
// document. The first key becomes current.
func (m *JWKSManager) ImportKeystore(r io.Reader) error {
	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(payload, &set); err != nil {
		return err
	}

	var current keyPair
	var previous []keyPair
	for _, key := range set.Keys {
		priv, ok := key.Key.(*rsa.PrivateKey)
		if !ok {
			continue
		}
		pair := keyPair{PrivateKey: priv, JWK: key, Kid: key.KeyID, CreatedAt: time.Now()}
		if current.PrivateKey == nil {
			current = pair
		} else {
			previous = append(previous, pair)
		}
	}
	if current.PrivateKey == nil {
		return errors.New("no usable private keys in keystore")
	}

	m.mu.Lock()
	m.current = current
	m.previous = previous
	m.mu.Unlock()
	return nil
}

func (m *JWKSManager) persist() error {
	if err := os.MkdirAll(filepath.Dir(m.storePath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(m.storePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.ExportKeystore(f)
}

func (m *JWKSManager) loadFromDisk() error {
	f, err := os.Open(m.storePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.ImportKeystore(f)
}

func randomKID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "kid"
	}
	return hex.EncodeToString(buf)
}
