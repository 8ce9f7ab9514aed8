package server

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/go-jose/go-jose/v3"
)

// stubSigner lets tests fail individual mint operations.
type stubSigner struct {
	idTokenErr     error
	accessTokenErr error
	idTokens       int
	accessTokens   int
}

func (s *stubSigner) CreateIDToken(_ *User, _ *Client, _ []string, _ string) (string, error) {
	if s.idTokenErr != nil {
		return "", s.idTokenErr
	}
	s.idTokens++
	return "idtoken-signed", nil
}

func (s *stubSigner) CreateAccessToken(_ *User, _ *Client, _ []string) (string, error) {
	if s.accessTokenErr != nil {
		return "", s.accessTokenErr
	}
	s.accessTokens++
	return "accesstoken-signed", nil
}

func (s *stubSigner) PublicKeySet() jose.JSONWebKeySet { return jose.JSONWebKeySet{} }
func (s *stubSigner) CreateSigningKey() error          { return nil }
func (s *stubSigner) ImportKeystore(io.Reader) error   { return nil }
func (s *stubSigner) ExportKeystore(io.Writer) error   { return nil }

func newTestIssuer(signer TokenSigner) *Issuer {
	return NewIssuer(signer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func issuanceFixture(responseType ...string) (*User, *Client, *Interaction) {
	user := &User{ID: "local:dev@example.com", Email: "dev@example.com"}
	client := &Client{ClientID: "abc"}
	inter := &Interaction{
		ClientID:     "abc",
		Client:       client,
		ResponseType: ResponseTypeSet(responseType),
		Scope:        []string{"openid", "email"},
		State:        "s1",
		Nonce:        "n1",
	}
	return user, client, inter
}

func TestIssueCodeOnly(t *testing.T) {
	signer := &stubSigner{}
	user, client, inter := issuanceFixture(ResponseTypeCode)

	grant, err := newTestIssuer(signer).Issue(user, client, inter)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.Code == "" {
		t.Fatalf("expected code")
	}
	if grant.IDToken != "" || grant.AccessToken != "" {
		t.Fatalf("code-only grant minted extra tokens: %+v", grant)
	}
	if signer.idTokens != 0 || signer.accessTokens != 0 {
		t.Fatalf("signer invoked for code-only flow")
	}
	if inter.Code != grant.Code {
		t.Fatalf("code not recorded on interaction")
	}
	if grant.State != "s1" || grant.Nonce != "n1" {
		t.Fatalf("state/nonce not echoed: %+v", grant)
	}
}

func TestIssueHybridMintsAllThree(t *testing.T) {
	signer := &stubSigner{}
	user, client, inter := issuanceFixture(ResponseTypeCode, ResponseTypeIDToken, ResponseTypeToken)

	grant, err := newTestIssuer(signer).Issue(user, client, inter)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.Code == "" || grant.IDToken == "" || grant.AccessToken == "" {
		t.Fatalf("hybrid grant incomplete: %+v", grant)
	}
	if inter.Code == "" || inter.IDToken == "" || inter.AccessToken == "" {
		t.Fatalf("artifacts not recorded on interaction")
	}
}

func TestIssueIDTokenFailureKeepsMintedCode(t *testing.T) {
	signer := &stubSigner{idTokenErr: errors.New("hsm offline")}
	user, client, inter := issuanceFixture(ResponseTypeCode, ResponseTypeIDToken, ResponseTypeToken)

	_, err := newTestIssuer(signer).Issue(user, client, inter)
	if err == nil {
		t.Fatalf("expected signer failure to propagate")
	}
	if inter.Code == "" {
		t.Fatalf("code minted before the failure should stay recorded")
	}
	if inter.IDToken != "" || inter.AccessToken != "" {
		t.Fatalf("steps after the failure should not have run")
	}
	if signer.accessTokens != 0 {
		t.Fatalf("access token mint should not run after id_token failure")
	}
}

func TestIssueAccessTokenFailurePropagates(t *testing.T) {
	signer := &stubSigner{accessTokenErr: errors.New("hsm offline")}
	user, client, inter := issuanceFixture(ResponseTypeCode, ResponseTypeToken)

	_, err := newTestIssuer(signer).Issue(user, client, inter)
	if err == nil {
		t.Fatalf("expected signer failure to propagate")
	}
	if inter.Code == "" {
		t.Fatalf("code should stay recorded")
	}
}

func TestIssueCodesAreUnique(t *testing.T) {
	signer := &stubSigner{}
	issuer := newTestIssuer(signer)
	user, client, _ := issuanceFixture(ResponseTypeCode)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		_, _, inter := issuanceFixture(ResponseTypeCode)
		grant, err := issuer.Issue(user, client, inter)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[grant.Code] {
			t.Fatalf("duplicate code issued: %q", grant.Code)
		}
		seen[grant.Code] = true
	}
}

func TestIssueNoEchoWhenAbsent(t *testing.T) {
	signer := &stubSigner{}
	user, client, inter := issuanceFixture(ResponseTypeCode)
	inter.State = ""
	inter.Nonce = ""

	grant, err := newTestIssuer(signer).Issue(user, client, inter)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.State != "" || grant.Nonce != "" {
		t.Fatalf("state/nonce fabricated: %+v", grant)
	}
}
