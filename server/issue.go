package server

import (
	"fmt"
	"log/slog"
)

// Issuer decides which artifacts to mint for an authenticated user and
// builds the grant result.
type Issuer struct {
	signer TokenSigner
	logger *slog.Logger
}

// NewIssuer constructs the issuance coordinator.
func NewIssuer(signer TokenSigner, logger *slog.Logger) *Issuer {
	return &Issuer{signer: signer, logger: logger}
}

// Issue evaluates the interaction's response type set member by member,
// in fixed order: code, then id_token, then token. Each member is
// independent, so hybrid combinations mint everything requested. A
// signer failure aborts the issuance, but artifacts minted before the
// failure stay recorded on the interaction; there is no rollback.
func (i *Issuer) Issue(user *User, client *Client, inter *Interaction) (GrantResult, error) {
	var result GrantResult

	if inter.ResponseType.Has(ResponseTypeCode) {
		code := NewID()
		inter.Code = code
		result.Code = code
		i.logger.Debug("authorization code minted", "client_id", client.ClientID)
	}

	if inter.ResponseType.Has(ResponseTypeIDToken) {
		idToken, err := i.signer.CreateIDToken(user, client, inter.Scope, inter.Nonce)
		if err != nil {
			return GrantResult{}, fmt.Errorf("issue id_token: %w", err)
		}
		inter.IDToken = idToken
		result.IDToken = idToken
	}

	if inter.ResponseType.Has(ResponseTypeToken) {
		accessToken, err := i.signer.CreateAccessToken(user, client, inter.Scope)
		if err != nil {
			return GrantResult{}, fmt.Errorf("issue access_token: %w", err)
		}
		inter.AccessToken = accessToken
		result.AccessToken = accessToken
	}

	// State and nonce are echoed only when present, never fabricated.
	result.State = inter.State
	result.Nonce = inter.Nonce
	return result, nil
}
