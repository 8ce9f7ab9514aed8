package server

import (
	"fmt"
	"net/url"
)

// AssembleRedirect encodes the grant into the client's redirect URI
// using the negotiated response mode: query-string placement for query,
// URL-fragment placement for fragment. Absent fields add no parameter.
func AssembleRedirect(redirectURI, responseMode string, grant GrantResult) (string, error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect_uri: %w", err)
	}

	params := url.Values{}
	if grant.Code != "" {
		params.Set("code", grant.Code)
	}
	if grant.AccessToken != "" {
		params.Set("access_token", grant.AccessToken)
	}
	if grant.IDToken != "" {
		params.Set("id_token", grant.IDToken)
	}
	if grant.State != "" {
		params.Set("state", grant.State)
	}
	if grant.Nonce != "" {
		params.Set("nonce", grant.Nonce)
	}

	if responseMode == ResponseModeFragment {
		enc := params.Encode()
		frag, err := url.PathUnescape(enc)
		if err != nil {
			return "", fmt.Errorf("encode fragment: %w", err)
		}
		// RawFragment carries the already-encoded form so serialization
		// does not escape it a second time. Any fragment on the
		// registered URI is replaced, not appended to.
		target.Fragment = frag
		target.RawFragment = enc
		return target.String(), nil
	}

	query := target.Query()
	for key, values := range params {
		query.Set(key, values[0])
	}
	target.RawQuery = query.Encode()
	return target.String(), nil
}
