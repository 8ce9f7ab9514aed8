package server

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// Scope values this provider recognizes. Anything else in a scope
// parameter is dropped, never rejected.
var recognizedScopes = map[string]struct{}{
	"openid":         {},
	"profile":        {},
	"email":          {},
	"address":        {},
	"phone":          {},
	"offline_access": {},
}

var recognizedResponseTypes = map[string]struct{}{
	ResponseTypeCode:    {},
	ResponseTypeIDToken: {},
	ResponseTypeToken:   {},
}

// RequestValidator normalizes and validates raw authorization request
// parameters against protocol rules and the client registry.
type RequestValidator struct {
	registry ClientRegistry
}

// NewRequestValidator constructs a validator backed by the given registry.
func NewRequestValidator(registry ClientRegistry) *RequestValidator {
	return &RequestValidator{registry: registry}
}

// Validate builds an immutable AuthorizationRequest or fails with a
// ProtocolError. The registry lookup is the only side effect.
func (v *RequestValidator) Validate(ctx context.Context, params url.Values) (*AuthorizationRequest, error) {
	clientID := params.Get("client_id")
	if clientID == "" {
		return nil, invalidRequest("client_id", "client_id is required")
	}

	// Lookup failure and "not found" are deliberately indistinguishable.
	client, err := v.registry.Lookup(ctx, clientID)
	if err != nil {
		return nil, unauthorizedClient("unknown client")
	}

	redirectURI := params.Get("redirect_uri")
	if redirectURI == "" {
		return nil, invalidRequest("redirect_uri", "redirect_uri is required")
	}
	if !client.ValidRedirect(redirectURI) {
		return nil, invalidRequest("redirect_uri", "redirect_uri is not registered for this client")
	}

	responseType := parseResponseType(params.Get("response_type"))
	if len(responseType) == 0 {
		return nil, invalidRequest("response_type", "at least one of code, id_token, token is required")
	}

	responseMode := params.Get("response_mode")
	switch responseMode {
	case "":
		responseMode = inferResponseMode(responseType)
	case ResponseModeQuery, ResponseModeFragment:
	default:
		return nil, invalidRequest("response_mode", "response_mode must be query or fragment")
	}

	var maxAge *int64
	if raw := params.Get("max_age"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return nil, invalidRequest("max_age", "max_age must be a non-negative integer")
		}
		maxAge = &parsed
	}

	return &AuthorizationRequest{
		ClientID:     clientID,
		Client:       client,
		RedirectURI:  redirectURI,
		Scope:        parseScope(params.Get("scope"), client),
		ResponseType: responseType,
		ResponseMode: responseMode,
		State:        params.Get("state"),
		Nonce:        params.Get("nonce"),
		Display:      params.Get("display"),
		Prompt:       params.Get("prompt"),
		MaxAge:       maxAge,
		UILocales:    params.Get("ui_locales"),
		IDTokenHint:  params.Get("id_token_hint"),
		LoginHint:    params.Get("login_hint"),
		ACRValues:    params.Get("acr_values"),
	}, nil
}

// parseScope keeps recognized scope values the client is allowed to
// request, in request order, deduplicated. Unrecognized and disallowed
// values are dropped silently.
func parseScope(raw string, client *Client) []string {
	fields := strings.Fields(raw)
	scope := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, s := range fields {
		if _, ok := recognizedScopes[s]; !ok {
			continue
		}
		if !client.AllowsScope(s) {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		scope = append(scope, s)
	}
	return scope
}

// parseResponseType keeps recognized members in request order,
// deduplicated. An empty result fails validation at the caller.
func parseResponseType(raw string) ResponseTypeSet {
	fields := strings.Fields(raw)
	set := make(ResponseTypeSet, 0, len(fields))
	for _, rt := range fields {
		if _, ok := recognizedResponseTypes[rt]; !ok {
			continue
		}
		if set.Has(rt) {
			continue
		}
		set = append(set, rt)
	}
	return set
}

// inferResponseMode applies the multiple-response-type rule: any flow
// carrying id_token or token defaults to fragment, pure code to query.
func inferResponseMode(responseType ResponseTypeSet) string {
	if responseType.Has(ResponseTypeIDToken) || responseType.Has(ResponseTypeToken) {
		return ResponseModeFragment
	}
	return ResponseModeQuery
}
