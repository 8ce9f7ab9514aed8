package server

import "time"

// Response type members a client may request. The set model avoids
// branching on named flows: each member is checked independently, so
// hybrid combinations fall out for free.
const (
	ResponseTypeCode    = "code"
	ResponseTypeIDToken = "id_token"
	ResponseTypeToken   = "token"
)

// Response modes controlling where grant parameters land on the redirect.
const (
	ResponseModeQuery    = "query"
	ResponseModeFragment = "fragment"
)

// PromptCreate routes the user to registration instead of login.
const PromptCreate = "create"

// ResponseTypeSet is an ordered set over the closed response type enumeration.
type ResponseTypeSet []string

// Has reports whether the set contains the given member.
func (s ResponseTypeSet) Has(member string) bool {
	for _, m := range s {
		if m == member {
			return true
		}
	}
	return false
}

// Client records registered OAuth client metadata. Redirect URIs are
// exact-match candidates only.
type Client struct {
	ClientID     string   `bson:"client_id"`
	ClientSecret string   `bson:"-"`
	Name         string   `bson:"name,omitempty"`
	RedirectURIs []string `bson:"redirect_uris"`
	Scopes       []string `bson:"scopes"`
}

// User is an authenticated end-user identity as returned by the
// credential verifier.
type User struct {
	ID    string `bson:"id"`
	Email string `bson:"email"`
	Name  string `bson:"name,omitempty"`
}

// AuthorizationRequest is a validated authorization request. It is
// immutable once constructed by the request validator.
type AuthorizationRequest struct {
	ClientID     string
	Client       *Client
	RedirectURI  string
	Scope        []string
	ResponseType ResponseTypeSet
	ResponseMode string
	State        string
	Nonce        string
	Display      string
	Prompt       string
	MaxAge       *int64
	UILocales    string
	IDTokenHint  string
	LoginHint    string
	ACRValues    string
}

// Interaction is the pending-authorization record a browser session
// carries across the login/registration round-trip. All mutation goes
// through the transition functions in sessions.go and login.go.
type Interaction struct {
	ClientID     string          `bson:"client_id"`
	Client       *Client         `bson:"client"`
	RedirectURI  string          `bson:"redirect_uri"`
	Scope        []string        `bson:"scope,omitempty"`
	ResponseType ResponseTypeSet `bson:"response_type"`
	ResponseMode string          `bson:"response_mode"`
	State        string          `bson:"state,omitempty"`
	Nonce        string          `bson:"nonce,omitempty"`
	Display      string          `bson:"display,omitempty"`
	Prompt       string          `bson:"prompt,omitempty"`
	MaxAge       *int64          `bson:"max_age,omitempty"`
	UILocales    string          `bson:"ui_locales,omitempty"`
	IDTokenHint  string          `bson:"id_token_hint,omitempty"`
	LoginHint    string          `bson:"login_hint,omitempty"`
	ACRValues    string          `bson:"acr_values,omitempty"`
	ClientIP     string          `bson:"client_ip,omitempty"`

	// Accumulated per-step state.
	Attempts int    `bson:"attempts"`
	Email    string `bson:"email,omitempty"`
	Password string `bson:"password,omitempty"`

	// Issued artifacts, recorded as each step completes.
	Code        string `bson:"code,omitempty"`
	IDToken     string `bson:"id_token,omitempty"`
	AccessToken string `bson:"access_token,omitempty"`
}

// Session is a browser session bound to a cookie. At most one
// interaction is pending per session at a time.
type Session struct {
	ID          string       `bson:"_id"`
	CreatedAt   time.Time    `bson:"created_at"`
	ExpiresAt   time.Time    `bson:"expires_at"`
	Interaction *Interaction `bson:"interaction,omitempty"`
}

// clone returns a deep copy of the session and its interaction. Pointer
// fields that are immutable after validation (Client, MaxAge) are shared.
func (s *Session) clone() *Session {
	copied := *s
	if s.Interaction != nil {
		inter := *s.Interaction
		copied.Interaction = &inter
	}
	return &copied
}

// GrantResult bundles the artifacts minted for a completed grant. It is
// consumed immediately by the redirect assembler and never persisted.
type GrantResult struct {
	Code        string
	AccessToken string
	IDToken     string
	State       string
	Nonce       string
}
