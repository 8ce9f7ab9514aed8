package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const sessionCookieName = "authd_session"

// SessionManager handles cookie-backed browser sessions.
type SessionManager struct {
	store        SessionStore
	logger       *slog.Logger
	ttl          time.Duration
	secure       bool
	sameSite     http.SameSite
	cookieDomain string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessionManager constructs a session manager honouring config.
func NewSessionManager(cfg Config, store SessionStore, logger *slog.Logger) *SessionManager {
	sameSite := http.SameSiteStrictMode
	if cfg.Server.DevMode {
		sameSite = http.SameSiteLaxMode
	}

	return &SessionManager{
		store:        store,
		logger:       logger,
		ttl:          cfg.Sessions.TTL.Std(),
		secure:       !cfg.Server.DevMode,
		sameSite:     sameSite,
		cookieDomain: cfg.Server.CookieDomain,
		locks:        make(map[string]*sync.Mutex),
	}
}

// LockSession serializes work on one session id and returns the release
// function. Every fetch-mutate-save cycle must run under this lock so
// the attempt counter's read-increment-write is sequential per session.
func (sm *SessionManager) LockSession(id string) (unlock func()) {
	sm.mu.Lock()
	l, ok := sm.locks[id]
	if !ok {
		l = &sync.Mutex{}
		sm.locks[id] = l
	}
	sm.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Serialize locks the session named by the request cookie, if any.
// Requests without a session cookie share no state and need no lock.
func (sm *SessionManager) Serialize(r *http.Request) func() {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return func() {}
	}
	return sm.LockSession(cookie.Value)
}

// Fetch returns the session associated with the request cookie if
// present, extending its expiry on activity.
func (sm *SessionManager) Fetch(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, nil
	}
	sess, ok, err := sm.store.Get(r.Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	// Sliding expiration: extend on activity.
	sess.ExpiresAt = time.Now().Add(sm.ttl)
	if err := sm.store.Save(r.Context(), sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Ensure returns the current session, creating one and setting the
// cookie if the browser has none yet.
func (sm *SessionManager) Ensure(w http.ResponseWriter, r *http.Request) (*Session, error) {
	sess, err := sm.Fetch(r)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	sess = &Session{
		ID:        NewID(),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(sm.ttl),
	}
	if err := sm.store.Save(r.Context(), sess); err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   int(sm.ttl.Seconds()),
	})
	return sess, nil
}

// Save persists session mutations made by the transition functions.
func (sm *SessionManager) Save(r *http.Request, sess *Session) error {
	return sm.store.Save(r.Context(), sess)
}

// Clear removes the session cookie for logout.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   -1,
	})
}

// BeginInteraction installs a pending interaction derived from a
// validated request, overwriting any previous one. The attempt counter
// is the one field that survives an overwrite: a fresh authorization
// request increments it rather than resetting it.
func BeginInteraction(sess *Session, req *AuthorizationRequest, clientIP string) *Interaction {
	attempts := 1
	if cur := sess.Interaction; cur != nil {
		attempts = cur.Attempts + 1
	}

	inter := &Interaction{
		ClientID:     req.ClientID,
		Client:       req.Client,
		RedirectURI:  req.RedirectURI,
		Scope:        req.Scope,
		ResponseType: req.ResponseType,
		ResponseMode: req.ResponseMode,
		State:        req.State,
		Nonce:        req.Nonce,
		Display:      req.Display,
		Prompt:       req.Prompt,
		MaxAge:       req.MaxAge,
		UILocales:    req.UILocales,
		IDTokenHint:  req.IDTokenHint,
		LoginHint:    req.LoginHint,
		ACRValues:    req.ACRValues,
		ClientIP:     clientIP,
		Attempts:     attempts,
	}
	sess.Interaction = inter
	return inter
}

// RequireInteraction guards every interaction-dependent step: the login
// page, the registration page, and the credential submission all need a
// prior valid authorization request.
func RequireInteraction(sess *Session) (*Interaction, error) {
	if sess == nil || sess.Interaction == nil {
		return nil, unauthorizedClient("no pending authorization request")
	}
	return sess.Interaction, nil
}

// RouteNext decides where the user goes after a valid authorization
// request: registration for prompt=create, login for everything else.
func RouteNext(req *AuthorizationRequest) string {
	if req.Prompt == PromptCreate {
		return "register"
	}
	return "login"
}

// CompleteInteraction clears the pending interaction once the grant has
// been redirected. The browser session itself stays alive.
func CompleteInteraction(sess *Session) {
	sess.Interaction = nil
}
