package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config    Config
	Logger    *slog.Logger
	Store     SessionStore
	Sessions  *SessionManager
	Clients   ClientRegistry
	Accounts  *AccountStore
	JWKS      *JWKSManager
	Signer    TokenSigner
	Validator *RequestValidator
	Issuer    *Issuer
	Auth      *Authenticator

	mongoClient *mongo.Client
}

// NewApp wires together the application state from configuration.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	jwks, err := NewJWKSManager(cfg.Keys, logger)
	if err != nil {
		return nil, err
	}

	clients, err := NewClientRegistry(cfg.Clients)
	if err != nil {
		return nil, err
	}

	accounts, err := NewAccountStore(cfg.Users)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Clients:  clients,
		Accounts: accounts,
		JWKS:     jwks,
	}

	switch cfg.Sessions.Store {
	case SessionStoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Sessions.MongoURI))
		if err != nil {
			return nil, err
		}
		app.mongoClient = client
		app.Store = NewMongoSessionStore(client.Database(cfg.Sessions.MongoDatabase))
		logger.Info("session store ready", "backend", SessionStoreMongo, "database", cfg.Sessions.MongoDatabase)
	default:
		app.Store = NewInMemorySessionStore()
	}

	tokens := NewTokenService(cfg, jwks, logger)
	app.Signer = tokens
	app.Sessions = NewSessionManager(cfg, app.Store, logger)
	app.Validator = NewRequestValidator(clients)
	app.Issuer = NewIssuer(tokens, logger)
	app.Auth = NewAuthenticator(accounts, app.Issuer, cfg, logger)

	return app, nil
}

// Close releases external resources.
func (a *App) Close(ctx context.Context) error {
	if a.mongoClient != nil {
		return a.mongoClient.Disconnect(ctx)
	}
	return nil
}

// handleAuthorize validates the authorization request, installs the
// pending interaction on the browser session, and sends the user to
// login or registration.
func (a *App) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	req, err := a.Validator.Validate(r.Context(), r.URL.Query())
	if err != nil {
		// Validation errors never redirect: the redirect_uri is
		// unverified at this point.
		a.Logger.Warn("authorize rejected", "error", err)
		a.writeError(w, err)
		return
	}

	unlock := a.Sessions.Serialize(r)
	defer unlock()

	sess, err := a.Sessions.Ensure(w, r)
	if err != nil {
		a.Logger.Error("session ensure", "error", err)
		a.writeError(w, errors.New("session storage unavailable"))
		return
	}

	inter := BeginInteraction(sess, req, a.clientIP(r))
	if err := a.Sessions.Save(r, sess); err != nil {
		a.Logger.Error("session save", "error", err)
		a.writeError(w, errors.New("session storage unavailable"))
		return
	}

	a.Logger.Info("interaction started",
		"client_id", req.ClientID,
		"response_type", strings.Join(req.ResponseType, " "),
		"attempt", inter.Attempts)
	http.Redirect(w, r, "/auth/"+RouteNext(req), http.StatusFound)
}

func (a *App) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	inter, err := a.requireInteraction(w, r)
	if err != nil {
		return
	}
	renderLogin(w, inter, "")
}

func (a *App) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	inter, err := a.requireInteraction(w, r)
	if err != nil {
		return
	}
	renderRegister(w, inter)
}

// handleLoginSubmit runs the authentication step and, on success,
// completes the grant with a redirect back to the client.
func (a *App) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.writeError(w, invalidRequest("", "invalid form"))
		return
	}

	unlock := a.Sessions.Serialize(r)
	defer unlock()

	sess, err := a.Sessions.Fetch(r)
	if err != nil {
		a.Logger.Error("session fetch", "error", err)
		a.writeError(w, errors.New("session storage unavailable"))
		return
	}
	if _, err := RequireInteraction(sess); err != nil {
		a.writeError(w, err)
		return
	}

	user, grant, authErr := a.Auth.Authenticate(r.Context(), sess, r.FormValue("email"), r.FormValue("password"))

	// Accumulated step state (prefill, attempt counter, any tokens
	// minted before a failure) is persisted regardless of outcome.
	if err := a.Sessions.Save(r, sess); err != nil {
		a.Logger.Error("session save", "error", err)
		a.writeError(w, errors.New("session storage unavailable"))
		return
	}

	if authErr != nil {
		var authFailure *AuthError
		switch {
		case errors.As(authErr, &authFailure):
			a.Logger.Warn("login failed", "cause", errors.Unwrap(authFailure), "attempt", sess.Interaction.Attempts)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			renderLogin(w, sess.Interaction, authFailure.Error())
		default:
			a.writeError(w, authErr)
		}
		return
	}

	inter := sess.Interaction
	location, err := AssembleRedirect(inter.RedirectURI, inter.ResponseMode, grant)
	if err != nil {
		a.Logger.Error("assemble redirect", "error", err)
		a.writeError(w, errors.New("failed to assemble redirect"))
		return
	}

	CompleteInteraction(sess)
	if err := a.Sessions.Save(r, sess); err != nil {
		a.Logger.Error("session save", "error", err)
		a.writeError(w, errors.New("session storage unavailable"))
		return
	}

	a.Logger.Info("grant completed", "client_id", inter.ClientID, "user", user.ID)
	http.Redirect(w, r, location, http.StatusFound)
}

func (a *App) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.Signer.PublicKeySet())
}

// handleCreateKey rotates in a fresh signing key. Operator-only.
func (a *App) handleCreateKey(w http.ResponseWriter, _ *http.Request) {
	if err := a.Signer.CreateSigningKey(); err != nil {
		a.Logger.Error("create signing key", "error", err)
		a.writeError(w, errors.New("key generation failed"))
		return
	}
	writeJSON(w, a.Signer.PublicKeySet())
}

// handleSignClaims signs arbitrary claims for diagnostics. Operator-only.
func (a *App) handleSignClaims(w http.ResponseWriter, r *http.Request) {
	var claims jwt.MapClaims
	if err := json.NewDecoder(r.Body).Decode(&claims); err != nil {
		a.writeError(w, invalidRequest("", "body must be a JSON claims object"))
		return
	}
	token, kid, err := a.JWKS.Sign(claims)
	if err != nil {
		a.Logger.Error("sign claims", "error", err)
		a.writeError(w, errors.New("signing failed"))
		return
	}
	writeJSON(w, map[string]string{"token": token, "kid": kid})
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requireInteraction fetches the session and enforces the pending
// interaction guard, writing the error response itself on failure.
func (a *App) requireInteraction(w http.ResponseWriter, r *http.Request) (*Interaction, error) {
	// Fetch extends the session expiry with a save, so even this
	// read-only path takes the session lock.
	unlock := a.Sessions.Serialize(r)
	defer unlock()

	sess, err := a.Sessions.Fetch(r)
	if err != nil {
		a.Logger.Error("session fetch", "error", err)
		a.writeError(w, errors.New("session storage unavailable"))
		return nil, err
	}
	inter, err := RequireInteraction(sess)
	if err != nil {
		a.writeError(w, err)
		return nil, err
	}
	return inter, nil
}

// writeError maps the error taxonomy onto OIDC-shaped JSON responses.
func (a *App) writeError(w http.ResponseWriter, err error) {
	var protocolErr *ProtocolError
	var sessionErr *SessionError

	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.As(err, &protocolErr):
		status := http.StatusBadRequest
		if protocolErr.Code == ErrorCodeUnauthorizedClient {
			status = http.StatusUnauthorized
		}
		w.WriteHeader(status)
		body := map[string]string{
			"error":             protocolErr.Code,
			"error_description": protocolErr.Description,
		}
		if protocolErr.Parameter != "" {
			body["parameter"] = protocolErr.Parameter
		}
		_ = json.NewEncoder(w).Encode(body)
	case errors.As(err, &sessionErr):
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_session",
			"error_description": sessionErr.Reason,
		})
	default:
		// Infrastructure failures never leak the protocol taxonomy.
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             ErrorCodeServerError,
			"error_description": err.Error(),
		})
	}
}

// clientIP extracts the originating address, honouring proxy headers
// only when configured to trust them.
func (a *App) clientIP(r *http.Request) string {
	if a.Config.Server.TrustProxyHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if idx := strings.Index(fwd, ","); idx != -1 {
				return strings.TrimSpace(fwd[:idx])
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
