package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router with all endpoints.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))
	if !a.Config.Server.DevMode {
		r.Use(SecurityHeadersMiddleware(31536000))
	}

	r.Get("/.well-known/jwks", a.handleJWKS)
	r.Get("/.well-known/jwks.json", a.handleJWKS)

	r.Get("/authorize", a.handleAuthorize)
	r.Get("/auth/login", a.handleLoginPage)
	r.Post("/auth/login", a.handleLoginSubmit)
	r.Get("/auth/register", a.handleRegisterPage)

	if a.Config.Server.DebugEndpoints {
		r.Post("/jwk", a.handleCreateKey)
		r.Post("/jwt/sign", a.handleSignClaims)
	}

	r.Get("/healthz", a.handleHealthz)

	return r
}
