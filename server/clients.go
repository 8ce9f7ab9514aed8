package server

import (
	"context"
	"errors"
	"fmt"
)

// ErrClientNotFound is returned by registry lookups for unknown clients.
// Callers must treat lookup failures and unknown clients identically so a
// broken registry is indistinguishable from an unregistered client.
var ErrClientNotFound = errors.New("client not found")

// ClientRegistry resolves a client identifier to registered metadata.
type ClientRegistry interface {
	Lookup(ctx context.Context, clientID string) (*Client, error)
}

// StaticClientRegistry holds clients loaded from configuration.
type StaticClientRegistry struct {
	clients map[string]*Client
}

// NewClientRegistry builds the registry from configuration.
func NewClientRegistry(cfgs []ClientConfig) (*StaticClientRegistry, error) {
	clients := make(map[string]*Client, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.ClientID == "" {
			return nil, errors.New("client_id required")
		}
		clients[cfg.ClientID] = &Client{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Name:         cfg.Name,
			RedirectURIs: cfg.RedirectURIs,
			Scopes:       cfg.Scopes,
		}
	}
	return &StaticClientRegistry{clients: clients}, nil
}

// Lookup retrieves a client definition.
func (r *StaticClientRegistry) Lookup(_ context.Context, clientID string) (*Client, error) {
	client, ok := r.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	}
	return client, nil
}

// ValidRedirect reports whether uri byte-matches a registered redirect
// URI. No normalization, no prefix matching; an empty or malformed
// registered set matches nothing.
func (c *Client) ValidRedirect(uri string) bool {
	if uri == "" {
		return false
	}
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsScope reports whether a scope value is in the client's allowed set.
func (c *Client) AllowsScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
