package server

import (
	"context"
	"errors"
	"testing"
)

func testRegistry(t *testing.T) *StaticClientRegistry {
	t.Helper()
	registry, err := NewClientRegistry([]ClientConfig{{
		ClientID:     "abc",
		Name:         "Test App",
		RedirectURIs: []string{"https://app.example/callback", "https://app.example/alt"},
		Scopes:       []string{"openid", "email"},
	}})
	if err != nil {
		t.Fatalf("NewClientRegistry: %v", err)
	}
	return registry
}

func TestClientRegistryLookup(t *testing.T) {
	registry := testRegistry(t)

	client, err := registry.Lookup(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if client.Name != "Test App" || len(client.RedirectURIs) != 2 {
		t.Fatalf("unexpected client: %+v", client)
	}

	_, err = registry.Lookup(context.Background(), "missing")
	if !errors.Is(err, ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestClientRegistryRequiresClientID(t *testing.T) {
	if _, err := NewClientRegistry([]ClientConfig{{Name: "anon"}}); err == nil {
		t.Fatalf("expected error for missing client_id")
	}
}

func TestValidRedirect(t *testing.T) {
	client := &Client{RedirectURIs: []string{"https://app.example/callback"}}

	cases := []struct {
		uri  string
		want bool
	}{
		{"https://app.example/callback", true},
		{"https://app.example/callback/", false},
		{"https://app.example/Callback", false},
		{"http://app.example/callback", false},
		{"https://app.example/callback?extra=1", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := client.ValidRedirect(tc.uri); got != tc.want {
			t.Fatalf("ValidRedirect(%q) = %v, want %v", tc.uri, got, tc.want)
		}
	}

	empty := &Client{}
	if empty.ValidRedirect("https://app.example/callback") {
		t.Fatalf("client without registered URIs must match nothing")
	}
}

func TestAllowsScope(t *testing.T) {
	client := &Client{Scopes: []string{"openid", "email"}}
	if !client.AllowsScope("openid") || client.AllowsScope("profile") {
		t.Fatalf("scope allowance wrong")
	}
}
