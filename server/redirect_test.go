package server

import (
	"net/url"
	"strings"
	"testing"
)

func TestAssembleRedirectCodeOnlyQuery(t *testing.T) {
	grant := GrantResult{Code: "abc123"}
	got, err := AssembleRedirect("https://app.example/callback", ResponseModeQuery, grant)
	if err != nil {
		t.Fatalf("AssembleRedirect: %v", err)
	}
	if got != "https://app.example/callback?code=abc123" {
		t.Fatalf("unexpected redirect: %q", got)
	}
}

func TestAssembleRedirectQueryMergesExistingParams(t *testing.T) {
	grant := GrantResult{Code: "abc123", State: "s1"}
	got, err := AssembleRedirect("https://app.example/callback?tenant=7", ResponseModeQuery, grant)
	if err != nil {
		t.Fatalf("AssembleRedirect: %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	q := u.Query()
	if q.Get("tenant") != "7" || q.Get("code") != "abc123" || q.Get("state") != "s1" {
		t.Fatalf("query params wrong: %q", got)
	}
	if u.Fragment != "" {
		t.Fatalf("query mode must not touch the fragment: %q", got)
	}
}

func TestAssembleRedirectFragmentMode(t *testing.T) {
	grant := GrantResult{
		AccessToken: "at",
		IDToken:     "idt",
		State:       "s1",
		Nonce:       "n1",
	}
	got, err := AssembleRedirect("https://app.example/callback", ResponseModeFragment, grant)
	if err != nil {
		t.Fatalf("AssembleRedirect: %v", err)
	}
	base, frag, found := strings.Cut(got, "#")
	if !found {
		t.Fatalf("expected fragment, got %q", got)
	}
	if base != "https://app.example/callback" {
		t.Fatalf("base URL altered: %q", base)
	}
	params, err := url.ParseQuery(frag)
	if err != nil {
		t.Fatalf("parse fragment: %v", err)
	}
	if params.Get("access_token") != "at" || params.Get("id_token") != "idt" {
		t.Fatalf("tokens missing from fragment: %q", frag)
	}
	if params.Get("state") != "s1" || params.Get("nonce") != "n1" {
		t.Fatalf("state/nonce missing from fragment: %q", frag)
	}
	if params.Get("code") != "" {
		t.Fatalf("absent code must add no parameter: %q", frag)
	}
}

func TestAssembleRedirectFragmentReplacesRegisteredFragment(t *testing.T) {
	grant := GrantResult{AccessToken: "at"}
	got, err := AssembleRedirect("https://app.example/callback#stale", ResponseModeFragment, grant)
	if err != nil {
		t.Fatalf("AssembleRedirect: %v", err)
	}
	if got != "https://app.example/callback#access_token=at" {
		t.Fatalf("registered fragment not replaced: %q", got)
	}
	if strings.Count(got, "#") != 1 {
		t.Fatalf("malformed fragment: %q", got)
	}
}

func TestAssembleRedirectFragmentEscapesOnce(t *testing.T) {
	grant := GrantResult{Code: "c", State: "a b%"}
	got, err := AssembleRedirect("https://app.example/callback", ResponseModeFragment, grant)
	if err != nil {
		t.Fatalf("AssembleRedirect: %v", err)
	}
	_, frag, found := strings.Cut(got, "#")
	if !found {
		t.Fatalf("expected fragment, got %q", got)
	}
	params, err := url.ParseQuery(frag)
	if err != nil {
		t.Fatalf("parse fragment: %v", err)
	}
	if params.Get("state") != "a b%" {
		t.Fatalf("state not round-tripped through the fragment: %q", frag)
	}
}

func TestAssembleRedirectSkipsAbsentFields(t *testing.T) {
	grant := GrantResult{Code: "c"}
	got, err := AssembleRedirect("https://app.example/callback", ResponseModeQuery, grant)
	if err != nil {
		t.Fatalf("AssembleRedirect: %v", err)
	}
	for _, forbidden := range []string{"state=", "nonce=", "access_token=", "id_token="} {
		if strings.Contains(got, forbidden) {
			t.Fatalf("absent field leaked into redirect: %q", got)
		}
	}
}
