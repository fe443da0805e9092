package discovery

import (
	"context"
	"testing"
)

func TestResolveAuthTokenExplicit(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")
	tok, source, err := ResolveAuthToken(context.Background(), "explicit-token")
	if err != nil {
		t.Fatalf("ResolveAuthToken failed: %v", err)
	}
	if tok != "explicit-token" || source != AuthTokenSourceExplicit {
		t.Fatalf("got %q from %q, want explicit token", tok, source)
	}
}

func TestResolveAuthTokenEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")
	tok, source, err := ResolveAuthToken(context.Background(), "")
	if err != nil {
		t.Fatalf("ResolveAuthToken failed: %v", err)
	}
	if tok != "env-token" || source != AuthTokenSourceEnv {
		t.Fatalf("got %q from %q, want env token", tok, source)
	}
}

func TestResolveAuthTokenTrimsWhitespace(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	tok, source, err := ResolveAuthToken(context.Background(), "  padded  ")
	if err != nil {
		t.Fatalf("ResolveAuthToken failed: %v", err)
	}
	if tok != "padded" || source != AuthTokenSourceExplicit {
		t.Fatalf("got %q from %q, want trimmed explicit token", tok, source)
	}
}
