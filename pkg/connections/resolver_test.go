package connections

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Asygurare/salespilot/agent/contract"
)

func testResolver(tokenURL string) *Resolver {
	return &Resolver{
		apps: map[string]ProviderApp{
			"google": {TokenURL: tokenURL, ClientID: "cid", ClientSecret: "secret"},
		},
		httpClient: &http.Client{Timeout: time.Second},
		now:        time.Now,
	}
}

func TestRefreshPostsGrantForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		for key, want := range map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": "rt-1",
			"client_id":     "cid",
			"client_secret": "secret",
		} {
			if got := r.PostForm.Get(key); got != want {
				t.Errorf("%s = %q, want %q", key, got, want)
			}
		}
		io.WriteString(w, `{"access_token": "at-2", "refresh_token": "rt-2", "expires_in": 3600}`)
	}))
	defer srv.Close()

	parsed, err := testResolver(srv.URL).refresh(context.Background(), "google", "rt-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if parsed.AccessToken != "at-2" || parsed.RefreshToken != "rt-2" || parsed.ExpiresIn != 3600 {
		t.Fatalf("parsed = %+v", parsed)
	}
}

func TestRefreshFailuresMapToSentinel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": "invalid_grant"}`)
	}))
	defer srv.Close()
	r := testResolver(srv.URL)

	if _, err := r.refresh(context.Background(), "google", "rt-stale"); !errors.Is(err, contract.ErrRefreshFailed) {
		t.Fatalf("endpoint rejection: err = %v", err)
	}
	if _, err := r.refresh(context.Background(), "zoom", "rt-1"); !errors.Is(err, contract.ErrRefreshFailed) {
		t.Fatalf("unregistered provider: err = %v", err)
	}
}

func TestRefreshRejectsEmptyAccessToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"expires_in": 3600}`)
	}))
	defer srv.Close()

	if _, err := testResolver(srv.URL).refresh(context.Background(), "google", "rt-1"); !errors.Is(err, contract.ErrRefreshFailed) {
		t.Fatalf("err = %v, want refresh failed", err)
	}
}

func TestConfigBuildsAppRegistry(t *testing.T) {
	t.Parallel()

	cfg := Config{
		GoogleTokenURL: "https://oauth2.googleapis.com/token",
		GoogleClientID: "g-cid",
	}
	apps := cfg.apps()
	if len(apps) != 3 {
		t.Fatalf("apps = %d, want 3", len(apps))
	}
	if apps["google"].ClientID != "g-cid" {
		t.Fatalf("google app = %+v", apps["google"])
	}
}
