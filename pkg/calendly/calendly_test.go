package calendly

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

var cred = contract.Credential{AccessToken: "tok-1"}

func TestListEventTypesScopedToCurrentUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			io.WriteString(w, `{"resource": {"uri": "https://api.calendly.com/users/u-1"}}`)
		case "/event_types":
			if got := r.URL.Query().Get("user"); got != "https://api.calendly.com/users/u-1" {
				t.Errorf("user = %q", got)
			}
			if got := r.URL.Query().Get("active"); got != "true" {
				t.Errorf("active = %q", got)
			}
			io.WriteString(w, `{"collection": [
				{"uri": "et-1", "name": "Intro call", "scheduling_url": "https://calendly.com/jane/intro", "active": true}
			]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := MustNew(Config{BaseURL: srv.URL})
	types, err := client.ListEventTypes(context.Background(), cred)
	if err != nil {
		t.Fatalf("ListEventTypes: %v", err)
	}
	if len(types) != 1 || types[0].Name != "Intro call" {
		t.Fatalf("types = %+v", types)
	}
}

func TestListBookingsWindow(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			io.WriteString(w, `{"resource": {"uri": "u-1"}}`)
		case "/scheduled_events":
			q := r.URL.Query()
			if q.Get("min_start_time") != "2026-03-01T00:00:00Z" {
				t.Errorf("min_start_time = %q", q.Get("min_start_time"))
			}
			if q.Get("status") != "active" {
				t.Errorf("status = %q", q.Get("status"))
			}
			io.WriteString(w, `{"collection": [
				{"uri": "ev-1", "name": "Intro with Bob", "start_time": "2026-03-02T14:00:00Z", "end_time": "2026-03-02T14:30:00Z"}
			]}`)
		}
	}))
	defer srv.Close()

	client := MustNew(Config{BaseURL: srv.URL})
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bookings, err := client.ListBookings(context.Background(), cred, from, from.Add(14*24*time.Hour))
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(bookings) != 1 || bookings[0].ID != "ev-1" {
		t.Fatalf("bookings = %+v", bookings)
	}
}

func TestBuildLinkPrefill(t *testing.T) {
	t.Parallel()

	client := MustNew(Config{})
	et := contract.EventType{SchedulingURL: "https://calendly.com/jane/intro"}

	link := client.BuildLink(et, contract.LinkPrefill{Name: "Bob Smith", Email: "bob@example.com"})
	if link != "https://calendly.com/jane/intro?email=bob%40example.com&name=Bob+Smith" {
		t.Fatalf("link = %q", link)
	}

	if link := client.BuildLink(et, contract.LinkPrefill{}); link != et.SchedulingURL {
		t.Fatalf("bare link = %q", link)
	}

	// An existing query string gets appended to, not clobbered.
	et.SchedulingURL = "https://calendly.com/jane/intro?month=2026-03"
	link = client.BuildLink(et, contract.LinkPrefill{Email: "bob@example.com"})
	if link != "https://calendly.com/jane/intro?month=2026-03&email=bob%40example.com" {
		t.Fatalf("link = %q", link)
	}
}

func TestErrorBodyTruncatedOnFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		for i := 0; i < 100; i++ {
			io.WriteString(w, "unauthorized ")
		}
	}))
	defer srv.Close()

	client := MustNew(Config{BaseURL: srv.URL})
	_, err := client.ListEventTypes(context.Background(), cred)

	var perr *contract.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error type %T: %v", err, err)
	}
	if perr.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d", perr.Status)
	}
	if len(perr.Body) > maxErrorBodyBytes {
		t.Fatalf("body length = %d, want <= %d", len(perr.Body), maxErrorBodyBytes)
	}
}
