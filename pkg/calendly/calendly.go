// Package calendly wraps the Calendly v2 API: event-type listing, prefilled
// scheduling links and upcoming-booking reads.
package calendly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Asygurare/salespilot/agent/contract"
)

const (
	maxErrorBodyBytes = 512
	maxResponseBytes  = 4 << 20
)

type Config struct {
	BaseURL string        `split_words:"true" default:"https://api.calendly.com"`
	Timeout time.Duration `split_words:"true" default:"15s"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ contract.SchedulingProvider = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("calendly base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid calendly base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

func (c *Client) Name() string {
	return "calendly"
}

type currentUser struct {
	Resource struct {
		URI string `json:"uri"`
	} `json:"resource"`
}

type eventTypeList struct {
	Collection []struct {
		URI           string `json:"uri"`
		Name          string `json:"name"`
		SchedulingURL string `json:"scheduling_url"`
		Active        bool   `json:"active"`
	} `json:"collection"`
}

type scheduledEventList struct {
	Collection []struct {
		URI       string    `json:"uri"`
		Name      string    `json:"name"`
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
	} `json:"collection"`
}

func (c *Client) ListEventTypes(ctx context.Context, cred contract.Credential) ([]contract.EventType, error) {
	userURI, err := c.currentUserURI(ctx, cred)
	if err != nil {
		return nil, err
	}

	query := url.Values{"user": {userURI}, "active": {"true"}}
	var list eventTypeList
	if err := c.get(ctx, cred, "/event_types", query, &list); err != nil {
		return nil, err
	}

	types := make([]contract.EventType, 0, len(list.Collection))
	for _, et := range list.Collection {
		types = append(types, contract.EventType{
			URI:           et.URI,
			Name:          et.Name,
			SchedulingURL: et.SchedulingURL,
		})
	}
	return types, nil
}

// BuildLink prefills the invitee fields Calendly reads from the query string.
// Pure URL construction.
func (c *Client) BuildLink(eventType contract.EventType, prefill contract.LinkPrefill) string {
	link := eventType.SchedulingURL
	query := url.Values{}
	if prefill.Name != "" {
		query.Set("name", prefill.Name)
	}
	if prefill.Email != "" {
		query.Set("email", prefill.Email)
	}
	if len(query) == 0 {
		return link
	}
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}
	return link + sep + query.Encode()
}

func (c *Client) ListBookings(ctx context.Context, cred contract.Credential, from, to time.Time) ([]contract.Booking, error) {
	userURI, err := c.currentUserURI(ctx, cred)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"user":           {userURI},
		"status":         {"active"},
		"min_start_time": {from.UTC().Format(time.RFC3339)},
		"max_start_time": {to.UTC().Format(time.RFC3339)},
	}
	var list scheduledEventList
	if err := c.get(ctx, cred, "/scheduled_events", query, &list); err != nil {
		return nil, err
	}

	bookings := make([]contract.Booking, 0, len(list.Collection))
	for _, ev := range list.Collection {
		bookings = append(bookings, contract.Booking{
			ID:    ev.URI,
			Name:  ev.Name,
			Start: ev.StartTime,
			End:   ev.EndTime,
		})
	}
	return bookings, nil
}

func (c *Client) currentUserURI(ctx context.Context, cred contract.Credential) (string, error) {
	var user currentUser
	if err := c.get(ctx, cred, "/users/me", nil, &user); err != nil {
		return "", err
	}
	if user.Resource.URI == "" {
		return "", &contract.ProviderError{Provider: "calendly", Body: "current user has no uri"}
	}
	return user.Resource.URI, nil
}

func (c *Client) get(ctx context.Context, cred contract.Credential, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build calendly request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &contract.ProviderError{Provider: "calendly", Body: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read calendly response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &contract.ProviderError{
			Provider: "calendly",
			Status:   resp.StatusCode,
			Body:     truncate(string(raw), maxErrorBodyBytes),
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode calendly response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
