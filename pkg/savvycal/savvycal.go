// Package savvycal wraps the SavvyCal API for the scheduling-link contract.
package savvycal

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
	BaseURL string        `split_words:"true" default:"https://api.savvycal.com/v1"`
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
		return nil, errors.New("savvycal base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid savvycal base url: %w", err)
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
	return "savvycal"
}

type linkList struct {
	Entries []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		URL   string `json:"url"`
		State string `json:"state"`
	} `json:"entries"`
}

type eventList struct {
	Entries []struct {
		ID      string    `json:"id"`
		Summary string    `json:"summary"`
		StartAt time.Time `json:"start_at"`
		EndAt   time.Time `json:"end_at"`
	} `json:"entries"`
}

func (c *Client) ListEventTypes(ctx context.Context, cred contract.Credential) ([]contract.EventType, error) {
	var list linkList
	if err := c.get(ctx, cred, "/links", nil, &list); err != nil {
		return nil, err
	}

	types := make([]contract.EventType, 0, len(list.Entries))
	for _, entry := range list.Entries {
		if entry.State == "archived" {
			continue
		}
		types = append(types, contract.EventType{
			URI:           entry.ID,
			Name:          entry.Name,
			SchedulingURL: entry.URL,
		})
	}
	return types, nil
}

// BuildLink prefills the SavvyCal booking form fields. Pure URL construction.
func (c *Client) BuildLink(eventType contract.EventType, prefill contract.LinkPrefill) string {
	link := eventType.SchedulingURL
	query := url.Values{}
	if prefill.Name != "" {
		query.Set("display_name", prefill.Name)
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
	query := url.Values{
		"min_start_at": {from.UTC().Format(time.RFC3339)},
		"max_start_at": {to.UTC().Format(time.RFC3339)},
	}
	var list eventList
	if err := c.get(ctx, cred, "/events", query, &list); err != nil {
		return nil, err
	}

	bookings := make([]contract.Booking, 0, len(list.Entries))
	for _, entry := range list.Entries {
		bookings = append(bookings, contract.Booking{
			ID:    entry.ID,
			Name:  entry.Summary,
			Start: entry.StartAt,
			End:   entry.EndAt,
		})
	}
	return bookings, nil
}

func (c *Client) get(ctx context.Context, cred contract.Credential, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build savvycal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &contract.ProviderError{Provider: "savvycal", Body: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read savvycal response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &contract.ProviderError{
			Provider: "savvycal",
			Status:   resp.StatusCode,
			Body:     truncate(string(raw), maxErrorBodyBytes),
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode savvycal response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
