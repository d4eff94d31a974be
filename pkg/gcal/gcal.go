// Package gcal wraps the Google Calendar REST API for the dispatcher's
// calendar contract. Conference-link generation is an explicit opt-in via
// conferenceDataVersion=1; callers never see that quirk.
package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Asygurare/salespilot/agent/contract"
)

const (
	maxErrorBodyBytes = 512
	maxResponseBytes  = 4 << 20
)

type Config struct {
	BaseURL string        `split_words:"true" default:"https://www.googleapis.com/calendar/v3"`
	Timeout time.Duration `split_words:"true" default:"15s"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ contract.CalendarProvider = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("calendar base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid calendar base url: %w", err)
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

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type attendee struct {
	Email string `json:"email"`
}

type conferenceData struct {
	CreateRequest *conferenceCreateRequest `json:"createRequest,omitempty"`
	EntryPoints   []conferenceEntryPoint   `json:"entryPoints,omitempty"`
}

type conferenceCreateRequest struct {
	RequestID string `json:"requestId"`
}

type conferenceEntryPoint struct {
	EntryPointType string `json:"entryPointType"`
	URI            string `json:"uri"`
}

type apiEvent struct {
	ID             string          `json:"id,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Description    string          `json:"description,omitempty"`
	Status         string          `json:"status,omitempty"`
	Start          *eventTime      `json:"start,omitempty"`
	End            *eventTime      `json:"end,omitempty"`
	Attendees      []attendee      `json:"attendees,omitempty"`
	HTMLLink       string          `json:"htmlLink,omitempty"`
	HangoutLink    string          `json:"hangoutLink,omitempty"`
	ConferenceData *conferenceData `json:"conferenceData,omitempty"`
}

type eventList struct {
	Items []apiEvent `json:"items"`
}

func (c *Client) CreateEvent(ctx context.Context, cred contract.Credential, in contract.EventInput) (contract.Event, error) {
	if !in.End.After(in.Start) {
		return contract.Event{}, fmt.Errorf("%w: event end must be after start", contract.ErrInvalidInput)
	}

	body := apiEvent{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       &eventTime{DateTime: in.Start.UTC().Format(time.RFC3339), TimeZone: in.Timezone},
		End:         &eventTime{DateTime: in.End.UTC().Format(time.RFC3339), TimeZone: in.Timezone},
	}
	for _, email := range in.Attendees {
		body.Attendees = append(body.Attendees, attendee{Email: email})
	}

	query := url.Values{}
	if in.WithMeet {
		body.ConferenceData = &conferenceData{
			CreateRequest: &conferenceCreateRequest{RequestID: uuid.NewString()},
		}
		query.Set("conferenceDataVersion", "1")
	}

	var created apiEvent
	if err := c.do(ctx, cred, http.MethodPost, "/calendars/primary/events", query, body, &created); err != nil {
		return contract.Event{}, err
	}
	return toEvent(created), nil
}

func (c *Client) ListEvents(ctx context.Context, cred contract.Credential, win contract.EventWindow) ([]contract.Event, error) {
	if !win.To.After(win.From) {
		return nil, fmt.Errorf("%w: window end must be after start", contract.ErrInvalidInput)
	}

	maxResults := win.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	query := url.Values{
		"timeMin":      {win.From.UTC().Format(time.RFC3339)},
		"timeMax":      {win.To.UTC().Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"maxResults":   {strconv.Itoa(maxResults)},
	}

	var list eventList
	if err := c.do(ctx, cred, http.MethodGet, "/calendars/primary/events", query, nil, &list); err != nil {
		return nil, err
	}

	events := make([]contract.Event, 0, len(list.Items))
	for _, item := range list.Items {
		events = append(events, toEvent(item))
	}
	return events, nil
}

func (c *Client) UpdateEvent(ctx context.Context, cred contract.Credential, eventID string, patch contract.EventPatch) (contract.Event, error) {
	if strings.TrimSpace(eventID) == "" {
		return contract.Event{}, fmt.Errorf("%w: event id is required", contract.ErrInvalidInput)
	}
	if patch.Start != nil && patch.End != nil && !patch.End.After(*patch.Start) {
		return contract.Event{}, fmt.Errorf("%w: event end must be after start", contract.ErrInvalidInput)
	}

	body := apiEvent{}
	if patch.Summary != nil {
		body.Summary = *patch.Summary
	}
	if patch.Description != nil {
		body.Description = *patch.Description
	}
	if patch.Start != nil {
		body.Start = &eventTime{DateTime: patch.Start.UTC().Format(time.RFC3339), TimeZone: patch.Timezone}
	}
	if patch.End != nil {
		body.End = &eventTime{DateTime: patch.End.UTC().Format(time.RFC3339), TimeZone: patch.Timezone}
	}
	for _, email := range patch.Attendees {
		body.Attendees = append(body.Attendees, attendee{Email: email})
	}

	var updated apiEvent
	path := "/calendars/primary/events/" + url.PathEscape(eventID)
	if err := c.do(ctx, cred, http.MethodPatch, path, nil, body, &updated); err != nil {
		return contract.Event{}, err
	}
	return toEvent(updated), nil
}

func (c *Client) DeleteEvent(ctx context.Context, cred contract.Credential, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("%w: event id is required", contract.ErrInvalidInput)
	}
	path := "/calendars/primary/events/" + url.PathEscape(eventID)
	return c.do(ctx, cred, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, cred contract.Credential, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal calendar payload: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build calendar request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &contract.ProviderError{Provider: "google-calendar", Body: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read calendar response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &contract.ProviderError{
			Provider: "google-calendar",
			Status:   resp.StatusCode,
			Body:     truncate(string(raw), maxErrorBodyBytes),
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode calendar response: %w", err)
	}
	return nil
}

func toEvent(e apiEvent) contract.Event {
	out := contract.Event{
		ID:             e.ID,
		Summary:        e.Summary,
		Status:         e.Status,
		HTMLLink:       e.HTMLLink,
		ConferenceLink: e.HangoutLink,
	}
	if e.Start != nil {
		out.Start, _ = time.Parse(time.RFC3339, e.Start.DateTime)
	}
	if e.End != nil {
		out.End, _ = time.Parse(time.RFC3339, e.End.DateTime)
	}
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, a.Email)
	}
	if out.ConferenceLink == "" && e.ConferenceData != nil {
		for _, ep := range e.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.ConferenceLink = ep.URI
				break
			}
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
