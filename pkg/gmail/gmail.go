// Package gmail wraps the Gmail REST send surface behind the dispatcher's
// mail contract. No retries: a failed send must stay visible, never silently
// duplicate.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/Asygurare/salespilot/agent/contract"
)

const maxErrorBodyBytes = 512

type Config struct {
	BaseURL string        `split_words:"true" default:"https://gmail.googleapis.com"`
	Timeout time.Duration `split_words:"true" default:"15s"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ contract.MailSender = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gmail base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid gmail base url: %w", err)
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

type sendResponse struct {
	ID string `json:"id"`
}

func (c *Client) Send(ctx context.Context, cred contract.Credential, msg contract.MailMessage) (contract.MailReceipt, error) {
	if len(msg.To) == 0 {
		return contract.MailReceipt{}, fmt.Errorf("%w: no recipients", contract.ErrInvalidInput)
	}
	if msg.HTML == "" && msg.Text == "" {
		return contract.MailReceipt{}, fmt.Errorf("%w: empty message body", contract.ErrInvalidInput)
	}

	raw, err := buildRFC2822(cred.Identity, msg)
	if err != nil {
		return contract.MailReceipt{}, err
	}

	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return contract.MailReceipt{}, fmt.Errorf("marshal gmail payload: %w", err)
	}

	endpoint := c.baseURL + "/gmail/v1/users/me/messages/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return contract.MailReceipt{}, fmt.Errorf("build gmail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contract.MailReceipt{}, &contract.ProviderError{Provider: "gmail", Body: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return contract.MailReceipt{}, fmt.Errorf("read gmail response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contract.MailReceipt{}, &contract.ProviderError{
			Provider: "gmail",
			Status:   resp.StatusCode,
			Body:     truncate(string(body), maxErrorBodyBytes),
		}
	}

	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return contract.MailReceipt{}, fmt.Errorf("decode gmail response: %w", err)
	}
	return contract.MailReceipt{MessageID: parsed.ID}, nil
}

// buildRFC2822 assembles the wire message. Both bodies present means a
// multipart/alternative with text first, per MIME preference order.
func buildRFC2822(from string, msg contract.MailMessage) ([]byte, error) {
	var buf bytes.Buffer

	if from != "" {
		fmt.Fprintf(&buf, "From: %s\r\n", from)
	}
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.HTML != "" && msg.Text != "":
		writer := multipart.NewWriter(&buf)
		fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", writer.Boundary())

		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/plain; charset=UTF-8"},
		})
		if err != nil {
			return nil, fmt.Errorf("build text part: %w", err)
		}
		if _, err := part.Write([]byte(msg.Text)); err != nil {
			return nil, fmt.Errorf("write text part: %w", err)
		}

		part, err = writer.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/html; charset=UTF-8"},
		})
		if err != nil {
			return nil, fmt.Errorf("build html part: %w", err)
		}
		if _, err := part.Write([]byte(msg.HTML)); err != nil {
			return nil, fmt.Errorf("write html part: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("close multipart body: %w", err)
		}
	case msg.HTML != "":
		buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		buf.WriteString(msg.HTML)
	default:
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(msg.Text)
	}

	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
