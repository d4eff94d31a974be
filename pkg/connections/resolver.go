package connections

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/Asygurare/salespilot/agent/contract"
	"github.com/Asygurare/salespilot/pkg/store"
)

// Tokens expiring within this window are refreshed preemptively so a
// provider call never races expiry.
const refreshSlack = time.Minute

const maxTokenResponseBytes = 1 << 20

// ProviderApp is the OAuth application registration for one provider.
type ProviderApp struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type Config struct {
	GoogleTokenURL     string `split_words:"true" default:"https://oauth2.googleapis.com/token"`
	GoogleClientID     string `split_words:"true"`
	GoogleClientSecret string `split_words:"true"`

	CalendlyTokenURL     string `split_words:"true" default:"https://auth.calendly.com/oauth/token"`
	CalendlyClientID     string `split_words:"true"`
	CalendlyClientSecret string `split_words:"true"`

	SavvycalTokenURL     string `split_words:"true" default:"https://api.savvycal.com/oauth/token"`
	SavvycalClientID     string `split_words:"true"`
	SavvycalClientSecret string `split_words:"true"`

	Timeout time.Duration `split_words:"true" default:"10s"`
}

func (c Config) apps() map[string]ProviderApp {
	return map[string]ProviderApp{
		"google":   {TokenURL: c.GoogleTokenURL, ClientID: c.GoogleClientID, ClientSecret: c.GoogleClientSecret},
		"calendly": {TokenURL: c.CalendlyTokenURL, ClientID: c.CalendlyClientID, ClientSecret: c.CalendlyClientSecret},
		"savvycal": {TokenURL: c.SavvycalTokenURL, ClientID: c.SavvycalClientID, ClientSecret: c.SavvycalClientSecret},
	}
}

// Resolver hands out currently-valid access tokens, refreshing expired grants
// against the provider token endpoint. It is the only component that touches
// provider_connections rows.
type Resolver struct {
	db         bun.IDB
	apps       map[string]ProviderApp
	httpClient *http.Client
	now        func() time.Time
}

var _ contract.CredentialResolver = (*Resolver)(nil)

func NewResolver(db bun.IDB, cfg Config) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		db:         db,
		apps:       cfg.apps(),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (r *Resolver) Resolve(ctx context.Context, userID, provider string) (contract.Credential, error) {
	conn := new(store.ProviderConnection)
	err := r.db.NewSelect().
		Model(conn).
		Where("user_id = ?", userID).
		Where("provider = ?", provider).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.Credential{}, fmt.Errorf("%w: %s", contract.ErrNotConnected, provider)
	}
	if err != nil {
		return contract.Credential{}, fmt.Errorf("load %s connection: %w", provider, err)
	}

	now := r.now()
	if conn.ExpiresAt.After(now.Add(refreshSlack)) {
		return contract.Credential{AccessToken: conn.AccessToken, Identity: conn.Identity}, nil
	}

	if conn.RefreshToken == "" {
		return contract.Credential{}, fmt.Errorf("%w: %s grant expired and has no refresh token",
			contract.ErrRefreshFailed, provider)
	}

	refreshed, err := r.refresh(ctx, provider, conn.RefreshToken)
	if err != nil {
		return contract.Credential{}, err
	}

	conn.AccessToken = refreshed.AccessToken
	conn.ExpiresAt = now.Add(time.Duration(refreshed.ExpiresIn) * time.Second)
	if refreshed.RefreshToken != "" {
		conn.RefreshToken = refreshed.RefreshToken
	}
	conn.UpdatedAt = now

	_, err = r.db.NewUpdate().
		Model(conn).
		Column("access_token", "refresh_token", "expires_at", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		// The refreshed token is still valid for this call.
		log.Warn().Err(err).Str("provider", provider).Msg("persisting refreshed token failed")
	}

	return contract.Credential{AccessToken: conn.AccessToken, Identity: conn.Identity}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (r *Resolver) refresh(ctx context.Context, provider, refreshToken string) (tokenResponse, error) {
	app, ok := r.apps[provider]
	if !ok || strings.TrimSpace(app.TokenURL) == "" {
		return tokenResponse{}, fmt.Errorf("%w: no oauth app registered for %s", contract.ErrRefreshFailed, provider)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {app.ClientID},
		"client_secret": {app.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, app.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: build refresh request: %v", contract.ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: %s token endpoint: %v", contract.ErrRefreshFailed, provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: read token response: %v", contract.ErrRefreshFailed, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return tokenResponse{}, fmt.Errorf("%w: %s token endpoint status=%d", contract.ErrRefreshFailed, provider, resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return tokenResponse{}, fmt.Errorf("%w: decode token response: %v", contract.ErrRefreshFailed, err)
	}
	if parsed.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("%w: %s returned an empty access token", contract.ErrRefreshFailed, provider)
	}
	return parsed, nil
}
