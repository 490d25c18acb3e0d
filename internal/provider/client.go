package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ifnotGodTech/travelmate-backend-sub000/config"
	"github.com/ifnotGodTech/travelmate-backend-sub000/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenCache stores the supplier OAuth token between processes. The TTL is
// kept slightly under the provider's stated expiry so a cached token is
// never handed out moments before it dies.
type TokenCache interface {
	GetSupplierToken(ctx context.Context) (string, error)
	SetSupplierToken(ctx context.Context, token string, ttl time.Duration) error
	InvalidateSupplierToken(ctx context.Context) error
}

// Client talks to the travel supplier's REST API. It owns authentication
// entirely: callers issue orders and the client deals with token refresh,
// including the single re-auth retry after a 401.
type Client struct {
	baseURL       string
	clientID      string
	clientSecret  string
	httpClient    *http.Client
	tokens        TokenCache
	tokenMargin   time.Duration
	defaultExpiry time.Duration
	group         singleflight.Group
	logger        *zap.Logger
}

func NewClient(cfg config.AmadeusConfig, tokens TokenCache, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	margin := time.Duration(cfg.TokenMarginSeconds) * time.Second
	if margin <= 0 {
		margin = time.Minute
	}
	defaultExpiry := time.Duration(cfg.DefaultExpirySeconds) * time.Second
	if defaultExpiry <= 0 {
		defaultExpiry = 30 * time.Minute
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		httpClient:    &http.Client{Timeout: timeout},
		tokens:        tokens,
		tokenMargin:   margin,
		defaultExpiry: defaultExpiry,
		logger:        logger,
	}
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate fetches a fresh token from the OAuth endpoint and caches it.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.KindReservationProviderUnavailable, "supplier auth request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.NewError(domain.KindReservationProviderUnavailable,
			fmt.Sprintf("supplier auth returned %d: %s", resp.StatusCode, string(body)))
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", domain.WrapError(domain.KindReservationProviderUnavailable, "decode supplier auth response", err)
	}

	expiry := c.defaultExpiry
	if auth.ExpiresIn > 0 {
		expiry = time.Duration(auth.ExpiresIn) * time.Second
	}
	ttl := expiry - c.tokenMargin
	if ttl <= 0 {
		ttl = expiry
	}
	if err := c.tokens.SetSupplierToken(ctx, auth.AccessToken, ttl); err != nil {
		c.logger.Warn("failed to cache supplier token", zap.Error(err))
	}
	return auth.AccessToken, nil
}

// token returns the cached token or refreshes it. Concurrent refreshes
// coalesce into one auth request.
func (c *Client) token(ctx context.Context) (string, error) {
	cached, err := c.tokens.GetSupplierToken(ctx)
	if err != nil {
		c.logger.Warn("supplier token cache read failed", zap.Error(err))
	}
	if cached != "" {
		return cached, nil
	}

	v, err, _ := c.group.Do("supplier-token", func() (interface{}, error) {
		return c.Authenticate(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// doJSON issues an authenticated request. On 401 it invalidates the cached
// token, re-authenticates and retries the same call exactly once; every
// other error class is surfaced without retry.
func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	status, body, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := c.tokens.InvalidateSupplierToken(ctx); err != nil {
			c.logger.Warn("failed to invalidate supplier token", zap.Error(err))
		}
		token, err = c.Authenticate(ctx)
		if err != nil {
			return err
		}
		status, body, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			return err
		}
		// A fresh token that is still rejected is an auth outage on the
		// supplier side, not a problem with the order payload.
		if status == http.StatusUnauthorized {
			return domain.NewError(domain.KindReservationProviderUnavailable,
				fmt.Sprintf("supplier rejected a freshly issued token on %s %s", method, path))
		}
	}

	switch {
	case status >= 200 && status < 300:
		if out != nil && len(body) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return domain.WrapError(domain.KindReservationProviderUnavailable, "decode supplier response", err)
			}
		}
		return nil
	case status >= 400 && status < 500:
		return domain.NewError(domain.KindReservationRejected,
			fmt.Sprintf("supplier rejected %s %s: %d %s", method, path, status, truncate(body)))
	default:
		return domain.NewError(domain.KindReservationProviderUnavailable,
			fmt.Sprintf("supplier error on %s %s: %d %s", method, path, status, truncate(body)))
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload interface{}, token string) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures: the order may or may not exist
		// upstream, the saga compensates rather than guess.
		return 0, nil, domain.WrapError(domain.KindReservationProviderUnavailable, "supplier request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, domain.WrapError(domain.KindReservationProviderUnavailable, "read supplier response", err)
	}
	return resp.StatusCode, body, nil
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
