package oauth

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

	"github.com/vyrodovalexey/sitegate/internal/observability"
)

const (
	defaultExpiresIn = 3600
	maxResponseBytes = 1 << 20
)

// tokenResponse is the token endpoint's JSON answer, success or error.
type tokenResponse struct {
	AccessToken      string       `json:"access_token"`
	TokenType        string       `json:"token_type"`
	ExpiresIn        *json.Number `json:"expires_in"`
	Error            string       `json:"error"`
	ErrorDescription string       `json:"error_description"`
}

// Client performs the client-credentials grant against one token endpoint.
type Client struct {
	endpoint     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	logger       observability.Logger
	now          func() time.Time
}

// NewClient validates its inputs and returns a Client.
func NewClient(
	endpoint, clientID, clientSecret, scope string,
	httpClient *http.Client,
	logger observability.Logger,
) (*Client, error) {
	switch {
	case endpoint == "":
		return nil, ErrMissingTokenEndpoint
	case clientID == "":
		return nil, ErrMissingClientID
	case clientSecret == "":
		return nil, ErrMissingClientSecret
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Client{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient:   httpClient,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Acquire requests a new token.
func (c *Client) Acquire(ctx context.Context) (*Entry, error) {
	req, err := c.buildTokenRequest(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrTokenRequestFailed, err)
	}

	var parsed tokenResponse
	decodeErr := decodeTokenResponse(body, &parsed)
	if decodeErr != nil {
		c.logger.Warn("token endpoint returned non-JSON response",
			observability.Int("status", resp.StatusCode),
			observability.Error(decodeErr))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			StatusCode:  resp.StatusCode,
			Status:      resp.Status,
			Code:        parsed.Error,
			Description: parsed.ErrorDescription,
		}
	}

	return c.parseEntry(&parsed, decodeErr)
}

func (c *Client) buildTokenRequest(ctx context.Context) (*http.Request, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "client_credentials")
	if c.scope != "" {
		form.Set("scope", c.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func decodeTokenResponse(body []byte, out *tokenResponse) error {
	if len(body) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(out)
}

func (c *Client) parseEntry(parsed *tokenResponse, decodeErr error) (*Entry, error) {
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, decodeErr)
	}
	if parsed.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrInvalidResponse)
	}

	expiresIn := float64(defaultExpiresIn)
	if parsed.ExpiresIn != nil {
		v, err := parsed.ExpiresIn.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: expires_in: %w", ErrInvalidResponse, err)
		}
		expiresIn = v
	}

	// Millisecond precision matches the distributed-cache encoding, so a
	// token judged fresh locally is judged the same after a round trip.
	now := c.now().Truncate(time.Millisecond)
	return &Entry{
		Token:     parsed.AccessToken,
		ExpiresAt: now.Add(time.Duration(expiresIn * float64(time.Second))).Truncate(time.Millisecond),
		CachedAt:  now,
	}, nil
}
