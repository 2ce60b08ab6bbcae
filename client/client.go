// Package client talks to a remote idp.Handler and exposes it as the email
// and phone capabilities of a signin.IdentityProvider.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	si "github.com/panyam/signin"
)

// DefaultTimeout bounds a single request to the identity provider.
const DefaultTimeout = 30 * time.Second

// Client is an HTTP client for the idp JSON API.
type Client struct {
	serverURL     string
	apiKey        string
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

type sessionResponse struct {
	Session *si.Session `json:"session"`
	IDToken string      `json:"id_token"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil && client.Transport != nil {
			c.baseTransport = client.Transport
		}
		if client != nil {
			c.httpClient.Timeout = client.Timeout
			c.httpClient.CheckRedirect = client.CheckRedirect
			c.httpClient.Jar = client.Jar
		}
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.baseTransport = transport
	}
}

// New creates a client for the identity provider at serverURL.
func New(serverURL string, opts ...ClientOption) *Client {
	c := &Client{
		serverURL:     strings.TrimSuffix(serverURL, "/"),
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &apiKeyTransport{base: c.baseTransport, key: c.apiKey}
	return c
}

// ServerURL returns the server URL this client is configured for
func (c *Client) ServerURL() string {
	return c.serverURL
}

func (c *Client) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*si.Session, error) {
	return c.session(ctx, "/email/signup", map[string]string{"email": email, "password": password})
}

func (c *Client) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*si.Session, error) {
	return c.session(ctx, "/email/login", map[string]string{"email": email, "password": password})
}

// SendOTP forwards the artifact's token with the request. A nil artifact
// sends none.
func (c *Client) SendOTP(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error) {
	body := map[string]string{"phone": phone}
	if artifact != nil {
		token, err := artifact.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %v", si.ErrVerifierFailed, err)
		}
		body["captcha_token"] = token
	}
	var resp struct {
		VerificationID string `json:"verification_id"`
	}
	if err := c.post(ctx, "/phone/send", body, &resp); err != nil {
		return "", err
	}
	return resp.VerificationID, nil
}

func (c *Client) VerifyOTP(ctx context.Context, verificationID, code string) (*si.Session, error) {
	return c.session(ctx, "/phone/verify", map[string]string{"verification_id": verificationID, "code": code})
}

func (c *Client) session(ctx context.Context, path string, body any) (*si.Session, error) {
	var resp sessionResponse
	if err := c.post(ctx, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.Session == nil {
		return nil, fmt.Errorf("idp %s: empty session", path)
	}
	resp.Session.IDToken = resp.IDToken
	return resp.Session, nil
}

// post sends body as JSON and decodes a 200 response into out. Failures are
// mapped back to the signin sentinel errors.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		json.Unmarshal(respBody, &er)
		if sentinel := si.SentinelFor(si.ProviderCode(er.Error)); sentinel != nil {
			return fmt.Errorf("%w: idp status %d", sentinel, resp.StatusCode)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: idp status %d", si.ErrProviderUnavailable, resp.StatusCode)
		}
		return fmt.Errorf("idp request failed: status %d: %s", resp.StatusCode, er.Error)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse idp response: %w", err)
	}
	return nil
}

// UserAgent is sent on every request to the identity provider.
const UserAgent = "signin-client/1"

// apiKeyTransport stamps the client's API key and user agent on a clone of
// each outgoing request.
type apiKeyTransport struct {
	base http.RoundTripper
	key  string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	if t.key != "" {
		req.Header.Set("Authorization", "Bearer "+t.key)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
