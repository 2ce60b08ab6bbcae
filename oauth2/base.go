// Package oauth2 runs popup style OAuth2 consent flows for the federated
// providers and reports the outcome as a signin.Session.
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	si "github.com/panyam/signin"
)

// DefaultFlowTimeout bounds how long a consent window may stay open.
const DefaultFlowTimeout = 5 * time.Minute

// Profile is the subset of user info every provider can supply.
type Profile struct {
	Subject string
	Email   string
	Name    string
	Picture string
	Raw     map[string]any
}

// ProfileParser decodes a provider's user-info response.
type ProfileParser func(data []byte) (*Profile, error)

// ProviderConfig describes one federated provider.
type ProviderConfig struct {
	Provider     si.FederatedProvider
	ClientId     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint

	// UserInfoURL is the URL to fetch user info from. Can be overridden for testing.
	UserInfoURL  string
	UsePKCE      bool
	ParseProfile ProfileParser
}

// configFromEnv fills missing credentials from OAUTH2_<PROVIDER>_* variables.
func configFromEnv(provider si.FederatedProvider, clientId, clientSecret, callbackUrl string) (string, string, string) {
	prefix := "OAUTH2_" + strings.ToUpper(string(provider)) + "_"
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv(prefix + "CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv(prefix + "CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv(prefix + "CALLBACK_URL"))
	}
	return clientId, clientSecret, callbackUrl
}

func (p *ProviderConfig) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientId,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.CallbackURL,
		Scopes:       p.Scopes,
		Endpoint:     p.Endpoint,
	}
}

// Opener shows the consent URL to the user, typically in a popup window.
// It must not block until consent completes.
type Opener func(ctx context.Context, provider si.FederatedProvider, authURL string) error

// CompleteFunc turns a verified provider profile into a session. The default
// derives the session directly from the profile.
type CompleteFunc func(ctx context.Context, provider si.FederatedProvider, token *oauth2.Token, profile *Profile) (*si.Session, error)

// ErrNoConsentSink is returned by ContextOpener when the attempt's context
// carries no consent sink.
var ErrNoConsentSink = errors.New("no consent sink in context")

// ContextOpener is an Opener that passes the consent URL to the sink
// installed with signin.WithConsentSink.
func ContextOpener(ctx context.Context, provider si.FederatedProvider, authURL string) error {
	sink := si.ConsentSinkFromContext(ctx)
	if sink == nil {
		return ErrNoConsentSink
	}
	sink(authURL)
	return nil
}

type flowResult struct {
	session *si.Session
	err     error
}

type flow struct {
	provider si.FederatedProvider
	verifier string
	result   chan flowResult
}

// Broker implements signin.FederatedAuth over OAuth2 authorization code
// flows. The callback handler returned by Handler must be mounted at the
// path each provider's CallbackURL points to.
type Broker struct {
	Opener      Opener
	Complete    CompleteFunc
	FlowTimeout time.Duration

	// HTTPClient is used for code exchange and user info requests.
	HTTPClient *http.Client

	mu        sync.Mutex
	providers map[si.FederatedProvider]*ProviderConfig
	pending   map[string]*flow
	mux       *http.ServeMux
}

func NewBroker(opener Opener, providers ...*ProviderConfig) *Broker {
	b := &Broker{
		Opener:      opener,
		FlowTimeout: DefaultFlowTimeout,
		providers:   map[si.FederatedProvider]*ProviderConfig{},
		pending:     map[string]*flow{},
		mux:         http.NewServeMux(),
	}
	for _, p := range providers {
		b.Register(p)
	}
	b.mux.HandleFunc("GET /{provider}/callback", b.handleCallback)
	return b
}

// Register adds or replaces a provider.
func (b *Broker) Register(p *ProviderConfig) *Broker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.providers[p.Provider] = p
	return b
}

func (b *Broker) provider(p si.FederatedProvider) *ProviderConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.providers[p]
}

// Handler serves /{provider}/callback.
func (b *Broker) Handler() http.Handler {
	return b.mux
}

// Pending returns the number of consent flows awaiting a callback.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// SignInWithPopup opens the consent URL and waits for the callback, the
// context or the flow timeout, whichever comes first.
func (b *Broker) SignInWithPopup(ctx context.Context, provider si.FederatedProvider) (*si.Session, error) {
	cfg := b.provider(provider)
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s is not configured", si.ErrProviderUnavailable, provider)
	}
	if b.Opener == nil {
		return nil, fmt.Errorf("%w: no opener configured", si.ErrProviderUnavailable)
	}

	state, err := generateState()
	if err != nil {
		return nil, err
	}
	f := &flow{provider: provider, result: make(chan flowResult, 1)}
	var opts []oauth2.AuthCodeOption
	if cfg.UsePKCE {
		f.verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(f.verifier))
	}
	authURL := cfg.oauthConfig().AuthCodeURL(state, opts...)

	b.mu.Lock()
	b.pending[state] = f
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, state)
		b.mu.Unlock()
	}()

	if err := b.Opener(ctx, provider, authURL); err != nil {
		return nil, fmt.Errorf("%w: could not open consent window: %v", si.ErrPopupClosed, err)
	}

	timeout := b.FlowTimeout
	if timeout <= 0 {
		timeout = DefaultFlowTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-f.result:
		return r.session, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: consent timed out", si.ErrPopupClosed)
	}
}

// claim removes and returns the flow for state if it belongs to provider.
func (b *Broker) claim(state string, provider si.FederatedProvider) *flow {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.pending[state]
	if f == nil || f.provider != provider {
		return nil
	}
	delete(b.pending, state)
	return f
}

func (b *Broker) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider, err := si.ParseFederatedProvider(r.PathValue("provider"))
	if err != nil {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}
	f := b.claim(r.FormValue("state"), provider)
	if f == nil {
		slog.Info("oauth callback with unknown state", "provider", provider)
		http.Error(w, "invalid or expired oauth state", http.StatusBadRequest)
		return
	}

	sess, err := b.finish(r, f)
	f.result <- flowResult{session: sess, err: err}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, closePage("Sign-in did not complete. You can close this window."))
		return
	}
	fmt.Fprint(w, closePage("Signed in. You can close this window."))
}

func (b *Broker) finish(r *http.Request, f *flow) (*si.Session, error) {
	if e := r.FormValue("error"); e != "" {
		if e == "access_denied" {
			return nil, si.ErrPopupClosed
		}
		return nil, fmt.Errorf("%w: provider error %s", si.ErrProviderUnavailable, e)
	}
	code := r.FormValue("code")
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", si.ErrInvalidCredential)
	}

	cfg := b.provider(f.provider)
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s is not configured", si.ErrProviderUnavailable, f.provider)
	}
	ctx := r.Context()
	if b.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}

	var opts []oauth2.AuthCodeOption
	if f.verifier != "" {
		opts = append(opts, oauth2.VerifierOption(f.verifier))
	}
	token, err := cfg.oauthConfig().Exchange(ctx, code, opts...)
	if err != nil {
		slog.Info("oauth code exchange failed", "provider", f.provider, "err", err)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			return nil, fmt.Errorf("%w: code exchange rejected", si.ErrInvalidCredential)
		}
		return nil, fmt.Errorf("%w: code exchange failed: %v", si.ErrProviderUnavailable, err)
	}

	profile, err := fetchProfile(ctx, cfg, token)
	if err != nil {
		slog.Info("oauth user info failed", "provider", f.provider, "err", err)
		return nil, fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
	}

	complete := b.Complete
	if complete == nil {
		complete = SessionFromProfile
	}
	return complete(ctx, f.provider, token, profile)
}

// SessionFromProfile builds a session straight from the provider profile.
func SessionFromProfile(ctx context.Context, provider si.FederatedProvider, token *oauth2.Token, profile *Profile) (*si.Session, error) {
	if profile.Subject == "" {
		return nil, fmt.Errorf("%w: profile has no subject", si.ErrInvalidCredential)
	}
	sess := &si.Session{
		UserID:      string(provider) + ":" + profile.Subject,
		Mechanism:   si.MechanismFederated,
		Provider:    provider,
		Email:       profile.Email,
		DisplayName: profile.Name,
		IssuedAt:    time.Now(),
		ExpiresAt:   token.Expiry,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		sess.IDToken = idToken
	}
	return sess, nil
}
