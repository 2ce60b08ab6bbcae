package signin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	si "github.com/panyam/signin"
)

type serverResponse struct {
	State      string           `json:"state"`
	Mechanism  string           `json:"mechanism"`
	Error      *si.DisplayError `json:"error"`
	Notice     string           `json:"notice"`
	Session    *si.Session      `json:"session"`
	Rejected   string           `json:"rejected"`
	ConsentURL string           `json:"consent_url"`
}

func newTestServer(t *testing.T, provider si.IdentityProvider) (*si.Server, *httptest.Server) {
	t.Helper()
	srv := si.NewServer(scs.New(), func(string) *si.Orchestrator {
		return si.NewOrchestrator(provider, nil)
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func call(t *testing.T, c *http.Client, method, url string, body any) (int, serverResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out serverResponse
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestServerEmailLoginKeepsSession(t *testing.T) {
	_, ts := newTestServer(t, newFakeProvider())
	browser := newBrowser(t)

	status, resp := call(t, browser, http.MethodPost, ts.URL+"/email/login",
		map[string]string{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "succeeded", resp.State)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "u-alice@example.com", resp.Session.UserID)

	// The cookie routes the second submit to the same orchestrator.
	status, resp = call(t, browser, http.MethodPost, ts.URL+"/email/login",
		map[string]string{"email": "alice@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_signed_in", resp.Rejected)
	assert.Equal(t, "succeeded", resp.State)

	status, resp = call(t, browser, http.MethodPost, ts.URL+"/reset", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idle", resp.State)
	assert.Nil(t, resp.Session)
}

func TestServerInvalidInputIsDisplayed(t *testing.T) {
	provider := newFakeProvider()
	_, ts := newTestServer(t, provider)

	status, resp := call(t, newBrowser(t), http.MethodPost, ts.URL+"/email/signup",
		map[string]string{"email": "not-an-email", "password": "secret123"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "failed", resp.State)
	require.NotNil(t, resp.Error)
	assert.Equal(t, si.KindInvalidInput, resp.Error.Kind)
	assert.Equal(t, 0, provider.TotalCalls())
}

func TestServerPhoneFlow(t *testing.T) {
	provider := newFakeProvider()
	_, ts := newTestServer(t, provider)
	browser := newBrowser(t)

	status, resp := call(t, browser, http.MethodPost, ts.URL+"/phone/verify", map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "no_pending_challenge", resp.Rejected)

	status, resp = call(t, browser, http.MethodPost, ts.URL+"/phone/otp",
		map[string]string{"country_code": "+91", "phone_number": "9876543210"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "challenge_issued", resp.State)

	status, resp = call(t, browser, http.MethodPost, ts.URL+"/phone/verify", map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "succeeded", resp.State)
	assert.Equal(t, []string{"vid-1"}, provider.VerifiedIDs())
}

func TestServerFederatedReturnsConsentURL(t *testing.T) {
	provider := newFakeProvider()
	release := make(chan struct{})
	provider.popup = func(ctx context.Context, p si.FederatedProvider) (*si.Session, error) {
		sink := si.ConsentSinkFromContext(ctx)
		if sink == nil {
			return nil, si.ErrProviderUnavailable
		}
		sink("https://accounts.example.com/consent?state=abc")
		<-release
		return &si.Session{UserID: "u-google", Provider: p}, nil
	}
	_, ts := newTestServer(t, provider)
	browser := newBrowser(t)

	status, resp := call(t, browser, http.MethodPost, ts.URL+"/federated/google", nil)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "https://accounts.example.com/consent?state=abc", resp.ConsentURL)
	assert.Equal(t, "submitting", resp.State)

	close(release)
	require.Eventually(t, func() bool {
		_, resp := call(t, browser, http.MethodGet, ts.URL+"/state", nil)
		return resp.State == "succeeded"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerSeparatesBrowsers(t *testing.T) {
	srv, ts := newTestServer(t, newFakeProvider())
	alice, bob := newBrowser(t), newBrowser(t)

	status, _ := call(t, alice, http.MethodPost, ts.URL+"/email/login",
		map[string]string{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, status)

	_, resp := call(t, bob, http.MethodGet, ts.URL+"/state", nil)
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, 2, srv.Sessions())
}

func TestServerRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, newFakeProvider())
	browser := newBrowser(t)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/email/login", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp, err := browser.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = browser.Get(ts.URL + "/email/login")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerCountryCodes(t *testing.T) {
	_, ts := newTestServer(t, newFakeProvider())

	resp, err := newBrowser(t).Get(ts.URL + "/country-codes")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dir si.CountryDirectory
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dir))
	assert.Equal(t, si.CountryCodes().Default, dir.Default)
	assert.NotEmpty(t, dir.Countries)
}
