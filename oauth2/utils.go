package oauth2

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// fetchProfile calls the provider's user info endpoint with token.
func fetchProfile(ctx context.Context, cfg *ProviderConfig, token *oauth2.Token) (*Profile, error) {
	client := cfg.oauthConfig().Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed getting user info: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed reading user info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info returned status %d", resp.StatusCode)
	}

	parse := cfg.ParseProfile
	if parse == nil {
		parse = parseFlatProfile
	}
	return parse(data)
}

// parseFlatProfile reads {"id","email","name","picture"} objects.
func parseFlatProfile(data []byte) (*Profile, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid user info: %w", err)
	}
	return &Profile{
		Subject: stringField(raw, "id"),
		Email:   stringField(raw, "email"),
		Name:    stringField(raw, "name"),
		Picture: stringField(raw, "picture"),
		Raw:     raw,
	}, nil
}

// stringField returns raw[key] as a string. Numeric ids are formatted.
func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

func closePage(message string) string {
	return "<!doctype html><html><body><p>" + html.EscapeString(message) +
		"</p><script>window.close()</script></body></html>"
}
