package oauth2

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"

	si "github.com/panyam/signin"
)

// TwitterEndpoint is the OAuth 2.0 endpoint for Twitter/X.
var TwitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// NewTwitterConfig configures Twitter/X sign-in. Twitter requires PKCE and
// does not return an email address.
func NewTwitterConfig(clientId, clientSecret, callbackUrl string) *ProviderConfig {
	clientId, clientSecret, callbackUrl = configFromEnv(si.ProviderTwitter, clientId, clientSecret, callbackUrl)
	return &ProviderConfig{
		Provider:     si.ProviderTwitter,
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		Scopes:       []string{"users.read", "tweet.read"},
		Endpoint:     TwitterEndpoint,
		UserInfoURL:  "https://api.twitter.com/2/users/me?user.fields=profile_image_url",
		UsePKCE:      true,
		ParseProfile: parseTwitterProfile,
	}
}

func parseTwitterProfile(data []byte) (*Profile, error) {
	var resp struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid twitter user info: %w", err)
	}
	name := resp.Data.Name
	if name == "" {
		name = resp.Data.Username
	}
	return &Profile{
		Subject: resp.Data.ID,
		Name:    name,
		Picture: resp.Data.ProfileImageURL,
		Raw: map[string]any{
			"id":       resp.Data.ID,
			"name":     resp.Data.Name,
			"username": resp.Data.Username,
		},
	}, nil
}
