package oauth2

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2/facebook"

	si "github.com/panyam/signin"
)

func NewFacebookConfig(clientId, clientSecret, callbackUrl string) *ProviderConfig {
	clientId, clientSecret, callbackUrl = configFromEnv(si.ProviderFacebook, clientId, clientSecret, callbackUrl)
	return &ProviderConfig{
		Provider:     si.ProviderFacebook,
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		Scopes:       []string{"email", "public_profile"},
		Endpoint:     facebook.Endpoint,
		UserInfoURL:  "https://graph.facebook.com/me?fields=id,name,email,picture",
		ParseProfile: parseFacebookProfile,
	}
}

// parseFacebookProfile handles the nested picture object of the Graph API.
func parseFacebookProfile(data []byte) (*Profile, error) {
	var resp struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid facebook user info: %w", err)
	}
	var raw map[string]any
	json.Unmarshal(data, &raw)
	return &Profile{
		Subject: resp.ID,
		Email:   resp.Email,
		Name:    resp.Name,
		Picture: resp.Picture.Data.URL,
		Raw:     raw,
	}, nil
}
