package oauth2

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2/microsoft"

	si "github.com/panyam/signin"
)

// NewMicrosoftConfig configures Microsoft sign-in against the "common"
// tenant, which accepts both work and personal accounts.
func NewMicrosoftConfig(clientId, clientSecret, callbackUrl string) *ProviderConfig {
	clientId, clientSecret, callbackUrl = configFromEnv(si.ProviderMicrosoft, clientId, clientSecret, callbackUrl)
	return &ProviderConfig{
		Provider:     si.ProviderMicrosoft,
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		Scopes:       []string{"openid", "email", "profile", "User.Read"},
		Endpoint:     microsoft.AzureADEndpoint("common"),
		UserInfoURL:  "https://graph.microsoft.com/v1.0/me",
		UsePKCE:      true,
		ParseProfile: parseMicrosoftProfile,
	}
}

func parseMicrosoftProfile(data []byte) (*Profile, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid microsoft user info: %w", err)
	}
	email := stringField(raw, "mail")
	if email == "" {
		email = stringField(raw, "userPrincipalName")
	}
	return &Profile{
		Subject: stringField(raw, "id"),
		Email:   email,
		Name:    stringField(raw, "displayName"),
		Raw:     raw,
	}, nil
}
