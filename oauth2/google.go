package oauth2

import (
	"golang.org/x/oauth2/google"

	si "github.com/panyam/signin"
)

// NewGoogleConfig configures Google sign-in. Empty arguments fall back to
// OAUTH2_GOOGLE_CLIENT_ID, OAUTH2_GOOGLE_CLIENT_SECRET and
// OAUTH2_GOOGLE_CALLBACK_URL.
func NewGoogleConfig(clientId, clientSecret, callbackUrl string) *ProviderConfig {
	clientId, clientSecret, callbackUrl = configFromEnv(si.ProviderGoogle, clientId, clientSecret, callbackUrl)
	return &ProviderConfig{
		Provider:     si.ProviderGoogle,
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint:     google.Endpoint,
		UserInfoURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
		UsePKCE:      true,
		ParseProfile: parseFlatProfile,
	}
}
