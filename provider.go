package signin

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mechanism identifies which sign-in path an attempt used.
type Mechanism int

const (
	MechanismNone Mechanism = iota
	MechanismEmailSignUp
	MechanismEmailLogin
	MechanismPhoneRequest
	MechanismPhoneConfirm
	MechanismFederated
)

func (m Mechanism) String() string {
	switch m {
	case MechanismEmailSignUp:
		return "email_signup"
	case MechanismEmailLogin:
		return "email_login"
	case MechanismPhoneRequest:
		return "phone_otp_request"
	case MechanismPhoneConfirm:
		return "phone_otp_confirm"
	case MechanismFederated:
		return "federated"
	}
	return "none"
}

func (m Mechanism) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mechanism) UnmarshalText(b []byte) error {
	for c := MechanismNone; c <= MechanismFederated; c++ {
		if c.String() == string(b) {
			*m = c
			return nil
		}
	}
	return fmt.Errorf("unknown mechanism %q", b)
}

// FederatedProvider names one of the supported external identity providers.
type FederatedProvider string

const (
	ProviderGoogle    FederatedProvider = "google"
	ProviderFacebook  FederatedProvider = "facebook"
	ProviderTwitter   FederatedProvider = "twitter"
	ProviderMicrosoft FederatedProvider = "microsoft"
)

// FederatedProviders lists every supported provider in display order.
var FederatedProviders = []FederatedProvider{ProviderGoogle, ProviderFacebook, ProviderTwitter, ProviderMicrosoft}

// DisplayName is the label used in notices ("Logged in with Google").
func (p FederatedProvider) DisplayName() string {
	switch p {
	case ProviderGoogle:
		return "Google"
	case ProviderFacebook:
		return "Facebook"
	case ProviderTwitter:
		return "Twitter"
	case ProviderMicrosoft:
		return "Microsoft"
	}
	return string(p)
}

// ParseFederatedProvider accepts a provider id case-insensitively. "x" is an
// alias for twitter.
func ParseFederatedProvider(id string) (FederatedProvider, error) {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "google":
		return ProviderGoogle, nil
	case "facebook":
		return ProviderFacebook, nil
	case "twitter", "x":
		return ProviderTwitter, nil
	case "microsoft":
		return ProviderMicrosoft, nil
	}
	return "", invalidInput("provider", fmt.Sprintf("Unsupported sign-in provider %q.", id))
}

// Session is the established-session result shared by every mechanism.
type Session struct {
	UserID      string            `json:"user_id"`
	Mechanism   Mechanism         `json:"mechanism"`
	Provider    FederatedProvider `json:"provider,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	DisplayName string            `json:"display_name,omitempty"`
	IDToken     string            `json:"-"`
	IssuedAt    time.Time         `json:"issued_at"`
	ExpiresAt   time.Time         `json:"expires_at,omitempty"`
}

// EmailAuth is the email/password capability of an identity provider.
type EmailAuth interface {
	CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*Session, error)
	SignInWithEmailAndPassword(ctx context.Context, email, password string) (*Session, error)
}

// PhoneAuth is the two-phase phone OTP capability of an identity provider.
type PhoneAuth interface {
	// SendOTP dispatches a code to phoneNumber and returns an opaque
	// verification id to confirm against.
	SendOTP(ctx context.Context, phoneNumber string, artifact VerificationArtifact) (verificationID string, err error)
	VerifyOTP(ctx context.Context, verificationID, code string) (*Session, error)
}

// FederatedAuth runs a consent flow with an external provider.
type FederatedAuth interface {
	SignInWithPopup(ctx context.Context, provider FederatedProvider) (*Session, error)
}

// IdentityProvider is the full external capability set used by an Orchestrator.
type IdentityProvider interface {
	EmailAuth
	PhoneAuth
	FederatedAuth
}

// VerificationArtifact is an anti-automation proof attached to an OTP request.
type VerificationArtifact interface {
	Token(ctx context.Context) (string, error)
	// Clear tears the artifact down. Token fails afterwards.
	Clear()
}

// VerifierFactory constructs verification artifacts bound to a UI mount point.
type VerifierFactory interface {
	NewVerifier(ctx context.Context, mountPoint string) (VerificationArtifact, error)
}

// Providers assembles an IdentityProvider from separate capabilities. A nil
// capability panics when used, so leave one nil only when its mechanism is
// never submitted.
type Providers struct {
	EmailAuth
	PhoneAuth
	FederatedAuth
}
