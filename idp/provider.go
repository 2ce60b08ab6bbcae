// Package idp is a self-hosted identity provider that backs the signin
// capability interfaces with user stores, hashed OTP records and signed
// session tokens.
package idp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	xoauth2 "golang.org/x/oauth2"

	si "github.com/panyam/signin"
	"github.com/panyam/signin/captcha"
	"github.com/panyam/signin/oauth2"
)

// Config wires the stores and collaborators of a Provider.
type Config struct {
	Users      si.UserStore
	Identities si.IdentityStore
	Channels   si.ChannelStore
	OTPs       si.OTPStore

	Tokens *TokenIssuer
	SMS    SMSSender

	// Captcha checks the verification artifact of OTP requests. Nil skips the check.
	Captcha captcha.Verifier

	// Federated runs consent flows. Nil disables federated sign-in.
	Federated si.FederatedAuth

	// SendLimiter throttles OTP sends per phone number. Nil disables throttling.
	SendLimiter RateLimiter

	OTPLength      int
	OTPExpiry      time.Duration
	OTPMaxAttempts int
	BcryptCost     int

	Now func() time.Time
}

func (c *Config) EnsureDefaults() *Config {
	if c.Tokens == nil {
		c.Tokens = &TokenIssuer{}
	}
	c.Tokens.EnsureDefaults()
	if c.SMS == nil {
		c.SMS = &ConsoleSMSSender{}
	}
	if c.OTPLength <= 0 {
		c.OTPLength = si.DefaultOTPLength
	}
	if c.OTPExpiry <= 0 {
		c.OTPExpiry = si.OTPExpiry
	}
	if c.OTPMaxAttempts <= 0 {
		c.OTPMaxAttempts = si.OTPMaxAttempts
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Provider implements si.IdentityProvider against local stores.
type Provider struct {
	Config

	createUser si.CreateUserFunc
	validate   si.CredentialsValidator
	ensureUser si.EnsureUserFunc
}

func New(cfg Config) *Provider {
	cfg.EnsureDefaults()
	return &Provider{
		Config:     cfg,
		createUser: si.NewCreateUserFunc(cfg.Users, cfg.Identities, cfg.Channels, cfg.BcryptCost),
		validate:   si.NewCredentialsValidator(cfg.Identities, cfg.Channels, cfg.Users),
		ensureUser: si.NewEnsureUserFunc(cfg.Users, cfg.Identities, cfg.Channels),
	}
}

func (p *Provider) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*si.Session, error) {
	user, err := p.createUser(ctx, email, password)
	if err != nil {
		return nil, err
	}
	sess := &si.Session{Email: si.NormalizeEmail(email)}
	return p.issue(user, si.MechanismEmailSignUp, sess)
}

func (p *Provider) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*si.Session, error) {
	user, err := p.validate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	sess := &si.Session{Email: si.NormalizeEmail(email)}
	return p.issue(user, si.MechanismEmailLogin, sess)
}

// SendOTP checks the artifact, throttles, stores a hashed code and texts it.
func (p *Provider) SendOTP(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error) {
	if p.Captcha != nil {
		if artifact == nil {
			return "", fmt.Errorf("%w: missing verification artifact", si.ErrVerifierFailed)
		}
		token, err := artifact.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: %v", si.ErrVerifierFailed, err)
		}
		if err := p.Captcha.Verify(ctx, token, ""); err != nil {
			if errors.Is(err, captcha.ErrTokenRejected) {
				return "", fmt.Errorf("%w: %v", si.ErrVerifierFailed, err)
			}
			return "", fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
		}
	}

	if p.SendLimiter != nil && !p.SendLimiter.Allow(phone) {
		slog.Warn("otp send throttled", "phone", redactPhone(phone))
		return "", fmt.Errorf("%w: too many requests", si.ErrProviderUnavailable)
	}

	code, err := si.GenerateOTP(p.OTPLength)
	if err != nil {
		return "", err
	}
	now := p.Now()
	rec := &si.OTPRecord{
		ID:        uuid.NewString(),
		Phone:     phone,
		CodeHash:  si.HashOTP(code),
		CreatedAt: now,
		ExpiresAt: now.Add(p.OTPExpiry),
	}
	if err := p.OTPs.SaveOTP(ctx, rec); err != nil {
		return "", fmt.Errorf("failed to save otp: %w", err)
	}
	if err := p.SMS.SendOTP(ctx, phone, code); err != nil {
		p.OTPs.DeleteOTP(ctx, rec.ID)
		slog.Error("otp delivery failed", "phone", redactPhone(phone), "err", err)
		return "", fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
	}
	return rec.ID, nil
}

// VerifyOTP checks code against the record. Wrong codes consume an attempt;
// the record is dropped once attempts run out or it expires. Only the caller
// whose delete succeeds may sign in, so a code verifies at most once.
func (p *Provider) VerifyOTP(ctx context.Context, verificationID, code string) (*si.Session, error) {
	rec, err := p.OTPs.GetOTP(ctx, verificationID)
	if err != nil {
		if errors.Is(err, si.ErrNotFound) {
			return nil, si.ErrCodeExpired
		}
		return nil, err
	}
	if p.Now().After(rec.ExpiresAt) {
		p.OTPs.DeleteOTP(ctx, rec.ID)
		return nil, si.ErrCodeExpired
	}
	if !si.OTPEqual(code, rec.CodeHash) {
		attempts, err := p.OTPs.IncrementOTPAttempts(ctx, rec.ID)
		if errors.Is(err, si.ErrNotFound) {
			return nil, si.ErrCodeExpired
		} else if err != nil {
			return nil, fmt.Errorf("failed to record otp attempt: %w", err)
		}
		if attempts >= p.OTPMaxAttempts {
			p.OTPs.DeleteOTP(ctx, rec.ID)
			return nil, fmt.Errorf("%w: too many attempts", si.ErrCodeExpired)
		}
		return nil, si.ErrInvalidCredential
	}
	if err := p.OTPs.DeleteOTP(ctx, rec.ID); errors.Is(err, si.ErrNotFound) {
		// consumed or exhausted by a concurrent verify
		return nil, si.ErrCodeExpired
	} else if err != nil {
		return nil, fmt.Errorf("failed to consume otp: %w", err)
	}

	user, err := p.ensureUser(ctx, si.ChannelPhone, si.IdentityPhone, rec.Phone, nil)
	if err != nil {
		return nil, err
	}
	return p.issue(user, si.MechanismPhoneConfirm, &si.Session{Phone: rec.Phone})
}

func (p *Provider) SignInWithPopup(ctx context.Context, provider si.FederatedProvider) (*si.Session, error) {
	if p.Federated == nil {
		return nil, fmt.Errorf("%w: federated sign-in not configured", si.ErrProviderUnavailable)
	}
	return p.Federated.SignInWithPopup(ctx, provider)
}

// CompleteFederated links a consented profile to a local user. It is meant
// to be installed as oauth2.Broker.Complete.
func (p *Provider) CompleteFederated(ctx context.Context, provider si.FederatedProvider, token *xoauth2.Token, profile *oauth2.Profile) (*si.Session, error) {
	if profile.Subject == "" {
		return nil, fmt.Errorf("%w: profile has no subject", si.ErrInvalidCredential)
	}
	identityType, identityValue := string(provider), profile.Subject
	if profile.Email != "" {
		identityType, identityValue = si.IdentityEmail, profile.Email
	}
	user, err := p.ensureUser(ctx, string(provider), identityType, identityValue, profile.Raw)
	if err != nil {
		return nil, err
	}
	return p.issue(user, si.MechanismFederated, &si.Session{
		Provider:    provider,
		Email:       profile.Email,
		DisplayName: profile.Name,
	})
}

func (p *Provider) issue(user si.User, mech si.Mechanism, sess *si.Session) (*si.Session, error) {
	now := p.Now()
	token, exp, err := p.Tokens.Issue(user.Id(), mech, now)
	if err != nil {
		return nil, err
	}
	sess.UserID = user.Id()
	sess.Mechanism = mech
	sess.IDToken = token
	sess.IssuedAt = now
	sess.ExpiresAt = exp
	if sess.DisplayName == "" {
		if name, ok := user.Profile()["name"].(string); ok {
			sess.DisplayName = name
		}
	}
	return sess, nil
}

func redactPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
