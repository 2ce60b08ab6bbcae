package signin

import (
	"context"
	"errors"
)

var errEmptyVerificationID = errors.New("provider returned an empty verification id")

// PhoneAdapter drives the two-phase phone OTP flow. Challenges is shared with
// the owning orchestrator, which is the only writer of the pending slot.
type PhoneAdapter struct {
	Provider   PhoneAuth
	Challenges *ChallengeStore
}

// RequestOTP obtains (or reuses) the verification artifact and asks the
// provider to send a code. A failed request invalidates the artifact it used,
// leaving any artifact built since by a newer attempt alone.
func (a *PhoneAdapter) RequestOTP(ctx context.Context, countryCode, digits string) (ChallengeHandle, error) {
	// a failed construction never stores an artifact
	artifact, gen, err := a.Challenges.AcquireVerifier(ctx)
	if err != nil {
		return ChallengeHandle{}, ClassifyProviderError("phone", err)
	}

	verificationID, err := a.Provider.SendOTP(ctx, countryCode+digits, artifact)
	if err == nil && verificationID == "" {
		err = errEmptyVerificationID
	}
	if err != nil {
		a.Challenges.InvalidateVerifierIf(gen)
		return ChallengeHandle{}, ClassifyProviderError("phone", err)
	}
	return NewChallengeHandle(verificationID), nil
}

// ConfirmOTP submits code against handle. Only the last issued handle is
// accepted; anything else fails without contacting the provider.
func (a *PhoneAdapter) ConfirmOTP(ctx context.Context, handle ChallengeHandle, code string) (*Session, error) {
	if !a.Challenges.IsCurrent(handle) {
		return nil, &ProviderError{Code: ProviderCodeChallengeMismatch, Provider: "phone", Err: ErrChallengeMismatch}
	}
	sess, err := a.Provider.VerifyOTP(ctx, handle.VerificationID, code)
	return finishSession(MechanismPhoneConfirm, "phone", sess, err)
}

type verificationTokenKey struct{}

// WithVerificationToken attaches a verifier response token produced in the
// browser, for artifacts whose solver runs client side.
func WithVerificationToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, verificationTokenKey{}, token)
}

// VerificationTokenFromContext returns the token attached by
// WithVerificationToken, or "".
func VerificationTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(verificationTokenKey{}).(string)
	return token
}
