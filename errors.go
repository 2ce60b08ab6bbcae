package signin

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind is the closed set of failure categories shown to the user.
type ErrorKind string

const (
	KindInvalidInput                ErrorKind = "invalid_input"
	KindInvalidCredential           ErrorKind = "invalid_credential"
	KindAccountConflict             ErrorKind = "account_conflict"
	KindChallengeConstructionFailed ErrorKind = "challenge_construction_failed"
	KindStaleChallenge              ErrorKind = "stale_challenge"
	KindProviderUnavailable         ErrorKind = "provider_unavailable"
	KindUnknown                     ErrorKind = "unknown"
)

// Sentinel errors that identity providers wrap to signal a classified failure.
var (
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrAccountExists       = errors.New("account already exists")
	ErrVerifierFailed      = errors.New("verification artifact failed")
	ErrChallengeMismatch   = errors.New("challenge does not match the last issued one")
	ErrCodeExpired         = errors.New("verification code expired")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	ErrPopupClosed         = errors.New("consent window closed")
)

// Orchestrator rejections. These leave state untouched and are returned to
// the caller rather than displayed.
var (
	ErrAttemptInProgress  = errors.New("an attempt is already in progress")
	ErrAlreadySignedIn    = errors.New("already signed in, reset first")
	ErrNoPendingChallenge = errors.New("no pending challenge to confirm")
	ErrAttemptAbandoned   = errors.New("attempt abandoned by reset")
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// DisplayError is the normalized, user presentable failure.
type DisplayError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

func (e *DisplayError) Error() string {
	return e.Message
}

// GRPCStatus lets grpc/status.FromError recognize a DisplayError.
func (e *DisplayError) GRPCStatus() *status.Status {
	return status.New(e.Kind.GRPCCode(), e.Message)
}

// GRPCCode maps a kind onto the closest gRPC status code.
func (k ErrorKind) GRPCCode() codes.Code {
	switch k {
	case KindInvalidInput:
		return codes.InvalidArgument
	case KindInvalidCredential:
		return codes.Unauthenticated
	case KindAccountConflict:
		return codes.AlreadyExists
	case KindChallengeConstructionFailed:
		return codes.FailedPrecondition
	case KindStaleChallenge:
		return codes.Aborted
	case KindProviderUnavailable:
		return codes.Unavailable
	}
	return codes.Unknown
}

func invalidInput(field, message string) *DisplayError {
	return &DisplayError{Kind: KindInvalidInput, Message: message, Field: field}
}

// ProviderCode classifies a failure reported by an identity provider.
type ProviderCode string

const (
	ProviderCodeInvalidCredential ProviderCode = "invalid_credential"
	ProviderCodeAlreadyExists     ProviderCode = "already_exists"
	ProviderCodeVerifierFailed    ProviderCode = "verifier_failed"
	ProviderCodeChallengeMismatch ProviderCode = "challenge_mismatch"
	ProviderCodeCodeExpired       ProviderCode = "code_expired"
	ProviderCodeUnavailable       ProviderCode = "unavailable"
	ProviderCodeCancelled         ProviderCode = "cancelled"
	ProviderCodeUnknown           ProviderCode = "unknown"
)

// ProviderError is the typed failure produced at the adapter boundary.
// The wrapped error may carry provider text; it never reaches the user.
type ProviderError struct {
	Code     ProviderCode
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// sentinelCodes is ordered: the first match wins.
var sentinelCodes = []struct {
	err  error
	code ProviderCode
}{
	{ErrAccountExists, ProviderCodeAlreadyExists},
	{ErrInvalidCredential, ProviderCodeInvalidCredential},
	{ErrVerifierFailed, ProviderCodeVerifierFailed},
	{ErrChallengeMismatch, ProviderCodeChallengeMismatch},
	{ErrCodeExpired, ProviderCodeCodeExpired},
	{ErrPopupClosed, ProviderCodeCancelled},
	{ErrProviderUnavailable, ProviderCodeUnavailable},
	{context.Canceled, ProviderCodeCancelled},
	{context.DeadlineExceeded, ProviderCodeUnavailable},
}

// ClassifyProviderError converts any provider failure into a *ProviderError.
// Errors that are already classified are returned unchanged.
func ClassifyProviderError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return &ProviderError{Code: sc.code, Provider: provider, Err: err}
		}
	}
	return &ProviderError{Code: ProviderCodeUnknown, Provider: provider, Err: err}
}

// SentinelFor returns the sentinel error a code was classified from, so a
// code carried over the wire can be matched with errors.Is again. Unknown
// codes return nil.
func SentinelFor(code ProviderCode) error {
	if code == ProviderCodeCancelled {
		return ErrPopupClosed
	}
	for _, sc := range sentinelCodes {
		if sc.code == code {
			return sc.err
		}
	}
	return nil
}

// KindForCode maps a provider code onto the display taxonomy.
func KindForCode(code ProviderCode) ErrorKind {
	switch code {
	case ProviderCodeInvalidCredential:
		return KindInvalidCredential
	case ProviderCodeAlreadyExists:
		return KindAccountConflict
	case ProviderCodeVerifierFailed:
		return KindChallengeConstructionFailed
	case ProviderCodeChallengeMismatch, ProviderCodeCodeExpired:
		return KindStaleChallenge
	case ProviderCodeUnavailable, ProviderCodeCancelled:
		return KindProviderUnavailable
	}
	return KindUnknown
}

// Normalize maps any failure for the given mechanism to a DisplayError. It is
// total and never copies provider supplied text into the message. Only a
// DisplayError at the top of the chain, which is produced locally, passes
// through unchanged; one wrapped further down is re-rendered from its
// classification.
func Normalize(mech Mechanism, err error) *DisplayError {
	if err == nil {
		return nil
	}
	if de, ok := err.(*DisplayError); ok {
		return de
	}
	pe := ClassifyProviderError(mech.String(), err)
	kind := KindForCode(pe.Code)
	return &DisplayError{Kind: kind, Message: MessageFor(mech, kind)}
}

// KindOf returns the display kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var de *DisplayError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// MessageFor returns the fixed user facing message for a kind under a mechanism.
func MessageFor(mech Mechanism, kind ErrorKind) string {
	switch kind {
	case KindInvalidInput:
		return "Please check the highlighted field and try again."
	case KindInvalidCredential:
		switch mech {
		case MechanismPhoneConfirm:
			return "Invalid OTP. Please try again."
		case MechanismFederated:
			return "Error signing in with provider. Please try again."
		case MechanismEmailSignUp:
			return "Error creating account. Please try again."
		}
		return "Invalid email or password."
	case KindAccountConflict:
		return "An account with this email already exists."
	case KindChallengeConstructionFailed:
		return "Error sending OTP. Please try again."
	case KindStaleChallenge:
		return "This code is no longer valid. Please request a new OTP."
	case KindProviderUnavailable:
		if mech == MechanismFederated {
			return "Error signing in with provider. Please try again."
		}
		return "The sign-in service is unavailable. Please try again."
	}
	switch mech {
	case MechanismEmailSignUp:
		return "Error creating account. Please try again."
	case MechanismPhoneRequest:
		return "Error sending OTP. Please try again."
	case MechanismPhoneConfirm:
		return "Error verifying OTP. Please try again."
	case MechanismFederated:
		return "Error signing in with provider. Please try again."
	}
	return "Something went wrong. Please try again."
}
