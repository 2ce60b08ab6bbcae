package signin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	si "github.com/panyam/signin"
)

func newPhoneAdapter(p *fakeProvider, v si.VerifierFactory) *si.PhoneAdapter {
	return &si.PhoneAdapter{Provider: p, Challenges: si.NewChallengeStore(v, "")}
}

func TestPhoneAdapterRequestPassesArtifact(t *testing.T) {
	provider := newFakeProvider()
	var gotPhone, gotToken string
	provider.sendOTP = func(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error) {
		gotPhone = phone
		tok, err := artifact.Token(ctx)
		require.NoError(t, err)
		gotToken = tok
		return "vid-7", nil
	}
	verifiers := &fakeVerifiers{}
	a := newPhoneAdapter(provider, verifiers)

	handle, err := a.RequestOTP(context.Background(), "+91", "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "vid-7", handle.VerificationID)
	assert.False(t, handle.IsZero())
	assert.Equal(t, "+919876543210", gotPhone)
	assert.Equal(t, "token-1", gotToken)
	assert.Equal(t, si.DefaultMountPoint, verifiers.mountSeen)
	assert.True(t, a.Challenges.HasVerifier())
}

func TestPhoneAdapterRequestFailures(t *testing.T) {
	tests := []struct {
		name     string
		send     func(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error)
		failBld  error
		wantCode si.ProviderCode
	}{
		{
			name:     "verifier construction",
			failBld:  errors.New("widget crashed"),
			wantCode: si.ProviderCodeVerifierFailed,
		},
		{
			name: "provider rejects artifact",
			send: func(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error) {
				return "", si.ErrVerifierFailed
			},
			wantCode: si.ProviderCodeVerifierFailed,
		},
		{
			name: "empty verification id",
			send: func(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error) {
				return "", nil
			},
			wantCode: si.ProviderCodeUnknown,
		},
		{
			name: "provider down",
			send: func(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error) {
				return "", si.ErrProviderUnavailable
			},
			wantCode: si.ProviderCodeUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			provider.sendOTP = tt.send
			verifiers := &fakeVerifiers{fail: tt.failBld}
			a := newPhoneAdapter(provider, verifiers)

			handle, err := a.RequestOTP(context.Background(), "+91", "9876543210")
			require.Error(t, err)
			assert.True(t, handle.IsZero())

			var pe *si.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantCode, pe.Code)
			assert.False(t, a.Challenges.HasVerifier(), "failed request must drop the artifact")
			for _, built := range verifiers.Built() {
				assert.True(t, built.Cleared())
			}
		})
	}
}

func TestPhoneAdapterConfirmOnlyCurrentHandle(t *testing.T) {
	provider := newFakeProvider()
	a := newPhoneAdapter(provider, nil)

	old := si.NewChallengeHandle("vid-1")
	current := si.NewChallengeHandle("vid-2")
	a.Challenges.Put(old, "+919876543210", time.Now())
	a.Challenges.Put(current, "+919876543210", time.Now())

	_, err := a.ConfirmOTP(context.Background(), old, "123456")
	var pe *si.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, si.ProviderCodeChallengeMismatch, pe.Code)
	assert.Equal(t, 0, provider.Calls("verify_otp"))

	sess, err := a.ConfirmOTP(context.Background(), current, "123456")
	require.NoError(t, err)
	assert.Equal(t, si.MechanismPhoneConfirm, sess.Mechanism)
	assert.Equal(t, []string{"vid-2"}, provider.VerifiedIDs())
}

func TestEmailAdapterStampsMechanism(t *testing.T) {
	provider := newFakeProvider()
	a := &si.EmailAdapter{Provider: provider}

	sess, err := a.SignUp(context.Background(), "a@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, si.MechanismEmailSignUp, sess.Mechanism)

	provider.signIn = func(ctx context.Context, email, password string) (*si.Session, error) {
		return nil, nil
	}
	_, err = a.Login(context.Background(), "a@example.com", "secret123")
	var pe *si.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, si.ProviderCodeUnknown, pe.Code)
}

func TestFederatedAdapterFillsProvider(t *testing.T) {
	provider := newFakeProvider()
	provider.popup = func(ctx context.Context, p si.FederatedProvider) (*si.Session, error) {
		return &si.Session{UserID: "u-1"}, nil
	}
	a := &si.FederatedAdapter{Provider: provider}

	sess, err := a.SignIn(context.Background(), si.ProviderMicrosoft)
	require.NoError(t, err)
	assert.Equal(t, si.ProviderMicrosoft, sess.Provider)
	assert.Equal(t, si.MechanismFederated, sess.Mechanism)
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, si.VerificationTokenFromContext(ctx))
	assert.Nil(t, si.ConsentSinkFromContext(ctx))

	ctx = si.WithVerificationToken(ctx, "tok")
	assert.Equal(t, "tok", si.VerificationTokenFromContext(ctx))

	var got string
	ctx = si.WithConsentSink(ctx, func(u string) { got = u })
	si.ConsentSinkFromContext(ctx)("https://consent")
	assert.Equal(t, "https://consent", got)
}
