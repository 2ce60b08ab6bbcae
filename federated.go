package signin

import "context"

// FederatedAdapter drives the consent flow with an external provider.
// Closing the consent window maps to ProviderUnavailable.
type FederatedAdapter struct {
	Provider FederatedAuth
}

func (a *FederatedAdapter) SignIn(ctx context.Context, provider FederatedProvider) (*Session, error) {
	sess, err := a.Provider.SignInWithPopup(ctx, provider)
	sess, err = finishSession(MechanismFederated, string(provider), sess, err)
	if err != nil {
		return nil, err
	}
	if sess.Provider == "" {
		sess.Provider = provider
	}
	return sess, nil
}

type consentSinkKey struct{}

// WithConsentSink returns a context whose federated attempts hand their
// consent URL to sink instead of opening a window themselves. HTTP front
// ends use it to return the URL to the browser.
func WithConsentSink(ctx context.Context, sink func(authURL string)) context.Context {
	return context.WithValue(ctx, consentSinkKey{}, sink)
}

// ConsentSinkFromContext returns the sink installed by WithConsentSink, or nil.
func ConsentSinkFromContext(ctx context.Context) func(authURL string) {
	sink, _ := ctx.Value(consentSinkKey{}).(func(string))
	return sink
}
