package signin

import (
	"context"
	"errors"
)

// errEmptySession is reported when a provider returns neither a session nor an error.
var errEmptySession = errors.New("provider returned no session")

// EmailAdapter drives email/password sign-up and login.
type EmailAdapter struct {
	Provider EmailAuth
}

// SignUp creates an account and establishes a session for it.
func (a *EmailAdapter) SignUp(ctx context.Context, email, password string) (*Session, error) {
	sess, err := a.Provider.CreateUserWithEmailAndPassword(ctx, email, password)
	return finishSession(MechanismEmailSignUp, "email", sess, err)
}

// Login establishes a session for an existing account.
func (a *EmailAdapter) Login(ctx context.Context, email, password string) (*Session, error) {
	sess, err := a.Provider.SignInWithEmailAndPassword(ctx, email, password)
	return finishSession(MechanismEmailLogin, "email", sess, err)
}

// finishSession classifies provider failures and stamps the mechanism on success.
func finishSession(mech Mechanism, provider string, sess *Session, err error) (*Session, error) {
	if err != nil {
		return nil, ClassifyProviderError(provider, err)
	}
	if sess == nil {
		return nil, ClassifyProviderError(provider, errEmptySession)
	}
	sess.Mechanism = mech
	return sess, nil
}
