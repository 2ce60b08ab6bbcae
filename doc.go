// Package signin runs the sign-in flow of an application front end against a
// pluggable identity provider.
//
// A user signs in by one of three methods: email and password (sign up or
// log in), a one time code sent to a phone number, or a federated consent
// flow with Google, Facebook, Twitter or Microsoft. The Orchestrator holds the
// state of one such attempt and guarantees that at most one provider call is
// outstanding per user session.
//
// # Architecture
//
// Orchestrator: The state machine (Idle, Submitting, ChallengeIssued,
// Succeeded, Failed). It validates input locally before contacting the
// provider and publishes a Snapshot after every transition.
//
// Adapters: EmailAdapter, PhoneAdapter and FederatedAdapter translate one
// method's provider calls into Sessions or classified ProviderErrors.
//
// ChallengeStore: The single pending phone challenge and the verification
// artifact (captcha) that guards OTP requests.
//
// Errors: Normalize maps any failure onto the closed ErrorKind taxonomy with
// a fixed user facing message. Provider text is never shown to the user.
//
// # Basic Usage
//
// Wire an identity provider and a verifier factory:
//
//	import (
//	    si "github.com/panyam/signin"
//	    "github.com/panyam/signin/captcha"
//	    "github.com/panyam/signin/client"
//	)
//
//	provider := client.New("https://idp.example.com", client.WithAPIKey(key))
//	o := si.NewOrchestrator(si.Providers{
//	    EmailAuth:     provider,
//	    PhoneAuth:     provider,
//	    FederatedAuth: broker,
//	}, captcha.NewFactory(solver))
//
//	snap, err := o.SubmitPhoneOTPRequest(ctx, "+91", "9876543210")
//	// snap.State == si.StateChallengeIssued
//	snap, err = o.SubmitPhoneOTPConfirm(ctx, "123456")
//
// Serve one orchestrator per browser session over HTTP:
//
//	server := si.NewServer(scs.New(), func(key string) *si.Orchestrator {
//	    return si.NewOrchestrator(provider, verifiers)
//	})
//	http.ListenAndServe(":8080", server.Handler())
//
// # Providers
//
// The idp package is a self-hosted identity provider backed by the stores
// packages (fs, gorm, gae and redis for OTP records). The client package talks
// to it over HTTP. The oauth2 package runs federated consent flows.
//
// # Security
//
// Passwords are hashed with bcrypt. OTP codes are stored as SHA-256 hashes,
// expire after five minutes and are consumed on first successful use. Inputs
// are cleared from memory once a sign-in succeeds, and snapshots never carry
// the password or OTP in clear.
package signin
