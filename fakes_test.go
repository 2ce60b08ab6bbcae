package signin_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	si "github.com/panyam/signin"
)

// fakeProvider is an IdentityProvider double that counts calls. Any hook
// left nil succeeds.
type fakeProvider struct {
	mu    sync.Mutex
	calls map[string]int
	// verification ids handed to VerifyOTP, in order
	verified []string
	nextID   int

	signUp    func(ctx context.Context, email, password string) (*si.Session, error)
	signIn    func(ctx context.Context, email, password string) (*si.Session, error)
	sendOTP   func(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error)
	verifyOTP func(ctx context.Context, verificationID, code string) (*si.Session, error)
	popup     func(ctx context.Context, p si.FederatedProvider) (*si.Session, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: map[string]int{}}
}

func (f *fakeProvider) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeProvider) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProvider) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeProvider) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*si.Session, error) {
	f.record("signup")
	if f.signUp != nil {
		return f.signUp(ctx, email, password)
	}
	return &si.Session{UserID: "u-" + email, Email: email}, nil
}

func (f *fakeProvider) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*si.Session, error) {
	f.record("signin")
	if f.signIn != nil {
		return f.signIn(ctx, email, password)
	}
	return &si.Session{UserID: "u-" + email, Email: email}, nil
}

func (f *fakeProvider) SendOTP(ctx context.Context, phone string, artifact si.VerificationArtifact) (string, error) {
	f.record("send_otp")
	if f.sendOTP != nil {
		return f.sendOTP(ctx, phone, artifact)
	}
	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("vid-%d", f.nextID)
	f.mu.Unlock()
	return id, nil
}

func (f *fakeProvider) VerifyOTP(ctx context.Context, verificationID, code string) (*si.Session, error) {
	f.record("verify_otp")
	f.mu.Lock()
	f.verified = append(f.verified, verificationID)
	f.mu.Unlock()
	if f.verifyOTP != nil {
		return f.verifyOTP(ctx, verificationID, code)
	}
	return &si.Session{UserID: "u-phone", Phone: "+910000000000"}, nil
}

func (f *fakeProvider) SignInWithPopup(ctx context.Context, p si.FederatedProvider) (*si.Session, error) {
	f.record("popup")
	if f.popup != nil {
		return f.popup(ctx, p)
	}
	return &si.Session{UserID: "u-" + string(p), Provider: p}, nil
}

func (f *fakeProvider) VerifiedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.verified...)
}

// fakeArtifact is a VerificationArtifact that records teardown.
type fakeArtifact struct {
	mu      sync.Mutex
	id      int
	cleared bool
}

func (a *fakeArtifact) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cleared {
		return "", errors.New("artifact cleared")
	}
	return fmt.Sprintf("token-%d", a.id), nil
}

func (a *fakeArtifact) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleared = true
}

func (a *fakeArtifact) Cleared() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cleared
}

// fakeVerifiers counts constructions and can be told to fail.
type fakeVerifiers struct {
	mu        sync.Mutex
	built     []*fakeArtifact
	fail      error
	mountSeen string
}

func (v *fakeVerifiers) NewVerifier(ctx context.Context, mountPoint string) (si.VerificationArtifact, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mountSeen = mountPoint
	if v.fail != nil {
		return nil, v.fail
	}
	a := &fakeArtifact{id: len(v.built) + 1}
	v.built = append(v.built, a)
	return a, nil
}

func (v *fakeVerifiers) Built() []*fakeArtifact {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*fakeArtifact(nil), v.built...)
}

// gate blocks a provider call until released and reports when it was entered.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}
}
