// Package captcha provides the anti-automation artifact attached to phone OTP
// requests and the server side check of its tokens against a reCAPTCHA style
// siteverify endpoint.
package captcha

import (
	"context"
	"errors"
	"sync"

	si "github.com/panyam/signin"
)

var (
	ErrNoSolver   = errors.New("captcha: no solver configured")
	ErrCleared    = errors.New("captcha: artifact has been cleared")
	ErrNoResponse = errors.New("captcha: no response token in context")
)

// Solver renders the challenge at a mount point and returns the response
// token once the user (or an invisible widget) passes it.
type Solver interface {
	Solve(ctx context.Context, mountPoint string) (string, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, mountPoint string) (string, error)

func (f SolverFunc) Solve(ctx context.Context, mountPoint string) (string, error) {
	return f(ctx, mountPoint)
}

// StaticSolver always answers with the same token. For development and tests.
type StaticSolver string

func (s StaticSolver) Solve(ctx context.Context, mountPoint string) (string, error) {
	return string(s), nil
}

// Factory implements signin.VerifierFactory.
type Factory struct {
	Solver Solver

	// Size is passed through to the widget: "normal", "compact" or "invisible".
	Size string
}

func NewFactory(solver Solver) *Factory {
	return &Factory{Solver: solver, Size: "normal"}
}

func (f *Factory) NewVerifier(ctx context.Context, mountPoint string) (si.VerificationArtifact, error) {
	if f.Solver == nil {
		return nil, ErrNoSolver
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Artifact{solver: f.Solver, mountPoint: mountPoint, size: f.Size}, nil
}

// Artifact is a rendered widget. Each Token call asks the solver for a
// fresh response token.
type Artifact struct {
	solver     Solver
	mountPoint string
	size       string

	mu      sync.Mutex
	cleared bool
}

func (a *Artifact) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	cleared := a.cleared
	a.mu.Unlock()
	if cleared {
		return "", ErrCleared
	}
	return a.solver.Solve(ctx, a.mountPoint)
}

func (a *Artifact) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleared = true
}

func (a *Artifact) MountPoint() string { return a.mountPoint }
func (a *Artifact) Size() string       { return a.size }

// ContextSolver answers with the token the browser posted alongside the
// request, attached with signin.WithVerificationToken.
var ContextSolver = SolverFunc(func(ctx context.Context, mountPoint string) (string, error) {
	token := si.VerificationTokenFromContext(ctx)
	if token == "" {
		return "", ErrNoResponse
	}
	return token, nil
})
