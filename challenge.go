package signin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMountPoint is where the verification artifact is rendered.
const DefaultMountPoint = "recaptcha-container"

// ChallengeHandle identifies one OTP issue event. VerificationID is the
// provider's opaque handle; ID is local and distinguishes re-issues even if a
// provider were to repeat a verification id.
type ChallengeHandle struct {
	ID             uuid.UUID `json:"id"`
	VerificationID string    `json:"-"`
}

func NewChallengeHandle(verificationID string) ChallengeHandle {
	return ChallengeHandle{ID: uuid.New(), VerificationID: verificationID}
}

func (h ChallengeHandle) IsZero() bool {
	return h.ID == uuid.Nil
}

// PendingChallenge is the OTP challenge awaiting confirmation.
type PendingChallenge struct {
	Handle      ChallengeHandle `json:"handle"`
	PhoneNumber string          `json:"phone_number"`
	IssuedAt    time.Time       `json:"issued_at"`
}

// ChallengeStore holds at most one pending challenge and the verification
// artifact for one orchestrator. It is never shared between sessions.
type ChallengeStore struct {
	mu         sync.Mutex
	factory    VerifierFactory
	mountPoint string
	pending    *PendingChallenge
	artifact   VerificationArtifact

	// bumped whenever the artifact is torn down so an in-flight construction
	// can tell it was abandoned
	artifactGen uint64
	builds      int
}

func NewChallengeStore(factory VerifierFactory, mountPoint string) *ChallengeStore {
	if mountPoint == "" {
		mountPoint = DefaultMountPoint
	}
	return &ChallengeStore{factory: factory, mountPoint: mountPoint}
}

// Put records a newly issued challenge, superseding any previous one.
func (s *ChallengeStore) Put(handle ChallengeHandle, phoneNumber string, issuedAt time.Time) PendingChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &PendingChallenge{Handle: handle, PhoneNumber: phoneNumber, IssuedAt: issuedAt}
	return *s.pending
}

// Current returns a copy of the pending challenge, if any.
func (s *ChallengeStore) Current() (PendingChallenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingChallenge{}, false
	}
	return *s.pending, true
}

// IsCurrent reports whether handle is the last issued challenge.
func (s *ChallengeStore) IsCurrent(handle ChallengeHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil && s.pending.Handle == handle
}

// ClearPending drops the pending challenge but keeps the artifact.
func (s *ChallengeStore) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Clear drops the pending challenge and tears down the artifact.
func (s *ChallengeStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.teardownLocked()
}

// InvalidateVerifier tears down the artifact so the next Verifier call
// rebuilds it.
func (s *ChallengeStore) InvalidateVerifier() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// InvalidateVerifierIf tears down the artifact only if it is still the one
// handed out at generation gen. It reports whether anything was torn down.
func (s *ChallengeStore) InvalidateVerifierIf(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.artifactGen {
		return false
	}
	s.teardownLocked()
	return true
}

func (s *ChallengeStore) teardownLocked() {
	if s.artifact != nil {
		s.artifact.Clear()
		s.artifact = nil
	}
	s.artifactGen++
}

// Verifier returns the current artifact, constructing it on first use.
// With no factory configured it returns a nil artifact.
func (s *ChallengeStore) Verifier(ctx context.Context) (VerificationArtifact, error) {
	a, _, err := s.AcquireVerifier(ctx)
	return a, err
}

// AcquireVerifier is Verifier that also returns the artifact's generation,
// for use with InvalidateVerifierIf.
func (s *ChallengeStore) AcquireVerifier(ctx context.Context) (VerificationArtifact, uint64, error) {
	s.mu.Lock()
	gen := s.artifactGen
	if s.factory == nil {
		s.mu.Unlock()
		return nil, gen, nil
	}
	if s.artifact != nil {
		a := s.artifact
		s.mu.Unlock()
		return a, gen, nil
	}
	s.mu.Unlock()

	// construction may block on the UI so it happens outside the lock
	a, err := s.factory.NewVerifier(ctx, s.mountPoint)
	if err != nil {
		return nil, gen, fmt.Errorf("%w: %v", ErrVerifierFailed, err)
	}
	if a == nil {
		return nil, gen, ErrVerifierFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.builds++
	if gen != s.artifactGen {
		a.Clear()
		return nil, gen, ErrAttemptAbandoned
	}
	if s.artifact != nil {
		a.Clear()
		return s.artifact, gen, nil
	}
	s.artifact = a
	return a, gen, nil
}

// HasVerifier reports whether a live artifact is held.
func (s *ChallengeStore) HasVerifier() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact != nil
}

// Builds returns how many artifacts have been constructed.
func (s *ChallengeStore) Builds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builds
}

func (s *ChallengeStore) MountPoint() string {
	return s.mountPoint
}
