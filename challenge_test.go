package signin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	si "github.com/panyam/signin"
)

func TestChallengeStorePutSupersedes(t *testing.T) {
	s := si.NewChallengeStore(nil, "")
	if s.MountPoint() != si.DefaultMountPoint {
		t.Errorf("expected default mount point, got %q", s.MountPoint())
	}
	if _, ok := s.Current(); ok {
		t.Fatal("new store should have no pending challenge")
	}

	a := si.NewChallengeHandle("vid-a")
	b := si.NewChallengeHandle("vid-b")
	s.Put(a, "+911111111111", time.Now())
	if !s.IsCurrent(a) {
		t.Error("a should be current")
	}
	s.Put(b, "+912222222222", time.Now())
	if s.IsCurrent(a) {
		t.Error("a should be superseded")
	}
	pc, ok := s.Current()
	if !ok || pc.Handle != b || pc.PhoneNumber != "+912222222222" {
		t.Errorf("unexpected pending challenge %+v", pc)
	}

	s.ClearPending()
	if s.IsCurrent(b) {
		t.Error("cleared store should not report b current")
	}
}

func TestChallengeHandlesDistinctForSameVerificationID(t *testing.T) {
	a := si.NewChallengeHandle("same")
	b := si.NewChallengeHandle("same")
	if a == b {
		t.Error("re-issues must be distinguishable")
	}
	if a.IsZero() || !(si.ChallengeHandle{}).IsZero() {
		t.Error("IsZero wrong")
	}
}

func TestChallengeStoreVerifierLifecycle(t *testing.T) {
	v := &fakeVerifiers{}
	s := si.NewChallengeStore(v, "widget")
	ctx := context.Background()

	a1, err := s.Verifier(ctx)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := s.Verifier(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 || s.Builds() != 1 {
		t.Errorf("expected artifact reuse, builds=%d", s.Builds())
	}
	if v.mountSeen != "widget" {
		t.Errorf("expected mount point widget, got %q", v.mountSeen)
	}

	s.InvalidateVerifier()
	if !v.Built()[0].Cleared() {
		t.Error("invalidate should clear the artifact")
	}
	a3, err := s.Verifier(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a3 == a1 || s.Builds() != 2 {
		t.Error("expected a fresh artifact after invalidation")
	}

	s.Put(si.NewChallengeHandle("vid"), "+91", time.Now())
	s.Clear()
	if _, ok := s.Current(); ok || s.HasVerifier() {
		t.Error("Clear should drop both the challenge and the artifact")
	}
}

func TestChallengeStoreVerifierFailure(t *testing.T) {
	v := &fakeVerifiers{fail: errors.New("no widget")}
	s := si.NewChallengeStore(v, "")
	_, err := s.Verifier(context.Background())
	if !errors.Is(err, si.ErrVerifierFailed) {
		t.Errorf("expected ErrVerifierFailed, got %v", err)
	}
}

func TestChallengeStoreNoFactory(t *testing.T) {
	s := si.NewChallengeStore(nil, "")
	a, err := s.Verifier(context.Background())
	if a != nil || err != nil {
		t.Errorf("expected nil artifact and no error, got %v %v", a, err)
	}
}

// blockingVerifiers lets a test tear the store down while a construction is
// in progress.
type blockingVerifiers struct {
	entered chan struct{}
	release chan struct{}
	made    *fakeArtifact
}

func (b *blockingVerifiers) NewVerifier(ctx context.Context, mountPoint string) (si.VerificationArtifact, error) {
	close(b.entered)
	<-b.release
	b.made = &fakeArtifact{id: 1}
	return b.made, nil
}

func TestChallengeStoreAbandonedConstruction(t *testing.T) {
	b := &blockingVerifiers{entered: make(chan struct{}), release: make(chan struct{})}
	s := si.NewChallengeStore(b, "")

	errc := make(chan error)
	go func() {
		_, err := s.Verifier(context.Background())
		errc <- err
	}()
	<-b.entered
	s.Clear()
	close(b.release)

	if err := <-errc; !errors.Is(err, si.ErrAttemptAbandoned) {
		t.Errorf("expected abandoned construction, got %v", err)
	}
	if !b.made.Cleared() {
		t.Error("abandoned artifact should be torn down")
	}
	if s.HasVerifier() {
		t.Error("abandoned artifact must not be installed")
	}
}

func TestChallengeStoreInvalidateVerifierIf(t *testing.T) {
	v := &fakeVerifiers{}
	s := si.NewChallengeStore(v, "")
	ctx := context.Background()

	_, stale, err := s.AcquireVerifier(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s.Clear()
	_, current, err := s.AcquireVerifier(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stale == current {
		t.Fatal("a rebuilt artifact should carry a new generation")
	}

	if s.InvalidateVerifierIf(stale) {
		t.Error("a stale generation must not tear down the newer artifact")
	}
	if !s.HasVerifier() || v.Built()[1].Cleared() {
		t.Error("newer artifact should survive")
	}
	if !s.InvalidateVerifierIf(current) || s.HasVerifier() {
		t.Error("the current generation should tear the artifact down")
	}
}
