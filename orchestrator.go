package signin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// State is the orchestrator's position in the sign-in state machine.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateChallengeIssued
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateChallengeIssued:
		return "challenge_issued"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a consistent, secret free view of an orchestrator.
type Snapshot struct {
	State      State             `json:"state"`
	Mechanism  Mechanism         `json:"mechanism"`
	Input      CredentialInput   `json:"input"`
	Error      *DisplayError     `json:"error,omitempty"`
	Notice     string            `json:"notice,omitempty"`
	Challenge  *PendingChallenge `json:"challenge,omitempty"`
	Session    *Session          `json:"session,omitempty"`
	Generation uint64            `json:"generation"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = *p.EnsureDefaults() }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter records metrics on meter instead of the global meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(o *Orchestrator) { o.meter = meter }
}

// WithMountPoint sets where the verification artifact is rendered.
func WithMountPoint(mountPoint string) Option {
	return func(o *Orchestrator) { o.mountPoint = mountPoint }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDefaultCountryCode sets the code used when an OTP request omits one.
func WithDefaultCountryCode(code string) Option {
	return func(o *Orchestrator) { o.defaultCountryCode = code }
}

// WithAttemptTimeout bounds how long a single provider call may take.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.attemptTimeout = d }
}

// OnChange registers an observer called with every new snapshot. It is
// called outside the orchestrator's lock.
func OnChange(fn func(Snapshot)) Option {
	return func(o *Orchestrator) { o.onChange = fn }
}

// Orchestrator runs the sign-in state machine for one user session. All
// operations are safe for concurrent use; at most one provider call is
// outstanding at any time.
type Orchestrator struct {
	policy             Policy
	logger             *slog.Logger
	meter              metric.Meter
	metrics            *metrics
	now                func() time.Time
	mountPoint         string
	defaultCountryCode string
	attemptTimeout     time.Duration
	onChange           func(Snapshot)

	challenges *ChallengeStore
	email      *EmailAdapter
	phone      *PhoneAdapter
	federated  *FederatedAdapter

	mu         sync.Mutex
	state      State
	mech       Mechanism
	input      CredentialInput
	displayErr *DisplayError
	notice     string
	session    *Session
	generation uint64
	cancel     context.CancelFunc
	started    time.Time
}

// NewOrchestrator creates an orchestrator in the Idle state. verifiers may
// be nil when the provider does not require an anti-automation artifact.
func NewOrchestrator(provider IdentityProvider, verifiers VerifierFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		policy:             DefaultPolicy(),
		logger:             slog.Default(),
		now:                time.Now,
		mountPoint:         DefaultMountPoint,
		defaultCountryCode: DefaultCountryCode,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = newMetrics(o.meter, o.logger)
	o.challenges = NewChallengeStore(verifiers, o.mountPoint)
	o.email = &EmailAdapter{Provider: provider}
	o.phone = &PhoneAdapter{Provider: provider, Challenges: o.challenges}
	o.federated = &FederatedAdapter{Provider: provider}
	return o
}

// Challenges exposes the orchestrator's challenge store for inspection.
func (o *Orchestrator) Challenges() *ChallengeStore {
	return o.challenges
}

// DefaultCountryCode is the code pre-selected in the phone form.
func (o *Orchestrator) DefaultCountryCode() string {
	return o.defaultCountryCode
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      o.state,
		Mechanism:  o.mech,
		Input:      o.input.Redacted(),
		Notice:     o.notice,
		Generation: o.generation,
	}
	if o.displayErr != nil {
		de := *o.displayErr
		snap.Error = &de
	}
	if pc, ok := o.challenges.Current(); ok {
		snap.Challenge = &pc
	}
	if o.session != nil {
		s := *o.session
		snap.Session = &s
	}
	return snap
}

func (o *Orchestrator) emit(snap Snapshot) {
	if o.onChange != nil {
		o.onChange(snap)
	}
}

// attempt is the outcome of one provider call.
type attempt struct {
	session *Session
	handle  ChallengeHandle
	phone   string
	err     error
}

// submit runs one attempt through the state machine. prepare is called under
// the lock after the common guards pass; it records input and returns a
// validation failure or a rejection. call runs outside the lock.
func (o *Orchestrator) submit(
	ctx context.Context,
	mech Mechanism,
	prepare func() (*DisplayError, error),
	call func(ctx context.Context) attempt,
) (Snapshot, error) {
	o.mu.Lock()
	switch o.state {
	case StateSubmitting:
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.metrics.rejected(ctx, mech, "in_progress")
		o.logger.Info("signin submit rejected", "mechanism", mech, "state", snap.State, "reason", "in_progress")
		return snap, ErrAttemptInProgress
	case StateSucceeded:
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.metrics.rejected(ctx, mech, "already_signed_in")
		return snap, ErrAlreadySignedIn
	}

	invalid, err := prepare()
	if err != nil {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.metrics.rejected(ctx, mech, "precondition")
		o.logger.Info("signin submit rejected", "mechanism", mech, "state", snap.State, "err", err)
		return snap, err
	}

	o.mech = mech
	o.displayErr = nil
	o.notice = ""
	if invalid != nil {
		o.state = StateFailed
		o.displayErr = invalid
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.logger.Debug("signin validation failed", "mechanism", mech, "field", invalid.Field)
		o.emit(snap)
		return snap, nil
	}

	from := o.state
	o.state = StateSubmitting
	o.generation++
	gen := o.generation
	var attemptCtx context.Context
	var cancel context.CancelFunc
	if o.attemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, o.attemptTimeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	o.cancel = cancel
	o.started = o.now()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Debug("signin transition", "mechanism", mech, "from", from, "to", StateSubmitting, "generation", gen)
	o.metrics.attemptStarted(ctx, mech)
	o.emit(snap)

	result := call(attemptCtx)
	cancel()

	o.mu.Lock()
	if gen != o.generation {
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.logger.Info("signin late result ignored", "mechanism", mech, "generation", gen, "current", snap.Generation)
		o.metrics.attemptFinished(ctx, mech, "abandoned", "", time.Time{}, time.Time{})
		return snap, ErrAttemptAbandoned
	}
	o.cancel = nil
	started, finished := o.started, o.now()

	outcome := ""
	switch {
	case result.err != nil:
		o.state = StateFailed
		o.displayErr = Normalize(mech, result.err)
		outcome = "failed"
		o.logger.Warn("signin attempt failed", "mechanism", mech, "kind", o.displayErr.Kind, "generation", gen)
	case result.session != nil:
		o.state = StateSucceeded
		o.session = result.session
		o.notice = successNotice(mech, result.session)
		o.input.Clear()
		o.challenges.ClearPending()
		outcome = "succeeded"
		o.logger.Info("signin succeeded", "mechanism", mech, "user_id", result.session.UserID, "generation", gen)
	default:
		o.state = StateChallengeIssued
		o.challenges.Put(result.handle, result.phone, o.now())
		o.input.ClearOTP()
		o.notice = "OTP sent to your phone!"
		outcome = "challenge_issued"
		o.logger.Info("signin challenge issued", "mechanism", mech, "challenge", result.handle.ID, "generation", gen)
	}
	var kind ErrorKind
	if o.displayErr != nil {
		kind = o.displayErr.Kind
	}
	snap = o.snapshotLocked()
	o.mu.Unlock()

	o.metrics.attemptFinished(ctx, mech, outcome, kind, started, finished)
	o.emit(snap)
	return snap, nil
}

func successNotice(mech Mechanism, sess *Session) string {
	switch mech {
	case MechanismEmailSignUp:
		return "Account created successfully!"
	case MechanismEmailLogin:
		return "Logged in with email!"
	case MechanismPhoneConfirm:
		return "Phone login successful!"
	case MechanismFederated:
		return "Logged in with " + sess.Provider.DisplayName()
	}
	return ""
}

// SubmitEmailSignUp creates an account with email and password.
func (o *Orchestrator) SubmitEmailSignUp(ctx context.Context, email, password string) (Snapshot, error) {
	return o.submitEmail(ctx, MechanismEmailSignUp, email, password, o.email.SignUp)
}

// SubmitEmailLogin signs in to an existing email/password account.
func (o *Orchestrator) SubmitEmailLogin(ctx context.Context, email, password string) (Snapshot, error) {
	return o.submitEmail(ctx, MechanismEmailLogin, email, password, o.email.Login)
}

func (o *Orchestrator) submitEmail(ctx context.Context, mech Mechanism, email, password string,
	fn func(ctx context.Context, email, password string) (*Session, error)) (Snapshot, error) {
	return o.submit(ctx, mech,
		func() (*DisplayError, error) {
			o.input.Email = email
			o.input.Password = password
			return o.policy.ValidateEmailCredentials(email, password), nil
		},
		func(ctx context.Context) attempt {
			sess, err := fn(ctx, email, password)
			return attempt{session: sess, err: err}
		})
}

// SubmitPhoneOTPRequest asks the provider to send a code to the phone. An
// empty countryCode uses the default.
func (o *Orchestrator) SubmitPhoneOTPRequest(ctx context.Context, countryCode, digits string) (Snapshot, error) {
	if countryCode == "" {
		countryCode = o.defaultCountryCode
	}
	return o.submit(ctx, MechanismPhoneRequest,
		func() (*DisplayError, error) {
			o.input.PhoneCountryCode = countryCode
			o.input.PhoneNumber = digits
			return o.policy.ValidatePhone(digits), nil
		},
		func(ctx context.Context) attempt {
			handle, err := o.phone.RequestOTP(ctx, countryCode, digits)
			return attempt{handle: handle, phone: countryCode + digits, err: err}
		})
}

// SubmitPhoneOTPConfirm confirms the pending challenge with code. It is
// rejected when no challenge is pending.
func (o *Orchestrator) SubmitPhoneOTPConfirm(ctx context.Context, code string) (Snapshot, error) {
	var handle ChallengeHandle
	return o.submit(ctx, MechanismPhoneConfirm,
		func() (*DisplayError, error) {
			pc, ok := o.challenges.Current()
			if !ok {
				return nil, ErrNoPendingChallenge
			}
			handle = pc.Handle
			o.input.OTPCode = code
			return o.policy.ValidateOTP(code), nil
		},
		func(ctx context.Context) attempt {
			sess, err := o.phone.ConfirmOTP(ctx, handle, code)
			return attempt{session: sess, err: err}
		})
}

// SubmitFederated runs the consent flow for providerID.
func (o *Orchestrator) SubmitFederated(ctx context.Context, providerID string) (Snapshot, error) {
	var provider FederatedProvider
	return o.submit(ctx, MechanismFederated,
		func() (*DisplayError, error) {
			p, err := ParseFederatedProvider(providerID)
			if err != nil {
				return Normalize(MechanismFederated, err), nil
			}
			provider = p
			return nil, nil
		},
		func(ctx context.Context) attempt {
			sess, err := o.federated.SignIn(ctx, provider)
			return attempt{session: sess, err: err}
		})
}

// Reset abandons any in-flight attempt and returns to Idle, clearing input,
// errors, the pending challenge, the verification artifact and the session.
// It is idempotent.
func (o *Orchestrator) Reset() Snapshot {
	o.mu.Lock()
	from := o.state
	o.generation++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state = StateIdle
	o.mech = MechanismNone
	o.input.Clear()
	o.displayErr = nil
	o.notice = ""
	o.session = nil
	o.started = time.Time{}
	o.challenges.Clear()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Debug("signin reset", "from", from, "generation", snap.Generation)
	o.emit(snap)
	return snap
}
