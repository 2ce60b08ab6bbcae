package signin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// OrchestratorFactory builds the orchestrator for a new browser session.
type OrchestratorFactory func(sessionKey string) *Orchestrator

type sessionEntry struct {
	orchestrator *Orchestrator
	lastUsed     time.Time
}

// Server exposes one orchestrator per browser session over a JSON API.
// The session is tracked with scs; the orchestrators live in memory.
type Server struct {
	Session         *scs.SessionManager
	NewOrchestrator OrchestratorFactory

	// Name of the session variable holding the orchestrator key
	SessionVar string

	// Orchestrators idle for longer than this are dropped. Defaults to the
	// session lifetime.
	IdleTimeout time.Duration

	// How long a federated request waits for the consent URL before
	// returning the current snapshot.
	ConsentWait time.Duration

	Logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	router   *mux.Router
}

// NewServer creates a Server using session for cookies and factory for
// orchestrators.
func NewServer(session *scs.SessionManager, factory OrchestratorFactory) *Server {
	return (&Server{Session: session, NewOrchestrator: factory}).EnsureDefaults()
}

func (s *Server) EnsureDefaults() *Server {
	if s.Session == nil {
		s.Session = scs.New()
	}
	if s.SessionVar == "" {
		s.SessionVar = "signinKey"
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = s.Session.Lifetime
	}
	if s.ConsentWait <= 0 {
		s.ConsentWait = 10 * time.Second
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.sessions == nil {
		s.sessions = map[string]*sessionEntry{}
	}
	return s
}

// Handler returns the routes wrapped in the session middleware.
func (s *Server) Handler() http.Handler {
	s.EnsureDefaults()
	if s.router == nil {
		r := mux.NewRouter()
		r.HandleFunc("/email/signup", s.handleEmail(MechanismEmailSignUp)).Methods(http.MethodPost)
		r.HandleFunc("/email/login", s.handleEmail(MechanismEmailLogin)).Methods(http.MethodPost)
		r.HandleFunc("/phone/otp", s.handlePhoneOTP).Methods(http.MethodPost)
		r.HandleFunc("/phone/verify", s.handlePhoneVerify).Methods(http.MethodPost)
		r.HandleFunc("/federated/{provider}", s.handleFederated).Methods(http.MethodPost)
		r.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
		r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
		r.HandleFunc("/country-codes", s.handleCountryCodes).Methods(http.MethodGet)
		s.router = r
	}
	return s.Session.LoadAndSave(s.router)
}

// Orchestrator returns the orchestrator bound to the request's session,
// creating both when needed.
func (s *Server) Orchestrator(r *http.Request) *Orchestrator {
	ctx := r.Context()
	key := s.Session.GetString(ctx, s.SessionVar)
	if key == "" {
		key = uuid.NewString()
		s.Session.Put(ctx, s.SessionVar, key)
	}
	return s.lookup(key)
}

func (s *Server) lookup(key string) *Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e, ok := s.sessions[key]; ok {
		e.lastUsed = now
		return e.orchestrator
	}
	s.pruneLocked(now)
	e := &sessionEntry{orchestrator: s.NewOrchestrator(key), lastUsed: now}
	s.sessions[key] = e
	return e.orchestrator
}

// pruneLocked drops idle orchestrators, abandoning their attempts.
func (s *Server) pruneLocked(now time.Time) {
	for key, e := range s.sessions {
		if now.Sub(e.lastUsed) > s.IdleTimeout {
			e.orchestrator.Reset()
			delete(s.sessions, key)
		}
	}
}

// Sessions returns how many orchestrators are live.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type emailBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type phoneBody struct {
	CountryCode  string `json:"country_code"`
	PhoneNumber  string `json:"phone_number"`
	// CaptchaToken is the widget response solved in the browser.
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type otpBody struct {
	Code string `json:"code"`
}

// snapshotResponse wraps a snapshot with the rejection reason, if any.
type snapshotResponse struct {
	Snapshot
	Rejected   string `json:"rejected,omitempty"`
	ConsentURL string `json:"consent_url,omitempty"`
}

func (s *Server) handleEmail(mech Mechanism) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body emailBody
		if !decodeBody(w, r, &body) {
			return
		}
		o := s.Orchestrator(r)
		var snap Snapshot
		var err error
		if mech == MechanismEmailSignUp {
			snap, err = o.SubmitEmailSignUp(r.Context(), body.Email, body.Password)
		} else {
			snap, err = o.SubmitEmailLogin(r.Context(), body.Email, body.Password)
		}
		s.writeResult(w, snap, err)
	}
}

func (s *Server) handlePhoneOTP(w http.ResponseWriter, r *http.Request) {
	var body phoneBody
	if !decodeBody(w, r, &body) {
		return
	}
	ctx := r.Context()
	if body.CaptchaToken != "" {
		ctx = WithVerificationToken(ctx, body.CaptchaToken)
	}
	snap, err := s.Orchestrator(r).SubmitPhoneOTPRequest(ctx, body.CountryCode, body.PhoneNumber)
	s.writeResult(w, snap, err)
}

func (s *Server) handlePhoneVerify(w http.ResponseWriter, r *http.Request) {
	var body otpBody
	if !decodeBody(w, r, &body) {
		return
	}
	snap, err := s.Orchestrator(r).SubmitPhoneOTPConfirm(r.Context(), body.Code)
	s.writeResult(w, snap, err)
}

type federatedResult struct {
	snap Snapshot
	err  error
}

// handleFederated starts the consent flow in the background and answers
// with the consent URL once the provider produces it. The browser polls
// /state for the outcome.
func (s *Server) handleFederated(w http.ResponseWriter, r *http.Request) {
	o := s.Orchestrator(r)
	provider := mux.Vars(r)["provider"]

	urls := make(chan string, 1)
	ctx := WithConsentSink(context.WithoutCancel(r.Context()), func(authURL string) {
		select {
		case urls <- authURL:
		default:
		}
	})
	done := make(chan federatedResult, 1)
	go func() {
		snap, err := o.SubmitFederated(ctx, provider)
		if err != nil && !errors.Is(err, ErrAttemptAbandoned) {
			s.Logger.Info("federated attempt rejected", "provider", provider, "err", err)
		}
		done <- federatedResult{snap, err}
	}()

	timer := time.NewTimer(s.ConsentWait)
	defer timer.Stop()
	select {
	case authURL := <-urls:
		writeJSON(w, http.StatusAccepted, snapshotResponse{Snapshot: o.Snapshot(), ConsentURL: authURL})
	case res := <-done:
		s.writeResult(w, res.snap, res.err)
	case <-timer.C:
		writeJSON(w, http.StatusAccepted, snapshotResponse{Snapshot: o.Snapshot()})
	case <-r.Context().Done():
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: s.Orchestrator(r).Reset()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: s.Orchestrator(r).Snapshot()})
}

func (s *Server) handleCountryCodes(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, http.StatusOK, CountryCodes())
}

// writeResult writes the snapshot; rejected submissions answer 409.
func (s *Server) writeResult(w http.ResponseWriter, snap Snapshot, err error) {
	if err != nil {
		writeJSON(w, http.StatusConflict, snapshotResponse{Snapshot: snap, Rejected: rejectionCode(err)})
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Snapshot: snap})
}

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrAttemptInProgress):
		return "attempt_in_progress"
	case errors.Is(err, ErrAlreadySignedIn):
		return "already_signed_in"
	case errors.Is(err, ErrNoPendingChallenge):
		return "no_pending_challenge"
	case errors.Is(err, ErrAttemptAbandoned):
		return "attempt_abandoned"
	}
	return "rejected"
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
