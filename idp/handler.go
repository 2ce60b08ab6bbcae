package idp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	si "github.com/panyam/signin"
)

// SessionResponse is the wire form of a successful sign-in.
type SessionResponse struct {
	Session *si.Session `json:"session"`
	IDToken string      `json:"id_token"`
}

// ErrorResponse is the wire form of a failure. Error holds a ProviderCode.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

type emailRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sendOTPRequest struct {
	Phone        string `json:"phone"`
	CaptchaToken string `json:"captcha_token"`
}

type sendOTPResponse struct {
	VerificationID string `json:"verification_id"`
}

type verifyOTPRequest struct {
	VerificationID string `json:"verification_id"`
	Code           string `json:"code"`
}

// Handler exposes a Provider over a JSON HTTP API.
type Handler struct {
	Provider *Provider

	// APIKey, when set, must be presented as a bearer token on every request.
	APIKey string

	router *mux.Router
}

func NewHandler(p *Provider) *Handler {
	h := &Handler{Provider: p, router: mux.NewRouter()}
	h.router.HandleFunc("/email/signup", h.handleEmail(p.CreateUserWithEmailAndPassword)).Methods(http.MethodPost)
	h.router.HandleFunc("/email/login", h.handleEmail(p.SignInWithEmailAndPassword)).Methods(http.MethodPost)
	h.router.HandleFunc("/phone/send", h.handleSendOTP).Methods(http.MethodPost)
	h.router.HandleFunc("/phone/verify", h.handleVerifyOTP).Methods(http.MethodPost)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.APIKey != "" {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "API key required")
			return
		}
	}
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleEmail(call func(ctx context.Context, email, password string) (*si.Session, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
		sess, err := call(r.Context(), req.Email, req.Password)
		if err != nil {
			writeProviderError(w, err)
			return
		}
		writeSession(w, sess)
	}
}

func (h *Handler) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Phone required")
		return
	}
	var artifact si.VerificationArtifact
	if req.CaptchaToken != "" {
		artifact = tokenArtifact(req.CaptchaToken)
	}
	id, err := h.Provider.SendOTP(r.Context(), req.Phone, artifact)
	if err != nil {
		writeProviderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendOTPResponse{VerificationID: id})
}

func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VerificationID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Verification id required")
		return
	}
	sess, err := h.Provider.VerifyOTP(r.Context(), req.VerificationID, req.Code)
	if err != nil {
		writeProviderError(w, err)
		return
	}
	writeSession(w, sess)
}

// tokenArtifact carries a captcha token solved by the caller.
type tokenArtifact string

func (t tokenArtifact) Token(ctx context.Context) (string, error) { return string(t), nil }
func (t tokenArtifact) Clear()                                    {}

// StatusForCode maps a provider code to the HTTP status used on the wire.
func StatusForCode(code si.ProviderCode) int {
	switch code {
	case si.ProviderCodeInvalidCredential:
		return http.StatusUnauthorized
	case si.ProviderCodeAlreadyExists, si.ProviderCodeChallengeMismatch:
		return http.StatusConflict
	case si.ProviderCodeVerifierFailed:
		return http.StatusBadRequest
	case si.ProviderCodeCodeExpired:
		return http.StatusGone
	case si.ProviderCodeUnavailable:
		return http.StatusServiceUnavailable
	case si.ProviderCodeCancelled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func writeProviderError(w http.ResponseWriter, err error) {
	pe := si.ClassifyProviderError("idp", err)
	if pe.Code == si.ProviderCodeUnknown && !errors.Is(err, context.Canceled) {
		slog.Error("idp request failed", "err", err)
	}
	writeError(w, StatusForCode(pe.Code), string(pe.Code), "")
}

func writeSession(w http.ResponseWriter, sess *si.Session) {
	writeJSON(w, http.StatusOK, SessionResponse{Session: sess, IDToken: sess.IDToken})
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, ErrorResponse{Error: code, Description: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
