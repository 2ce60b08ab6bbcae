package idp

import (
	"testing"
	"time"

	si "github.com/panyam/signin"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := &TokenIssuer{Secret: "k1", Issuer: "iss", Audience: "aud", TTL: time.Minute}
	token, exp, err := issuer.Issue("user-1", si.MechanismPhoneConfirm, time.Now())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if time.Until(exp) > time.Minute {
		t.Errorf("expiry %v beyond TTL", exp)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Subject = %v, want user-1", claims.Subject)
	}
	if len(claims.AMR) != 1 || claims.AMR[0] != "phone_otp_confirm" {
		t.Errorf("AMR = %v, want [phone_otp_confirm]", claims.AMR)
	}
}

func TestTokenIssuerRejects(t *testing.T) {
	issuer := &TokenIssuer{Secret: "k1", Issuer: "iss", Audience: "aud", TTL: time.Minute}
	token, _, err := issuer.Issue("user-1", si.MechanismEmailLogin, time.Now())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name   string
		issuer *TokenIssuer
		token  string
	}{
		{"wrong secret", &TokenIssuer{Secret: "k2", Issuer: "iss", Audience: "aud"}, token},
		{"wrong audience", &TokenIssuer{Secret: "k1", Issuer: "iss", Audience: "other"}, token},
		{"garbage", issuer, "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.issuer.Parse(tt.token); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}

	expired, _, _ := issuer.Issue("user-1", si.MechanismEmailLogin, time.Now().Add(-2*time.Minute))
	if _, err := issuer.Parse(expired); err == nil {
		t.Error("Parse() should reject expired token")
	}
}

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(time.Hour, 2)
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if l.Allow("a") {
		t.Error("third call should be throttled")
	}
	if !l.Allow("b") {
		t.Error("separate key should have its own bucket")
	}
}
