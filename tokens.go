package signin

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// Default OTP settings
const (
	OTPExpiry      = 5 * time.Minute
	OTPMaxAttempts = 5
)

// OTPRecord is a server side phone challenge. Only the hash of the code is
// kept.
type OTPRecord struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"code_hash"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the record has expired
func (r *OTPRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// GenerateOTP returns a numeric code with the given number of digits.
func GenerateOTP(digits int) (string, error) {
	if digits <= 0 {
		digits = DefaultOTPLength
	}
	b := make([]byte, digits)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	for i := range b {
		b[i] = '0' + b[i]%10
	}
	return string(b), nil
}

// HashOTP returns the hex encoded SHA-256 of code.
func HashOTP(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// OTPEqual compares code against a stored hash in constant time.
func OTPEqual(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashOTP(code)), []byte(storedHash)) == 1
}
