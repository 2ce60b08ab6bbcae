package signin

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Default validation thresholds
const (
	DefaultMinPasswordLength = 6
	DefaultPhoneDigits       = 10
	DefaultOTPLength         = 6
	DefaultCountryCode       = "+91"
)

// emailPattern is intentionally unanchored: any string containing a
// "something@something.something" run is accepted.
var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// CredentialInput holds whatever the user has typed into the sign-in form.
// It is transient and is cleared on success or reset.
type CredentialInput struct {
	Email            string `json:"email,omitempty"`
	Password         string `json:"password,omitempty"`
	PhoneCountryCode string `json:"phone_country_code,omitempty"`
	PhoneNumber      string `json:"phone_number,omitempty"`
	OTPCode          string `json:"otp_code,omitempty"`
}

// FullPhoneNumber concatenates the country code and the digits. The code is
// treated as an opaque prefix.
func (c *CredentialInput) FullPhoneNumber() string {
	return c.PhoneCountryCode + c.PhoneNumber
}

// Clear wipes every field.
func (c *CredentialInput) Clear() {
	*c = CredentialInput{}
}

// ClearOTP wipes only the one-time code, leaving phone fields for display.
func (c *CredentialInput) ClearOTP() {
	c.OTPCode = ""
}

func (c *CredentialInput) IsEmpty() bool {
	return *c == CredentialInput{}
}

// Redacted returns a copy without secrets, suitable for snapshots and logs.
func (c CredentialInput) Redacted() CredentialInput {
	c.Password = ""
	c.OTPCode = ""
	return c
}

// Policy holds the thresholds used by the validator.
type Policy struct {
	MinPasswordLength int
	PhoneDigits       int
	OTPLength         int
}

// DefaultPolicy returns the policy used by the package level predicates.
func DefaultPolicy() Policy {
	return Policy{
		MinPasswordLength: DefaultMinPasswordLength,
		PhoneDigits:       DefaultPhoneDigits,
		OTPLength:         DefaultOTPLength,
	}
}

func (p *Policy) EnsureDefaults() *Policy {
	if p.MinPasswordLength <= 0 {
		p.MinPasswordLength = DefaultMinPasswordLength
	}
	if p.PhoneDigits <= 0 {
		p.PhoneDigits = DefaultPhoneDigits
	}
	if p.OTPLength <= 0 {
		p.OTPLength = DefaultOTPLength
	}
	return p
}

// IsValidEmail reports whether s contains an address shaped run.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsValidPassword reports whether s is at least 6 characters long.
func IsValidPassword(s string) bool {
	p := DefaultPolicy()
	return p.ValidPassword(s)
}

// IsValidPhoneDigits reports whether s is exactly 10 decimal digits. The
// country code is not considered.
func IsValidPhoneDigits(s string) bool {
	p := DefaultPolicy()
	return p.ValidPhoneDigits(s)
}

// IsValidOTP reports whether s is exactly 6 characters long.
func IsValidOTP(s string) bool {
	p := DefaultPolicy()
	return p.ValidOTP(s)
}

func (p *Policy) ValidPassword(s string) bool {
	return utf8.RuneCountInString(s) >= p.MinPasswordLength
}

func (p *Policy) ValidPhoneDigits(s string) bool {
	if len(s) != p.PhoneDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (p *Policy) ValidOTP(s string) bool {
	return utf8.RuneCountInString(s) == p.OTPLength
}

// ValidateEmailCredentials checks the fields used by both email sign-up and
// email login. The email is checked before the password.
func (p *Policy) ValidateEmailCredentials(email, password string) *DisplayError {
	if !IsValidEmail(email) {
		return invalidInput("email", "Please enter a valid email.")
	}
	if !p.ValidPassword(password) {
		return invalidInput("password", fmt.Sprintf("Password must be at least %d characters long.", p.MinPasswordLength))
	}
	return nil
}

// ValidatePhone checks the phone digits for an OTP request.
func (p *Policy) ValidatePhone(digits string) *DisplayError {
	if !p.ValidPhoneDigits(digits) {
		return invalidInput("phone_number", fmt.Sprintf("Please enter a valid %d-digit phone number.", p.PhoneDigits))
	}
	return nil
}

// ValidateOTP checks a one-time code before confirmation.
func (p *Policy) ValidateOTP(code string) *DisplayError {
	if !p.ValidOTP(code) {
		return invalidInput("otp_code", fmt.Sprintf("Please enter a valid %d-digit OTP.", p.OTPLength))
	}
	return nil
}
