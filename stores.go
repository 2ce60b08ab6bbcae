package signin

import (
	"context"
	"time"
)

// Identity and channel type names
const (
	IdentityEmail = "email"
	IdentityPhone = "phone"

	ChannelLocal = "local"
	ChannelPhone = "phone"
)

// User represents a unified user account
type User interface {
	Id() string
	Profile() map[string]any
}

// BasicUser is a simple implementation of the User interface
type BasicUser struct {
	ID          string         `json:"id"`
	UserProfile map[string]any `json:"profile"`
}

func (b *BasicUser) Id() string              { return b.ID }
func (b *BasicUser) Profile() map[string]any { return b.UserProfile }

// Identity represents a contact method (email, phone) that can be verified
type Identity struct {
	Type      string    `json:"type"`    // "email", "phone"
	Value     string    `json:"value"`   // "john@example.com", "+919876543210"
	UserID    string    `json:"user_id"` // which user owns this identity
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Channel represents an authentication mechanism bound to an identity
type Channel struct {
	Provider    string         `json:"provider"`     // "local", "phone", "google", ...
	IdentityKey string         `json:"identity_key"` // "email:john@example.com"
	Credentials map[string]any `json:"credentials"`  // password_hash, etc.
	Profile     map[string]any `json:"profile"`      // optional data from provider
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IdentityKey creates a consistent identity key from type and value
func IdentityKey(identityType, identityValue string) string {
	return identityType + ":" + identityValue
}

// UserStore manages unified user accounts
type UserStore interface {
	CreateUser(ctx context.Context, userId string, profile map[string]any) (User, error)

	// GetUserById returns ErrNotFound when no such user exists
	GetUserById(ctx context.Context, userId string) (User, error)
}

// IdentityStore manages contact identities (email, phone)
type IdentityStore interface {
	// GetIdentity returns ErrNotFound when the identity is unknown
	GetIdentity(ctx context.Context, identityType, identityValue string) (*Identity, error)

	// SaveIdentity creates or updates an identity (upsert)
	SaveIdentity(ctx context.Context, identity *Identity) error
}

// ChannelStore manages authentication channels
type ChannelStore interface {
	// GetChannel returns ErrNotFound when the channel does not exist
	GetChannel(ctx context.Context, provider, identityKey string) (*Channel, error)

	// SaveChannel creates or updates a channel (upsert)
	SaveChannel(ctx context.Context, channel *Channel) error
}

// OTPStore keeps issued phone OTP challenges until they are confirmed,
// exhausted or expired.
type OTPStore interface {
	SaveOTP(ctx context.Context, record *OTPRecord) error

	// GetOTP returns ErrNotFound for unknown or expired records
	GetOTP(ctx context.Context, id string) (*OTPRecord, error)

	// IncrementOTPAttempts atomically counts one wrong code against the
	// record and returns the new count. It returns ErrNotFound, without
	// recreating anything, when the record is gone or expired.
	IncrementOTPAttempts(ctx context.Context, id string) (int, error)

	// DeleteOTP returns ErrNotFound when there was nothing to delete, so
	// only one caller can consume a record.
	DeleteOTP(ctx context.Context, id string) error
}
