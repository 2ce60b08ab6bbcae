//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	si "github.com/panyam/signin"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Profile   []byte         `datastore:"profile,noindex"` // JSON encoded
	CreatedAt time.Time      `datastore:"created_at"`
	UpdatedAt time.Time      `datastore:"updated_at"`
}

// IdentityEntity is the Datastore entity for identities
// Key format: Type + ":" + Value
type IdentityEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Type      string         `datastore:"type"`
	Value     string         `datastore:"value"`
	UserID    string         `datastore:"user_id"`
	Verified  bool           `datastore:"verified"`
	CreatedAt time.Time      `datastore:"created_at"`
	UpdatedAt time.Time      `datastore:"updated_at"`
}

func (e *IdentityEntity) ToIdentity() *si.Identity {
	return &si.Identity{
		Type:      e.Type,
		Value:     e.Value,
		UserID:    e.UserID,
		Verified:  e.Verified,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func IdentityToEntity(i *si.Identity, key *datastore.Key) *IdentityEntity {
	return &IdentityEntity{
		Key:       key,
		Type:      i.Type,
		Value:     i.Value,
		UserID:    i.UserID,
		Verified:  i.Verified,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// ChannelEntity is the Datastore entity for authentication channels
// Key format: Provider + ":" + IdentityKey
type ChannelEntity struct {
	Key         *datastore.Key `datastore:"__key__"`
	Provider    string         `datastore:"provider"`
	IdentityKey string         `datastore:"identity_key"`
	Credentials []byte         `datastore:"credentials,noindex"` // JSON encoded
	Profile     []byte         `datastore:"profile,noindex"`     // JSON encoded
	CreatedAt   time.Time      `datastore:"created_at"`
	UpdatedAt   time.Time      `datastore:"updated_at"`
}

// OTPEntity is the Datastore entity for pending phone OTP challenges.
// Key is the record id.
type OTPEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Phone     string         `datastore:"phone"`
	CodeHash  string         `datastore:"code_hash,noindex"`
	Attempts  int            `datastore:"attempts,noindex"`
	CreatedAt time.Time      `datastore:"created_at"`
	ExpiresAt time.Time      `datastore:"expires_at"`
}

func (e *OTPEntity) ToOTPRecord() *si.OTPRecord {
	return &si.OTPRecord{
		ID:        e.Key.Name,
		Phone:     e.Phone,
		CodeHash:  e.CodeHash,
		Attempts:  e.Attempts,
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
	}
}

func OTPRecordToEntity(r *si.OTPRecord, key *datastore.Key) *OTPEntity {
	return &OTPEntity{
		Key:       key,
		Phone:     r.Phone,
		CodeHash:  r.CodeHash,
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}
