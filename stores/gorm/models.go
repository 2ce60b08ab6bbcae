//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	si "github.com/panyam/signin"
)

// JSONMap is a helper type for storing JSON maps in GORM
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("unsupported JSONMap column type %T", value)
}

// UserModel is the GORM model for users
type UserModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Profile   JSONMap   `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

// IdentityModel is the GORM model for identities
type IdentityModel struct {
	Type      string    `gorm:"primaryKey;size:32"`
	Value     string    `gorm:"primaryKey;size:255"`
	UserID    string    `gorm:"size:64;index"`
	Verified  bool      `gorm:"default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (IdentityModel) TableName() string {
	return "identities"
}

func (m *IdentityModel) ToIdentity() *si.Identity {
	return &si.Identity{
		Type:      m.Type,
		Value:     m.Value,
		UserID:    m.UserID,
		Verified:  m.Verified,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func IdentityToModel(i *si.Identity) *IdentityModel {
	return &IdentityModel{
		Type:      i.Type,
		Value:     i.Value,
		UserID:    i.UserID,
		Verified:  i.Verified,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// ChannelModel is the GORM model for authentication channels
type ChannelModel struct {
	Provider    string    `gorm:"primaryKey;size:32"`
	IdentityKey string    `gorm:"primaryKey;size:320"`
	Credentials JSONMap   `gorm:"type:jsonb"`
	Profile     JSONMap   `gorm:"type:jsonb"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (ChannelModel) TableName() string {
	return "channels"
}

func (m *ChannelModel) ToChannel() *si.Channel {
	return &si.Channel{
		Provider:    m.Provider,
		IdentityKey: m.IdentityKey,
		Credentials: m.Credentials,
		Profile:     m.Profile,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func ChannelToModel(c *si.Channel) *ChannelModel {
	return &ChannelModel{
		Provider:    c.Provider,
		IdentityKey: c.IdentityKey,
		Credentials: JSONMap(c.Credentials),
		Profile:     JSONMap(c.Profile),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// OTPModel is the GORM model for pending phone OTP challenges
type OTPModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Phone     string    `gorm:"size:32;index"`
	CodeHash  string    `gorm:"size:64"`
	Attempts  int       `gorm:"default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	ExpiresAt time.Time `gorm:"index"`
}

func (OTPModel) TableName() string {
	return "otp_challenges"
}

func (m *OTPModel) ToOTPRecord() *si.OTPRecord {
	return &si.OTPRecord{
		ID:        m.ID,
		Phone:     m.Phone,
		CodeHash:  m.CodeHash,
		Attempts:  m.Attempts,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func OTPRecordToModel(r *si.OTPRecord) *OTPModel {
	return &OTPModel{
		ID:        r.ID,
		Phone:     r.Phone,
		CodeHash:  r.CodeHash,
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}
