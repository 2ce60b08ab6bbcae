//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	si "github.com/panyam/signin"
)

// AutoMigrate runs database migrations for all signin tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&IdentityModel{},
		&ChannelModel{},
		&OTPModel{},
	)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, si.ErrNotFound)
	}
	return err
}

// =============================================================================
// UserStore
// =============================================================================

// GORMUser implements the si.User interface
type GORMUser struct {
	model *UserModel
}

func (u *GORMUser) Id() string              { return u.model.ID }
func (u *GORMUser) Profile() map[string]any { return u.model.Profile }

// UserStore implements si.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) CreateUser(ctx context.Context, userId string, profile map[string]any) (si.User, error) {
	model := &UserModel{
		ID:      userId,
		Profile: profile,
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	return &GORMUser{model: model}, nil
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (si.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", userId).Error; err != nil {
		return nil, notFound(err, "user "+userId)
	}
	return &GORMUser{model: &model}, nil
}

// =============================================================================
// IdentityStore
// =============================================================================

// IdentityStore implements si.IdentityStore using GORM
type IdentityStore struct {
	db *gorm.DB
}

func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) GetIdentity(ctx context.Context, identityType, identityValue string) (*si.Identity, error) {
	var model IdentityModel
	err := s.db.WithContext(ctx).First(&model, "type = ? AND value = ?", identityType, identityValue).Error
	if err != nil {
		return nil, notFound(err, "identity")
	}
	return model.ToIdentity(), nil
}

func (s *IdentityStore) SaveIdentity(ctx context.Context, identity *si.Identity) error {
	return s.db.WithContext(ctx).Save(IdentityToModel(identity)).Error
}

// =============================================================================
// ChannelStore
// =============================================================================

// ChannelStore implements si.ChannelStore using GORM
type ChannelStore struct {
	db *gorm.DB
}

func NewChannelStore(db *gorm.DB) *ChannelStore {
	return &ChannelStore{db: db}
}

func (s *ChannelStore) GetChannel(ctx context.Context, provider, identityKey string) (*si.Channel, error) {
	var model ChannelModel
	err := s.db.WithContext(ctx).First(&model, "provider = ? AND identity_key = ?", provider, identityKey).Error
	if err != nil {
		return nil, notFound(err, "channel")
	}
	return model.ToChannel(), nil
}

func (s *ChannelStore) SaveChannel(ctx context.Context, channel *si.Channel) error {
	return s.db.WithContext(ctx).Save(ChannelToModel(channel)).Error
}

// =============================================================================
// OTPStore
// =============================================================================

// OTPStore implements si.OTPStore using GORM
type OTPStore struct {
	db *gorm.DB
}

func NewOTPStore(db *gorm.DB) *OTPStore {
	return &OTPStore{db: db}
}

func (s *OTPStore) SaveOTP(ctx context.Context, record *si.OTPRecord) error {
	return s.db.WithContext(ctx).Save(OTPRecordToModel(record)).Error
}

func (s *OTPStore) GetOTP(ctx context.Context, id string) (*si.OTPRecord, error) {
	var model OTPModel
	err := s.db.WithContext(ctx).First(&model, "id = ? AND expires_at > ?", id, time.Now()).Error
	if err != nil {
		return nil, notFound(err, "otp")
	}
	return model.ToOTPRecord(), nil
}

// IncrementOTPAttempts bumps the counter with a single conditional UPDATE
// and reads it back in the same transaction.
func (s *OTPStore) IncrementOTPAttempts(ctx context.Context, id string) (int, error) {
	var model OTPModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OTPModel{}).
			Where("id = ? AND expires_at > ?", id, time.Now()).
			UpdateColumn("attempts", gorm.Expr("attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("otp: %w", si.ErrNotFound)
		}
		return tx.First(&model, "id = ?", id).Error
	})
	if err != nil {
		return 0, err
	}
	return model.Attempts, nil
}

func (s *OTPStore) DeleteOTP(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&OTPModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("otp: %w", si.ErrNotFound)
	}
	return nil
}

// DeleteExpiredOTPs removes expired challenges and returns how many were dropped.
func (s *OTPStore) DeleteExpiredOTPs(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&OTPModel{})
	return res.RowsAffected, res.Error
}
