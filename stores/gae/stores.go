//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	si "github.com/panyam/signin"
)

// Kind constants for Datastore entities
const (
	KindUser     = "User"
	KindIdentity = "Identity"
	KindChannel  = "Channel"
	KindOTP      = "OTPChallenge"
)

// base holds the client and namespace shared by every store.
type base struct {
	client    *datastore.Client
	namespace string
}

func (s *base) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func notFound(err error, what string) error {
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return fmt.Errorf("%s: %w", what, si.ErrNotFound)
	}
	return err
}

// ============================================================================
// UserStore
// ============================================================================

// GAEUser implements the si.User interface
type GAEUser struct {
	UserID      string         `json:"user_id"`
	UserProfile map[string]any `json:"profile"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (u *GAEUser) Id() string              { return u.UserID }
func (u *GAEUser) Profile() map[string]any { return u.UserProfile }

// UserStore implements si.UserStore using Google Cloud Datastore
type UserStore struct{ base }

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{base{client: client, namespace: namespace}}
}

func (s *UserStore) CreateUser(ctx context.Context, userId string, profile map[string]any) (si.User, error) {
	key := s.namespacedKey(KindUser, userId)

	var profileBytes []byte
	if profile != nil {
		var err error
		if profileBytes, err = json.Marshal(profile); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	entity := &UserEntity{
		Key:       key,
		Profile:   profileBytes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.client.Put(ctx, key, entity); err != nil {
		return nil, err
	}
	return &GAEUser{UserID: userId, UserProfile: profile, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (si.User, error) {
	key := s.namespacedKey(KindUser, userId)
	var entity UserEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		return nil, notFound(err, "user "+userId)
	}

	var profile map[string]any
	if entity.Profile != nil {
		json.Unmarshal(entity.Profile, &profile)
	}
	return &GAEUser{
		UserID:      userId,
		UserProfile: profile,
		CreatedAt:   entity.CreatedAt,
		UpdatedAt:   entity.UpdatedAt,
	}, nil
}

// ============================================================================
// IdentityStore
// ============================================================================

// IdentityStore implements si.IdentityStore using Google Cloud Datastore
type IdentityStore struct{ base }

// NewIdentityStore creates a new Datastore-backed IdentityStore
func NewIdentityStore(client *datastore.Client, namespace string) *IdentityStore {
	return &IdentityStore{base{client: client, namespace: namespace}}
}

func (s *IdentityStore) GetIdentity(ctx context.Context, identityType, identityValue string) (*si.Identity, error) {
	key := s.namespacedKey(KindIdentity, si.IdentityKey(identityType, identityValue))
	var entity IdentityEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		return nil, notFound(err, "identity")
	}
	return entity.ToIdentity(), nil
}

func (s *IdentityStore) SaveIdentity(ctx context.Context, identity *si.Identity) error {
	key := s.namespacedKey(KindIdentity, si.IdentityKey(identity.Type, identity.Value))
	identity.UpdatedAt = time.Now()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = identity.UpdatedAt
	}
	_, err := s.client.Put(ctx, key, IdentityToEntity(identity, key))
	return err
}

// ============================================================================
// ChannelStore
// ============================================================================

// ChannelStore implements si.ChannelStore using Google Cloud Datastore
type ChannelStore struct{ base }

// NewChannelStore creates a new Datastore-backed ChannelStore
func NewChannelStore(client *datastore.Client, namespace string) *ChannelStore {
	return &ChannelStore{base{client: client, namespace: namespace}}
}

func (s *ChannelStore) GetChannel(ctx context.Context, provider, identityKey string) (*si.Channel, error) {
	key := s.namespacedKey(KindChannel, provider+":"+identityKey)
	var entity ChannelEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		return nil, notFound(err, "channel")
	}

	channel := &si.Channel{
		Provider:    entity.Provider,
		IdentityKey: entity.IdentityKey,
		CreatedAt:   entity.CreatedAt,
		UpdatedAt:   entity.UpdatedAt,
	}
	if entity.Credentials != nil {
		json.Unmarshal(entity.Credentials, &channel.Credentials)
	}
	if entity.Profile != nil {
		json.Unmarshal(entity.Profile, &channel.Profile)
	}
	return channel, nil
}

func (s *ChannelStore) SaveChannel(ctx context.Context, channel *si.Channel) error {
	key := s.namespacedKey(KindChannel, channel.Provider+":"+channel.IdentityKey)

	credBytes, err := json.Marshal(channel.Credentials)
	if err != nil {
		return err
	}
	profileBytes, err := json.Marshal(channel.Profile)
	if err != nil {
		return err
	}

	channel.UpdatedAt = time.Now()
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = channel.UpdatedAt
	}
	entity := &ChannelEntity{
		Key:         key,
		Provider:    channel.Provider,
		IdentityKey: channel.IdentityKey,
		Credentials: credBytes,
		Profile:     profileBytes,
		CreatedAt:   channel.CreatedAt,
		UpdatedAt:   channel.UpdatedAt,
	}
	_, err = s.client.Put(ctx, key, entity)
	return err
}

// ============================================================================
// OTPStore
// ============================================================================

// OTPStore implements si.OTPStore using Google Cloud Datastore
type OTPStore struct{ base }

// NewOTPStore creates a new Datastore-backed OTPStore
func NewOTPStore(client *datastore.Client, namespace string) *OTPStore {
	return &OTPStore{base{client: client, namespace: namespace}}
}

func (s *OTPStore) SaveOTP(ctx context.Context, record *si.OTPRecord) error {
	key := s.namespacedKey(KindOTP, record.ID)
	_, err := s.client.Put(ctx, key, OTPRecordToEntity(record, key))
	return err
}

func (s *OTPStore) GetOTP(ctx context.Context, id string) (*si.OTPRecord, error) {
	key := s.namespacedKey(KindOTP, id)
	var entity OTPEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		return nil, notFound(err, "otp")
	}
	rec := entity.ToOTPRecord()
	if rec.IsExpired() {
		return nil, fmt.Errorf("otp expired: %w", si.ErrNotFound)
	}
	return rec, nil
}

func (s *OTPStore) IncrementOTPAttempts(ctx context.Context, id string) (int, error) {
	key := s.namespacedKey(KindOTP, id)
	var attempts int
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity OTPEntity
		if err := tx.Get(key, &entity); err != nil {
			return notFound(err, "otp")
		}
		rec := entity.ToOTPRecord()
		if rec.IsExpired() {
			return fmt.Errorf("otp expired: %w", si.ErrNotFound)
		}
		rec.Attempts++
		if _, err := tx.Put(key, OTPRecordToEntity(rec, key)); err != nil {
			return err
		}
		attempts = rec.Attempts
		return nil
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// DeleteOTP deletes inside a transaction so a concurrent consumer sees
// ErrNotFound.
func (s *OTPStore) DeleteOTP(ctx context.Context, id string) error {
	key := s.namespacedKey(KindOTP, id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity OTPEntity
		if err := tx.Get(key, &entity); err != nil {
			return notFound(err, "otp")
		}
		return tx.Delete(key)
	})
	return err
}

// DeleteExpiredOTPs removes expired challenges and returns how many were dropped.
func (s *OTPStore) DeleteExpiredOTPs(ctx context.Context) (int, error) {
	query := datastore.NewQuery(KindOTP).
		Namespace(s.namespace).
		FilterField("expires_at", "<=", time.Now()).
		KeysOnly()

	var keys []*datastore.Key
	it := s.client.Run(ctx, query)
	for {
		key, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.client.DeleteMulti(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}
