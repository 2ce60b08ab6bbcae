package signin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// CreateUserFunc registers a new email/password account.
type CreateUserFunc func(ctx context.Context, email, password string) (User, error)

// CredentialsValidator checks an email/password pair.
type CredentialsValidator func(ctx context.Context, email, password string) (User, error)

// EnsureUserFunc finds or creates the user owning an identity and records
// the channel it authenticated through.
type EnsureUserFunc func(ctx context.Context, channel, identityType, identityValue string, profile map[string]any) (User, error)

// NewCreateUserFunc creates a CreateUserFunc from stores. cost is the bcrypt
// cost; zero selects bcrypt.DefaultCost.
func NewCreateUserFunc(userStore UserStore, identityStore IdentityStore, channelStore ChannelStore, cost int) CreateUserFunc {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return func(ctx context.Context, email, password string) (User, error) {
		email = NormalizeEmail(email)

		// Check if identity already exists
		_, err := identityStore.GetIdentity(ctx, IdentityEmail, email)
		if err == nil {
			return nil, fmt.Errorf("%w: email already registered", ErrAccountExists)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to look up identity: %w", err)
		}

		passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}

		userId := generateSecureUserId()
		profile := map[string]any{
			"email":    email,
			"channels": []string{ChannelLocal},
		}
		user, err := userStore.CreateUser(ctx, userId, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}

		now := time.Now()
		identity := &Identity{
			Type:      IdentityEmail,
			Value:     email,
			UserID:    userId,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := identityStore.SaveIdentity(ctx, identity); err != nil {
			return nil, fmt.Errorf("failed to create identity: %w", err)
		}

		identityKey := IdentityKey(IdentityEmail, email)
		channel := &Channel{
			Provider:    ChannelLocal,
			IdentityKey: identityKey,
			Credentials: map[string]any{
				"password_hash": string(passwordHash),
			},
			Profile:   profile,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := channelStore.SaveChannel(ctx, channel); err != nil {
			return nil, fmt.Errorf("failed to create channel: %w", err)
		}

		slog.Info("created local user", "user_id", userId, "identity", identityKey)
		return user, nil
	}
}

// NewCredentialsValidator creates a CredentialsValidator from stores.
// Unknown accounts and wrong passwords both yield ErrInvalidCredential.
func NewCredentialsValidator(identityStore IdentityStore, channelStore ChannelStore, userStore UserStore) CredentialsValidator {
	return func(ctx context.Context, email, password string) (User, error) {
		email = NormalizeEmail(email)
		identityKey := IdentityKey(IdentityEmail, email)

		channel, err := channelStore.GetChannel(ctx, ChannelLocal, identityKey)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrInvalidCredential
			}
			return nil, fmt.Errorf("failed to load channel: %w", err)
		}

		passwordHash, ok := channel.Credentials["password_hash"].(string)
		if !ok {
			return nil, ErrInvalidCredential
		}
		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
			return nil, ErrInvalidCredential
		}

		identity, err := identityStore.GetIdentity(ctx, IdentityEmail, email)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrInvalidCredential
			}
			return nil, err
		}
		return userStore.GetUserById(ctx, identity.UserID)
	}
}

// NewEnsureUserFunc creates an EnsureUserFunc from stores. Identities reached
// this way are marked verified since the channel proved ownership.
func NewEnsureUserFunc(userStore UserStore, identityStore IdentityStore, channelStore ChannelStore) EnsureUserFunc {
	return func(ctx context.Context, channelName, identityType, identityValue string, profile map[string]any) (User, error) {
		if identityType == IdentityEmail {
			identityValue = NormalizeEmail(identityValue)
		}
		now := time.Now()

		var user User
		identity, err := identityStore.GetIdentity(ctx, identityType, identityValue)
		switch {
		case err == nil && identity.UserID != "":
			user, err = userStore.GetUserById(ctx, identity.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to load user: %w", err)
			}
			if !identity.Verified {
				identity.Verified = true
				identity.UpdatedAt = now
				if err := identityStore.SaveIdentity(ctx, identity); err != nil {
					return nil, fmt.Errorf("failed to verify identity: %w", err)
				}
			}
		case err == nil || errors.Is(err, ErrNotFound):
			userProfile := map[string]any{identityType: identityValue}
			for k, v := range profile {
				if _, ok := userProfile[k]; !ok {
					userProfile[k] = v
				}
			}
			userId := generateSecureUserId()
			user, err = userStore.CreateUser(ctx, userId, userProfile)
			if err != nil {
				return nil, fmt.Errorf("failed to create user: %w", err)
			}
			identity = &Identity{
				Type:      identityType,
				Value:     identityValue,
				UserID:    userId,
				Verified:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := identityStore.SaveIdentity(ctx, identity); err != nil {
				return nil, fmt.Errorf("failed to create identity: %w", err)
			}
			slog.Info("created user", "user_id", userId, "channel", channelName)
		default:
			return nil, fmt.Errorf("failed to look up identity: %w", err)
		}

		identityKey := IdentityKey(identityType, identityValue)
		channel, err := channelStore.GetChannel(ctx, channelName, identityKey)
		if errors.Is(err, ErrNotFound) {
			channel = &Channel{
				Provider:    channelName,
				IdentityKey: identityKey,
				Credentials: map[string]any{},
				CreatedAt:   now,
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to load channel: %w", err)
		}
		channel.Profile = profile
		channel.UpdatedAt = now
		if err := channelStore.SaveChannel(ctx, channel); err != nil {
			return nil, fmt.Errorf("failed to save channel: %w", err)
		}
		return user, nil
	}
}

// NormalizeEmail lower-cases and trims an address for use as an identity value.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateSecureUserId generates a cryptographically secure user ID
func generateSecureUserId() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
