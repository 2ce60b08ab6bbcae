// Package redis keeps phone OTP challenges in Redis with a TTL matching
// each record's expiry, so abandoned challenges disappear on their own.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	si "github.com/panyam/signin"
)

const DefaultKeyPrefix = "signin:otp"

const maxTxRetries = 10

// OTPStore implements si.OTPStore on a Redis client.
type OTPStore struct {
	client redis.UniversalClient
	prefix string
}

func NewOTPStore(client redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &OTPStore{client: client, prefix: prefix}
}

func (s *OTPStore) key(id string) string {
	return s.prefix + ":" + id
}

// SaveOTP writes the record with a TTL that ends at record.ExpiresAt.
// Records that are already expired are removed instead.
func (s *OTPStore) SaveOTP(ctx context.Context, record *si.OTPRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		if err := s.DeleteOTP(ctx, record.ID); err != nil && !errors.Is(err, si.ErrNotFound) {
			return err
		}
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(record.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
	}
	return nil
}

func (s *OTPStore) GetOTP(ctx context.Context, id string) (*si.OTPRecord, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("otp: %w", si.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
	}
	var record si.OTPRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// IncrementOTPAttempts bumps the attempt count inside a WATCH transaction,
// keeping the record's TTL. Concurrent writers cause a bounded retry.
func (s *OTPStore) IncrementOTPAttempts(ctx context.Context, id string) (int, error) {
	key := s.key(id)
	var attempts int
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("otp: %w", si.ErrNotFound)
		}
		if err != nil {
			return err
		}
		var record si.OTPRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		record.Attempts++
		if data, err = json.Marshal(&record); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err == nil {
			attempts = record.Attempts
		}
		return err
	}
	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, si.ErrNotFound) {
			return 0, fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
		}
		return attempts, err
	}
	return 0, fmt.Errorf("%w: otp update contended", si.ErrProviderUnavailable)
}

func (s *OTPStore) DeleteOTP(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", si.ErrProviderUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("otp: %w", si.ErrNotFound)
	}
	return nil
}
