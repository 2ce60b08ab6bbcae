package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	si "github.com/panyam/signin"
)

// FSOTPStore keeps OTP records under <root>/otps. Expired records are
// removed when read. Updates are serialized within the process.
type FSOTPStore struct {
	mu      sync.Mutex
	records recordDir
}

func NewFSOTPStore(storagePath string) *FSOTPStore {
	return &FSOTPStore{records: recordDir{root: storagePath, kind: "otps"}}
}

func (s *FSOTPStore) SaveOTP(ctx context.Context, record *si.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.store(ctx, record.ID, record)
}

func (s *FSOTPStore) GetOTP(ctx context.Context, id string) (*si.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, id)
}

func (s *FSOTPStore) getLocked(ctx context.Context, id string) (*si.OTPRecord, error) {
	record := &si.OTPRecord{}
	if err := s.records.load(ctx, id, record); err != nil {
		return nil, err
	}
	if record.IsExpired() {
		s.records.remove(id)
		return nil, fmt.Errorf("otp expired: %w", si.ErrNotFound)
	}
	return record, nil
}

func (s *FSOTPStore) IncrementOTPAttempts(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.getLocked(ctx, id)
	if err != nil {
		return 0, err
	}
	record.Attempts++
	if err := s.records.store(ctx, id, record); err != nil {
		return 0, err
	}
	return record.Attempts, nil
}

func (s *FSOTPStore) DeleteOTP(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.records.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("otp %q: %w", id, si.ErrNotFound)
		}
		return err
	}
	return nil
}
