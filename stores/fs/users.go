package fs

import (
	"context"
	"time"

	si "github.com/panyam/signin"
)

// FSUser is the on-disk form of a user.
type FSUser struct {
	UserId      string         `json:"user_id"`
	UserProfile map[string]any `json:"profile"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (u *FSUser) Id() string              { return u.UserId }
func (u *FSUser) Profile() map[string]any { return u.UserProfile }

// FSUserStore keeps users under <root>/users.
type FSUserStore struct {
	records recordDir
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{records: recordDir{root: storagePath, kind: "users"}}
}

func (s *FSUserStore) CreateUser(ctx context.Context, userId string, profile map[string]any) (si.User, error) {
	now := time.Now()
	u := &FSUser{UserId: userId, UserProfile: profile, CreatedAt: now, UpdatedAt: now}
	if err := s.records.store(ctx, userId, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *FSUserStore) GetUserById(ctx context.Context, userId string) (si.User, error) {
	u := &FSUser{}
	if err := s.records.load(ctx, userId, u); err != nil {
		return nil, err
	}
	return u, nil
}
