package fs

import (
	"context"
	"time"

	si "github.com/panyam/signin"
)

// FSIdentityStore keeps identities under <root>/identities, keyed by
// IdentityKey.
type FSIdentityStore struct {
	records recordDir
}

func NewFSIdentityStore(storagePath string) *FSIdentityStore {
	return &FSIdentityStore{records: recordDir{root: storagePath, kind: "identities"}}
}

func (s *FSIdentityStore) GetIdentity(ctx context.Context, identityType, identityValue string) (*si.Identity, error) {
	identity := &si.Identity{}
	if err := s.records.load(ctx, si.IdentityKey(identityType, identityValue), identity); err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *FSIdentityStore) SaveIdentity(ctx context.Context, identity *si.Identity) error {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}
	return s.records.store(ctx, si.IdentityKey(identity.Type, identity.Value), identity)
}
