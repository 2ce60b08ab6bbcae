package fs

import (
	"context"
	"time"

	si "github.com/panyam/signin"
)

// FSChannelStore keeps channels under <root>/channels, one file per
// provider and identity.
type FSChannelStore struct {
	records recordDir
}

func NewFSChannelStore(storagePath string) *FSChannelStore {
	return &FSChannelStore{records: recordDir{root: storagePath, kind: "channels"}}
}

func channelKey(provider, identityKey string) string {
	return safeName(provider) + "_" + safeName(identityKey)
}

func (s *FSChannelStore) GetChannel(ctx context.Context, provider, identityKey string) (*si.Channel, error) {
	channel := &si.Channel{}
	if err := s.records.load(ctx, channelKey(provider, identityKey), channel); err != nil {
		return nil, err
	}
	return channel, nil
}

func (s *FSChannelStore) SaveChannel(ctx context.Context, channel *si.Channel) error {
	channel.UpdatedAt = time.Now()
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = channel.UpdatedAt
	}
	return s.records.store(ctx, channelKey(channel.Provider, channel.IdentityKey), channel)
}
