package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	si "github.com/panyam/signin"
)

func newTestStore(t *testing.T) (*OTPStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewOTPStore(rdb, ""), mr
}

func TestOTPStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	rec := &si.OTPRecord{
		ID:        "abc",
		Phone:     "+919876543210",
		CodeHash:  si.HashOTP("123456"),
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, store.SaveOTP(ctx, rec))
	assert.True(t, mr.Exists("signin:otp:abc"))
	assert.Greater(t, mr.TTL("signin:otp:abc"), 4*time.Minute)

	got, err := store.GetOTP(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, rec.Phone, got.Phone)
	assert.True(t, si.OTPEqual("123456", got.CodeHash))

	require.NoError(t, store.DeleteOTP(ctx, "abc"))
	_, err = store.GetOTP(ctx, "abc")
	assert.ErrorIs(t, err, si.ErrNotFound)
}

func TestOTPStoreIncrementKeepsTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	require.NoError(t, store.SaveOTP(ctx, &si.OTPRecord{ID: "inc", ExpiresAt: time.Now().Add(5 * time.Minute)}))

	n, err := store.IncrementOTPAttempts(ctx, "inc")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.IncrementOTPAttempts(ctx, "inc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Greater(t, mr.TTL("signin:otp:inc"), 4*time.Minute)

	got, err := store.GetOTP(ctx, "inc")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)

	require.NoError(t, store.DeleteOTP(ctx, "inc"))
	assert.ErrorIs(t, store.DeleteOTP(ctx, "inc"), si.ErrNotFound)
	_, err = store.IncrementOTPAttempts(ctx, "inc")
	assert.ErrorIs(t, err, si.ErrNotFound)
	assert.False(t, mr.Exists("signin:otp:inc"), "increment must not recreate the record")
}

func TestOTPStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.SaveOTP(ctx, &si.OTPRecord{ID: "x", ExpiresAt: time.Now().Add(time.Minute)}))
	mr.FastForward(2 * time.Minute)

	_, err := store.GetOTP(ctx, "x")
	assert.ErrorIs(t, err, si.ErrNotFound)
}

func TestOTPStoreSaveExpiredDeletes(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.SaveOTP(ctx, &si.OTPRecord{ID: "y", ExpiresAt: time.Now().Add(time.Minute)}))
	require.NoError(t, store.SaveOTP(ctx, &si.OTPRecord{ID: "y", ExpiresAt: time.Now().Add(-time.Second)}))
	assert.False(t, mr.Exists("signin:otp:y"))
}

func TestOTPStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.GetOTP(ctx, "z")
	assert.ErrorIs(t, err, si.ErrProviderUnavailable)
}
