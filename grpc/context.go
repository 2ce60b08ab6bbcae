// Package grpc carries the sign-in session key between HTTP front ends and
// gRPC services via metadata, and keeps provider error text out of gRPC
// statuses.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys.
const (
	// DefaultMetadataKeySession is the default gRPC metadata key for the orchestrator session key
	DefaultMetadataKeySession = "x-signin-session"

	// DefaultMetadataKeyUserID is the default gRPC metadata key for the signed-in user ID
	DefaultMetadataKeyUserID = "x-user-id"
)

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeySession defaults to "x-signin-session".
	MetadataKeySession string

	// MetadataKeyUserID defaults to "x-user-id".
	MetadataKeyUserID string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeySession: DefaultMetadataKeySession,
		MetadataKeyUserID:  DefaultMetadataKeyUserID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() *Config {
	if c.MetadataKeySession == "" {
		c.MetadataKeySession = DefaultMetadataKeySession
	}
	if c.MetadataKeyUserID == "" {
		c.MetadataKeyUserID = DefaultMetadataKeyUserID
	}
	return c
}

func firstValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// SessionKeyFromIncomingContext returns the orchestrator session key, or ""
// when none was sent.
func SessionKeyFromIncomingContext(ctx context.Context) string {
	return SessionKeyFromIncomingContextWithConfig(ctx, nil)
}

func SessionKeyFromIncomingContextWithConfig(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	return firstValue(ctx, config.EnsureDefaults().MetadataKeySession)
}

// SessionKeyToOutgoingContext adds the session key to outgoing gRPC metadata.
func SessionKeyToOutgoingContext(ctx context.Context, sessionKey string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeySession, sessionKey)
}

// UserIDFromContext extracts the signed-in user ID from incoming metadata.
// Returns empty string if no user is signed in.
func UserIDFromContext(ctx context.Context) string {
	return firstValue(ctx, DefaultMetadataKeyUserID)
}

// UserIDToOutgoingContext adds the user ID to outgoing gRPC context metadata.
func UserIDToOutgoingContext(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyUserID, userID)
}
