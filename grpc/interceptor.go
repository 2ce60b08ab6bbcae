package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	si "github.com/panyam/signin"
)

// InterceptorConfig configures the session and error interceptors.
type InterceptorConfig struct {
	*Config

	// RequireSession rejects calls without a session key.
	RequireSession bool

	// PublicMethods skip the session check.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool

	// Mechanism selects the wording of normalised errors. Zero uses the
	// generic messages.
	Mechanism si.Mechanism
}

// DefaultInterceptorConfig returns a config that only normalises errors.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		PublicMethods: make(map[string]bool),
	}
}

func (c *InterceptorConfig) ensure() *InterceptorConfig {
	if c == nil {
		c = DefaultInterceptorConfig()
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	return c
}

func (c *InterceptorConfig) checkSession(ctx context.Context, method string) error {
	if !c.RequireSession || c.PublicMethods[method] {
		return nil
	}
	if SessionKeyFromIncomingContextWithConfig(ctx, c.Config) == "" {
		return status.Error(codes.Unauthenticated, "sign-in session required")
	}
	return nil
}

// normalizeError passes status errors through and replaces anything else by
// its DisplayError status so raw provider text never reaches clients.
func (c *InterceptorConfig) normalizeError(method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	de := si.Normalize(c.Mechanism, err)
	slog.Warn("grpc call failed", "method", method, "kind", de.Kind, "err", err)
	return de.GRPCStatus().Err()
}

// UnaryErrorInterceptor returns a unary interceptor that enforces the session
// requirement and normalises handler errors.
func UnaryErrorInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensure()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := config.checkSession(ctx, info.FullMethod); err != nil {
			return nil, err
		}
		resp, err := handler(ctx, req)
		return resp, config.normalizeError(info.FullMethod, err)
	}
}

// StreamErrorInterceptor is the streaming counterpart of UnaryErrorInterceptor.
func StreamErrorInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensure()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := config.checkSession(ss.Context(), info.FullMethod); err != nil {
			return err
		}
		return config.normalizeError(info.FullMethod, handler(srv, ss))
	}
}
