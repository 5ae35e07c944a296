package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-engine/instrumentation"
	"github.com/giantswarm/oauth2-engine/scope"
	"github.com/giantswarm/oauth2-engine/security"
	"github.com/giantswarm/oauth2-engine/storage"
	"github.com/giantswarm/oauth2-engine/token"
)

// PasswordVerifier checks resource owner credentials for the password grant.
// The engine never stores or inspects passwords itself; it hands the
// credentials to the verifier and uses the returned subject.
type PasswordVerifier interface {
	// VerifyPassword returns the stable subject identifier for the resource
	// owner. An empty subject or a non-nil error means verification failed;
	// the engine does not distinguish the two in its response.
	VerifyPassword(ctx context.Context, username, password string) (subject string, err error)
}

// PasswordVerifierFunc adapts a plain function to the PasswordVerifier
// interface.
type PasswordVerifierFunc func(ctx context.Context, username, password string) (string, error)

// VerifyPassword implements PasswordVerifier.
func (f PasswordVerifierFunc) VerifyPassword(ctx context.Context, username, password string) (string, error) {
	return f(ctx, username, password)
}

// Engine is the transport-agnostic core of an OAuth 2.1 authorization
// server. It runs the grant state machines, mints and persists tokens, and
// answers introspection, revocation and verification queries. HTTP parsing,
// client registration UX and resource owner authentication are the caller's
// concern.
//
// All methods are safe for concurrent use.
type Engine struct {
	store    storage.Store
	codec    token.Codec
	config   *Config
	logger   *slog.Logger
	policy   scope.Policy
	verifier PasswordVerifier

	auditor     *security.Auditor
	rateLimiter *security.RateLimiter

	inst    *instrumentation.Instrumentation
	metrics *instrumentation.Metrics
	tracer  trace.Tracer

	nowFunc func() time.Time
}

// New creates an engine on top of the given store. A nil config gets
// DefaultConfig; a nil logger gets slog.Default. Contradictory
// configurations, including enabling the password grant without a
// PasswordVerifier, fail here rather than at exchange time.
func New(store storage.Store, config *Config, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		store:    store,
		config:   config,
		logger:   logger,
		verifier: config.PasswordVerifier,
		nowFunc:  time.Now,
	}

	codec, err := newCodec(config, e.now)
	if err != nil {
		return nil, err
	}
	e.codec = codec

	// Instruments exist from construction; until SetInstrumentation they
	// are no-op.
	inst, err := instrumentation.New(instrumentation.Config{Enabled: false})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	e.applyInstrumentation(inst)

	return e, nil
}

// newCodec builds the access token codec the configuration selects. The
// codec shares the engine clock so SetClock moves JWT validation time too.
func newCodec(config *Config, now func() time.Time) (token.Codec, error) {
	switch config.TokenFormat {
	case TokenFormatOpaque:
		return token.NewOpaqueCodec(), nil
	case TokenFormatJWT:
		leeway := time.Duration(config.ClockSkewGracePeriod) * time.Second
		if config.JWT.SigningKey != nil {
			return token.NewJWTCodec(config.JWT.SigningKey, token.WithNowFunc(now), token.WithLeeway(leeway)), nil
		}
		if len(config.JWT.SigningSecret) > 0 {
			return token.NewJWTCodecHS256(config.JWT.SigningSecret, token.WithNowFunc(now), token.WithLeeway(leeway)), nil
		}
		return nil, fmt.Errorf("token format %q requires a signing key or secret", TokenFormatJWT)
	default:
		return nil, fmt.Errorf("unsupported token format: %q", config.TokenFormat)
	}
}

// SetAuditor installs a security event auditor. A nil auditor (the default)
// disables audit logging.
func (e *Engine) SetAuditor(auditor *security.Auditor) {
	e.auditor = auditor
}

// SetRateLimiter installs a per-client rate limiter for the token endpoint.
// A nil limiter (the default) disables rate limiting.
func (e *Engine) SetRateLimiter(limiter *security.RateLimiter) {
	e.rateLimiter = limiter
}

// SetInstrumentation installs OpenTelemetry metrics and tracing for engine
// operations.
func (e *Engine) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	e.applyInstrumentation(inst)
}

func (e *Engine) applyInstrumentation(inst *instrumentation.Instrumentation) {
	e.inst = inst
	e.metrics = inst.Metrics()
	e.tracer = inst.Tracer("engine")
}

// SetClock overrides the engine's time source. Intended for tests; token
// minting, expiry checks and JWT validation all follow the injected clock.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.nowFunc = now
	}
}

func (e *Engine) now() time.Time {
	return e.nowFunc()
}

// skew returns the configured clock-skew grace period.
func (e *Engine) skew() time.Duration {
	return time.Duration(e.config.ClockSkewGracePeriod) * time.Second
}

// HashClientSecret hashes a client secret for storage in a client record.
// bcrypt is deliberately slow; hash at provisioning time, not per request.
func HashClientSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("client secret cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash client secret: %w", err)
	}
	return hash, nil
}
