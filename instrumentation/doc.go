// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the oauth2-engine library.
//
// This package enables observability across the engine and its storage backends through:
// - Metrics: Counters, histograms, and gauges for monitoring OAuth operations
// - Traces: Distributed tracing for token flows across components
//
// # Quick Start
//
// Enable instrumentation with the globally registered OTel providers:
//
//	import "github.com/giantswarm/oauth2-engine/instrumentation"
//
//	// Initialize instrumentation
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-auth-server",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	// Pass to the engine and the storage backend
//	engine.SetInstrumentation(inst)
//	store.SetInstrumentation(inst)
//
// When Enabled is false (the zero value) all providers are no-ops and recording
// has zero overhead. When Enabled is true and no provider is supplied in the
// Config, the global otel.GetMeterProvider/otel.GetTracerProvider are used, so
// installing an SDK provider globally (e.g. one backed by a Prometheus or OTLP
// exporter) is all a deployment needs to do.
//
// # Available Metrics
//
// Engine:
//   - oauth.tokens.issued{grant_type} - Access tokens issued
//   - oauth.token.exchange.duration{grant_type, outcome} - Exchange latency in milliseconds
//   - oauth.token.refreshed{client_id, rotated} - Tokens refreshed
//   - oauth.grants.issued{client_id} - Authorization grants issued
//   - oauth.grants.consumed - Authorization grants consumed at exchange
//   - oauth.introspections{token_type, active} - Introspection requests
//   - oauth.revocations{hint} - Revocation requests
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type} - Rate limit violations
//   - oauth.pkce.validation_failed{method} - PKCE validation failures
//   - oauth.grant.replays - Authorization code replay attempts
//   - oauth.token.reuse_detected - Refresh token reuse attempts
//   - oauth.audit.events.total{event_type} - Audit events emitted
//
// Storage:
//   - storage.operation.total{operation, result} - Storage operations
//   - storage.operation.duration{operation} - Operation duration in milliseconds
//   - storage.clients.count - Current client records (gauge)
//   - storage.grants.count - Current grant records (gauge)
//   - storage.access_tokens.count - Current access token records (gauge)
//   - storage.refresh_tokens.count - Current refresh token records (gauge)
//
// The storage gauges are observed through callbacks registered with
// RegisterStorageSizeCallbacks; the in-memory backend registers them
// automatically when given an Instrumentation.
//
// # Distributed Tracing
//
// Spans are created for all major operations:
//   - Engine operations (authorize, exchange, introspect, revoke)
//   - Storage operations (save, get, consume, revoke)
//
// Example span structure:
//
//	oauth.exchange
//	├── storage.get_client
//	├── storage.consume_grant
//	└── storage.save_token_pair
//
// # Performance
//
// When instrumentation is not configured or disabled:
//   - Zero overhead (uses no-op providers)
//   - No allocations or latency impact
//
// # Thread Safety
//
// All instrumentation operations are thread-safe and can be called concurrently
// from multiple goroutines.
//
// # Metric Cardinality Considerations
//
// Metric cardinality refers to the number of unique label combinations for a metric.
// High cardinality can cause memory pressure and slow queries in monitoring systems.
//
// Label cardinality in this library:
//   - client_id: One value per registered OAuth client (typically 1-1000s)
//   - grant_type: Fixed set (5 grant types)
//   - operation: Fixed set (storage operations, ~15 values)
//   - outcome/result: Fixed set (success, plus the OAuth error codes)
//
// For deployments with very large client populations, aggregate or drop the
// client_id label in your collector: every other label is bounded.
//
// # Security Considerations
//
// IMPORTANT: This package is designed to collect observability data, not sensitive credentials.
//
// When instrumenting OAuth flows, you MUST:
//   - NEVER log actual token values (access tokens, refresh tokens, authorization codes)
//   - NEVER log client secrets or PKCE verifiers
//   - ONLY log metadata (token types, expiry times, validation results, family IDs)
//
// Data collected in traces and metrics may be:
//   - Persisted for extended periods in observability backends
//   - Accessible to operations teams and potentially wider audiences
//   - Subject to compliance requirements (GDPR, PCI-DSS, SOC 2, etc.)
//   - Replicated across monitoring infrastructure
package instrumentation
