package instrumentation

import (
	"context"
	"testing"
)

func TestMetrics_RecordTokenExchange(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	// Test recording various exchanges
	tests := []struct {
		name       string
		grantType  string
		outcome    string
		durationMs float64
	}{
		{"successful code exchange", "authorization_code", "success", 123.45},
		{"successful client credentials", "client_credentials", "success", 34.56},
		{"failed refresh", "refresh_token", "invalid_grant", 45.67},
		{"unsupported grant", "device_code", "unsupported_grant_type", 1.23},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			metrics.RecordTokenExchange(ctx, tt.grantType, tt.outcome, tt.durationMs)
		})
	}
}

func TestMetrics_RecordIssuanceFlow(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	// Test issuance flow metrics
	metrics.RecordGrantIssued(ctx, "test-client-1")
	metrics.RecordGrantIssued(ctx, "test-client-2")

	metrics.RecordGrantConsumed(ctx)

	metrics.RecordTokenIssued(ctx, "authorization_code")
	metrics.RecordTokenIssued(ctx, "client_credentials")

	metrics.RecordTokenRefresh(ctx, "test-client-1", true)
	metrics.RecordTokenRefresh(ctx, "test-client-2", false)

	metrics.RecordIntrospection(ctx, "access_token", true)
	metrics.RecordIntrospection(ctx, "refresh_token", false)

	metrics.RecordRevocation(ctx, "access_token")
	metrics.RecordRevocation(ctx, "")

	// All should complete without panic
}

func TestMetrics_RecordSecurityEvents(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	// Test security metrics
	metrics.RecordRateLimitExceeded(ctx, "client")
	metrics.RecordRateLimitExceeded(ctx, "subject")

	metrics.RecordPKCEValidationFailed(ctx, "S256")
	metrics.RecordPKCEValidationFailed(ctx, "plain")

	metrics.RecordGrantReplay(ctx)
	metrics.RecordGrantReplay(ctx)

	metrics.RecordTokenReuse(ctx)

	metrics.RecordAuditEvent(ctx, "token_issued")
	metrics.RecordAuditEvent(ctx, "auth_failure")

	// All should complete without panic
}

func TestMetrics_RecordStorageOperations(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	// Test storage metrics
	metrics.RecordStorageOperation(ctx, "save_grant", "success", 12.34)
	metrics.RecordStorageOperation(ctx, "consume_grant", "success", 5.67)
	metrics.RecordStorageOperation(ctx, "revoke_access_token", "success", 3.45)
	metrics.RecordStorageOperation(ctx, "save_grant", "error", 23.45)

	// All should complete without panic
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	ctx := context.Background()
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	// Test concurrent metric recording
	done := make(chan bool)

	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				metrics.RecordTokenIssued(ctx, "authorization_code")
				metrics.RecordTokenExchange(ctx, "authorization_code", "success", 10.0)
				metrics.RecordGrantConsumed(ctx)
				metrics.RecordStorageOperation(ctx, "save", "success", 5.0)
				metrics.RecordIntrospection(ctx, "access_token", true)
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should complete without race conditions or panics
}

func TestMetrics_NoOpBehavior(t *testing.T) {
	ctx := context.Background()
	// Test that disabled instrumentation doesn't error on metric recording
	inst, err := New(Config{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	metrics := inst.Metrics()

	// All these should be no-ops and not panic
	metrics.RecordTokenIssued(ctx, "authorization_code")
	metrics.RecordTokenExchange(ctx, "authorization_code", "success", 10.0)
	metrics.RecordTokenRefresh(ctx, "client", true)
	metrics.RecordGrantIssued(ctx, "client")
	metrics.RecordGrantConsumed(ctx)
	metrics.RecordIntrospection(ctx, "access_token", false)
	metrics.RecordRevocation(ctx, "refresh_token")
	metrics.RecordRateLimitExceeded(ctx, "client")
	metrics.RecordPKCEValidationFailed(ctx, "S256")
	metrics.RecordGrantReplay(ctx)
	metrics.RecordTokenReuse(ctx)
	metrics.RecordAuditEvent(ctx, "test_event")
	metrics.RecordStorageOperation(ctx, "save", "success", 5.0)

	// No panics = success
}
