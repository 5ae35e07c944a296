package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestRecordError(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	defer span.End()

	// Test recording an error
	testErr := errors.New("test error")
	RecordError(span, testErr)

	// Should not panic
}

func TestSetSpanSuccess(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	defer span.End()

	// Test setting span as successful
	SetSpanSuccess(span)

	// Should not panic
}

func TestAddOAuthFlowAttributes(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	defer span.End()

	// Test adding OAuth flow attributes
	AddOAuthFlowAttributes(span, "test-client", "test-user", "openid email")
	AddOAuthFlowAttributes(span, "test-client-2", "", "")
	AddOAuthFlowAttributes(span, "", "test-user-2", "")

	// Should not panic
}

func TestAddGrantTypeAttributes(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	defer span.End()

	// Test adding grant type attributes
	AddGrantTypeAttributes(span, "authorization_code")
	AddGrantTypeAttributes(span, "client_credentials")
	AddGrantTypeAttributes(span, "")

	// Should not panic
}

func TestAddPKCEAttributes(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	defer span.End()

	// Test adding PKCE attributes
	AddPKCEAttributes(span, "S256")
	AddPKCEAttributes(span, "plain")
	AddPKCEAttributes(span, "")

	// Should not panic
}

func TestAddTokenFamilyAttributes(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	defer span.End()

	// Test adding token family attributes
	AddTokenFamilyAttributes(span, "family-123", 1)
	AddTokenFamilyAttributes(span, "family-456", 5)
	AddTokenFamilyAttributes(span, "", 0)

	// Should not panic
}

func TestAddStorageAttributes(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("storage").Start(ctx, "test-span")
	defer span.End()

	// Test adding storage attributes
	AddStorageAttributes(span, "save_grant", "memory")
	AddStorageAttributes(span, "consume_grant", "valkey")

	// Should not panic
}

func TestSpanLifecycle(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()

	// Test full span lifecycle with attributes and error
	_, span := inst.Tracer("engine").Start(ctx, "oauth.exchange")

	// Add attributes
	AddOAuthFlowAttributes(span, "test-client", "test-user", "openid email")
	AddGrantTypeAttributes(span, "authorization_code")
	AddPKCEAttributes(span, "S256")

	// Simulate some work
	testErr := errors.New("validation failed")
	RecordError(span, testErr)

	// End span
	span.End()

	// Should complete without panic
}

func TestSpanNesting(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()

	// Create nested spans
	ctx, span1 := inst.Tracer("engine").Start(ctx, "oauth.exchange")
	AddGrantTypeAttributes(span1, "authorization_code")

	ctx, span2 := inst.Tracer("engine").Start(ctx, "oauth.consume_grant")
	AddOAuthFlowAttributes(span2, "test-client", "test-user", "openid")

	_, span3 := inst.Tracer("storage").Start(ctx, "storage.consume_grant")
	AddStorageAttributes(span3, "consume_grant", "memory")
	SetSpanSuccess(span3)
	span3.End()

	SetSpanSuccess(span2)
	span2.End()

	SetSpanSuccess(span1)
	span1.End()

	// Should complete without panic
}

func TestSpanConcurrency(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	done := make(chan bool)

	// Create spans concurrently
	for i := 0; i < 10; i++ {
		go func(id int) {
			for j := 0; j < 100; j++ {
				_, span := inst.Tracer("engine").Start(ctx, "concurrent-span")
				AddOAuthFlowAttributes(span, "client", "user", "scope")
				AddPKCEAttributes(span, "S256")
				SetSpanSuccess(span)
				span.End()
			}
			done <- true
		}(i)
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should complete without race conditions
}

func TestNoOpSpans(t *testing.T) {
	// Test that disabled instrumentation produces no-op spans
	inst, err := New(Config{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()

	// Create and manipulate spans - should all be no-ops
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	AddOAuthFlowAttributes(span, "client", "user", "scope")
	AddGrantTypeAttributes(span, "authorization_code")
	AddPKCEAttributes(span, "S256")
	AddTokenFamilyAttributes(span, "family", 2)
	AddStorageAttributes(span, "save", "memory")
	RecordError(span, errors.New("test"))
	SetSpanSuccess(span)
	span.SetStatus(codes.Ok, "")
	span.End()

	// Should not panic
}

func TestSetSpanError(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	defer span.End()

	// Test setting error on span
	SetSpanError(span, "test error message")

	// Should not panic
}

func TestSetSpanAttributes(t *testing.T) {
	inst, err := New(Config{
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, span := inst.Tracer("engine").Start(ctx, "test-span")
	defer span.End()

	// Test setting attributes on span
	SetSpanAttributes(span,
		attribute.String(AttrGrantType, "authorization_code"),
		attribute.Int(AttrExpiresIn, 3600),
	)

	// Should not panic
}

func TestNilSafeHelpers_WithNilSpans(t *testing.T) {
	// Test all nil-safe helpers with nil spans
	SetSpanError(nil, "error")
	SetSpanAttributes(nil, attribute.String("key", "value"))
	RecordError(nil, errors.New("test"))
	SetSpanSuccess(nil)
	AddOAuthFlowAttributes(nil, "client", "user", "scope")
	AddGrantTypeAttributes(nil, "authorization_code")
	AddPKCEAttributes(nil, "S256")
	AddTokenFamilyAttributes(nil, "family", 1)
	AddStorageAttributes(nil, "save", "memory")

	// Should not panic
}
