package security

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "expired 10 minutes ago",
			expiresAt: now.Add(-10 * time.Minute),
			want:      true,
		},
		{
			name:      "expires in 10 minutes",
			expiresAt: now.Add(10 * time.Minute),
			want:      false,
		},
		{
			name:      "expires in 1 second",
			expiresAt: now.Add(1 * time.Second),
			want:      false,
		},
		{
			name:      "expired 1 second ago, inside the grace",
			expiresAt: now.Add(-1 * time.Second),
			want:      false,
		},
		{
			name:      "expired 10 seconds ago, beyond the grace",
			expiresAt: now.Add(-10 * time.Second),
			want:      true,
		},
		{
			name:      "zero time never expires",
			expiresAt: time.Time{},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsExpired(tt.expiresAt, now)
			if got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExpiredWithSkew(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		grace     time.Duration
		want      bool
	}{
		{
			name:      "expired beyond grace",
			expiresAt: now.Add(-20 * time.Second),
			grace:     10 * time.Second,
			want:      true,
		},
		{
			name:      "expired within grace",
			expiresAt: now.Add(-5 * time.Second),
			grace:     10 * time.Second,
			want:      false,
		},
		{
			name:      "not expired",
			expiresAt: now.Add(10 * time.Minute),
			grace:     10 * time.Second,
			want:      false,
		},
		{
			name:      "zero grace",
			expiresAt: now.Add(-1 * time.Second),
			grace:     0,
			want:      true,
		},
		{
			name:      "zero time with grace",
			expiresAt: time.Time{},
			grace:     10 * time.Second,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsExpiredWithSkew(tt.expiresAt, now, tt.grace)
			if got != tt.want {
				t.Errorf("IsExpiredWithSkew() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpiresWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		threshold time.Duration
		want      bool
	}{
		{
			name:      "expiring in 1 minute with 5 minute threshold",
			expiresAt: now.Add(1 * time.Minute),
			threshold: 5 * time.Minute,
			want:      true,
		},
		{
			name:      "expiring in 10 minutes with 5 minute threshold",
			expiresAt: now.Add(10 * time.Minute),
			threshold: 5 * time.Minute,
			want:      false,
		},
		{
			name:      "already expired",
			expiresAt: now.Add(-1 * time.Minute),
			threshold: 5 * time.Minute,
			want:      true,
		},
		{
			name:      "zero time never expires",
			expiresAt: time.Time{},
			threshold: 5 * time.Minute,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpiresWithin(tt.expiresAt, now, tt.threshold)
			if got != tt.want {
				t.Errorf("ExpiresWithin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultClockSkewGracePeriod(t *testing.T) {
	if DefaultClockSkewGracePeriod != 5*time.Second {
		t.Errorf("DefaultClockSkewGracePeriod = %v, want %v", DefaultClockSkewGracePeriod, 5*time.Second)
	}
}
