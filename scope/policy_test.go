package scope

import "testing"

func TestPolicyDefaultFor(t *testing.T) {
	var p Policy

	got := p.DefaultFor([]string{"read", "write"})
	if !got.Equal(New("read", "write")) {
		t.Errorf("DefaultFor() = %v, want [read write]", got.List())
	}

	if !p.DefaultFor(nil).IsEmpty() {
		t.Error("DefaultFor(nil) should be empty")
	}
}

func TestPolicyResolve(t *testing.T) {
	var p Policy
	clientScopes := []string{"read", "write"}

	tests := []struct {
		name      string
		requested Set
		want      string
	}{
		{"empty request falls back to client default", New(), "read write"},
		{"explicit request passes through", New("read"), "read"},
		{"request is not clipped by resolve", New("read", "admin"), "admin read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Resolve(tt.requested, clientScopes).String(); got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequirements(t *testing.T) {
	r := NewRequirements()
	r.Require("/api/files", "files:read")
	r.Require("/api/admin", "admin", "files:read")

	tests := []struct {
		name     string
		endpoint string
		granted  Set
		want     bool
	}{
		{"unregistered endpoint is unrestricted", "/api/public", New(), true},
		{"sufficient scope", "/api/files", New("files:read", "profile"), true},
		{"missing scope", "/api/files", New("profile"), false},
		{"partial coverage fails", "/api/admin", New("admin"), false},
		{"full coverage", "/api/admin", New("admin", "files:read"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Satisfies(tt.endpoint, tt.granted); got != tt.want {
				t.Errorf("Satisfies(%q, %v) = %v, want %v", tt.endpoint, tt.granted.List(), got, tt.want)
			}
		})
	}
}

func TestRequirementsRequireReplaces(t *testing.T) {
	r := NewRequirements()
	r.Require("/api/files", "files:read", "files:write")
	r.Require("/api/files", "files:read")

	if !r.Satisfies("/api/files", New("files:read")) {
		t.Error("Require() should replace the previous registration")
	}
}

func TestRequirementsRequiredReturnsCopy(t *testing.T) {
	r := NewRequirements()
	r.Require("/api/files", "files:read")

	got := r.Required("/api/files")
	got["injected"] = struct{}{}

	if r.Required("/api/files").Contains("injected") {
		t.Error("Required() must return a copy, not the registry's set")
	}
	if r.Required("/missing").Len() != 0 {
		t.Error("Required() for an unregistered endpoint should be empty")
	}
}
