package oauth

import (
	"encoding/json"
	"testing"
)

func TestTokenResponse_JSONOmitsAbsentFields(t *testing.T) {
	resp := &TokenResponse{
		AccessToken: "at-123",
		TokenType:   BearerTokenType,
		ExpiresIn:   3600,
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if _, ok := decoded["refresh_token"]; ok {
		t.Error("refresh_token must be absent when no refresh token was issued")
	}
	if _, ok := decoded["scope"]; ok {
		t.Error("scope must be absent when empty")
	}
	if decoded["token_type"] != "Bearer" {
		t.Errorf("token_type = %v, want Bearer", decoded["token_type"])
	}
	if decoded["expires_in"] != float64(3600) {
		t.Errorf("expires_in = %v, want 3600", decoded["expires_in"])
	}
}

func TestIntrospection_InactiveJSONRevealsNothing(t *testing.T) {
	data, err := json.Marshal(&Introspection{Active: false})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"active":false}`
	if string(data) != want {
		t.Errorf("inactive introspection = %s, want %s", data, want)
	}
}

func TestIntrospection_ActiveJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(&Introspection{
		Active:    true,
		Scope:     "read write",
		ClientID:  "client-1",
		Subject:   "user-1",
		TokenType: TokenTypeHintAccessToken,
		ExpiresAt: 1700000000,
		IssuedAt:  1699996400,
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	// RFC 7662 field names: sub, exp, iat.
	for _, field := range []string{"active", "scope", "client_id", "sub", "token_type", "exp", "iat"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("missing field %q in %s", field, data)
		}
	}
}
