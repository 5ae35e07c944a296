package token

import (
	"errors"
	"strings"
	"testing"
)

func TestNewOpaque(t *testing.T) {
	tok := NewOpaque()

	if len(tok) != 43 {
		t.Errorf("NewOpaque() length = %d, want 43", len(tok))
	}

	const allowed = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
	for _, r := range tok {
		if !strings.ContainsRune(allowed, r) {
			t.Errorf("NewOpaque() contains invalid character %q", r)
		}
	}
}

func TestNewOpaqueUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := NewOpaque()
		if seen[tok] {
			t.Fatal("NewOpaque() produced a duplicate")
		}
		seen[tok] = true
	}
}

func TestOpaqueCodec_Mint(t *testing.T) {
	codec := NewOpaqueCodec()

	tok, err := codec.Mint(Claims{ID: "ignored", Subject: "user-1"})
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if len(tok) != 43 {
		t.Errorf("Mint() token length = %d, want 43", len(tok))
	}

	other, err := codec.Mint(Claims{})
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if tok == other {
		t.Error("Mint() should produce unique tokens")
	}
}

func TestOpaqueCodec_Decode(t *testing.T) {
	codec := NewOpaqueCodec()

	_, err := codec.Decode("anything")
	if !errors.Is(err, ErrNotSelfContained) {
		t.Errorf("Decode() error = %v, want ErrNotSelfContained", err)
	}
}
