package crypto

import "testing"

func TestTokenCipher_SealOpen(t *testing.T) {
	c, err := NewTokenCipher([]byte("short-secret"))
	if err != nil {
		t.Fatalf("NewTokenCipher: %v", err)
	}

	sealed, err := c.Seal("ya29.refresh")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "ya29.refresh" {
		t.Fatal("expected ciphertext to differ from plaintext")
	}

	plain, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "ya29.refresh" {
		t.Errorf("Open = %q", plain)
	}
}

func TestTokenCipher_OpenOrPlain(t *testing.T) {
	c, _ := NewTokenCipher([]byte("k"))
	if got := c.OpenOrPlain("legacy-plain-token"); got != "legacy-plain-token" {
		t.Errorf("OpenOrPlain = %q", got)
	}

	var nilCipher *TokenCipher
	if got := nilCipher.OpenOrPlain("x"); got != "x" {
		t.Errorf("nil cipher OpenOrPlain = %q", got)
	}
}

func TestNewTokenCipher_EmptySecret(t *testing.T) {
	if _, err := NewTokenCipher(nil); err == nil {
		t.Error("expected error for empty secret")
	}
}
