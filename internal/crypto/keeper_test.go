package crypto

import (
	"encoding/hex"
	"strings"
	"testing"
)

func mustKeeper(t *testing.T, hexKey string) *Keeper {
	t.Helper()
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	k, err := NewKeeper(key)
	if err != nil {
		t.Fatalf("new keeper: %v", err)
	}
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	k := mustKeeper(t, strings.Repeat("00", 32))

	for _, plain := range []string{"x", "sk-abc123", "a much longer api key with spaces"} {
		enc, err := k.EncryptString(plain)
		if err != nil {
			t.Fatalf("encrypt %q: %v", plain, err)
		}
		if parts := strings.Split(enc, ":"); len(parts) != 3 {
			t.Fatalf("expected 3 colon-joined parts, got %d in %q", len(parts), enc)
		}
		out, err := k.DecryptString(enc)
		if err != nil {
			t.Fatalf("decrypt %q: %v", plain, err)
		}
		if out != plain {
			t.Fatalf("round trip mismatch: got %q want %q", out, plain)
		}
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	k1 := mustKeeper(t, strings.Repeat("00", 32))
	k2 := mustKeeper(t, strings.Repeat("01", 32))

	enc, err := k1.EncryptString("secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := k2.DecryptString(enc); err == nil {
		t.Fatalf("expected decrypt under wrong key to fail")
	}
}

func TestDecryptMalformedEncoding(t *testing.T) {
	k := mustKeeper(t, strings.Repeat("00", 32))

	for _, enc := range []string{"", "onlyone", "two:parts", "a:b:c:d", "zz:zz:zz"} {
		if _, err := k.DecryptString(enc); err == nil {
			t.Fatalf("expected error for malformed input %q", enc)
		}
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	k := mustKeeper(t, strings.Repeat("00", 32))

	enc, err := k.EncryptString("secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	parts := strings.Split(enc, ":")
	// Flip a nibble in the ciphertext part.
	ct := []byte(parts[2])
	if ct[0] == 'a' {
		ct[0] = 'b'
	} else {
		ct[0] = 'a'
	}
	parts[2] = string(ct)
	if _, err := k.DecryptString(strings.Join(parts, ":")); err == nil {
		t.Fatalf("expected decrypt of tampered ciphertext to fail")
	}
}

func TestNonceIsFreshPerCall(t *testing.T) {
	k := mustKeeper(t, strings.Repeat("00", 32))

	a, err := k.EncryptString("same input")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := k.EncryptString("same input")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct ciphertexts for repeated plaintext")
	}
}
