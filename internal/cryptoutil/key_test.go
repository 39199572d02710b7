package cryptoutil

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestParseKeyBase64(t *testing.T) {
	key := make([]byte, 32)
	encoded := base64.StdEncoding.EncodeToString(key)
	parsed, err := ParseKey(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != 32 {
		t.Fatalf("unexpected key length: %d", len(parsed))
	}
}

func TestParseKeyBadLength(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(make([]byte, 16))
	if _, err := ParseKey(encoded); err == nil {
		t.Fatalf("expected error for short key")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	plain := []byte("global:\n  log_level: debug\n")
	sealed, err := EncryptConfig(plain, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	opened, err := DecryptConfig(sealed, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}
