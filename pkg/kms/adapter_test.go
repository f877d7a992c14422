package kms

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func TestGenerateKeySize(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		t.Errorf("key size: got %d, want %d", len(key), chacha20poly1305.KeySize)
	}
	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("two generated keys are identical")
	}
}

func TestAEADRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	plaintext := []byte(`{"uid":"abcd1234","content":"hello"}`)
	sealed, err := AEADSeal(plaintext, key)
	if err != nil {
		t.Fatalf("AEADSeal failed: %v", err)
	}
	if bytes.Contains(sealed, []byte("hello")) {
		t.Error("plaintext visible in sealed blob")
	}
	opened, err := AEADOpen(sealed, key)
	if err != nil {
		t.Fatalf("AEADOpen failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("round trip mismatch: %s", opened)
	}
}

func TestAEADNonceFresh(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	a, err := AEADSeal([]byte("same input"), key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := AEADSeal([]byte("same input"), key)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext are identical, nonce reuse")
	}
}

func TestAEADOpenRejectsTamper(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	sealed, err := AEADSeal([]byte("payload"), key)
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0x01
	if _, err := AEADOpen(sealed, key); err == nil {
		t.Fatal("tampered ciphertext accepted")
	}
}

func TestAEADOpenRejectsWrongKey(t *testing.T) {
	key, _ := GenerateKey()
	other, _ := GenerateKey()
	sealed, err := AEADSeal([]byte("payload"), key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AEADOpen(sealed, other); err == nil {
		t.Fatal("wrong key accepted")
	}
}

func TestAEADOpenRejectsShortBlob(t *testing.T) {
	key, _ := GenerateKey()
	if _, err := AEADOpen([]byte("tiny"), key); err == nil {
		t.Fatal("truncated blob accepted")
	}
}

func TestEnvProviderRoundTrip(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("KMS_LOCAL_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	ctx := context.Background()
	a, err := NewAdapter(ctx)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	ct, err := a.Encrypt(ctx, []byte("secret material"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	pt, err := a.Decrypt(ctx, ct)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(pt) != "secret material" {
		t.Errorf("round trip mismatch: %s", pt)
	}
}

func TestLoadStoreKeyFromEnvProvider(t *testing.T) {
	raw := make([]byte, chacha20poly1305.KeySize)
	for i := range raw {
		raw[i] = byte(i)
	}
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("KMS_LOCAL_KEY", base64.StdEncoding.EncodeToString(raw))
	ctx := context.Background()
	a, err := NewAdapter(ctx)
	if err != nil {
		t.Fatalf("NewAdapter failed: %v", err)
	}
	key, err := LoadStoreKey(ctx, a, "PASTE_STORE_KEY")
	if err != nil {
		t.Fatalf("LoadStoreKey failed: %v", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		t.Errorf("store key size: got %d", len(key))
	}
}
