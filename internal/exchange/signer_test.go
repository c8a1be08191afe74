package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
)

func generateTestSigner(t *testing.T) (*Signer, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})

	signer, err := NewSigner("test-api-key", string(pemBytes))
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	return signer, key
}

func TestSignMessageExcludesQuery(t *testing.T) {
	t.Parallel()
	signer, key := generateTestSigner(t)

	headers, err := signer.Sign("get", "/a/b?x=1", 1_700_000_000_000)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if headers.AccessKey != "test-api-key" {
		t.Errorf("AccessKey = %q, want test-api-key", headers.AccessKey)
	}
	if headers.AccessTimestamp != "1700000000000" {
		t.Errorf("AccessTimestamp = %q, want 1700000000000", headers.AccessTimestamp)
	}

	wantMessage := "1700000000000GET/a/b"
	digest := sha256.Sum256([]byte(wantMessage))

	sig, err := base64.StdEncoding.DecodeString(headers.AccessSignature)
	if err != nil {
		t.Fatalf("decoding signature: %v", err)
	}

	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: sha256.Size,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		t.Errorf("signature does not verify against expected message %q: %v", wantMessage, err)
	}
}

func TestSignRejectsInvalidPEM(t *testing.T) {
	t.Parallel()
	if _, err := NewSigner("k", "not a pem key"); err == nil {
		t.Error("expected error for non-PEM input")
	}
}

func TestSignNeverIncludesQuestionMarkInMessage(t *testing.T) {
	t.Parallel()
	signer, key := generateTestSigner(t)

	headers, err := signer.Sign("POST", "/trade-api/v2/orders?cursor=abc&limit=10", 42)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	wantMessage := "42POST/trade-api/v2/orders"
	digest := sha256.Sum256([]byte(wantMessage))
	sig, _ := base64.StdEncoding.DecodeString(headers.AccessSignature)

	if err := rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: sha256.Size,
		Hash:       crypto.SHA256,
	}); err != nil {
		t.Errorf("signature does not verify against query-stripped message: %v", err)
	}
}
