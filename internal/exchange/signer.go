package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
)

// Signer produces the three KALSHI-ACCESS-* headers required on every
// authenticated request.
type Signer struct {
	apiKey string
	key    *rsa.PrivateKey
}

// NewSigner parses a PEM-encoded RSA private key and binds it to apiKey.
func NewSigner(apiKey, privateKeyPEM string) (*Signer, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("private key is not valid PEM")
	}

	key, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing RSA private key: %w", err)
	}
	return &Signer{apiKey: apiKey, key: key}, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS8 key is not RSA")
	}
	return rsaKey, nil
}

// SignedHeaders is the set of headers required on every authenticated request.
type SignedHeaders struct {
	AccessKey       string
	AccessSignature string
	AccessTimestamp string
}

// Sign builds the signed message for method+path and returns the header
// values to attach to the outbound request. path is truncated at the first
// "?" before signing; the caller sends the full path (with query) on the
// wire regardless. timestampMs is the caller-supplied millisecond epoch, so
// that the header and the signed message always agree, and so retries can
// pass a fresh timestamp each attempt.
func (s *Signer) Sign(method, path string, timestampMs int64) (SignedHeaders, error) {
	pathWithoutQuery := path
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		pathWithoutQuery = path[:idx]
	}

	message := fmt.Sprintf("%d%s%s", timestampMs, strings.ToUpper(method), pathWithoutQuery)

	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: sha256.Size,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return SignedHeaders{}, fmt.Errorf("signing request: %w", err)
	}

	return SignedHeaders{
		AccessKey:       s.apiKey,
		AccessSignature: base64.StdEncoding.EncodeToString(sig),
		AccessTimestamp: fmt.Sprintf("%d", timestampMs),
	}, nil
}
