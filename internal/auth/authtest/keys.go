// Package authtest builds throwaway RS256 key pairs for tests.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"resumeforge/internal/auth"
)

// KeyPair returns PEM encoded private and public keys.
func KeyPair(t *testing.T) (privatePEM, publicPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM
}

// Service returns an AuthService able to both issue and validate tokens.
func Service(t *testing.T) *auth.AuthService {
	t.Helper()
	priv, pub := KeyPair(t)
	svc, err := auth.NewAuthService(pub, priv, "https://idp.test", "resumeforge")
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}
