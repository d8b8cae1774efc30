package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/planboard/notify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestSignVerify_RoundTrip(t *testing.T) {
	key := testKey(t)
	p := NewProviderFromKeys(key, &key.PublicKey, time.Hour)

	tok, err := p.Sign("u1", "admin")
	require.NoError(t, err)
	claims, err := p.Verify(tok)

	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerify_Expired(t *testing.T) {
	key := testKey(t)
	p := NewProviderFromKeys(key, &key.PublicKey, -time.Minute)

	tok, err := p.Sign("u1", "user")
	require.NoError(t, err)
	_, err = p.Verify(tok)

	assert.Error(t, err)
}

func TestVerify_WrongKey(t *testing.T) {
	signer := testKey(t)
	other := testKey(t)
	tok, err := NewProviderFromKeys(signer, &signer.PublicKey, time.Hour).Sign("u1", "user")
	require.NoError(t, err)

	_, err = NewProviderFromKeys(nil, &other.PublicKey, time.Hour).Verify(tok)

	assert.Error(t, err)
}

func TestSign_VerifyOnlyProvider(t *testing.T) {
	key := testKey(t)
	_, err := NewProviderFromKeys(nil, &key.PublicKey, time.Hour).Sign("u1", "user")
	assert.Error(t, err)
}

func TestNewProvider_PublicKeyOnly(t *testing.T) {
	key := testKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	dir := t.TempDir()
	pubPath := filepath.Join(dir, "public_key.pem")
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	p, err := NewProvider(&config.Config{
		JWTPublicKeyPath:  pubPath,
		JWTPrivateKeyPath: filepath.Join(dir, "missing.pem"),
		JWTExpiry:         time.Hour,
	})

	require.NoError(t, err)
	assert.Nil(t, p.privateKey)
}
