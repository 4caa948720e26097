package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"
)

func newTestService(t *testing.T, accessTTL, refreshTTL time.Duration) *AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicDER,
	})

	service, err := NewAuthService(privatePEM, publicPEM, accessTTL, refreshTTL)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return service
}

func TestPasswordHashRoundTrip(t *testing.T) {
	service := newTestService(t, time.Minute, time.Hour)

	hash, err := service.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash equals plaintext")
	}
	if !service.CheckPasswordHash("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if service.CheckPasswordHash("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestTokenPairRoundTrip(t *testing.T) {
	service := newTestService(t, time.Minute, time.Hour)

	pair, err := service.GenerateTokenPair(42)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	access, err := service.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if access.UserID != 42 || access.TokenType != "access" {
		t.Errorf("access claims = %+v", access)
	}

	refresh, err := service.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if refresh.UserID != 42 || refresh.TokenType != "refresh" {
		t.Errorf("refresh claims = %+v", refresh)
	}
	if refresh.ID == "" {
		t.Error("refresh token missing jti")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	service := newTestService(t, -time.Minute, time.Hour)

	pair, err := service.GenerateTokenPair(7)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if _, err := service.ValidateToken(pair.AccessToken); err == nil {
		t.Error("expired access token accepted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	service := newTestService(t, time.Minute, time.Hour)
	if _, err := service.ValidateToken(""); err == nil {
		t.Error("empty token accepted")
	}
	if _, err := service.ValidateToken("not.a.jwt"); err == nil {
		t.Error("garbage token accepted")
	}
}
