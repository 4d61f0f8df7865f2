package authtest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const testSubject = "user-1"

func (p *Provider) createAccessToken(scope string) (string, error) {
	now := NowTimeFunc()
	return p.keys.sign(jwt.MapClaims{
		"iss":       p.Issuer(),
		"sub":       testSubject,
		"aud":       p.clientID,
		"client_id": p.clientID,
		"scope":     scope,
		"iat":       now.Unix(),
		"exp":       now.Add(p.accessTokenTTL).Unix(),
		"jti":       uuid.New().String(), // unique per issue, so a refreshed token never equals the old one
	})
}

func (p *Provider) createIDToken(nonce string) (string, error) {
	now := NowTimeFunc()
	claims := jwt.MapClaims{
		"iss":   p.Issuer(),
		"sub":   testSubject,
		"aud":   p.clientID,
		"email": "ada@example.com",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"jti":   uuid.New().String(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return p.keys.sign(claims)
}

func createRefreshToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(tokenBytes), nil
}
