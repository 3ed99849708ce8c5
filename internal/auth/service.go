package auth

import (
	"errors"
	"fmt"

	"chat-relay/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingToken = errors.New("missing token")

// Service verifies handshake tokens issued by the external identity
// provider. With no secret configured every connection is accepted
// unverified.
type Service struct {
	secret []byte
}

func NewService(cfg *config.Config) *Service {
	return &Service{secret: cfg.JWT.Secret}
}

func (s *Service) Enabled() bool {
	return len(s.secret) > 0
}

// VerifiedIdentityID returns the identity id a connection may register, or
// "" when verification is disabled.
func (s *Service) VerifiedIdentityID(tokenString string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	if tokenString == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}
