package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pagemorph/pagemorph/internal/models"
)

// Claims is the payload of every access credential. It embeds the full
// Subject so downstream components never need a user lookup on the hot
// path; revocation is checked against the session store separately.
type Claims struct {
	UserID      uuid.UUID   `json:"user_id"`
	WorkspaceID uuid.UUID   `json:"workspace_id"`
	SessionID   uuid.UUID   `json:"session_id"`
	Role        models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Subject converts the claims into the value threaded through every
// downstream call.
func (c *Claims) Subject() models.Subject {
	return models.Subject{
		UserID:      c.UserID,
		WorkspaceID: c.WorkspaceID,
		Role:        c.Role,
		SessionID:   c.SessionID,
	}
}

// GenerateAccessToken creates a signed HS256 access credential.
func GenerateAccessToken(subject models.Subject, secret string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		UserID:      subject.UserID,
		WorkspaceID: subject.WorkspaceID,
		SessionID:   subject.SessionID,
		Role:        subject.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "pagemorph",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

// ParseAccessToken validates signature, expiry and signing method, and
// returns the embedded claims.
func ParseAccessToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Reject anything but HMAC before the signature is checked;
			// accepting "none" or RSA here would let a forged token in.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
