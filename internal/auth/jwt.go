// Package auth - jwt.go handles session token creation, signing, and
// verification using a shared secret, including lazy secret initialization
// and claims parsing. Session tokens are issued to human admins after a
// successful OTP login; machine callers use API keys instead.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
	jwtSecretErr  error
)

// Claims represents the session JWT claims. The role tag and its scope id
// round-trip through the token so scope checks after login do not need a
// user lookup on every request; the auth middleware still re-reads the user
// row to honour deactivation immediately.
type Claims struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	CountryID      string `json:"country_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	jwt.RegisteredClaims
}

// isDevMode checks if we're in development mode (duplicated here to avoid import cycle)
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	ginMode := os.Getenv("GIN_MODE")
	return devMode == "true" || devMode == "1" || ginMode == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less secure but functional secret
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// ValidateJWTSecret checks that the JWT secret is properly configured.
// In production, this fails if FEEDBASE_JWT_SECRET is not set. In dev mode
// it generates a random secret and logs a warning. Call at startup.
func ValidateJWTSecret() error {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv("FEEDBASE_JWT_SECRET")

		if secret == "" {
			if isDevMode() {
				jwtSecret = generateRandomSecret()
				log.Printf("WARNING: FEEDBASE_JWT_SECRET not set. Using auto-generated secret for development.")
				log.Printf("WARNING: Sessions will not persist across restarts. Set FEEDBASE_JWT_SECRET for persistent sessions.")
			} else {
				jwtSecretErr = errors.New("SECURITY ERROR: FEEDBASE_JWT_SECRET environment variable is required in production. " +
					"Generate a secure secret with: openssl rand -hex 32")
			}
			return
		}

		if len(secret) < 32 {
			log.Printf("WARNING: FEEDBASE_JWT_SECRET is shorter than recommended 32 characters. Consider using a longer secret.")
		}

		jwtSecret = secret
	})

	return jwtSecretErr
}

// GenerateJWT creates a session token for an authenticated user.
func GenerateJWT(userID, email string, role Role, expiresIn time.Duration) (string, error) {
	if expiresIn == 0 {
		expiresIn = 1 * time.Hour
	}

	claims := &Claims{
		UserID:         userID,
		Email:          email,
		Role:           string(role.Kind),
		CountryID:      role.CountryID,
		OrganizationID: role.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "feedbase",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if err := ValidateJWTSecret(); err != nil {
		return "", err
	}
	return token.SignedString([]byte(jwtSecret))
}

// ValidateJWT parses and verifies a session token, returning its claims.
func ValidateJWT(tokenString string) (*Claims, error) {
	if err := ValidateJWTSecret(); err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// RoleFromClaims rebuilds the tagged Role value from session claims.
func RoleFromClaims(c *Claims) Role {
	switch RoleKind(c.Role) {
	case RoleSuperadmin:
		return Role{Kind: RoleSuperadmin}
	case RoleCountryAdmin:
		return Role{Kind: RoleCountryAdmin, CountryID: c.CountryID}
	case RoleOrganizationAdmin:
		return Role{Kind: RoleOrganizationAdmin, OrganizationID: c.OrganizationID}
	}
	return Role{Kind: RoleMember}
}
