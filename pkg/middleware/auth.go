package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
)

// Context keys set by JWTAuth
const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
	ContextKeyRole   = "role"
)

// Roles understood by the portal
const (
	RoleHost  = "host"
	RoleAdmin = "admin"
	RoleGuest = "guest"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("token carries an unknown role")
)

// Claims issued by the identity provider
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig configures token verification
type AuthConfig struct {
	Secret string
	Issuer string
	// Optional lets anonymous requests through as guests
	Optional bool
}

// JWTAuth verifies an HS256 bearer token and stores the caller identity in the gin context.
func JWTAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			if cfg.Optional {
				c.Set(ContextKeyRole, RoleGuest)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", err.Error()))
			return
		}

		claims, err := ParseToken(raw, cfg.Secret, cfg.Issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorBody("UNAUTHORIZED", err.Error()))
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}

// ParseToken validates signature, expiry, issuer and role
func ParseToken(raw, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch claims.Role {
	case RoleHost, RoleAdmin:
	default:
		return nil, ErrInvalidRole
	}
	if claims.UserID == "" && claims.Email == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return claims, nil
}

// GenerateToken signs claims with HS256. Used by tooling and tests.
func GenerateToken(secret, issuer, userID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// GetUserID returns the authenticated user id, if any
func GetUserID(c *gin.Context) (string, bool) {
	v := c.GetString(ContextKeyUserID)
	return v, v != ""
}

// GetEmail returns the authenticated email, if any
func GetEmail(c *gin.Context) string {
	return c.GetString(ContextKeyEmail)
}

// GetRole returns the caller role, defaulting to guest
func GetRole(c *gin.Context) string {
	if r := c.GetString(ContextKeyRole); r != "" {
		return r
	}
	return RoleGuest
}
