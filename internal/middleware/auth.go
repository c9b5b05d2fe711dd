package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"consultation-service/internal/models"
)

// Claims are the verified token claims the service relies on.
type Claims struct {
	UserID int64
	Role   models.Role
}

// TokenVerifier validates a bearer token and extracts its claims.
// Token issuance belongs to the external auth collaborator.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

var ErrInvalidToken = errors.New("invalid token")

// JWTVerifier verifies HS256 tokens issued by the auth service.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier around the shared signing secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the caller's identity.
func (v *JWTVerifier) Verify(token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	sub, err := mapClaims.GetSubject()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID == 0 {
		return Claims{}, ErrInvalidToken
	}

	role, _ := mapClaims["role"].(string)
	switch models.Role(role) {
	case models.RoleSeeker, models.RolePractitioner, models.RoleOperator:
	default:
		return Claims{}, ErrInvalidToken
	}

	return Claims{UserID: userID, Role: models.Role(role)}, nil
}

// SignToken issues a short-lived HS256 token. Used by fixtures and tests;
// production tokens come from the auth service.
func SignToken(secret string, userID int64, role models.Role, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"role": string(role),
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	})
	return token.SignedString([]byte(secret))
}

// AuthMiddleware validates the Authorization header and stores the caller's
// identity on the request context.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Next()
	}
}

// CallerFromContext reads the identity stored by AuthMiddleware.
func CallerFromContext(c *gin.Context) Claims {
	claims := Claims{}
	if v, ok := c.Get("userID"); ok {
		if id, ok := v.(int64); ok {
			claims.UserID = id
		}
	}
	if v, ok := c.Get("userRole"); ok {
		if role, ok := v.(models.Role); ok {
			claims.Role = role
		}
	}
	return claims
}
