package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultation-service/internal/models"
)

const testSecret = "test-secret-at-least-32-characters!!"

func TestVerifyRoundTrip(t *testing.T) {
	token, err := SignToken(testSecret, 42, models.RolePractitioner, time.Hour)
	require.NoError(t, err)

	claims, err := NewJWTVerifier(testSecret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, models.RolePractitioner, claims.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := SignToken("some-other-secret-also-32-chars!!!!!", 42, models.RoleSeeker, time.Hour)
	require.NoError(t, err)

	_, err = NewJWTVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	token, err := SignToken(testSecret, 42, models.RoleSeeker, -time.Minute)
	require.NoError(t, err)

	_, err = NewJWTVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	token, err := SignToken(testSecret, 42, models.Role("admin"), time.Hour)
	require.NoError(t, err)

	_, err = NewJWTVerifier(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewJWTVerifier(testSecret).Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func authTestRouter(verifier TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuthMiddleware(verifier))
	router.GET("/whoami", func(c *gin.Context) {
		caller := CallerFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID, "role": caller.Role})
	})
	return router
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	token, err := SignToken(testSecret, 42, models.RoleSeeker, time.Hour)
	require.NoError(t, err)

	router := authTestRouter(NewJWTVerifier(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":42`)
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	router := authTestRouter(NewJWTVerifier(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectsNonBearerScheme(t *testing.T) {
	router := authTestRouter(NewJWTVerifier(testSecret))
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
