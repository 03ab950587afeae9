package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("secret", "issuer", time.Hour)

	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)
	r.GET("/protected", AuthMiddleware(m), func(c *gin.Context) { c.Status(http.StatusOK) })
	c.Request = httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, c.Request)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("secret", "issuer", time.Hour)
	userID := uuid.New()
	token, err := m.GenerateToken(userID, "op@example.com", "admin")
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/protected", AuthMiddleware(m), func(c *gin.Context) {
		gotID, ok := GetUserIDFromContext(c)
		assert.True(t, ok)
		assert.Equal(t, userID, gotID)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthorizationHeader, BearerPrefix+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("secret", "issuer", time.Hour)

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/protected", AuthMiddleware(m), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthorizationHeader, "Basic abc123")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleMiddleware_InsufficientPermissions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/admin", func(c *gin.Context) {
		c.Set(UserRoleKey, "viewer")
		c.Next()
	}, RoleMiddleware("admin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRoleMiddleware_Allowed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/admin", func(c *gin.Context) {
		c.Set(UserRoleKey, "admin")
		c.Next()
	}, RoleMiddleware("admin", "superadmin"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalAuthMiddleware_NoHeaderStillProceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewJWTManager("secret", "issuer", time.Hour)

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/open", OptionalAuthMiddleware(m), func(c *gin.Context) {
		_, ok := GetUserIDFromContext(c)
		assert.False(t, ok)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
