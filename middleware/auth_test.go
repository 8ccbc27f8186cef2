package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"safimatch/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func generateJWT(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	claims := Claims{
		Role:  role,
		Email: "ana@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newTestRouter(invalid func(uuid.UUID)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	InitAuth(testSecret, invalid)

	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		ident, ok := GetIdentity(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, ident.UserID.String())
	})
	r.GET("/ws", QueryTokenAuth(), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.String(http.StatusOK, userID.String())
	})
	return r
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	userID := uuid.New()
	r := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+generateJWT(t, userID, "authenticated"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	r := newTestRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareBadSignature(t *testing.T) {
	r := newTestRouter(nil)
	token := generateJWT(t, uuid.New(), "authenticated")
	InitAuth("other-secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRolelessTokenSignsOut(t *testing.T) {
	userID := uuid.New()
	var signedOut uuid.UUID
	r := newTestRouter(func(id uuid.UUID) { signedOut = id })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+generateJWT(t, userID, ""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, userID, signedOut)
}

func TestQueryTokenAuth(t *testing.T) {
	userID := uuid.New()
	r := newTestRouter(nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+generateJWT(t, userID, "authenticated"), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateTokenIdentity(t *testing.T) {
	InitAuth(testSecret, nil)
	userID := uuid.New()
	token := generateJWT(t, userID, "authenticated")

	ident, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{UserID: userID, Email: "ana@example.com", Role: "authenticated", AccessToken: token}, ident)
}

func TestTimeoutMapsToGatewayTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlerMiddleware())
	r.GET("/slow", Timeout(20*time.Millisecond), func(c *gin.Context) {
		<-c.Request.Context().Done()
		c.Error(c.Request.Context().Err())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestSessionAuthAllowsExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	InitAuth(testSecret, nil)
	userID := uuid.New()

	claims := Claims{
		Role: "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	r := gin.New()
	r.POST("/sessao", SessionAuth(), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.String(http.StatusOK, userID.String())
	})
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/sessao", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
