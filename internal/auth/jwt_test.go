package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Middleware(secret), func(c *gin.Context) {
		c.String(http.StatusOK, GetActor(c))
	})
	return r
}

func TestMiddleware_ValidToken(t *testing.T) {
	token, err := GenerateToken(secret, "clerk-7", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clerk-7", rec.Body.String())
}

func TestMiddleware_Rejects(t *testing.T) {
	wrongKey, err := GenerateToken([]byte("other"), "clerk-7", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(secret, "clerk-7", -time.Minute)
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"wrong key":      "Bearer " + wrongKey,
		"expired":        "Bearer " + expired,
		"garbage":        "Bearer not-a-jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			newRouter().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestParseToken_RequiresSubject(t *testing.T) {
	token, err := GenerateToken(secret, "", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(secret, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
