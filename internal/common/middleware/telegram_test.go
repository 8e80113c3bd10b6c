package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupAuthRouter(botToken string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TelegramInitDataMiddleware(botToken, false))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestTelegramInitDataMiddleware_MissingInitData(t *testing.T) {
	router := setupAuthRouter("test-token")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Missing Telegram initData"}`, w.Body.String())
}

func TestTelegramInitDataMiddleware_InvalidSignature(t *testing.T) {
	router := setupAuthRouter("test-token")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Telegram-Init-Data", "query_id=1&user=%7B%22id%22%3A1%7D&auth_date=1700000000&hash=deadbeef")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid Telegram initData signature"}`, w.Body.String())
}

func TestTelegramInitDataMiddleware_AuthorizationHeader(t *testing.T) {
	router := setupAuthRouter("test-token")

	// Префикс tma отрезается, дальше подпись все равно не пройдет
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "tma query_id=1&auth_date=1700000000&hash=deadbeef")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid Telegram initData signature"}`, w.Body.String())
}

func TestExtractInitData(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Telegram-Init-Data", "primary")
	c.Request.Header.Set("Authorization", "tma secondary")
	assert.Equal(t, "primary", extractInitData(c))

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c2.Request.Header.Set("Authorization", "tma secondary")
	assert.Equal(t, "secondary", extractInitData(c2))
}
