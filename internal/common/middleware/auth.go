package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"
)

func parseAdminIDs(raw []string) []int64 {
	var adminIDs []int64
	for _, idStr := range raw {
		if id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64); err == nil {
			adminIDs = append(adminIDs, id)
		}
	}
	return adminIDs
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Telegram initData"})
			return
		}

		c.Next()
	}
}

func RequireAdmin(adminIDsRaw []string) gin.HandlerFunc {
	adminIDs := parseAdminIDs(adminIDsRaw)

	return func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Telegram initData"})
			return
		}

		telegramUser, ok := user.(initdata.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid user data format"})
			return
		}

		isAdmin := false
		for _, adminID := range adminIDs {
			if telegramUser.ID == adminID {
				isAdmin = true
				break
			}
		}

		if !isAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}

		c.Next()
	}
}

// RequireWebhookSecret защищает вебхуки платёжного провайдера общим секретом.
// Вебхуки приходят от сервера провайдера, initData у них нет.
func RequireWebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" || c.GetHeader("X-Webhook-Secret") != secret {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook secret"})
			return
		}

		c.Next()
	}
}
