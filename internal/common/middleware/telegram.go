package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"outlivion-contest-backend/internal/common/logger"
)

// extractInitData достает init data из заголовков запроса.
// Фронтенд шлет X-Telegram-Init-Data, некоторые клиенты — Authorization.
func extractInitData(c *gin.Context) string {
	if v := c.GetHeader("X-Telegram-Init-Data"); v != "" {
		return v
	}
	if v := c.GetHeader("Authorization"); v != "" {
		return strings.TrimPrefix(v, "tma ")
	}
	return ""
}

func TelegramInitDataMiddleware(botToken string, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		initDataQuery := extractInitData(c)
		if initDataQuery == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Telegram initData"})
			return
		}

		if botToken == "" {
			logger.Error().Msg("BOT_TOKEN is not configured")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
			return
		}

		// Disable expiration check
		expIn := time.Duration(0)

		if err := initdata.Validate(initDataQuery, botToken, expIn); err != nil {
			if debug {
				logger.Debug().Err(err).Msg("init data validation failed")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Telegram initData signature"})
			return
		}

		parsedData, err := initdata.Parse(initDataQuery)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to parse init data"})
			return
		}

		c.Set("user", parsedData.User)
		c.Next()
	}
}
