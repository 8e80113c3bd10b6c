package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"outlivion-contest-backend/internal/common/logger"
	"outlivion-contest-backend/internal/features/user/service"
)

// AutoCreateUser заводит (или обновляет) пользователя по данным из initData
// и кладет внутренний user_id в контекст запроса.
func AutoCreateUser(userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			c.Next()
			return
		}

		telegramUser, ok := user.(initdata.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid user data format"})
			return
		}

		u, err := userService.GetOrCreateByTelegram(c.Request.Context(), telegramUser.ID, telegramUser.Username, telegramUser.FirstName, telegramUser.LastName)
		if err != nil {
			logger.Error().Err(err).Int64("tg_id", telegramUser.ID).Msg("failed to auto-create user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create/update user"})
			return
		}

		c.Set("user_id", u.ID)
		c.Set("tg_id", u.TgID)
		c.Next()
	}
}
