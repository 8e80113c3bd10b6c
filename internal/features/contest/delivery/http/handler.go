package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"outlivion-contest-backend/internal/common/middleware"
	"outlivion-contest-backend/internal/features/contest/models"
	contestservice "outlivion-contest-backend/internal/features/contest/service"
)

type ContestHandler struct {
	service  contestservice.ContestService
	adminIDs []string
}

func NewContestHandler(service contestservice.ContestService, adminIDs []string) *ContestHandler {
	return &ContestHandler{
		service:  service,
		adminIDs: adminIDs,
	}
}

func (h *ContestHandler) RegisterRoutes(router *gin.RouterGroup) {
	contest := router.Group("/contest")
	{
		contest.GET("/active", h.getActive)
	}

	contests := router.Group("/contests")
	contests.Use(middleware.RequireAdmin(h.adminIDs))
	{
		contests.POST("", h.create)
		contests.PUT("/:id", h.update)
		contests.POST("/:id/deactivate", h.deactivate)
	}
}

// @Summary Get active contest
// @Description Returns the currently active contest, or null when no contest is running
// @Tags contest
// @Produce json
// @Security TelegramInitData
// @Success 200 {object} map[string]interface{} "ok + contest (null when none active)"
// @Failure 401 {object} map[string]string "Not authorized"
// @Router /contest/active [get]
func (h *ContestHandler) getActive(c *gin.Context) {
	contest, err := h.service.GetActive(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	// Отсутствие активного конкурса — штатный пустой ответ, не ошибка
	if contest == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "contest": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "contest": contest})
}

// @Summary Create contest
// @Description Creates a new contest (admin only)
// @Tags contest
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body models.ContestCreate true "Contest definition"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Validation error"
// @Router /contests [post]
func (h *ContestHandler) create(c *gin.Context) {
	var input models.ContestCreate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contest, err := h.service.Create(c.Request.Context(), &input)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "contest": contest})
}

// @Summary Update contest rules
// @Description Rewrites the contest definition. Contests with referral events are immutable.
// @Tags contest
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Contest ID"
// @Param input body models.ContestCreate true "Contest definition"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "Contest has referral events"
// @Router /contests/{id} [put]
func (h *ContestHandler) update(c *gin.Context) {
	var input models.ContestCreate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contest, err := h.service.Update(c.Request.Context(), c.Param("id"), &input)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "contest": contest})
}

// @Summary Deactivate contest
// @Tags contest
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Contest ID"
// @Success 200 {object} map[string]interface{}
// @Router /contests/{id}/deactivate [post]
func (h *ContestHandler) deactivate(c *gin.Context) {
	if err := h.service.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
