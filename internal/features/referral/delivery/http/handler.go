package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"outlivion-contest-backend/internal/features/referral/models"
	referralservice "outlivion-contest-backend/internal/features/referral/service"
)

type ReferralHandler struct {
	service      referralservice.ReferralService
	defaultLimit int
}

func NewReferralHandler(service referralservice.ReferralService, defaultLimit int) *ReferralHandler {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &ReferralHandler{
		service:      service,
		defaultLimit: defaultLimit,
	}
}

func (h *ReferralHandler) RegisterRoutes(router *gin.RouterGroup) {
	referral := router.Group("/referral")
	{
		referral.GET("/summary", h.getSummary)
		referral.GET("/friends", h.getFriends)
		referral.GET("/tickets", h.getTickets)
		referral.POST("/bind", h.bind)
	}
}

// contestID достает обязательный query-параметр contest_id.
func contestID(c *gin.Context) (string, bool) {
	id := c.Query("contest_id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing contest_id parameter"})
		return "", false
	}
	return id, true
}

// @Summary Referral contest summary
// @Description Tickets, invited/qualified/pending counters and the referral link for the authenticated user
// @Tags referral
// @Produce json
// @Security TelegramInitData
// @Param contest_id query string true "Contest ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Missing contest_id"
// @Failure 401 {object} map[string]string "Not authorized"
// @Router /referral/summary [get]
func (h *ReferralHandler) getSummary(c *gin.Context) {
	id, ok := contestID(c)
	if !ok {
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), id, c.GetString("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "summary": summary})
}

// @Summary Invited friends
// @Description Friends bound to the authenticated referrer in the contest
// @Tags referral
// @Produce json
// @Security TelegramInitData
// @Param contest_id query string true "Contest ID"
// @Param limit query int false "Max rows" default(50)
// @Success 200 {object} map[string]interface{}
// @Router /referral/friends [get]
func (h *ReferralHandler) getFriends(c *gin.Context) {
	id, ok := contestID(c)
	if !ok {
		return
	}

	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	friends, err := h.service.GetFriends(c.Request.Context(), id, c.GetString("user_id"), limit)
	if err != nil {
		c.Error(err)
		return
	}

	if friends == nil {
		friends = []*models.ReferralFriend{}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "friends": friends})
}

// @Summary Ticket history
// @Description Ledger-backed ticket history for the authenticated user
// @Tags referral
// @Produce json
// @Security TelegramInitData
// @Param contest_id query string true "Contest ID"
// @Success 200 {object} map[string]interface{}
// @Router /referral/tickets [get]
func (h *ReferralHandler) getTickets(c *gin.Context) {
	id, ok := contestID(c)
	if !ok {
		return
	}

	tickets, err := h.service.GetTickets(c.Request.Context(), id, c.GetString("user_id"))
	if err != nil {
		c.Error(err)
		return
	}

	if tickets == nil {
		tickets = []*models.TicketHistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "tickets": tickets})
}

type bindRequest struct {
	ContestID   string                `json:"contest_id" binding:"required"`
	InviteeTgID int64                 `json:"invitee_tg_id" binding:"required"`
	Source      models.RefEventSource `json:"source" binding:"required,oneof=bot miniapp"`
}

// @Summary Bind invitee
// @Description Idempotently binds an invitee to the authenticated referrer; first touch wins
// @Tags referral
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body bindRequest true "Binding request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Validation error"
// @Router /referral/bind [post]
func (h *ReferralHandler) bind(c *gin.Context) {
	var input bindRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.service.BindInvitee(c.Request.Context(), input.ContestID, c.GetString("user_id"), input.InviteeTgID, input.Source)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "event": event})
}
