package models

import (
	"time"

	contestmodels "outlivion-contest-backend/internal/features/contest/models"
)

// ContestSummary — сводка по конкурсу для реферера.
// Производная проекция: источник правды всегда ledger + event store.
type ContestSummary struct {
	Contest        *contestmodels.Contest `json:"contest"`
	RefLink        string                 `json:"ref_link"`
	TicketsTotal   int                    `json:"tickets_total"`
	InvitedTotal   int                    `json:"invited_total"`
	QualifiedTotal int                    `json:"qualified_total"`
	PendingTotal   int                    `json:"pending_total"`
}

// ReferralFriend — строка списка приглашенных друзей.
type ReferralFriend struct {
	ID                     string         `json:"id"`
	Name                   *string        `json:"name"`
	TgUsername             *string        `json:"tg_username"`
	Status                 RefEventStatus `json:"status"`
	StatusReason           *string        `json:"status_reason"`
	TicketsFromFriendTotal int            `json:"tickets_from_friend_total"`
	BoundAt                time.Time      `json:"bound_at"`
}

// TicketHistoryEntry — строка истории начислений билетов.
type TicketHistoryEntry struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Delta       int       `json:"delta"`
	Label       string    `json:"label"`
	InviteeName *string   `json:"invitee_name"`
}
