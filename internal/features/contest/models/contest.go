package models

import (
	"errors"
	"time"
)

var (
	ErrInvalidWindow     = errors.New("contest starts_at must be before ends_at")
	ErrNegativeAttrDays  = errors.New("attribution_window_days must be non-negative")
	ErrContestImmutable  = errors.New("contest rules cannot change once referral events exist")
	ErrActiveContestOnly = errors.New("operation requires an active contest")
)

// Contest описывает конкурс: временное окно, окно атрибуции и версию правил.
type Contest struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	StartsAt              time.Time `json:"starts_at"`
	EndsAt                time.Time `json:"ends_at"`
	AttributionWindowDays int       `json:"attribution_window_days"`
	RulesVersion          string    `json:"rules_version"`
	IsActive              bool      `json:"is_active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Validate проверяет инварианты конкурса при создании.
func (c *Contest) Validate() error {
	if !c.StartsAt.Before(c.EndsAt) {
		return ErrInvalidWindow
	}
	if c.AttributionWindowDays < 0 {
		return ErrNegativeAttrDays
	}
	return nil
}

// ActiveAt сообщает, активен ли конкурс в указанный момент.
func (c *Contest) ActiveAt(now time.Time) bool {
	return c.IsActive && !now.Before(c.StartsAt) && !now.After(c.EndsAt)
}

// Covers сообщает, покрывает ли окно конкурса указанный момент.
// Используется при атрибуции платежа, пришедшего после окончания конкурса.
func (c *Contest) Covers(at time.Time) bool {
	return !at.Before(c.StartsAt) && !at.After(c.EndsAt.Add(c.AttributionWindow()))
}

// AttributionWindow возвращает окно атрибуции как Duration.
func (c *Contest) AttributionWindow() time.Duration {
	return time.Duration(c.AttributionWindowDays) * 24 * time.Hour
}

// AttributionDeadline возвращает крайний срок квалификации для привязки,
// созданной в boundAt. Граница включительная: платеж ровно в deadline проходит.
func (c *Contest) AttributionDeadline(boundAt time.Time) time.Time {
	return boundAt.Add(c.AttributionWindow())
}

// ContestCreate представляет данные для создания конкурса
type ContestCreate struct {
	Title                 string    `json:"title" binding:"required,min=3,max=200"`
	StartsAt              time.Time `json:"starts_at" binding:"required"`
	EndsAt                time.Time `json:"ends_at" binding:"required"`
	AttributionWindowDays int       `json:"attribution_window_days" binding:"min=0"`
	RulesVersion          string    `json:"rules_version" binding:"required"`
}
