package models

import (
	"errors"
	"time"
)

var (
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrAlreadyQualified  = errors.New("ref event already qualified")
)

// RefEventStatus — закрытый набор статусов привязки.
type RefEventStatus string

const (
	StatusBound        RefEventStatus = "bound"
	StatusQualified    RefEventStatus = "qualified"
	StatusNotQualified RefEventStatus = "not_qualified"
	StatusBlocked      RefEventStatus = "blocked"
)

// StatusReason — закрытый набор причин статуса.
type StatusReason string

const (
	ReasonNone              StatusReason = ""
	ReasonSelfReferral      StatusReason = "SELF_REFERRAL"
	ReasonExistingPayer     StatusReason = "EXISTING_PAYER"
	ReasonAttrWindowExpired StatusReason = "ATTR_WINDOW_EXPIRED"
)

// RefEventSource — откуда пришла привязка.
type RefEventSource string

const (
	SourceBot     RefEventSource = "bot"
	SourceMiniapp RefEventSource = "miniapp"
)

// transitions — явная таблица переходов. Все, чего здесь нет, запрещено:
// qualified никогда не откатывается (возврат компенсируется через ledger),
// терминальные статусы не меняются.
var transitions = map[RefEventStatus][]RefEventStatus{
	StatusBound: {StatusQualified, StatusNotQualified, StatusBlocked},
}

// CanTransitionTo проверяет переход по таблице.
func (s RefEventStatus) CanTransitionTo(next RefEventStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, завершен ли статус для целей начисления билетов.
func (s RefEventStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// RefEvent фиксирует одну привязку приглашенного к рефереру в рамках конкурса.
// На пару (contest_id, invitee_tg_id) существует не более одной не-blocked записи:
// первое касание выигрывает.
type RefEvent struct {
	ID             string         `json:"id"`
	ContestID      string         `json:"contest_id"`
	ReferrerUserID string         `json:"referrer_user_id"`
	InviteeTgID    int64          `json:"invitee_tg_id"`
	InviteeUserID  *string        `json:"invitee_user_id"`
	BoundAt        time.Time      `json:"bound_at"`
	Source         RefEventSource `json:"source"`
	Status         RefEventStatus `json:"status"`
	StatusReason   StatusReason   `json:"status_reason"`
	QualifiedAt    *time.Time     `json:"qualified_at"`
}

// Transition переводит событие в новый статус, проверяя таблицу переходов.
func (e *RefEvent) Transition(next RefEventStatus, reason StatusReason) error {
	if !e.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	e.Status = next
	e.StatusReason = reason
	return nil
}

// Qualify переводит bound-событие в qualified с моментом платежа.
func (e *RefEvent) Qualify(paidAt time.Time) error {
	if e.Status == StatusQualified {
		return ErrAlreadyQualified
	}
	if err := e.Transition(StatusQualified, ReasonNone); err != nil {
		return err
	}
	e.QualifiedAt = &paidAt
	return nil
}
