package models

import "time"

// LedgerReason — закрытый набор причин записи в ledger.
type LedgerReason string

const (
	ReasonInviteePayment LedgerReason = "INVITEE_PAYMENT"
	ReasonRefund         LedgerReason = "REFUND"
	ReasonManualAdjust   LedgerReason = "MANUAL_ADJUST"
)

// TicketLedgerEntry — одна запись append-only журнала билетов.
// Записи никогда не изменяются и не удаляются: возврат платежа порождает
// новую запись с отрицательной дельтой по тому же payment_id.
type TicketLedgerEntry struct {
	ID            string       `json:"id"`
	ContestID     string       `json:"contest_id"`
	UserID        string       `json:"user_id"`
	InviteeUserID string       `json:"invitee_user_id"`
	PaymentID     string       `json:"payment_id"`
	Delta         int          `json:"delta"`
	Reason        LedgerReason `json:"reason"`
	CreatedAt     time.Time    `json:"created_at"`
}

// LedgerLabel возвращает подпись записи для истории билетов.
// Switch исчерпывающий по LedgerReason: новая причина обязана получить подпись.
func LedgerLabel(reason LedgerReason) string {
	switch reason {
	case ReasonInviteePayment:
		return "Friend's payment"
	case ReasonRefund:
		return "Payment refunded"
	case ReasonManualAdjust:
		return "Manual adjustment"
	default:
		return string(reason)
	}
}
