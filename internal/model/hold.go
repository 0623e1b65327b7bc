package model

import "time"

type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "held"      // Слот захвачен, код ещё не отправлен
	HoldStatusOTPSent   HoldStatus = "otp_sent"  // Код отправлен, ждём подтверждения
	HoldStatusVerified  HoldStatus = "verified"  // Код подтверждён, бронирование создано
	HoldStatusConfirmed HoldStatus = "confirmed" // Подтверждающее сообщение отправлено
	HoldStatusExpired   HoldStatus = "expired"   // TTL истёк
	HoldStatusReleased  HoldStatus = "released"  // Явная отмена
)

// MaxVerifyAttempts лимит неудачных попыток ввода кода
const MaxVerifyAttempts = 5

// Hold временный захват слота до подтверждения по коду
type Hold struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	SlotID       string     `json:"slot_id"`
	HolderID     string     `json:"holder_id"` // call/session id звонящего
	Status       HoldStatus `json:"status"`
	Code         *string    `json:"-"` // nil до первой отправки
	CodeIssuedAt *time.Time `json:"code_issued_at"`
	Destination  *string    `json:"destination"` // номер для SMS
	Attempts     int        `json:"attempts"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ExpiredAt истёк ли hold на момент now
func (h *Hold) ExpiredAt(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}

// legalTransitions допустимые переходы состояний hold'а
var legalTransitions = map[HoldStatus][]HoldStatus{
	HoldStatusHeld:     {HoldStatusOTPSent, HoldStatusExpired, HoldStatusReleased},
	HoldStatusOTPSent:  {HoldStatusOTPSent, HoldStatusVerified, HoldStatusExpired, HoldStatusReleased},
	HoldStatusVerified: {HoldStatusConfirmed},
}

// CanTransition разрешён ли переход из текущего состояния в next
func (h *Hold) CanTransition(next HoldStatus) bool {
	for _, s := range legalTransitions[h.Status] {
		if s == next {
			return true
		}
	}
	return false
}
