package model

import (
	"errors"
	"fmt"
)

// Ошибки конвейера бронирования
// Конфликты и истечение срока — ожидаемые ветки, не исключения
var (
	ErrSlotUnavailable = errors.New("slot already held or booked")
	ErrSlotNotFound    = errors.New("slot not found")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrHoldExpired     = errors.New("hold expired")
	ErrCodeAlreadySent = errors.New("code already sent, cool-down active")
	ErrCodeMismatch    = errors.New("verification code mismatch")
	ErrLockedOut       = errors.New("too many failed attempts")
	ErrTenantMismatch  = errors.New("tenant mismatch")
	ErrDispatchFailed  = errors.New("message dispatch failed")
	ErrRuleNotFound    = errors.New("escalation rule not found")
	ErrStore           = errors.New("store unavailable")
)

// TransitionError недопустимый переход состояния: no-op, сообщаем текущее состояние
type TransitionError struct {
	Current   HoldStatus
	Requested HoldStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.Current, e.Requested)
}

// ErrorCode код ошибки для конверсационного слоя
// Tenant mismatch наружу отдаётся как NOT_FOUND, чтобы не подтверждать
// существование чужих данных
func ErrorCode(err error) string {
	var te *TransitionError
	switch {
	case errors.Is(err, ErrSlotUnavailable):
		return "SLOT_UNAVAILABLE"
	case errors.Is(err, ErrTenantMismatch),
		errors.Is(err, ErrSlotNotFound),
		errors.Is(err, ErrHoldNotFound),
		errors.Is(err, ErrBookingNotFound),
		errors.Is(err, ErrRuleNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrHoldExpired):
		return "EXPIRED"
	case errors.Is(err, ErrCodeAlreadySent):
		return "ALREADY_SENT"
	case errors.Is(err, ErrCodeMismatch):
		return "MISMATCH"
	case errors.Is(err, ErrLockedOut):
		return "LOCKED_OUT"
	case errors.Is(err, ErrDispatchFailed):
		return "DISPATCH_FAILED"
	case errors.As(err, &te):
		return "ILLEGAL_TRANSITION"
	default:
		return "INTERNAL"
	}
}
