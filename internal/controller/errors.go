package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/model"
)

// respondError переводит ошибку конвейера в структурированный ответ
// Ожидаемые ветки (конфликт, истечение, неверный код) получают свой
// код и следующий шаг для конверсационного слоя; tenant mismatch и
// фатальные ошибки стора наружу не детализируются
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	code := model.ErrorCode(err)

	status := http.StatusInternalServerError
	switch code {
	case "SLOT_UNAVAILABLE", "ALREADY_SENT", "ILLEGAL_TRANSITION":
		status = http.StatusConflict
	case "NOT_FOUND":
		status = http.StatusNotFound
	case "EXPIRED":
		status = http.StatusGone
	case "MISMATCH":
		status = http.StatusBadRequest
	case "LOCKED_OUT":
		status = http.StatusLocked
	case "DISPATCH_FAILED":
		status = http.StatusBadGateway
	}

	if code == "INTERNAL" {
		logger.Error("Tool call failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "INTERNAL"})
		return
	}

	body := gin.H{"error": code}
	if hint := nextStepHint(code); hint != "" {
		body["hint"] = hint
	}

	var te *model.TransitionError
	if errors.As(err, &te) {
		body["current_state"] = string(te.Current)
	}

	c.JSON(status, body)
}

// nextStepHint подсказка следующего шага для голосового агента:
// пользователю озвучивается конкретное действие, не сырая ошибка
func nextStepHint(code string) string {
	switch code {
	case "SLOT_UNAVAILABLE":
		return "offer the caller the next adjacent slot"
	case "EXPIRED":
		return "the hold lapsed; restart the booking flow"
	case "ALREADY_SENT":
		return "a code was sent moments ago; ask the caller to check their phone"
	case "MISMATCH":
		return "ask the caller to repeat the code"
	case "LOCKED_OUT":
		return "verification attempts exhausted; restart the booking flow"
	default:
		return ""
	}
}
