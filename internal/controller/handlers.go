package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/model"
)

// Тела запросов намеренно не содержат tenant_id: он берётся только из
// токена. Поле tenant_id в JSON, если придёт, молча игнорируется

type checkAvailabilityRequest struct {
	ProviderID string `json:"provider_id" binding:"required"`
	Date       string `json:"date" binding:"required"` // YYYY-MM-DD
}

func (s *Server) checkAvailability(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req checkAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "hint": "date must be YYYY-MM-DD"})
		return
	}

	ranges, err := s.locker.CheckAvailability(c.Request.Context(), tc.TenantID, req.ProviderID, date)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": ranges})
}

type claimSlotRequest struct {
	ProviderID string    `json:"provider_id" binding:"required"`
	StartTime  time.Time `json:"start_time" binding:"required"`
	HolderID   string    `json:"holder_id" binding:"required"`
}

func (s *Server) claimSlot(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req claimSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	hold, err := s.locker.ClaimSlot(c.Request.Context(), tc.TenantID, req.ProviderID, req.StartTime, req.HolderID)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hold_id":    hold.ID,
		"expires_at": hold.ExpiresAt,
	})
}

type releaseHoldRequest struct {
	HoldID string `json:"hold_id" binding:"required"`
}

func (s *Server) releaseHold(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req releaseHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	if err := s.locker.ReleaseHold(c.Request.Context(), tc.TenantID, req.HoldID); err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"released": true})
}

type sendCodeRequest struct {
	HoldID      string `json:"hold_id" binding:"required"`
	Destination string `json:"destination" binding:"required"`
}

func (s *Server) sendCode(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req sendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	if err := s.verifier.SendCode(c.Request.Context(), tc.TenantID, req.HoldID, req.Destination); err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": true})
}

type verifyCodeRequest struct {
	HoldID string `json:"hold_id" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// verifyCode проверяет код и, при успехе, безусловно запускает отправку
// подтверждения. Шаг подтверждения не является опциональным инструментом,
// который upstream-промпт может пропустить: контракт этого слоя
// гарантирует его после каждой успешной верификации
func (s *Server) verifyCode(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	booking, err := s.verifier.VerifyCode(c.Request.Context(), tc.TenantID, req.HoldID, req.Code)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	messageID, notifyErr := s.verifier.ConfirmAndNotify(c.Request.Context(), tc.TenantID, booking.ID)

	resp := gin.H{"booking_id": booking.ID}
	if notifyErr != nil {
		// Booking durable, доставка будет повторена фоном
		resp["notify_status"] = string(model.NotifyStatusFailed)
		s.logger.Warn("Confirmation after verify failed, retry scheduled",
			zap.String("booking_id", booking.ID),
			zap.Error(notifyErr),
		)
	} else {
		resp["notify_status"] = string(model.NotifyStatusSent)
		resp["message_id"] = messageID
	}

	c.JSON(http.StatusOK, resp)
}

type confirmRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
}

func (s *Server) confirmAndNotify(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	messageID, err := s.verifier.ConfirmAndNotify(c.Request.Context(), tc.TenantID, req.BookingID)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message_id": messageID})
}
