package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vocalix/bookline/internal/model"
)

type putSignalsRequest struct {
	CallID          string   `json:"call_id" binding:"required"`
	StartedAt       *string  `json:"started_at,omitempty"` // RFC3339, только при старте звонка
	Sentiment       *float64 `json:"sentiment,omitempty"`
	TransferRequest bool     `json:"transfer_request"`
}

// putSignals приём живых сигналов от голосового слоя
func (s *Server) putSignals(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req putSignalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	ctx := c.Request.Context()

	if req.StartedAt != nil {
		startedAt, err := time.Parse(time.RFC3339, *req.StartedAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "hint": "started_at must be RFC3339"})
			return
		}
		if err := s.signals.StartCall(ctx, tc.TenantID, req.CallID, startedAt); err != nil {
			respondError(c, s.logger, err)
			return
		}
	}

	if req.Sentiment != nil {
		if err := s.signals.UpdateSentiment(ctx, tc.TenantID, req.CallID, *req.Sentiment); err != nil {
			respondError(c, s.logger, err)
			return
		}
	}

	if req.TransferRequest {
		if err := s.signals.MarkTransferRequested(ctx, tc.TenantID, req.CallID); err != nil {
			respondError(c, s.logger, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

type escalationTickRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	CallID  string `json:"call_id" binding:"required"`
}

// escalationTick оценка правил эскалации для живого звонка
// Выполняется параллельно конвейеру бронирования и не зависит от его исхода
func (s *Server) escalationTick(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req escalationTickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	ctx := c.Request.Context()

	callSignals, err := s.signals.Get(ctx, tc.TenantID, req.CallID)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}
	if callSignals == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "NOT_FOUND"})
		return
	}

	decision, err := s.escalation.Evaluate(ctx, tc.TenantID, req.AgentID, *callSignals)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	if decision == nil {
		c.JSON(http.StatusOK, gin.H{"transfer": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transfer":    true,
		"rule_id":     decision.RuleID,
		"trigger":     string(decision.Trigger),
		"destination": decision.Destination,
	})
}

type createRuleRequest struct {
	AgentID            string   `json:"agent_id" binding:"required"`
	Trigger            string   `json:"trigger" binding:"required"`
	Destination        string   `json:"destination" binding:"required"`
	Priority           int      `json:"priority"`
	WaitThresholdSec   *int     `json:"wait_threshold_sec,omitempty"`
	SentimentThreshold *float64 `json:"sentiment_threshold,omitempty"`
}

func (s *Server) createRule(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	rule := &model.EscalationRule{
		TenantID:           tc.TenantID,
		AgentID:            req.AgentID,
		Trigger:            model.TriggerKind(req.Trigger),
		Destination:        req.Destination,
		Priority:           req.Priority,
		Enabled:            true,
		WaitThresholdSec:   req.WaitThresholdSec,
		SentimentThreshold: req.SentimentThreshold,
	}

	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST", "hint": err.Error()})
		return
	}

	if err := s.escalation.CreateRule(c.Request.Context(), rule); err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"rule_id": rule.ID})
}

func (s *Server) listRules(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	rules, err := s.escalation.ListRules(c.Request.Context(), tc.TenantID)
	if err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) setRuleEnabled(c *gin.Context) {
	tc, ok := tenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "UNAUTHORIZED"})
		return
	}

	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BAD_REQUEST"})
		return
	}

	if err := s.escalation.SetRuleEnabled(c.Request.Context(), tc.TenantID, c.Param("id"), *req.Enabled); err != nil {
		respondError(c, s.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": true})
}
