package controller

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/auth"
	"github.com/vocalix/bookline/internal/service"
	"github.com/vocalix/bookline/internal/signals"
)

// Server HTTP-сервер инструментов конвейера
// Голосовой слой вызывает операции как server-executed tools с
// фиксированными схемами; порядок шагов обеспечивает машина состояний,
// а не дисциплина вызывающего
type Server struct {
	engine     *gin.Engine
	resolver   *auth.Resolver
	locker     *service.LockerService
	verifier   *service.VerificationService
	escalation *service.EscalationService
	signals    *signals.Cache
	logger     *zap.Logger
}

func NewServer(
	environment string,
	resolver *auth.Resolver,
	locker *service.LockerService,
	verifier *service.VerificationService,
	escalation *service.EscalationService,
	signalCache *signals.Cache,
	logger *zap.Logger,
) *Server {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:     gin.New(),
		resolver:   resolver,
		locker:     locker,
		verifier:   verifier,
		escalation: escalation,
		signals:    signalCache,
		logger:     logger,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())

	s.engine.GET("/healthz", s.health)

	api := s.engine.Group("/v1")
	api.Use(s.authenticate())
	{
		tools := api.Group("/tools")
		tools.POST("/check_availability", s.checkAvailability)
		tools.POST("/claim_slot", s.claimSlot)
		tools.POST("/release_hold", s.releaseHold)
		tools.POST("/send_code", s.sendCode)
		tools.POST("/verify_code", s.verifyCode)
		tools.POST("/confirm_and_notify", s.confirmAndNotify)

		calls := api.Group("/calls")
		calls.POST("/signals", s.putSignals)
		calls.POST("/escalation_tick", s.escalationTick)

		rules := api.Group("/escalation_rules")
		rules.POST("", s.createRule)
		rules.GET("", s.listRules)
		rules.PATCH("/:id/enabled", s.setRuleEnabled)
	}

	return s
}

// Run запускает сервер на addr
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Engine возвращает gin engine (для httptest)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
