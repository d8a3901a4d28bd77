package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/TalentGate/candidate-session-service/internal/engine"
	"github.com/TalentGate/candidate-session-service/internal/utils"
	"github.com/TalentGate/candidate-session-service/internal/validator"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
}

func NewHandlerManager(
	manager *engine.Manager,
	validator *validator.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(manager, validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "candidate-session-service",
		})
	})

	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("/:token", hm.sessionHandler.OpenSession)
			sessions.GET("/:token", hm.sessionHandler.GetSession)
			sessions.DELETE("/:token", hm.sessionHandler.AbandonSession)

			sessions.POST("/:token/verify", hm.sessionHandler.Verify)
			sessions.POST("/:token/start", hm.sessionHandler.StartTest)
			sessions.POST("/:token/sections/start", hm.sessionHandler.StartSection)
			sessions.POST("/:token/answers", hm.sessionHandler.RecordAnswer)
			sessions.POST("/:token/flags/:question_id", hm.sessionHandler.ToggleFlag)
			sessions.POST("/:token/finish", hm.sessionHandler.FinishSection)
			sessions.POST("/:token/advance", hm.sessionHandler.Advance)
		}
	}
}
