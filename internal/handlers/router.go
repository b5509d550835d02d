package handlers

import (
	"net/http"

	"github.com/SAP-F-2025/assessment-session/internal/services"
	"github.com/SAP-F-2025/assessment-session/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	sessionHandler *SessionHandler
	logger         utils.Logger
}

func NewHandlerManager(sessionService services.SessionService, logger utils.Logger) *HandlerManager {
	return &HandlerManager{
		sessionHandler: NewSessionHandler(sessionService, logger),
		logger:         logger,
	}
}

// NewRouter builds a gin engine with logging middleware and all routes
func (hm *HandlerManager) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), utils.LoggerMiddleware(hm.logger), utils.ContextLogger(hm.logger))
	hm.SetupRoutes(router)
	return router
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1", LearnerMiddleware())
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", hm.sessionHandler.OpenSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.DELETE("/:id", hm.sessionHandler.CloseSession)
			sessions.PUT("/:id/answers/:question_id", hm.sessionHandler.RecordAnswer)
			sessions.POST("/:id/submit", hm.sessionHandler.SubmitSession)
		}

		assignments := v1.Group("/assignments")
		{
			assignments.GET("/:id/eligibility", hm.sessionHandler.CheckEligibility)
		}
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "assessment-session",
	})
}
