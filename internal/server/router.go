package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonflow-backend/internal/handlers"
	"github.com/yungbote/lessonflow-backend/internal/middleware"
)

type RouterConfig struct {
	IdentityMiddleware *middleware.IdentityMiddleware
	FlowHandler        *handlers.FlowHandler
	LessonHandler      *handlers.LessonHandler
	SSEHandler         *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-User-ID"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthz", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.IdentityMiddleware.RequireUser())
	{
		// SSE
		api.GET("/sse", cfg.SSEHandler.SSEStream)

		// Lessons
		api.POST("/lessons", cfg.LessonHandler.CreateLesson)
		api.GET("/lessons", cfg.LessonHandler.ListLessons)
		api.GET("/lessons/:lessonID", cfg.LessonHandler.GetLesson)
		api.DELETE("/lessons/:lessonID", cfg.LessonHandler.DeleteLesson)

		// Flows
		api.POST("/flows", cfg.FlowHandler.StartFlow)
		api.GET("/flows/:lessonID", cfg.FlowHandler.GetFlow)
		api.POST("/flows/:lessonID/events", cfg.FlowHandler.PostEvent)
		api.POST("/flows/:lessonID/control", cfg.FlowHandler.Control)
		api.DELETE("/flows/:lessonID", cfg.FlowHandler.StopFlow)
	}

	return router
}
