package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"essay-corrector-backend/internal/config"
	"essay-corrector-backend/internal/logging"
	"essay-corrector-backend/internal/metrics"
	"essay-corrector-backend/internal/middleware"
	"essay-corrector-backend/internal/services"
)

// NewRouter wires every route. /health and /metrics are public; the rest
// require a bearer token and an ensured user.
func NewRouter(cfg *config.Config, log logrus.FieldLogger, essays *services.EssayService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinLogger(log))
	router.Use(metrics.GinMiddleware())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	router.GET("/health", HealthHandler)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	usersHandler := NewUsersHandler(essays)
	examPapersHandler := NewExamPapersHandler(essays)
	uploadHandler := NewUploadHandler(essays)
	processHandler := NewProcessHandler(essays)
	limiter := middleware.NewRateLimiter(cfg.AIRateLimitPerMinute, log)

	api := router.Group("/")
	api.Use(middleware.AuthMiddleware(cfg))
	api.Use(middleware.EnsureUser(essays, log))

	api.GET("/users/me/", usersHandler.Me)

	api.POST("/exam_papers/upload_multiple_images/", uploadHandler.UploadMultipleImages)
	api.GET("/exam_papers/", examPapersHandler.ListExamPapers)
	api.GET("/exam_papers/:id", examPapersHandler.GetExamPaper)
	api.DELETE("/exam_papers/:id", examPapersHandler.DeleteExamPaper)

	api.PUT("/exam_papers/:id/transcribed_text", processHandler.UpdateTranscribedText)
	api.POST("/exam_papers/:id/transcribe", limiter.Handler(), processHandler.Transcribe)
	api.POST("/exam_papers/:id/correct", limiter.Handler(), processHandler.Correct)

	return router
}
