package http

import (
	"github.com/gin-gonic/gin"

	"voicedoc/internal/bootstrap"
	"voicedoc/internal/transport/http/handler"
	"voicedoc/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = 32 << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	authHandler := handler.NewAuthHandler(app.Auth)
	ragHandler := handler.NewRAGHandler(app.RAG)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	RegisterRAGRoutes(v1, ragHandler, app.Config.Auth.JWTSecret)
	return router
}

// RegisterRAGRoutes mounts the bearer-protected document and chat routes.
func RegisterRAGRoutes(group *gin.RouterGroup, h *handler.RAGHandler, jwtSecret string) {
	protected := group.Group("")
	protected.Use(middleware.AuthJWT(jwtSecret))
	protected.POST("/upload", h.Upload)
	protected.GET("/docs", h.ListDocs)
	protected.DELETE("/docs", h.DeleteDocs)
	protected.POST("/memory/clear", h.ClearMemory)
	protected.POST("/chat", h.Chat)
}
