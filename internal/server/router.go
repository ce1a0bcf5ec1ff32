package server

import (
  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "github.com/askyenta/yenta-backend/internal/handlers"
  "github.com/askyenta/yenta-backend/internal/middleware"
)

type RouterConfig struct {
  AuthHandler         *handlers.AuthHandler
  AuthMiddleware      *middleware.AuthMiddleware
  ChatHandler         *handlers.ChatHandler
  UserProfileHandler  *handlers.UserProfileHandler
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
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  api := router.Group("/api")
  {
    api.POST("/register", cfg.AuthHandler.Register)
    api.POST("/login", cfg.AuthHandler.Login)
    api.POST("/refresh", cfg.AuthHandler.Refresh)
  }

// ===============
// || Protected ||
// ===============
  protected := router.Group("/api")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  // Auth
  protected.POST("/logout", cfg.AuthHandler.Logout)
  // Chat
  protected.POST("/chat", cfg.ChatHandler.Chat)
  protected.GET("/chat/history", cfg.ChatHandler.GetHistory)
  // Profile
  protected.POST("/users/:id/profile-text", cfg.UserProfileHandler.CreateFromText)
  protected.PUT("/users/:id/profile-text", cfg.UserProfileHandler.UpdateFromText)
  protected.PATCH("/users/:id/profile", cfg.UserProfileHandler.Patch)
  protected.GET("/users/:id/profile", cfg.UserProfileHandler.Get)

  return router
}
