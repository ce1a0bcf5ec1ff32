package main

import (
  "fmt"
  "os"
  "time"
  "github.com/askyenta/yenta-backend/internal/db"
  "github.com/askyenta/yenta-backend/internal/handlers"
  "github.com/askyenta/yenta-backend/internal/logger"
  "github.com/askyenta/yenta-backend/internal/middleware"
  "github.com/askyenta/yenta-backend/internal/repos"
  "github.com/askyenta/yenta-backend/internal/server"
  "github.com/askyenta/yenta-backend/internal/services"
  "github.com/askyenta/yenta-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  // Env
  log.Info("Loading environment variables from main...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  port := utils.GetEnv("PORT", "8080", log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Error("Postgres auto migration failed", "error", err)
    os.Exit(1)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  memoryRepo := repos.NewConversationMemoryRepo(thePG, log)
  profileRepo := repos.NewUserLLMProfileRepo(thePG, log)

  // Services
  log.Info("Setting up Services from main...")
  aiClient, err := services.NewAIClient(log)
  if err != nil {
    log.Error("Could not init AIClient", "error", err)
    os.Exit(1)
  }
  summaryCache, err := services.NewProfileSummaryCache(log)
  if err != nil {
    log.Warn("Profile summary cache disabled", "error", err)
    summaryCache = nil
  }
  authService := services.NewAuthService(
    thePG,
    log,
    userRepo,
    userTokenRepo,
    jwtSecretKey,
    time.Duration(accessTokenTTL)*time.Second,
    time.Duration(refreshTokenTTL)*time.Second,
  )
  profileService := services.NewProfileService(log, aiClient)
  chatService := services.NewChatService(thePG, log, aiClient, memoryRepo, profileRepo, profileService)

  // Handlers
  log.Info("Setting up Handlers from main...")
  authHandler := handlers.NewAuthHandler(log, authService)
  chatHandler := handlers.NewChatHandler(log, chatService)
  userProfileHandler := handlers.NewUserProfileHandler(log, userRepo, profileRepo, profileService, summaryCache)

  // Middleware
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:        authHandler,
    AuthMiddleware:     authMiddleware,
    ChatHandler:        chatHandler,
    UserProfileHandler: userProfileHandler,
  })

  log.Info("Starting server...", "port", port)
  if err := router.Run(":" + port); err != nil {
    log.Fatal("Server exited", "error", err)
  }
}
