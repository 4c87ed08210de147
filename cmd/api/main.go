package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/survey-api/internal/config"
	"github.com/yourusername/survey-api/internal/domain/repository"
	"github.com/yourusername/survey-api/internal/handler"
	"github.com/yourusername/survey-api/internal/middleware"
	pgRepo "github.com/yourusername/survey-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/survey-api/internal/repository/redis"
	"github.com/yourusername/survey-api/internal/service"
	"github.com/yourusername/survey-api/pkg/auth"
	"github.com/yourusername/survey-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.Server.Mode)

	// Подключаемся к PostgreSQL и применяем миграции
	db, err := database.NewPostgresDB(cfg.Database, !cfg.Server.IsRelease())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	if err := database.MigrateDB(db, cfg.Database.MigrationsPath); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Репозитории
	userRepo := pgRepo.NewUserRepo(db)
	resetRepo := pgRepo.NewPasswordResetRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	var revocationRepo repository.RevocationRepository = pgRepo.NewRevocationRepo(db)
	if cfg.Auth.RevocationCache {
		// Кешированная граница живет не дольше самого токена
		revocationRepo = redisRepo.NewCachedRevocationRepo(revocationRepo, cacheRepo, cfg.JWT.TokenTTL())
		log.Println("Кеширование границ отзыва в Redis включено")
	}

	authenticator, err := auth.NewAuthenticator(auth.Config{
		Secret: []byte(cfg.JWT.SecretKey),
		TTL:    cfg.JWT.TokenTTL(),
		Issuer: cfg.JWT.Issuer,
	}, revocationRepo)
	if err != nil {
		log.Printf("Failed to initialize Authenticator: %v", err)
		os.Exit(1)
	}

	codeTTL := time.Duration(cfg.Auth.ResetCodeTTLMin) * time.Minute

	var emailService service.EmailService = &service.NoopEmailService{}
	if cfg.Email.Enabled {
		resendService, err := service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From, codeTTL)
		if err != nil {
			log.Printf("Failed to initialize email service: %v", err)
			os.Exit(1)
		}
		emailService = resendService
	} else {
		log.Println("Отправка писем отключена, коды сброса пароля не доставляются")
	}

	passwordResetService, err := service.NewPasswordResetService(resetRepo, emailService, service.PasswordResetConfig{
		CodeTTL:        codeTTL,
		ResendCooldown: time.Duration(cfg.Auth.ResetCooldownSec) * time.Second,
		MaxAttempts:    cfg.Auth.ResetMaxAttempts,
		CodePepper:     cfg.Auth.ResetCodePepper,
	})
	if err != nil {
		log.Printf("Failed to initialize PasswordResetService: %v", err)
		os.Exit(1)
	}

	authService, err := service.NewAuthService(userRepo, revocationRepo, authenticator, passwordResetService, cfg.Auth.MinPasswordLength)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}

	rateLimiter := middleware.NewRateLimiter(cacheRepo)

	router := gin.Default()

	// Пустой список: заголовкам X-Forwarded-For не доверяем, rate limit считается по RemoteAddr
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Printf("Warning: failed to set trusted proxies: %v", err)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler.RegisterRoutes(router, handler.Routes{
		Auth:           handler.NewAuthHandler(authService),
		Users:          handler.NewUserHandler(authService),
		AuthMiddleware: middleware.NewAuthMiddleware(authenticator),
		LoginLimit: rateLimiter.Limit(middleware.LoginRateLimitConfig(
			cfg.Auth.LoginRateLimit, time.Duration(cfg.Auth.LoginRateWindowSec)*time.Second)),
		ResetLimit: rateLimiter.Limit(middleware.ResetRateLimitConfig(
			cfg.Auth.ResetRateLimit, time.Duration(cfg.Auth.ResetRateWindowSec)*time.Second)),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Письма со сбросом пароля отправляются в фоне, ждем их до закрытия хранилищ
	deliveriesDone := make(chan struct{})
	go func() {
		authService.WaitDeliveries()
		close(deliveriesDone)
	}()
	select {
	case <-deliveriesDone:
	case <-shutdownCtx.Done():
		log.Println("Pending password reset emails abandoned on shutdown")
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}
	if sqlDB, err := database.GetSQLDB(db); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	log.Println("Server exited properly")
}
