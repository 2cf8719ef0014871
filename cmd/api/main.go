package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wenwu/saas-platform/proxy-rental-service/internal/cache"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/client"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/config"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/crypto"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/db"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/http"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/service"
)

func main() {
	log.Println("Starting Proxy Rental Service...")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize database
	pool, err := db.NewPool(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Initialize Redis (webhook idempotency guard)
	redisClient, err := cache.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize repositories
	quotaRepo := repository.NewQuotaRepository(pool)
	reservationRepo := repository.NewReservationRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	proxyRepo := repository.NewProxyRepository(pool)
	rotationLogRepo := repository.NewRotationLogRepository(pool)
	stoplistRepo := repository.NewStoplistRepository(pool)

	// Initialize clients
	iproxyClient := client.NewIProxyClient(cfg.IProxy.BaseURL, cfg.IProxy.APIKey)
	paymentClient := client.NewPaymentClient(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.IPNSecret)
	notifyClient := client.NewNotifyClient(
		cfg.Notify.MailAPIURL,
		cfg.Notify.MailAPIKey,
		cfg.Notify.MailFrom,
		cfg.Notify.BotAPIURL,
		cfg.Notify.BotToken,
		cfg.Notify.AdminChatID,
	)

	encryptor, err := crypto.NewEncryptor([]byte(cfg.Encryption.Key))
	if err != nil {
		log.Fatalf("Failed to initialize encryptor: %v", err)
	}

	// Initialize services
	reservationTTL := time.Duration(cfg.Quota.ReservationTTLMinutes) * time.Minute
	reservationService := service.NewReservationService(quotaRepo, reservationRepo, reservationTTL)
	allocatorService := service.NewAllocatorService(iproxyClient, proxyRepo, stoplistRepo, cfg.IProxy.DefaultLocale)
	provisionService := service.NewProvisionService(iproxyClient, proxyRepo, rotationLogRepo, notifyClient, encryptor)
	activationService := service.NewActivationService(orderRepo, proxyRepo, reservationService, provisionService, notifyClient)
	orderService := service.NewOrderService(orderRepo, reservationService, allocatorService, paymentClient, notifyClient, cfg.Payment.IPNCallbackURL)
	stoplistService := service.NewStoplistService(stoplistRepo, quotaRepo)
	cleanupService := service.NewCleanupService(reservationRepo)

	// Initialize HTTP server
	handler := http.NewHandler(orderService, provisionService, activationService, reservationService, stoplistService, cleanupService)
	webhookHandler := http.NewWebhookHandler(paymentClient, activationService, redisClient)
	server := http.NewServer(cfg, pool, handler, webhookHandler)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	log.Println("Server exited")
}
