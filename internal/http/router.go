package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/config"
)

// RateLimiter 简单的内存速率限制器
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int           // 最大请求数
	window   time.Duration // 时间窗口
}

// NewRateLimiter 创建速率限制器
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow 检查是否允许请求
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	// 清理过期请求
	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	// 检查是否超过限制
	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	// 记录新请求
	rl.requests[key] = append(valid, now)
	return true
}

// RateLimitMiddleware 速率限制中间件
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 使用用户 ID 或 IP 作为限制 key
		key := c.GetString("userID")
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

type Server struct {
	router  *gin.Engine
	handler *Handler
	webhook *WebhookHandler
	cfg     *config.Config
	db      *pgxpool.Pool
}

// 全局速率限制器: 每用户每分钟最多 30 次请求
var userRateLimiter = NewRateLimiter(30, time.Minute)

// 下单速率限制器: 每用户每小时最多 10 次（防止刷配额预留）
var orderRateLimiter = NewRateLimiter(10, time.Hour)

// IP 轮换速率限制器: 每用户每分钟最多 5 次（上游限流）
var rotateRateLimiter = NewRateLimiter(5, time.Minute)

func NewServer(cfg *config.Config, db *pgxpool.Pool, handler *Handler, webhook *WebhookHandler) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		handler: handler,
		webhook: webhook,
		cfg:     cfg,
		db:      db,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "proxy-rental-service",
		})
	})

	// User API - requires JWT authentication
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter)) // 用户 API 速率限制
	{
		// Checkout / orders
		// 下单使用更严格的速率限制
		user.POST("/orders", RateLimitMiddleware(orderRateLimiter), s.handler.CreateOrder)
		user.GET("/orders/:id/reservation", s.handler.GetReservationStatus)  // 预留倒计时
		user.DELETE("/orders/:id/reservation", s.handler.ReleaseReservation) // 放弃结账

		// Proxy management
		user.GET("/proxies", s.handler.GetMyProxies)
		user.POST("/proxies/:id/rotate", RateLimitMiddleware(rotateRateLimiter), s.handler.RotateProxyIP)
		user.POST("/proxies/:id/setup-rotation", s.handler.SetupProxyRotation)
	}

	// Admin API - JWT + admin role
	admin := s.router.Group("/api/admin")
	admin.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	admin.Use(AdminAuthMiddleware())
	{
		admin.POST("/orders/activate", s.handler.ActivateOrder) // 手动激活（人工开通场景）

		admin.GET("/stoplist", s.handler.ListStoplist)
		admin.POST("/stoplist", s.handler.AddToStoplist)
		admin.DELETE("/stoplist", s.handler.RemoveFromStoplist)
	}

	// Payment webhook - signature-verified, no JWT
	s.router.POST("/api/webhooks/payment", s.webhook.HandlePaymentWebhook)

	// Cron API - called by the external scheduler
	cron := s.router.Group("/cron")
	cron.Use(CronAuthMiddleware(s.cfg.CronSecret))
	{
		// 部分调度器只会发 GET，两种方法都接受
		cron.GET("/cleanup-reservations", s.handler.CleanupReservations)
		cron.POST("/cleanup-reservations", s.handler.CleanupReservations)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
