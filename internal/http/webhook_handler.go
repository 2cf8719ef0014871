package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/cache"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/service"
)

// PaymentVerifier checks webhook signatures against the IPN secret.
type PaymentVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// WebhookHandler processes payment processor IPN callbacks. The processor
// retries deliveries, so processing must be idempotent: a short-lived Redis
// key per payment id suppresses duplicates, and the activation path itself
// tolerates replays if Redis loses the key.
type WebhookHandler struct {
	verifier   PaymentVerifier
	activation *service.ActivationService
	cache      *cache.Client
}

func NewWebhookHandler(verifier PaymentVerifier, activation *service.ActivationService, cacheClient *cache.Client) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		activation: activation,
		cache:      cacheClient,
	}
}

// dedupeTTL 覆盖支付服务商的重试窗口（24 小时）
const dedupeTTL = 24 * time.Hour

// HandlePaymentWebhook validates, dedupes and routes one IPN delivery.
// Terminal-success statuses activate the order; terminal-failure statuses
// release its hold and cancel it. Intermediate statuses are acknowledged
// and ignored.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	signature := c.GetHeader("x-nowpayments-sig")
	if signature == "" || !h.verifier.VerifySignature(body, signature) {
		log.Printf("[Webhook] Rejected payment webhook: bad signature (ip: %s)", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload models.PaymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if payload.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order_id required"})
		return
	}

	// 用 payment_id + status 作为去重 key，同一支付的不同状态仍会被处理
	dedupeKey := fmt.Sprintf("webhook:payment:%d:%s", payload.PaymentID, payload.PaymentStatus)
	fresh, err := h.cache.SetNX(c.Request.Context(), dedupeKey, payload.OrderID, dedupeTTL)
	if err != nil {
		// Redis being down must not drop payments; fall through and rely on
		// the idempotent activation path.
		log.Printf("[Webhook] Dedupe check failed (processing anyway): %v", err)
	} else if !fresh {
		log.Printf("[Webhook] Duplicate delivery for payment %d (%s), skipping", payload.PaymentID, payload.PaymentStatus)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	log.Printf("[Webhook] Payment %d for order %s: %s", payload.PaymentID, payload.OrderID, payload.PaymentStatus)

	switch payload.PaymentStatus {
	case "finished", "confirmed":
		if _, err := h.activation.ActivateOrder(c.Request.Context(), payload.OrderID, ""); err != nil {
			log.Printf("[Webhook] Activation failed for order %s: %v", payload.OrderID, err)
			// 500 makes the processor redeliver; the dedupe key is already
			// set, so clear it to let the retry through.
			if derr := h.cache.Delete(c.Request.Context(), dedupeKey); derr != nil {
				log.Printf("[Webhook] Failed to clear dedupe key %s: %v", dedupeKey, derr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "activation failed"})
			return
		}
	case "failed", "expired":
		if err := h.activation.CancelUnpaidOrder(c.Request.Context(), payload.OrderID, "payment "+payload.PaymentStatus); err != nil {
			log.Printf("[Webhook] Cancellation failed for order %s: %v", payload.OrderID, err)
			if derr := h.cache.Delete(c.Request.Context(), dedupeKey); derr != nil {
				log.Printf("[Webhook] Failed to clear dedupe key %s: %v", dedupeKey, derr)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cancellation failed"})
			return
		}
	default:
		// waiting / confirming / partially_paid etc. Acknowledge so the
		// processor does not retry.
		log.Printf("[Webhook] Ignoring intermediate status %s for order %s", payload.PaymentStatus, payload.OrderID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
