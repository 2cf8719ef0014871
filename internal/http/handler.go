package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/models"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/repository"
	"github.com/wenwu/saas-platform/proxy-rental-service/internal/service"
)

type Handler struct {
	orderService       *service.OrderService
	provisionService   *service.ProvisionService
	activationService  *service.ActivationService
	reservationService *service.ReservationService
	stoplistService    *service.StoplistService
	cleanupService     *service.CleanupService
}

func NewHandler(
	orderService *service.OrderService,
	provisionService *service.ProvisionService,
	activationService *service.ActivationService,
	reservationService *service.ReservationService,
	stoplistService *service.StoplistService,
	cleanupService *service.CleanupService,
) *Handler {
	return &Handler{
		orderService:       orderService,
		provisionService:   provisionService,
		activationService:  activationService,
		reservationService: reservationService,
		stoplistService:    stoplistService,
		cleanupService:     cleanupService,
	}
}

// writeServiceError maps service sentinel errors onto HTTP status codes.
// Anything unmapped is a 500.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrProxyNotFound),
		errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrMissingConnection),
		errors.Is(err, service.ErrNoRotationURL),
		errors.Is(err, service.ErrInsufficientQuota):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ==================== Order / checkout handlers ====================

// CreateOrder starts checkout for the authenticated user
func (h *Handler) CreateOrder(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.orderService.CreateOrder(c.Request.Context(), userID, c.GetString("userEmail"), &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetReservationStatus returns the checkout hold countdown for an order
func (h *Handler) GetReservationStatus(c *gin.Context) {
	userID := c.GetString("userID")
	orderID := c.Param("id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order id required"})
		return
	}

	resp, err := h.orderService.GetReservationStatus(c.Request.Context(), orderID, userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReleaseReservation abandons checkout and returns the hold to the pool
func (h *Handler) ReleaseReservation(c *gin.Context) {
	userID := c.GetString("userID")
	orderID := c.Param("id")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order id required"})
		return
	}

	if err := h.orderService.ReleaseReservation(c.Request.Context(), orderID, userID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ==================== Proxy handlers ====================

// GetMyProxies lists the authenticated user's proxies with credentials
func (h *Handler) GetMyProxies(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	proxies, err := h.provisionService.ListUserProxies(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"proxies": proxies})
}

// RotateProxyIP triggers a manual IP rotation on one of the user's proxies
func (h *Handler) RotateProxyIP(c *gin.Context) {
	userID := c.GetString("userID")
	proxyID := c.Param("id")
	if proxyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proxy id required"})
		return
	}

	resp, err := h.provisionService.RotateIP(c.Request.Context(), proxyID, userID, models.RotationTypeManual)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SetupProxyRotation creates the rotation link for one of the user's proxies
func (h *Handler) SetupProxyRotation(c *gin.Context) {
	userID := c.GetString("userID")
	proxyID := c.Param("id")
	if proxyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proxy id required"})
		return
	}

	resp, err := h.provisionService.SetupRotation(c.Request.Context(), proxyID, userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ==================== Admin handlers ====================

// ActivateOrder manually activates a paid order (admin fallback path)
func (h *Handler) ActivateOrder(c *gin.Context) {
	var req models.ActivateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.activationService.ActivateOrder(c.Request.Context(), req.OrderID, c.GetString("userID"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListStoplist returns all stoplisted connections
func (h *Handler) ListStoplist(c *gin.Context) {
	entries, err := h.stoplistService.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stoplist": entries})
}

// AddToStoplist excludes an upstream connection from allocation
func (h *Handler) AddToStoplist(c *gin.Context) {
	var req models.StoplistAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.stoplistService.Add(c.Request.Context(), req.ConnectionID, req.Reason, c.GetString("userID")); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// RemoveFromStoplist returns a connection to the allocation pool
func (h *Handler) RemoveFromStoplist(c *gin.Context) {
	var req models.StoplistRemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.stoplistService.Remove(c.Request.Context(), req.ConnectionID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ==================== Cron handlers ====================

// CleanupReservations expires stale checkout holds and credits quota back
func (h *Handler) CleanupReservations(c *gin.Context) {
	released, err := h.cleanupService.Run(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.CleanupResponse{
		Released: released,
		Message:  "cleanup completed",
	})
}
