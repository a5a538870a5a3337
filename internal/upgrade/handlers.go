package upgrade

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/portsidehq/portside/internal/auth"
	"github.com/portsidehq/portside/internal/pagination"
	"github.com/portsidehq/portside/internal/tier"
)

// Handler provides HTTP handlers for the tier change request API.
type Handler struct {
	service *Service
}

// NewHandler creates a new tier request handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up vendor-facing routes on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tier-requests", h.Create)
	r.GET("/tier-requests/pending", h.GetPending)
	r.GET("/tier-requests/latest", h.GetMostRecent)
	r.GET("/tier-requests/:id", h.Get)
	r.POST("/tier-requests/:id/cancel", h.Cancel)
}

// RegisterAdminRoutes sets up the admin review surface.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/tier-requests", h.List)
	r.POST("/tier-requests/:id/approve", h.Approve)
	r.POST("/tier-requests/:id/reject", h.Reject)
}

// Create handles POST /v1/tier-requests
func (h *Handler) Create(c *gin.Context) {
	accountID := auth.GetAuthenticatedAccount(c)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	requested := tier.Tier(req.RequestedTier)
	r, err := h.service.Create(c.Request.Context(), accountID, RequestType(req.RequestType), requested, req.VendorNotes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, r)
}

// Get handles GET /v1/tier-requests/:id
func (h *Handler) Get(c *gin.Context) {
	r, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	// Vendors may only read their own requests.
	if r.AccountID != auth.GetAuthenticatedAccount(c) {
		respondError(c, ErrForbidden)
		return
	}

	c.JSON(http.StatusOK, r)
}

// GetPending handles GET /v1/tier-requests/pending?type=upgrade
func (h *Handler) GetPending(c *gin.Context) {
	accountID := auth.GetAuthenticatedAccount(c)

	rt := RequestType(c.DefaultQuery("type", string(TypeUpgrade)))
	if !rt.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "type must be 'upgrade' or 'downgrade'",
		})
		return
	}

	r, err := h.service.GetPending(c.Request.Context(), accountID, rt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// GetMostRecent handles GET /v1/tier-requests/latest
func (h *Handler) GetMostRecent(c *gin.Context) {
	accountID := auth.GetAuthenticatedAccount(c)

	r, err := h.service.GetMostRecent(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// Cancel handles POST /v1/tier-requests/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	accountID := auth.GetAuthenticatedAccount(c)

	r, err := h.service.Cancel(c.Request.Context(), c.Param("id"), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// Approve handles POST /v1/admin/tier-requests/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	var req DecideRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	r, err := h.service.Approve(c.Request.Context(), c.Param("id"), adminID(c), req.AdminNotes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// Reject handles POST /v1/admin/tier-requests/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	r, err := h.service.Reject(c.Request.Context(), c.Param("id"), adminID(c), req.RejectionReason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

// List handles GET /v1/admin/tier-requests
func (h *Handler) List(c *gin.Context) {
	limit := parseIntQuery(c, "limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}

	q := ListQuery{
		Status: Status(c.Query("status")),
		Type:   RequestType(c.Query("type")),
		Limit:  limit,
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "invalid cursor",
		})
		return
	}
	if cursor != nil {
		q.AfterRequestedAt = cursor.CreatedAt
		q.AfterID = cursor.ID
	}

	items, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	page, next, hasMore := pagination.ComputePage(items, limit, func(r *Request) (time.Time, string) {
		return r.RequestedAt, r.ID
	})
	if page == nil {
		page = []*Request{}
	}

	c.JSON(http.StatusOK, gin.H{
		"requests":    page,
		"next_cursor": next,
		"has_more":    hasMore,
	})
}

// adminID identifies the acting admin for the audit trail. Falls back to a
// fixed marker when the admin authenticated via shared secret only.
func adminID(c *gin.Context) string {
	if id := auth.GetAuthenticatedAccount(c); id != "" {
		return id
	}
	return "admin"
}

// respondError maps workflow errors to stable wire codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Request not found",
		})
	case errors.Is(err, ErrInvalidStatus):
		msg := "Request is not pending"
		var ise *InvalidStatusError
		if errors.As(err, &ise) {
			msg = fmt.Sprintf("Request is not pending (status %s)", ise.Actual)
		}
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_status",
			"message": msg,
		})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You do not own this request",
		})
	case errors.Is(err, ErrDuplicatePending):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "duplicate_pending",
			"message": "A pending request of this type already exists",
		})
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrSameTier),
		errors.Is(err, ErrNotAnUpgrade),
		errors.Is(err, ErrNotADowngrade):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to process request",
		})
	}
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
