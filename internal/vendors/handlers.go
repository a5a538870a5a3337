package vendors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/portsidehq/portside/internal/access"
	"github.com/portsidehq/portside/internal/auth"
	"github.com/portsidehq/portside/internal/tier"
)

// Handler provides HTTP handlers for the vendor profile API.
type Handler struct {
	service *Service
}

// NewHandler creates a new vendor handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes sets up unauthenticated read routes.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/vendors", h.List)
	r.GET("/vendors/:id", h.Get)
	r.GET("/tiers", h.ListTiers)
}

// RegisterRoutes sets up vendor-facing routes on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/vendors", h.Create)
	r.GET("/vendors/:id/edit", h.GetForEdit)
	r.PATCH("/vendors/:id", h.Update)
	r.GET("/vendors/:id/downgrade-preview", h.DowngradePreview)
}

// Create handles POST /v1/vendors
func (h *Handler) Create(c *gin.Context) {
	accountID := auth.GetAuthenticatedAccount(c)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "companyName and slug are required",
		})
		return
	}

	p, err := h.service.Create(c.Request.Context(), accountID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, p)
}

// Get handles GET /v1/vendors/:id (accepts slug or profile ID)
func (h *Handler) Get(c *gin.Context) {
	p, computed, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	// Unpublished profiles are only visible to their owner or an admin.
	if !p.Published && !callerFrom(c).CanAccess(p) {
		respondError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":  p,
		"computed": computed,
	})
}

// List handles GET /v1/vendors?published=true&limit=50
func (h *Handler) List(c *gin.Context) {
	publishedOnly := c.DefaultQuery("published", "true") != "false"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	profiles, err := h.service.List(c.Request.Context(), publishedOnly, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if profiles == nil {
		profiles = []*Profile{}
	}

	c.JSON(http.StatusOK, gin.H{
		"vendors": profiles,
		"count":   len(profiles),
	})
}

// ListTiers handles GET /v1/tiers
func (h *Handler) ListTiers(c *gin.Context) {
	out := make([]gin.H, 0, len(tier.All()))
	for _, t := range tier.All() {
		out = append(out, gin.H{
			"tier":         t,
			"displayName":  t.DisplayName(),
			"fields":       access.AccessibleFields(t),
			"features":     access.FeaturesFor(t),
			"maxLocations": tier.MaxLocations(t),
			"maxProducts":  tier.MaxProducts(t),
			"maxMedia":     tier.MaxMedia(t),
		})
	}
	c.JSON(http.StatusOK, gin.H{"tiers": out})
}

// GetForEdit handles GET /v1/vendors/:id/edit
func (h *Handler) GetForEdit(c *gin.Context) {
	view, err := h.service.GetForEdit(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Update handles PATCH /v1/vendors/:id
func (h *Handler) Update(c *gin.Context) {
	var changes map[string]json.RawMessage
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	p, err := h.service.Update(c.Request.Context(), callerFrom(c), c.Param("id"), changes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, p)
}

// DowngradePreview handles GET /v1/vendors/:id/downgrade-preview?target=tier1
//
// Reports what the account would lose on the target tier. Never mutates.
func (h *Handler) DowngradePreview(c *gin.Context) {
	target := tier.Tier(c.Query("target"))
	if !target.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "target must be one of: free, tier1, tier2, tier3",
		})
		return
	}

	p, err := h.service.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !callerFrom(c).CanAccess(p) {
		respondError(c, ErrForbidden)
		return
	}

	report := access.ValidateDowngrade(p.Tier, target, p.Usage())
	c.JSON(http.StatusOK, gin.H{
		"report": report,
		"clean":  report.Clean(),
	})
}

// callerFrom builds the mutation caller from the request's auth context.
func callerFrom(c *gin.Context) Caller {
	return Caller{
		AccountID: auth.GetAuthenticatedAccount(c),
		IsAdmin:   auth.IsAdminRequest(c),
	}
}

// respondError maps service errors to stable wire codes.
func respondError(c *gin.Context, err error) {
	var fieldErr *access.FieldAccessError
	var qtyErr *access.QuantityError

	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Vendor profile not found",
		})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You do not own this profile",
		})
	case errors.Is(err, ErrSlugTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "slug_taken",
			"message": "That slug is already in use",
		})
	case errors.Is(err, ErrAccountExists):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "account_exists",
			"message": "This account already has a profile",
		})
	case errors.As(err, &fieldErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": fieldErr.Error(),
			"denied":  fieldErr.Denied,
			"tier":    fieldErr.Tier,
		})
	case errors.As(err, &qtyErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error":        "forbidden",
			"message":      qtyErr.Error(),
			"limit":        qtyErr.Limit,
			"requested":    qtyErr.Requested,
			"requiredTier": qtyErr.RequiredTier,
		})
	case errors.Is(err, ErrValidation):
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
