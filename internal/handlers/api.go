package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go-pos-billing/internal/auth"
	"go-pos-billing/internal/checkout"
	"go-pos-billing/internal/config"
	"go-pos-billing/internal/inventory"
	"go-pos-billing/internal/logger"
	"go-pos-billing/internal/pricing"
	"go-pos-billing/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API holds the dependencies shared by every handler
type API struct {
	DB          *gorm.DB
	Config      *config.Config
	Tenants     *tenant.Store
	Resolver    *tenant.Resolver
	Sessions    *auth.SessionManager
	Credentials *auth.CredentialService
	Catalog     *inventory.Catalog
	Checkout    *checkout.Finalizer
	// Clock resolves named report periods; nil means time.Now
	Clock func() time.Time
}

// respondError maps domain errors to HTTP responses. Anything unrecognized is
// logged and reported as a bare 500.
func respondError(c *gin.Context, err error) {
	var (
		verr     *pricing.ValidationError
		inErr    *inventory.InputError
		stockErr *inventory.StockError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.As(err, &inErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": inErr.Error(), "field": inErr.Field})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     stockErr.Error(),
			"productId": stockErr.ProductID,
			"available": stockErr.Available,
		})
	case errors.Is(err, tenant.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, auth.ErrCredentialExists):
		c.JSON(http.StatusConflict, gin.H{"error": "an API key is already issued; rotate it to get a new one"})
	case errors.Is(err, checkout.ErrDuplicateCheckout),
		errors.Is(err, checkout.ErrSaleNotCompleted),
		errors.Is(err, inventory.ErrDuplicateSKU):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, checkout.ErrSaleNotFound),
		errors.Is(err, checkout.ErrInvalidToken),
		errors.Is(err, auth.ErrNoCredential),
		errors.Is(err, tenant.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid Product ID")
		return 0, false
	}
	return uint(id), true
}
