package middleware

import (
	"errors"
	"net/http"

	"go-pos-billing/internal/logger"
	"go-pos-billing/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by TenantAuth
const (
	TenantContextKey = "tenant"
	TenantKeyKey     = "tenant_key"
)

// TenantAuth resolves the acting tenant from an API credential or the session.
// Every authentication failure gets the same 401 body.
func TenantAuth(resolver *tenant.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, err := resolver.Resolve(c.Request)
		if err != nil {
			if errors.Is(err, tenant.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			logger.GetGinLogger(c).Error("Tenant resolution failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		// Store the tenant for the handlers and the request logger
		c.Set(TenantContextKey, tc)
		c.Set(TenantKeyKey, tc.Key)
		c.Next()
	}
}

// RequireSession is a secondary guard for owner-only routes such as key management;
// an API key cannot be used to mint or revoke API keys.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := GetTenant(c)
		if tc == nil || tc.Method != tenant.MethodSession {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "this action requires a signed-in owner"})
			return
		}
		c.Next()
	}
}

// GetTenant returns the tenant set by TenantAuth, or nil
func GetTenant(c *gin.Context) *tenant.Context {
	v, ok := c.Get(TenantContextKey)
	if !ok {
		return nil
	}
	tc, _ := v.(*tenant.Context)
	return tc
}
