package handlers

import (
	"net/http"

	"go-pos-billing/internal/auth"
	"go-pos-billing/internal/logger"
	"go-pos-billing/internal/middleware"
	"go-pos-billing/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ownerTenant returns the signed-in owner's tenant, creating it on first use
func (a *API) ownerTenant(c *gin.Context) (*models.Tenant, bool) {
	tc := middleware.GetTenant(c)
	t, err := a.Tenants.EnsureTenant(c.Request.Context(), tc.Email)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return t, true
}

func keyResponse(t *models.Tenant, key *auth.IssuedKey) gin.H {
	return gin.H{
		"merchantId":   t.MerchantID,
		"subdomain":    t.Subdomain,
		"apiKey":       key.RawKey,
		"apiKeyPrefix": key.Prefix,
		"issuedAt":     key.IssuedAt,
		"warning":      "Store this key now. It cannot be shown again.",
	}
}

// GetCredential returns key metadata only; the raw key is never stored
func (a *API) GetCredential(c *gin.Context) {
	t, ok := a.ownerTenant(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"merchantId":   t.MerchantID,
		"subdomain":    t.Subdomain,
		"ownerEmail":   t.Owner(),
		"hasKey":       t.HasCredential(),
		"apiKeyPrefix": t.APIKeyPrefix,
		"issuedAt":     t.KeyIssuedAt,
	})
}

// IssueCredential creates the tenant's first API key
func (a *API) IssueCredential(c *gin.Context) {
	t, ok := a.ownerTenant(c)
	if !ok {
		return
	}
	key, err := a.Credentials.Issue(c.Request.Context(), t.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	logger.GetGinLogger(c).Info("API key issued",
		zap.String("merchant_id", t.MerchantID), zap.String("prefix", key.Prefix))
	c.JSON(http.StatusCreated, keyResponse(t, key))
}

// RotateCredential replaces the key; the old one stops working at once
func (a *API) RotateCredential(c *gin.Context) {
	t, ok := a.ownerTenant(c)
	if !ok {
		return
	}
	key, err := a.Credentials.Rotate(c.Request.Context(), t.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	logger.GetGinLogger(c).Info("API key rotated",
		zap.String("merchant_id", t.MerchantID), zap.String("prefix", key.Prefix))
	c.JSON(http.StatusOK, keyResponse(t, key))
}

// RevokeCredential removes the key
func (a *API) RevokeCredential(c *gin.Context) {
	t, ok := a.ownerTenant(c)
	if !ok {
		return
	}
	if err := a.Credentials.Revoke(c.Request.Context(), t.ID); err != nil {
		respondError(c, err)
		return
	}
	logger.GetGinLogger(c).Info("API key revoked", zap.String("merchant_id", t.MerchantID))
	c.JSON(http.StatusOK, gin.H{"message": "API key revoked"})
}
