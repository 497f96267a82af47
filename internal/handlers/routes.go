package handlers

import (
	"net/http"

	"go-pos-billing/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts every endpoint on r
func (a *API) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "online"}) })
	r.POST("/login", a.Login)
	r.POST("/logout", a.Logout)

	// Only opens if explicitly allowed in config
	if a.Config.App.AllowRegistration {
		r.POST("/register", a.Register)
	}

	// Bridge confirmation: authorized by the single-use token itself
	r.POST("/public/sales/:token/complete", a.CompleteDeferred)

	api := r.Group("/api")
	api.Use(middleware.TenantAuth(a.Resolver))
	{
		api.GET("/products", a.GetProducts)
		api.POST("/products", a.AddProduct)
		api.GET("/products/low-stock", a.GetLowStock)
		api.GET("/products/:id/availability", a.CheckAvailability)
		api.PUT("/products/:id", a.UpdateProduct)
		api.DELETE("/products/:id", a.DeleteProduct)

		api.POST("/cart/quote", a.QuoteCart)
		api.POST("/checkout", a.ProcessSale)
		api.GET("/sales", a.ListSales)
		api.GET("/sales/:billId", a.GetSale)
		api.POST("/sales/:billId/resend", a.ResendReceipt)
		api.POST("/sales/:billId/handoff", a.ReissueHandoff)

		api.GET("/reports/summary", a.GetSalesReport)
		api.GET("/reports/valuation", a.GetStockValuation)

		// OWNER ONLY
		owner := api.Group("/credentials")
		owner.Use(middleware.RequireSession())
		{
			owner.GET("", a.GetCredential)
			owner.POST("", a.IssueCredential)
			owner.POST("/rotate", a.RotateCredential)
			owner.DELETE("", a.RevokeCredential)
		}
	}
}
