package handlers

import (
	"net/http"
	"time"

	"go-pos-billing/internal/database"

	"github.com/gin-gonic/gin"
)

func (a *API) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}

// --- GET: /api/reports/summary ---
// Totals by payment method, profit and bills. No filter means all time.
func (a *API) GetSalesReport(c *gin.Context) {
	w, ok := a.window(c)
	if !ok {
		return
	}
	summary, err := database.Summarize(c.Request.Context(), a.DB, c.GetString("tenant_key"), w)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// --- GET: /api/reports/valuation ---
// GetStockValuation values all stock on hand at cost, grouped by category
func (a *API) GetStockValuation(c *gin.Context) {
	valuation, err := database.StockValuation(c.Request.Context(), a.DB, c.GetString("tenant_key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, valuation)
}
