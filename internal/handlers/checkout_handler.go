package handlers

import (
	"net/http"

	"go-pos-billing/internal/checkout"
	"go-pos-billing/internal/database"
	"go-pos-billing/internal/middleware"
	"go-pos-billing/internal/models"
	"go-pos-billing/internal/pricing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// IdempotencyHeader carries the client's token for one checkout attempt
const IdempotencyHeader = "Idempotency-Key"

type quoteRequest struct {
	Lines       []pricing.Line   `json:"lines"`
	Discount    pricing.Discount `json:"discount"`
	AmountGiven decimal.Decimal  `json:"amountGiven"`
}

// SaleRequest is what the POS front-end sends at checkout
type SaleRequest struct {
	quoteRequest
	IdempotencyKey string               `json:"idempotencyKey"`
	PaymentMethod  models.PaymentMethod `json:"paymentMethod"`
	Customer       checkout.Customer    `json:"customer"`
	Completion     checkout.Completion  `json:"completion"`
}

// --- POST: Price a cart without saving anything ---
func (a *API) QuoteCart(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	quote, err := a.Checkout.Quote(c.Request.Context(), c.GetString("tenant_key"), req.Lines, req.Discount, req.AmountGiven)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// --- POST: Finalize a sale ---
func (a *API) ProcessSale(c *gin.Context) {
	var req SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	key := c.GetHeader(IdempotencyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := a.Checkout.Finalize(c.Request.Context(), c.GetString("tenant_key"), checkout.Request{
		IdempotencyKey: key,
		Lines:          req.Lines,
		Discount:       req.Discount,
		AmountGiven:    req.AmountGiven,
		PaymentMethod:  req.PaymentMethod,
		Customer:       req.Customer,
		Completion:     req.Completion,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// --- POST: Device bridge confirms a deferred sale ---
func (a *API) CompleteDeferred(c *gin.Context) {
	sale, err := a.Checkout.CompleteDeferred(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"billId":      sale.BillID,
		"status":      sale.Status,
		"completedAt": sale.CompletedAt,
	})
}

type resendRequest struct {
	Customer checkout.Customer `json:"customer"`
}

// --- POST: Correct the receipt destination and send again ---
func (a *API) ResendReceipt(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	res, err := a.Checkout.Resend(c.Request.Context(), c.GetString("tenant_key"), c.Param("billId"), req.Customer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- POST: Hand a pending sale to the device again ---
func (a *API) ReissueHandoff(c *gin.Context) {
	handoff, err := a.Checkout.Handoff(c.Request.Context(), c.GetString("tenant_key"), c.Param("billId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handoff)
}

// --- GET: Sales for export, newest first ---
func (a *API) ListSales(c *gin.Context) {
	w, ok := a.window(c)
	if !ok {
		return
	}
	sales, err := a.Checkout.List(c.Request.Context(), c.GetString("tenant_key"), w)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

// --- GET: One sale with its items ---
func (a *API) GetSale(c *gin.Context) {
	sale, err := a.Checkout.Get(c.Request.Context(), c.GetString("tenant_key"), c.Param("billId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// window reads period/from/to on the tenant's local day boundaries
func (a *API) window(c *gin.Context) (database.Window, bool) {
	tz := ""
	if tc := middleware.GetTenant(c); tc != nil && tc.Tenant != nil {
		tz = tc.Tenant.Timezone
	}
	loc := database.LoadLocation(tz, a.Config.App.Timezone)

	w, err := database.ResolveWindow(c.Query("period"), c.Query("from"), c.Query("to"), loc, a.now())
	if err != nil {
		badRequest(c, err.Error())
		return database.Window{}, false
	}
	return w, true
}
