package handlers

import (
	"net/http"
	"strconv"

	"go-pos-billing/internal/inventory"

	"github.com/gin-gonic/gin"
)

// --- GET: List all products ---
func (a *API) GetProducts(c *gin.Context) {
	products, err := a.Catalog.List(c.Request.Context(), c.GetString("tenant_key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// --- GET: Products at or below their threshold ---
func (a *API) GetLowStock(c *gin.Context) {
	products, err := a.Catalog.LowStock(c.Request.Context(), c.GetString("tenant_key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// --- POST: Add a new product ---
func (a *API) AddProduct(c *gin.Context) {
	var input inventory.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input")
		return
	}

	product, err := a.Catalog.Create(c.Request.Context(), c.GetString("tenant_key"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// --- PUT: Update fields, or decrement stock with quantityToDecrement ---
func (a *API) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	// Pointer fields: only what was sent is updated
	var update inventory.ProductUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Invalid input")
		return
	}

	product, err := a.Catalog.Update(c.Request.Context(), c.GetString("tenant_key"), id, update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully", "product": product})
}

// --- DELETE: Remove a product ---
func (a *API) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := a.Catalog.Delete(c.Request.Context(), c.GetString("tenant_key"), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

// --- GET: Non-binding cart-add check against the current stock ---
func (a *API) CheckAvailability(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	qty, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil || qty < 1 {
		badRequest(c, "quantity must be a positive integer")
		return
	}

	product, err := a.Catalog.Get(c.Request.Context(), c.GetString("tenant_key"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"productId": product.ID,
		"requested": qty,
		"inStock":   product.Quantity,
		"available": inventory.CheckAvailability(product, qty) == nil,
	})
}
