package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-pos-billing/internal/database"
	"go-pos-billing/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrDuplicateSKU is returned when a tenant already has a product with the SKU
var ErrDuplicateSKU = errors.New("sku already exists")

// InputError rejects a malformed product write
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Message
}

// ProductInput is a product as submitted by the inventory UI
type ProductInput struct {
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	Quantity          int             `json:"quantity"`
	SellingPrice      decimal.Decimal `json:"sellingPrice"`
	CostPrice         decimal.Decimal `json:"costPrice"`
	TaxRate           decimal.Decimal `json:"taxRate"`
	LowStockThreshold *int            `json:"lowStockThreshold"`
}

// ProductUpdate is a partial update. Absolute fields replace stored values;
// QuantityToDecrement goes through the clamped atomic decrement instead.
type ProductUpdate struct {
	SKU                 *string          `json:"sku"`
	Name                *string          `json:"name"`
	Category            *string          `json:"category"`
	Quantity            *int             `json:"quantity"`
	SellingPrice        *decimal.Decimal `json:"sellingPrice"`
	CostPrice           *decimal.Decimal `json:"costPrice"`
	TaxRate             *decimal.Decimal `json:"taxRate"`
	LowStockThreshold   *int             `json:"lowStockThreshold"`
	QuantityToDecrement *int             `json:"quantityToDecrement"`
}

// Catalog is the tenant-scoped product repository
type Catalog struct {
	db *gorm.DB
}

// NewCatalog creates a product repository
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// List returns the tenant's products ordered by name
func (c *Catalog) List(ctx context.Context, tenantKey string) ([]models.Product, error) {
	var products []models.Product
	err := c.db.WithContext(ctx).Scopes(database.TenantScope(tenantKey)).
		Order("name ASC").Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// LowStock returns products at or below their low-stock threshold
func (c *Catalog) LowStock(ctx context.Context, tenantKey string) ([]models.Product, error) {
	var products []models.Product
	err := c.db.WithContext(ctx).Scopes(database.TenantScope(tenantKey)).
		Where("low_stock_threshold IS NOT NULL AND quantity <= low_stock_threshold").
		Order("quantity ASC").Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("list low stock: %w", err)
	}
	return products, nil
}

// Get returns one product
func (c *Catalog) Get(ctx context.Context, tenantKey string, id uint) (*models.Product, error) {
	var p models.Product
	err := c.db.WithContext(ctx).Scopes(database.TenantScope(tenantKey)).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// Create adds a product owned by tenantKey
func (c *Catalog) Create(ctx context.Context, tenantKey string, in ProductInput) (*models.Product, error) {
	in.SKU = strings.TrimSpace(in.SKU)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.SKU == "":
		return nil, &InputError{Field: "sku", Message: "is required"}
	case in.Name == "":
		return nil, &InputError{Field: "name", Message: "is required"}
	case in.Quantity < 0:
		return nil, &InputError{Field: "quantity", Message: "must not be negative"}
	}
	if err := checkMoney(in.SellingPrice, in.CostPrice, in.TaxRate); err != nil {
		return nil, err
	}

	p := &models.Product{
		TenantID:          tenantKey,
		SKU:               in.SKU,
		Name:              in.Name,
		Category:          in.Category,
		Quantity:          in.Quantity,
		SellingPrice:      in.SellingPrice,
		CostPrice:         in.CostPrice,
		TaxRate:           in.TaxRate,
		LowStockThreshold: in.LowStockThreshold,
	}
	if err := c.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateSKU
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// Update applies a partial update. A request carrying both an absolute quantity and
// a decrement is rejected as ambiguous.
func (c *Catalog) Update(ctx context.Context, tenantKey string, id uint, u ProductUpdate) (*models.Product, error) {
	if u.Quantity != nil && u.QuantityToDecrement != nil {
		return nil, &InputError{Field: "quantity", Message: "cannot be combined with quantityToDecrement"}
	}
	if u.Quantity != nil && *u.Quantity < 0 {
		return nil, &InputError{Field: "quantity", Message: "must not be negative"}
	}
	if u.QuantityToDecrement != nil && *u.QuantityToDecrement < 0 {
		return nil, &InputError{Field: "quantityToDecrement", Message: "must not be negative"}
	}

	fields, err := u.columns()
	if err != nil {
		return nil, err
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(fields) > 0 {
			res := tx.Model(&models.Product{}).
				Scopes(database.TenantScope(tenantKey)).
				Where("id = ?", id).
				Updates(fields)
			if res.Error != nil {
				if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
					return ErrDuplicateSKU
				}
				return fmt.Errorf("update product: %w", res.Error)
			}
		}
		if u.QuantityToDecrement != nil {
			return NewGuard(tx).ApplyDecrement(ctx, tenantKey, id, *u.QuantityToDecrement)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.Get(ctx, tenantKey, id)
}

func (u ProductUpdate) columns() (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if u.SKU != nil {
		sku := strings.TrimSpace(*u.SKU)
		if sku == "" {
			return nil, &InputError{Field: "sku", Message: "must not be empty"}
		}
		fields["sku"] = sku
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, &InputError{Field: "name", Message: "must not be empty"}
		}
		fields["name"] = name
	}
	if u.Category != nil {
		fields["category"] = *u.Category
	}
	if u.Quantity != nil {
		fields["quantity"] = *u.Quantity
	}
	for _, m := range []struct {
		column, field string
		value         *decimal.Decimal
	}{
		{"selling_price", "sellingPrice", u.SellingPrice},
		{"cost_price", "costPrice", u.CostPrice},
		{"tax_rate", "taxRate", u.TaxRate},
	} {
		if m.value == nil {
			continue
		}
		if m.value.IsNegative() {
			return nil, &InputError{Field: m.field, Message: "must not be negative"}
		}
		fields[m.column] = *m.value
	}
	if u.LowStockThreshold != nil {
		fields["low_stock_threshold"] = *u.LowStockThreshold
	}
	return fields, nil
}

// Delete removes a product. Past sales keep their item snapshots.
func (c *Catalog) Delete(ctx context.Context, tenantKey string, id uint) error {
	res := c.db.WithContext(ctx).Scopes(database.TenantScope(tenantKey)).
		Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return fmt.Errorf("delete product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func checkMoney(selling, cost, rate decimal.Decimal) error {
	switch {
	case selling.IsNegative():
		return &InputError{Field: "sellingPrice", Message: "must not be negative"}
	case cost.IsNegative():
		return &InputError{Field: "costPrice", Message: "must not be negative"}
	case rate.IsNegative():
		return &InputError{Field: "taxRate", Message: "must not be negative"}
	}
	return nil
}
