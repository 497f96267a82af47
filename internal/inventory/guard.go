package inventory

import (
	"context"
	"errors"
	"fmt"

	"go-pos-billing/internal/database"
	"go-pos-billing/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrProductNotFound is returned when a product does not exist for the tenant
var ErrProductNotFound = errors.New("product not found")

// StockError rejects a request for more units than are on hand
type StockError struct {
	ProductID uint
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Name, e.Requested, e.Available)
}

// CheckAvailability rejects requested > product.Quantity. It reads the given snapshot
// only and reserves nothing.
func CheckAvailability(p *models.Product, requested int) error {
	if requested > p.Quantity {
		return &StockError{ProductID: p.ID, Name: p.Name, Requested: requested, Available: p.Quantity}
	}
	return nil
}

// Guard applies stock mutations for one tenant-scoped handle (a pool or a transaction)
type Guard struct {
	db *gorm.DB
}

// NewGuard binds a guard to db. Pass the transaction when decrementing inside a sale.
func NewGuard(db *gorm.DB) *Guard {
	return &Guard{db: db}
}

// ApplyDecrement sets quantity = max(0, quantity - n) in one UPDATE evaluated by the
// database, so concurrent decrements can neither lose an update nor go negative.
func (g *Guard) ApplyDecrement(ctx context.Context, tenantKey string, productID uint, n int) error {
	if n < 0 {
		return fmt.Errorf("decrement must not be negative, got %d", n)
	}
	res := g.db.WithContext(ctx).Model(&models.Product{}).
		Scopes(database.TenantScope(tenantKey)).
		Where("id = ?", productID).
		UpdateColumn("quantity", gorm.Expr("CASE WHEN quantity > ? THEN quantity - ? ELSE 0 END", n, n))
	if res.Error != nil {
		return fmt.Errorf("decrement stock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL reports changed rows, so a product already at zero looks untouched
		return g.ensureExists(ctx, tenantKey, productID)
	}
	return nil
}

func (g *Guard) ensureExists(ctx context.Context, tenantKey string, productID uint) error {
	var n int64
	err := g.db.WithContext(ctx).Model(&models.Product{}).
		Scopes(database.TenantScope(tenantKey)).
		Where("id = ?", productID).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("load product: %w", err)
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Reserve locks the product row, checks its quantity and decrements it by qty.
// Call it on a transaction so the lock holds until commit; concurrent reservations
// of the same product then see each other's decrements.
// The returned product holds the values read before the decrement.
func (g *Guard) Reserve(ctx context.Context, tenantKey string, productID uint, qty int) (*models.Product, error) {
	var p models.Product
	err := g.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(database.TenantScope(tenantKey)).
		First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if err := CheckAvailability(&p, qty); err != nil {
		return nil, err
	}
	if err := g.ApplyDecrement(ctx, tenantKey, productID, qty); err != nil {
		return nil, err
	}
	return &p, nil
}
