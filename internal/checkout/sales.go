package checkout

import (
	"context"
	"errors"
	"fmt"

	"go-pos-billing/internal/database"
	"go-pos-billing/internal/models"
	"go-pos-billing/internal/notify"
	"go-pos-billing/internal/pricing"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Get returns one sale with its items
func (f *Finalizer) Get(ctx context.Context, tenantKey, billID string) (*models.Sale, error) {
	var sale models.Sale
	err := f.db.WithContext(ctx).Scopes(database.TenantScope(tenantKey)).
		Preload("Items").
		Where("bill_id = ?", billID).
		First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return &sale, nil
}

// List returns the tenant's sales in the window, newest first
func (f *Finalizer) List(ctx context.Context, tenantKey string, w database.Window) ([]models.Sale, error) {
	var sales []models.Sale
	err := f.db.WithContext(ctx).
		Scopes(database.TenantScope(tenantKey), w.Scope("created_at")).
		Preload("Items").
		Order("created_at DESC").Order("id DESC").
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}

// Resend corrects the receipt destination of a completed sale and sends the receipt
// again. The sale row is updated in place and counts one more edit.
func (f *Finalizer) Resend(ctx context.Context, tenantKey, billID string, c Customer) (*Result, error) {
	c = c.trimmed()
	if c.Phone == "" && c.Email == "" {
		return nil, &pricing.ValidationError{Field: "customer", Message: "a phone or email is required"}
	}

	sale, err := f.Get(ctx, tenantKey, billID)
	if err != nil {
		return nil, err
	}
	if sale.Status != models.SaleStatusCompleted {
		return nil, ErrSaleNotCompleted
	}

	updates := map[string]interface{}{
		"is_edited":  true,
		"edit_count": gorm.Expr("edit_count + 1"),
		"updated_at": f.now().UTC(),
	}
	for col, v := range map[string]string{
		"customer_name":  c.Name,
		"customer_phone": c.Phone,
		"customer_email": c.Email,
	} {
		if v != "" {
			updates[col] = v
		}
	}
	res := f.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ? AND status = ?", sale.ID, models.SaleStatusCompleted).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update sale: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSaleNotCompleted
	}

	sale, err = f.Get(ctx, tenantKey, billID)
	if err != nil {
		return nil, err
	}
	out := &Result{Sale: sale}
	f.dispatch(ctx, notify.EventResent, out)
	return out, nil
}

// Handoff reissues the device handoff of a pending, unexpired sale
func (f *Finalizer) Handoff(ctx context.Context, tenantKey, billID string) (*Handoff, error) {
	sale, err := f.Get(ctx, tenantKey, billID)
	if err != nil {
		return nil, err
	}
	if sale.Status != models.SaleStatusPending || sale.PublicToken == nil ||
		sale.ExpiresAt == nil || !f.now().Before(*sale.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return f.bridge.Handoff(ctx, sale)
}

// CompleteDeferred is the device bridge's confirmation. One conditional UPDATE moves a
// pending, unexpired sale to completed and clears its token, so a token works once.
// No receipt is sent; the device delivers it.
func (f *Finalizer) CompleteDeferred(ctx context.Context, token string) (*models.Sale, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	var sale models.Sale
	err := f.db.WithContext(ctx).Where("public_token = ?", token).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("find pending sale: %w", err)
	}

	now := f.now().UTC()
	res := f.db.WithContext(ctx).Model(&models.Sale{}).
		Where("id = ? AND public_token = ? AND status = ? AND expires_at > ?",
			sale.ID, token, models.SaleStatusPending, now).
		Updates(map[string]interface{}{
			"status":       models.SaleStatusCompleted,
			"completed_at": now,
			"public_token": gorm.Expr("NULL"),
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("complete sale: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidToken
	}

	f.log.Info("Deferred sale completed",
		zap.String("tenant", sale.TenantID),
		zap.String("bill_id", sale.BillID))
	return f.Get(ctx, sale.TenantID, sale.BillID)
}
