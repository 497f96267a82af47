package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-pos-billing/internal/database"
	"go-pos-billing/internal/inventory"
	"go-pos-billing/internal/models"
	"go-pos-billing/internal/notify"
	"go-pos-billing/internal/pricing"
	"go-pos-billing/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateCheckout is returned when an idempotency key is reused
	ErrDuplicateCheckout = errors.New("checkout already submitted")
	// ErrSaleNotFound is returned when no sale matches for the tenant
	ErrSaleNotFound = errors.New("sale not found")
	// ErrSaleNotCompleted is returned when correcting a sale that is still pending
	ErrSaleNotCompleted = errors.New("sale is not completed")
	// ErrInvalidToken covers unknown, expired and already used public tokens
	ErrInvalidToken = errors.New("invalid or expired token")
)

const (
	maxKeyLength    = 128
	maxBillAttempts = 3
)

// Completion selects how a cart becomes a sale
type Completion string

const (
	CompletionImmediate Completion = "immediate"
	CompletionDeferred  Completion = "deferred" // confirmed later by the tap device
)

// Customer is the receipt destination
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (c Customer) trimmed() Customer {
	return Customer{
		Name:  strings.TrimSpace(c.Name),
		Phone: strings.TrimSpace(c.Phone),
		Email: strings.TrimSpace(c.Email),
	}
}

// Request is one checkout attempt
type Request struct {
	IdempotencyKey string
	Lines          []pricing.Line
	Discount       pricing.Discount
	AmountGiven    decimal.Decimal
	PaymentMethod  models.PaymentMethod
	Customer       Customer
	Completion     Completion
}

// Result is the outcome of a checkout or a resend
type Result struct {
	Sale     *models.Sale   `json:"sale"`
	Quote    *pricing.Quote `json:"quote,omitempty"`
	Handoff  *Handoff       `json:"handoff,omitempty"`
	Notified bool           `json:"notified"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Options tunes the finalizer
type Options struct {
	PendingTTL     time.Duration
	IdempotencyTTL time.Duration
}

// Finalizer turns carts into durable sales
type Finalizer struct {
	db        *gorm.DB
	keys      KeyStore
	notifier  notify.Notifier
	bridge    DeviceBridge
	opts      Options
	now       func() time.Time
	newBillID func(time.Time) string
	log       *zap.Logger
}

// NewFinalizer wires a finalizer
func NewFinalizer(db *gorm.DB, keys KeyStore, notifier notify.Notifier, bridge DeviceBridge, opts Options, log *zap.Logger) *Finalizer {
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 24 * time.Hour
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Finalizer{
		db:        db,
		keys:      keys,
		notifier:  notifier,
		bridge:    bridge,
		opts:      opts,
		now:       time.Now,
		newBillID: utils.NewBillID,
		log:       log,
	}
}

// Quote prices a cart without persisting anything. Product-bound lines without a
// unit profit take it from the product's selling and cost prices.
func (f *Finalizer) Quote(ctx context.Context, tenantKey string, lines []pricing.Line, discount pricing.Discount, amountGiven decimal.Decimal) (*pricing.Quote, error) {
	lines, err := f.withProductProfit(ctx, tenantKey, lines)
	if err != nil {
		return nil, err
	}
	return pricing.Price(lines, discount, amountGiven)
}

// Finalize runs one checkout. Validation, stock and persistence all happen before
// anything is reported as done; the receipt (immediate) or device handoff (deferred)
// follows the commit and cannot undo it.
func (f *Finalizer) Finalize(ctx context.Context, tenantKey string, req Request) (*Result, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	amountGiven := decimal.Zero
	if req.PaymentMethod == models.PaymentCash {
		amountGiven = req.AmountGiven
	}
	quote, err := f.Quote(ctx, tenantKey, req.Lines, req.Discount, amountGiven)
	if err != nil {
		return nil, err
	}
	if quote.Balance.IsNegative() {
		return nil, &pricing.ValidationError{Field: "amountGiven", Message: "is less than the total"}
	}

	key := scopedKey(tenantKey, req.IdempotencyKey)
	claimed, err := f.keys.Acquire(ctx, key, f.opts.IdempotencyTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrDuplicateCheckout
	}

	sale, err := f.persist(ctx, tenantKey, req, quote)
	if err != nil {
		if relErr := f.keys.Release(ctx, key); relErr != nil {
			f.log.Warn("Failed to release idempotency key", zap.Error(relErr))
		}
		return nil, err
	}

	res := &Result{Sale: sale, Quote: quote}
	switch req.Completion {
	case CompletionImmediate:
		f.dispatch(ctx, notify.EventIssued, res)
	case CompletionDeferred:
		handoff, err := f.bridge.Handoff(ctx, sale)
		if err != nil {
			f.log.Warn("Device handoff failed", zap.String("bill_id", sale.BillID), zap.Error(err))
			res.Warnings = append(res.Warnings, "device handoff failed; retry from the sales list")
		}
		res.Handoff = handoff
	}
	return res, nil
}

func validateRequest(req *Request) error {
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	switch {
	case req.IdempotencyKey == "":
		return &pricing.ValidationError{Field: "idempotencyKey", Message: "is required"}
	case len(req.IdempotencyKey) > maxKeyLength:
		return &pricing.ValidationError{Field: "idempotencyKey", Message: fmt.Sprintf("must be at most %d characters", maxKeyLength)}
	case !req.PaymentMethod.Valid():
		return &pricing.ValidationError{Field: "paymentMethod", Message: fmt.Sprintf("unknown payment method %q", req.PaymentMethod)}
	}
	switch req.Completion {
	case CompletionImmediate, CompletionDeferred:
	case "":
		req.Completion = CompletionImmediate
	default:
		return &pricing.ValidationError{Field: "completion", Message: fmt.Sprintf("unknown completion %q", req.Completion)}
	}
	req.Customer = req.Customer.trimmed()
	return nil
}

func (f *Finalizer) withProductProfit(ctx context.Context, tenantKey string, lines []pricing.Line) ([]pricing.Line, error) {
	var ids []uint
	for _, l := range lines {
		if l.ProductID != nil && l.UnitProfit == nil {
			ids = append(ids, *l.ProductID)
		}
	}
	if len(ids) == 0 {
		return lines, nil
	}

	var products []models.Product
	err := f.db.WithContext(ctx).Scopes(database.TenantScope(tenantKey)).
		Where("id IN ?", ids).Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	out := make([]pricing.Line, len(lines))
	copy(out, lines)
	for i, l := range out {
		if l.ProductID == nil || l.UnitProfit != nil {
			continue
		}
		p, ok := byID[*l.ProductID]
		if !ok {
			return nil, fmt.Errorf("line %d: %w", i, inventory.ErrProductNotFound)
		}
		margin := p.SellingPrice.Sub(p.CostPrice)
		out[i].UnitProfit = &margin
	}
	return out, nil
}

// persist commits the sale and its stock reservations in one transaction. A unique
// violation is a reused checkout key only when a sale with that key exists; otherwise
// the random bill id or public token collided and the sale is retried with fresh ones.
func (f *Finalizer) persist(ctx context.Context, tenantKey string, req Request, quote *pricing.Quote) (*models.Sale, error) {
	now := f.now().UTC()
	for attempt := 1; ; attempt++ {
		sale := f.newSale(tenantKey, req, quote, now)
		err := f.insert(ctx, tenantKey, quote, sale)
		if err == nil {
			f.log.Info("Sale finalized",
				zap.String("tenant", tenantKey),
				zap.String("bill_id", sale.BillID),
				zap.String("status", string(sale.Status)),
				zap.String("amount", sale.Amount.StringFixed(2)))
			return sale, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}

		taken, lookupErr := f.checkoutKeyTaken(ctx, tenantKey, req.IdempotencyKey)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if taken {
			return nil, ErrDuplicateCheckout
		}
		if attempt == maxBillAttempts {
			return nil, fmt.Errorf("create sale after %d bill id collisions: %w", attempt, err)
		}
		f.log.Warn("Bill id collision, regenerating",
			zap.String("bill_id", sale.BillID), zap.Int("attempt", attempt))
	}
}

func (f *Finalizer) newSale(tenantKey string, req Request, quote *pricing.Quote, now time.Time) *models.Sale {
	sale := &models.Sale{
		TenantID:      tenantKey,
		BillID:        f.newBillID(now),
		CheckoutKey:   req.IdempotencyKey,
		Amount:        quote.Total,
		Subtotal:      quote.Subtotal,
		TaxTotal:      quote.TaxTotal,
		Discount:      quote.Discount,
		Profit:        quote.Profit,
		AmountGiven:   quote.AmountGiven,
		Balance:       quote.Balance,
		PaymentMethod: req.PaymentMethod,
		CustomerName:  req.Customer.Name,
		CustomerPhone: req.Customer.Phone,
		CustomerEmail: req.Customer.Email,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, l := range quote.Lines {
		sale.Items = append(sale.Items, models.SaleItem{
			ProductID: l.ProductID,
			Name:      strings.TrimSpace(l.Name),
			Quantity:  l.Quantity,
			Price:     l.Price,
			TaxRate:   l.TaxRate,
			LineTotal: l.Extended,
		})
	}

	switch req.Completion {
	case CompletionImmediate:
		sale.Status = models.SaleStatusCompleted
		sale.CompletedAt = &now
	case CompletionDeferred:
		token := utils.NewPublicToken()
		expires := now.Add(f.opts.PendingTTL)
		sale.Status = models.SaleStatusPending
		sale.PublicToken = &token
		sale.ExpiresAt = &expires
	}
	return sale
}

func (f *Finalizer) insert(ctx context.Context, tenantKey string, quote *pricing.Quote, sale *models.Sale) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := inventory.NewGuard(tx)
		for _, l := range quote.Lines {
			if l.ProductID == nil {
				continue
			}
			if _, err := guard.Reserve(ctx, tenantKey, *l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := tx.Create(sale).Error; err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		return nil
	})
}

// checkoutKeyTaken matches idx_sales_tenant_checkout exactly
func (f *Finalizer) checkoutKeyTaken(ctx context.Context, tenantKey, key string) (bool, error) {
	var n int64
	err := f.db.WithContext(ctx).Model(&models.Sale{}).
		Where("tenant_id = ? AND checkout_key = ?", tenantKey, key).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check checkout key: %w", err)
	}
	return n > 0, nil
}

// dispatch sends the receipt; failure is a warning on the result, never an error.
func (f *Finalizer) dispatch(ctx context.Context, event notify.Event, res *Result) {
	receipt := notify.ReceiptFromSale(event, res.Sale)
	if !receipt.HasDestination() {
		return
	}
	if err := f.notifier.Notify(ctx, receipt); err != nil {
		f.log.Warn("Receipt notification failed",
			zap.String("bill_id", res.Sale.BillID),
			zap.Error(err))
		res.Warnings = append(res.Warnings, "receipt could not be sent; the sale is saved")
		return
	}
	res.Notified = true
}
