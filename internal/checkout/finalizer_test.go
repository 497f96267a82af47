package checkout

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-pos-billing/internal/database"
	"go-pos-billing/internal/inventory"
	"go-pos-billing/internal/models"
	"go-pos-billing/internal/notify"
	"go-pos-billing/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantKey = "owner@shop.io"

var skuSeq atomic.Int64

type recordingNotifier struct {
	mu       sync.Mutex
	receipts []notify.Receipt
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, r notify.Receipt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.receipts = append(n.receipts, r)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.receipts)
}

type harness struct {
	f        *Finalizer
	db       *gorm.DB
	notifier *recordingNotifier
	keys     *MemoryKeyStore
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	keys := NewMemoryKeyStore()
	t.Cleanup(func() {
		_ = keys.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	h := &harness{
		db:       db,
		notifier: &recordingNotifier{},
		keys:     keys,
		clock:    time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
	}
	h.f = NewFinalizer(db, keys, h.notifier, NewLinkBridge("https://tap.example.com/"), Options{}, zap.NewNop())
	h.f.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) product(t *testing.T, qty int) *models.Product {
	t.Helper()
	p := &models.Product{
		TenantID:     tenantKey,
		SKU:          "SKU-" + strconv.FormatInt(skuSeq.Add(1), 10),
		Name:         "Darjeeling tea",
		Quantity:     qty,
		SellingPrice: decimal.RequireFromString("100"),
		CostPrice:    decimal.RequireFromString("70"),
		TaxRate:      decimal.RequireFromString("18"),
	}
	require.NoError(t, h.db.Create(p).Error)
	return p
}

func (h *harness) quantity(t *testing.T, id uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, h.db.First(&p, id).Error)
	return p.Quantity
}

func (h *harness) saleCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.Sale{}).Count(&n).Error)
	return n
}

func request(key string, p *models.Product, qty int, completion Completion) Request {
	id := p.ID
	return Request{
		IdempotencyKey: key,
		Lines: []pricing.Line{{
			ProductID: &id,
			Name:      p.Name,
			Quantity:  qty,
			Price:     p.SellingPrice,
			TaxRate:   p.TaxRate,
			Mode:      pricing.TaxExclusive,
		}},
		PaymentMethod: models.PaymentUPI,
		Customer:      Customer{Name: "Asha", Phone: "+919800000001"},
		Completion:    completion,
	}
}

func TestFinalize_InsufficientStockPersistsNothing(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 3)

	_, err := h.f.Finalize(context.Background(), tenantKey, request("k-1", p, 5, CompletionImmediate))

	var stockErr *inventory.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 3, h.quantity(t, p.ID))
	assert.Zero(t, h.saleCount(t))
	assert.Zero(t, h.notifier.count())

	// the failed attempt released its key
	p2 := h.product(t, 10)
	_, err = h.f.Finalize(context.Background(), tenantKey, request("k-1", p2, 1, CompletionImmediate))
	assert.NoError(t, err)
}

func TestFinalize_Immediate(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5)

	res, err := h.f.Finalize(context.Background(), tenantKey, request("k-imm", p, 2, CompletionImmediate))
	require.NoError(t, err)

	assert.Equal(t, models.SaleStatusCompleted, res.Sale.Status)
	assert.NotNil(t, res.Sale.CompletedAt)
	assert.Nil(t, res.Sale.PublicToken)
	assert.Nil(t, res.Handoff)
	assert.Equal(t, "236.00", res.Sale.Amount.StringFixed(2))
	assert.Equal(t, "60.00", res.Sale.Profit.StringFixed(2))
	assert.Equal(t, 3, h.quantity(t, p.ID))

	assert.True(t, res.Notified)
	require.Equal(t, 1, h.notifier.count())
	assert.Equal(t, notify.EventIssued, h.notifier.receipts[0].Event)
	assert.Equal(t, res.Sale.BillID, h.notifier.receipts[0].BillID)

	stored, err := h.f.Get(context.Background(), tenantKey, res.Sale.BillID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "236.00", stored.Items[0].LineTotal.StringFixed(2))
}

func TestFinalize_Deferred(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5)

	res, err := h.f.Finalize(context.Background(), tenantKey, request("k-def", p, 2, CompletionDeferred))
	require.NoError(t, err)

	assert.Equal(t, models.SaleStatusPending, res.Sale.Status)
	require.NotNil(t, res.Sale.PublicToken)
	require.NotNil(t, res.Sale.ExpiresAt)
	assert.True(t, h.clock.Add(24*time.Hour).Equal(*res.Sale.ExpiresAt))
	assert.Equal(t, 3, h.quantity(t, p.ID), "stock is decremented on the deferred path too")
	assert.Zero(t, h.notifier.count(), "deferred path never notifies")
	assert.False(t, res.Notified)

	require.NotNil(t, res.Handoff)
	assert.Equal(t, "https://tap.example.com/tap/"+*res.Sale.PublicToken, res.Handoff.ContinuationURL)
	assert.Equal(t, res.Sale.BillID, res.Handoff.BillID)
}

func TestFinalize_DuplicateKey(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 10)
	ctx := context.Background()

	_, err := h.f.Finalize(ctx, tenantKey, request("same-key", p, 1, CompletionImmediate))
	require.NoError(t, err)

	_, err = h.f.Finalize(ctx, tenantKey, request("same-key", p, 1, CompletionDeferred))
	assert.ErrorIs(t, err, ErrDuplicateCheckout)
	assert.Equal(t, int64(1), h.saleCount(t))
	assert.Equal(t, 9, h.quantity(t, p.ID))

	t.Run("database index backs an expired key", func(t *testing.T) {
		require.NoError(t, h.keys.Release(ctx, scopedKey(tenantKey, "same-key")))

		_, err := h.f.Finalize(ctx, tenantKey, request("same-key", p, 1, CompletionImmediate))
		assert.ErrorIs(t, err, ErrDuplicateCheckout)
		assert.Equal(t, 9, h.quantity(t, p.ID), "stock decrement rolled back with the sale")
	})

	t.Run("keys are per tenant", func(t *testing.T) {
		other := &models.Product{TenantID: "other@shop.io", SKU: "X", Name: "Tea", Quantity: 4, SellingPrice: decimal.NewFromInt(10)}
		require.NoError(t, h.db.Create(other).Error)

		_, err := h.f.Finalize(ctx, "other@shop.io", request("same-key", other, 1, CompletionImmediate))
		assert.NoError(t, err)
	})
}

func TestFinalize_BillIDCollisionIsRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.product(t, 10)

	ids := []string{"20261018-AAAAAAAA", "20261018-AAAAAAAA", "20261018-BBBBBBBB"}
	var calls int
	h.f.newBillID = func(time.Time) string {
		id := ids[calls]
		calls++
		return id
	}

	first, err := h.f.Finalize(ctx, tenantKey, request("bill-1", p, 1, CompletionImmediate))
	require.NoError(t, err)
	assert.Equal(t, "20261018-AAAAAAAA", first.Sale.BillID)

	second, err := h.f.Finalize(ctx, tenantKey, request("bill-2", p, 2, CompletionImmediate))
	require.NoError(t, err, "a bill id collision is not a reused checkout")
	assert.Equal(t, "20261018-BBBBBBBB", second.Sale.BillID)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(2), h.saleCount(t))
	assert.Equal(t, 7, h.quantity(t, p.ID), "the rolled back attempt does not decrement twice")

	t.Run("persistent collision gives up without claiming a duplicate", func(t *testing.T) {
		h.f.newBillID = func(time.Time) string { return "20261018-AAAAAAAA" }

		_, err := h.f.Finalize(ctx, tenantKey, request("bill-3", p, 1, CompletionImmediate))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDuplicateCheckout)
		assert.Equal(t, 7, h.quantity(t, p.ID))

		h.f.newBillID = func(time.Time) string { return "20261018-CCCCCCCC" }
		_, err = h.f.Finalize(ctx, tenantKey, request("bill-3", p, 1, CompletionImmediate))
		assert.NoError(t, err, "the key was released after the failed attempt")
	})
}

func TestFinalize_ConcurrentSameKey(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 50)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.f.Finalize(context.Background(), tenantKey, request("double-tap", p, 1, CompletionImmediate))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if errors.Is(err, ErrDuplicateCheckout) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, dupes)
	assert.Equal(t, 49, h.quantity(t, p.ID))
}

func TestFinalize_NotificationFailureIsAWarning(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("broker unreachable")
	p := h.product(t, 5)

	res, err := h.f.Finalize(context.Background(), tenantKey, request("k-warn", p, 1, CompletionImmediate))
	require.NoError(t, err)

	assert.False(t, res.Notified)
	assert.NotEmpty(t, res.Warnings)
	assert.Equal(t, int64(1), h.saleCount(t), "the sale survives a failed receipt")
}

func TestFinalize_Validation(t *testing.T) {
	h := newHarness(t)
	p := h.product(t, 5)

	mutations := map[string]func(r *Request){
		"idempotencyKey": func(r *Request) { r.IdempotencyKey = "  " },
		"paymentMethod":  func(r *Request) { r.PaymentMethod = "cheque" },
		"completion":     func(r *Request) { r.Completion = "later" },
		"discount.value": func(r *Request) {
			r.Discount = pricing.Discount{Type: pricing.DiscountPercentage, Value: decimal.NewFromInt(150)}
		},
		"amountGiven": func(r *Request) {
			r.PaymentMethod = models.PaymentCash
			r.AmountGiven = decimal.NewFromInt(50)
		},
	}
	for field, mutate := range mutations {
		t.Run(field, func(t *testing.T) {
			req := request("k-"+field, p, 1, CompletionImmediate)
			mutate(&req)

			_, err := h.f.Finalize(context.Background(), tenantKey, req)
			var verr *pricing.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, field, verr.Field)
		})
	}
	assert.Zero(t, h.saleCount(t))
	assert.Equal(t, 5, h.quantity(t, p.ID))
}

func TestFinalize_CashBalanceAndFreeLines(t *testing.T) {
	h := newHarness(t)

	req := Request{
		IdempotencyKey: "k-cash",
		Lines:          []pricing.Line{{Name: "Service charge", Quantity: 1, Price: decimal.RequireFromString("45")}},
		PaymentMethod:  models.PaymentCash,
		AmountGiven:    decimal.RequireFromString("50"),
	}
	res, err := h.f.Finalize(context.Background(), tenantKey, req)
	require.NoError(t, err)
	assert.Equal(t, "5.00", res.Sale.Balance.StringFixed(2))
	assert.Equal(t, models.SaleStatusCompleted, res.Sale.Status, "completion defaults to immediate")
	assert.False(t, res.Notified, "no destination, no receipt")
	assert.Zero(t, h.notifier.count())
}
