package database

import (
	"context"
	"fmt"
	"sort"

	"go-pos-billing/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MethodTotal is the completed revenue taken with one tender
type MethodTotal struct {
	Method models.PaymentMethod `json:"paymentMethod"`
	Amount decimal.Decimal      `json:"amount"`
	Sales  int64                `json:"sales"`
}

// PendingTotal covers deferred sales the device has not confirmed yet
type PendingTotal struct {
	Sales  int64           `json:"sales"`
	Amount decimal.Decimal `json:"amount"`
}

// TopSeller is one best-selling line name
type TopSeller struct {
	Name    string          `json:"name"`
	Sold    int64           `json:"sold"`
	Revenue decimal.Decimal `json:"revenue"`
}

// SalesSummary aggregates completed sales. Bills counts every resend as one more
// billable unit: Σ(1 + edit_count).
type SalesSummary struct {
	Window   Window          `json:"window"`
	ByMethod []MethodTotal   `json:"byPaymentMethod"`
	Revenue  decimal.Decimal `json:"revenue"`
	Profit   decimal.Decimal `json:"profit"`
	Sales    int64           `json:"sales"`
	Bills    int64           `json:"bills"`
	Pending  PendingTotal    `json:"pending"`
	Top      []TopSeller     `json:"topSelling"`
}

type methodRow struct {
	PaymentMethod models.PaymentMethod
	Amount        decimal.Decimal
	Profit        decimal.Decimal
	Sales         int64
	Bills         int64
}

// Summarize builds the sales summary for one tenant. A zero window is all time.
func Summarize(ctx context.Context, db *gorm.DB, tenantKey string, w Window) (*SalesSummary, error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&models.Sale{}).
			Scopes(TenantScope(tenantKey), w.Scope("created_at"))
	}

	// COALESCE keeps empty groups at 0 instead of NULL
	var rows []methodRow
	err := base().
		Select("payment_method, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(profit), 0) AS profit, "+
			"COUNT(*) AS sales, COALESCE(SUM(1 + edit_count), 0) AS bills").
		Where("status = ?", models.SaleStatusCompleted).
		Group("payment_method").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate sales: %w", err)
	}

	s := &SalesSummary{Window: w}
	byMethod := make(map[models.PaymentMethod]*MethodTotal, len(models.PaymentMethods))
	for _, m := range models.PaymentMethods {
		byMethod[m] = &MethodTotal{Method: m}
	}
	for _, r := range rows {
		mt, ok := byMethod[r.PaymentMethod]
		if !ok {
			// legacy tender names still count toward the totals
			mt = &MethodTotal{Method: r.PaymentMethod}
			byMethod[r.PaymentMethod] = mt
		}
		mt.Amount = mt.Amount.Add(r.Amount)
		mt.Sales += r.Sales
		s.Revenue = s.Revenue.Add(r.Amount)
		s.Profit = s.Profit.Add(r.Profit)
		s.Sales += r.Sales
		s.Bills += r.Bills
	}
	for _, m := range models.PaymentMethods {
		s.ByMethod = append(s.ByMethod, roundTotal(*byMethod[m]))
		delete(byMethod, m)
	}
	var extra []MethodTotal
	for _, mt := range byMethod {
		extra = append(extra, roundTotal(*mt))
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Method < extra[j].Method })
	s.ByMethod = append(s.ByMethod, extra...)
	s.Revenue = s.Revenue.Round(2)
	s.Profit = s.Profit.Round(2)

	var pending struct {
		Sales  int64
		Amount decimal.Decimal
	}
	err = base().
		Select("COUNT(*) AS sales, COALESCE(SUM(amount), 0) AS amount").
		Where("status = ?", models.SaleStatusPending).
		Scan(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate pending sales: %w", err)
	}
	s.Pending = PendingTotal{Sales: pending.Sales, Amount: pending.Amount.Round(2)}

	top, err := TopSelling(ctx, db, tenantKey, w, 5)
	if err != nil {
		return nil, err
	}
	s.Top = top
	return s, nil
}

func roundTotal(mt MethodTotal) MethodTotal {
	mt.Amount = mt.Amount.Round(2)
	return mt
}

// TopSelling returns the best sellers of completed sales by units sold
func TopSelling(ctx context.Context, db *gorm.DB, tenantKey string, w Window, limit int) ([]TopSeller, error) {
	var top []TopSeller
	err := db.WithContext(ctx).Table("sale_items").
		Select("sale_items.name AS name, SUM(sale_items.quantity) AS sold, COALESCE(SUM(sale_items.line_total), 0) AS revenue").
		Joins("JOIN sales ON sale_items.sale_id = sales.id").
		Scopes(TenantScope(tenantKey), w.Scope("sales.created_at")).
		Where("sales.status = ?", models.SaleStatusCompleted).
		Group("sale_items.name").
		Order("sold DESC").
		Order("name ASC").
		Limit(limit).
		Scan(&top).Error
	if err != nil {
		return nil, fmt.Errorf("top selling items: %w", err)
	}
	for i := range top {
		top[i].Revenue = top[i].Revenue.Round(2)
	}
	return top, nil
}

// ValuationItem is one product's stock at cost
type ValuationItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	CostPrice decimal.Decimal `json:"costPrice"`
	TotalCost decimal.Decimal `json:"totalCost"`
}

// CategoryGroup is one category of the valuation report
type CategoryGroup struct {
	CategoryName string          `json:"categoryName"`
	Items        []ValuationItem `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// Valuation is the monetary value of all stock on hand
type Valuation struct {
	Categories []CategoryGroup `json:"categories"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
}

// StockValuation groups the tenant's products by category and values them at cost
func StockValuation(ctx context.Context, db *gorm.DB, tenantKey string) (*Valuation, error) {
	var products []models.Product
	err := db.WithContext(ctx).Scopes(TenantScope(tenantKey)).
		Order("category ASC").Order("name ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	v := &Valuation{Categories: []CategoryGroup{}}
	index := make(map[string]int)
	for _, p := range products {
		cat := p.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		i, ok := index[cat]
		if !ok {
			i = len(v.Categories)
			index[cat] = i
			v.Categories = append(v.Categories, CategoryGroup{CategoryName: cat, Items: []ValuationItem{}})
		}

		total := p.CostPrice.Mul(decimal.NewFromInt(int64(p.Quantity))).Round(2)
		g := &v.Categories[i]
		g.Items = append(g.Items, ValuationItem{Name: p.Name, Quantity: p.Quantity, CostPrice: p.CostPrice, TotalCost: total})
		g.Subtotal = g.Subtotal.Add(total)
		v.GrandTotal = v.GrandTotal.Add(total)
	}
	return v, nil
}
