package notify

import (
	"context"
	"time"

	"go-pos-billing/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event distinguishes a first receipt from a corrected resend
type Event string

const (
	EventIssued Event = "receipt.issued"
	EventResent Event = "receipt.resent"
)

// ReceiptItem is one printed receipt line
type ReceiptItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Receipt is the message handed to the delivery channel
type Receipt struct {
	Event         Event                `json:"event"`
	TenantID      string               `json:"tenantId"`
	BillID        string               `json:"billId"`
	Amount        decimal.Decimal      `json:"amount"`
	Discount      decimal.Decimal      `json:"discount"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	CustomerName  string               `json:"customerName,omitempty"`
	CustomerPhone string               `json:"customerPhone,omitempty"`
	CustomerEmail string               `json:"customerEmail,omitempty"`
	Items         []ReceiptItem        `json:"items"`
	IsEdited      bool                 `json:"isEdited"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// HasDestination reports whether the receipt has somewhere to go
func (r Receipt) HasDestination() bool {
	return r.CustomerPhone != "" || r.CustomerEmail != ""
}

// ReceiptFromSale snapshots a persisted sale
func ReceiptFromSale(event Event, s *models.Sale) Receipt {
	items := make([]ReceiptItem, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, ReceiptItem{Name: it.Name, Quantity: it.Quantity, Price: it.Price, LineTotal: it.LineTotal})
	}
	return Receipt{
		Event:         event,
		TenantID:      s.TenantID,
		BillID:        s.BillID,
		Amount:        s.Amount,
		Discount:      s.Discount,
		PaymentMethod: s.PaymentMethod,
		CustomerName:  s.CustomerName,
		CustomerPhone: s.CustomerPhone,
		CustomerEmail: s.CustomerEmail,
		Items:         items,
		IsEdited:      s.IsEdited,
		CreatedAt:     s.CreatedAt,
	}
}

// Notifier delivers receipts. Implementations must honor ctx cancellation.
type Notifier interface {
	Notify(ctx context.Context, r Receipt) error
}

// LogNotifier writes receipts to the log; used when no broker is configured
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier
func (n *LogNotifier) Notify(_ context.Context, r Receipt) error {
	n.log.Info("Receipt dispatched",
		zap.String("event", string(r.Event)),
		zap.String("tenant", r.TenantID),
		zap.String("bill_id", r.BillID),
		zap.String("amount", r.Amount.StringFixed(2)),
		zap.Bool("has_phone", r.CustomerPhone != ""),
		zap.Bool("has_email", r.CustomerEmail != ""),
	)
	return nil
}
