package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User - the human account that owns a tenant
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:191" json:"email"`
	PasswordHash string    `json:"-"` // Never return this in JSON
	CreatedAt    time.Time `json:"created_at"`
}

// Tenant - a merchant account; the scoping unit for inventory and sales
type Tenant struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	MerchantID string  `gorm:"uniqueIndex;size:32;not null" json:"merchantId"` // permanent, never reissued
	Subdomain  string  `gorm:"uniqueIndex;size:63;not null" json:"subdomain"`
	OwnerEmail *string `gorm:"uniqueIndex;size:191" json:"ownerEmail"` // NULL until an owner is bound
	Timezone   string  `gorm:"size:64" json:"timezone,omitempty"`

	// APIKeyHash is the hex SHA-256 digest of the live key. The raw key is never stored.
	APIKeyHash   *string    `gorm:"uniqueIndex;size:64" json:"-"`
	APIKeyPrefix string     `gorm:"size:16" json:"apiKeyPrefix,omitempty"`
	KeyIssuedAt  *time.Time `json:"keyIssuedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Owner returns the owner email, or "" for a tenant that has none yet
func (t *Tenant) Owner() string {
	if t.OwnerEmail == nil {
		return ""
	}
	return *t.OwnerEmail
}

// HasCredential reports whether the tenant has a live API key
func (t *Tenant) HasCredential() bool {
	return t.APIKeyHash != nil && *t.APIKeyHash != ""
}

// Product - tenant-scoped inventory
type Product struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	TenantID          string          `gorm:"size:191;not null;uniqueIndex:idx_products_tenant_sku,priority:1" json:"-"`
	SKU               string          `gorm:"size:64;not null;uniqueIndex:idx_products_tenant_sku,priority:2" json:"sku"`
	Name              string          `gorm:"size:191;not null" json:"name"`
	Category          string          `gorm:"size:64" json:"category"`
	Quantity          int             `gorm:"not null;default:0" json:"quantity"`
	SellingPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"sellingPrice"`
	CostPrice         decimal.Decimal `gorm:"type:decimal(12,2)" json:"costPrice"`
	TaxRate           decimal.Decimal `gorm:"type:decimal(5,2)" json:"taxRate"` // percentage
	LowStockThreshold *int            `json:"lowStockThreshold,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// PaymentMethod is the fixed set of tenders a sale can be paid with
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentUPI  PaymentMethod = "upi" // QR or UPI transfer
	PaymentCard PaymentMethod = "card"
)

// PaymentMethods lists every accepted tender, in report order
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentUPI, PaymentCard}

// Valid reports whether m is one of the accepted tenders
func (m PaymentMethod) Valid() bool {
	for _, pm := range PaymentMethods {
		if m == pm {
			return true
		}
	}
	return false
}

// SaleStatus tracks the completion state of a sale
type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending" // awaiting device confirmation
	SaleStatusCompleted SaleStatus = "completed"
)

// Sale - the durable transaction header
type Sale struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	TenantID      string          `gorm:"size:191;not null;uniqueIndex:idx_sales_tenant_bill,priority:1;uniqueIndex:idx_sales_tenant_checkout,priority:1;index:idx_sales_tenant_created,priority:1" json:"tenantId"`
	BillID        string          `gorm:"size:32;not null;uniqueIndex:idx_sales_tenant_bill,priority:2" json:"billId"`
	CheckoutKey   string          `gorm:"size:128;not null;uniqueIndex:idx_sales_tenant_checkout,priority:2" json:"-"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"subtotal"`
	TaxTotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"taxTotal"`
	Discount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount"`
	Profit        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"profit"`
	AmountGiven   decimal.Decimal `gorm:"type:decimal(12,2)" json:"amountGiven"`
	Balance       decimal.Decimal `gorm:"type:decimal(12,2)" json:"balance"`
	PaymentMethod PaymentMethod   `gorm:"size:16;not null" json:"paymentMethod"`
	CustomerName  string          `gorm:"size:191" json:"customerName"`
	CustomerPhone string          `gorm:"size:32" json:"customerPhone"`
	CustomerEmail string          `gorm:"size:191" json:"customerEmail"`
	Status        SaleStatus      `gorm:"size:16;not null;index" json:"status"`
	IsEdited      bool            `gorm:"not null;default:false" json:"isEdited"`
	EditCount     int             `gorm:"not null;default:0" json:"editCount"`
	PublicToken   *string         `gorm:"uniqueIndex;size:64" json:"-"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Items         []SaleItem      `gorm:"foreignKey:SaleID" json:"items"`
	CreatedAt     time.Time       `gorm:"index:idx_sales_tenant_created,priority:2" json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// SaleItem - immutable snapshot of a cart line at the time of sale
type SaleItem struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	SaleID    uint            `gorm:"index;not null" json:"-"`
	ProductID *uint           `json:"productId,omitempty"`
	Name      string          `gorm:"size:191;not null" json:"name"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"` // entered unit price
	TaxRate   decimal.Decimal `gorm:"type:decimal(5,2)" json:"taxRate"`
	LineTotal decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"lineTotal"`
}
