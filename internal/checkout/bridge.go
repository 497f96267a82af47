package checkout

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go-pos-billing/internal/models"
)

// Handoff is what the tap device needs to finish a deferred sale
type Handoff struct {
	BillID          string    `json:"billId"`
	PublicToken     string    `json:"publicToken"`
	ExpiresAt       time.Time `json:"expiresAt"`
	ContinuationURL string    `json:"continuationUrl"`
}

// DeviceBridge hands a pending sale to the external completion device
type DeviceBridge interface {
	Handoff(ctx context.Context, sale *models.Sale) (*Handoff, error)
}

// LinkBridge hands off by continuation link: <baseURL>/tap/<publicToken>
type LinkBridge struct {
	baseURL string
}

// NewLinkBridge creates a bridge rooted at baseURL
func NewLinkBridge(baseURL string) *LinkBridge {
	return &LinkBridge{baseURL: strings.TrimRight(baseURL, "/")}
}

// Handoff implements DeviceBridge
func (b *LinkBridge) Handoff(_ context.Context, sale *models.Sale) (*Handoff, error) {
	if sale.PublicToken == nil || sale.ExpiresAt == nil {
		return nil, errors.New("sale has no public token")
	}
	return &Handoff{
		BillID:          sale.BillID,
		PublicToken:     *sale.PublicToken,
		ExpiresAt:       *sale.ExpiresAt,
		ContinuationURL: b.baseURL + "/tap/" + url.PathEscape(*sale.PublicToken),
	}, nil
}
