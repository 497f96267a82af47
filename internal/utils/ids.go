package utils

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewMerchantID returns a permanent, opaque merchant identifier like "MID-A1B2C3D4E5F6".
func NewMerchantID() string {
	return "MID-" + strings.ToUpper(randomHex(6))
}

// NewBillID returns a bill number like "20261018-3F9A2B1C" (day of sale plus random suffix).
// Uniqueness per tenant is enforced by the sales table.
func NewBillID(at time.Time) string {
	return at.Format("20060102") + "-" + strings.ToUpper(randomHex(4))
}

// NewPublicToken returns a single-use handle for a deferred sale
func NewPublicToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns the local part of an email (or any label) into a subdomain-safe slug
func Slugify(s string) string {
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	if slug == "" {
		slug = "shop"
	}
	return slug
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
