package database

import "gorm.io/gorm"

// TenantScope restricts a query to rows owned by tenantKey.
//
// Rows written by older releases may carry the key with different casing, so a row
// matches when its tenant_id is byte-equal to the key or equal to it ignoring case.
// Both branches are needed against historical data. Every tenant-scoped query goes
// through this function.
func TenantScope(tenantKey string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(tenant_id = ? OR LOWER(tenant_id) = LOWER(?))", tenantKey, tenantKey)
	}
}
