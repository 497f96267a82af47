package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-pos-billing/internal/auth"
	"go-pos-billing/internal/models"
	"go-pos-billing/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when no tenant matches
	ErrNotFound = errors.New("tenant not found")
	// ErrConflict is returned when a tenant could not be created after retries
	ErrConflict = errors.New("tenant could not be created")
	// ErrOwnerAssigned is returned when backfilling a tenant that already has an owner
	ErrOwnerAssigned = errors.New("tenant already has an owner")
	// ErrOwnerTaken is returned when the email already owns another tenant
	ErrOwnerTaken = errors.New("email already owns a tenant")
)

// Store is the GORM-backed tenant repository. It also persists credential digests.
type Store struct {
	db *gorm.DB
}

// NewStore creates a tenant store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ auth.CredentialStore = (*Store)(nil)

// FindByIdentifier returns tenants whose merchant id, subdomain or owner email equals the
// identifier, ignoring case. Matching is whole-string only; the SQL equality is re-checked
// with an anchored matcher so collation quirks (such as MySQL's trailing-space padding)
// cannot widen the match.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) ([]models.Tenant, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	var rows []models.Tenant
	err := s.db.WithContext(ctx).
		Where("LOWER(merchant_id) = LOWER(?) OR LOWER(subdomain) = LOWER(?) OR LOWER(owner_email) = LOWER(?)",
			identifier, identifier, identifier).
		Limit(3).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find tenant: %w", err)
	}

	matched := rows[:0]
	for _, t := range rows {
		if utils.MatchesAny(identifier, t.MerchantID, t.Subdomain, t.Owner()) {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// FindByOwnerEmail returns the tenant owned by email
func (s *Store) FindByOwnerEmail(ctx context.Context, email string) (*models.Tenant, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNotFound
	}
	var t models.Tenant
	err := s.db.WithContext(ctx).
		Where("owner_email = ? OR LOWER(owner_email) = LOWER(?)", email, email).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find tenant by owner: %w", err)
	}
	return &t, nil
}

// EnsureTenant returns the tenant owned by email, creating it on first use.
// It never binds email to an existing ownerless tenant: a slug derived from the
// email is not proof of ownership. Such tenants are bound with AssignOwner.
// Concurrent callers converge on one row.
func (s *Store) EnsureTenant(ctx context.Context, email string) (*models.Tenant, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("owner email is required")
	}

	t, err := s.FindByOwnerEmail(ctx, email)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	slug := utils.Slugify(email)
	for attempt := 0; attempt < 3; attempt++ {
		merchantID := utils.NewMerchantID()
		subdomain := slug
		if attempt > 0 {
			subdomain = slug + "-" + strings.ToLower(merchantID[len(merchantID)-6:])
		}

		candidate := models.Tenant{MerchantID: merchantID, Subdomain: subdomain, OwnerEmail: &email}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate)
		if res.Error != nil {
			return nil, fmt.Errorf("create tenant: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return &candidate, nil
		}

		// Either another request created this owner's tenant or the subdomain is taken.
		if existing, err := s.FindByOwnerEmail(ctx, email); err == nil {
			return existing, nil
		}
	}
	return nil, ErrConflict
}

// AssignOwner backfills the owner email of a tenant that has none. It is an operator
// step driven by a trusted merchant id to email mapping, never by a sign-in.
func (s *Store) AssignOwner(ctx context.Context, merchantID, email string) (*models.Tenant, error) {
	merchantID = strings.TrimSpace(merchantID)
	email = strings.ToLower(strings.TrimSpace(email))
	if merchantID == "" || !strings.Contains(email, "@") {
		return nil, errors.New("assign owner: merchant id and a valid email are required")
	}

	var t models.Tenant
	err := s.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	if owner := t.Owner(); owner != "" {
		if strings.EqualFold(owner, email) {
			return &t, nil
		}
		return nil, ErrOwnerAssigned
	}
	if _, err := s.FindByOwnerEmail(ctx, email); err == nil {
		return nil, ErrOwnerTaken
	}

	res := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND (owner_email IS NULL OR owner_email = '')", t.ID).
		Update("owner_email", email)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return nil, ErrOwnerTaken
	}
	if res.Error != nil {
		return nil, fmt.Errorf("backfill owner email: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrOwnerAssigned
	}
	return s.Reload(ctx, t.ID)
}

// SetKeyIfAbsent implements auth.CredentialStore as one conditional UPDATE.
func (s *Store) SetKeyIfAbsent(ctx context.Context, tenantPK uint, hash, prefix string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND (api_key_hash IS NULL OR api_key_hash = '')", tenantPK).
		Updates(map[string]interface{}{
			"api_key_hash":   hash,
			"api_key_prefix": prefix,
			"key_issued_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReplaceKey implements auth.CredentialStore
func (s *Store) ReplaceKey(ctx context.Context, tenantPK uint, hash, prefix string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND api_key_hash IS NOT NULL AND api_key_hash <> ''", tenantPK).
		Updates(map[string]interface{}{
			"api_key_hash":   hash,
			"api_key_prefix": prefix,
			"key_issued_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClearKey implements auth.CredentialStore
func (s *Store) ClearKey(ctx context.Context, tenantPK uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND api_key_hash IS NOT NULL AND api_key_hash <> ''", tenantPK).
		Updates(map[string]interface{}{
			"api_key_hash":   gorm.Expr("NULL"),
			"api_key_prefix": "",
			"key_issued_at":  gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Reload fetches a tenant by primary key
func (s *Store) Reload(ctx context.Context, tenantPK uint) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.WithContext(ctx).First(&t, tenantPK).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
