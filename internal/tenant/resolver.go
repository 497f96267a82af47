package tenant

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go-pos-billing/internal/auth"
	"go-pos-billing/internal/models"
)

// ErrUnauthenticated is the single outcome of every failed resolution.
// It never says which stage failed.
var ErrUnauthenticated = errors.New("unauthorized")

// Method records how the caller was identified
type Method string

const (
	MethodAPIKey  Method = "api_key"
	MethodSession Method = "session"
)

// Context is the acting tenant for one request
type Context struct {
	// Key is the value stored in tenant_id columns of every tenant-scoped table.
	Key string
	// Tenant is nil for a signed-in owner whose tenant row does not exist yet.
	Tenant *models.Tenant
	// Email is the account email (session) or the tenant's owner email (API key).
	Email  string
	Method Method
}

// ScopeKey maps a tenant row to the identifier used for data scoping: the owner email
// when present, else the permanent merchant id.
func ScopeKey(t *models.Tenant) string {
	if owner := t.Owner(); owner != "" {
		return owner
	}
	return t.MerchantID
}

// Credential is a merchant identifier plus secret, however it was transported
type Credential struct {
	Identifier string
	Secret     string
}

// Resolver determines the acting tenant from a request
type Resolver struct {
	store      *Store
	sessions   *auth.SessionManager
	cookieName string
}

// NewResolver creates a resolver reading the session from cookieName
func NewResolver(store *Store, sessions *auth.SessionManager, cookieName string) *Resolver {
	return &Resolver{store: store, sessions: sessions, cookieName: cookieName}
}

// Resolve tries the API credential first and the session second; the first match wins.
// Authentication failures return ErrUnauthenticated; storage failures are returned wrapped.
func (r *Resolver) Resolve(req *http.Request) (*Context, error) {
	ctx := req.Context()

	if cred, ok := ExtractCredential(req); ok {
		tc, err := r.resolveCredential(ctx, cred)
		if err != nil && !errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		if tc != nil {
			return tc, nil
		}
	}

	if token := ExtractSessionToken(req, r.cookieName); token != "" {
		tc, err := r.resolveSession(ctx, token)
		if err != nil && !errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		if tc != nil {
			return tc, nil
		}
	}

	return nil, ErrUnauthenticated
}

func (r *Resolver) resolveCredential(ctx context.Context, cred Credential) (*Context, error) {
	candidates, err := r.store.FindByIdentifier(ctx, cred.Identifier)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		auth.VerifyKey(cred.Secret, "")
		return nil, ErrUnauthenticated
	}

	for i := range candidates {
		t := &candidates[i]
		if t.APIKeyHash == nil {
			auth.VerifyKey(cred.Secret, "")
			continue
		}
		if auth.VerifyKey(cred.Secret, *t.APIKeyHash) {
			return &Context{Key: ScopeKey(t), Tenant: t, Email: t.Owner(), Method: MethodAPIKey}, nil
		}
	}
	return nil, ErrUnauthenticated
}

func (r *Resolver) resolveSession(ctx context.Context, token string) (*Context, error) {
	claims, err := r.sessions.ValidateToken(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	tc := &Context{Key: claims.Email, Email: claims.Email, Method: MethodSession}
	t, err := r.store.FindByOwnerEmail(ctx, claims.Email)
	switch {
	case err == nil:
		tc.Tenant = t
		tc.Key = ScopeKey(t)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return tc, nil
}

// ExtractCredential reads a merchant credential from any supported surface:
//   - discrete: X-Merchant-Id + X-Api-Key headers, or merchant_id + api_key query parameters
//   - composite "identifier:secret": X-Api-Token header, "Authorization: ApiKey ...",
//     api_token query parameter, or X-Api-Key when no discrete identifier is given
func ExtractCredential(req *http.Request) (Credential, bool) {
	q := req.URL.Query()

	id := firstNonEmpty(req.Header.Get("X-Merchant-Id"), q.Get("merchant_id"))
	secret := firstNonEmpty(req.Header.Get("X-Api-Key"), q.Get("api_key"))
	if id != "" && secret != "" {
		return Credential{Identifier: strings.TrimSpace(id), Secret: strings.TrimSpace(secret)}, true
	}

	composite := firstNonEmpty(
		req.Header.Get("X-Api-Token"),
		authorizationValue(req, "ApiKey"),
		q.Get("api_token"),
	)
	if composite == "" && id == "" {
		composite = secret
	}
	return ParseComposite(composite)
}

// ParseComposite splits "identifier:secret". Keys never contain ':', so the last
// separator is used and identifiers may contain one.
func ParseComposite(token string) (Credential, bool) {
	token = strings.TrimSpace(token)
	i := strings.LastIndexByte(token, ':')
	if i <= 0 || i == len(token)-1 {
		return Credential{}, false
	}
	return Credential{
		Identifier: strings.TrimSpace(token[:i]),
		Secret:     strings.TrimSpace(token[i+1:]),
	}, true
}

// ExtractSessionToken returns the session token from the cookie or a Bearer header
func ExtractSessionToken(req *http.Request, cookieName string) string {
	if c, err := req.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return authorizationValue(req, "Bearer")
}

func authorizationValue(req *http.Request, scheme string) string {
	h := req.Header.Get("Authorization")
	if len(h) > len(scheme)+1 && strings.EqualFold(h[:len(scheme)], scheme) && h[len(scheme)] == ' ' {
		return strings.TrimSpace(h[len(scheme)+1:])
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
