// Package identity resolves who is using the application and derives the
// storage key their records live under.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// DefaultHeader is the header set by the fronting auth proxy.
	DefaultHeader = "X-Forwarded-User"

	keyPrefix    = "expenses"
	maxUserIDLen = 128
)

// ErrUnresolved is returned when the request carries no usable identity.
var ErrUnresolved = errors.New("identity unresolved")

// Identity is the authenticated user. The zero value is the anonymous user.
type Identity struct {
	UserID string
}

func (id Identity) Anonymous() bool { return id.UserID == "" }

// OwnerKey is the namespace one identity's records are persisted under.
type OwnerKey struct {
	userID string
}

// Owner returns the owner key of the identity.
func (id Identity) Owner() OwnerKey { return OwnerKey{userID: id.UserID} }

// StorageKey is "expenses-<userID>", or "expenses" for the anonymous user.
func (k OwnerKey) StorageKey() string {
	if k.userID == "" {
		return keyPrefix
	}
	return keyPrefix + "-" + k.userID
}

func (k OwnerKey) String() string { return k.StorageKey() }

// UserID returns the identity the key was derived from.
func (k OwnerKey) UserID() string { return k.userID }

// ParseOwnerKey is the inverse of StorageKey.
func ParseOwnerKey(key string) (OwnerKey, bool) {
	if key == keyPrefix {
		return OwnerKey{}, true
	}
	user, ok := strings.CutPrefix(key, keyPrefix+"-")
	if !ok || !validUserID(user) {
		return OwnerKey{}, false
	}
	return OwnerKey{userID: user}, true
}

// Provider resolves the identity of an HTTP request.
type Provider interface {
	Resolve(r *http.Request) (Identity, error)
}

// HeaderProvider trusts a header written by an authenticating reverse proxy.
type HeaderProvider struct {
	Header string
	// Require rejects requests without the header instead of treating them as anonymous.
	Require bool
}

func NewHeaderProvider(header string, require bool) *HeaderProvider {
	if header == "" {
		header = DefaultHeader
	}
	return &HeaderProvider{Header: header, Require: require}
}

func (p *HeaderProvider) Resolve(r *http.Request) (Identity, error) {
	value := strings.TrimSpace(r.Header.Get(p.Header))
	if value == "" {
		if p.Require {
			return Identity{}, ErrUnresolved
		}
		return Identity{}, nil
	}
	if !validUserID(value) {
		return Identity{}, ErrUnresolved
	}
	return Identity{UserID: value}, nil
}

func validUserID(s string) bool {
	if s == "" || len(s) > maxUserIDLen {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '.', c == '@', c == '-':
		default:
			return false
		}
	}
	return true
}

type contextKey struct{}

type resolution struct {
	id  Identity
	err error
}

// WithIdentity stores a resolved identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, resolution{id: id})
}

// FromContext returns the identity resolved by Middleware. It returns
// ErrUnresolved when resolution failed or never ran.
func FromContext(ctx context.Context) (Identity, error) {
	res, ok := ctx.Value(contextKey{}).(resolution)
	if !ok {
		return Identity{}, ErrUnresolved
	}
	return res.id, res.err
}

// Middleware resolves the identity once per request. It never rejects the
// request itself; handlers decide whether an identity is needed.
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := p.Resolve(r)
			if err != nil {
				slog.WarnContext(r.Context(), "Identity not resolved",
					"component", "identity",
					"path", r.URL.Path,
					"error", err)
			}
			ctx := context.WithValue(r.Context(), contextKey{}, resolution{id: id, err: err})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
