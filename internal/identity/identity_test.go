package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOwnerKey(t *testing.T) {
	if got := (Identity{}).Owner().StorageKey(); got != "expenses" {
		t.Fatalf("anonymous key: got %q", got)
	}
	if got := (Identity{UserID: "alice@example.com"}).Owner().StorageKey(); got != "expenses-alice@example.com" {
		t.Fatalf("user key: got %q", got)
	}
}

func TestParseOwnerKey(t *testing.T) {
	cases := []struct {
		key  string
		user string
		ok   bool
	}{
		{"expenses", "", true},
		{"expenses-bob", "bob", true},
		{"expenses-", "", false},
		{"other", "", false},
		{"expenses-bad user", "", false},
	}
	for _, tc := range cases {
		k, ok := ParseOwnerKey(tc.key)
		if ok != tc.ok || (ok && k.UserID() != tc.user) {
			t.Fatalf("%q: got %q ok=%v", tc.key, k.UserID(), ok)
		}
		if ok && k.StorageKey() != tc.key {
			t.Fatalf("%q: round trip gave %q", tc.key, k.StorageKey())
		}
	}
}

func TestHeaderProvider(t *testing.T) {
	cases := []struct {
		name    string
		require bool
		value   string
		user    string
		wantErr bool
	}{
		{"user", false, "alice", "alice", false},
		{"email", true, "a.b-c_d@example.com", "a.b-c_d@example.com", false},
		{"missing optional", false, "", "", false},
		{"missing required", true, "", "", true},
		{"bad characters", false, "alice/../bob", "", true},
		{"too long", false, strings.Repeat("a", 129), "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewHeaderProvider("", tc.require)
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.value != "" {
				r.Header.Set(DefaultHeader, tc.value)
			}
			id, err := p.Resolve(r)
			if tc.wantErr {
				if !errors.Is(err, ErrUnresolved) {
					t.Fatalf("expected ErrUnresolved, got %v", err)
				}
				return
			}
			if err != nil || id.UserID != tc.user {
				t.Fatalf("expected %q, got %q (%v)", tc.user, id.UserID, err)
			}
		})
	}
}

func TestMiddlewareStoresResolution(t *testing.T) {
	var gotID Identity
	var gotErr error
	h := Middleware(NewHeaderProvider("X-User", true))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotErr = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-User", "carol")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if gotErr != nil || gotID.UserID != "carol" {
		t.Fatalf("expected carol, got %q (%v)", gotID.UserID, gotErr)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(gotErr, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", gotErr)
	}
}

func TestFromContextWithoutMiddleware(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := FromContext(r.Context()); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
	ctx := WithIdentity(r.Context(), Identity{UserID: "dan"})
	if id, err := FromContext(ctx); err != nil || id.UserID != "dan" {
		t.Fatalf("expected dan, got %q (%v)", id.UserID, err)
	}
}
