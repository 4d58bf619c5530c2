package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	BlockedRequests   int64
	UntrustedIdentity int64
}

// Detector resolves client addresses behind trusted proxies and screens out
// obviously hostile requests.
type Detector struct {
	metrics        DetectionMetrics
	trustedProxies []*net.IPNet
}

// NewDetector creates a detector trusting loopback and private networks.
func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

var blockedPatterns = []string{
	"../", "..\\", "/.env", "/.git", "wp-admin", "phpmyadmin", "etc/passwd", "<script",
}

// Blocked reports whether the request path or query carries a known attack
// pattern or an unsupported method.
func (d *Detector) Blocked(r *http.Request) bool {
	switch r.Method {
	case "TRACE", "TRACK", "CONNECT":
		return true
	}
	query, err := url.QueryUnescape(r.URL.RawQuery)
	if err != nil {
		query = r.URL.RawQuery
	}
	target := strings.ToLower(r.URL.Path + "?" + query)
	for _, p := range blockedPatterns {
		if strings.Contains(target, p) {
			return true
		}
	}
	return len(r.URL.String()) > 2048
}

// Middleware answers blocked requests with 400 before they reach handlers.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.Blocked(r) {
			atomic.AddInt64(&d.metrics.BlockedRequests, 1)
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FromTrustedProxy reports whether the direct peer is a trusted proxy.
// Identity headers set by anything else are not honored.
func (d *Detector) FromTrustedProxy(r *http.Request) bool {
	ip := net.ParseIP(directIP(r))
	return ip != nil && d.isTrustedProxy(ip)
}

// StripUntrusted removes header from requests that do not come through a
// trusted proxy.
func (d *Detector) StripUntrusted(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(header) != "" && !d.FromTrustedProxy(r) {
				atomic.AddInt64(&d.metrics.UntrustedIdentity, 1)
				r = r.Clone(r.Context())
				r.Header.Del(header)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractClientIP extracts the real client IP, honoring X-Forwarded-For and
// X-Real-IP only from trusted proxies.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	direct := directIP(r)
	parsed := net.ParseIP(direct)
	if parsed == nil || !d.isTrustedProxy(parsed) {
		return direct
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return direct
}

func directIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		BlockedRequests:   atomic.LoadInt64(&d.metrics.BlockedRequests),
		UntrustedIdentity: atomic.LoadInt64(&d.metrics.UntrustedIdentity),
	}
}
