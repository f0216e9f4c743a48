package handlers

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

var shareHashPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validShareHash reports whether hash is a well-formed share hash: nonempty,
// length <= 64, matches [A-Za-z0-9_-]+.
func validShareHash(hash string) bool {
	return hash != "" && len(hash) <= 64 && shareHashPattern.MatchString(hash)
}

// validSharePath reports whether path is a safe relative share path: no
// leading "/" or "\", no "\" anywhere, at least one nonempty "/"-segment,
// no ".." segment.
func validSharePath(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return false
	}
	if strings.Contains(path, "\\") {
		return false
	}
	segments := strings.Split(path, "/")
	nonEmpty := 0
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if seg == ".." {
			return false
		}
		nonEmpty++
	}
	return nonEmpty > 0
}

// resolveClientIP resolves the client IP: first nonempty of CF-Connecting-IP,
// the first element of X-Forwarded-For, X-Real-IP, the peer address. Returns
// "" when none parse as an IP.
func resolveClientIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
		if ip := net.ParseIP(v); ip != nil {
			return ip.String()
		}
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first := strings.TrimSpace(strings.Split(v, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		if ip := net.ParseIP(v); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}

// anonymizeIP truncates an IPv4 address to /24 and an IPv6 address to /64,
// per the documented (intentionally address-losing) anonymization contract.
func anonymizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return (&net.IPNet{IP: v4.Mask(net.CIDRMask(24, 32)), Mask: net.CIDRMask(24, 32)}).String()
	}
	return (&net.IPNet{IP: parsed.Mask(net.CIDRMask(64, 128)), Mask: net.CIDRMask(64, 128)}).String()
}

// eventIP resolves the client IP according to the configured analytics IP
// mode: "off" always returns "", "anonymized" truncates to a network,
// "full" (or any other value) returns the raw address.
func eventIP(r *http.Request, mode string) string {
	if mode == "off" {
		return ""
	}
	ip := resolveClientIP(r)
	if ip == "" {
		return ""
	}
	if mode == "anonymized" {
		return anonymizeIP(ip)
	}
	return ip
}

// resolveAuthToken resolves the admin auth token: first present of header
// X-Auth, Authorization: Bearer, cookie "auth". Trimmed.
func resolveAuthToken(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Auth")); v != "" {
		return v
	}
	if v := r.Header.Get("Authorization"); v != "" {
		if after, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	if c, err := r.Cookie("auth"); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
