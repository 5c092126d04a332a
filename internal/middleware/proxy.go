package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ProxyTrust decides which peers may speak for the client through
// forwarding headers: the client IP (X-Real-IP, X-Forwarded-For) and the
// platform identity header set by an authenticating reverse proxy.
//
// Common trusted ranges:
//   - "127.0.0.1/8"    -- localhost (docker host)
//   - "10.0.0.0/8"     -- Docker default bridge network
//   - "172.16.0.0/12"  -- Docker default bridge network (alternative range)
//   - "192.168.0.0/16" -- common LAN range
//   - "fd00::/8"       -- IPv6 private range
type ProxyTrust struct {
	trusted []*net.IPNet
}

// NewProxyTrust parses the trusted CIDRs. Invalid entries are logged and skipped.
func NewProxyTrust(trustedCIDRs []string) *ProxyTrust {
	p := &ProxyTrust{}
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		p.trusted = append(p.trusted, network)
	}
	return p
}

// Install makes c.RealIP() resolve through this trust list.
func (p *ProxyTrust) Install(e *echo.Echo) {
	e.IPExtractor = p.ExtractIP
}

// ExtractIP is an echo.IPExtractor. Forwarding headers count only when the
// direct connection comes from a trusted proxy. X-Forwarded-For is read
// right to left, skipping trusted hops, so a client-supplied prefix cannot
// choose the address.
func (p *ProxyTrust) ExtractIP(req *http.Request) string {
	directIP := extractDirectIP(req.RemoteAddr)
	if !p.isTrusted(directIP) {
		return normalizeLoopback(directIP)
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !p.isTrusted(hop) || i == 0 {
				return normalizeLoopback(hop)
			}
		}
	}

	if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
		return normalizeLoopback(realIP)
	}
	return normalizeLoopback(directIP)
}

// TrustedHeader returns the named header only when the request arrived
// from a trusted proxy, and "" otherwise. Used for the platform identity
// header: anyone else setting it is ignored.
func (p *ProxyTrust) TrustedHeader(req *http.Request, name string) string {
	if name == "" || !p.isTrusted(extractDirectIP(req.RemoteAddr)) {
		return ""
	}
	return strings.TrimSpace(req.Header.Get(name))
}

// extractDirectIP extracts the IP address from a "host:port" RemoteAddr string.
func extractDirectIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// normalizeLoopback reports IPv6 loopback as 127.0.0.1 so audit rows from
// the same machine look the same whichever stack connected.
func normalizeLoopback(ip string) string {
	if ip == "::1" {
		return "127.0.0.1"
	}
	return ip
}

func (p *ProxyTrust) isTrusted(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range p.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
