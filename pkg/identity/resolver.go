package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/config"
	"github.com/TeldridgeLDN/PE-Scanner-sub000/pkg/limits"
)

const (
	// ForwardedForHeader lists the client and each proxy hop.
	ForwardedForHeader = "X-Forwarded-For"

	// RealIPHeader carries the client address set by a single proxy.
	RealIPHeader = "X-Real-IP"

	// UnknownIP is used when no client address can be determined.
	UnknownIP = "unknown"

	maxUserIDLength = 128
)

var (
	// ErrUnknownTier is returned when a request claims a tier that is not
	// configured.
	ErrUnknownTier = errors.New("unknown tier")

	// ErrInvalidUserID is returned for a malformed user header.
	ErrInvalidUserID = errors.New("invalid user id")
)

// Subject is who a quota applies to.
type Subject struct {
	Tier     limits.Tier
	Identity string
}

// Resolver determines the subject of a request.
type Resolver interface {
	Resolve(r *http.Request) (Subject, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (Subject, error)

// Resolve calls f(r).
func (f ResolverFunc) Resolve(r *http.Request) (Subject, error) {
	return f(r)
}

// Anonymous returns the anonymous subject for the request's client IP.
func Anonymous(r *http.Request, trustProxyHeaders bool) Subject {
	return Subject{
		Tier:     limits.TierAnonymous,
		Identity: "ip:" + ClientIP(r, trustProxyHeaders),
	}
}

// Resolve runs resolver and falls back to the anonymous subject on error.
// A resolution failure is never fatal to the request.
func Resolve(r *http.Request, resolver Resolver, trustProxyHeaders bool, logger *slog.Logger) Subject {
	subject, err := resolver.Resolve(r)
	if err == nil && subject.Identity != "" {
		return subject
	}

	if err != nil && logger != nil {
		logger.DebugContext(r.Context(), "identity resolution failed, treating as anonymous",
			"error", err,
		)
	}
	return Anonymous(r, trustProxyHeaders)
}

// ClientIP returns the caller's address. With trustProxyHeaders set, the
// first X-Forwarded-For entry wins, then X-Real-IP, then the connection's
// remote address. Invalid header values are skipped.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get(ForwardedForHeader); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := parseIP(first); ok {
				return ip
			}
		}
		if ip, ok := parseIP(r.Header.Get(RealIPHeader)); ok {
			return ip
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return UnknownIP
}

func parseIP(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}

// IPResolver treats every caller as anonymous, keyed by client IP.
type IPResolver struct {
	TrustProxyHeaders bool
}

// Resolve implements Resolver.
func (res IPResolver) Resolve(r *http.Request) (Subject, error) {
	return Anonymous(r, res.TrustProxyHeaders), nil
}

// HeaderResolver trusts identity headers set by an authentication gateway.
// Requests without a user header are anonymous. A user header without a
// tier header resolves to the free tier.
type HeaderResolver struct {
	UserHeader        string
	TierHeader        string
	TrustProxyHeaders bool

	// Known reports whether a tier is configured. Nil accepts any tier.
	Known func(limits.Tier) bool
}

// Resolve implements Resolver.
func (res HeaderResolver) Resolve(r *http.Request) (Subject, error) {
	userID := strings.TrimSpace(r.Header.Get(res.UserHeader))
	if userID == "" {
		return Anonymous(r, res.TrustProxyHeaders), nil
	}
	if len(userID) > maxUserIDLength || strings.ContainsAny(userID, " \t\r\n") {
		return Subject{}, ErrInvalidUserID
	}

	tier := limits.TierFree
	if raw := r.Header.Get(res.TierHeader); strings.TrimSpace(raw) != "" {
		tier = limits.ParseTier(raw)
	}
	if res.Known != nil && !res.Known(tier) {
		return Subject{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	return Subject{Tier: tier, Identity: "user:" + userID}, nil
}

// New builds the resolver selected by cfg.
func New(cfg config.IdentityConfig, trustProxyHeaders bool, known func(limits.Tier) bool) Resolver {
	if cfg.Resolver == config.IdentityResolverIP {
		return IPResolver{TrustProxyHeaders: trustProxyHeaders}
	}
	return HeaderResolver{
		UserHeader:        cfg.UserHeader,
		TierHeader:        cfg.TierHeader,
		TrustProxyHeaders: trustProxyHeaders,
		Known:             known,
	}
}
