package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// SecurityHeadersConfig holds security headers configuration.
type SecurityHeadersConfig struct {
	Enabled bool

	// HSTS (HTTP Strict Transport Security)
	HSTSEnabled           bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool

	// CSP (Content Security Policy)
	CSPEnabled        bool
	CSPDefaultSrc     []string
	CSPFrameAncestors []string

	// Frame Options
	FrameOptionsEnabled bool
	FrameOptionsValue   string // DENY, SAMEORIGIN

	// Content Type Options
	ContentTypeOptionsEnabled bool

	// Referrer Policy
	ReferrerPolicyEnabled bool
	ReferrerPolicyValue   string
}

// DefaultSecurityHeadersConfig returns production-ready security headers
// configuration for a JSON API.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		Enabled: true,

		HSTSEnabled:           true,
		HSTSMaxAge:            31536000, // 1 year
		HSTSIncludeSubdomains: true,

		CSPEnabled:        true,
		CSPDefaultSrc:     []string{"'none'"},
		CSPFrameAncestors: []string{"'none'"},

		FrameOptionsEnabled: true,
		FrameOptionsValue:   "DENY",

		ContentTypeOptionsEnabled: true,

		ReferrerPolicyEnabled: true,
		ReferrerPolicyValue:   "strict-origin-when-cross-origin",
	}
}

// SecurityHeadersMiddleware returns a middleware that sets security headers.
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Enabled {
		logger.Info("security headers middleware disabled")
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.HSTSEnabled {
				hsts := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
				if cfg.HSTSIncludeSubdomains {
					hsts += "; includeSubDomains"
				}
				w.Header().Set("Strict-Transport-Security", hsts)
			}

			if cfg.CSPEnabled {
				w.Header().Set("Content-Security-Policy", buildCSP(cfg))
			}

			if cfg.FrameOptionsEnabled && cfg.FrameOptionsValue != "" {
				w.Header().Set("X-Frame-Options", cfg.FrameOptionsValue)
			}

			if cfg.ContentTypeOptionsEnabled {
				w.Header().Set("X-Content-Type-Options", "nosniff")
			}

			if cfg.ReferrerPolicyEnabled && cfg.ReferrerPolicyValue != "" {
				w.Header().Set("Referrer-Policy", cfg.ReferrerPolicyValue)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// buildCSP builds the Content-Security-Policy header value.
func buildCSP(cfg SecurityHeadersConfig) string {
	var directives []string

	if len(cfg.CSPDefaultSrc) > 0 {
		directives = append(directives, "default-src "+strings.Join(cfg.CSPDefaultSrc, " "))
	}
	if len(cfg.CSPFrameAncestors) > 0 {
		directives = append(directives, "frame-ancestors "+strings.Join(cfg.CSPFrameAncestors, " "))
	}

	return strings.Join(directives, "; ")
}
