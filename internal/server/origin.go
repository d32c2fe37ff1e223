// Package server normalizes and validates HTTP origins for WebSocket
// requests to enforce the configured allow-list.
package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// originChecker holds the normalized origin allow-list for one server.
type originChecker struct {
	allowAll bool
	allowed  map[string]struct{}
	log      zerolog.Logger
}

func newOriginChecker(origins []string, log zerolog.Logger) *originChecker {
	c := &originChecker{
		allowed: make(map[string]struct{}, len(origins)),
		log:     log,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			c.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
			continue
		}
		c.allowed[normalized] = struct{}{}
	}

	return c
}

// check is the gorilla upgrader's CheckOrigin hook.
func (c *originChecker) check(r *http.Request) bool {
	if c.isAllowed(r) {
		return true
	}
	c.log.Warn().Str("origin", r.Header.Get("Origin")).
		Msg("blocked websocket connection from disallowed origin")
	return false
}

func (c *originChecker) isAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalized, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if c.allowAll {
		return true
	}

	_, exists := c.allowed[normalized]
	return exists
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
