// Package shared
package shared

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
)

// ExtractAPIKey pulls a bearer credential from the Authorization header.
func ExtractAPIKey(c echo.Context) (string, error) {
	auth := c.Request().Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid authentication format")
	}

	return parts[1], nil
}

// Redact removes every occurrence of secret from detail so upstream
// error bodies can be logged without leaking the credential they were
// authenticated with. Empty secrets are left alone.
func Redact(detail, secret string) string {
	if secret == "" {
		return detail
	}
	return strings.ReplaceAll(detail, secret, "[redacted]")
}

// Truncate bounds log detail pulled from upstream bodies.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
