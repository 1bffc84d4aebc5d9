package spapi

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/erp/sellersync/internal/domain/marketplace"
)

var (
	nextTokenMention = regexp.MustCompile(`(?i)next\s*token`)
	tokenDead        = regexp.MustCompile(`(?i)expired|invalid`)
)

// APIError is a non-2xx vendor response. It satisfies errors.Is for the
// marketplace error taxonomy based on status code and body.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("spapi: %s returned HTTP %d: %s", e.Operation, e.StatusCode, body)
}

// Is maps the response onto marketplace sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case marketplace.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case marketplace.ErrDuplicateReport:
		return e.StatusCode == http.StatusTooEarly
	case marketplace.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case marketplace.ErrVendorUnavailable:
		return e.StatusCode >= 500
	case marketplace.ErrTokenExpired:
		return e.isTokenExpired()
	default:
		return false
	}
}

func (e *APIError) isTokenExpired() bool {
	if e.StatusCode < 400 || e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return nextTokenMention.MatchString(e.Body) && tokenDead.MatchString(e.Body)
}
