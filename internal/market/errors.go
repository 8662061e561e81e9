package market

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the marketplace API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("marketplace api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("marketplace api: status %d", e.Status)
}

// IsPermission reports whether err is a 403 from the marketplace, which means
// the account tier does not include messenger API access.
func IsPermission(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden
}

// IsNotFound reports whether err is a 404 from the marketplace.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
