// Package accountapi pkg/accountapi/error.go
package accountapi

import (
	"fmt"
	"net/http"
)

// HTTPError is a non-OK account service response.
type HTTPError struct {
	HTTPStatus int    `json:"code,omitempty"`
	Err        string `json:"error,omitempty"`
}

// Error implements error.
func (err *HTTPError) Error() string {
	if err.Err == "" {
		return http.StatusText(err.HTTPStatus)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(err.HTTPStatus), err.Err)
}
