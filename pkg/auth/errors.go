package auth

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// httpStatusError is implemented by errors that carry an HTTP status code.
// *oauth2.RetrieveError (returned by the oauth2 package on a failed token
// exchange) does not satisfy it directly; retrieveErrorAdapter below does.
type httpStatusError interface {
	error
	StatusCode() int
}

// retrieveErrorAdapter adapts *oauth2.RetrieveError (whose Response field carries
// the status) to httpStatusError.
type retrieveErrorAdapter struct{ *oauth2.RetrieveError }

func (r retrieveErrorAdapter) StatusCode() int {
	if r.Response != nil {
		return r.Response.StatusCode
	}
	return 0
}

func isAuthClassError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErrorAdapter{retrieveErr}.StatusCode()
		if code == http.StatusUnauthorized || code == http.StatusBadRequest {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") || strings.Contains(msg, "bad request")
}
