package myerrors

import (
	"errors"
	"fmt"
	"log"
	"net/http"
)

type httpErrorCoder interface {
	error
	GetHTTPErrorCode() int
}

type detailer interface {
	GetDetails() map[string]any
}

type httpError struct {
	httpCode int
	err      error
	details  map[string]any
}

func (e *httpError) Error() string {
	return fmt.Sprintf("status: %d, err: %s", e.httpCode, e.err.Error())
}

func (e *httpError) Unwrap() error {
	return e.err
}

func (e *httpError) GetHTTPErrorCode() int {
	return e.httpCode
}

func (e *httpError) GetDetails() map[string]any {
	return e.details
}

// WithDetail attaches diagnostic data that is rendered next to the error message.
func (e *httpError) WithDetail(key string, value any) *httpError {
	if e.details == nil {
		e.details = map[string]any{}
	}
	e.details[key] = value
	return e
}

func newError(httpCode int, err error) *httpError {
	return &httpError{
		httpCode: httpCode,
		err:      err,
	}
}

func NewInvalidInputError(err error) *httpError {
	log.Printf("Returning 400: %s", err.Error())
	return newError(http.StatusBadRequest, err)
}

func NewInvalidInputErrorf(format string, args ...interface{}) *httpError {
	return NewInvalidInputError(fmt.Errorf(format, args...))
}

func NewUnsupportedMediaTypeError(err error) *httpError {
	return newError(http.StatusUnsupportedMediaType, err)
}

func NewNotFoundError(err error) *httpError {
	return newError(http.StatusNotFound, err)
}

func NewAuthenticationError(err error) *httpError {
	return newError(http.StatusForbidden, err)
}

func NewConflictError(err error) *httpError {
	return newError(http.StatusConflict, err)
}

func NewTooManyRequestsError(err error) *httpError {
	return newError(http.StatusTooManyRequests, err)
}

func NewInternalError(err error) *httpError {
	return newError(http.StatusInternalServerError, err)
}

func NewNotImplementedError(err error) *httpError {
	return newError(http.StatusNotImplemented, err)
}

func NewBadGatewayError(err error) *httpError {
	return newError(http.StatusBadGateway, err)
}

func NewUnavailableError(err error) *httpError {
	return newError(http.StatusServiceUnavailable, err)
}

// GetHTTPStatus returns the status of the outermost coded error in the chain.
func GetHTTPStatus(err error) int {
	var coder httpErrorCoder
	if err != nil && errors.As(err, &coder) {
		return coder.GetHTTPErrorCode()
	}
	return http.StatusInternalServerError
}

// GetDetails returns the diagnostic data attached to the outermost coded error, if any.
func GetDetails(err error) map[string]any {
	var d detailer
	if err != nil && errors.As(err, &d) {
		return d.GetDetails()
	}
	return nil
}
