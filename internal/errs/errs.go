package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the fulfillment core. Callers branch on the code, never on
// the message text.
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeItemNotFound          = "ITEM_NOT_FOUND"
	CodeWarehouseNotFound     = "WAREHOUSE_NOT_FOUND"
	CodePackageNotFound       = "PACKAGE_NOT_FOUND"
	CodeInsufficientQuantity  = "INSUFFICIENT_QUANTITY"
	CodeCapacityExceeded      = "CAPACITY_EXCEEDED"
	CodeBatchTooLarge         = "BATCH_TOO_LARGE"
	CodeInvalidState          = "INVALID_STATE"
	CodeDownstreamUnavailable = "DOWNSTREAM_UNAVAILABLE"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeConflict              = "CONFLICT"
	CodeInternal              = "INTERNAL_ERROR"
)

// Error is the typed result every core operation returns across component
// boundaries instead of a bare error string.
type Error struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func newError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

func InvalidRequest(message string) *Error {
	return newError(CodeInvalidRequest, message, http.StatusBadRequest)
}

func ItemNotFound(perfumeID string) *Error {
	return newError(CodeItemNotFound, "catalogue item not found", http.StatusNotFound).
		WithDetail("perfume_id", perfumeID)
}

func WarehouseNotFound(warehouseID string) *Error {
	return newError(CodeWarehouseNotFound, "warehouse not found", http.StatusNotFound).
		WithDetail("warehouse_id", warehouseID)
}

func PackageNotFound(ids string) *Error {
	return newError(CodePackageNotFound, "package not found", http.StatusNotFound).
		WithDetail("package_ids", ids)
}

func InsufficientQuantity(perfumeID string, required, available int) *Error {
	return newError(CodeInsufficientQuantity, "insufficient quantity", http.StatusConflict).
		WithDetail("perfume_id", perfumeID).
		WithDetail("required", fmt.Sprintf("%d", required)).
		WithDetail("available", fmt.Sprintf("%d", available))
}

func CapacityExceeded(warehouseID string, max int) *Error {
	return newError(CodeCapacityExceeded, "warehouse capacity exceeded", http.StatusConflict).
		WithDetail("warehouse_id", warehouseID).
		WithDetail("max_packages", fmt.Sprintf("%d", max))
}

func BatchTooLarge(requested, max int) *Error {
	return newError(CodeBatchTooLarge, "shipment batch exceeds policy limit", http.StatusConflict).
		WithDetail("requested", fmt.Sprintf("%d", requested)).
		WithDetail("max_batch", fmt.Sprintf("%d", max))
}

func InvalidState(ids string) *Error {
	return newError(CodeInvalidState, "package not in expected status", http.StatusConflict).
		WithDetail("package_ids", ids)
}

func DownstreamUnavailable(service string, err error) *Error {
	return newError(CodeDownstreamUnavailable, service+" is unavailable", http.StatusServiceUnavailable).Wrap(err)
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "authentication required"
	}
	return newError(CodeUnauthorized, message, http.StatusUnauthorized)
}

func Conflict(message string) *Error {
	return newError(CodeConflict, message, http.StatusConflict)
}

func Internal(err error) *Error {
	return newError(CodeInternal, "internal error", http.StatusInternalServerError).Wrap(err)
}

// As unwraps err into *Error when possible.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// From converts any error into a typed one; unknown errors become internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Internal(err)
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
