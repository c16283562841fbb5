// Package errs defines the error taxonomy shared by the storefront core.
//
// Every business failure carries a stable machine-readable code so the
// transport layer can map it without string matching. Invariant violations
// (negative stock) use their own code and are treated as bug signals, not
// user errors.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies the error category.
type Code string

const (
	CodeValidation            Code = "VALIDATION"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInsufficientInventory Code = "INSUFFICIENT_INVENTORY"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeInvalidAction         Code = "INVALID_ACTION"
	CodeNegativeStock         Code = "NEGATIVE_STOCK"

	// Discount outcome codes. All are validation-class from the caller's
	// point of view: the request was well-formed but the code cannot apply.
	CodeDiscountInactive      Code = "DISCOUNT_INACTIVE"
	CodeDiscountNotStarted    Code = "DISCOUNT_NOT_STARTED"
	CodeDiscountExpired       Code = "DISCOUNT_EXPIRED"
	CodeDiscountExhausted     Code = "DISCOUNT_EXHAUSTED"
	CodeDiscountMinPurchase   Code = "DISCOUNT_MIN_PURCHASE"
	CodeDiscountNotApplicable Code = "DISCOUNT_NOT_APPLICABLE"
)

// CommerceError is the generic coded error for the storefront core.
type CommerceError struct {
	Code    Code
	Message string
	// Field names the offending input field for validation errors.
	Field string
}

func (e *CommerceError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidation builds a VALIDATION error with field-level detail.
func NewValidation(field, message string) *CommerceError {
	return &CommerceError{Code: CodeValidation, Message: message, Field: field}
}

// NewNotFound builds a NOT_FOUND error naming the missing entity.
func NewNotFound(entity string) *CommerceError {
	return &CommerceError{Code: CodeNotFound, Message: entity + " not found"}
}

// NewInvalidAction builds an INVALID_ACTION error.
func NewInvalidAction(message string) *CommerceError {
	return &CommerceError{Code: CodeInvalidAction, Message: message}
}

// NewDiscount builds a discount outcome error with the given code.
func NewDiscount(code Code, message string) *CommerceError {
	return &CommerceError{Code: code, Message: message}
}

// InsufficientInventoryError is returned when a requested quantity exceeds
// the available quantity. It carries the actual availability so the caller
// can retry with a smaller amount.
type InsufficientInventoryError struct {
	ProductID int64
	Requested int64
	Available int64
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("%s: requested %d of product %d, %d available",
		CodeInsufficientInventory, e.Requested, e.ProductID, e.Available)
}

// NegativeStockError signals that an adjustment would drive on-hand
// quantity below zero. Outside of explicit backorder this indicates a
// concurrency-control bug and is logged as an anomaly by the ledger.
type NegativeStockError struct {
	ProductID int64
	Quantity  int64
	Delta     int64
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("%s: adjust product %d by %d from quantity %d",
		CodeNegativeStock, e.ProductID, e.Delta, e.Quantity)
}

// InvalidTransitionError is returned for an illegal order status move.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition order from %q to %q", CodeInvalidTransition, e.From, e.To)
}

// CodeOf extracts the machine-readable code from any core error.
// Unknown errors map to the empty code.
func CodeOf(err error) Code {
	var ce *CommerceError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ie *InsufficientInventoryError
	if errors.As(err, &ie) {
		return CodeInsufficientInventory
	}
	var ne *NegativeStockError
	if errors.As(err, &ne) {
		return CodeNegativeStock
	}
	var te *InvalidTransitionError
	if errors.As(err, &te) {
		return CodeInvalidTransition
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

// IsValidation reports whether err is a VALIDATION error.
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsInsufficientInventory reports whether err is an inventory conflict,
// and returns the typed error for access to the Available field.
func IsInsufficientInventory(err error) (*InsufficientInventoryError, bool) {
	var ie *InsufficientInventoryError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
