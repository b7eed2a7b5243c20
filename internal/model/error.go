package model

import (
	"fmt"
	"strings"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON         = "INVALID_JSON"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeCurrencyMismatch    = "CURRENCY_MISMATCH"
	ErrCodeInvalidQuantity     = "INVALID_QUANTITY"
	ErrCodeEmptyOrder          = "EMPTY_ORDER"
	ErrCodeAlreadyConfirmed    = "ALREADY_CONFIRMED"
	ErrCodeUnpaidOrder         = "UNPAID_ORDER"
	ErrCodeAlreadyShipped      = "ALREADY_SHIPPED"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeNotCancellable      = "NOT_CANCELLABLE"
	ErrCodeProductUnavailable  = "PRODUCT_UNAVAILABLE"
	ErrCodeInsufficientStock   = "INSUFFICIENT_STOCK"
	ErrCodeProductLocked       = "PRODUCT_LOCKED"
	ErrCodePaymentNotConfirmed = "PAYMENT_NOT_CONFIRMED"
	ErrCodeInvalidSignature    = "INVALID_SIGNATURE"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// DomainError is a business-rule violation carried as a typed error so
// callers never have to pattern-match on message text.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrCurrencyMismatch    = NewDomainError(ErrCodeCurrencyMismatch, "Monetary values have different currencies")
	ErrInvalidQuantity     = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be a positive integer")
	ErrEmptyOrder          = NewDomainError(ErrCodeEmptyOrder, "Order must contain at least one item")
	ErrAlreadyConfirmed    = NewDomainError(ErrCodeAlreadyConfirmed, "Payment has already been confirmed")
	ErrUnpaidOrder         = NewDomainError(ErrCodeUnpaidOrder, "Order has not been paid")
	ErrAlreadyShipped      = NewDomainError(ErrCodeAlreadyShipped, "Order has already been shipped")
	ErrInvalidTransition   = NewDomainError(ErrCodeInvalidTransition, "Order status does not allow this transition")
	ErrNotCancellable      = NewDomainError(ErrCodeNotCancellable, "Order can no longer be cancelled")
	ErrPaymentNotConfirmed = NewDomainError(ErrCodePaymentNotConfirmed, "Payment was not confirmed")
)

// StockError reports a stock-level conflict detected inside the atomic order
// commit. Code is either ErrCodeInsufficientStock or ErrCodeProductLocked;
// ProductIDs names the contended products so the client message can be
// specific.
type StockError struct {
	Code       string
	ProductIDs []string
}

func (e *StockError) Error() string {
	if e.Code == ErrCodeProductLocked {
		return fmt.Sprintf("products currently locked by a concurrent order: %s", strings.Join(e.ProductIDs, ", "))
	}
	return fmt.Sprintf("insufficient stock for products: %s", strings.Join(e.ProductIDs, ", "))
}

// Retryable reports whether the conflict is transient. Lock contention
// resolves once the concurrent commit finishes; missing stock does not.
func (e *StockError) Retryable() bool {
	return e.Code == ErrCodeProductLocked
}

// NewInsufficientStockError creates a stock error for products whose
// available quantity is below the requested quantity.
func NewInsufficientStockError(productIDs []string) *StockError {
	return &StockError{Code: ErrCodeInsufficientStock, ProductIDs: productIDs}
}

// NewProductLockedError creates a stock error for products locked by a
// concurrently-committing order.
func NewProductLockedError(productIDs []string) *StockError {
	return &StockError{Code: ErrCodeProductLocked, ProductIDs: productIDs}
}

// ProductUnavailableError names the product that is missing from the catalog
// or no longer active.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}
