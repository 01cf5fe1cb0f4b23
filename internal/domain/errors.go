package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Argument / precondition errors (ARG_*)
	ErrorCodeInvalidArgument   ErrorCode = "ARG_INVALID"
	ErrorCodeNoPaymentSource   ErrorCode = "ARG_NO_PAYMENT_SOURCE"
	ErrorCodeNoGatewayCustomer ErrorCode = "ARG_NO_GATEWAY_CUSTOMER"

	// Customer errors (CUSTOMER_*)
	ErrorCodeCustomerNotFound      ErrorCode = "CUSTOMER_NOT_FOUND"
	ErrorCodeCustomerAlreadyLinked ErrorCode = "CUSTOMER_ALREADY_LINKED"

	// Subscription errors (SUB_*)
	ErrorCodeSubscriptionNotFound  ErrorCode = "SUB_NOT_FOUND"
	ErrorCodeDuplicateSubscription ErrorCode = "SUB_DUPLICATE"
	ErrorCodeInvalidState          ErrorCode = "SUB_INVALID_STATE"

	// Invoice errors (INVOICE_*)
	ErrorCodeInvoiceNotFound  ErrorCode = "INVOICE_NOT_FOUND"
	ErrorCodeNothingToInvoice ErrorCode = "INVOICE_NOTHING_TO_INVOICE"

	// Payment gateway errors (GATEWAY_*)
	ErrorCodeGatewayError    ErrorCode = "GATEWAY_ERROR"
	ErrorCodeGatewayTimeout  ErrorCode = "GATEWAY_TIMEOUT"
	ErrorCodeGatewayDeclined ErrorCode = "GATEWAY_DECLINED"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// BillingError represents a structured billing error with error code and context
type BillingError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *BillingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *BillingError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *BillingError) WithDetail(key string, value interface{}) *BillingError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewBillingError creates a new billing error
func NewBillingError(code ErrorCode, message string) *BillingError {
	return &BillingError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a billing error code
func WrapError(code ErrorCode, message string, err error) *BillingError {
	return &BillingError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsBillingError checks if an error is a BillingError with the given code
func IsBillingError(err error, code ErrorCode) bool {
	var billingErr *BillingError
	if errors.As(err, &billingErr) {
		return billingErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a BillingError
func GetErrorCode(err error) ErrorCode {
	var billingErr *BillingError
	if errors.As(err, &billingErr) {
		return billingErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeCustomerNotFound ||
		code == ErrorCodeSubscriptionNotFound ||
		code == ErrorCodeInvoiceNotFound
}

// IsInvalidArgumentError checks if an error is a missing-precondition error
func IsInvalidArgumentError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeInvalidArgument ||
		code == ErrorCodeNoPaymentSource ||
		code == ErrorCodeNoGatewayCustomer
}

// IsGatewayError checks if an error is a payment gateway error
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayError ||
		code == ErrorCodeGatewayTimeout ||
		code == ErrorCodeGatewayDeclined
}

// IsDuplicateSubscriptionError checks for a (customer, name) uniqueness conflict
func IsDuplicateSubscriptionError(err error) bool {
	return GetErrorCode(err) == ErrorCodeDuplicateSubscription
}

// IsInvalidStateError checks for an illegal subscription state transition
func IsInvalidStateError(err error) bool {
	return GetErrorCode(err) == ErrorCodeInvalidState
}

// Structured error instances
var (
	ErrInvalidArgument   = NewBillingError(ErrorCodeInvalidArgument, "invalid argument")
	ErrNoPaymentSource   = NewBillingError(ErrorCodeNoPaymentSource, "no payment source available for charge")
	ErrNoGatewayCustomer = NewBillingError(ErrorCodeNoGatewayCustomer, "customer has no gateway customer id")

	ErrCustomerNotFound      = NewBillingError(ErrorCodeCustomerNotFound, "customer not found")
	ErrCustomerAlreadyLinked = NewBillingError(ErrorCodeCustomerAlreadyLinked, "customer is already linked to a gateway customer")

	ErrSubscriptionNotFound  = NewBillingError(ErrorCodeSubscriptionNotFound, "subscription not found")
	ErrDuplicateSubscription = NewBillingError(ErrorCodeDuplicateSubscription, "subscription already exists for this customer and name")
	ErrInvalidState          = NewBillingError(ErrorCodeInvalidState, "subscription is in invalid state for this operation")

	ErrInvoiceNotFound  = NewBillingError(ErrorCodeInvoiceNotFound, "invoice not found")
	ErrNothingToInvoice = NewBillingError(ErrorCodeNothingToInvoice, "no pending invoice items to invoice")

	ErrGatewayError    = NewBillingError(ErrorCodeGatewayError, "payment gateway error")
	ErrGatewayTimedOut = NewBillingError(ErrorCodeGatewayTimeout, "payment gateway timeout")
	ErrGatewayDeclined = NewBillingError(ErrorCodeGatewayDeclined, "request declined by gateway")

	ErrInternalError = NewBillingError(ErrorCodeInternalError, "internal error")
	ErrDatabaseError = NewBillingError(ErrorCodeDatabaseError, "database error")
)
