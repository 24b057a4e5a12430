package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	// Local preconditions, raised before any network call.
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeInvalidQuantity Code = "INVALID_QUANTITY"
	CodeCartEmpty       Code = "CART_EMPTY"

	// Submission-time categories derived from server or network failures.
	CodeCartChanged       Code = "CART_CHANGED"
	CodePriceMismatch     Code = "PRICE_MISMATCH"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodePaymentFailed     Code = "PAYMENT_FAILED"
	CodeServiceBusy       Code = "SERVICE_BUSY"
	CodeUnknown           Code = "UNKNOWN"
)

// Recovery names the fixed user-facing recovery action for a category.
type Recovery string

const (
	RecoveryNone             Recovery = "none"
	RecoveryReviewCart       Recovery = "review_cart"
	RecoveryRestartAtAddress Recovery = "restart_at_address"
	RecoveryRecomputeTotals  Recovery = "recompute_totals"
	RecoveryReselectPayment  Recovery = "reselect_payment"
	RecoveryRetryLater       Recovery = "retry_later"
)

type Metadata struct {
	Retryable   bool
	UserMessage string
	Recovery    Recovery
}

var metadataByCode = map[Code]Metadata{
	CodeUnauthenticated: {
		Retryable:   false,
		UserMessage: "please sign in to continue",
		Recovery:    RecoveryNone,
	},
	CodeInvalidQuantity: {
		Retryable:   false,
		UserMessage: "quantity must be at least 1",
		Recovery:    RecoveryReviewCart,
	},
	CodeCartEmpty: {
		Retryable:   false,
		UserMessage: "your cart is already empty",
		Recovery:    RecoveryReviewCart,
	},
	CodeCartChanged: {
		Retryable:   false,
		UserMessage: "your cart changed while you were checking out, please review it",
		Recovery:    RecoveryRestartAtAddress,
	},
	CodePriceMismatch: {
		Retryable:   false,
		UserMessage: "prices were updated, your total has been recalculated",
		Recovery:    RecoveryRecomputeTotals,
	},
	CodeInsufficientStock: {
		Retryable:   false,
		UserMessage: "an item in your cart is no longer in stock",
		Recovery:    RecoveryRestartAtAddress,
	},
	CodePaymentFailed: {
		Retryable:   false,
		UserMessage: "your payment could not be processed, please check your payment details",
		Recovery:    RecoveryReselectPayment,
	},
	CodeServiceBusy: {
		Retryable:   true,
		UserMessage: "the store is busy right now, please try again in a moment",
		Recovery:    RecoveryRetryLater,
	},
	CodeUnknown: {
		Retryable:   false,
		UserMessage: "something went wrong, please try again",
		Recovery:    RecoveryNone,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeUnknown]
}

type Error struct {
	code      Code
	message   string
	details   any
	cause     error
	retryable *bool
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// WithRetryable overrides the code's default retryability, preserving
// status-derived classification on wrapped transport errors.
func (e *Error) WithRetryable(retryable bool) *Error {
	if e == nil {
		return nil
	}
	e.retryable = &retryable
	return e
}

// Retryable reports whether the error is transient. An explicit hint
// wins; otherwise the code's metadata decides.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return MetadataFor(e.code).Retryable
}

// UserMessage returns the fixed user-facing template for the code.
func (e *Error) UserMessage() string {
	return MetadataFor(e.Code()).UserMessage
}

// RecoveryAction returns the fixed recovery action for the code.
func (e *Error) RecoveryAction() Recovery {
	return MetadataFor(e.Code()).Recovery
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the domain code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeUnknown
}
