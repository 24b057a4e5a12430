package errors

import (
	"net/http"
	"strings"
)

// Classification is the result of mapping a raw failure to a category.
type Classification struct {
	Code      Code
	Retryable bool
}

var retryableStatuses = map[int]struct{}{
	http.StatusRequestTimeout:     {},
	http.StatusTooManyRequests:    {},
	http.StatusServiceUnavailable: {},
}

var retryablePhrases = []string{
	"timeout",
	"temporarily unavailable",
	"high demand",
	"lock conflict",
}

// Classify maps an HTTP status and message text to a submission-time
// category plus retryability. It is a pure function: the same inputs
// always produce the same classification.
func Classify(status int, message string) Classification {
	normalized := strings.ToLower(message)

	retryable := false
	if _, ok := retryableStatuses[status]; ok {
		retryable = true
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(normalized, phrase) {
			retryable = true
			break
		}
	}

	return Classification{
		Code:      categoryFor(status, normalized, retryable),
		Retryable: retryable,
	}
}

// ClassifyError classifies an arbitrary error from the submission path.
// Domain errors keep their code; everything else falls through to the
// message-based rules with no status.
func ClassifyError(err error) Classification {
	if err == nil {
		return Classification{Code: CodeUnknown}
	}
	if typed := As(err); typed != nil {
		if _, known := metadataByCode[typed.Code()]; known && typed.Code() != CodeUnknown {
			return Classification{
				Code:      typed.Code(),
				Retryable: typed.Retryable(),
			}
		}
	}
	return Classify(0, err.Error())
}

func categoryFor(status int, normalized string, retryable bool) Code {
	switch {
	case containsAny(normalized, "cart has changed", "cart changed", "cart was modified", "cart modified"):
		return CodeCartChanged
	case containsAny(normalized, "price mismatch", "price changed", "total mismatch", "price"):
		return CodePriceMismatch
	case containsAny(normalized, "insufficient stock", "out of stock", "not enough stock", "sold out"):
		return CodeInsufficientStock
	case containsAny(normalized, "payment", "card declined", "declined"):
		return CodePaymentFailed
	case retryable:
		return CodeServiceBusy
	case status == http.StatusUnauthorized:
		return CodeUnauthenticated
	default:
		return CodeUnknown
	}
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
