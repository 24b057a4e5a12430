package errors

import (
	"errors"
	"testing"
)

func TestClassifyRetryableStatuses(t *testing.T) {
	for _, status := range []int{408, 429, 503} {
		got := Classify(status, "something went wrong")
		if !got.Retryable {
			t.Fatalf("status %d should be retryable", status)
		}
		if got.Code != CodeServiceBusy {
			t.Fatalf("status %d: expected %s, got %s", status, CodeServiceBusy, got.Code)
		}
	}
}

func TestClassifyRetryablePhrases(t *testing.T) {
	phrases := []string{
		"request timeout while contacting upstream",
		"service temporarily unavailable",
		"we are experiencing high demand",
		"lock conflict on cart row",
	}
	for _, phrase := range phrases {
		got := Classify(500, phrase)
		if !got.Retryable {
			t.Fatalf("phrase %q should be retryable", phrase)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	first := Classify(503, "High demand right now")
	second := Classify(503, "High demand right now")
	if first != second {
		t.Fatalf("same inputs classified differently: %+v vs %+v", first, second)
	}
}

func TestClassifyCategories(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    Code
	}{
		{"cart changed", 409, "Cart has changed since checkout began", CodeCartChanged},
		{"price mismatch", 409, "Price mismatch between client and server totals", CodePriceMismatch},
		{"insufficient stock", 400, "Insufficient stock for variant v1", CodeInsufficientStock},
		{"card declined", 402, "Card declined by issuer", CodePaymentFailed},
		{"busy", 503, "please retry, temporarily unavailable", CodeServiceBusy},
		{"unauthenticated", 401, "session expired", CodeUnauthenticated},
		{"unknown", 500, "boom", CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, tt.message)
			if got.Code != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Code)
			}
		})
	}
}

func TestClassifyRetryableStatusKeepsStockCategory(t *testing.T) {
	got := Classify(503, "Insufficient stock for variant v1")
	if got.Code != CodeInsufficientStock {
		t.Fatalf("expected %s, got %s", CodeInsufficientStock, got.Code)
	}
	if !got.Retryable {
		t.Fatal("503 should stay retryable regardless of category")
	}
}

func TestClassifyErrorKeepsDomainCode(t *testing.T) {
	err := New(CodePriceMismatch, "totals diverged")
	got := ClassifyError(err)
	if got.Code != CodePriceMismatch {
		t.Fatalf("expected %s, got %s", CodePriceMismatch, got.Code)
	}
	if got.Retryable {
		t.Fatal("price mismatch is terminal")
	}
}

func TestClassifyErrorHonorsRetryableOverride(t *testing.T) {
	err := New(CodeInsufficientStock, "insufficient stock").WithRetryable(true)
	got := ClassifyError(err)
	if !got.Retryable {
		t.Fatal("explicit retryable hint should win over category default")
	}
}

func TestClassifyErrorFallsBackToMessage(t *testing.T) {
	got := ClassifyError(errors.New("dial tcp: i/o timeout"))
	if !got.Retryable {
		t.Fatal("timeout message should classify retryable")
	}
	if got.Code != CodeServiceBusy {
		t.Fatalf("expected %s, got %s", CodeServiceBusy, got.Code)
	}
}

func TestRecoveryActions(t *testing.T) {
	tests := []struct {
		code Code
		want Recovery
	}{
		{CodeCartChanged, RecoveryRestartAtAddress},
		{CodeInsufficientStock, RecoveryRestartAtAddress},
		{CodePriceMismatch, RecoveryRecomputeTotals},
		{CodePaymentFailed, RecoveryReselectPayment},
		{CodeServiceBusy, RecoveryRetryLater},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").RecoveryAction(); got != tt.want {
			t.Fatalf("%s: expected recovery %s, got %s", tt.code, tt.want, got)
		}
	}
}

func TestUserMessageIsFixedPerCategory(t *testing.T) {
	first := New(CodeServiceBusy, "raw upstream detail one").UserMessage()
	second := New(CodeServiceBusy, "entirely different detail").UserMessage()
	if first != second {
		t.Fatal("user message must not vary with the raw error text")
	}
	if first == "" {
		t.Fatal("user message must not be empty")
	}
}
