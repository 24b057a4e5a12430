package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/internal/draft"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func testSubmitter(t *testing.T, apiStub *stubCheckoutAPI, cart *stubCart, drafts draft.Store) (*Submitter, *Flow, draft.Store) {
	t.Helper()
	if drafts == nil {
		drafts = draft.NewMemoryStore()
	}
	flow := testFlow(t, apiStub, cart, drafts, nil)
	sub, err := NewSubmitter(SubmitterParams{
		API:     apiStub,
		Cart:    cart,
		Flow:    flow,
		Session: session.New("token", "US", "CA"),
		Logger:  testLogger(),
		Retry:   fastRetry(),
	})
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}
	return sub, flow, drafts
}

func walkToReview(t *testing.T, flow *Flow) {
	t.Helper()
	ctx := context.Background()
	steps := []func() error{
		func() error { return flow.SetShippingAddress(ctx, "addr-1") },
		func() error { return flow.Next(ctx) },
		func() error { return flow.SetShippingMethod(ctx, "method-1", 500) },
		func() error { return flow.Next(ctx) },
		func() error { return flow.SetPaymentMethod(ctx, "pm-1") },
		func() error { return flow.Next(ctx) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("walk step %d: %v", i, err)
		}
	}
}

func TestSubmitRetryableFailureThenSuccess(t *testing.T) {
	var keys []string
	calls := 0
	apiStub := &stubCheckoutAPI{
		checkout: func(ctx context.Context, token string, req api.CheckoutRequest) (*api.Order, error) {
			calls++
			keys = append(keys, req.IdempotencyKey)
			if calls == 1 {
				return nil, pkgerrors.New(pkgerrors.CodeServiceBusy, "temporarily unavailable").WithRetryable(true)
			}
			return &api.Order{ID: "order-42", Status: "pending"}, nil
		},
	}
	cart := &stubCart{cart: filledCart()}
	sub, flow, drafts := testSubmitter(t, apiStub, cart, nil)
	walkToReview(t, flow)

	order, err := sub.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.ID != "order-42" {
		t.Fatalf("expected order-42, got %q", order.ID)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
	if keys[0] == "" || keys[0] != keys[1] {
		t.Fatalf("idempotency key must be reused verbatim across retries: %v", keys)
	}
	if cart.resets != 1 {
		t.Fatal("success must drop local cart state")
	}
	if _, found, _ := drafts.Load(context.Background()); found {
		t.Fatal("success must clear the persisted draft")
	}
}

func TestSubmitNonRetryableFailureDoesNotRetry(t *testing.T) {
	calls := 0
	apiStub := &stubCheckoutAPI{
		checkout: func(ctx context.Context, token string, req api.CheckoutRequest) (*api.Order, error) {
			calls++
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "Insufficient stock for variant v1")
		},
	}
	cart := &stubCart{cart: filledCart()}
	sub, flow, drafts := testSubmitter(t, apiStub, cart, nil)
	walkToReview(t, flow)

	_, err := sub.Submit(context.Background())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeInsufficientStock, err)
	}
	if calls != 1 {
		t.Fatalf("terminal failure must not retry, got %d calls", calls)
	}
	if cart.resets != 0 {
		t.Fatal("failure must leave the cart intact")
	}
	if _, found, _ := drafts.Load(context.Background()); !found {
		t.Fatal("failure must leave the draft intact")
	}
	if flow.Step() != StepAddress {
		t.Fatalf("insufficient stock should restart at the address step, got %s", flow.Step())
	}
}

func TestSubmitExhaustsRetriesForPersistentBusy(t *testing.T) {
	calls := 0
	apiStub := &stubCheckoutAPI{
		checkout: func(ctx context.Context, token string, req api.CheckoutRequest) (*api.Order, error) {
			calls++
			return nil, pkgerrors.New(pkgerrors.CodeServiceBusy, "high demand").WithRetryable(true)
		},
	}
	cart := &stubCart{cart: filledCart()}
	sub, flow, _ := testSubmitter(t, apiStub, cart, nil)
	walkToReview(t, flow)

	_, err := sub.Submit(context.Background())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeServiceBusy {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeServiceBusy, err)
	}
	if calls != 3 {
		t.Fatalf("expected attempts to exhaust at 3, got %d", calls)
	}
	if flow.Step() != StepReview {
		t.Fatalf("service-busy failure should keep the buyer on review, got %s", flow.Step())
	}
}

func TestSubmitPaymentFailureReturnsToPaymentStep(t *testing.T) {
	apiStub := &stubCheckoutAPI{
		checkout: func(ctx context.Context, token string, req api.CheckoutRequest) (*api.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, "card declined")
		},
	}
	cart := &stubCart{cart: filledCart()}
	sub, flow, _ := testSubmitter(t, apiStub, cart, nil)
	walkToReview(t, flow)

	_, err := sub.Submit(context.Background())
	if pkgerrors.CodeOf(err) != pkgerrors.CodePaymentFailed {
		t.Fatalf("expected %s, got %v", pkgerrors.CodePaymentFailed, err)
	}
	if flow.Step() != StepPayment {
		t.Fatalf("payment failure should return to the payment step, got %s", flow.Step())
	}
	if flow.Selections().PaymentMethodID != "" {
		t.Fatal("failed payment method should be deselected")
	}
}

func TestSubmitRequiresReviewStep(t *testing.T) {
	cart := &stubCart{cart: filledCart()}
	sub, _, _ := testSubmitter(t, &stubCheckoutAPI{}, cart, nil)

	if _, err := sub.Submit(context.Background()); err == nil {
		t.Fatal("submitting away from the review step must fail")
	}
}

func TestSubmitRejectsEmptyCart(t *testing.T) {
	cart := &stubCart{}
	sub, flow, _ := testSubmitter(t, &stubCheckoutAPI{}, cart, nil)

	ctx := context.Background()
	flow.SetShippingAddress(ctx, "addr-1")
	flow.Next(ctx)
	flow.SetShippingMethod(ctx, "method-1", 500)
	flow.Next(ctx)
	flow.SetPaymentMethod(ctx, "pm-1")
	flow.Next(ctx)

	_, err := sub.Submit(ctx)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeCartEmpty {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeCartEmpty, err)
	}
}

func TestSubmitRequiresAuthenticatedSession(t *testing.T) {
	cart := &stubCart{cart: filledCart()}
	flow := testFlow(t, &stubCheckoutAPI{}, cart, nil, nil)
	sub, err := NewSubmitter(SubmitterParams{
		API:     &stubCheckoutAPI{},
		Cart:    cart,
		Flow:    flow,
		Session: session.New("", "US", ""),
		Logger:  testLogger(),
		Retry:   fastRetry(),
	})
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}

	_, err = sub.Submit(context.Background())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeUnauthenticated {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeUnauthenticated, err)
	}
}

func TestSubmitValidatesPayloadBeforeNetwork(t *testing.T) {
	calls := 0
	apiStub := &stubCheckoutAPI{
		checkout: func(ctx context.Context, token string, req api.CheckoutRequest) (*api.Order, error) {
			calls++
			return &api.Order{ID: "order-1"}, nil
		},
	}
	// Items priced at zero drive the computed total to zero, which the
	// pre-flight validation rejects.
	zeroCart := &stubCart{cart: &api.Cart{
		ID:    "cart-1",
		Items: []api.CartItem{{ID: "item-1", VariantID: "v1", Quantity: 1}},
	}}
	sub, flow, _ := testSubmitter(t, apiStub, zeroCart, nil)
	walkToReview(t, flow)
	flow.SetShippingMethod(context.Background(), "method-free", 0)

	if _, err := sub.Submit(context.Background()); err == nil {
		t.Fatal("expected validation failure for zero total")
	}
	if calls != 0 {
		t.Fatal("validation failures must never reach the network")
	}
}

func TestSubmitNewKeyPerLogicalSubmission(t *testing.T) {
	var keys []string
	apiStub := &stubCheckoutAPI{
		checkout: func(ctx context.Context, token string, req api.CheckoutRequest) (*api.Order, error) {
			keys = append(keys, req.IdempotencyKey)
			return &api.Order{ID: "order-1"}, nil
		},
	}
	cart := &stubCart{cart: filledCart()}
	sub, flow, _ := testSubmitter(t, apiStub, cart, nil)
	walkToReview(t, flow)

	if _, err := sub.Submit(context.Background()); err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	// A second logical submission gets a fresh key.
	cart.cart = filledCart()
	walkToReview(t, flow)
	if _, err := sub.Submit(context.Background()); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	if len(keys) != 2 || keys[0] == keys[1] {
		t.Fatalf("each logical submission needs its own key, got %v", keys)
	}
}
