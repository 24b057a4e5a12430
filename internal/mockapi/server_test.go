package mockapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

func testSetup(t *testing.T) (*Server, *api.Client) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	server := NewServer(logg, decimal.RequireFromString("0.08"))

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	client, err := api.NewClient(config.APIConfig{BaseURL: httpServer.URL, RequestTimeout: 5 * time.Second}, logg)
	require.NoError(t, err)
	return server, client
}

func TestCartLifecycle(t *testing.T) {
	_, client := testSetup(t)
	ctx := context.Background()

	cart, err := client.AddToCart(ctx, "tok", api.AddItemInput{VariantID: "v1", Quantity: 2, PricePerUnit: 500})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 2, cart.TotalItems)
	require.Equal(t, 1000, cart.Subtotal)

	// Same variant merges.
	cart, err = client.AddToCart(ctx, "tok", api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 500})
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 3, cart.Items[0].Quantity)

	cart, err = client.UpdateCartItem(ctx, "tok", cart.Items[0].ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, cart.Items[0].Quantity)
	require.Equal(t, 500, cart.Subtotal)

	cart, err = client.RemoveFromCart(ctx, "tok", cart.Items[0].ID)
	require.NoError(t, err)
	require.Empty(t, cart.Items)
}

func TestAddRespectsStockLimit(t *testing.T) {
	server, client := testSetup(t)
	server.SetStock("v1", 2)
	ctx := context.Background()

	_, err := client.AddToCart(ctx, "tok", api.AddItemInput{VariantID: "v1", Quantity: 3, PricePerUnit: 100})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeInsufficientStock, pkgerrors.CodeOf(err))
}

func TestCheckoutReplaysSameOrderForSameKey(t *testing.T) {
	server, client := testSetup(t)
	ctx := context.Background()

	_, err := client.AddToCart(ctx, "tok", api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 1000})
	require.NoError(t, err)

	req := api.CheckoutRequest{
		CartID:            server.CartSnapshot().ID,
		ShippingAddressID: "addr-1",
		ShippingMethodID:  "method-500",
		PaymentMethodID:   "pm-1",
		IdempotencyKey:    "key-1",
	}
	first, err := client.Checkout(ctx, "tok", req)
	require.NoError(t, err)

	// The cart is already consumed; a replay with the same key must
	// return the original order instead of failing.
	second, err := client.Checkout(ctx, "tok", req)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, server.OrderCount())
}

func TestCheckoutRejectsMismatchedTotal(t *testing.T) {
	_, client := testSetup(t)
	ctx := context.Background()

	_, err := client.AddToCart(ctx, "tok", api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 1000})
	require.NoError(t, err)

	_, err = client.Checkout(ctx, "tok", api.CheckoutRequest{
		ShippingAddressID:       "addr-1",
		ShippingMethodID:        "method-0",
		PaymentMethodID:         "pm-1",
		IdempotencyKey:          "key-2",
		FrontendCalculatedTotal: 1, // server computes 1080
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodePriceMismatch, pkgerrors.CodeOf(err))
}

func TestCheckoutAcceptsMatchingTotal(t *testing.T) {
	_, client := testSetup(t)
	ctx := context.Background()

	_, err := client.AddToCart(ctx, "tok", api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 1000})
	require.NoError(t, err)

	// subtotal 1000 + shipping 500 + 8% tax on 1500 = 1620
	order, err := client.Checkout(ctx, "tok", api.CheckoutRequest{
		ShippingAddressID:       "addr-1",
		ShippingMethodID:        "method-500",
		PaymentMethodID:         "pm-1",
		IdempotencyKey:          "key-3",
		FrontendCalculatedTotal: 1620,
	})
	require.NoError(t, err)
	require.NotEmpty(t, order.ID)
}

func TestInjectedFaultIsConsumedOnce(t *testing.T) {
	server, client := testSetup(t)
	ctx := context.Background()

	_, err := client.AddToCart(ctx, "tok", api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 1000})
	require.NoError(t, err)

	server.InjectFault("checkout.submit", Fault{
		Status:  http.StatusServiceUnavailable,
		Message: "store is temporarily unavailable",
	})

	req := api.CheckoutRequest{
		ShippingAddressID: "addr-1",
		ShippingMethodID:  "method-500",
		PaymentMethodID:   "pm-1",
		IdempotencyKey:    "key-4",
	}
	_, err = client.Checkout(ctx, "tok", req)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.True(t, typed.Retryable())

	// Retry with the same key succeeds once the fault is spent.
	order, err := client.Checkout(ctx, "tok", req)
	require.NoError(t, err)
	require.NotEmpty(t, order.ID)
}

func TestValidateEndpointAdvises(t *testing.T) {
	_, client := testSetup(t)
	ctx := context.Background()

	resp, err := client.ValidateCheckout(ctx, "tok", api.ValidateCheckoutRequest{
		CartID:            "cart-1",
		ShippingAddressID: "addr-1",
		ShippingMethodID:  "method-1",
	})
	require.NoError(t, err)
	require.True(t, resp.CanProceed)

	resp, err = client.ValidateCheckout(ctx, "tok", api.ValidateCheckoutRequest{CartID: "cart-1"})
	require.NoError(t, err)
	require.False(t, resp.CanProceed)
	require.NotEmpty(t, resp.Reason)
}

func TestPaymentIntentReturnsSecret(t *testing.T) {
	_, client := testSetup(t)
	intent, err := client.CreatePaymentIntent(context.Background(), "tok", api.PaymentIntentRequest{
		CartID:   "cart-1",
		UserID:   "user-1",
		Amount:   1500,
		Currency: "USD",
	})
	require.NoError(t, err)
	require.NotEmpty(t, intent.ClientSecret)
}
