package cart

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

type stubAPI struct {
	getCart    func(ctx context.Context, token, country, region string) (*api.Cart, error)
	addToCart  func(ctx context.Context, token string, item api.AddItemInput) (*api.Cart, error)
	removeItem func(ctx context.Context, token, itemID string) (*api.Cart, error)
	updateItem func(ctx context.Context, token, itemID string, quantity int) (*api.Cart, error)
	clearCart  func(ctx context.Context, token string) (*api.Cart, error)
}

func (s *stubAPI) GetCart(ctx context.Context, token, country, region string) (*api.Cart, error) {
	return s.getCart(ctx, token, country, region)
}

func (s *stubAPI) AddToCart(ctx context.Context, token string, item api.AddItemInput) (*api.Cart, error) {
	return s.addToCart(ctx, token, item)
}

func (s *stubAPI) RemoveFromCart(ctx context.Context, token, itemID string) (*api.Cart, error) {
	return s.removeItem(ctx, token, itemID)
}

func (s *stubAPI) UpdateCartItem(ctx context.Context, token, itemID string, quantity int) (*api.Cart, error) {
	return s.updateItem(ctx, token, itemID, quantity)
}

func (s *stubAPI) ClearCart(ctx context.Context, token string) (*api.Cart, error) {
	return s.clearCart(ctx, token)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testStore(t *testing.T, client apiClient) *Store {
	t.Helper()
	store, err := NewStore(client, session.New("token", "US", "CA"), testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func serverCart(items ...api.CartItem) *api.Cart {
	cart := &api.Cart{ID: "cart-1", Currency: "USD", Items: items}
	for _, item := range items {
		cart.TotalItems += item.Quantity
		cart.Subtotal += item.TotalPrice
	}
	cart.TotalAmount = cart.Subtotal
	return cart
}

func TestAddItemPublishesOptimisticallyThenReplaces(t *testing.T) {
	server := serverCart(api.CartItem{ID: "item-1", VariantID: "v1", Quantity: 1, PricePerUnit: 100, TotalPrice: 100})
	client := &stubAPI{
		addToCart: func(ctx context.Context, token string, item api.AddItemInput) (*api.Cart, error) {
			return server, nil
		},
	}
	store := testStore(t, client)

	var published []*api.Cart
	store.Subscribe(func(cart *api.Cart) {
		published = append(published, cart)
	})

	result, err := store.AddItem(context.Background(), api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 100})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(published) != 2 {
		t.Fatalf("expected optimistic and reconciled publishes, got %d", len(published))
	}

	optimistic := published[0]
	if len(optimistic.Items) != 1 || !strings.HasPrefix(optimistic.Items[0].ID, "temp-") {
		t.Fatalf("optimistic publish should carry a temp id, got %+v", optimistic.Items)
	}

	if result.Items[0].ID != "item-1" {
		t.Fatalf("server id should replace the temp id, got %q", result.Items[0].ID)
	}
	if hasTempID(store.Cart()) {
		t.Fatal("temp ids must never survive reconciliation")
	}
}

func TestAddItemMergesExistingVariantLocally(t *testing.T) {
	existing := serverCart(api.CartItem{ID: "item-1", VariantID: "v1", Quantity: 2, PricePerUnit: 100, TotalPrice: 200})
	var optimistic *api.Cart
	client := &stubAPI{
		addToCart: func(ctx context.Context, token string, item api.AddItemInput) (*api.Cart, error) {
			return serverCart(api.CartItem{ID: "item-1", VariantID: "v1", Quantity: 3, PricePerUnit: 100, TotalPrice: 300}), nil
		},
	}
	store := testStore(t, client)
	store.Reconcile(existing)
	store.Subscribe(func(cart *api.Cart) {
		if optimistic == nil {
			optimistic = cart
		}
	})

	if _, err := store.AddItem(context.Background(), api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 100}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if len(optimistic.Items) != 1 {
		t.Fatalf("same variant should merge into one line, got %d", len(optimistic.Items))
	}
	if optimistic.Items[0].Quantity != 3 {
		t.Fatalf("expected optimistic quantity 3, got %d", optimistic.Items[0].Quantity)
	}
	if optimistic.TotalItems != 3 || optimistic.Subtotal != 300 {
		t.Fatalf("optimistic aggregates wrong: items=%d subtotal=%d", optimistic.TotalItems, optimistic.Subtotal)
	}
}

func TestMutationFailureRefetchesTruth(t *testing.T) {
	truth := serverCart(api.CartItem{ID: "item-9", VariantID: "v9", Quantity: 5, PricePerUnit: 50, TotalPrice: 250})
	refetched := false
	client := &stubAPI{
		addToCart: func(ctx context.Context, token string, item api.AddItemInput) (*api.Cart, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")
		},
		getCart: func(ctx context.Context, token, country, region string) (*api.Cart, error) {
			refetched = true
			return truth, nil
		},
	}
	store := testStore(t, client)

	_, err := store.AddItem(context.Background(), api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 100})
	if err == nil {
		t.Fatal("expected mutation error")
	}
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInsufficientStock {
		t.Fatalf("original error must be surfaced, got %v", err)
	}
	if !refetched {
		t.Fatal("failure must trigger a refetch of server truth")
	}

	got := store.Cart()
	if got == nil || len(got.Items) != 1 || got.Items[0].ID != "item-9" {
		t.Fatalf("store should hold refetched truth, got %+v", got)
	}
}

func TestMutationFailureWithFailedRefetchCombinesErrors(t *testing.T) {
	mutationErr := pkgerrors.New(pkgerrors.CodeServiceBusy, "high demand")
	fetchErr := errors.New("network down")
	client := &stubAPI{
		addToCart: func(ctx context.Context, token string, item api.AddItemInput) (*api.Cart, error) {
			return nil, mutationErr
		},
		getCart: func(ctx context.Context, token, country, region string) (*api.Cart, error) {
			return nil, fetchErr
		},
	}
	store := testStore(t, client)

	_, err := store.AddItem(context.Background(), api.AddItemInput{VariantID: "v1", Quantity: 1, PricePerUnit: 100})
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !errors.Is(err, mutationErr) || !errors.Is(err, fetchErr) {
		t.Fatalf("both failures should be reported, got %v", err)
	}
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	called := false
	client := &stubAPI{
		addToCart: func(ctx context.Context, token string, item api.AddItemInput) (*api.Cart, error) {
			called = true
			return nil, nil
		},
	}
	store := testStore(t, client)

	for _, quantity := range []int{0, -1} {
		_, err := store.AddItem(context.Background(), api.AddItemInput{VariantID: "v1", Quantity: quantity})
		if pkgerrors.CodeOf(err) != pkgerrors.CodeInvalidQuantity {
			t.Fatalf("quantity %d: expected %s, got %v", quantity, pkgerrors.CodeInvalidQuantity, err)
		}
	}
	if called {
		t.Fatal("invalid quantity must be rejected before any network call")
	}
}

func TestUpdateQuantityRejectsNonPositiveQuantity(t *testing.T) {
	store := testStore(t, &stubAPI{})
	_, err := store.UpdateQuantity(context.Background(), "item-1", 0)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInvalidQuantity {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeInvalidQuantity, err)
	}
}

func TestClearCartRejectsEmptyCart(t *testing.T) {
	store := testStore(t, &stubAPI{})
	_, err := store.ClearCart(context.Background())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeCartEmpty {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeCartEmpty, err)
	}
}

func TestMutationRequiresAuthenticatedSession(t *testing.T) {
	store, err := NewStore(&stubAPI{}, session.New("", "US", ""), testLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.AddItem(context.Background(), api.AddItemInput{VariantID: "v1", Quantity: 1})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeUnauthenticated {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeUnauthenticated, err)
	}
}

func TestReconcileSkipsEqualCarts(t *testing.T) {
	store := testStore(t, &stubAPI{})
	cart := serverCart(api.CartItem{ID: "item-1", VariantID: "v1", Quantity: 1, PricePerUnit: 100, TotalPrice: 100})

	if !store.Reconcile(cart) {
		t.Fatal("first reconcile should install the cart")
	}
	if store.Reconcile(cart) {
		t.Fatal("identical cart must not be reinstalled")
	}
}

func TestReconcileIgnoredAfterClose(t *testing.T) {
	store := testStore(t, &stubAPI{})
	store.Close()

	published := false
	store.Subscribe(func(*api.Cart) { published = true })
	if store.Reconcile(serverCart()) {
		t.Fatal("closed store must ignore reconciliation")
	}
	if published {
		t.Fatal("closed store must not publish")
	}
	if store.Cart() != nil {
		t.Fatal("closed store must not retain late results")
	}
}

func TestResetLocalDropsCartWithoutNetwork(t *testing.T) {
	store := testStore(t, &stubAPI{})
	store.Reconcile(serverCart(api.CartItem{ID: "item-1", VariantID: "v1", Quantity: 1, PricePerUnit: 100, TotalPrice: 100}))
	store.ResetLocal()
	if store.Cart() != nil {
		t.Fatal("ResetLocal should drop the cart snapshot")
	}
}

func TestRemoveItemOptimisticallyFilters(t *testing.T) {
	initial := serverCart(
		api.CartItem{ID: "item-1", VariantID: "v1", Quantity: 1, PricePerUnit: 100, TotalPrice: 100},
		api.CartItem{ID: "item-2", VariantID: "v2", Quantity: 2, PricePerUnit: 50, TotalPrice: 100},
	)
	var optimistic *api.Cart
	client := &stubAPI{
		removeItem: func(ctx context.Context, token, itemID string) (*api.Cart, error) {
			return serverCart(api.CartItem{ID: "item-2", VariantID: "v2", Quantity: 2, PricePerUnit: 50, TotalPrice: 100}), nil
		},
	}
	store := testStore(t, client)
	store.Reconcile(initial)
	store.Subscribe(func(cart *api.Cart) {
		if optimistic == nil {
			optimistic = cart
		}
	})

	if _, err := store.RemoveItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(optimistic.Items) != 1 || optimistic.Items[0].ID != "item-2" {
		t.Fatalf("optimistic removal wrong: %+v", optimistic.Items)
	}
	if optimistic.TotalItems != 2 || optimistic.Subtotal != 100 {
		t.Fatalf("optimistic aggregates wrong: items=%d subtotal=%d", optimistic.TotalItems, optimistic.Subtotal)
	}
}
