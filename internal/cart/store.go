package cart

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"go.uber.org/multierr"
)

type apiClient interface {
	GetCart(ctx context.Context, token, country, region string) (*api.Cart, error)
	AddToCart(ctx context.Context, token string, item api.AddItemInput) (*api.Cart, error)
	RemoveFromCart(ctx context.Context, token, itemID string) (*api.Cart, error)
	UpdateCartItem(ctx context.Context, token, itemID string, quantity int) (*api.Cart, error)
	ClearCart(ctx context.Context, token string) (*api.Cart, error)
}

// Store holds the last-known-good cart and applies each mutation in
// two phases: an optimistic local update published immediately, then
// reconciliation against the server response. On failure the store is
// refetched from the server; the optimistic guess is never undone by
// local computation.
type Store struct {
	api  apiClient
	sess *session.Session
	logg *logger.Logger

	mu      sync.Mutex
	cart    *api.Cart
	loading bool
	closed  bool
	subs    []func(*api.Cart)
}

// NewStore builds the authoritative cart store.
func NewStore(client apiClient, sess *session.Session, logg *logger.Logger) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("api client required")
	}
	if sess == nil {
		return nil, fmt.Errorf("session required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Store{
		api:  client,
		sess: sess,
		logg: logg,
	}, nil
}

// Cart returns a snapshot of the current cart, or nil before first load.
func (s *Store) Cart() *api.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cart == nil {
		return nil
	}
	return cloneCart(s.cart)
}

// Loading reports whether a mutation or load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers a listener invoked with a snapshot on every
// published cart value.
func (s *Store) Subscribe(fn func(*api.Cart)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Load fetches the authoritative cart and installs it.
func (s *Store) Load(ctx context.Context) (*api.Cart, error) {
	if !s.sess.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "cart load requires an authenticated session")
	}
	s.setLoading(true)
	defer s.setLoading(false)

	cart, err := s.api.GetCart(ctx, s.sess.Token(), s.sess.Country(), s.sess.Region())
	if err != nil {
		return nil, err
	}
	s.replace(cart)
	return cloneCart(cart), nil
}

// AddItem optimistically adds a variant, then reconciles.
func (s *Store) AddItem(ctx context.Context, input api.AddItemInput) (*api.Cart, error) {
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	return s.mutate(ctx, addItem{input: input, now: time.Now()}, func(ctx context.Context, token string) (*api.Cart, error) {
		return s.api.AddToCart(ctx, token, input)
	})
}

// RemoveItem optimistically filters the item out, then reconciles.
func (s *Store) RemoveItem(ctx context.Context, itemID string) (*api.Cart, error) {
	return s.mutate(ctx, removeItem{itemID: itemID}, func(ctx context.Context, token string) (*api.Cart, error) {
		return s.api.RemoveFromCart(ctx, token, itemID)
	})
}

// UpdateQuantity optimistically rewrites the item's quantity, then
// reconciles. Non-positive quantities are rejected before any local
// mutation.
func (s *Store) UpdateQuantity(ctx context.Context, itemID string, quantity int) (*api.Cart, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	return s.mutate(ctx, updateQuantity{itemID: itemID, quantity: quantity}, func(ctx context.Context, token string) (*api.Cart, error) {
		return s.api.UpdateCartItem(ctx, token, itemID, quantity)
	})
}

// ClearCart optimistically empties the cart, then reconciles. Clearing
// an already-empty cart is a precondition failure.
func (s *Store) ClearCart(ctx context.Context) (*api.Cart, error) {
	s.mu.Lock()
	empty := s.cart == nil || len(s.cart.Items) == 0
	s.mu.Unlock()
	if empty {
		return nil, pkgerrors.New(pkgerrors.CodeCartEmpty, "cart is already empty")
	}
	return s.mutate(ctx, clearItems{}, func(ctx context.Context, token string) (*api.Cart, error) {
		return s.api.ClearCart(ctx, token)
	})
}

// Reconcile installs a freshly fetched cart if it differs from the
// stored value. It returns true when the store was replaced. Closed
// stores ignore the update, so a poll that resolves after teardown has
// no effect.
func (s *Store) Reconcile(cart *api.Cart) bool {
	s.mu.Lock()
	if s.closed || reflect.DeepEqual(s.cart, cart) {
		s.mu.Unlock()
		return false
	}
	s.cart = cloneCart(cart)
	snapshot := cloneCart(s.cart)
	subs := append([]func(*api.Cart){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
	return true
}

// ResetLocal drops the local cart state without a network call, used
// after a successful checkout has consumed the server-side cart.
func (s *Store) ResetLocal() {
	s.mu.Lock()
	s.cart = nil
	s.mu.Unlock()
}

// Close tears the store down; later reconciliations are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Store) mutate(ctx context.Context, m mutation, call func(ctx context.Context, token string) (*api.Cart, error)) (*api.Cart, error) {
	if !s.sess.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "cart mutation requires an authenticated session")
	}
	token := s.sess.Token()

	s.setLoading(true)
	defer s.setLoading(false)

	// Optimistic phase: publish the locally computed value right away.
	s.mu.Lock()
	optimistic := m.apply(s.cart)
	s.cart = optimistic
	snapshot := cloneCart(optimistic)
	subs := append([]func(*api.Cart){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snapshot)
	}

	// Reconciliation phase: the server response wins wholesale.
	serverCart, err := call(ctx, token)
	if err == nil {
		s.replace(serverCart)
		return cloneCart(serverCart), nil
	}

	// Truth comes from the server, never from undoing the local diff.
	fresh, fetchErr := s.api.GetCart(ctx, token, s.sess.Country(), s.sess.Region())
	if fetchErr != nil {
		s.logg.Error(ctx, "cart reconciliation refetch failed", fetchErr)
		return nil, multierr.Append(err, fetchErr)
	}
	s.replace(fresh)
	return nil, err
}

func (s *Store) replace(cart *api.Cart) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cart = cloneCart(cart)
	snapshot := cloneCart(s.cart)
	subs := append([]func(*api.Cart){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}
