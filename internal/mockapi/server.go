package mockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// Fault is an injected failure consumed by the next matching request.
type Fault struct {
	Status  int
	Message string
}

// Server is an in-memory stand-in for the remote storefront API, used
// for local development and integration tests. It honors the same
// contract the real backend does: envelope responses, idempotent
// checkout, and server-recomputed totals.
type Server struct {
	logg    *logger.Logger
	taxRate decimal.Decimal

	mu       sync.Mutex
	cart     api.Cart
	stock    map[string]int
	orders   map[string]api.Order
	faults   map[string][]Fault
	nextItem int
}

// NewServer builds the mock backend with an empty cart.
func NewServer(logg *logger.Logger, taxRate decimal.Decimal) *Server {
	return &Server{
		logg:    logg,
		taxRate: taxRate,
		cart: api.Cart{
			ID:       "cart-" + uuid.NewString(),
			Currency: "USD",
		},
		stock:  map[string]int{},
		orders: map[string]api.Order{},
		faults: map[string][]Fault{},
	}
}

// SetStock caps the sellable quantity for a variant. Unset variants
// have unlimited stock.
func (s *Server) SetStock(variantID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[variantID] = quantity
}

// InjectFault queues a failure for the named operation. Each request
// to that operation consumes one queued fault before the real handler
// runs.
func (s *Server) InjectFault(operation string, fault Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[operation] = append(s.faults[operation], fault)
}

// CartSnapshot returns a copy of the current server-side cart.
func (s *Server) CartSnapshot() api.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// OrderCount reports how many distinct orders have been created.
func (s *Server) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, order := range s.orders {
		seen[order.ID] = struct{}{}
	}
	return len(seen)
}

// Handler builds the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.handleGetCart)
			r.Delete("/", s.handleClearCart)
			r.Route("/items", func(r chi.Router) {
				r.Post("/", s.handleAddItem)
				r.Patch("/{itemID}", s.handleUpdateItem)
				r.Delete("/{itemID}", s.handleRemoveItem)
			})
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", s.handleCheckout)
			r.Post("/validate", s.handleValidate)
		})
		r.Post("/payments/intent", s.handlePaymentIntent)
	})

	return r
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	if s.consumeFault(w, "cart.get") {
		return
	}
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	writeSuccess(w, snapshot)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	if s.consumeFault(w, "cart.add") {
		return
	}
	var input api.AddItemInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	if input.VariantID == "" || input.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "variant id and a positive quantity are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := 0
	for _, item := range s.cart.Items {
		if item.VariantID == input.VariantID {
			current += item.Quantity
		}
	}
	if limit, capped := s.stock[input.VariantID]; capped && current+input.Quantity > limit {
		writeError(w, http.StatusBadRequest, "INSUFFICIENT_STOCK", fmt.Sprintf("insufficient stock for variant %s", input.VariantID))
		return
	}

	merged := false
	for i := range s.cart.Items {
		if s.cart.Items[i].VariantID == input.VariantID {
			s.cart.Items[i].Quantity += input.Quantity
			s.cart.Items[i].TotalPrice = s.cart.Items[i].Quantity * s.cart.Items[i].PricePerUnit
			merged = true
			break
		}
	}
	if !merged {
		s.nextItem++
		s.cart.Items = append(s.cart.Items, api.CartItem{
			ID:           fmt.Sprintf("item-%d", s.nextItem),
			VariantID:    input.VariantID,
			Quantity:     input.Quantity,
			PricePerUnit: input.PricePerUnit,
			TotalPrice:   input.Quantity * input.PricePerUnit,
		})
	}
	s.recomputeLocked()
	writeSuccess(w, s.snapshotLocked())
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	if s.consumeFault(w, "cart.update") {
		return
	}
	itemID := chi.URLParam(r, "itemID")
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "a positive quantity is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cart.Items {
		if s.cart.Items[i].ID == itemID {
			if limit, capped := s.stock[s.cart.Items[i].VariantID]; capped && payload.Quantity > limit {
				writeError(w, http.StatusBadRequest, "INSUFFICIENT_STOCK", "insufficient stock for requested quantity")
				return
			}
			s.cart.Items[i].Quantity = payload.Quantity
			s.cart.Items[i].TotalPrice = payload.Quantity * s.cart.Items[i].PricePerUnit
			s.recomputeLocked()
			writeSuccess(w, s.snapshotLocked())
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "cart item not found")
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if s.consumeFault(w, "cart.remove") {
		return
	}
	itemID := chi.URLParam(r, "itemID")

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.cart.Items[:0]
	found := false
	for _, item := range s.cart.Items {
		if item.ID == itemID {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "cart item not found")
		return
	}
	s.cart.Items = kept
	s.recomputeLocked()
	writeSuccess(w, s.snapshotLocked())
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if s.consumeFault(w, "cart.clear") {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart.Items = nil
	s.recomputeLocked()
	writeSuccess(w, s.snapshotLocked())
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if s.consumeFault(w, "checkout.validate") {
		return
	}
	var req api.ValidateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	resp := api.ValidateCheckoutResponse{CanProceed: true}
	if req.ShippingAddressID == "" || req.ShippingMethodID == "" {
		resp = api.ValidateCheckoutResponse{CanProceed: false, Reason: "address and shipping method are required"}
	}
	writeSuccess(w, resp)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req api.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION", "idempotency key is required")
		return
	}

	s.mu.Lock()
	// Replay of a completed submission returns the original order.
	if order, seen := s.orders[key]; seen {
		s.mu.Unlock()
		writeSuccess(w, order)
		return
	}
	s.mu.Unlock()

	if s.consumeFault(w, "checkout.submit") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cart.Items) == 0 {
		writeError(w, http.StatusConflict, "CART_CHANGED", "cart has changed since checkout began")
		return
	}
	for _, item := range s.cart.Items {
		if limit, capped := s.stock[item.VariantID]; capped && item.Quantity > limit {
			writeError(w, http.StatusConflict, "INSUFFICIENT_STOCK", fmt.Sprintf("insufficient stock for variant %s", item.VariantID))
			return
		}
	}

	serverTotal := s.serverTotalLocked(req)
	if req.FrontendCalculatedTotal != 0 && req.FrontendCalculatedTotal != serverTotal {
		writeError(w, http.StatusConflict, "PRICE_MISMATCH", "price mismatch between client and server totals")
		return
	}

	order := api.Order{
		ID:     "order-" + uuid.NewString(),
		Status: "pending",
	}
	s.orders[key] = order
	s.cart.Items = nil
	s.recomputeLocked()
	writeSuccess(w, order)
}

func (s *Server) handlePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if s.consumeFault(w, "payments.intent") {
		return
	}
	var req api.PaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION", "amount must be positive")
		return
	}
	writeSuccess(w, api.PaymentIntent{
		ClientSecret: "mock_secret_" + uuid.NewString(),
	})
}

// serverTotalLocked recomputes the authoritative total the way the
// real backend would: goods plus shipping plus flat tax. Shipping
// prices are derived from the method id suffix for predictability in
// tests, e.g. "method-500" ships for 500 cents.
func (s *Server) serverTotalLocked(req api.CheckoutRequest) int {
	shipping := 0
	if idx := strings.LastIndex(req.ShippingMethodID, "-"); idx >= 0 {
		fmt.Sscanf(req.ShippingMethodID[idx+1:], "%d", &shipping)
	}
	taxable := decimal.NewFromInt(int64(s.cart.Subtotal + shipping))
	tax := taxable.Mul(s.taxRate).Round(0)
	return s.cart.Subtotal + shipping + int(tax.IntPart())
}

func (s *Server) consumeFault(w http.ResponseWriter, operation string) bool {
	s.mu.Lock()
	queue := s.faults[operation]
	if len(queue) == 0 {
		s.mu.Unlock()
		return false
	}
	fault := queue[0]
	s.faults[operation] = queue[1:]
	s.mu.Unlock()

	if s.logg != nil {
		ctx := s.logg.WithField(context.Background(), "operation", operation)
		s.logg.Warn(ctx, "mockapi injected fault")
	}
	writeError(w, fault.Status, "INJECTED", fault.Message)
	return true
}

func (s *Server) snapshotLocked() api.Cart {
	snapshot := s.cart
	snapshot.Items = append([]api.CartItem(nil), s.cart.Items...)
	return snapshot
}

func (s *Server) recomputeLocked() {
	totalItems := 0
	subtotal := 0
	for _, item := range s.cart.Items {
		totalItems += item.Quantity
		subtotal += item.TotalPrice
	}
	s.cart.TotalItems = totalItems
	s.cart.Subtotal = subtotal
	tax := decimal.NewFromInt(int64(subtotal)).Mul(s.taxRate).Round(0)
	s.cart.TotalAmount = subtotal + int(tax.IntPart())
}

type successEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successEnvelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
