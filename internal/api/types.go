package api

import "encoding/json"

// Cart is the server-authoritative cart snapshot. All money fields are
// integer cents; the client never computes authoritative totals.
type Cart struct {
	ID          string     `json:"id"`
	Items       []CartItem `json:"items"`
	TotalItems  int        `json:"total_items"`
	Currency    string     `json:"currency"`
	Subtotal    int        `json:"subtotal"`
	TotalAmount int        `json:"total_amount"`
}

// CartItem is one line of the cart. Items added optimistically carry a
// temporary id until the server responds with the real one.
type CartItem struct {
	ID           string `json:"id"`
	VariantID    string `json:"variant_id"`
	Quantity     int    `json:"quantity"`
	PricePerUnit int    `json:"price_per_unit"`
	TotalPrice   int    `json:"total_price"`
}

// AddItemInput is the payload for adding a variant to the cart.
type AddItemInput struct {
	VariantID    string `json:"variant_id"`
	Quantity     int    `json:"quantity"`
	PricePerUnit int    `json:"price_per_unit"`
}

// ValidateCheckoutRequest asks the server to cross-check the selected
// address and shipping method. The result is advisory.
type ValidateCheckoutRequest struct {
	CartID            string `json:"cart_id"`
	ShippingAddressID string `json:"shipping_address_id"`
	ShippingMethodID  string `json:"shipping_method_id"`
}

type ValidateCheckoutResponse struct {
	CanProceed bool   `json:"can_proceed"`
	Reason     string `json:"reason,omitempty"`
}

// CheckoutRequest is the final submission payload. The idempotency key
// is identical across retries of the same logical submission.
type CheckoutRequest struct {
	CartID                  string `json:"cart_id"`
	ShippingAddressID       string `json:"shipping_address_id"`
	ShippingMethodID        string `json:"shipping_method_id"`
	PaymentMethodID         string `json:"payment_method_id"`
	IdempotencyKey          string `json:"idempotency_key"`
	FrontendCalculatedTotal int    `json:"frontend_calculated_total"`
}

// Order is the created order returned by a successful checkout.
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

// PaymentIntentRequest asks the server to open a payment-setup
// handshake with the payment provider.
type PaymentIntentRequest struct {
	CartID   string `json:"cart_id"`
	UserID   string `json:"user_id"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
}

type PaymentIntent struct {
	ClientSecret string `json:"client_secret"`
}

type successEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type errorEnvelope struct {
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
