package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/packfinderz-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
)

// Client talks to the remote storefront API. Every call takes the auth
// token explicitly; the client holds no session state of its own.
type Client struct {
	baseURL string
	http    *http.Client
	logg    *logger.Logger
}

// NewClient validates the API config and builds the HTTP client.
func NewClient(cfg config.APIConfig, logg *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parsing api base url: %w", err)
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logg:    logg,
	}, nil
}

// GetCart fetches the authoritative cart for the session's locale.
func (c *Client) GetCart(ctx context.Context, token, country, region string) (*Cart, error) {
	query := url.Values{}
	if country != "" {
		query.Set("country", country)
	}
	if region != "" {
		query.Set("region", region)
	}
	path := "/v1/cart"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var cart Cart
	if err := c.do(ctx, http.MethodGet, path, token, "", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// AddToCart adds a variant and returns the updated cart.
func (c *Client) AddToCart(ctx context.Context, token string, item AddItemInput) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodPost, "/v1/cart/items", token, "", item, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// RemoveFromCart deletes an item and returns the updated cart.
func (c *Client) RemoveFromCart(ctx context.Context, token, itemID string) (*Cart, error) {
	var cart Cart
	path := "/v1/cart/items/" + url.PathEscape(itemID)
	if err := c.do(ctx, http.MethodDelete, path, token, "", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// UpdateCartItem changes an item's quantity and returns the updated cart.
func (c *Client) UpdateCartItem(ctx context.Context, token, itemID string, quantity int) (*Cart, error) {
	var cart Cart
	path := "/v1/cart/items/" + url.PathEscape(itemID)
	payload := map[string]int{"quantity": quantity}
	if err := c.do(ctx, http.MethodPatch, path, token, "", payload, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ClearCart empties the cart and returns the resulting empty cart.
func (c *Client) ClearCart(ctx context.Context, token string) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodDelete, "/v1/cart", token, "", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

// ValidateCheckout runs the advisory server-side cross-check.
func (c *Client) ValidateCheckout(ctx context.Context, token string, req ValidateCheckoutRequest) (*ValidateCheckoutResponse, error) {
	var resp ValidateCheckoutResponse
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/validate", token, "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Checkout submits the order. The server collapses duplicate
// submissions carrying the same idempotency key.
func (c *Client) Checkout(ctx context.Context, token string, req CheckoutRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/v1/checkout", token, req.IdempotencyKey, req, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnknown, "checkout response missing order id")
	}
	return &order, nil
}

// CreatePaymentIntent opens a payment-setup handshake and returns the
// provider client secret.
func (c *Client) CreatePaymentIntent(ctx context.Context, token string, req PaymentIntentRequest) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payments/intent", token, "", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) do(ctx context.Context, method, path, token, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		classification := pkgerrors.Classify(0, err.Error())
		return pkgerrors.Wrap(classification.Code, err, fmt.Sprintf("%s %s", method, path)).
			WithRetryable(classification.Retryable)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(ctx, method, path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	var envelope successEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "decode response envelope")
	}
	if len(envelope.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeUnknown, "response envelope missing data")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnknown, err, "decode response data")
	}
	return nil
}

func (c *Client) errorFromResponse(ctx context.Context, method, path string, status int, raw []byte) error {
	message := http.StatusText(status)
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	classification := pkgerrors.Classify(status, message)
	fields := map[string]any{
		"method":    method,
		"path":      path,
		"status":    status,
		"category":  string(classification.Code),
		"retryable": classification.Retryable,
	}
	c.logg.Warn(c.logg.WithFields(ctx, fields), "storefront api call failed")

	return pkgerrors.New(classification.Code, message).
		WithRetryable(classification.Retryable).
		WithDetails(map[string]any{"status": status})
}
