package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
)

// tempIDPrefix marks items added optimistically before the server has
// assigned a real id. No permanent state may reference a temp id: the
// whole cart is replaced by the server response on reconciliation.
const tempIDPrefix = "temp-"

// mutation is one optimistic command: a pure function from the current
// cart value to the locally-updated one. Each mutation type is
// independently testable.
type mutation interface {
	apply(current *api.Cart) *api.Cart
}

type addItem struct {
	input api.AddItemInput
	now   time.Time
}

func (m addItem) apply(current *api.Cart) *api.Cart {
	next := cloneCart(current)
	for i := range next.Items {
		if next.Items[i].VariantID == m.input.VariantID {
			next.Items[i].Quantity += m.input.Quantity
			next.Items[i].TotalPrice = next.Items[i].Quantity * next.Items[i].PricePerUnit
			recompute(next)
			return next
		}
	}
	next.Items = append(next.Items, api.CartItem{
		ID:           newTempID(m.now),
		VariantID:    m.input.VariantID,
		Quantity:     m.input.Quantity,
		PricePerUnit: m.input.PricePerUnit,
		TotalPrice:   m.input.Quantity * m.input.PricePerUnit,
	})
	recompute(next)
	return next
}

type removeItem struct {
	itemID string
}

func (m removeItem) apply(current *api.Cart) *api.Cart {
	next := cloneCart(current)
	filtered := next.Items[:0]
	for _, item := range next.Items {
		if item.ID != m.itemID {
			filtered = append(filtered, item)
		}
	}
	next.Items = filtered
	recompute(next)
	return next
}

type updateQuantity struct {
	itemID   string
	quantity int
}

func (m updateQuantity) apply(current *api.Cart) *api.Cart {
	next := cloneCart(current)
	for i := range next.Items {
		if next.Items[i].ID == m.itemID {
			next.Items[i].Quantity = m.quantity
			next.Items[i].TotalPrice = m.quantity * next.Items[i].PricePerUnit
		}
	}
	recompute(next)
	return next
}

type clearItems struct{}

func (clearItems) apply(current *api.Cart) *api.Cart {
	next := cloneCart(current)
	next.Items = nil
	recompute(next)
	return next
}

// recompute refreshes the derived fields after a local mutation.
// TotalAmount stays untouched: it is server-derived and only replaced
// by reconciliation.
func recompute(cart *api.Cart) {
	totalItems := 0
	subtotal := 0
	for _, item := range cart.Items {
		totalItems += item.Quantity
		subtotal += item.TotalPrice
	}
	cart.TotalItems = totalItems
	cart.Subtotal = subtotal
}

func cloneCart(current *api.Cart) *api.Cart {
	if current == nil {
		return &api.Cart{}
	}
	next := *current
	next.Items = make([]api.CartItem, len(current.Items))
	copy(next.Items, current.Items)
	return &next
}

func newTempID(now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	return fmt.Sprintf("%s%d", tempIDPrefix, now.UnixNano())
}

// hasTempID reports whether any item still carries a temporary id.
func hasTempID(cart *api.Cart) bool {
	if cart == nil {
		return false
	}
	for _, item := range cart.Items {
		if strings.HasPrefix(item.ID, tempIDPrefix) {
			return true
		}
	}
	return false
}
