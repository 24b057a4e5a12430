package draft

import (
	"context"
	"sync"
	"time"
)

// Key is the fixed name the in-progress checkout form is stored under.
// The draft is overwritten on every field change and cleared only on
// successful submission.
const Key = "checkout_draft"

// Draft is the persisted shape of an in-progress checkout session.
type Draft struct {
	CurrentStep       int       `json:"current_step"`
	ShippingAddressID string    `json:"shipping_address_id"`
	ShippingMethodID  string    `json:"shipping_method_id"`
	ShippingPrice     int       `json:"shipping_price"`
	PaymentMethodID   string    `json:"payment_method_id"`
	NewCard           bool      `json:"new_card"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Store is the durable persistence port for checkout drafts. Tests
// substitute the in-memory implementation.
type Store interface {
	Save(ctx context.Context, d Draft) error
	Load(ctx context.Context) (*Draft, bool, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps the draft in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	draft *Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Save(ctx context.Context, d Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := d
	m.draft = &saved
	return nil
}

func (m *MemoryStore) Load(ctx context.Context) (*Draft, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		return nil, false, nil
	}
	loaded := *m.draft
	return &loaded, true, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = nil
	return nil
}
