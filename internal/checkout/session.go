package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/internal/draft"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/payment"
)

// Step is the buyer's position in the checkout wizard.
type Step int

const (
	StepAddress Step = iota + 1
	StepShipping
	StepPayment
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepAddress:
		return "address"
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	default:
		return "unknown"
	}
}

const defaultValidationWait = 500 * time.Millisecond

type checkoutAPI interface {
	ValidateCheckout(ctx context.Context, token string, req api.ValidateCheckoutRequest) (*api.ValidateCheckoutResponse, error)
	CreatePaymentIntent(ctx context.Context, token string, req api.PaymentIntentRequest) (*api.PaymentIntent, error)
}

type cartReader interface {
	Cart() *api.Cart
}

// Selections is a snapshot of everything the buyer has chosen so far.
type Selections struct {
	ShippingAddressID string
	ShippingMethodID  string
	ShippingPrice     int
	PaymentMethodID   string
	NewCard           bool
}

// Advisory is the latest server-side cross-check of the current
// selections. It informs the UI; it never blocks forward navigation.
type Advisory struct {
	Checked    bool
	CanProceed bool
	Reason     string
}

// FlowParams wires the checkout flow's collaborators.
type FlowParams struct {
	API            checkoutAPI
	Cart           cartReader
	Session        *session.Session
	Drafts         draft.Store
	Provider       payment.Provider
	Logger         *logger.Logger
	TaxRate        decimal.Decimal
	ValidationWait time.Duration
}

// Flow is the checkout wizard's state machine. Forward navigation is
// gated on the current step's required selection; backward navigation
// is always allowed. Every field change overwrites the persisted
// draft, so an interrupted session resumes where it left off.
type Flow struct {
	api      checkoutAPI
	cart     cartReader
	sess     *session.Session
	drafts   draft.Store
	provider payment.Provider
	logg     *logger.Logger

	taxRate        decimal.Decimal
	validationWait time.Duration

	mu           sync.Mutex
	step         Step
	selections   Selections
	clientSecret string
	advisory     Advisory
	pending      *time.Timer
	closed       bool
}

func NewFlow(params FlowParams) (*Flow, error) {
	if params.API == nil {
		return nil, errors.New("checkout api is required")
	}
	if params.Cart == nil {
		return nil, errors.New("cart reader is required")
	}
	if params.Session == nil {
		return nil, errors.New("session is required")
	}
	if params.Drafts == nil {
		return nil, errors.New("draft store is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	wait := params.ValidationWait
	if wait <= 0 {
		wait = defaultValidationWait
	}
	return &Flow{
		api:            params.API,
		cart:           params.Cart,
		sess:           params.Session,
		drafts:         params.Drafts,
		provider:       params.Provider,
		logg:           params.Logger,
		taxRate:        params.TaxRate,
		validationWait: wait,
		step:           StepAddress,
	}, nil
}

// Resume restores the flow from a persisted draft, if one exists.
func (f *Flow) Resume(ctx context.Context) error {
	saved, found, err := f.drafts.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	f.mu.Lock()
	f.step = clampStep(Step(saved.CurrentStep))
	f.selections = Selections{
		ShippingAddressID: saved.ShippingAddressID,
		ShippingMethodID:  saved.ShippingMethodID,
		ShippingPrice:     saved.ShippingPrice,
		PaymentMethodID:   saved.PaymentMethodID,
		NewCard:           saved.NewCard,
	}
	step := f.step
	f.mu.Unlock()

	f.logg.Info(f.logg.WithCheckoutStep(ctx, step.String()), "checkout draft resumed")
	return nil
}

// Step returns the buyer's current position.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Selections returns a snapshot of the buyer's choices.
func (f *Flow) Selections() Selections {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selections
}

// Advisory returns the latest debounced validation result.
func (f *Flow) Advisory() Advisory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advisory
}

// Next advances one step. Each step gates on its own required
// selection; the review step is terminal.
func (f *Flow) Next(ctx context.Context) error {
	f.mu.Lock()
	switch f.step {
	case StepAddress:
		if f.selections.ShippingAddressID == "" {
			f.mu.Unlock()
			return pkgerrors.New(pkgerrors.CodeUnknown, "select a shipping address to continue").
				WithDetails(map[string]string{"step": StepAddress.String()})
		}
	case StepShipping:
		if f.selections.ShippingMethodID == "" {
			f.mu.Unlock()
			return pkgerrors.New(pkgerrors.CodeUnknown, "select a shipping method to continue").
				WithDetails(map[string]string{"step": StepShipping.String()})
		}
	case StepPayment:
		if f.selections.PaymentMethodID == "" {
			f.mu.Unlock()
			return pkgerrors.New(pkgerrors.CodeUnknown, "select a payment method to continue").
				WithDetails(map[string]string{"step": StepPayment.String()})
		}
	case StepReview:
		f.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeUnknown, "already at the review step")
	}
	f.step++
	f.mu.Unlock()

	return f.persist(ctx)
}

// Previous steps back. Backward navigation is never gated.
func (f *Flow) Previous(ctx context.Context) error {
	f.mu.Lock()
	if f.step > StepAddress {
		f.step--
	}
	f.mu.Unlock()

	return f.persist(ctx)
}

// SetShippingAddress records the chosen address and schedules the
// advisory cross-check.
func (f *Flow) SetShippingAddress(ctx context.Context, addressID string) error {
	f.mu.Lock()
	f.selections.ShippingAddressID = strings.TrimSpace(addressID)
	f.mu.Unlock()

	if err := f.persist(ctx); err != nil {
		return err
	}
	f.scheduleValidation(ctx)
	return nil
}

// SetShippingMethod records the chosen method and its price, and
// schedules the advisory cross-check.
func (f *Flow) SetShippingMethod(ctx context.Context, methodID string, price int) error {
	f.mu.Lock()
	f.selections.ShippingMethodID = strings.TrimSpace(methodID)
	f.selections.ShippingPrice = price
	f.mu.Unlock()

	if err := f.persist(ctx); err != nil {
		return err
	}
	f.scheduleValidation(ctx)
	return nil
}

// SetPaymentMethod records an already-stored payment method.
func (f *Flow) SetPaymentMethod(ctx context.Context, methodID string) error {
	f.mu.Lock()
	f.selections.PaymentMethodID = strings.TrimSpace(methodID)
	f.selections.NewCard = false
	f.mu.Unlock()

	return f.persist(ctx)
}

// AddNewCard confirms a freshly tokenized card through the payment
// provider and selects the resulting stored method. The setup
// handshake is opened once per flow and its secret reused; the
// confirmation itself is single-shot and never retried.
func (f *Flow) AddNewCard(ctx context.Context, userID string, inst payment.Instrument) error {
	if f.provider == nil {
		return pkgerrors.New(pkgerrors.CodePaymentFailed, "no payment provider configured")
	}

	secret, err := f.ensurePaymentIntent(ctx, userID)
	if err != nil {
		return err
	}

	ref, err := f.provider.ConfirmSetup(ctx, secret, inst)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.selections.PaymentMethodID = string(ref)
	f.selections.NewCard = true
	f.mu.Unlock()

	return f.persist(ctx)
}

// Totals computes the display breakdown from the live cart and the
// selected shipping method.
func (f *Flow) Totals() Totals {
	subtotal := 0
	if cart := f.cart.Cart(); cart != nil {
		subtotal = cart.Subtotal
	}
	f.mu.Lock()
	shipping := f.selections.ShippingPrice
	f.mu.Unlock()
	return ComputeTotals(subtotal, shipping, f.taxRate)
}

// ApplyRecovery moves the flow to the step the failure category
// dictates. Categories with no redirect leave the buyer in place.
func (f *Flow) ApplyRecovery(ctx context.Context, recovery pkgerrors.Recovery) error {
	f.mu.Lock()
	switch recovery {
	case pkgerrors.RecoveryRestartAtAddress, pkgerrors.RecoveryReviewCart:
		f.step = StepAddress
	case pkgerrors.RecoveryReselectPayment:
		f.step = StepPayment
		f.selections.PaymentMethodID = ""
		f.selections.NewCard = false
	case pkgerrors.RecoveryRecomputeTotals, pkgerrors.RecoveryRetryLater, pkgerrors.RecoveryNone:
		// Totals are recomputed from the reconciled cart on the next
		// render; the buyer stays on their current step.
	}
	step := f.step
	f.mu.Unlock()

	f.logg.Info(f.logg.WithCheckoutStep(ctx, step.String()), "checkout recovery applied")
	return f.persist(ctx)
}

// Reset clears the persisted draft and returns the flow to the first
// step, called after a successful submission.
func (f *Flow) Reset(ctx context.Context) error {
	f.mu.Lock()
	f.step = StepAddress
	f.selections = Selections{}
	f.clientSecret = ""
	f.advisory = Advisory{}
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
	f.mu.Unlock()

	return f.drafts.Clear(ctx)
}

// Close stops any pending validation timer.
func (f *Flow) Close() {
	f.mu.Lock()
	f.closed = true
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
	f.mu.Unlock()
}

func (f *Flow) ensurePaymentIntent(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	if f.clientSecret != "" {
		secret := f.clientSecret
		f.mu.Unlock()
		return secret, nil
	}
	f.mu.Unlock()

	cart := f.cart.Cart()
	if cart == nil || len(cart.Items) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeCartEmpty, "cannot set up payment for an empty cart")
	}

	totals := f.Totals()
	intent, err := f.api.CreatePaymentIntent(ctx, f.sess.Token(), api.PaymentIntentRequest{
		CartID:   cart.ID,
		UserID:   userID,
		Amount:   totals.Total,
		Currency: cart.Currency,
	})
	if err != nil {
		return "", err
	}
	if intent.ClientSecret == "" {
		return "", pkgerrors.New(pkgerrors.CodePaymentFailed, "payment intent response missing client secret")
	}

	f.mu.Lock()
	f.clientSecret = intent.ClientSecret
	secret := f.clientSecret
	f.mu.Unlock()
	return secret, nil
}

// scheduleValidation debounces the advisory server cross-check so a
// burst of field edits produces a single request.
func (f *Flow) scheduleValidation(ctx context.Context) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.pending != nil {
		f.pending.Stop()
	}
	f.pending = time.AfterFunc(f.validationWait, func() {
		f.runValidation(ctx)
	})
	f.mu.Unlock()
}

func (f *Flow) runValidation(ctx context.Context) {
	cart := f.cart.Cart()
	f.mu.Lock()
	sel := f.selections
	closed := f.closed
	f.mu.Unlock()
	if closed || cart == nil || sel.ShippingAddressID == "" || sel.ShippingMethodID == "" {
		return
	}

	resp, err := f.api.ValidateCheckout(ctx, f.sess.Token(), api.ValidateCheckoutRequest{
		CartID:            cart.ID,
		ShippingAddressID: sel.ShippingAddressID,
		ShippingMethodID:  sel.ShippingMethodID,
	})
	if err != nil {
		// Advisory only: a failed cross-check never blocks the buyer.
		f.logg.Warn(f.logg.WithField(ctx, "error", err.Error()), "checkout validation failed")
		return
	}

	f.mu.Lock()
	f.advisory = Advisory{Checked: true, CanProceed: resp.CanProceed, Reason: resp.Reason}
	f.mu.Unlock()
}

func (f *Flow) persist(ctx context.Context) error {
	f.mu.Lock()
	d := draft.Draft{
		CurrentStep:       int(f.step),
		ShippingAddressID: f.selections.ShippingAddressID,
		ShippingMethodID:  f.selections.ShippingMethodID,
		ShippingPrice:     f.selections.ShippingPrice,
		PaymentMethodID:   f.selections.PaymentMethodID,
		NewCard:           f.selections.NewCard,
		UpdatedAt:         time.Now().UTC(),
	}
	f.mu.Unlock()

	return f.drafts.Save(ctx, d)
}

func clampStep(s Step) Step {
	if s < StepAddress {
		return StepAddress
	}
	if s > StepReview {
		return StepReview
	}
	return s
}
