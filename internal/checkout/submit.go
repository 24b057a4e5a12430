package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
	"github.com/angelmondragon/packfinderz-storefront/pkg/retry"
	"github.com/angelmondragon/packfinderz-storefront/pkg/validators"
)

type submitAPI interface {
	Checkout(ctx context.Context, token string, req api.CheckoutRequest) (*api.Order, error)
}

type cartState interface {
	Cart() *api.Cart
	ResetLocal()
}

// submissionPayload is the pre-flight shape of the checkout request,
// validated before any network traffic.
type submissionPayload struct {
	CartID            string `json:"cart_id" validate:"required"`
	ShippingAddressID string `json:"shipping_address_id" validate:"required"`
	ShippingMethodID  string `json:"shipping_method_id" validate:"required"`
	PaymentMethodID   string `json:"payment_method_id" validate:"required"`
	Total             int    `json:"frontend_calculated_total" validate:"gt=0"`
}

// SubmitterParams wires the submission engine's collaborators.
type SubmitterParams struct {
	API     submitAPI
	Cart    cartState
	Flow    *Flow
	Session *session.Session
	Logger  *logger.Logger
	Metrics *metrics.SubmissionMetrics
	Retry   retry.Config
}

// Submitter turns the review step's "place order" action into exactly
// one logical submission: a single idempotency key generated up front
// and reused verbatim across every retry, so the server can collapse
// duplicates into one order.
type Submitter struct {
	api     submitAPI
	cart    cartState
	flow    *Flow
	sess    *session.Session
	logg    *logger.Logger
	metrics *metrics.SubmissionMetrics
	retry   retry.Config

	newKey func() string
}

func NewSubmitter(params SubmitterParams) (*Submitter, error) {
	if params.API == nil {
		return nil, errors.New("checkout api is required")
	}
	if params.Cart == nil {
		return nil, errors.New("cart store is required")
	}
	if params.Flow == nil {
		return nil, errors.New("checkout flow is required")
	}
	if params.Session == nil {
		return nil, errors.New("session is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Submitter{
		api:     params.API,
		cart:    params.Cart,
		flow:    params.Flow,
		sess:    params.Session,
		logg:    params.Logger,
		metrics: params.Metrics,
		retry:   params.Retry,
		newKey:  uuid.NewString,
	}, nil
}

// Submit places the order. Transient failures are retried with the
// same idempotency key under doubling backoff; terminal failures move
// the flow to the step their category dictates and leave the cart and
// draft untouched. Success clears both.
func (s *Submitter) Submit(ctx context.Context) (*api.Order, error) {
	if !s.sess.Authenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "checkout requires an authenticated session")
	}
	if step := s.flow.Step(); step != StepReview {
		return nil, pkgerrors.New(pkgerrors.CodeUnknown, "checkout must be submitted from the review step").
			WithDetails(map[string]string{"step": step.String()})
	}

	cart := s.cart.Cart()
	if cart == nil || len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeCartEmpty, "cannot check out an empty cart")
	}

	selections := s.flow.Selections()
	totals := s.flow.Totals()
	payload := submissionPayload{
		CartID:            cart.ID,
		ShippingAddressID: selections.ShippingAddressID,
		ShippingMethodID:  selections.ShippingMethodID,
		PaymentMethodID:   selections.PaymentMethodID,
		Total:             totals.Total,
	}
	if err := validators.Struct(payload); err != nil {
		return nil, err
	}

	// One key per logical submission, minted before the first attempt.
	key := s.newKey()
	request := api.CheckoutRequest{
		CartID:                  payload.CartID,
		ShippingAddressID:       payload.ShippingAddressID,
		ShippingMethodID:        payload.ShippingMethodID,
		PaymentMethodID:         payload.PaymentMethodID,
		IdempotencyKey:          key,
		FrontendCalculatedTotal: payload.Total,
	}

	ctx = s.logg.WithIdempotencyKey(s.logg.WithCartID(ctx, cart.ID), key)

	var order *api.Order
	err := retry.Do(ctx, s.retry, s.retryable, func(ctx context.Context, attempt retry.Attempt) error {
		attemptCtx := s.logg.WithField(ctx, "attempt", attempt.Number)
		placed, callErr := s.api.Checkout(attemptCtx, s.sess.Token(), request)
		if callErr != nil {
			s.metrics.IncAttempt("failure")
			s.logg.Warn(s.logg.WithField(attemptCtx, "error", callErr.Error()), "checkout attempt failed")
			return callErr
		}
		s.metrics.IncAttempt("success")
		order = placed
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	// The server-side cart is consumed by the order; drop local state
	// and the draft so a fresh session starts clean.
	s.cart.ResetLocal()
	if resetErr := s.flow.Reset(ctx); resetErr != nil {
		s.logg.Error(ctx, "clearing checkout draft after success failed", resetErr)
	}
	s.metrics.IncOutcome("success")
	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID), "checkout submitted")
	return order, nil
}

func (s *Submitter) retryable(err error) bool {
	return pkgerrors.ClassifyError(err).Retryable
}

func (s *Submitter) fail(ctx context.Context, err error) error {
	classification := pkgerrors.ClassifyError(err)
	s.metrics.IncOutcome(string(classification.Code))

	domainErr := pkgerrors.As(err)
	if domainErr == nil {
		domainErr = pkgerrors.Wrap(classification.Code, err, "checkout submission failed").
			WithRetryable(classification.Retryable)
	}

	if recoveryErr := s.flow.ApplyRecovery(ctx, domainErr.RecoveryAction()); recoveryErr != nil {
		s.logg.Error(ctx, "applying checkout recovery failed", recoveryErr)
	}

	fields := map[string]any{
		"category":  string(classification.Code),
		"retryable": classification.Retryable,
		"recovery":  string(domainErr.RecoveryAction()),
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "checkout submission failed")
	return domainErr
}
