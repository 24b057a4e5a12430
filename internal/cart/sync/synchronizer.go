package sync

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/api"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
)

const defaultInterval = 10 * time.Second

type cartFetcher interface {
	GetCart(ctx context.Context, token, country, region string) (*api.Cart, error)
}

type cartStore interface {
	Reconcile(cart *api.Cart) bool
}

type authSession interface {
	Authenticated() bool
	Token() string
	Country() string
	Region() string
}

// Params wires the synchronizer's collaborators.
type Params struct {
	API      cartFetcher
	Store    cartStore
	Session  authSession
	Logger   *logger.Logger
	Metrics  *metrics.SyncMetrics
	Interval time.Duration
	// OnError is notified of fetch failures; the loop keeps polling.
	OnError func(error)
}

// Synchronizer polls the server cart on a fixed interval and installs
// it into the store when it drifts from the local value.
type Synchronizer struct {
	api      cartFetcher
	store    cartStore
	sess     authSession
	logg     *logger.Logger
	metrics  *metrics.SyncMetrics
	interval time.Duration
	onError  func(error)
}

func NewSynchronizer(params Params) (*Synchronizer, error) {
	if params.API == nil {
		return nil, errors.New("api client is required")
	}
	if params.Store == nil {
		return nil, errors.New("cart store is required")
	}
	if params.Session == nil {
		return nil, errors.New("session is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Synchronizer{
		api:      params.API,
		store:    params.Store,
		sess:     params.Session,
		logg:     params.Logger,
		metrics:  params.Metrics,
		interval: interval,
		onError:  params.OnError,
	}, nil
}

// Run polls until the context is canceled or the session signs out.
// Transient fetch failures are reported and the loop continues; the
// store itself ignores results that arrive after teardown.
func (s *Synchronizer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cart synchronizer stopped")
			return ctx.Err()
		default:
		}

		if !s.sess.Authenticated() {
			s.logg.Info(ctx, "cart synchronizer suspended, session unauthenticated")
			return nil
		}

		s.poll(ctx)

		if err := sleep(ctx, s.interval); err != nil {
			s.logg.Info(ctx, "cart synchronizer stopped")
			return err
		}
	}
}

func (s *Synchronizer) poll(ctx context.Context) {
	started := time.Now()
	cart, err := s.api.GetCart(ctx, s.sess.Token(), s.sess.Country(), s.sess.Region())
	if err != nil {
		s.metrics.IncFailure()
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart sync fetch failed")
		if s.onError != nil {
			s.onError(err)
		}
		return
	}

	if s.store.Reconcile(cart) {
		s.metrics.IncDrift()
		s.logg.Info(s.logg.WithCartID(ctx, cart.ID), "cart drift reconciled")
	}
	s.metrics.ObserveRun(time.Since(started))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
