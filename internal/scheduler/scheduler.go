// Package scheduler runs the background jobs the card lifecycle depends on:
// the expiry sweep and the outbox dispatch loop.
package scheduler

import (
	"context"
	"time"

	carddomain "github.com/smallbiznis/perkly/internal/card/domain"
	"github.com/smallbiznis/perkly/internal/config"
	"github.com/smallbiznis/perkly/internal/events"
	"go.uber.org/zap"
)

const (
	defaultExpiryInterval   = time.Minute
	defaultDispatchInterval = 5 * time.Second
)

type Scheduler struct {
	log        *zap.Logger
	cards      carddomain.Service
	dispatcher *events.Dispatcher
	loyalty    *config.LoyaltyConfigHolder

	expiryInterval   time.Duration
	dispatchInterval time.Duration
}

func New(log *zap.Logger, cards carddomain.Service, dispatcher *events.Dispatcher, loyalty *config.LoyaltyConfigHolder) *Scheduler {
	return &Scheduler{
		log:              log.Named("scheduler"),
		cards:            cards,
		dispatcher:       dispatcher,
		loyalty:          loyalty,
		expiryInterval:   defaultExpiryInterval,
		dispatchInterval: defaultDispatchInterval,
	}
}

// Run blocks until ctx is cancelled, ticking both jobs on their own cadence.
func (s *Scheduler) Run(ctx context.Context) {
	expiry := time.NewTicker(s.expiryInterval)
	defer expiry.Stop()
	dispatch := time.NewTicker(s.dispatchInterval)
	defer dispatch.Stop()

	s.log.Info("scheduler started",
		zap.Duration("expiry_interval", s.expiryInterval),
		zap.Duration("dispatch_interval", s.dispatchInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-expiry.C:
			s.SweepExpired(ctx)
		case <-dispatch.C:
			s.DispatchOutbox(ctx)
		}
	}
}

// SweepExpired expires one batch of overdue cards.
func (s *Scheduler) SweepExpired(ctx context.Context) {
	batch := s.loyalty.Get().ExpirySweepBatchSize
	expired, err := s.cards.ExpireDue(ctx, batch)
	if err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		s.log.Info("expired cards", zap.Int("count", expired))
	}
}

// DispatchOutbox delivers one batch of unpublished events.
func (s *Scheduler) DispatchOutbox(ctx context.Context) {
	batch := s.loyalty.Get().OutboxDispatchBatchSize
	delivered, err := s.dispatcher.Dispatch(ctx, batch)
	if err != nil {
		s.log.Error("outbox dispatch failed", zap.Error(err))
		return
	}
	if delivered > 0 {
		s.log.Debug("dispatched events", zap.Int("count", delivered))
	}
}
