package app

import (
	"context"

	"github.com/evanschultz/barter/internal/domain"
)

// ReconcileReport summarizes one reconciliation sweep.
type ReconcileReport struct {
	Reconciled []string
	Failed     map[string]error
}

// ReconcileOffer re-issues outstanding item writes for one offer on behalf of a party to it.
// Offers without outstanding writes are returned unchanged. Items deleted since the offer
// committed are skipped.
func (s *Service) ReconcileOffer(ctx context.Context, actor domain.Actor, offerID string) (domain.Offer, error) {
	if actor.Anonymous() {
		return domain.Offer{}, ErrUnauthenticated
	}
	offer, ok, err := s.FindOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if !ok {
		return domain.Offer{}, recordErr(ErrNotFound, CollectionExchanges, offerID)
	}
	if !offer.Party(actor.ID) {
		return domain.Offer{}, recordErr(ErrUnauthorized, CollectionExchanges, offer.ID)
	}
	return s.reconcile(ctx, offer)
}

// ReconcilePending sweeps every offer left with outstanding item writes.
func (s *Service) ReconcilePending(ctx context.Context) (ReconcileReport, error) {
	report := ReconcileReport{Reconciled: []string{}, Failed: map[string]error{}}
	offers, err := s.offers.ListUnpropagatedOffers(ctx)
	if err != nil {
		return report, err
	}
	for _, offer := range offers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.reconcile(ctx, offer); err != nil {
			report.Failed[offer.ID] = err
			continue
		}
		report.Reconciled = append(report.Reconciled, offer.ID)
	}
	s.logger.Info("reconcile sweep complete", "reconciled", len(report.Reconciled), "failed", len(report.Failed))
	return report, nil
}

// reconcile finishes propagation for one offer.
func (s *Service) reconcile(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if !offer.PropagationPending() {
		return offer, nil
	}
	updated, err := s.finishPropagation(ctx, offer, true)
	if err != nil {
		return updated, err
	}
	s.metrics.OfferReconciled()
	s.logger.Info("offer reconciled", "offer_id", offer.ID, "status", offer.Status)
	if updated.Status == domain.OfferStatusAccepted && s.supersede && !updated.PropagationPending() {
		s.supersedeOffers(ctx, updated)
	}
	return updated, nil
}
