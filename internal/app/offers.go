package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/barter/internal/domain"
	"golang.org/x/sync/errgroup"
)

// CreateOfferInput holds input values for create offer operations.
type CreateOfferInput struct {
	OfferedItemID string
	WantedItemID  string
	Message       string
}

// CreateOffer validates and stores a pending offer from actor.
// Checks run in order: actor, offered item, wanted item, duplicate pending offer.
// The three reads are issued concurrently and nothing is written unless all checks pass.
func (s *Service) CreateOffer(ctx context.Context, actor domain.Actor, in CreateOfferInput) (domain.Offer, error) {
	if actor.Anonymous() {
		return domain.Offer{}, ErrUnauthenticated
	}
	offeredID := strings.TrimSpace(in.OfferedItemID)
	wantedID := strings.TrimSpace(in.WantedItemID)

	var (
		offered, wanted     domain.Item
		offeredOK, wantedOK bool
		existing            domain.Offer
		duplicate           bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		offered, offeredOK, err = s.FindItem(gctx, offeredID)
		return err
	})
	g.Go(func() error {
		var err error
		wanted, wantedOK, err = s.FindItem(gctx, wantedID)
		return err
	})
	g.Go(func() error {
		if offeredID == "" || wantedID == "" {
			return nil
		}
		offer, err := s.offers.FindPendingOffer(gctx, offeredID, wantedID)
		switch {
		case err == nil:
			existing, duplicate = offer, true
			return nil
		case errors.Is(err, ErrNotFound):
			return nil
		default:
			return err
		}
	})
	if err := g.Wait(); err != nil {
		return domain.Offer{}, err
	}

	if !offeredOK || !offered.OwnedBy(actor.ID) || !offered.Available() {
		return domain.Offer{}, recordErr(ErrInvalidOfferedItem, CollectionItems, offeredID)
	}
	if !wantedOK || wanted.OwnerID == actor.ID || !wanted.Available() {
		return domain.Offer{}, recordErr(ErrInvalidWantedItem, CollectionItems, wantedID)
	}
	if duplicate {
		return domain.Offer{}, recordErr(ErrDuplicateOffer, CollectionExchanges, existing.ID)
	}

	offer, err := domain.NewOffer(s.idGen(), actor, offered, wanted, in.Message, s.now())
	if err != nil {
		return domain.Offer{}, err
	}
	if err := s.offers.CreateOffer(ctx, offer); err != nil {
		return domain.Offer{}, err
	}
	s.metrics.OfferCreated()
	return offer, nil
}

// ListSentOffers lists offers sent by actorID, newest first.
func (s *Service) ListSentOffers(ctx context.Context, actorID string) ([]domain.Offer, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return []domain.Offer{}, nil
	}
	return s.offers.ListOffersBySender(ctx, actorID)
}

// ListReceivedOffers lists offers received by actorID, newest first.
func (s *Service) ListReceivedOffers(ctx context.Context, actorID string) ([]domain.Offer, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return []domain.Offer{}, nil
	}
	return s.offers.ListOffersByReceiver(ctx, actorID)
}

// FindOffer returns the offer and whether it exists.
func (s *Service) FindOffer(ctx context.Context, offerID string) (domain.Offer, bool, error) {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return domain.Offer{}, false, nil
	}
	offer, err := s.offers.GetOffer(ctx, offerID)
	if errors.Is(err, ErrNotFound) {
		return domain.Offer{}, false, nil
	}
	if err != nil {
		return domain.Offer{}, false, err
	}
	return offer, true, nil
}

// AcceptOffer accepts an offer as its receiver and exchanges both items.
func (s *Service) AcceptOffer(ctx context.Context, actor domain.Actor, offerID string) (domain.Offer, error) {
	return s.SetOfferStatus(ctx, actor, offerID, domain.OfferStatusAccepted, true)
}

// RejectOffer rejects an offer as its receiver.
func (s *Service) RejectOffer(ctx context.Context, actor domain.Actor, offerID string) (domain.Offer, error) {
	return s.SetOfferStatus(ctx, actor, offerID, domain.OfferStatusRejected, true)
}

// CancelOffer withdraws an offer as its sender.
func (s *Service) CancelOffer(ctx context.Context, actor domain.Actor, offerID string) (domain.Offer, error) {
	return s.SetOfferStatus(ctx, actor, offerID, domain.OfferStatusCancelled, true)
}

// SetOfferStatus moves an offer to a terminal status on behalf of actor.
// The offer write commits first; with propagate set the item writes follow in parallel.
// When an item write fails the updated offer is returned together with a *PartialCommitError.
func (s *Service) SetOfferStatus(ctx context.Context, actor domain.Actor, offerID string, to domain.OfferStatus, propagate bool) (domain.Offer, error) {
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
	if !to.Terminal() {
		return domain.Offer{}, fmt.Errorf("set offer status %q: %w", to, domain.ErrInvalidStatus)
	}
	if !offer.AuthorizedFor(actor.ID, to) {
		return domain.Offer{}, recordErr(ErrUnauthorized, CollectionExchanges, offer.ID)
	}
	if err := offer.CheckTransition(to, s.strict); err != nil {
		return domain.Offer{}, &RecordError{
			Kind:       ErrInvalidTransition,
			Collection: CollectionExchanges,
			ID:         offer.ID,
			Err:        fmt.Errorf("offer is %s", offer.Status),
		}
	}
	if to == domain.OfferStatusAccepted && propagate {
		if err := s.checkAcceptable(ctx, offer); err != nil {
			return domain.Offer{}, err
		}
	}

	updated, err := s.commitTransition(ctx, offer, to, propagate)
	if err != nil {
		return updated, err
	}
	if to == domain.OfferStatusAccepted && s.supersede && !updated.PropagationPending() {
		s.supersedeOffers(ctx, updated)
	}
	return updated, nil
}

// checkAcceptable re-reads both items so an accept never double-commits an item.
func (s *Service) checkAcceptable(ctx context.Context, offer domain.Offer) error {
	var offered, wanted domain.Item
	var offeredOK, wantedOK bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		offered, offeredOK, err = s.FindItem(gctx, offer.OfferedItemID)
		return err
	})
	g.Go(func() error {
		var err error
		wanted, wantedOK, err = s.FindItem(gctx, offer.WantedItemID)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := acceptableItem(offer.OfferedItemID, offered, offeredOK, offer.SenderID); err != nil {
		return err
	}
	return acceptableItem(offer.WantedItemID, wanted, wantedOK, offer.ReceiverID)
}

// acceptableItem reports why one item cannot be exchanged, if it cannot.
func acceptableItem(itemID string, item domain.Item, ok bool, ownerID string) error {
	var cause error
	switch {
	case !ok:
		cause = errors.New("item no longer exists")
	case item.OwnerID != ownerID:
		cause = errors.New("item changed owner")
	case !item.Available():
		cause = fmt.Errorf("item is %s", item.Status)
	default:
		return nil
	}
	return &RecordError{Kind: ErrInvalidTransition, Collection: CollectionItems, ID: itemID, Err: cause}
}

// commitTransition writes the offer status conditionally, then propagates to items.
func (s *Service) commitTransition(ctx context.Context, offer domain.Offer, to domain.OfferStatus, propagate bool) (domain.Offer, error) {
	at := s.now()
	var marker *time.Time
	if !propagate {
		marker = &at
	}
	if err := s.offers.TransitionOffer(ctx, offer.ID, offer.Status, to, at, marker); err != nil {
		switch {
		case errors.Is(err, ErrStatusConflict):
			return domain.Offer{}, &RecordError{Kind: ErrInvalidTransition, Collection: CollectionExchanges, ID: offer.ID, Err: err}
		case errors.Is(err, ErrNotFound):
			return domain.Offer{}, recordErr(ErrNotFound, CollectionExchanges, offer.ID)
		default:
			return domain.Offer{}, err
		}
	}
	offer.Transition(to, at)
	s.metrics.OfferTransitioned(to)
	if !propagate {
		offer.MarkPropagated(at)
		return offer, nil
	}
	return s.finishPropagation(ctx, offer, false)
}

// finishPropagation issues the item writes for a committed offer status and stamps the marker.
// With reconciling set, items deleted since the commit are skipped.
func (s *Service) finishPropagation(ctx context.Context, offer domain.Offer, reconciling bool) (domain.Offer, error) {
	writes := s.propagate(ctx, offer, reconciling)
	perr := &PartialCommitError{OfferID: offer.ID, Status: offer.Status, Writes: writes}
	if failed := perr.Failed(); len(failed) > 0 {
		s.metrics.PartialCommit()
		s.logger.Warn("offer committed with outstanding item writes",
			"offer_id", offer.ID, "status", offer.Status, "failed", len(failed), "writes", len(writes))
		return offer, perr
	}

	at := s.now()
	if err := s.offers.MarkOfferPropagated(ctx, offer.ID, at); err != nil {
		// Item writes are idempotent; a later reconcile pass records the marker.
		s.logger.Warn("propagation marker not recorded", "offer_id", offer.ID, "err", err)
		return offer, nil
	}
	offer.MarkPropagated(at)
	return offer, nil
}

// propagate runs the item writes implied by the offer status concurrently and collects every outcome.
func (s *Service) propagate(ctx context.Context, offer domain.Offer, missingOK bool) []ItemWrite {
	changes := offer.Propagation()
	writes := make([]ItemWrite, len(changes))
	at := s.now()
	var g errgroup.Group
	for i, change := range changes {
		g.Go(func() error {
			writes[i] = s.applyItemChange(ctx, change, at, missingOK)
			return nil
		})
	}
	_ = g.Wait()
	return writes
}

// applyItemChange issues one item status write.
func (s *Service) applyItemChange(ctx context.Context, change domain.ItemStatusChange, at time.Time, missingOK bool) ItemWrite {
	write := ItemWrite{ItemID: change.ItemID, Status: change.Status}
	var allowedFrom []domain.ItemStatus
	if change.Guarded {
		allowedFrom = []domain.ItemStatus{domain.ItemStatusAvailable}
	}
	err := s.items.SetItemStatus(ctx, change.ItemID, change.Status, at, allowedFrom...)
	switch {
	case err == nil:
	case change.Guarded && (errors.Is(err, ErrStatusConflict) || errors.Is(err, ErrNotFound)):
		write.Skipped = true
	case missingOK && errors.Is(err, ErrNotFound):
		s.logger.Info("item write skipped for deleted item", "item_id", change.ItemID, "status", change.Status)
		write.Skipped = true
	default:
		write.Err = err
	}
	return write
}

// supersedeOffers cancels other pending offers that reference either exchanged item.
func (s *Service) supersedeOffers(ctx context.Context, accepted domain.Offer) {
	seen := map[string]struct{}{accepted.ID: {}}
	for _, itemID := range []string{accepted.OfferedItemID, accepted.WantedItemID} {
		pending, err := s.offers.ListPendingOffersForItem(ctx, itemID)
		if err != nil {
			s.logger.Warn("list offers to supersede failed", "item_id", itemID, "err", err)
			continue
		}
		for _, offer := range pending {
			if _, ok := seen[offer.ID]; ok {
				continue
			}
			seen[offer.ID] = struct{}{}
			if _, err := s.commitTransition(ctx, offer, domain.OfferStatusCancelled, true); err != nil {
				s.logger.Warn("supersede offer failed", "offer_id", offer.ID, "accepted_offer_id", accepted.ID, "err", err)
				continue
			}
			s.logger.Info("offer superseded", "offer_id", offer.ID, "accepted_offer_id", accepted.ID)
		}
	}
}
