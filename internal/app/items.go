package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evanschultz/barter/internal/domain"
)

// CreateItemInput holds input values for create item operations.
type CreateItemInput struct {
	Title       string
	Description string
}

// ListAvailableItems lists available items, newest first. No actor is required.
func (s *Service) ListAvailableItems(ctx context.Context) ([]domain.Item, error) {
	return s.items.ListItemsByStatus(ctx, domain.ItemStatusAvailable)
}

// ListItemsOwnedBy lists items owned by ownerID, newest first. An empty owner yields no items.
func (s *Service) ListItemsOwnedBy(ctx context.Context, ownerID string) ([]domain.Item, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return []domain.Item{}, nil
	}
	return s.items.ListItemsByOwner(ctx, ownerID)
}

// FindItem returns the item and whether it exists.
func (s *Service) FindItem(ctx context.Context, itemID string) (domain.Item, bool, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.Item{}, false, nil
	}
	item, err := s.items.GetItem(ctx, itemID)
	if errors.Is(err, ErrNotFound) {
		return domain.Item{}, false, nil
	}
	if err != nil {
		return domain.Item{}, false, err
	}
	return item, true, nil
}

// CreateItem lists a new available item owned by actor.
func (s *Service) CreateItem(ctx context.Context, actor domain.Actor, in CreateItemInput) (domain.Item, error) {
	if actor.Anonymous() {
		return domain.Item{}, ErrUnauthenticated
	}
	item, err := domain.NewItem(domain.ItemInput{
		ID:          s.idGen(),
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     actor.ID,
		OwnerName:   actor.Name(),
	}, s.now())
	if err != nil {
		return domain.Item{}, err
	}
	if err := s.items.CreateItem(ctx, item); err != nil {
		return domain.Item{}, err
	}
	s.metrics.ItemCreated()
	return item, nil
}

// UpdateItem merges patch into an item owned by actor.
func (s *Service) UpdateItem(ctx context.Context, actor domain.Actor, itemID string, patch domain.ItemPatch) (domain.Item, error) {
	item, err := s.ownedItem(ctx, actor, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if err := item.ApplyPatch(patch, s.now()); err != nil {
		return domain.Item{}, err
	}
	if err := s.items.UpdateItem(ctx, item); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}

// DeleteItem removes an item owned by actor. Pending offers referencing it
// block the delete or are cancelled first, depending on the delete policy.
func (s *Service) DeleteItem(ctx context.Context, actor domain.Actor, itemID string) error {
	item, err := s.ownedItem(ctx, actor, itemID)
	if err != nil {
		return err
	}
	pending, err := s.offers.ListPendingOffersForItem(ctx, item.ID)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		if s.deletePolicy != DeletePolicyCascade {
			return &RecordError{
				Kind:       ErrItemReferenced,
				Collection: CollectionItems,
				ID:         item.ID,
				Err:        fmt.Errorf("%d pending offer(s)", len(pending)),
			}
		}
		for _, offer := range pending {
			if _, err := s.commitTransition(ctx, offer, domain.OfferStatusCancelled, true); err != nil {
				return fmt.Errorf("cancel offer %s before delete: %w", offer.ID, err)
			}
			s.logger.Info("offer cancelled by item delete", "offer_id", offer.ID, "item_id", item.ID)
		}
	}
	return s.items.DeleteItem(ctx, item.ID)
}

// ownedItem loads an item and checks that actor owns it.
func (s *Service) ownedItem(ctx context.Context, actor domain.Actor, itemID string) (domain.Item, error) {
	if actor.Anonymous() {
		return domain.Item{}, ErrUnauthenticated
	}
	item, ok, err := s.FindItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if !ok {
		return domain.Item{}, recordErr(ErrNotFound, CollectionItems, itemID)
	}
	if !item.OwnedBy(actor.ID) {
		return domain.Item{}, recordErr(ErrUnauthorized, CollectionItems, item.ID)
	}
	return item, nil
}
