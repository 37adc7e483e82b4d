package common

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/domain"
)

var _ MarketplaceService = (*AppServiceAdapter)(nil)

// AppServiceAdapter maps transport contracts onto app.Service.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// ListAvailableItems lists the public catalogue.
func (a *AppServiceAdapter) ListAvailableItems(ctx context.Context) ([]ItemView, error) {
	items, err := a.service.ListAvailableItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available items: %w", err)
	}
	return itemViews(items), nil
}

// ListMyItems lists every item owned by actor.
func (a *AppServiceAdapter) ListMyItems(ctx context.Context, actor domain.Actor) ([]ItemView, error) {
	if actor.Anonymous() {
		return nil, fmt.Errorf("list my items: %w", app.ErrUnauthenticated)
	}
	items, err := a.service.ListItemsOwnedBy(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list my items: %w", err)
	}
	return itemViews(items), nil
}

// GetItem returns one item by id.
func (a *AppServiceAdapter) GetItem(ctx context.Context, itemID string) (ItemView, error) {
	item, ok, err := a.service.FindItem(ctx, itemID)
	if err != nil {
		return ItemView{}, fmt.Errorf("get item: %w", err)
	}
	if !ok {
		return ItemView{}, fmt.Errorf("get item: %w", &app.RecordError{Kind: app.ErrNotFound, Collection: app.CollectionItems, ID: itemID})
	}
	return NewItemView(item), nil
}

// CreateItem lists a new item for actor.
func (a *AppServiceAdapter) CreateItem(ctx context.Context, actor domain.Actor, req CreateItemRequest) (ItemView, error) {
	item, err := a.service.CreateItem(ctx, actor, app.CreateItemInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return ItemView{}, fmt.Errorf("create item: %w", err)
	}
	return NewItemView(item), nil
}

// UpdateItem edits one item owned by actor.
func (a *AppServiceAdapter) UpdateItem(ctx context.Context, actor domain.Actor, req UpdateItemRequest) (ItemView, error) {
	if strings.TrimSpace(req.ItemID) == "" {
		return ItemView{}, fmt.Errorf("update item: item id is required: %w", ErrInvalidRequest)
	}
	item, err := a.service.UpdateItem(ctx, actor, req.ItemID, domain.ItemPatch{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return ItemView{}, fmt.Errorf("update item: %w", err)
	}
	return NewItemView(item), nil
}

// DeleteItem deletes one item owned by actor.
func (a *AppServiceAdapter) DeleteItem(ctx context.Context, actor domain.Actor, itemID string) error {
	if err := a.service.DeleteItem(ctx, actor, itemID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// CreateOffer proposes a trade on behalf of actor.
func (a *AppServiceAdapter) CreateOffer(ctx context.Context, actor domain.Actor, req CreateOfferRequest) (OfferView, error) {
	offer, err := a.service.CreateOffer(ctx, actor, app.CreateOfferInput{
		OfferedItemID: req.OfferedItemID,
		WantedItemID:  req.WantedItemID,
		Message:       req.Message,
	})
	if err != nil {
		return OfferView{}, fmt.Errorf("create offer: %w", err)
	}
	return NewOfferView(offer), nil
}

// GetOffer returns one offer visible to actor. Only its sender and receiver may read it.
func (a *AppServiceAdapter) GetOffer(ctx context.Context, actor domain.Actor, offerID string) (OfferView, error) {
	if actor.Anonymous() {
		return OfferView{}, fmt.Errorf("get offer: %w", app.ErrUnauthenticated)
	}
	offer, ok, err := a.service.FindOffer(ctx, offerID)
	if err != nil {
		return OfferView{}, fmt.Errorf("get offer: %w", err)
	}
	if !ok {
		return OfferView{}, fmt.Errorf("get offer: %w", &app.RecordError{Kind: app.ErrNotFound, Collection: app.CollectionExchanges, ID: offerID})
	}
	if !offer.Party(actor.ID) {
		return OfferView{}, fmt.Errorf("get offer: %w", &app.RecordError{Kind: app.ErrUnauthorized, Collection: app.CollectionExchanges, ID: offer.ID})
	}
	return NewOfferView(offer), nil
}

// ListSentOffers lists offers sent by actor.
func (a *AppServiceAdapter) ListSentOffers(ctx context.Context, actor domain.Actor) ([]OfferView, error) {
	if actor.Anonymous() {
		return nil, fmt.Errorf("list sent offers: %w", app.ErrUnauthenticated)
	}
	offers, err := a.service.ListSentOffers(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list sent offers: %w", err)
	}
	return offerViews(offers), nil
}

// ListReceivedOffers lists offers received by actor.
func (a *AppServiceAdapter) ListReceivedOffers(ctx context.Context, actor domain.Actor) ([]OfferView, error) {
	if actor.Anonymous() {
		return nil, fmt.Errorf("list received offers: %w", app.ErrUnauthenticated)
	}
	offers, err := a.service.ListReceivedOffers(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list received offers: %w", err)
	}
	return offerViews(offers), nil
}

// AcceptOffer accepts one offer as its receiver.
func (a *AppServiceAdapter) AcceptOffer(ctx context.Context, actor domain.Actor, offerID string) (OfferView, error) {
	return a.transition("accept offer", offerID, func() (domain.Offer, error) {
		return a.service.AcceptOffer(ctx, actor, offerID)
	})
}

// RejectOffer rejects one offer as its receiver.
func (a *AppServiceAdapter) RejectOffer(ctx context.Context, actor domain.Actor, offerID string) (OfferView, error) {
	return a.transition("reject offer", offerID, func() (domain.Offer, error) {
		return a.service.RejectOffer(ctx, actor, offerID)
	})
}

// CancelOffer cancels one offer as its sender.
func (a *AppServiceAdapter) CancelOffer(ctx context.Context, actor domain.Actor, offerID string) (OfferView, error) {
	return a.transition("cancel offer", offerID, func() (domain.Offer, error) {
		return a.service.CancelOffer(ctx, actor, offerID)
	})
}

// ReconcileOffer finishes outstanding item writes for one offer.
func (a *AppServiceAdapter) ReconcileOffer(ctx context.Context, actor domain.Actor, offerID string) (OfferView, error) {
	return a.transition("reconcile offer", offerID, func() (domain.Offer, error) {
		return a.service.ReconcileOffer(ctx, actor, offerID)
	})
}

// transition runs one offer status operation. A partial commit still returns the committed view.
func (a *AppServiceAdapter) transition(operation, offerID string, run func() (domain.Offer, error)) (OfferView, error) {
	if strings.TrimSpace(offerID) == "" {
		return OfferView{}, fmt.Errorf("%s: offer id is required: %w", operation, ErrInvalidRequest)
	}
	offer, err := run()
	if err != nil {
		if offer.ID != "" {
			return NewOfferView(offer), fmt.Errorf("%s: %w", operation, err)
		}
		return OfferView{}, fmt.Errorf("%s: %w", operation, err)
	}
	return NewOfferView(offer), nil
}

// GetProfile returns actor's profile, creating it on first use.
func (a *AppServiceAdapter) GetProfile(ctx context.Context, actor domain.Actor) (ProfileView, error) {
	profile, err := a.service.EnsureProfile(ctx, actor)
	if err != nil {
		return ProfileView{}, fmt.Errorf("get profile: %w", err)
	}
	return NewProfileView(profile), nil
}

// UpdateProfile renames actor's profile.
func (a *AppServiceAdapter) UpdateProfile(ctx context.Context, actor domain.Actor, req UpdateProfileRequest) (ProfileView, error) {
	profile, err := a.service.UpdateProfile(ctx, actor, req.Username)
	if err != nil {
		return ProfileView{}, fmt.Errorf("update profile: %w", err)
	}
	return NewProfileView(profile), nil
}
