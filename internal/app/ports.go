package app

import (
	"context"
	"time"

	"github.com/evanschultz/barter/internal/domain"
)

// ItemStore persists items. Listings are ordered newest created first.
type ItemStore interface {
	CreateItem(context.Context, domain.Item) error
	GetItem(context.Context, string) (domain.Item, error)
	UpdateItem(context.Context, domain.Item) error
	// SetItemStatus writes status unconditionally, or only when the current
	// status is one of allowedFrom (ErrStatusConflict otherwise).
	SetItemStatus(ctx context.Context, id string, to domain.ItemStatus, at time.Time, allowedFrom ...domain.ItemStatus) error
	DeleteItem(context.Context, string) error
	ListItemsByStatus(context.Context, domain.ItemStatus) ([]domain.Item, error)
	ListItemsByOwner(context.Context, string) ([]domain.Item, error)
}

// OfferStore persists offers. Listings are ordered newest created first.
type OfferStore interface {
	CreateOffer(context.Context, domain.Offer) error
	GetOffer(context.Context, string) (domain.Offer, error)
	// TransitionOffer moves status from -> to in one conditional write and
	// sets the propagation marker (nil while item writes are outstanding).
	TransitionOffer(ctx context.Context, id string, from, to domain.OfferStatus, at time.Time, propagatedAt *time.Time) error
	MarkOfferPropagated(ctx context.Context, id string, at time.Time) error
	// FindPendingOffer returns ErrNotFound when no pending offer exists for the pair.
	FindPendingOffer(ctx context.Context, offeredItemID, wantedItemID string) (domain.Offer, error)
	ListOffersBySender(context.Context, string) ([]domain.Offer, error)
	ListOffersByReceiver(context.Context, string) ([]domain.Offer, error)
	ListPendingOffersForItem(context.Context, string) ([]domain.Offer, error)
	ListUnpropagatedOffers(context.Context) ([]domain.Offer, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	UpsertProfile(context.Context, domain.Profile) error
	GetProfile(context.Context, string) (domain.Profile, error)
}

// Repository represents repository data used by this package.
type Repository interface {
	ItemStore
	OfferStore
	ProfileStore
}

// Metrics receives lifecycle counters.
type Metrics interface {
	ItemCreated()
	OfferCreated()
	OfferTransitioned(domain.OfferStatus)
	PartialCommit()
	OfferReconciled()
}

type noopMetrics struct{}

func (noopMetrics) ItemCreated()                         {}
func (noopMetrics) OfferCreated()                        {}
func (noopMetrics) OfferTransitioned(domain.OfferStatus) {}
func (noopMetrics) PartialCommit()                       {}
func (noopMetrics) OfferReconciled()                     {}
