package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/evanschultz/barter/internal/domain"
)

// fakeRepo is an in-memory Repository with per-record failure injection.
type fakeRepo struct {
	mu       sync.Mutex
	items    map[string]domain.Item
	offers   map[string]domain.Offer
	profiles map[string]domain.Profile

	failItemStatus map[string]error
	failMarker     error
	failReads      error
	getItemCalls   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:          map[string]domain.Item{},
		offers:         map[string]domain.Offer{},
		profiles:       map[string]domain.Profile{},
		failItemStatus: map[string]error{},
	}
}

func (f *fakeRepo) CreateItem(_ context.Context, item domain.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepo) GetItem(_ context.Context, id string) (domain.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getItemCalls++
	if f.failReads != nil {
		return domain.Item{}, f.failReads
	}
	item, ok := f.items[id]
	if !ok {
		return domain.Item{}, ErrNotFound
	}
	return item, nil
}

func (f *fakeRepo) UpdateItem(_ context.Context, item domain.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.ID]; !ok {
		return ErrNotFound
	}
	f.items[item.ID] = item
	return nil
}

func (f *fakeRepo) SetItemStatus(_ context.Context, id string, to domain.ItemStatus, at time.Time, allowedFrom ...domain.ItemStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failItemStatus[id]; err != nil {
		return err
	}
	item, ok := f.items[id]
	if !ok {
		return ErrNotFound
	}
	if len(allowedFrom) > 0 {
		allowed := false
		for _, status := range allowedFrom {
			if item.Status == status {
				allowed = true
			}
		}
		if !allowed {
			return ErrStatusConflict
		}
	}
	item.Status = to
	item.UpdatedAt = at
	f.items[id] = item
	return nil
}

func (f *fakeRepo) DeleteItem(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRepo) ListItemsByStatus(_ context.Context, status domain.ItemStatus) ([]domain.Item, error) {
	return f.listItems(func(item domain.Item) bool { return item.Status == status }), nil
}

func (f *fakeRepo) ListItemsByOwner(_ context.Context, ownerID string) ([]domain.Item, error) {
	return f.listItems(func(item domain.Item) bool { return item.OwnerID == ownerID }), nil
}

func (f *fakeRepo) listItems(keep func(domain.Item) bool) []domain.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Item{}
	for _, item := range f.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeRepo) CreateOffer(_ context.Context, offer domain.Offer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers[offer.ID] = offer
	return nil
}

func (f *fakeRepo) GetOffer(_ context.Context, id string) (domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	offer, ok := f.offers[id]
	if !ok {
		return domain.Offer{}, ErrNotFound
	}
	return offer, nil
}

func (f *fakeRepo) TransitionOffer(_ context.Context, id string, from, to domain.OfferStatus, at time.Time, propagatedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	offer, ok := f.offers[id]
	if !ok {
		return ErrNotFound
	}
	if offer.Status != from {
		return ErrStatusConflict
	}
	offer.Status = to
	offer.UpdatedAt = at
	offer.PropagatedAt = propagatedAt
	f.offers[id] = offer
	return nil
}

func (f *fakeRepo) MarkOfferPropagated(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarker != nil {
		return f.failMarker
	}
	offer, ok := f.offers[id]
	if !ok {
		return ErrNotFound
	}
	offer.PropagatedAt = &at
	f.offers[id] = offer
	return nil
}

func (f *fakeRepo) FindPendingOffer(_ context.Context, offeredItemID, wantedItemID string) (domain.Offer, error) {
	matches := f.listOffers(func(o domain.Offer) bool {
		return o.Status == domain.OfferStatusPending && o.OfferedItemID == offeredItemID && o.WantedItemID == wantedItemID
	})
	if len(matches) == 0 {
		return domain.Offer{}, ErrNotFound
	}
	return matches[0], nil
}

func (f *fakeRepo) ListOffersBySender(_ context.Context, senderID string) ([]domain.Offer, error) {
	return f.listOffers(func(o domain.Offer) bool { return o.SenderID == senderID }), nil
}

func (f *fakeRepo) ListOffersByReceiver(_ context.Context, receiverID string) ([]domain.Offer, error) {
	return f.listOffers(func(o domain.Offer) bool { return o.ReceiverID == receiverID }), nil
}

func (f *fakeRepo) ListPendingOffersForItem(_ context.Context, itemID string) ([]domain.Offer, error) {
	return f.listOffers(func(o domain.Offer) bool {
		return o.Status == domain.OfferStatusPending && o.Involves(itemID)
	}), nil
}

func (f *fakeRepo) ListUnpropagatedOffers(_ context.Context) ([]domain.Offer, error) {
	return f.listOffers(func(o domain.Offer) bool { return o.PropagationPending() }), nil
}

func (f *fakeRepo) listOffers(keep func(domain.Offer) bool) []domain.Offer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Offer{}
	for _, offer := range f.offers {
		if keep(offer) {
			out = append(out, offer)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakeRepo) UpsertProfile(_ context.Context, profile domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.ID] = profile
	return nil
}

func (f *fakeRepo) GetProfile(_ context.Context, id string) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.profiles[id]
	if !ok {
		return domain.Profile{}, ErrNotFound
	}
	return profile, nil
}

// countingMetrics records lifecycle counters for assertions.
type countingMetrics struct {
	mu          sync.Mutex
	items       int
	offers      int
	transitions map[domain.OfferStatus]int
	partial     int
	reconciled  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{transitions: map[domain.OfferStatus]int{}}
}

func (m *countingMetrics) ItemCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items++
}

func (m *countingMetrics) OfferCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers++
}

func (m *countingMetrics) OfferTransitioned(status domain.OfferStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[status]++
}

func (m *countingMetrics) PartialCommit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partial++
}

func (m *countingMetrics) OfferReconciled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciled++
}
