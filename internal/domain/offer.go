package domain

import (
	"strings"
	"time"
)

// OfferStatus describes where an offer is in its lifecycle.
type OfferStatus string

// Offer status values. Every status except pending is terminal.
const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusCancelled OfferStatus = "cancelled"
)

// ParseOfferStatus validates one raw offer status.
func ParseOfferStatus(raw string) (OfferStatus, error) {
	switch status := OfferStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case OfferStatusPending, OfferStatusAccepted, OfferStatusRejected, OfferStatusCancelled:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Terminal reports whether no further transition is expected.
func (s OfferStatus) Terminal() bool {
	switch s {
	case OfferStatusAccepted, OfferStatusRejected, OfferStatusCancelled:
		return true
	default:
		return false
	}
}

// Offer is a proposal to trade OfferedItemID for WantedItemID.
// Names are copied from the items and the sender at creation time and never re-synced.
type Offer struct {
	ID              string
	OfferedItemID   string
	OfferedItemName string
	WantedItemID    string
	WantedItemName  string
	SenderID        string
	SenderName      string
	ReceiverID      string
	ReceiverName    string
	Message         string
	Status          OfferStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	// PropagatedAt is nil while a terminal status still has item writes outstanding.
	PropagatedAt *time.Time
}

// NewOffer builds a pending offer from the two resolved items.
func NewOffer(id string, sender Actor, offered, wanted Item, message string, now time.Time) (Offer, error) {
	id = strings.TrimSpace(id)
	if id == "" || offered.ID == "" || wanted.ID == "" || sender.Anonymous() {
		return Offer{}, ErrInvalidID
	}
	if sender.ID == wanted.OwnerID {
		return Offer{}, ErrSelfOffer
	}
	ts := now.UTC()
	return Offer{
		ID:              id,
		OfferedItemID:   offered.ID,
		OfferedItemName: offered.Title,
		WantedItemID:    wanted.ID,
		WantedItemName:  wanted.Title,
		SenderID:        sender.ID,
		SenderName:      sender.Name(),
		ReceiverID:      wanted.OwnerID,
		ReceiverName:    wanted.OwnerName,
		Message:         strings.TrimSpace(message),
		Status:          OfferStatusPending,
		CreatedAt:       ts,
		UpdatedAt:       ts,
		PropagatedAt:    &ts,
	}, nil
}

// Involves reports whether itemID is either side of the offer.
func (o Offer) Involves(itemID string) bool {
	return itemID != "" && (o.OfferedItemID == itemID || o.WantedItemID == itemID)
}

// Party reports whether actorID is the sender or receiver.
func (o Offer) Party(actorID string) bool {
	return actorID != "" && (o.SenderID == actorID || o.ReceiverID == actorID)
}

// AuthorizedFor reports whether actorID may move the offer to status.
// The receiver decides (accept, reject); the sender withdraws (cancel).
func (o Offer) AuthorizedFor(actorID string, to OfferStatus) bool {
	if strings.TrimSpace(actorID) == "" {
		return false
	}
	switch to {
	case OfferStatusAccepted, OfferStatusRejected:
		return actorID == o.ReceiverID
	case OfferStatusCancelled:
		return actorID == o.SenderID
	default:
		return false
	}
}

// CheckTransition validates a move to status. With strict set only pending offers may move;
// otherwise any decided offer may be decided again, except an accepted one.
func (o Offer) CheckTransition(to OfferStatus, strict bool) error {
	if !to.Terminal() {
		return ErrInvalidStatus
	}
	if strict && o.Status != OfferStatusPending {
		return ErrInvalidTransition
	}
	if o.Status == OfferStatusAccepted {
		return ErrInvalidTransition
	}
	return nil
}

// Transition sets status and clears the propagation marker.
func (o *Offer) Transition(to OfferStatus, now time.Time) {
	o.Status = to
	o.UpdatedAt = now.UTC()
	o.PropagatedAt = nil
}

// MarkPropagated records that every dependent item write has completed.
func (o *Offer) MarkPropagated(now time.Time) {
	ts := now.UTC()
	o.PropagatedAt = &ts
}

// PropagationPending reports whether item writes for the current status are outstanding.
func (o Offer) PropagationPending() bool {
	return o.Status.Terminal() && o.PropagatedAt == nil
}

// ItemStatusChange describes one item write implied by an offer status.
type ItemStatusChange struct {
	ItemID string
	Status ItemStatus
	// Guarded writes never overwrite an exchanged item.
	Guarded bool
}

// Propagation lists the item writes implied by the current status.
// Accepting exchanges both items; rejecting or cancelling resets the offered item only.
func (o Offer) Propagation() []ItemStatusChange {
	switch o.Status {
	case OfferStatusAccepted:
		return []ItemStatusChange{
			{ItemID: o.OfferedItemID, Status: ItemStatusExchanged},
			{ItemID: o.WantedItemID, Status: ItemStatusExchanged},
		}
	case OfferStatusRejected, OfferStatusCancelled:
		return []ItemStatusChange{
			{ItemID: o.OfferedItemID, Status: ItemStatusAvailable, Guarded: true},
		}
	default:
		return nil
	}
}
