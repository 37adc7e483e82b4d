package domain

import (
	"strings"
	"time"
)

// ItemStatus describes whether an item can still take part in a trade.
type ItemStatus string

// Item status values.
const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusExchanged ItemStatus = "exchanged"
)

// ParseItemStatus validates one raw item status.
func ParseItemStatus(raw string) (ItemStatus, error) {
	switch status := ItemStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case ItemStatusAvailable, ItemStatusExchanged:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Item is a tradeable listing owned by one actor.
type Item struct {
	ID          string
	Title       string
	Description string
	OwnerID     string
	OwnerName   string
	Status      ItemStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemInput holds input values for item creation.
type ItemInput struct {
	ID          string
	Title       string
	Description string
	OwnerID     string
	OwnerName   string
}

// NewItem builds an available item. OwnerName is fixed at creation time.
// Title and description are stored as given; only an empty title is rejected.
func NewItem(in ItemInput, now time.Time) (Item, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.OwnerID = strings.TrimSpace(in.OwnerID)
	in.OwnerName = strings.TrimSpace(in.OwnerName)

	if in.ID == "" || in.OwnerID == "" {
		return Item{}, ErrInvalidID
	}
	if in.Title == "" {
		return Item{}, ErrInvalidTitle
	}
	if in.OwnerName == "" {
		in.OwnerName = AnonymousName
	}

	return Item{
		ID:          in.ID,
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     in.OwnerID,
		OwnerName:   in.OwnerName,
		Status:      ItemStatusAvailable,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// ItemPatch enumerates the owner-editable item fields. Nil fields are left unchanged.
type ItemPatch struct {
	Title       *string
	Description *string
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Title == nil && p.Description == nil
}

// Available reports whether the item can be offered or requested.
func (i Item) Available() bool {
	return i.Status == ItemStatusAvailable
}

// OwnedBy reports whether actorID owns the item.
func (i Item) OwnedBy(actorID string) bool {
	actorID = strings.TrimSpace(actorID)
	return actorID != "" && i.OwnerID == actorID
}

// ApplyPatch merges patch fields into an available item.
func (i *Item) ApplyPatch(p ItemPatch, now time.Time) error {
	if p.Empty() {
		return ErrEmptyPatch
	}
	if i.Status == ItemStatusExchanged {
		return ErrItemExchanged
	}
	title := i.Title
	if p.Title != nil {
		title = *p.Title
		if title == "" {
			return ErrInvalidTitle
		}
	}
	description := i.Description
	if p.Description != nil {
		description = *p.Description
	}
	i.Title = title
	i.Description = description
	i.UpdatedAt = now.UTC()
	return nil
}
