// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/evanschultz/barter/internal/domain"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ItemView is the transport shape of one item.
type ItemView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OfferView is the transport shape of one offer.
type OfferView struct {
	ID                 string     `json:"id"`
	OfferedItemID      string     `json:"offered_item_id"`
	OfferedItemName    string     `json:"offered_item_name"`
	WantedItemID       string     `json:"wanted_item_id"`
	WantedItemName     string     `json:"wanted_item_name"`
	SenderID           string     `json:"sender_id"`
	SenderName         string     `json:"sender_name"`
	ReceiverID         string     `json:"receiver_id"`
	ReceiverName       string     `json:"receiver_name"`
	Message            string     `json:"message,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	PropagatedAt       *time.Time `json:"propagated_at,omitempty"`
	PropagationPending bool       `json:"propagation_pending"`
}

// ProfileView is the transport shape of one profile.
type ProfileView struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	Username     string    `json:"username"`
	Rating       float64   `json:"rating"`
	TotalReviews int       `json:"total_reviews"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ItemWriteView reports one dependent item write of a partially committed offer.
type ItemWriteView struct {
	ItemID  string `json:"item_id"`
	Status  string `json:"status"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateItemRequest stores transport input for item creation.
type CreateItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateItemRequest stores transport input for item edits. Nil fields stay unchanged.
type UpdateItemRequest struct {
	ItemID      string  `json:"-"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CreateOfferRequest stores transport input for offer creation.
type CreateOfferRequest struct {
	OfferedItemID string `json:"offered_item_id"`
	WantedItemID  string `json:"wanted_item_id"`
	Message       string `json:"message,omitempty"`
}

// UpdateProfileRequest stores transport input for profile edits.
type UpdateProfileRequest struct {
	Username string `json:"username"`
}

// MarketplaceService is the app-facing surface shared by HTTP and MCP transports.
type MarketplaceService interface {
	ListAvailableItems(context.Context) ([]ItemView, error)
	ListMyItems(context.Context, domain.Actor) ([]ItemView, error)
	GetItem(context.Context, string) (ItemView, error)
	CreateItem(context.Context, domain.Actor, CreateItemRequest) (ItemView, error)
	UpdateItem(context.Context, domain.Actor, UpdateItemRequest) (ItemView, error)
	DeleteItem(context.Context, domain.Actor, string) error

	CreateOffer(context.Context, domain.Actor, CreateOfferRequest) (OfferView, error)
	GetOffer(context.Context, domain.Actor, string) (OfferView, error)
	ListSentOffers(context.Context, domain.Actor) ([]OfferView, error)
	ListReceivedOffers(context.Context, domain.Actor) ([]OfferView, error)
	AcceptOffer(context.Context, domain.Actor, string) (OfferView, error)
	RejectOffer(context.Context, domain.Actor, string) (OfferView, error)
	CancelOffer(context.Context, domain.Actor, string) (OfferView, error)
	ReconcileOffer(context.Context, domain.Actor, string) (OfferView, error)

	GetProfile(context.Context, domain.Actor) (ProfileView, error)
	UpdateProfile(context.Context, domain.Actor, UpdateProfileRequest) (ProfileView, error)
}

// ActorResolver resolves the acting user from a request or a raw token.
type ActorResolver interface {
	ResolveRequest(*http.Request) (domain.Actor, error)
	ResolveToken(string) (domain.Actor, error)
}

// NewItemView converts one domain item.
func NewItemView(item domain.Item) ItemView {
	return ItemView{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		OwnerID:     item.OwnerID,
		OwnerName:   item.OwnerName,
		Status:      string(item.Status),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

// NewOfferView converts one domain offer.
func NewOfferView(offer domain.Offer) OfferView {
	return OfferView{
		ID:                 offer.ID,
		OfferedItemID:      offer.OfferedItemID,
		OfferedItemName:    offer.OfferedItemName,
		WantedItemID:       offer.WantedItemID,
		WantedItemName:     offer.WantedItemName,
		SenderID:           offer.SenderID,
		SenderName:         offer.SenderName,
		ReceiverID:         offer.ReceiverID,
		ReceiverName:       offer.ReceiverName,
		Message:            offer.Message,
		Status:             string(offer.Status),
		CreatedAt:          offer.CreatedAt,
		UpdatedAt:          offer.UpdatedAt,
		PropagatedAt:       offer.PropagatedAt,
		PropagationPending: offer.PropagationPending(),
	}
}

// NewProfileView converts one domain profile.
func NewProfileView(profile domain.Profile) ProfileView {
	return ProfileView{
		ID:           profile.ID,
		Email:        profile.Email,
		Username:     profile.Username,
		Rating:       profile.Rating,
		TotalReviews: profile.TotalReviews,
		CreatedAt:    profile.CreatedAt,
		UpdatedAt:    profile.UpdatedAt,
	}
}

func itemViews(items []domain.Item) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, item := range items {
		out = append(out, NewItemView(item))
	}
	return out
}

func offerViews(offers []domain.Offer) []OfferView {
	out := make([]OfferView, 0, len(offers))
	for _, offer := range offers {
		out = append(out, NewOfferView(offer))
	}
	return out
}
