package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/domain"
)

const offerColumns = `id, offered_item_id, offered_item_name, wanted_item_id, wanted_item_name,
	sender_id, sender_name, receiver_id, receiver_name, message, status, created_at, updated_at, propagated_at`

// CreateOffer creates offer.
func (r *Repository) CreateOffer(ctx context.Context, o domain.Offer) error {
	_, err := r.exec(ctx, "insert offer", `
		INSERT INTO exchanges(`+offerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.OfferedItemID, o.OfferedItemName, o.WantedItemID, o.WantedItemName,
		o.SenderID, o.SenderName, o.ReceiverID, o.ReceiverName, o.Message, string(o.Status),
		ts(o.CreatedAt), ts(o.UpdatedAt), nullableTS(o.PropagatedAt))
	return err
}

// GetOffer returns offer.
func (r *Repository) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	row := r.queryRow(ctx, `SELECT `+offerColumns+` FROM exchanges WHERE id = ?`, id)
	offer, err := scanOffer(row)
	if err != nil {
		return domain.Offer{}, storeErr("get offer", err)
	}
	return offer, nil
}

// TransitionOffer moves an offer from -> to only while it is still in from.
func (r *Repository) TransitionOffer(ctx context.Context, id string, from, to domain.OfferStatus, at time.Time, propagatedAt *time.Time) error {
	res, err := r.exec(ctx, "transition offer", `
		UPDATE exchanges
		SET status = ?, updated_at = ?, propagated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), ts(at), nullableTS(propagatedAt), id, string(from))
	if err != nil {
		return err
	}
	if err := translateNoRows(res); errors.Is(err, app.ErrNotFound) {
		return r.conflictOrMissing(ctx, "exchanges", id)
	} else if err != nil {
		return err
	}
	return nil
}

// MarkOfferPropagated records that the offer's item writes completed.
func (r *Repository) MarkOfferPropagated(ctx context.Context, id string, at time.Time) error {
	res, err := r.exec(ctx, "mark offer propagated", `UPDATE exchanges SET propagated_at = ? WHERE id = ?`, ts(at), id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// FindPendingOffer returns the newest pending offer for the item pair.
func (r *Repository) FindPendingOffer(ctx context.Context, offeredItemID, wantedItemID string) (domain.Offer, error) {
	row := r.queryRow(ctx, `
		SELECT `+offerColumns+`
		FROM exchanges
		WHERE offered_item_id = ? AND wanted_item_id = ? AND status = ?
		ORDER BY created_at DESC, `+r.insertOrder()+` DESC
		LIMIT 1
	`, offeredItemID, wantedItemID, string(domain.OfferStatusPending))
	offer, err := scanOffer(row)
	if err != nil {
		return domain.Offer{}, storeErr("find pending offer", err)
	}
	return offer, nil
}

// ListOffersBySender lists offers sent by senderID, newest first.
func (r *Repository) ListOffersBySender(ctx context.Context, senderID string) ([]domain.Offer, error) {
	return r.listOffers(ctx, `WHERE sender_id = ?`, senderID)
}

// ListOffersByReceiver lists offers received by receiverID, newest first.
func (r *Repository) ListOffersByReceiver(ctx context.Context, receiverID string) ([]domain.Offer, error) {
	return r.listOffers(ctx, `WHERE receiver_id = ?`, receiverID)
}

// ListPendingOffersForItem lists pending offers on either side of itemID.
func (r *Repository) ListPendingOffersForItem(ctx context.Context, itemID string) ([]domain.Offer, error) {
	return r.listOffers(ctx, `WHERE status = ? AND (offered_item_id = ? OR wanted_item_id = ?)`,
		string(domain.OfferStatusPending), itemID, itemID)
}

// ListUnpropagatedOffers lists terminal offers whose item writes are outstanding.
func (r *Repository) ListUnpropagatedOffers(ctx context.Context) ([]domain.Offer, error) {
	return r.listOffers(ctx, `WHERE status <> ? AND propagated_at IS NULL`, string(domain.OfferStatusPending))
}

// listOffers runs one filtered offer listing.
func (r *Repository) listOffers(ctx context.Context, where string, args ...any) ([]domain.Offer, error) {
	rows, err := r.query(ctx, "list offers", `
		SELECT `+offerColumns+`
		FROM exchanges
		`+where+`
		ORDER BY created_at DESC, `+r.insertOrder()+` DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Offer{}
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, storeErr("scan offer", err)
		}
		out = append(out, offer)
	}
	return out, storeErr("list offers", rows.Err())
}

// scanOffer handles scan offer.
func scanOffer(s scanner) (domain.Offer, error) {
	var (
		o          domain.Offer
		status     string
		createdRaw string
		updatedRaw string
		propagated sql.NullString
	)
	if err := s.Scan(
		&o.ID, &o.OfferedItemID, &o.OfferedItemName, &o.WantedItemID, &o.WantedItemName,
		&o.SenderID, &o.SenderName, &o.ReceiverID, &o.ReceiverName, &o.Message, &status,
		&createdRaw, &updatedRaw, &propagated,
	); err != nil {
		return domain.Offer{}, err
	}
	o.Status = domain.OfferStatus(status)
	o.CreatedAt = parseTS(createdRaw)
	o.UpdatedAt = parseTS(updatedRaw)
	o.PropagatedAt = parseNullTS(propagated)
	return o, nil
}
