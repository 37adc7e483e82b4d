package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanschultz/barter/internal/domain"
)

// Collection names used when reporting offending records.
const (
	CollectionItems     = "items"
	CollectionExchanges = "exchanges"
	CollectionProfiles  = "profiles"
)

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidOfferedItem = errors.New("invalid offered item")
	ErrInvalidWantedItem  = errors.New("invalid wanted item")
	ErrDuplicateOffer     = errors.New("duplicate offer")
	ErrInvalidTransition  = domain.ErrInvalidTransition
	ErrItemReferenced     = errors.New("item referenced by pending offer")
	ErrStatusConflict     = errors.New("status changed concurrently")
	ErrPartialCommit      = errors.New("partial commit")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

// RecordError reports a failure tied to one stored record.
type RecordError struct {
	Kind       error
	Collection string
	ID         string
	Err        error
}

// Error implements error.
func (e *RecordError) Error() string {
	msg := fmt.Sprintf("%v: %s/%s", e.Kind, e.Collection, e.ID)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the taxonomy kind and any underlying cause.
func (e *RecordError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// recordErr builds one RecordError.
func recordErr(kind error, collection, id string) error {
	return &RecordError{Kind: kind, Collection: collection, ID: id}
}

// ItemWrite is the outcome of one dependent item write.
type ItemWrite struct {
	ItemID string
	Status domain.ItemStatus
	// Skipped is set when a guarded write found the item exchanged or gone,
	// or when reconciliation found the item deleted.
	Skipped bool
	Err     error
}

// Failed reports whether the write needs to be retried.
func (w ItemWrite) Failed() bool {
	return w.Err != nil
}

// PartialCommitError reports an offer whose status committed while item writes did not.
// Retrying the failed writes (or ReconcileOffer) is safe; retrying the whole transition is not.
type PartialCommitError struct {
	OfferID string
	Status  domain.OfferStatus
	Writes  []ItemWrite
}

// Failed returns the writes that still need to be issued.
func (e *PartialCommitError) Failed() []ItemWrite {
	out := make([]ItemWrite, 0, len(e.Writes))
	for _, w := range e.Writes {
		if w.Failed() {
			out = append(out, w)
		}
	}
	return out
}

// Error implements error.
func (e *PartialCommitError) Error() string {
	failed := e.Failed()
	parts := make([]string, 0, len(failed))
	for _, w := range failed {
		parts = append(parts, fmt.Sprintf("item %s -> %s: %v", w.ItemID, w.Status, w.Err))
	}
	return fmt.Sprintf("%v: offer %s is %s but %d of %d item writes failed (%s)",
		ErrPartialCommit, e.OfferID, e.Status, len(failed), len(e.Writes), strings.Join(parts, "; "))
}

// Unwrap exposes ErrPartialCommit and every failed write cause.
func (e *PartialCommitError) Unwrap() []error {
	out := []error{ErrPartialCommit}
	for _, w := range e.Failed() {
		out = append(out, w.Err)
	}
	return out
}
