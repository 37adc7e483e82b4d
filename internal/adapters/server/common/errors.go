package common

import (
	"errors"

	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/domain"
)

// ErrorCode is the stable, transport-visible failure class.
type ErrorCode string

// Error codes shared by HTTP and MCP responses.
const (
	CodeUnauthenticated    ErrorCode = "unauthenticated"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeNotFound           ErrorCode = "not_found"
	CodeInvalidRequest     ErrorCode = "invalid_request"
	CodeInvalidOfferedItem ErrorCode = "invalid_offered_item"
	CodeInvalidWantedItem  ErrorCode = "invalid_wanted_item"
	CodeDuplicateOffer     ErrorCode = "duplicate_offer"
	CodeInvalidTransition  ErrorCode = "invalid_transition"
	CodeItemExchanged      ErrorCode = "item_exchanged"
	CodeItemReferenced     ErrorCode = "item_referenced"
	CodeStatusConflict     ErrorCode = "status_conflict"
	CodePartialCommit      ErrorCode = "partial_commit"
	CodeStoreUnavailable   ErrorCode = "store_unavailable"
	CodeInternal           ErrorCode = "internal_error"
)

// Classify maps an app or adapter error to its transport code.
// Partial commits are checked first since they wrap the failing write causes.
func Classify(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, app.ErrPartialCommit):
		return CodePartialCommit
	case errors.Is(err, app.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, app.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, app.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, app.ErrInvalidOfferedItem):
		return CodeInvalidOfferedItem
	case errors.Is(err, app.ErrInvalidWantedItem):
		return CodeInvalidWantedItem
	case errors.Is(err, app.ErrDuplicateOffer):
		return CodeDuplicateOffer
	case errors.Is(err, app.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, domain.ErrItemExchanged):
		return CodeItemExchanged
	case errors.Is(err, app.ErrItemReferenced):
		return CodeItemReferenced
	case errors.Is(err, app.ErrStatusConflict):
		return CodeStatusConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrEmptyPatch),
		errors.Is(err, domain.ErrSelfOffer):
		return CodeInvalidRequest
	case errors.Is(err, app.ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}

// ErrorContext extracts the offending records carried by err, if any.
func ErrorContext(err error) map[string]any {
	var partial *app.PartialCommitError
	if errors.As(err, &partial) {
		writes := make([]ItemWriteView, 0, len(partial.Writes))
		for _, w := range partial.Writes {
			view := ItemWriteView{ItemID: w.ItemID, Status: string(w.Status), Skipped: w.Skipped}
			if w.Err != nil {
				view.Error = w.Err.Error()
			}
			writes = append(writes, view)
		}
		return map[string]any{
			"offer_id": partial.OfferID,
			"status":   string(partial.Status),
			"writes":   writes,
		}
	}
	var rec *app.RecordError
	if errors.As(err, &rec) {
		return map[string]any{
			"collection": rec.Collection,
			"id":         rec.ID,
		}
	}
	return nil
}

// ErrorHint suggests a follow-up for codes that have one.
func ErrorHint(code ErrorCode) string {
	switch code {
	case CodePartialCommit:
		return "The offer status is committed. Reconcile the offer to finish the item updates; do not repeat the transition."
	case CodeStoreUnavailable:
		return "Retry with backoff."
	case CodeUnauthenticated:
		return "Send a bearer token."
	default:
		return ""
	}
}
