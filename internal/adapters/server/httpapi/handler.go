// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/evanschultz/barter/internal/adapters/server/common"
	"github.com/evanschultz/barter/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.MarketplaceService
	actors  common.ActorResolver
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(service common.MarketplaceService, actors common.ActorResolver) *Handler {
	return &Handler{
		service: service,
		actors:  actors,
	}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "marketplace service is not configured",
		})
		return
	}
	parts := splitPath(r.URL.Path)
	switch {
	case len(parts) == 1 && parts[0] == "items":
		switch r.Method {
		case http.MethodGet:
			h.handleListAvailableItems(w, r)
		case http.MethodPost:
			h.handleCreateItem(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[0] == "items":
		switch r.Method {
		case http.MethodGet:
			h.handleGetItem(w, r, parts[1])
		case http.MethodPatch:
			h.handleUpdateItem(w, r, parts[1])
		case http.MethodDelete:
			h.handleDeleteItem(w, r, parts[1])
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case len(parts) == 1 && parts[0] == "offers":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleCreateOffer(w, r)
	case len(parts) == 2 && parts[0] == "offers":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetOffer(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "offers":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleOfferAction(w, r, parts[1], parts[2])
	case len(parts) == 2 && parts[0] == "me" && parts[1] == "items":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListMyItems(w, r)
	case len(parts) == 3 && parts[0] == "me" && parts[1] == "offers":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListMyOffers(w, r, parts[2])
	case len(parts) == 2 && parts[0] == "me" && parts[1] == "profile":
		switch r.Method {
		case http.MethodGet:
			h.handleGetProfile(w, r)
		case http.MethodPatch:
			h.handleUpdateProfile(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleListAvailableItems serves GET `/items`.
func (h *Handler) handleListAvailableItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListAvailableItems(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleCreateItem serves POST `/items`.
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req common.CreateItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), actor, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleGetItem serves GET `/items/{id}`.
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request, itemID string) {
	item, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleUpdateItem serves PATCH `/items/{id}`.
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request, itemID string) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req common.UpdateItemRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ItemID = itemID
	item, err := h.service.UpdateItem(r.Context(), actor, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteItem serves DELETE `/items/{id}`.
func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request, itemID string) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteItem(r.Context(), actor, itemID); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListMyItems serves GET `/me/items`.
func (h *Handler) handleListMyItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListMyItems(r.Context(), actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleListMyOffers serves GET `/me/offers/{sent|received}`.
func (h *Handler) handleListMyOffers(w http.ResponseWriter, r *http.Request, direction string) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var (
		offers []common.OfferView
		err    error
	)
	switch direction {
	case "sent":
		offers, err = h.service.ListSentOffers(r.Context(), actor)
	case "received":
		offers, err = h.service.ListReceivedOffers(r.Context(), actor)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

// handleCreateOffer serves POST `/offers`.
func (h *Handler) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req common.CreateOfferRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	offer, err := h.service.CreateOffer(r.Context(), actor, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// handleGetOffer serves GET `/offers/{id}`.
func (h *Handler) handleGetOffer(w http.ResponseWriter, r *http.Request, offerID string) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	offer, err := h.service.GetOffer(r.Context(), actor, offerID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// handleOfferAction serves POST `/offers/{id}/{accept|reject|cancel|reconcile}`.
func (h *Handler) handleOfferAction(w http.ResponseWriter, r *http.Request, offerID, action string) {
	var run func(context.Context, domain.Actor, string) (common.OfferView, error)
	switch action {
	case "accept":
		run = h.service.AcceptOffer
	case "reject":
		run = h.service.RejectOffer
	case "cancel":
		run = h.service.CancelOffer
	case "reconcile":
		run = h.service.ReconcileOffer
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	offer, err := run(r.Context(), actor, offerID)
	if err != nil {
		apiErr, status := apiErrorFrom(err)
		if offer.ID != "" {
			if apiErr.Context == nil {
				apiErr.Context = map[string]any{}
			}
			apiErr.Context["offer"] = offer
		}
		writeJSONError(w, status, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// handleGetProfile serves GET `/me/profile`.
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(r.Context(), actor)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleUpdateProfile serves PATCH `/me/profile`.
func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.resolveActor(w, r)
	if !ok {
		return
	}
	var req common.UpdateProfileRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	profile, err := h.service.UpdateProfile(r.Context(), actor, req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// resolveActor reads the request actor and writes a 401 when credentials are invalid.
// Anonymous requests pass through; the service decides whether an actor is required.
func (h *Handler) resolveActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	if h.actors == nil {
		return domain.Actor{}, true
	}
	actor, err := h.actors.ResolveRequest(r)
	if err != nil {
		writeErrorFrom(w, err)
		return domain.Actor{}, false
	}
	return actor, true
}

// splitPath canonicalizes one request path into route segments.
func splitPath(path string) []string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil
		}
	}
	return parts
}

// statusByCode maps common error codes to HTTP statuses.
var statusByCode = map[common.ErrorCode]int{
	common.CodeUnauthenticated:    http.StatusUnauthorized,
	common.CodeUnauthorized:       http.StatusForbidden,
	common.CodeNotFound:           http.StatusNotFound,
	common.CodeInvalidRequest:     http.StatusBadRequest,
	common.CodeInvalidOfferedItem: http.StatusBadRequest,
	common.CodeInvalidWantedItem:  http.StatusBadRequest,
	common.CodeDuplicateOffer:     http.StatusConflict,
	common.CodeInvalidTransition:  http.StatusConflict,
	common.CodeItemExchanged:      http.StatusConflict,
	common.CodeItemReferenced:     http.StatusConflict,
	common.CodeStatusConflict:     http.StatusConflict,
	common.CodePartialCommit:      http.StatusInternalServerError,
	common.CodeStoreUnavailable:   http.StatusServiceUnavailable,
	common.CodeInternal:           http.StatusInternalServerError,
}

// apiErrorFrom builds the structured error and status for err.
func apiErrorFrom(err error) (APIError, int) {
	if err == nil {
		return APIError{Code: string(common.CodeInternal), Message: "unknown error"}, http.StatusInternalServerError
	}
	code := common.Classify(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return APIError{
		Code:    string(code),
		Message: err.Error(),
		Hint:    common.ErrorHint(code),
		Context: common.ErrorContext(err),
	}, status
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	apiErr, status := apiErrorFrom(err)
	writeJSONError(w, status, apiErr)
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
