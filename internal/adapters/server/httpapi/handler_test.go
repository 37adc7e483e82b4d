package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/evanschultz/barter/internal/adapters/identity"
	"github.com/evanschultz/barter/internal/adapters/server/common"
	"github.com/evanschultz/barter/internal/adapters/storage/sqlstore"
	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/domain"
	"github.com/google/uuid"
)

// apiClient issues requests against one handler as a fixed actor.
type apiClient struct {
	t       *testing.T
	handler http.Handler
	actorID string
	name    string
}

func (c apiClient) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if c.actorID != "" {
		req.Header.Set(identity.HeaderActorID, c.actorID)
		req.Header.Set(identity.HeaderActorName, c.name)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

// decodeRecorder decodes one JSON response body into the requested type.
func decodeRecorder[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v (body %q)", err, rec.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func expectErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code common.ErrorCode) ErrorEnvelope {
	t.Helper()
	expectStatus(t, rec, status)
	env := decodeRecorder[ErrorEnvelope](t, rec)
	if env.Error.Code != string(code) {
		t.Fatalf("error code = %q, want %q", env.Error.Code, code)
	}
	return env
}

// newTestHandler wires the handler over an in-memory store with header identity enabled.
func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	repo, err := sqlstore.OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	provider, err := identity.NewProvider(identity.Config{Secret: "test", AllowHeaderIdentity: true})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	svc := app.NewService(repo, uuid.NewString, nil, app.ServiceConfig{})
	return NewHandler(common.NewAppServiceAdapter(svc), provider)
}

// TestHandlerTradeLifecycle walks a full create, offer, accept flow over REST.
func TestHandlerTradeLifecycle(t *testing.T) {
	handler := newTestHandler(t)
	ann := apiClient{t: t, handler: handler, actorID: "u1", name: "Ann"}
	bo := apiClient{t: t, handler: handler, actorID: "u2", name: "Bo"}
	anon := apiClient{t: t, handler: handler}

	expectErrorCode(t, anon.do(http.MethodPost, "/items", `{"title":"Bike"}`), http.StatusUnauthorized, common.CodeUnauthenticated)

	rec := ann.do(http.MethodPost, "/items", `{"title":"Bike","description":"red"}`)
	expectStatus(t, rec, http.StatusCreated)
	bike := decodeRecorder[common.ItemView](t, rec)
	if bike.OwnerName != "Ann" || bike.Status != "available" {
		t.Fatalf("unexpected item %#v", bike)
	}
	rec = bo.do(http.MethodPost, "/items", `{"title":"Lamp"}`)
	expectStatus(t, rec, http.StatusCreated)
	lamp := decodeRecorder[common.ItemView](t, rec)

	rec = anon.do(http.MethodGet, "/items", "")
	expectStatus(t, rec, http.StatusOK)
	listed := decodeRecorder[map[string][]common.ItemView](t, rec)
	if len(listed["items"]) != 2 || listed["items"][0].ID != lamp.ID {
		t.Fatalf("unexpected catalogue %#v", listed)
	}

	expectErrorCode(t, ann.do(http.MethodPost, "/offers", fmt.Sprintf(`{"offered_item_id":%q,"wanted_item_id":%q}`, lamp.ID, bike.ID)),
		http.StatusBadRequest, common.CodeInvalidOfferedItem)

	rec = ann.do(http.MethodPost, "/offers", fmt.Sprintf(`{"offered_item_id":%q,"wanted_item_id":%q,"message":"swap?"}`, bike.ID, lamp.ID))
	expectStatus(t, rec, http.StatusCreated)
	offer := decodeRecorder[common.OfferView](t, rec)
	if offer.ReceiverID != "u2" || offer.Status != "pending" {
		t.Fatalf("unexpected offer %#v", offer)
	}
	env := expectErrorCode(t, ann.do(http.MethodPost, "/offers", fmt.Sprintf(`{"offered_item_id":%q,"wanted_item_id":%q}`, bike.ID, lamp.ID)),
		http.StatusConflict, common.CodeDuplicateOffer)
	if env.Error.Context["id"] != offer.ID {
		t.Fatalf("expected duplicate context to name %s, got %#v", offer.ID, env.Error.Context)
	}

	rec = bo.do(http.MethodGet, "/me/offers/received", "")
	expectStatus(t, rec, http.StatusOK)
	received := decodeRecorder[map[string][]common.OfferView](t, rec)
	if len(received["offers"]) != 1 {
		t.Fatalf("unexpected received offers %#v", received)
	}

	expectErrorCode(t, ann.do(http.MethodPost, "/offers/"+offer.ID+"/accept", ""), http.StatusForbidden, common.CodeUnauthorized)
	expectErrorCode(t, bo.do(http.MethodDelete, "/items/"+lamp.ID, ""), http.StatusConflict, common.CodeItemReferenced)

	rec = bo.do(http.MethodPost, "/offers/"+offer.ID+"/accept", "")
	expectStatus(t, rec, http.StatusOK)
	accepted := decodeRecorder[common.OfferView](t, rec)
	if accepted.Status != "accepted" || accepted.PropagationPending {
		t.Fatalf("unexpected accepted offer %#v", accepted)
	}
	expectErrorCode(t, bo.do(http.MethodPost, "/offers/"+offer.ID+"/reject", ""), http.StatusConflict, common.CodeInvalidTransition)

	rec = anon.do(http.MethodGet, "/items/"+bike.ID, "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeRecorder[common.ItemView](t, rec); got.Status != "exchanged" {
		t.Fatalf("expected exchanged item, got %#v", got)
	}
	expectErrorCode(t, ann.do(http.MethodPatch, "/items/"+bike.ID, `{"title":"x"}`), http.StatusConflict, common.CodeItemExchanged)

	rec = ann.do(http.MethodPost, "/offers/"+offer.ID+"/reconcile", "")
	expectStatus(t, rec, http.StatusOK)
	rec = ann.do(http.MethodGet, "/offers/"+offer.ID, "")
	expectStatus(t, rec, http.StatusOK)
}

// TestHandlerItemAndProfileEdits covers item patch/delete and profile routes.
func TestHandlerItemAndProfileEdits(t *testing.T) {
	handler := newTestHandler(t)
	ann := apiClient{t: t, handler: handler, actorID: "u1", name: "Ann"}
	bo := apiClient{t: t, handler: handler, actorID: "u2", name: "Bo"}

	rec := ann.do(http.MethodPost, "/items", `{"title":"Bike"}`)
	expectStatus(t, rec, http.StatusCreated)
	bike := decodeRecorder[common.ItemView](t, rec)

	expectErrorCode(t, ann.do(http.MethodPatch, "/items/"+bike.ID, `{}`), http.StatusBadRequest, common.CodeInvalidRequest)
	expectErrorCode(t, ann.do(http.MethodPatch, "/items/"+bike.ID, `{"owner_id":"u2"}`), http.StatusBadRequest, common.CodeInvalidRequest)
	expectErrorCode(t, bo.do(http.MethodPatch, "/items/"+bike.ID, `{"title":"Mine"}`), http.StatusForbidden, common.CodeUnauthorized)

	rec = ann.do(http.MethodPatch, "/items/"+bike.ID, `{"description":"blue"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeRecorder[common.ItemView](t, rec); got.Description != "blue" || got.Title != "Bike" {
		t.Fatalf("unexpected patched item %#v", got)
	}

	rec = ann.do(http.MethodGet, "/me/items", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeRecorder[map[string][]common.ItemView](t, rec); len(got["items"]) != 1 {
		t.Fatalf("unexpected owned items %#v", got)
	}

	expectStatus(t, ann.do(http.MethodDelete, "/items/"+bike.ID, ""), http.StatusNoContent)
	expectErrorCode(t, ann.do(http.MethodGet, "/items/"+bike.ID, ""), http.StatusNotFound, common.CodeNotFound)

	rec = ann.do(http.MethodGet, "/me/profile", "")
	expectStatus(t, rec, http.StatusOK)
	if got := decodeRecorder[common.ProfileView](t, rec); got.Username != "Ann" {
		t.Fatalf("unexpected profile %#v", got)
	}
	rec = ann.do(http.MethodPatch, "/me/profile", `{"username":"annie"}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeRecorder[common.ProfileView](t, rec); got.Username != "annie" {
		t.Fatalf("unexpected renamed profile %#v", got)
	}
	expectErrorCode(t, ann.do(http.MethodPatch, "/me/profile", `{"username":" "}`), http.StatusBadRequest, common.CodeInvalidRequest)
}

// TestHandlerRouting covers unknown routes and method checks.
func TestHandlerRouting(t *testing.T) {
	handler := newTestHandler(t)
	ann := apiClient{t: t, handler: handler, actorID: "u1", name: "Ann"}

	cases := []struct {
		method string
		path   string
		status int
		allow  string
	}{
		{http.MethodGet, "/nope", http.StatusNotFound, ""},
		{http.MethodGet, "/offers/o1/explode", http.StatusNotFound, ""},
		{http.MethodGet, "/me/offers/lost", http.StatusNotFound, ""},
		{http.MethodPut, "/items", http.StatusMethodNotAllowed, "GET, POST"},
		{http.MethodPost, "/items/x", http.StatusMethodNotAllowed, "GET, PATCH, DELETE"},
		{http.MethodGet, "/offers", http.StatusMethodNotAllowed, "POST"},
		{http.MethodGet, "/offers/o1/accept", http.StatusMethodNotAllowed, "POST"},
		{http.MethodPost, "/me/profile", http.StatusMethodNotAllowed, "GET, PATCH"},
	}
	for _, tc := range cases {
		rec := ann.do(tc.method, tc.path, "")
		expectStatus(t, rec, tc.status)
		if tc.allow != "" && rec.Header().Get("Allow") != tc.allow {
			t.Fatalf("%s %s Allow = %q, want %q", tc.method, tc.path, rec.Header().Get("Allow"), tc.allow)
		}
	}

	expectErrorCode(t, ann.do(http.MethodPost, "/items", `{"title":"a"} {"title":"b"}`), http.StatusBadRequest, common.CodeInvalidRequest)
}

// stubService fails offer transitions with a fixed error and committed view.
type stubService struct {
	common.MarketplaceService
	offer common.OfferView
	err   error
}

func (s stubService) AcceptOffer(context.Context, domain.Actor, string) (common.OfferView, error) {
	return s.offer, s.err
}

func (s stubService) ListAvailableItems(context.Context) ([]common.ItemView, error) {
	return nil, s.err
}

// TestHandlerPartialCommitResponse verifies partial commits surface the committed offer and failed writes.
func TestHandlerPartialCommitResponse(t *testing.T) {
	partial := &app.PartialCommitError{
		OfferID: "o1",
		Status:  domain.OfferStatusAccepted,
		Writes: []app.ItemWrite{
			{ItemID: "a", Status: domain.ItemStatusExchanged},
			{ItemID: "b", Status: domain.ItemStatusExchanged, Err: fmt.Errorf("%w: timeout", app.ErrStoreUnavailable)},
		},
	}
	handler := NewHandler(stubService{
		offer: common.OfferView{ID: "o1", Status: "accepted", PropagationPending: true},
		err:   fmt.Errorf("accept offer: %w", partial),
	}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/offers/o1/accept", nil))
	env := expectErrorCode(t, rec, http.StatusInternalServerError, common.CodePartialCommit)
	if env.Error.Hint == "" {
		t.Fatal("expected reconcile hint")
	}
	offer, ok := env.Error.Context["offer"].(map[string]any)
	if !ok || offer["status"] != "accepted" || offer["propagation_pending"] != true {
		t.Fatalf("unexpected offer context %#v", env.Error.Context)
	}
	writes, ok := env.Error.Context["writes"].([]any)
	if !ok || len(writes) != 2 {
		t.Fatalf("unexpected writes context %#v", env.Error.Context)
	}
}

// TestHandlerStoreUnavailable verifies transport failures map to 503.
func TestHandlerStoreUnavailable(t *testing.T) {
	handler := NewHandler(stubService{err: fmt.Errorf("list items: %w", app.ErrStoreUnavailable)}, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))
	expectErrorCode(t, rec, http.StatusServiceUnavailable, common.CodeStoreUnavailable)

	rec = httptest.NewRecorder()
	NewHandler(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil))
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

// TestHandlerRejectsBadBearerToken verifies invalid credentials fail before reaching the service.
func TestHandlerRejectsBadBearerToken(t *testing.T) {
	handler := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/me/items", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	expectErrorCode(t, rec, http.StatusUnauthorized, common.CodeUnauthenticated)
}
