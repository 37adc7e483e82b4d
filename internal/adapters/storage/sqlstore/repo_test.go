package sqlstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/domain"
)

func TestRepository_SQLiteFile(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "barter.db")
	repo, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	exerciseRepository(t, repo)
	exerciseInsertionOrderTies(t, repo)

	// Reopening keeps data and re-runs migrations.
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	reopened, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	if _, err := reopened.GetItem(ctx, "a"); err != nil {
		t.Fatalf("GetItem() after reopen error = %v", err)
	}
}

func TestRepository_InMemoryIsolated(t *testing.T) {
	ctx := context.Background()
	first, err := OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	second, err := OpenInMemory(ctx)
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	item := mustItem(t, "a", "u1", "Bike", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	if err := first.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if _, err := second.GetItem(ctx, item.ID); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected isolated databases, got %v", err)
	}
	exerciseRepository(t, second)
	exerciseInsertionOrderTies(t, second)
}

func TestRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("BARTER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BARTER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	repo, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	for _, table := range []string{"items", "exchanges", "profiles"} {
		if _, err := repo.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
	exerciseRepository(t, repo)
	exerciseInsertionOrderTies(t, repo)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mysql"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := OpenSQLite(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
	if _, err := OpenPostgres(context.Background(), ""); err == nil {
		t.Fatal("expected empty dsn error")
	}
}

func TestRebind(t *testing.T) {
	pg := &Repository{dialect: DialectPostgres}
	got := pg.rebind(`UPDATE items SET status = ? WHERE id = ? AND status IN (?, ?)`)
	want := `UPDATE items SET status = $1 WHERE id = $2 AND status IN ($3, $4)`
	if got != want {
		t.Fatalf("rebind() = %q, want %q", got, want)
	}
	lite := &Repository{dialect: DialectSQLite}
	if got := lite.rebind(`id = ?`); got != `id = ?` {
		t.Fatalf("sqlite rebind changed query: %q", got)
	}
	if placeholders(3) != "?, ?, ?" || placeholders(0) != "" {
		t.Fatalf("unexpected placeholders %q", placeholders(3))
	}
}

func TestTimestampsSortLexically(t *testing.T) {
	early := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	later := early.Add(500 * time.Millisecond)
	if ts(early) >= ts(later) {
		t.Fatalf("expected %q < %q", ts(early), ts(later))
	}
	if !parseTS(ts(later)).Equal(later) {
		t.Fatalf("timestamp did not survive encoding: %v", parseTS(ts(later)))
	}
}

func mustItem(t *testing.T, id, owner, title string, now time.Time) domain.Item {
	t.Helper()
	item, err := domain.NewItem(domain.ItemInput{ID: id, Title: title, OwnerID: owner, OwnerName: owner + "-name"}, now)
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	return item
}

// exerciseInsertionOrderTies checks that equal created_at values list the later insert first,
// whatever the ids.
func exerciseInsertionOrderTies(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	// Inserted in descending id order so id order and insertion order disagree.
	ids := []string{"tie-z", "tie-m", "tie-a"}
	for _, id := range ids {
		if err := repo.CreateItem(ctx, mustItem(t, id, "tie-owner", id, at)); err != nil {
			t.Fatalf("CreateItem(%s) error = %v", id, err)
		}
	}
	owned, err := repo.ListItemsByOwner(ctx, "tie-owner")
	if err != nil {
		t.Fatalf("ListItemsByOwner() error = %v", err)
	}
	if len(owned) != 3 || owned[0].ID != "tie-a" || owned[1].ID != "tie-m" || owned[2].ID != "tie-z" {
		t.Fatalf("unexpected tie order %#v", owned)
	}

	wanted := mustItem(t, "tie-wanted", "tie-receiver", "Lamp", at)
	if err := repo.CreateItem(ctx, wanted); err != nil {
		t.Fatalf("CreateItem(wanted) error = %v", err)
	}
	sender := domain.Actor{ID: "tie-owner", DisplayName: "Tie"}
	for _, pair := range [][2]string{{"tie-o2", "tie-z"}, {"tie-o1", "tie-m"}} {
		offered, err := repo.GetItem(ctx, pair[1])
		if err != nil {
			t.Fatalf("GetItem(%s) error = %v", pair[1], err)
		}
		offer, err := domain.NewOffer(pair[0], sender, offered, wanted, "", at)
		if err != nil {
			t.Fatalf("NewOffer(%s) error = %v", pair[0], err)
		}
		if err := repo.CreateOffer(ctx, offer); err != nil {
			t.Fatalf("CreateOffer(%s) error = %v", pair[0], err)
		}
	}
	sent, err := repo.ListOffersBySender(ctx, "tie-owner")
	if err != nil {
		t.Fatalf("ListOffersBySender() error = %v", err)
	}
	if len(sent) != 2 || sent[0].ID != "tie-o1" || sent[1].ID != "tie-o2" {
		t.Fatalf("unexpected offer tie order %#v", sent)
	}
}

// exerciseRepository runs the store contract shared by every backend.
func exerciseRepository(t *testing.T, repo *Repository) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a := mustItem(t, "a", "u1", "Bike", base)
	b := mustItem(t, "b", "u2", "Lamp", base.Add(time.Second))
	c := mustItem(t, "c", "u1", "Chair", base.Add(2*time.Second))
	for _, item := range []domain.Item{a, b, c} {
		if err := repo.CreateItem(ctx, item); err != nil {
			t.Fatalf("CreateItem(%s) error = %v", item.ID, err)
		}
	}

	loaded, err := repo.GetItem(ctx, "a")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if loaded.Title != "Bike" || loaded.OwnerName != "u1-name" || !loaded.CreatedAt.Equal(base) {
		t.Fatalf("unexpected item %#v", loaded)
	}
	if _, err := repo.GetItem(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	available, err := repo.ListItemsByStatus(ctx, domain.ItemStatusAvailable)
	if err != nil {
		t.Fatalf("ListItemsByStatus() error = %v", err)
	}
	if len(available) != 3 || available[0].ID != "c" || available[2].ID != "a" {
		t.Fatalf("unexpected available order %#v", available)
	}
	owned, err := repo.ListItemsByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListItemsByOwner() error = %v", err)
	}
	if len(owned) != 2 || owned[0].ID != "c" || owned[1].ID != "a" {
		t.Fatalf("unexpected owned items %#v", owned)
	}

	loaded.Description = "red"
	loaded.UpdatedAt = base.Add(time.Minute)
	if err := repo.UpdateItem(ctx, loaded); err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	if err := repo.UpdateItem(ctx, domain.Item{ID: "missing"}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Guarded status writes.
	at := base.Add(2 * time.Minute)
	if err := repo.SetItemStatus(ctx, "b", domain.ItemStatusExchanged, at); err != nil {
		t.Fatalf("SetItemStatus() error = %v", err)
	}
	err = repo.SetItemStatus(ctx, "b", domain.ItemStatusAvailable, at, domain.ItemStatusAvailable)
	if !errors.Is(err, app.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	err = repo.SetItemStatus(ctx, "missing", domain.ItemStatusAvailable, at, domain.ItemStatusAvailable)
	if !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.SetItemStatus(ctx, "missing", domain.ItemStatusExchanged, at); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	exchanged, err := repo.GetItem(ctx, "b")
	if err != nil {
		t.Fatalf("GetItem() error = %v", err)
	}
	if exchanged.Status != domain.ItemStatusExchanged || !exchanged.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected exchanged item %#v", exchanged)
	}
	if err := repo.SetItemStatus(ctx, "b", domain.ItemStatusAvailable, at); err != nil {
		t.Fatalf("SetItemStatus() reset error = %v", err)
	}

	// Offers.
	first, err := domain.NewOffer("o1", domain.Actor{ID: "u1", DisplayName: "Ann"}, a, b, "hi", base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("NewOffer() error = %v", err)
	}
	second, err := domain.NewOffer("o2", domain.Actor{ID: "u1", DisplayName: "Ann"}, c, b, "", base.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("NewOffer() error = %v", err)
	}
	for _, offer := range []domain.Offer{first, second} {
		if err := repo.CreateOffer(ctx, offer); err != nil {
			t.Fatalf("CreateOffer(%s) error = %v", offer.ID, err)
		}
	}

	gotOffer, err := repo.GetOffer(ctx, "o1")
	if err != nil {
		t.Fatalf("GetOffer() error = %v", err)
	}
	if gotOffer.SenderName != "Ann" || gotOffer.ReceiverID != "u2" || gotOffer.PropagatedAt == nil || gotOffer.Message != "hi" {
		t.Fatalf("unexpected offer %#v", gotOffer)
	}
	if _, err := repo.GetOffer(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	pending, err := repo.FindPendingOffer(ctx, "a", "b")
	if err != nil || pending.ID != "o1" {
		t.Fatalf("FindPendingOffer() = %#v, %v", pending, err)
	}
	if _, err := repo.FindPendingOffer(ctx, "b", "a"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for reversed pair, got %v", err)
	}

	sent, err := repo.ListOffersBySender(ctx, "u1")
	if err != nil {
		t.Fatalf("ListOffersBySender() error = %v", err)
	}
	if len(sent) != 2 || sent[0].ID != "o2" || sent[1].ID != "o1" {
		t.Fatalf("unexpected sent offers %#v", sent)
	}
	received, err := repo.ListOffersByReceiver(ctx, "u2")
	if err != nil || len(received) != 2 {
		t.Fatalf("ListOffersByReceiver() = %#v, %v", received, err)
	}
	none, err := repo.ListOffersByReceiver(ctx, "u1")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no received offers for u1, got %#v, %v", none, err)
	}
	forB, err := repo.ListPendingOffersForItem(ctx, "b")
	if err != nil || len(forB) != 2 {
		t.Fatalf("ListPendingOffersForItem(b) = %#v, %v", forB, err)
	}
	forA, err := repo.ListPendingOffersForItem(ctx, "a")
	if err != nil || len(forA) != 1 || forA[0].ID != "o1" {
		t.Fatalf("ListPendingOffersForItem(a) = %#v, %v", forA, err)
	}

	// Conditional transitions.
	moved := base.Add(5 * time.Minute)
	if err := repo.TransitionOffer(ctx, "o1", domain.OfferStatusPending, domain.OfferStatusAccepted, moved, nil); err != nil {
		t.Fatalf("TransitionOffer() error = %v", err)
	}
	err = repo.TransitionOffer(ctx, "o1", domain.OfferStatusPending, domain.OfferStatusRejected, moved, nil)
	if !errors.Is(err, app.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	err = repo.TransitionOffer(ctx, "missing", domain.OfferStatusPending, domain.OfferStatusRejected, moved, nil)
	if !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	unpropagated, err := repo.ListUnpropagatedOffers(ctx)
	if err != nil || len(unpropagated) != 1 || unpropagated[0].ID != "o1" {
		t.Fatalf("ListUnpropagatedOffers() = %#v, %v", unpropagated, err)
	}
	accepted, err := repo.GetOffer(ctx, "o1")
	if err != nil {
		t.Fatalf("GetOffer() error = %v", err)
	}
	if accepted.Status != domain.OfferStatusAccepted || accepted.PropagatedAt != nil || !accepted.UpdatedAt.Equal(moved) {
		t.Fatalf("unexpected accepted offer %#v", accepted)
	}
	if err := repo.MarkOfferPropagated(ctx, "o1", moved); err != nil {
		t.Fatalf("MarkOfferPropagated() error = %v", err)
	}
	if err := repo.MarkOfferPropagated(ctx, "missing", moved); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	unpropagated, err = repo.ListUnpropagatedOffers(ctx)
	if err != nil || len(unpropagated) != 0 {
		t.Fatalf("expected no unpropagated offers, got %#v, %v", unpropagated, err)
	}
	if _, err := repo.FindPendingOffer(ctx, "a", "b"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected no pending offer after accept, got %v", err)
	}

	// Profiles.
	profile, err := domain.NewProfile(domain.Actor{ID: "u1", Email: "ann@example.com", DisplayName: "Ann"}, base)
	if err != nil {
		t.Fatalf("NewProfile() error = %v", err)
	}
	if err := repo.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile() error = %v", err)
	}
	if err := profile.Rename("annie", base.Add(time.Hour)); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if err := repo.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile() update error = %v", err)
	}
	storedProfile, err := repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if storedProfile.Username != "annie" || storedProfile.Email != "ann@example.com" || !storedProfile.CreatedAt.Equal(base) {
		t.Fatalf("unexpected profile %#v", storedProfile)
	}
	if _, err := repo.GetProfile(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.DeleteItem(ctx, "c"); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}
	if err := repo.DeleteItem(ctx, "c"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestStoreErrClassification(t *testing.T) {
	if err := storeErr("op", errors.New("connection refused")); !errors.Is(err, app.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := storeErr("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := storeErr("op", app.ErrStatusConflict); !errors.Is(err, app.ErrStatusConflict) || errors.Is(err, app.ErrStoreUnavailable) {
		t.Fatalf("unexpected classification %v", err)
	}
}
