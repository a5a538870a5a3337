//go:build integration

package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/portsidehq/portside/internal/testutil"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func testSub(id, accountID string, events ...EventType) *Subscription {
	return &Subscription{
		ID:        id,
		AccountID: accountID,
		URL:       "https://hooks.example.com/" + id,
		Secret:    "whsec_" + id,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now().Truncate(time.Microsecond),
	}
}

func TestPostgresWebhooks_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sub := testSub("wh_pg001", "vnd_pg001", EventTierRequestCreated, EventTierRequestApproved)

	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "wh_pg001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.AccountID != "vnd_pg001" {
		t.Errorf("AccountID: got %s, want vnd_pg001", got.AccountID)
	}
	if got.Secret != sub.Secret {
		t.Errorf("Secret: got %s, want %s", got.Secret, sub.Secret)
	}
	if len(got.Events) != 2 {
		t.Fatalf("Events: got %d, want 2", len(got.Events))
	}
	if got.Events[0] != EventTierRequestCreated {
		t.Errorf("Events[0]: got %s, want %s", got.Events[0], EventTierRequestCreated)
	}
	if !got.Active {
		t.Error("subscription should be active")
	}
	if got.LastSuccess != nil || got.LastError != "" || got.ConsecutiveFailures != 0 {
		t.Error("delivery state should start empty")
	}
}

func TestPostgresWebhooks_GetByAccount(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Create(ctx, testSub("wh_pg002", "vnd_pg002", EventVendorUpdated)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testSub("wh_pg003", "vnd_pg002", EventVendorPublished)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testSub("wh_pg004", "vnd_other", EventVendorUpdated)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	subs, err := store.GetByAccount(ctx, "vnd_pg002")
	if err != nil {
		t.Fatalf("GetByAccount failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d subscriptions, want 2", len(subs))
	}
	for _, s := range subs {
		if s.AccountID != "vnd_pg002" {
			t.Errorf("subscription %s belongs to %s", s.ID, s.AccountID)
		}
	}
}

func TestPostgresWebhooks_GetByEventFiltersInactive(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Create(ctx, testSub("wh_pg005", "vnd_a", EventTierRequestApproved)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	inactive := testSub("wh_pg006", "vnd_b", EventTierRequestApproved)
	inactive.Active = false
	if err := store.Create(ctx, inactive); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testSub("wh_pg007", "vnd_c", EventVendorUpdated)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	subs, err := store.GetByEvent(ctx, EventTierRequestApproved)
	if err != nil {
		t.Fatalf("GetByEvent failed: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("got %d subscriptions, want 1", len(subs))
	}
	if subs[0].ID != "wh_pg005" {
		t.Errorf("got %s, want wh_pg005", subs[0].ID)
	}
}

func TestPostgresWebhooks_UpdateDeliveryState(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	sub := testSub("wh_pg008", "vnd_pg008", EventTierRequestCancelled)
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now := time.Now().Truncate(time.Microsecond)
	sub.Active = false
	sub.LastSuccess = &now
	sub.LastError = "status 500"
	sub.ConsecutiveFailures = 3
	if err := store.Update(ctx, sub); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, "wh_pg008")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Active {
		t.Error("subscription should be disabled")
	}
	if got.LastSuccess == nil || !got.LastSuccess.Equal(now) {
		t.Errorf("LastSuccess: got %v, want %v", got.LastSuccess, now)
	}
	if got.LastError != "status 500" {
		t.Errorf("LastError: got %q", got.LastError)
	}
	if got.ConsecutiveFailures != 3 {
		t.Errorf("ConsecutiveFailures: got %d, want 3", got.ConsecutiveFailures)
	}
}

func TestPostgresWebhooks_Delete(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := store.Create(ctx, testSub("wh_pg009", "vnd_pg009", EventVendorPublished)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Delete(ctx, "wh_pg009"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "wh_pg009"); err == nil {
		t.Error("expected error getting deleted subscription")
	}
}
