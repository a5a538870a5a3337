package upgrade

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/portsidehq/portside/internal/access"
	"github.com/portsidehq/portside/internal/tier"
)

// --- mocks ---

type mockAccounts struct {
	mu          sync.Mutex
	tiers       map[string]tier.Tier
	usage       map[string]access.Usage
	failSetTier bool
	setCalls    int
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{
		tiers: make(map[string]tier.Tier),
		usage: make(map[string]access.Usage),
	}
}

func (m *mockAccounts) GetTier(_ context.Context, accountID string) (tier.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tiers[accountID]
	if !ok {
		return "", errors.New("account not found")
	}
	return t, nil
}

func (m *mockAccounts) SetTier(_ context.Context, accountID string, t tier.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failSetTier {
		return errors.New("tier update failed")
	}
	m.tiers[accountID] = t
	return nil
}

func (m *mockAccounts) GetUsage(_ context.Context, accountID string) (access.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[accountID], nil
}

type mockNotifier struct {
	mu     sync.Mutex
	events []string
}

func (m *mockNotifier) record(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockNotifier) RequestCreated(*Request)   { m.record("created") }
func (m *mockNotifier) RequestApproved(*Request)  { m.record("approved") }
func (m *mockNotifier) RequestRejected(*Request)  { m.record("rejected") }
func (m *mockNotifier) RequestCancelled(*Request) { m.record("cancelled") }

func (m *mockNotifier) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	copy(out, m.events)
	return out
}

func newTestService(accounts *mockAccounts) (*Service, *mockNotifier) {
	notifier := &mockNotifier{}
	return NewService(NewMemoryStore(), accounts, notifier), notifier
}

const validNotes = "We need the analytics suite for our Monaco office."

// --- Service.Create ---

func TestCreate_Upgrade(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, notifier := newTestService(accounts)

	r, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier2, validNotes)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if r.Status != StatusPending {
		t.Errorf("status = %s, want pending", r.Status)
	}
	if r.CurrentTier != tier.Free || r.RequestedTier != tier.Tier2 {
		t.Errorf("tiers = %s → %s, want free → tier2", r.CurrentTier, r.RequestedTier)
	}
	if r.Impact != nil {
		t.Error("upgrade request should not carry an impact report")
	}
	if !strings.HasPrefix(r.ID, "upr_") {
		t.Errorf("id = %q, want upr_ prefix", r.ID)
	}

	events := notifier.recorded()
	if len(events) != 1 || events[0] != "created" {
		t.Errorf("events = %v, want [created]", events)
	}
}

func TestCreate_NotesLengthBounds(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	_, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, "too short")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("short notes: err = %v, want ErrValidation", err)
	}

	_, err = svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, strings.Repeat("x", MaxNotesLen+1))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("long notes: err = %v, want ErrValidation", err)
	}

	// Exactly at the bounds is accepted.
	if _, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, strings.Repeat("x", MinNotesLen)); err != nil {
		t.Errorf("min length notes rejected: %v", err)
	}
}

func TestCreate_TierDirectionRules(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Tier2
	svc, _ := newTestService(accounts)

	_, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier2, validNotes)
	if !errors.Is(err, ErrSameTier) {
		t.Errorf("same tier upgrade: err = %v, want ErrSameTier", err)
	}

	_, err = svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)
	if !errors.Is(err, ErrNotAnUpgrade) {
		t.Errorf("downward upgrade: err = %v, want ErrNotAnUpgrade", err)
	}

	_, err = svc.Create(context.Background(), "acct1", TypeDowngrade, tier.Tier3, validNotes)
	if !errors.Is(err, ErrNotADowngrade) {
		t.Errorf("upward downgrade: err = %v, want ErrNotADowngrade", err)
	}
}

func TestCreate_UnknownTypeAndTier(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	_, err := svc.Create(context.Background(), "acct1", RequestType("sidegrade"), tier.Tier1, validNotes)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unknown type: err = %v, want ErrValidation", err)
	}

	_, err = svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier("platinum"), validNotes)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unknown tier: err = %v, want ErrValidation", err)
	}
}

func TestCreate_DuplicatePending(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	if _, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier2, validNotes)
	if !errors.Is(err, ErrDuplicatePending) {
		t.Errorf("err = %v, want ErrDuplicatePending", err)
	}
}

func TestCreate_PendingPerTypeIsIndependent(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Tier2
	svc, _ := newTestService(accounts)

	if _, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier3, validNotes); err != nil {
		t.Fatalf("upgrade create failed: %v", err)
	}
	if _, err := svc.Create(context.Background(), "acct1", TypeDowngrade, tier.Tier1, validNotes); err != nil {
		t.Errorf("downgrade create failed despite independent type: %v", err)
	}
}

func TestCreate_DowngradeCarriesImpactReport(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Tier2
	accounts.usage["acct1"] = access.Usage{Locations: 5}
	svc, _ := newTestService(accounts)

	r, err := svc.Create(context.Background(), "acct1", TypeDowngrade, tier.Free, validNotes)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if r.Impact == nil {
		t.Fatal("downgrade request missing impact report")
	}
	if len(r.Impact.Overages) != 1 || r.Impact.Overages[0].Kind != access.Locations {
		t.Errorf("overages = %+v, want one locations overage", r.Impact.Overages)
	}
}

func TestCreate_ConcurrentOnlyOneWins(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	const workers = 16
	var wg sync.WaitGroup
	var created, rejected int
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrDuplicatePending):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
	if rejected != workers-1 {
		t.Errorf("rejected = %d, want %d", rejected, workers-1)
	}
}

// --- Service.Approve ---

func TestApprove_MutatesAccountTier(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, notifier := newTestService(accounts)

	r, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier2, validNotes)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	approved, err := svc.Approve(context.Background(), r.ID, "admin1", "looks good")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if approved.Status != StatusApproved {
		t.Errorf("status = %s, want approved", approved.Status)
	}
	if approved.DecidedBy != "admin1" || approved.DecidedAt == nil {
		t.Errorf("decision audit missing: by=%q at=%v", approved.DecidedBy, approved.DecidedAt)
	}
	if got, _ := accounts.GetTier(context.Background(), "acct1"); got != tier.Tier2 {
		t.Errorf("account tier = %s, want tier2", got)
	}

	events := notifier.recorded()
	if len(events) != 2 || events[1] != "approved" {
		t.Errorf("events = %v, want [created approved]", events)
	}
}

func TestApprove_NotFound(t *testing.T) {
	accounts := newMockAccounts()
	svc, _ := newTestService(accounts)

	_, err := svc.Approve(context.Background(), "upr_missing", "admin1", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestApprove_TerminalStatusRejected(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	r, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)
	if _, err := svc.Approve(context.Background(), r.ID, "admin1", ""); err != nil {
		t.Fatalf("first approve failed: %v", err)
	}

	_, err := svc.Approve(context.Background(), r.ID, "admin1", "")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("second approve: err = %v, want ErrInvalidStatus", err)
	}
}

func TestApprove_RevertsWhenTierChangeFails(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	r, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)

	accounts.failSetTier = true
	if _, err := svc.Approve(context.Background(), r.ID, "admin1", ""); err == nil {
		t.Fatal("Approve should fail when the tier change fails")
	}

	// The request must still be pending and approvable once accounts recover.
	got, err := svc.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status after failed approve = %s, want pending", got.Status)
	}
	if got.DecidedAt != nil || got.DecidedBy != "" {
		t.Error("decision fields should be cleared after revert")
	}

	accounts.failSetTier = false
	if _, err := svc.Approve(context.Background(), r.ID, "admin1", ""); err != nil {
		t.Errorf("retry approve failed: %v", err)
	}
}

func TestCreate_EmptyNotesAllowed(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	r, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, "")
	if err != nil {
		t.Fatalf("create without notes failed: %v", err)
	}
	if r.VendorNotes != "" {
		t.Errorf("vendorNotes = %q, want empty", r.VendorNotes)
	}

	// Whitespace-only notes collapse to empty and are accepted too.
	accounts.tiers["acct2"] = tier.Free
	if _, err := svc.Create(context.Background(), "acct2", TypeUpgrade, tier.Tier1, "   "); err != nil {
		t.Errorf("whitespace notes rejected: %v", err)
	}
}

// getHookStore lets a test interleave a store mutation between the point a
// decision reads the request and the point it writes the transition.
type getHookStore struct {
	Store
	onGet func()
}

func (s *getHookStore) Get(ctx context.Context, id string) (*Request, error) {
	r, err := s.Store.Get(ctx, id)
	if err == nil && s.onGet != nil {
		s.onGet()
	}
	return r, err
}

func TestApprove_LosesRaceToCancel(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	store := NewMemoryStore()
	hooked := &getHookStore{Store: store}
	svc := NewService(hooked, accounts, &mockNotifier{})

	r, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier2, validNotes)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Cancel lands after the approval read its snapshot but before it
	// writes the decision.
	var once sync.Once
	hooked.onGet = func() {
		once.Do(func() {
			cur, err := store.Get(context.Background(), r.ID)
			if err != nil {
				t.Errorf("interleaved get failed: %v", err)
				return
			}
			now := time.Now()
			cur.Status = StatusCancelled
			cur.CancelledAt = &now
			cur.UpdatedAt = now
			if err := store.UpdatePending(context.Background(), cur); err != nil {
				t.Errorf("interleaved cancel failed: %v", err)
			}
		})
	}

	_, err = svc.Approve(context.Background(), r.ID, "admin1", "")
	var ise *InvalidStatusError
	if !errors.As(err, &ise) {
		t.Fatalf("stale approve: err = %v, want InvalidStatusError", err)
	}
	if ise.Actual != StatusCancelled {
		t.Errorf("conflicting status = %s, want cancelled", ise.Actual)
	}
	if !errors.Is(err, ErrInvalidStatus) {
		t.Error("InvalidStatusError must unwrap to ErrInvalidStatus")
	}

	// The losing approval must not have touched the account tier or the
	// stored request.
	if got, _ := accounts.GetTier(context.Background(), "acct1"); got != tier.Free {
		t.Errorf("account tier = %s, want unchanged free", got)
	}
	stored, _ := store.Get(context.Background(), r.ID)
	if stored.Status != StatusCancelled {
		t.Errorf("stored status = %s, want cancelled", stored.Status)
	}
}

func TestApprove_ConcurrentDecisionsOneWinner(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	r, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, conflicts int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Approve(context.Background(), r.ID, "admin1", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrInvalidStatus):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if conflicts != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
	}
	if accounts.setCalls != 1 {
		t.Errorf("SetTier called %d times, want 1", accounts.setCalls)
	}
}

// --- Service.Reject ---

func TestReject_RequiresReason(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	r, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)

	_, err := svc.Reject(context.Background(), r.ID, "admin1", "   ")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("blank reason: err = %v, want ErrValidation", err)
	}

	_, err = svc.Reject(context.Background(), r.ID, "admin1", strings.Repeat("x", MaxReasonLen+1))
	if !errors.Is(err, ErrValidation) {
		t.Errorf("oversized reason: err = %v, want ErrValidation", err)
	}
}

func TestReject_DoesNotTouchAccountTier(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, notifier := newTestService(accounts)

	r, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier3, validNotes)

	rejected, err := svc.Reject(context.Background(), r.ID, "admin1", "insufficient track record")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	if rejected.Status != StatusRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}
	if rejected.RejectionReason != "insufficient track record" {
		t.Errorf("reason = %q", rejected.RejectionReason)
	}
	if got, _ := accounts.GetTier(context.Background(), "acct1"); got != tier.Free {
		t.Errorf("account tier = %s, want unchanged free", got)
	}
	if accounts.setCalls != 0 {
		t.Errorf("SetTier called %d times on reject", accounts.setCalls)
	}

	events := notifier.recorded()
	if events[len(events)-1] != "rejected" {
		t.Errorf("events = %v, want rejected last", events)
	}
}

func TestReject_TerminalStatus(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	r, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)
	_, _ = svc.Cancel(context.Background(), r.ID, "acct1")

	_, err := svc.Reject(context.Background(), r.ID, "admin1", "late")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
}

// --- Service.Cancel ---

func TestCancel_OwnerOnly(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	r, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)

	_, err := svc.Cancel(context.Background(), r.ID, "acct2")
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign cancel: err = %v, want ErrForbidden", err)
	}

	cancelled, err := svc.Cancel(context.Background(), r.ID, "acct1")
	if err != nil {
		t.Fatalf("owner cancel failed: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("cancelled = %+v", cancelled)
	}
}

func TestCancel_FreesPendingSlot(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	r, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)
	if _, err := svc.Cancel(context.Background(), r.ID, "acct1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	if _, err := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier2, validNotes); err != nil {
		t.Errorf("create after cancel failed: %v", err)
	}
}

// --- Service.GetPending / GetMostRecent ---

func TestGetPending(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	if _, err := svc.GetPending(context.Background(), "acct1", TypeUpgrade); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty: err = %v, want ErrNotFound", err)
	}

	created, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)

	got, err := svc.GetPending(context.Background(), "acct1", TypeUpgrade)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("id = %s, want %s", got.ID, created.ID)
	}

	if _, err := svc.GetPending(context.Background(), "acct1", TypeDowngrade); !errors.Is(err, ErrNotFound) {
		t.Errorf("other type: err = %v, want ErrNotFound", err)
	}
}

func TestGetPending_DuplicatesYieldMostRecent(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now().Add(-time.Hour)

	// Seed two pending requests for one (account, type) directly, skipping
	// the create-time invariant, the way a bug or a migration could.
	older := &Request{
		ID: "upr_older", AccountID: "acct1", RequestType: TypeUpgrade,
		CurrentTier: tier.Free, RequestedTier: tier.Tier1,
		Status: StatusPending, RequestedAt: base, UpdatedAt: base,
	}
	if err := store.Create(context.Background(), older); err != nil {
		t.Fatalf("seed older failed: %v", err)
	}
	store.mu.Lock()
	newer := &Request{
		ID: "upr_newer", AccountID: "acct1", RequestType: TypeUpgrade,
		CurrentTier: tier.Free, RequestedTier: tier.Tier2,
		Status: StatusPending, RequestedAt: base.Add(30 * time.Minute), UpdatedAt: base.Add(30 * time.Minute),
	}
	store.requests[newer.ID] = newer
	store.byAccount[newer.AccountID] = append(store.byAccount[newer.AccountID], newer.ID)
	store.mu.Unlock()

	got, err := store.GetPending(context.Background(), "acct1", TypeUpgrade)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if got.ID != "upr_newer" {
		t.Errorf("id = %s, want the most recently filed upr_newer", got.ID)
	}
}

func TestGetMostRecent_IncludesTerminal(t *testing.T) {
	accounts := newMockAccounts()
	accounts.tiers["acct1"] = tier.Free
	svc, _ := newTestService(accounts)

	first, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier1, validNotes)
	_, _ = svc.Cancel(context.Background(), first.ID, "acct1")

	// Force deterministic ordering.
	time.Sleep(5 * time.Millisecond)
	second, _ := svc.Create(context.Background(), "acct1", TypeUpgrade, tier.Tier2, validNotes)
	_, _ = svc.Reject(context.Background(), second.ID, "admin1", "not yet")

	got, err := svc.GetMostRecent(context.Background(), "acct1")
	if err != nil {
		t.Fatalf("GetMostRecent failed: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("id = %s, want %s", got.ID, second.ID)
	}
	if got.Status != StatusRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
}

// --- Service.List ---

func TestList_FiltersAndPaginates(t *testing.T) {
	accounts := newMockAccounts()
	svc, _ := newTestService(accounts)

	for i, acct := range []string{"a1", "a2", "a3", "a4"} {
		accounts.tiers[acct] = tier.Free
		r, err := svc.Create(context.Background(), acct, TypeUpgrade, tier.Tier1, validNotes)
		if err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
		if acct == "a1" {
			if _, err := svc.Reject(context.Background(), r.ID, "admin1", "no"); err != nil {
				t.Fatalf("reject failed: %v", err)
			}
		}
		time.Sleep(2 * time.Millisecond)
	}

	pending, err := svc.List(context.Background(), ListQuery{Status: StatusPending, Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("pending count = %d, want 3", len(pending))
	}

	// Limit+1 rows signal another page.
	page, err := svc.List(context.Background(), ListQuery{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page) != 3 {
		t.Errorf("page rows = %d, want limit+1 = 3", len(page))
	}

	// Keyset continuation from the second item yields the older ones.
	after := page[1]
	rest, err := svc.List(context.Background(), ListQuery{
		Limit:            2,
		AfterRequestedAt: after.RequestedAt,
		AfterID:          after.ID,
	})
	if err != nil {
		t.Fatalf("List continuation failed: %v", err)
	}
	for _, r := range rest {
		if !r.RequestedAt.Before(after.RequestedAt) && r.ID >= after.ID {
			t.Errorf("continuation returned non-older row %s", r.ID)
		}
	}
}
