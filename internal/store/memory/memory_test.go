package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"treso/internal/core"
	"treso/internal/feed"
	"treso/internal/ports"
)

func seeded(t *testing.T, hub *feed.Hub) *Store {
	t.Helper()
	s := New(hub)
	org := core.Organization{ID: "org1", Name: "Les Amis du Quartier", Currency: "EUR"}
	p := core.Project{
		ID: "p1", Name: "Fête de quartier", FiscalYear: 2025,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	if err := s.Seed(context.Background(), org, p); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func sampleTx(id string) core.Transaction {
	return core.Transaction{
		ID:              id,
		OrganizationID:  "org1",
		ProjectID:       "p1",
		Type:            core.Expense,
		Amount:          core.Money{Cents: 12000},
		Description:     "Location de tables",
		CategoryID:      core.CategoryID("p1", "Location mobilière"),
		Certainty:       core.Confirmed,
		TransactionDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Counterparty:    core.Counterparty{Name: "Mairie"},
	}
}

func TestSeedCreatesDefaultCategories(t *testing.T) {
	s := seeded(t, nil)
	cats, err := s.ListCategories(context.Background(), "org1", "p1")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(cats) != len(core.DefaultCategories()) {
		t.Fatalf("got %d categories, want %d", len(cats), len(core.DefaultCategories()))
	}
	// Seeding twice is harmless.
	if err := s.Seed(context.Background(), core.Organization{ID: "org1"}, core.Project{ID: "p1"}); err != nil {
		t.Fatalf("second seed: %v", err)
	}
}

func TestTransactionLifecyclePublishesSnapshots(t *testing.T) {
	hub := feed.NewHub()
	s := seeded(t, hub)
	ctx := context.Background()

	var snaps []ports.Snapshot
	unsub := hub.Subscribe("p1", func(snap ports.Snapshot) { snaps = append(snaps, snap) })
	defer unsub()

	if err := s.CreateTransaction(ctx, sampleTx("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateTransaction(ctx, sampleTx("t2")); err != nil {
		t.Fatalf("create: %v", err)
	}
	upd := sampleTx("t1")
	upd.Amount = core.Money{Cents: 500}
	if err := s.UpdateTransaction(ctx, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.DeleteTransaction(ctx, "org1", "p1", "t2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(snaps) != 4 {
		t.Fatalf("got %d snapshots, want 4", len(snaps))
	}
	last := snaps[3]
	if len(last.Transactions) != 1 || last.Transactions[0].Amount.Cents != 500 {
		t.Fatalf("unexpected final snapshot: %+v", last.Transactions)
	}
	if last.OrganizationID != "org1" || len(last.Categories) == 0 {
		t.Fatalf("snapshot must be complete: %+v", last)
	}
	// earlier snapshots are not affected by later writes
	if len(snaps[1].Transactions) != 2 || snaps[1].Transactions[0].Amount.Cents != 12000 {
		t.Fatalf("snapshot was mutated: %+v", snaps[1].Transactions)
	}
}

func TestScopingAndNotFound(t *testing.T) {
	s := seeded(t, nil)
	ctx := context.Background()

	if _, err := s.ListTransactions(ctx, "other-org", "p1"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound for foreign org, got %v", err)
	}
	if _, err := s.GetTransaction(ctx, "org1", "p1", "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.UpdateTransaction(ctx, sampleTx("nope")); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound on update, got %v", err)
	}
	if err := s.DeleteTransaction(ctx, "org1", "p1", "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound on delete, got %v", err)
	}
	tx := sampleTx("t1")
	tx.OrganizationID = "org2"
	if err := s.CreateTransaction(ctx, tx); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound on create in foreign org, got %v", err)
	}
	if err := s.CreateTransaction(ctx, sampleTx("t1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateTransaction(ctx, sampleTx("t1")); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestCreateTransactionValidates(t *testing.T) {
	s := seeded(t, nil)
	tx := sampleTx("t1")
	tx.Amount = core.Money{}
	if err := s.CreateTransaction(context.Background(), tx); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("want ErrInvalidAmount, got %v", err)
	}
}

func TestUpsertCategories(t *testing.T) {
	s := seeded(t, nil)
	ctx := context.Background()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if at, _ := s.CategoriesSyncedAt(ctx); !at.IsZero() {
		t.Fatalf("expected zero sync time before import, got %v", at)
	}

	receptions := core.BudgetCategory{
		ID: core.CategoryID("p1", "Réceptions"), ProjectID: "p1", Name: "Réceptions",
		Type: core.Expense, BudgetedAmount: core.Money{Cents: 100000},
	}
	extra := core.BudgetCategory{
		ID: core.CategoryID("p1", "Buvette"), ProjectID: "p1", Name: "Buvette",
		Type: core.Revenue, BudgetedAmount: core.Money{Cents: 50000},
	}
	if err := s.UpsertCategories(ctx, []core.BudgetCategory{receptions, extra}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cats, _ := s.ListCategories(ctx, "org1", "p1")
	if len(cats) != len(core.DefaultCategories())+1 {
		t.Fatalf("got %d categories", len(cats))
	}
	for _, c := range cats {
		if c.ID == receptions.ID && c.BudgetedAmount.Cents != 100000 {
			t.Fatalf("seeded category not updated: %+v", c)
		}
	}
	if at, _ := s.CategoriesSyncedAt(ctx); !at.Equal(fixed) {
		t.Fatalf("sync time = %v, want %v", at, fixed)
	}

	unknown := extra
	unknown.ProjectID = "ghost"
	if err := s.UpsertCategories(ctx, []core.BudgetCategory{unknown}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListProjectsSortedByName(t *testing.T) {
	s := seeded(t, nil)
	ctx := context.Background()
	p := core.Project{
		ID: "p0", OrganizationID: "org1", Name: "Assemblée générale", FiscalYear: 2025,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	ps, err := s.ListProjects(ctx, "org1")
	if err != nil || len(ps) != 2 || ps[0].ID != "p0" {
		t.Fatalf("unexpected projects %+v err=%v", ps, err)
	}
}

func TestUpdateCategory(t *testing.T) {
	hub := feed.NewHub()
	s := seeded(t, hub)
	ctx := context.Background()

	var snaps []ports.Snapshot
	defer hub.Subscribe("p1", func(snap ports.Snapshot) { snaps = append(snaps, snap) })()

	c := core.DefaultExpenseCategories[2].NewCategory("p1")
	c.BudgetedAmount = core.Money{Cents: 60000}
	if err := s.UpdateCategory(ctx, "org1", c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(snaps))
	}
	cats, _ := s.ListCategories(ctx, "org1", "p1")
	if len(cats) != len(core.DefaultCategories()) {
		t.Fatalf("update must not add categories, got %d", len(cats))
	}
	for _, got := range cats {
		if got.ID == c.ID && got.BudgetedAmount.Cents != 60000 {
			t.Fatalf("budget not updated: %+v", got)
		}
	}
	if at, _ := s.CategoriesSyncedAt(ctx); !at.IsZero() {
		t.Fatalf("manual edit recorded an import time: %v", at)
	}

	tests := []struct {
		name string
		org  string
		mod  func(*core.BudgetCategory)
		want error
	}{
		{"unknown category", "org1", func(c *core.BudgetCategory) { c.ID = "nope" }, ports.ErrNotFound},
		{"foreign organization", "org2", func(*core.BudgetCategory) {}, ports.ErrNotFound},
		{"negative budget", "org1", func(c *core.BudgetCategory) { c.BudgetedAmount = core.Money{Cents: -5} }, core.ErrNegativeBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := c
			tt.mod(&bad)
			if err := s.UpdateCategory(ctx, tt.org, bad); !errors.Is(err, tt.want) {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
		})
	}
}

func TestConcurrentWritesPublishInOrder(t *testing.T) {
	hub := feed.NewHub()
	s := seeded(t, hub)

	var counts []int
	defer hub.Subscribe("p1", func(snap ports.Snapshot) { counts = append(counts, len(snap.Transactions)) })()

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.CreateTransaction(context.Background(), sampleTx(fmt.Sprintf("t%d", i))); err != nil {
				t.Errorf("create: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(counts) != writers {
		t.Fatalf("got %d snapshots, want %d", len(counts), writers)
	}
	for i, n := range counts {
		if n != i+1 {
			t.Fatalf("snapshot %d carries %d transactions, want %d", i, n, i+1)
		}
	}
}
