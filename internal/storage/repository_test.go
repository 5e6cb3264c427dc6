package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"treso/internal/core"
	"treso/internal/feed"
	"treso/internal/ports"
)

func newTestRepo(t *testing.T, hub *feed.Hub) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "treso.db"), hub)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	if err := repo.CreateOrganization(ctx, core.Organization{ID: "org1", Name: "Les Amis", BudgetAlertThreshold: 75}); err != nil {
		t.Fatalf("create org: %v", err)
	}
	err = repo.CreateProject(ctx, core.Project{
		ID: "p1", OrganizationID: "org1", Name: "Festival", FiscalYear: 2025,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return repo
}

func sampleTx(id string, cents int64) core.Transaction {
	return core.Transaction{
		ID:              id,
		OrganizationID:  "org1",
		ProjectID:       "p1",
		Type:            core.Revenue,
		Amount:          core.Money{Cents: cents},
		Description:     "Subvention municipale",
		CategoryID:      core.CategoryID("p1", "Subventions d'exploitation - Commune"),
		Status:          core.RevenueVerbalPromise,
		Certainty:       core.Probable,
		TransactionDate: time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
		DueDate:         time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC),
		Counterparty:    core.Counterparty{Name: "Mairie", Type: "grant", Email: "asso@mairie.fr"},
		Tags:            []string{"subvention", "2025"},
		VATRate:         0,
		CreatedAt:       time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treso.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestProjectSeededWithDefaultCategories(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	cats, err := repo.ListCategories(ctx, "org1", "p1")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(cats) != len(core.DefaultCategories()) {
		t.Fatalf("got %d categories, want %d", len(cats), len(core.DefaultCategories()))
	}
	if cats[0].Name != core.DefaultCategories()[0].Name {
		t.Fatalf("categories should keep seeding order, first = %q", cats[0].Name)
	}

	org, err := repo.GetOrganization(ctx, "org1")
	if err != nil || org.BudgetAlertThreshold != 75 || org.Currency != "EUR" {
		t.Fatalf("unexpected org %+v err=%v", org, err)
	}
	p, err := repo.GetProject(ctx, "org1", "p1")
	if err != nil || p.Status != "draft" || p.EndDate.Month() != time.December {
		t.Fatalf("unexpected project %+v err=%v", p, err)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	hub := feed.NewHub()
	repo := newTestRepo(t, hub)
	ctx := context.Background()

	var last ports.Snapshot
	snaps := 0
	hub.Subscribe("p1", func(s ports.Snapshot) { last = s; snaps++ })

	in := sampleTx("t1", 250000)
	if err := repo.CreateTransaction(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateTransaction(ctx, sampleTx("t2", 1000)); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "org1", "p1", "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != in.Amount || got.Certainty != in.Certainty || got.Status != in.Status {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.TransactionDate.Equal(in.TransactionDate) || !got.DueDate.Equal(in.DueDate) || !got.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("dates mismatch: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "subvention" || got.Counterparty.Email != "asso@mairie.fr" {
		t.Fatalf("details mismatch: %+v", got)
	}

	upd := in
	upd.Certainty = core.Confirmed
	upd.Status = core.RevenueReceived
	if err := repo.UpdateTransaction(ctx, upd); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.DeleteTransaction(ctx, "org1", "p1", "t2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	list, err := repo.ListTransactions(ctx, "org1", "p1")
	if err != nil || len(list) != 1 || list[0].Certainty != core.Confirmed {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	if snaps != 4 || len(last.Transactions) != 1 || len(last.Categories) == 0 {
		t.Fatalf("snapshots = %d, last = %+v", snaps, last)
	}
}

func TestNotFoundAndScoping(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()

	if _, err := repo.GetProject(ctx, "org2", "p1"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := repo.ListTransactions(ctx, "org2", "p1"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := repo.UpdateTransaction(ctx, sampleTx("missing", 10)); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := repo.DeleteTransaction(ctx, "org1", "p1", "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := repo.GetTransaction(ctx, "org1", "p1", "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	bad := sampleTx("t1", 0)
	if err := repo.CreateTransaction(ctx, bad); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("want ErrInvalidAmount, got %v", err)
	}
}

func TestUpsertCategoriesRecordsSyncTime(t *testing.T) {
	repo := newTestRepo(t, nil)
	ctx := context.Background()
	fixed := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	at, err := repo.CategoriesSyncedAt(ctx)
	if err != nil || !at.IsZero() {
		t.Fatalf("expected zero sync time, got %v err=%v", at, err)
	}

	c := core.BudgetCategory{
		ID: core.CategoryID("p1", "Réceptions"), ProjectID: "p1", Name: "Réceptions",
		Type: core.Expense, AccountingCode: "6257", BudgetedAmount: core.Money{Cents: 80000},
	}
	if err := repo.UpsertCategories(ctx, []core.BudgetCategory{c}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	cats, _ := repo.ListCategories(ctx, "org1", "p1")
	if len(cats) != len(core.DefaultCategories()) {
		t.Fatalf("upsert of a seeded name must not add a row, got %d", len(cats))
	}
	found := false
	for _, got := range cats {
		if got.ID == c.ID {
			found = got.BudgetedAmount.Cents == 80000
		}
	}
	if !found {
		t.Fatalf("budget not updated")
	}
	at, err = repo.CategoriesSyncedAt(ctx)
	if err != nil || !at.Equal(fixed) {
		t.Fatalf("sync time = %v err=%v", at, err)
	}

	c.ProjectID = "ghost"
	c.ID = core.CategoryID("ghost", c.Name)
	if err := repo.UpsertCategories(ctx, []core.BudgetCategory{c}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateCategoryKeepsSyncTime(t *testing.T) {
	hub := feed.NewHub()
	repo := newTestRepo(t, hub)
	ctx := context.Background()

	var got []ports.Snapshot
	unsubscribe := hub.Subscribe("p1", func(s ports.Snapshot) { got = append(got, s) })
	defer unsubscribe()

	c := core.BudgetCategory{
		ID: core.CategoryID("p1", "Réceptions"), ProjectID: "p1", Name: "Réceptions",
		Type: core.Expense, AccountingCode: "6257", BudgetedAmount: core.Money{Cents: 45000},
	}
	if err := repo.UpdateCategory(ctx, "org1", c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(got))
	}
	for _, cat := range got[0].Categories {
		if cat.ID == c.ID && cat.BudgetedAmount.Cents != 45000 {
			t.Fatalf("snapshot budget=%d", cat.BudgetedAmount.Cents)
		}
	}
	if at, _ := repo.CategoriesSyncedAt(ctx); !at.IsZero() {
		t.Fatalf("manual edit recorded an import time: %v", at)
	}

	unknown := c
	unknown.ID = "nope"
	if err := repo.UpdateCategory(ctx, "org1", unknown); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("unknown category err=%v", err)
	}
	if err := repo.UpdateCategory(ctx, "other", c); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("foreign organization err=%v", err)
	}
	c.BudgetedAmount = core.Money{Cents: -1}
	if err := repo.UpdateCategory(ctx, "org1", c); !errors.Is(err, core.ErrNegativeBudget) {
		t.Fatalf("negative budget err=%v", err)
	}
}
