// Package memory is the in-process backend. It keeps everything in maps
// guarded by one mutex and publishes a fresh project snapshot after every
// write.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"treso/internal/core"
	"treso/internal/feed"
	"treso/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	// pubMu is held from a write to the delivery of its snapshot so
	// subscribers see snapshots in write order.
	pubMu      sync.Mutex
	mu         sync.Mutex
	hub        *feed.Hub
	now        func() time.Time
	orgs       map[string]core.Organization
	projects   map[string]core.Project
	categories map[string][]core.BudgetCategory // by project, insertion order
	txs        map[string][]core.Transaction    // by project, insertion order
	syncedAt   time.Time
}

// New returns an empty store. hub may be nil when nobody listens.
func New(hub *feed.Hub) *Store {
	return &Store{
		hub:        hub,
		now:        time.Now,
		orgs:       make(map[string]core.Organization),
		projects:   make(map[string]core.Project),
		categories: make(map[string][]core.BudgetCategory),
		txs:        make(map[string][]core.Transaction),
	}
}

// Seed creates org and project when they are missing. It is how the
// development server starts with something to show.
func (s *Store) Seed(ctx context.Context, org core.Organization, p core.Project) error {
	if _, err := s.GetOrganization(ctx, org.ID); err != nil {
		if err := s.CreateOrganization(ctx, org); err != nil {
			return err
		}
	}
	if _, err := s.GetProject(ctx, org.ID, p.ID); err == nil {
		return nil
	}
	p.OrganizationID = org.ID
	return s.CreateProject(ctx, p)
}

func (s *Store) CreateOrganization(_ context.Context, org core.Organization) error {
	if org.ID == "" {
		return fmt.Errorf("organization id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[org.ID] = org
	return nil
}

func (s *Store) GetOrganization(_ context.Context, orgID string) (core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return core.Organization{}, fmt.Errorf("organization %s: %w", orgID, ports.ErrNotFound)
	}
	return org, nil
}

func (s *Store) CreateProject(_ context.Context, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	if _, ok := s.orgs[p.OrganizationID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("organization %s: %w", p.OrganizationID, ports.ErrNotFound)
	}
	if _, dup := s.projects[p.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("project %s already exists", p.ID)
	}
	s.projects[p.ID] = p
	for _, t := range core.DefaultCategories() {
		s.categories[p.ID] = append(s.categories[p.ID], t.NewCategory(p.ID))
	}
	snap := s.snapshotLocked(p.ID)
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func (s *Store) GetProject(_ context.Context, orgID, projectID string) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectLocked(orgID, projectID)
}

func (s *Store) ListProjects(_ context.Context, orgID string) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[orgID]; !ok {
		return nil, fmt.Errorf("organization %s: %w", orgID, ports.ErrNotFound)
	}
	var out []core.Project
	for _, p := range s.projects {
		if p.OrganizationID == orgID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	if _, err := s.projectLocked(tx.OrganizationID, tx.ProjectID); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.indexLocked(tx.ProjectID, tx.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	s.txs[tx.ProjectID] = append(s.txs[tx.ProjectID], tx)
	snap := s.snapshotLocked(tx.ProjectID)
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	if _, err := s.projectLocked(tx.OrganizationID, tx.ProjectID); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(tx.ProjectID, tx.ID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("transaction %s: %w", tx.ID, ports.ErrNotFound)
	}
	s.txs[tx.ProjectID][i] = tx
	snap := s.snapshotLocked(tx.ProjectID)
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, orgID, projectID, id string) error {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	if _, err := s.projectLocked(orgID, projectID); err != nil {
		s.mu.Unlock()
		return err
	}
	i := s.indexLocked(projectID, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	list := s.txs[projectID]
	s.txs[projectID] = append(list[:i:i], list[i+1:]...)
	snap := s.snapshotLocked(projectID)
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, orgID, projectID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.projectLocked(orgID, projectID); err != nil {
		return nil, err
	}
	return append([]core.Transaction(nil), s.txs[projectID]...), nil
}

func (s *Store) GetTransaction(_ context.Context, orgID, projectID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.projectLocked(orgID, projectID); err != nil {
		return core.Transaction{}, err
	}
	i := s.indexLocked(projectID, id)
	if i < 0 {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, ports.ErrNotFound)
	}
	return s.txs[projectID][i], nil
}

func (s *Store) ListCategories(_ context.Context, orgID, projectID string) ([]core.BudgetCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.projectLocked(orgID, projectID); err != nil {
		return nil, err
	}
	return append([]core.BudgetCategory(nil), s.categories[projectID]...), nil
}

// UpsertCategories replaces categories with the same id and appends the
// others. Categories of unknown projects are rejected as a whole.
func (s *Store) UpsertCategories(_ context.Context, categories []core.BudgetCategory) error {
	for _, c := range categories {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("category %q: %w", c.Name, err)
		}
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	for _, c := range categories {
		if _, ok := s.projects[c.ProjectID]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("project %s: %w", c.ProjectID, ports.ErrNotFound)
		}
	}
	touched := make(map[string]bool)
	for _, c := range categories {
		list := s.categories[c.ProjectID]
		replaced := false
		for i := range list {
			if list[i].ID == c.ID {
				list[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, c)
		}
		s.categories[c.ProjectID] = list
		touched[c.ProjectID] = true
	}
	s.syncedAt = s.now()
	snaps := make([]ports.Snapshot, 0, len(touched))
	for id := range touched {
		snaps = append(snaps, s.snapshotLocked(id))
	}
	s.mu.Unlock()

	for _, snap := range snaps {
		s.publish(snap)
	}
	return nil
}

func (s *Store) UpdateCategory(_ context.Context, orgID string, c core.BudgetCategory) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("category %q: %w", c.Name, err)
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	if _, err := s.projectLocked(orgID, c.ProjectID); err != nil {
		s.mu.Unlock()
		return err
	}
	list := s.categories[c.ProjectID]
	i := 0
	for i < len(list) && list[i].ID != c.ID {
		i++
	}
	if i == len(list) {
		s.mu.Unlock()
		return fmt.Errorf("category %s: %w", c.ID, ports.ErrNotFound)
	}
	list[i] = c
	snap := s.snapshotLocked(c.ProjectID)
	s.mu.Unlock()

	s.publish(snap)
	return nil
}

func (s *Store) CategoriesSyncedAt(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncedAt, nil
}

func (s *Store) projectLocked(orgID, projectID string) (core.Project, error) {
	p, ok := s.projects[projectID]
	if !ok || p.OrganizationID != orgID {
		return core.Project{}, fmt.Errorf("project %s/%s: %w", orgID, projectID, ports.ErrNotFound)
	}
	return p, nil
}

func (s *Store) indexLocked(projectID, id string) int {
	for i, tx := range s.txs[projectID] {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked(projectID string) ports.Snapshot {
	return ports.Snapshot{
		OrganizationID: s.projects[projectID].OrganizationID,
		ProjectID:      projectID,
		Transactions:   append([]core.Transaction(nil), s.txs[projectID]...),
		Categories:     append([]core.BudgetCategory(nil), s.categories[projectID]...),
		TakenAt:        s.now(),
	}
}

func (s *Store) publish(snap ports.Snapshot) {
	if s.hub != nil {
		s.hub.Publish(snap)
	}
}
