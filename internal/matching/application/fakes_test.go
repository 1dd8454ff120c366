package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	catalogdomain "orderops/internal/catalog/domain"
	"orderops/internal/matching/domain"
	ordersdomain "orderops/internal/orders/domain"
)

// memRuleStore implémente RuleStore en mémoire
type memRuleStore struct {
	mu          sync.Mutex
	rules       []*domain.MappingRule
	nextID      int64
	snapshotErr error
	upsertErr   error
	clock       time.Time
}

func newMemRuleStore() *memRuleStore {
	return &memRuleStore{clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memRuleStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memRuleStore) Upsert(ctx context.Context, rule *domain.MappingRule) (*domain.MappingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	now := m.tick()
	for i, r := range m.rules {
		if r.Kind() == rule.Kind() && r.RawIdentifier() == rule.RawIdentifier() {
			m.rules[i] = domain.RehydrateMappingRule(r.ID(), r.Kind(), r.RawIdentifier(), rule.CanonicalKey(), rule.KitID(), r.CreatedAt(), now)
			return m.rules[i], nil
		}
	}
	m.nextID++
	saved := domain.RehydrateMappingRule(domain.RuleID(m.nextID), rule.Kind(), rule.RawIdentifier(), rule.CanonicalKey(), rule.KitID(), now, now)
	m.rules = append(m.rules, saved)
	return saved, nil
}

func (m *memRuleStore) Create(ctx context.Context, rule *domain.MappingRule) (*domain.MappingRule, error) {
	m.mu.Lock()
	for _, r := range m.rules {
		if r.Kind() == rule.Kind() && r.RawIdentifier() == rule.RawIdentifier() {
			m.mu.Unlock()
			return nil, domain.ErrRuleExists
		}
	}
	m.mu.Unlock()
	return m.Upsert(ctx, rule)
}

func (m *memRuleStore) UpdateKit(ctx context.Context, id domain.RuleID, kit catalogdomain.KitID) (*domain.MappingRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID() == id {
			m.rules[i] = domain.RehydrateMappingRule(r.ID(), r.Kind(), r.RawIdentifier(), r.CanonicalKey(), kit, r.CreatedAt(), m.tick())
			return m.rules[i], nil
		}
	}
	return nil, domain.ErrRuleNotFound
}

func (m *memRuleStore) Delete(ctx context.Context, id domain.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rules {
		if r.ID() == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return domain.ErrRuleNotFound
}

func (m *memRuleStore) List(ctx context.Context, page, limit int, search string) ([]*domain.MappingRule, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.MappingRule(nil), m.rules...), len(m.rules), nil
}

func (m *memRuleStore) Snapshot(ctx context.Context) (*domain.RuleSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return domain.NewRuleSet(m.rules), nil
}

type lineRecord struct {
	in     ordersdomain.OrderLineInput
	kit    catalogdomain.KitID
	status ordersdomain.ProcessStatus
}

// memLineStore implémente LineStore avec la sémantique d'écriture conditionnelle
type memLineStore struct {
	mu        sync.Mutex
	records   map[ordersdomain.LineID]*lineRecord
	nextID    int64
	writes    int
	updateErr error
	findErr   error
	// beforeUpdate simule une écriture concurrente
	beforeUpdate func(id ordersdomain.LineID)
}

func newMemLineStore() *memLineStore {
	return &memLineStore{records: make(map[ordersdomain.LineID]*lineRecord)}
}

func (m *memLineStore) seed(in ordersdomain.OrderLineInput, status ordersdomain.ProcessStatus, kit catalogdomain.KitID) ordersdomain.LineID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := ordersdomain.LineID(m.nextID)
	m.records[id] = &lineRecord{in: in, kit: kit, status: status}
	return id
}

func (m *memLineStore) get(id ordersdomain.LineID) lineRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *memLineStore) Insert(ctx context.Context, line *ordersdomain.OrderLine) (ordersdomain.LineID, error) {
	in := ordersdomain.OrderLineInput{
		SiteOrderNo:       line.SiteOrderNo(),
		Platform:          line.Platform(),
		ProductName:       line.ProductName(),
		OptionText:        line.OptionText(),
		SiteProductCode:   line.SiteProductCode(),
		MasterProductCode: line.MasterProductCode(),
		Quantity:          line.Quantity().Value(),
		PaidAt:            line.PaidAt(),
	}
	return m.seed(in, line.Status(), line.MatchedKit()), nil
}

func (m *memLineStore) FindPending(ctx context.Context, afterID ordersdomain.LineID, limit int) (ordersdomain.LinePage, error) {
	var page ordersdomain.LinePage
	if err := ctx.Err(); err != nil {
		return page, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return page, m.findErr
	}
	var ids []ordersdomain.LineID
	for id, r := range m.records {
		if id > afterID && (r.status.NeedsProcessing() || !r.status.Valid()) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		r := m.records[id]
		page.Rows++
		page.LastID = id
		line, err := ordersdomain.RehydrateOrderLine(id, r.in, r.kit, r.status)
		if err != nil {
			page.Defects = append(page.Defects, ordersdomain.LineDefect{ID: id, Reason: err.Error()})
			continue
		}
		page.Lines = append(page.Lines, line)
	}
	return page, nil
}

func (m *memLineStore) UpdateResolution(ctx context.Context, id ordersdomain.LineID, kit catalogdomain.KitID,
	status, expected ordersdomain.ProcessStatus) (bool, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return false, m.updateErr
	}
	r, ok := m.records[id]
	if !ok || r.status != expected {
		return false, nil
	}
	r.kit, r.status = kit, status
	m.writes++
	return true, nil
}

func (m *memLineStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type stubCatalog struct {
	known map[catalogdomain.KitID]bool
	err   error
}

func (c stubCatalog) KitExists(ctx context.Context, id catalogdomain.KitID) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.known[id], nil
}

var errStoreDown = errors.New("store unavailable")
