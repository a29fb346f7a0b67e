package coupon

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists coupon rules keyed by normalised code.
type Repository interface {
	GetByCode(ctx context.Context, code string) (Rule, error)
	List(ctx context.Context, limit, offset int) ([]Rule, int, error)
	Create(ctx context.Context, rule Rule) (Rule, error)
	Update(ctx context.Context, rule Rule) (Rule, error)
	Delete(ctx context.Context, code string) error
	// IncrementUsage records one use of code for purchaseID. It fails with
	// ErrUsageLimitReached once the quota is spent and is a no-op when the
	// purchase was already counted.
	IncrementUsage(ctx context.Context, code, purchaseID string) error
}

// MemoryRepository is an in-process Repository used in development and tests.
type MemoryRepository struct {
	Now func() time.Time

	mu       sync.RWMutex
	rules    map[string]Rule
	redeemed map[redemption]struct{}
}

type redemption struct {
	code     string
	purchase string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rules: make(map[string]Rule)}
}

// GetByCode implements Repository.
func (m *MemoryRepository) GetByCode(_ context.Context, code string) (Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[NormalizeCode(code)]
	if !ok {
		return Rule{}, ErrNotFound
	}
	return cloneRule(rule), nil
}

// List implements Repository. Rules are ordered by code.
func (m *MemoryRepository) List(_ context.Context, limit, offset int) ([]Rule, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		all = append(all, cloneRule(rule))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	total := len(all)
	if offset >= total {
		return []Rule{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// Create implements Repository.
func (m *MemoryRepository) Create(_ context.Context, rule Rule) (Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rules == nil {
		m.rules = make(map[string]Rule)
	}
	rule.Code = NormalizeCode(rule.Code)
	if _, exists := m.rules[rule.Code]; exists {
		return Rule{}, ErrDuplicate
	}
	now := m.now()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now
	m.rules[rule.Code] = cloneRule(rule)
	return cloneRule(rule), nil
}

// Update implements Repository. Usage counters are preserved.
func (m *MemoryRepository) Update(_ context.Context, rule Rule) (Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.Code = NormalizeCode(rule.Code)
	existing, ok := m.rules[rule.Code]
	if !ok {
		return Rule{}, ErrNotFound
	}
	rule.ID = existing.ID
	rule.UsedCount = existing.UsedCount
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = m.now()
	m.rules[rule.Code] = cloneRule(rule)
	return cloneRule(rule), nil
}

// Delete implements Repository.
func (m *MemoryRepository) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = NormalizeCode(code)
	if _, ok := m.rules[code]; !ok {
		return ErrNotFound
	}
	delete(m.rules, code)
	return nil
}

// IncrementUsage implements Repository.
func (m *MemoryRepository) IncrementUsage(_ context.Context, code, purchaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code = NormalizeCode(code)
	rule, ok := m.rules[code]
	if !ok {
		return ErrNotFound
	}
	key := redemption{code: code, purchase: purchaseID}
	if purchaseID != "" {
		if _, seen := m.redeemed[key]; seen {
			return nil
		}
	}
	if rule.UsageLimit != nil && *rule.UsageLimit >= 0 && rule.UsedCount >= *rule.UsageLimit {
		return ErrUsageLimitReached
	}
	rule.UsedCount++
	m.rules[code] = rule
	if purchaseID != "" {
		if m.redeemed == nil {
			m.redeemed = make(map[redemption]struct{})
		}
		m.redeemed[key] = struct{}{}
	}
	return nil
}

func (m *MemoryRepository) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func cloneRule(r Rule) Rule {
	if r.ItemKinds != nil {
		r.ItemKinds = append(r.ItemKinds[:0:0], r.ItemKinds...)
	}
	return r
}
