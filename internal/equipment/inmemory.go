package equipment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"equiptrack.io/internal/ids"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety. One mutex
// guards all state, so the pairing of a state change with its history entry
// is trivially atomic.
type InMemory struct {
	mu          sync.Mutex
	types       map[string]*EquipmentType
	equipment   map[string]*Equipment
	history     map[string][]*HistoryEntry
	assignments map[string][]*Assignment
}

func NewInMemory() *InMemory {
	return &InMemory{
		types:       make(map[string]*EquipmentType),
		equipment:   make(map[string]*Equipment),
		history:     make(map[string][]*HistoryEntry),
		assignments: make(map[string][]*Assignment),
	}
}

func (m *InMemory) CreateType(ctx context.Context, t *EquipmentType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *InMemory) FindType(ctx context.Context, companyID, id string) (*EquipmentType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[id]
	if !ok || t.CompanyID != companyID || !t.IsActive {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *InMemory) FindTypeByName(ctx context.Context, companyID, name string) (*EquipmentType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.types {
		if t.CompanyID == companyID && t.IsActive && t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *InMemory) ListTypes(ctx context.Context, companyID string) ([]*EquipmentType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*EquipmentType
	for _, t := range m.types {
		if t.CompanyID == companyID && t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *InMemory) SaveType(ctx context.Context, t *EquipmentType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.types[t.ID]
	if !ok || existing.CompanyID != t.CompanyID {
		return ErrNotFound
	}
	cp := *t
	m.types[t.ID] = &cp
	return nil
}

func (m *InMemory) CountActiveByType(ctx context.Context, companyID, typeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.equipment {
		if e.CompanyID == companyID && e.EquipmentTypeID == typeID && e.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *InMemory) DeactivateType(ctx context.Context, companyID, typeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.types[typeID]
	if !ok || t.CompanyID != companyID {
		return ErrNotFound
	}
	t.IsActive = false
	return nil
}

func (m *InMemory) CreateWithHistory(ctx context.Context, e *Equipment, h *HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ecp := *e
	hcp := *h
	m.equipment[e.ID] = &ecp
	m.history[e.ID] = append(m.history[e.ID], &hcp)
	return nil
}

func (m *InMemory) Find(ctx context.Context, companyID, id string) (*Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(companyID, id)
}

func (m *InMemory) find(companyID, id string) (*Equipment, error) {
	e, ok := m.equipment[id]
	if !ok || e.CompanyID != companyID || !e.IsActive {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *InMemory) FindBySerial(ctx context.Context, companyID, serial string) (*Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.equipment {
		if e.CompanyID == companyID && e.IsActive && e.SerialNumber == serial {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *InMemory) Update(ctx context.Context, companyID, id string, upd Update, changedBy string, now time.Time) (*Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.equipment[id]
	if !ok || current.CompanyID != companyID || !current.IsActive {
		return nil, ErrNotFound
	}

	next := applyUpdate(*current, upd)
	next.UpdatedAt = now

	if upd.CurrentStatus != nil && *upd.CurrentStatus != current.CurrentStatus {
		oldStatus := current.CurrentStatus
		oldLocation := current.Location
		m.history[id] = append(m.history[id], &HistoryEntry{
			ID:          ids.New(),
			EquipmentID: id,
			OldStatus:   &oldStatus,
			NewStatus:   next.CurrentStatus,
			OldLocation: &oldLocation,
			NewLocation: next.Location,
			ChangedBy:   changedBy,
			ChangedAt:   now,
		})
	}
	m.equipment[id] = &next
	cp := next
	return &cp, nil
}

func (m *InMemory) TransitionStatus(ctx context.Context, companyID, id string, upd StatusUpdate, changedBy string, now time.Time) (*Equipment, *HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.equipment[id]
	if !ok || current.CompanyID != companyID || !current.IsActive {
		return nil, nil, ErrNotFound
	}
	if current.CurrentStatus == upd.Status {
		return nil, nil, fmt.Errorf("%w: equipment already has status %q", ErrConflict, upd.Status)
	}

	oldStatus := current.CurrentStatus
	oldLocation := current.Location
	location := current.Location
	if upd.Location != nil && *upd.Location != "" {
		location = *upd.Location
	}

	current.CurrentStatus = upd.Status
	current.Location = location
	current.UpdatedAt = now

	h := &HistoryEntry{
		ID:          ids.New(),
		EquipmentID: id,
		OldStatus:   &oldStatus,
		NewStatus:   upd.Status,
		OldLocation: &oldLocation,
		NewLocation: location,
		ChangedBy:   changedBy,
		Notes:       upd.Notes,
		ChangedAt:   now,
	}
	m.history[id] = append(m.history[id], h)

	ecp := *current
	hcp := *h
	return &ecp, &hcp, nil
}

func (m *InMemory) History(ctx context.Context, equipmentID string, limit int) ([]*HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.history[equipmentID]
	out := make([]*HistoryEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		cp := *entries[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *InMemory) ActiveAssignments(ctx context.Context, equipmentID string) ([]*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Assignment
	for _, a := range m.assignments[equipmentID] {
		if a.ReturnedAt == nil {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *InMemory) List(ctx context.Context, companyID string, f Filter) ([]*Equipment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*Equipment
	for _, e := range m.equipment {
		if e.CompanyID != companyID || !e.IsActive {
			continue
		}
		if f.Status != "" && e.CurrentStatus != f.Status {
			continue
		}
		if f.Condition != "" && e.Condition != f.Condition {
			continue
		}
		if f.EquipmentTypeID != "" && e.EquipmentTypeID != f.EquipmentTypeID {
			continue
		}
		if f.Location != "" && !containsFold(e.Location, f.Location) {
			continue
		}
		if f.Search != "" && !containsFold(e.Name, f.Search) &&
			!containsFold(e.SerialNumber, f.Search) && !containsFold(e.Model, f.Search) {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		less := lessBy(f.SortBy, matched[i], matched[j])
		if f.SortOrder == "desc" {
			return lessBy(f.SortBy, matched[j], matched[i])
		}
		return less
	})

	total := len(matched)
	start := (f.Page - 1) * f.PageSize
	if start >= total {
		return []*Equipment{}, total, nil
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func lessBy(field string, a, b *Equipment) bool {
	switch field {
	case "name":
		return a.Name < b.Name
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt)
	case "purchase_date":
		return timePtrBefore(a.PurchaseDate, b.PurchaseDate)
	case "next_maintenance_due":
		return timePtrBefore(a.NextMaintenanceDue, b.NextMaintenanceDue)
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

func timePtrBefore(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (m *InMemory) SoftDelete(ctx context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.equipment[id]
	if !ok || e.CompanyID != companyID || !e.IsActive {
		return ErrNotFound
	}
	e.IsActive = false
	return nil
}

// AddAssignment seeds an assignment record (used by tests and fixtures).
func (m *InMemory) AddAssignment(a *Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.assignments[a.EquipmentID] = append(m.assignments[a.EquipmentID], &cp)
}
