package equipment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"equiptrack.io/internal/auth"
	"equiptrack.io/internal/ids"
	"equiptrack.io/internal/obs"
)

const (
	defaultLocation            = "Warehouse"
	defaultMaintenanceInterval = 180
	recentHistoryLimit         = 5
)

// Service owns the equipment lifecycle: current state, the append-only
// history ledger and the invariants linking the two.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the lifecycle manager.
func NewService(store Store, opts ...ServiceOption) *Service {
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CreateType registers a new equipment type for the caller's company.
func (s *Service) CreateType(ctx context.Context, caller auth.Identity, in TypeInput) (*EquipmentType, error) {
	if !auth.Allow(caller, auth.ActionTypeManage, caller.CompanyID) {
		return nil, auth.ErrForbidden
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := s.store.FindTypeByName(ctx, caller.CompanyID, in.Name); err == nil {
		return nil, fmt.Errorf("%w: equipment type with this name already exists in the company", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	interval := in.DefaultMaintenanceIntervalDays
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}
	now := s.now().UTC()
	t := &EquipmentType{
		ID:                             ids.New(),
		CompanyID:                      caller.CompanyID,
		Name:                           in.Name,
		Description:                    in.Description,
		DefaultMaintenanceIntervalDays: interval,
		IsActive:                       true,
		CreatedAt:                      now,
		UpdatedAt:                      now,
	}
	if err := s.store.CreateType(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTypes returns the company's active equipment types.
func (s *Service) ListTypes(ctx context.Context, caller auth.Identity) ([]*EquipmentType, error) {
	return s.store.ListTypes(ctx, caller.CompanyID)
}

// GetType returns one active equipment type scoped to the caller's company.
func (s *Service) GetType(ctx context.Context, caller auth.Identity, id string) (*EquipmentType, error) {
	return s.store.FindType(ctx, caller.CompanyID, id)
}

// UpdateType changes name, description or maintenance interval.
func (s *Service) UpdateType(ctx context.Context, caller auth.Identity, id string, in TypeInput) (*EquipmentType, error) {
	if !auth.Allow(caller, auth.ActionTypeManage, caller.CompanyID) {
		return nil, auth.ErrForbidden
	}
	t, err := s.store.FindType(ctx, caller.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(in.Name); name != "" && name != t.Name {
		if _, err := s.store.FindTypeByName(ctx, caller.CompanyID, name); err == nil {
			return nil, fmt.Errorf("%w: equipment type with this name already exists in the company", ErrConflict)
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		t.Name = name
	}
	if in.Description != "" {
		t.Description = in.Description
	}
	if in.DefaultMaintenanceIntervalDays > 0 {
		t.DefaultMaintenanceIntervalDays = in.DefaultMaintenanceIntervalDays
	}
	t.UpdatedAt = s.now().UTC()
	if err := s.store.SaveType(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteType soft-deletes a type. A type still referenced by active equipment
// cannot be deactivated; the conflict names the count of blocking records.
func (s *Service) DeleteType(ctx context.Context, caller auth.Identity, id string) error {
	if !auth.Allow(caller, auth.ActionTypeManage, caller.CompanyID) {
		return auth.ErrForbidden
	}
	if _, err := s.store.FindType(ctx, caller.CompanyID, id); err != nil {
		return err
	}
	n, err := s.store.CountActiveByType(ctx, caller.CompanyID, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: cannot delete equipment type, %d equipment items are still using this type", ErrConflict, n)
	}
	return s.store.DeactivateType(ctx, caller.CompanyID, id)
}

// Create persists new equipment along with its creation history entry.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*Equipment, error) {
	if !auth.Allow(caller, auth.ActionEquipmentCreate, caller.CompanyID) {
		return nil, auth.ErrForbidden
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.EquipmentTypeID == "" {
		return nil, fmt.Errorf("%w: equipment type is required", ErrInvalidInput)
	}
	if _, err := s.store.FindType(ctx, caller.CompanyID, in.EquipmentTypeID); err != nil {
		return nil, err
	}
	if in.SerialNumber != "" {
		if err := s.requireSerialFree(ctx, caller.CompanyID, in.SerialNumber); err != nil {
			return nil, err
		}
	}

	status := in.CurrentStatus
	if status == "" {
		status = StatusGoodToGo
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	condition := in.Condition
	if condition == "" {
		condition = ConditionExcellent
	}
	if !condition.Valid() {
		return nil, fmt.Errorf("%w: unknown condition %q", ErrInvalidInput, condition)
	}
	location := in.Location
	if location == "" {
		location = defaultLocation
	}

	now := s.now().UTC()
	e := &Equipment{
		ID:                  ids.New(),
		CompanyID:           caller.CompanyID,
		EquipmentTypeID:     in.EquipmentTypeID,
		Name:                in.Name,
		SerialNumber:        in.SerialNumber,
		Model:               in.Model,
		PurchaseDate:        in.PurchaseDate,
		PurchasePrice:       in.PurchasePrice,
		CurrentStatus:       status,
		Condition:           condition,
		Location:            location,
		Notes:               in.Notes,
		LastMaintenanceDate: in.LastMaintenanceDate,
		NextMaintenanceDue:  in.NextMaintenanceDue,
		TrackingCode:        "EQ-" + ids.New(),
		PhotoURLs:           []string{},
		IsActive:            true,
		CreatedBy:           caller.UserID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	h := &HistoryEntry{
		ID:          ids.New(),
		EquipmentID: e.ID,
		OldStatus:   nil,
		NewStatus:   status,
		OldLocation: nil,
		NewLocation: location,
		ChangedBy:   caller.UserID,
		Notes:       "Equipment created",
		ChangedAt:   now,
	}
	if err := s.store.CreateWithHistory(ctx, e, h); err != nil {
		return nil, err
	}
	obs.StatusTransitions.WithLabelValues(string(status)).Inc()
	return e, nil
}

// Get returns the current state plus the most recent history entries and
// currently open assignments.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id string) (*Detail, error) {
	e, err := s.store.Find(ctx, caller.CompanyID, id)
	if err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, e.ID, recentHistoryLimit)
	if err != nil {
		return nil, err
	}
	assignments, err := s.store.ActiveAssignments(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	return &Detail{Equipment: e, RecentHistory: history, ActiveAssignments: assignments}, nil
}

// FullHistory returns the equipment's status ledger, newest first.
func (s *Service) FullHistory(ctx context.Context, caller auth.Identity, id string, limit int) ([]*HistoryEntry, error) {
	if _, err := s.store.Find(ctx, caller.CompanyID, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.History(ctx, id, limit)
}

// List returns one filtered, sorted, paginated page of the company's active
// equipment.
func (s *Service) List(ctx context.Context, caller auth.Identity, f Filter) (*ListResult, error) {
	f, err := f.normalize()
	if err != nil {
		return nil, err
	}
	items, total, err := s.store.List(ctx, caller.CompanyID, f)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// Update applies a general field update. A changed status also appends a
// history entry in the same transaction; an unchanged status is a silent
// success with no history row.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id string, upd Update) (*Equipment, error) {
	if !auth.Allow(caller, auth.ActionEquipmentUpdate, caller.CompanyID) {
		return nil, auth.ErrForbidden
	}
	current, err := s.store.Find(ctx, caller.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if upd.EquipmentTypeID != nil && *upd.EquipmentTypeID != current.EquipmentTypeID {
		if _, err := s.store.FindType(ctx, caller.CompanyID, *upd.EquipmentTypeID); err != nil {
			return nil, err
		}
	}
	if upd.SerialNumber != nil && *upd.SerialNumber != "" && *upd.SerialNumber != current.SerialNumber {
		if err := s.requireSerialFree(ctx, caller.CompanyID, *upd.SerialNumber); err != nil {
			return nil, err
		}
	}
	if upd.CurrentStatus != nil && !upd.CurrentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *upd.CurrentStatus)
	}
	if upd.Condition != nil && !upd.Condition.Valid() {
		return nil, fmt.Errorf("%w: unknown condition %q", ErrInvalidInput, *upd.Condition)
	}

	updated, err := s.store.Update(ctx, caller.CompanyID, id, upd, caller.UserID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if upd.CurrentStatus != nil && *upd.CurrentStatus != current.CurrentStatus {
		obs.StatusTransitions.WithLabelValues(string(*upd.CurrentStatus)).Inc()
	}
	return updated, nil
}

// UpdateStatus performs a status-only transition. Repeating the current
// status is rejected with a conflict so client bugs surface instead of
// silently recording nothing.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Identity, id string, upd StatusUpdate) (*Equipment, *HistoryEntry, error) {
	if !auth.Allow(caller, auth.ActionEquipmentStatus, caller.CompanyID) {
		return nil, nil, auth.ErrForbidden
	}
	if !upd.Status.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, upd.Status)
	}
	e, h, err := s.store.TransitionStatus(ctx, caller.CompanyID, id, upd, caller.UserID, s.now().UTC())
	if err != nil {
		return nil, nil, err
	}
	obs.StatusTransitions.WithLabelValues(string(upd.Status)).Inc()
	return e, h, nil
}

// Delete soft-deletes equipment, preserving its history ledger.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id string) error {
	if !auth.Allow(caller, auth.ActionEquipmentDelete, caller.CompanyID) {
		return auth.ErrForbidden
	}
	return s.store.SoftDelete(ctx, caller.CompanyID, id)
}

func (s *Service) requireSerialFree(ctx context.Context, companyID, serial string) error {
	_, err := s.store.FindBySerial(ctx, companyID, serial)
	if err == nil {
		return fmt.Errorf("%w: equipment with this serial number already exists in the company", ErrConflict)
	}
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
