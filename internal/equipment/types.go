package equipment

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("equipment: not found")
	ErrConflict     = errors.New("equipment: conflict")
	ErrInvalidInput = errors.New("equipment: invalid input")
)

// Status is the operational state of a piece of equipment. Transitions are
// not constrained to a fixed graph; any status may move to any other.
type Status string

const (
	StatusGoodToGo         Status = "good_to_go"
	StatusNeedsMaintenance Status = "needs_maintenance"
	StatusOutOfOrder       Status = "out_of_order"
)

func (s Status) Valid() bool {
	switch s {
	case StatusGoodToGo, StatusNeedsMaintenance, StatusOutOfOrder:
		return true
	}
	return false
}

// Condition is the physical wear grade.
type Condition string

const (
	ConditionExcellent Condition = "excellent"
	ConditionGood      Condition = "good"
	ConditionFair      Condition = "fair"
	ConditionPoor      Condition = "poor"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionExcellent, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// EquipmentType categorizes equipment within one company.
type EquipmentType struct {
	ID                             string    `json:"id"`
	CompanyID                      string    `json:"company_id"`
	Name                           string    `json:"name"`
	Description                    string    `json:"description,omitempty"`
	DefaultMaintenanceIntervalDays int       `json:"default_maintenance_interval_days"`
	IsActive                       bool      `json:"is_active"`
	CreatedAt                      time.Time `json:"created_at"`
	UpdatedAt                      time.Time `json:"updated_at"`
}

// Equipment is a tracked physical asset owned by exactly one company.
type Equipment struct {
	ID                  string     `json:"id"`
	CompanyID           string     `json:"company_id"`
	EquipmentTypeID     string     `json:"equipment_type_id"`
	Name                string     `json:"name"`
	SerialNumber        string     `json:"serial_number,omitempty"`
	Model               string     `json:"model,omitempty"`
	PurchaseDate        *time.Time `json:"purchase_date,omitempty"`
	PurchasePrice       *float64   `json:"purchase_price,omitempty"`
	CurrentStatus       Status     `json:"current_status"`
	Condition           Condition  `json:"condition"`
	Location            string     `json:"location"`
	Notes               string     `json:"notes,omitempty"`
	LastMaintenanceDate *time.Time `json:"last_maintenance_date,omitempty"`
	NextMaintenanceDue  *time.Time `json:"next_maintenance_due,omitempty"`
	TrackingCode        string     `json:"tracking_code"`
	PhotoURLs           []string   `json:"photo_urls"`
	IsActive            bool       `json:"is_active"`
	CreatedBy           string     `json:"created_by"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// HistoryEntry is one row of the append-only status ledger. The latest entry
// for an equipment id always matches the row's current status and location.
type HistoryEntry struct {
	ID          string    `json:"id"`
	EquipmentID string    `json:"equipment_id"`
	OldStatus   *Status   `json:"old_status"`
	NewStatus   Status    `json:"new_status"`
	OldLocation *string   `json:"old_location"`
	NewLocation string    `json:"new_location"`
	ChangedBy   string    `json:"changed_by"`
	Notes       string    `json:"notes,omitempty"`
	ChangedAt   time.Time `json:"changed_at"`
}

// Assignment records equipment checked out to a user.
type Assignment struct {
	ID          string     `json:"id"`
	EquipmentID string     `json:"equipment_id"`
	AssignedTo  string     `json:"assigned_to"`
	AssignedBy  string     `json:"assigned_by"`
	AssignedAt  time.Time  `json:"assigned_at"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Detail is the single-equipment read model: current state, the most recent
// history entries and currently open assignments.
type Detail struct {
	Equipment         *Equipment      `json:"equipment"`
	RecentHistory     []*HistoryEntry `json:"recent_history"`
	ActiveAssignments []*Assignment   `json:"active_assignments"`
}

// CreateInput carries a new-equipment request.
type CreateInput struct {
	Name                string     `json:"name"`
	EquipmentTypeID     string     `json:"equipment_type_id"`
	SerialNumber        string     `json:"serial_number,omitempty"`
	Model               string     `json:"model,omitempty"`
	PurchaseDate        *time.Time `json:"purchase_date,omitempty"`
	PurchasePrice       *float64   `json:"purchase_price,omitempty"`
	CurrentStatus       Status     `json:"current_status,omitempty"`
	Condition           Condition  `json:"condition,omitempty"`
	Location            string     `json:"location,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	LastMaintenanceDate *time.Time `json:"last_maintenance_date,omitempty"`
	NextMaintenanceDue  *time.Time `json:"next_maintenance_due,omitempty"`
}

// Update carries a general field update; nil fields stay unchanged.
type Update struct {
	Name                *string    `json:"name,omitempty"`
	EquipmentTypeID     *string    `json:"equipment_type_id,omitempty"`
	SerialNumber        *string    `json:"serial_number,omitempty"`
	Model               *string    `json:"model,omitempty"`
	PurchaseDate        *time.Time `json:"purchase_date,omitempty"`
	PurchasePrice       *float64   `json:"purchase_price,omitempty"`
	CurrentStatus       *Status    `json:"current_status,omitempty"`
	Condition           *Condition `json:"condition,omitempty"`
	Location            *string    `json:"location,omitempty"`
	Notes               *string    `json:"notes,omitempty"`
	LastMaintenanceDate *time.Time `json:"last_maintenance_date,omitempty"`
	NextMaintenanceDue  *time.Time `json:"next_maintenance_due,omitempty"`
}

// applyUpdate copies the non-nil fields of upd onto a value copy of e.
func applyUpdate(e Equipment, upd Update) Equipment {
	if upd.Name != nil {
		e.Name = *upd.Name
	}
	if upd.EquipmentTypeID != nil {
		e.EquipmentTypeID = *upd.EquipmentTypeID
	}
	if upd.SerialNumber != nil {
		e.SerialNumber = *upd.SerialNumber
	}
	if upd.Model != nil {
		e.Model = *upd.Model
	}
	if upd.PurchaseDate != nil {
		e.PurchaseDate = upd.PurchaseDate
	}
	if upd.PurchasePrice != nil {
		e.PurchasePrice = upd.PurchasePrice
	}
	if upd.CurrentStatus != nil {
		e.CurrentStatus = *upd.CurrentStatus
	}
	if upd.Condition != nil {
		e.Condition = *upd.Condition
	}
	if upd.Location != nil {
		e.Location = *upd.Location
	}
	if upd.Notes != nil {
		e.Notes = *upd.Notes
	}
	if upd.LastMaintenanceDate != nil {
		e.LastMaintenanceDate = upd.LastMaintenanceDate
	}
	if upd.NextMaintenanceDue != nil {
		e.NextMaintenanceDue = upd.NextMaintenanceDue
	}
	return e
}

// StatusUpdate carries a status-only transition request.
type StatusUpdate struct {
	Status   Status  `json:"status"`
	Notes    string  `json:"notes,omitempty"`
	Location *string `json:"location,omitempty"`
}

// TypeInput carries equipment type create/update fields.
type TypeInput struct {
	Name                           string `json:"name"`
	Description                    string `json:"description,omitempty"`
	DefaultMaintenanceIntervalDays int    `json:"default_maintenance_interval_days,omitempty"`
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Filter selects, orders and pages an equipment listing.
type Filter struct {
	Status          Status
	Condition       Condition
	EquipmentTypeID string
	Location        string
	Search          string
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}

var sortFields = map[string]string{
	"name":                 "name",
	"created_at":           "created_at",
	"updated_at":           "updated_at",
	"purchase_date":        "purchase_date",
	"next_maintenance_due": "next_maintenance_due",
}

// normalize applies defaults and validates enum/sort inputs.
func (f Filter) normalize() (Filter, error) {
	if f.Status != "" && !f.Status.Valid() {
		return f, ErrInvalidInput
	}
	if f.Condition != "" && !f.Condition.Valid() {
		return f, ErrInvalidInput
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	if f.SortBy == "" {
		f.SortBy = "created_at"
	}
	if _, ok := sortFields[f.SortBy]; !ok {
		return f, ErrInvalidInput
	}
	switch strings.ToLower(f.SortOrder) {
	case "":
		f.SortOrder = "desc"
	case "asc", "desc":
		f.SortOrder = strings.ToLower(f.SortOrder)
	default:
		return f, ErrInvalidInput
	}
	return f, nil
}

// ListResult is one page of equipment.
type ListResult struct {
	Items    []*Equipment `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}
