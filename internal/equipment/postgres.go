package equipment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"equiptrack.io/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Status transitions lock the
// equipment row so the history ledger's order matches commit order.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Equipment types ----------------------------------------------------------

const typeColumns = `id, company_id, name, coalesce(description, ''),
	default_maintenance_interval_days, is_active, created_at, updated_at`

func scanType(row interface{ Scan(...any) error }) (*EquipmentType, error) {
	var t EquipmentType
	err := row.Scan(&t.ID, &t.CompanyID, &t.Name, &t.Description,
		&t.DefaultMaintenanceIntervalDays, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PGStore) CreateType(ctx context.Context, t *EquipmentType) error {
	_, err := s.db.ExecContext(ctx, `
		insert into equipment_types(id, company_id, name, description,
			default_maintenance_interval_days, is_active, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8)
	`, t.ID, t.CompanyID, t.Name, t.Description, t.DefaultMaintenanceIntervalDays,
		t.IsActive, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *PGStore) FindType(ctx context.Context, companyID, id string) (*EquipmentType, error) {
	return scanType(s.db.QueryRowContext(ctx,
		`select `+typeColumns+` from equipment_types where id=$1 and company_id=$2 and is_active`,
		id, companyID))
}

func (s *PGStore) FindTypeByName(ctx context.Context, companyID, name string) (*EquipmentType, error) {
	return scanType(s.db.QueryRowContext(ctx,
		`select `+typeColumns+` from equipment_types where company_id=$1 and name=$2 and is_active`,
		companyID, name))
}

func (s *PGStore) ListTypes(ctx context.Context, companyID string) ([]*EquipmentType, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+typeColumns+` from equipment_types where company_id=$1 and is_active order by name asc`,
		companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []*EquipmentType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *PGStore) SaveType(ctx context.Context, t *EquipmentType) error {
	res, err := s.db.ExecContext(ctx, `
		update equipment_types
		set name=$3, description=$4, default_maintenance_interval_days=$5, updated_at=$6
		where id=$1 and company_id=$2
	`, t.ID, t.CompanyID, t.Name, t.Description, t.DefaultMaintenanceIntervalDays, t.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) CountActiveByType(ctx context.Context, companyID, typeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from equipment
		where company_id=$1 and equipment_type_id=$2 and is_active
	`, companyID, typeID).Scan(&n)
	return n, err
}

func (s *PGStore) DeactivateType(ctx context.Context, companyID, typeID string) error {
	res, err := s.db.ExecContext(ctx, `
		update equipment_types set is_active=false, updated_at=now()
		where id=$1 and company_id=$2
	`, typeID, companyID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Equipment ----------------------------------------------------------------

const equipmentColumns = `id, company_id, equipment_type_id, name,
	coalesce(serial_number, ''), coalesce(model, ''), purchase_date, purchase_price,
	current_status, condition, location, coalesce(notes, ''),
	last_maintenance_date, next_maintenance_due, tracking_code, photo_urls,
	is_active, created_by, created_at, updated_at`

func scanEquipment(row interface{ Scan(...any) error }) (*Equipment, error) {
	var (
		e      Equipment
		photos []byte
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.EquipmentTypeID, &e.Name,
		&e.SerialNumber, &e.Model, &e.PurchaseDate, &e.PurchasePrice,
		&e.CurrentStatus, &e.Condition, &e.Location, &e.Notes,
		&e.LastMaintenanceDate, &e.NextMaintenanceDue, &e.TrackingCode, &photos,
		&e.IsActive, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.PhotoURLs = []string{}
	_ = json.Unmarshal(photos, &e.PhotoURLs)
	return &e, nil
}

func (s *PGStore) CreateWithHistory(ctx context.Context, e *Equipment, h *HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	photos, _ := json.Marshal(e.PhotoURLs)
	if _, err := tx.ExecContext(ctx, `
		insert into equipment(id, company_id, equipment_type_id, name, serial_number,
			model, purchase_date, purchase_price, current_status, condition, location,
			notes, last_maintenance_date, next_maintenance_due, tracking_code,
			photo_urls, is_active, created_by, created_at, updated_at)
		values($1,$2,$3,$4,nullif($5,''),$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, e.ID, e.CompanyID, e.EquipmentTypeID, e.Name, e.SerialNumber,
		e.Model, e.PurchaseDate, e.PurchasePrice, e.CurrentStatus, e.Condition, e.Location,
		e.Notes, e.LastMaintenanceDate, e.NextMaintenanceDue, e.TrackingCode,
		photos, e.IsActive, e.CreatedBy, e.CreatedAt, e.UpdatedAt); err != nil {
		return err
	}
	if err := insertHistory(ctx, tx, h); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) Find(ctx context.Context, companyID, id string) (*Equipment, error) {
	return scanEquipment(s.db.QueryRowContext(ctx,
		`select `+equipmentColumns+` from equipment where id=$1 and company_id=$2 and is_active`,
		id, companyID))
}

func (s *PGStore) FindBySerial(ctx context.Context, companyID, serial string) (*Equipment, error) {
	return scanEquipment(s.db.QueryRowContext(ctx,
		`select `+equipmentColumns+` from equipment where company_id=$1 and serial_number=$2 and is_active`,
		companyID, serial))
}

func (s *PGStore) Update(ctx context.Context, companyID, id string, upd Update, changedBy string, now time.Time) (*Equipment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanEquipment(tx.QueryRowContext(ctx,
		`select `+equipmentColumns+` from equipment where id=$1 and company_id=$2 and is_active for update`,
		id, companyID))
	if err != nil {
		return nil, err
	}

	next := applyUpdate(*current, upd)
	next.UpdatedAt = now

	photos, _ := json.Marshal(next.PhotoURLs)
	if _, err := tx.ExecContext(ctx, `
		update equipment set
			equipment_type_id=$3, name=$4, serial_number=nullif($5,''), model=$6,
			purchase_date=$7, purchase_price=$8, current_status=$9, condition=$10,
			location=$11, notes=$12, last_maintenance_date=$13, next_maintenance_due=$14,
			photo_urls=$15, updated_at=$16
		where id=$1 and company_id=$2
	`, next.ID, next.CompanyID, next.EquipmentTypeID, next.Name, next.SerialNumber,
		next.Model, next.PurchaseDate, next.PurchasePrice, next.CurrentStatus, next.Condition,
		next.Location, next.Notes, next.LastMaintenanceDate, next.NextMaintenanceDue,
		photos, next.UpdatedAt); err != nil {
		return nil, err
	}

	// Paired ledger write, same transaction, only on a real transition.
	if upd.CurrentStatus != nil && *upd.CurrentStatus != current.CurrentStatus {
		oldStatus := current.CurrentStatus
		oldLocation := current.Location
		h := &HistoryEntry{
			ID:          ids.New(),
			EquipmentID: current.ID,
			OldStatus:   &oldStatus,
			NewStatus:   next.CurrentStatus,
			OldLocation: &oldLocation,
			NewLocation: next.Location,
			ChangedBy:   changedBy,
			ChangedAt:   now,
		}
		if err := insertHistory(ctx, tx, h); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *PGStore) TransitionStatus(ctx context.Context, companyID, id string, upd StatusUpdate, changedBy string, now time.Time) (*Equipment, *HistoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanEquipment(tx.QueryRowContext(ctx,
		`select `+equipmentColumns+` from equipment where id=$1 and company_id=$2 and is_active for update`,
		id, companyID))
	if err != nil {
		return nil, nil, err
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

	if _, err := tx.ExecContext(ctx, `
		update equipment set current_status=$3, location=$4, updated_at=$5
		where id=$1 and company_id=$2
	`, id, companyID, upd.Status, location, now); err != nil {
		return nil, nil, err
	}

	h := &HistoryEntry{
		ID:          ids.New(),
		EquipmentID: current.ID,
		OldStatus:   &oldStatus,
		NewStatus:   upd.Status,
		OldLocation: &oldLocation,
		NewLocation: location,
		ChangedBy:   changedBy,
		Notes:       upd.Notes,
		ChangedAt:   now,
	}
	if err := insertHistory(ctx, tx, h); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	current.CurrentStatus = upd.Status
	current.Location = location
	current.UpdatedAt = now
	return current, h, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, h *HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		insert into equipment_status_history(id, equipment_id, old_status, new_status,
			old_location, new_location, changed_by, notes, changed_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, h.ID, h.EquipmentID, h.OldStatus, h.NewStatus, h.OldLocation, h.NewLocation,
		h.ChangedBy, h.Notes, h.ChangedAt)
	return err
}

func (s *PGStore) History(ctx context.Context, equipmentID string, limit int) ([]*HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, equipment_id, old_status, new_status, old_location, new_location,
			changed_by, coalesce(notes, ''), changed_at
		from equipment_status_history
		where equipment_id=$1
		order by changed_at desc, id desc
		limit $2
	`, equipmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.EquipmentID, &h.OldStatus, &h.NewStatus,
			&h.OldLocation, &h.NewLocation, &h.ChangedBy, &h.Notes, &h.ChangedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}

func (s *PGStore) ActiveAssignments(ctx context.Context, equipmentID string) ([]*Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, equipment_id, assigned_to, assigned_by, assigned_at, returned_at, coalesce(notes, '')
		from equipment_assignments
		where equipment_id=$1 and returned_at is null
		order by assigned_at desc
	`, equipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.ID, &a.EquipmentID, &a.AssignedTo, &a.AssignedBy,
			&a.AssignedAt, &a.ReturnedAt, &a.Notes); err != nil {
			return nil, err
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

func (s *PGStore) List(ctx context.Context, companyID string, f Filter) ([]*Equipment, int, error) {
	where := []string{"company_id=$1", "is_active"}
	args := []any{companyID}

	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Status != "" {
		add("current_status=$%d", f.Status)
	}
	if f.Condition != "" {
		add("condition=$%d", f.Condition)
	}
	if f.EquipmentTypeID != "" {
		add("equipment_type_id=$%d", f.EquipmentTypeID)
	}
	if f.Location != "" {
		add("location ilike $%d", "%"+f.Location+"%")
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(name ilike $%d or serial_number ilike $%d or model ilike $%d)", n, n, n))
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from equipment where `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	// SortBy passed through the allow-list in Filter.normalize.
	order := sortFields[f.SortBy] + " " + f.SortOrder
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	query := fmt.Sprintf(`select %s from equipment where %s order by %s limit $%d offset $%d`,
		equipmentColumns, cond, order, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (s *PGStore) SoftDelete(ctx context.Context, companyID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update equipment set is_active=false, updated_at=now()
		where id=$1 and company_id=$2 and is_active
	`, id, companyID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
