package files

import (
	"context"
	"database/sql"
	"errors"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on the equipment_photos table.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const photoColumns = `id, equipment_id, company_id, file_url, filename, size_bytes,
	mime_type, is_primary, coalesce(photo_type, ''), coalesce(description, ''),
	uploaded_by, uploaded_at`

func scanPhoto(row interface{ Scan(...any) error }) (*Photo, error) {
	var p Photo
	err := row.Scan(&p.ID, &p.EquipmentID, &p.CompanyID, &p.FileURL, &p.Filename,
		&p.SizeBytes, &p.MimeType, &p.IsPrimary, &p.PhotoType, &p.Description,
		&p.UploadedBy, &p.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) Create(ctx context.Context, p *Photo) error {
	_, err := s.db.ExecContext(ctx, `
		insert into equipment_photos(id, equipment_id, company_id, file_url, filename,
			size_bytes, mime_type, is_primary, photo_type, description, uploaded_by, uploaded_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,nullif($9,''),nullif($10,''),$11,$12)
	`, p.ID, p.EquipmentID, p.CompanyID, p.FileURL, p.Filename,
		p.SizeBytes, p.MimeType, p.IsPrimary, p.PhotoType, p.Description, p.UploadedBy, p.UploadedAt)
	return err
}

func (s *PGStore) Find(ctx context.Context, companyID, id string) (*Photo, error) {
	return scanPhoto(s.db.QueryRowContext(ctx,
		`select `+photoColumns+` from equipment_photos where id=$1 and company_id=$2`,
		id, companyID))
}

func (s *PGStore) ListByEquipment(ctx context.Context, companyID, equipmentID string) ([]*Photo, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+photoColumns+` from equipment_photos
		where company_id=$1 and equipment_id=$2
		order by is_primary desc, uploaded_at desc
	`, companyID, equipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []*Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (s *PGStore) CountByEquipment(ctx context.Context, equipmentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from equipment_photos where equipment_id=$1`, equipmentID).Scan(&n)
	return n, err
}

func (s *PGStore) SetPrimary(ctx context.Context, equipmentID, photoID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`update equipment_photos set is_primary=false where equipment_id=$1 and id<>$2`,
		equipmentID, photoID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`update equipment_photos set is_primary=true where equipment_id=$1 and id=$2`,
		equipmentID, photoID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *PGStore) Delete(ctx context.Context, companyID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from equipment_photos where id=$1 and company_id=$2`, id, companyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
