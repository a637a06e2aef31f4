package files

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("files: not found")
	ErrInvalidInput = errors.New("files: invalid input")
)

// Photo is a stored equipment photo. FileURL is the public reference served
// by the HTTP layer, not a filesystem path.
type Photo struct {
	ID          string    `json:"id"`
	EquipmentID string    `json:"equipment_id"`
	CompanyID   string    `json:"company_id"`
	FileURL     string    `json:"file_url"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	MimeType    string    `json:"mime_type"`
	IsPrimary   bool      `json:"is_primary"`
	PhotoType   string    `json:"photo_type,omitempty"`
	Description string    `json:"description,omitempty"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// UploadInput carries one photo upload.
type UploadInput struct {
	EquipmentID string
	Filename    string
	MimeType    string
	Data        []byte
	IsPrimary   bool
	PhotoType   string
	Description string
}

// BlobStore persists raw photo bytes and returns a serveable reference.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Remove(ctx context.Context, name string) error
}

// Store persists photo metadata.
type Store interface {
	Create(ctx context.Context, p *Photo) error
	Find(ctx context.Context, companyID, id string) (*Photo, error)
	// ListByEquipment returns photos primary-first, then newest upload first.
	ListByEquipment(ctx context.Context, companyID, equipmentID string) ([]*Photo, error)
	CountByEquipment(ctx context.Context, equipmentID string) (int, error)
	// SetPrimary marks one photo primary and clears the flag on the
	// equipment's other photos in the same transaction.
	SetPrimary(ctx context.Context, equipmentID, photoID string) error
	Delete(ctx context.Context, companyID, id string) error
}
