package files

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"equiptrack.io/internal/auth"
	"equiptrack.io/internal/equipment"
	"equiptrack.io/internal/ids"
)

const maxPhotoSize = 5 << 20

var allowedMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// EquipmentFinder narrows the equipment store to the single lookup the photo
// service needs.
type EquipmentFinder interface {
	Find(ctx context.Context, companyID, id string) (*equipment.Equipment, error)
}

// Service manages equipment photo uploads.
type Service struct {
	store     Store
	blobs     BlobStore
	equipment EquipmentFinder
	now       func() time.Time
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

func NewService(store Store, blobs BlobStore, finder EquipmentFinder, opts ...ServiceOption) *Service {
	svc := &Service{store: store, blobs: blobs, equipment: finder, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// UploadPhoto validates, stores the blob and records metadata. The first
// photo for a piece of equipment becomes primary automatically.
func (s *Service) UploadPhoto(ctx context.Context, caller auth.Identity, in UploadInput) (*Photo, error) {
	if !auth.Allow(caller, auth.ActionPhotoUpload, caller.CompanyID) {
		return nil, auth.ErrForbidden
	}
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	if len(in.Data) > maxPhotoSize {
		return nil, fmt.Errorf("%w: file exceeds 5MB limit", ErrInvalidInput)
	}
	ext, ok := allowedMimeTypes[strings.ToLower(in.MimeType)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidInput, in.MimeType)
	}
	if _, err := s.equipment.Find(ctx, caller.CompanyID, in.EquipmentID); err != nil {
		return nil, err
	}

	existing, err := s.store.CountByEquipment(ctx, in.EquipmentID)
	if err != nil {
		return nil, err
	}
	primary := in.IsPrimary || existing == 0

	name := uuid.NewString() + ext
	url, err := s.blobs.Put(ctx, name, in.Data)
	if err != nil {
		return nil, err
	}

	p := &Photo{
		ID:          ids.New(),
		EquipmentID: in.EquipmentID,
		CompanyID:   caller.CompanyID,
		FileURL:     url,
		Filename:    in.Filename,
		SizeBytes:   int64(len(in.Data)),
		MimeType:    strings.ToLower(in.MimeType),
		IsPrimary:   primary,
		PhotoType:   in.PhotoType,
		Description: in.Description,
		UploadedBy:  caller.UserID,
		UploadedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		_ = s.blobs.Remove(ctx, name)
		return nil, err
	}
	if primary && existing > 0 {
		if err := s.store.SetPrimary(ctx, in.EquipmentID, p.ID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ListPhotos returns an equipment's photos, primary first.
func (s *Service) ListPhotos(ctx context.Context, caller auth.Identity, equipmentID string) ([]*Photo, error) {
	if _, err := s.equipment.Find(ctx, caller.CompanyID, equipmentID); err != nil {
		return nil, err
	}
	return s.store.ListByEquipment(ctx, caller.CompanyID, equipmentID)
}

// SetPrimary promotes one photo, demoting the others.
func (s *Service) SetPrimary(ctx context.Context, caller auth.Identity, photoID string) (*Photo, error) {
	if !auth.Allow(caller, auth.ActionPhotoUpload, caller.CompanyID) {
		return nil, auth.ErrForbidden
	}
	p, err := s.store.Find(ctx, caller.CompanyID, photoID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetPrimary(ctx, p.EquipmentID, p.ID); err != nil {
		return nil, err
	}
	p.IsPrimary = true
	return p, nil
}

// DeletePhoto removes metadata and the stored blob.
func (s *Service) DeletePhoto(ctx context.Context, caller auth.Identity, photoID string) error {
	if !auth.Allow(caller, auth.ActionPhotoUpload, caller.CompanyID) {
		return auth.ErrForbidden
	}
	p, err := s.store.Find(ctx, caller.CompanyID, photoID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, caller.CompanyID, photoID); err != nil {
		return err
	}
	return s.blobs.Remove(ctx, path.Base(p.FileURL))
}
