package files

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"equiptrack.io/internal/auth"
	"equiptrack.io/internal/equipment"
	"equiptrack.io/internal/ids"
)

type memPhotoStore struct {
	mu     sync.Mutex
	photos map[string]*Photo
}

func newMemPhotoStore() *memPhotoStore {
	return &memPhotoStore{photos: make(map[string]*Photo)}
}

func (m *memPhotoStore) Create(_ context.Context, p *Photo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.photos[p.ID] = &cp
	return nil
}

func (m *memPhotoStore) Find(_ context.Context, companyID, id string) (*Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok || p.CompanyID != companyID {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPhotoStore) ListByEquipment(_ context.Context, companyID, equipmentID string) ([]*Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Photo
	for _, p := range m.photos {
		if p.CompanyID == companyID && p.EquipmentID == equipmentID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPhotoStore) CountByEquipment(_ context.Context, equipmentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.photos {
		if p.EquipmentID == equipmentID {
			n++
		}
	}
	return n, nil
}

func (m *memPhotoStore) SetPrimary(_ context.Context, equipmentID, photoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, p := range m.photos {
		if p.EquipmentID != equipmentID {
			continue
		}
		p.IsPrimary = p.ID == photoID
		if p.ID == photoID {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (m *memPhotoStore) Delete(_ context.Context, companyID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[id]
	if !ok || p.CompanyID != companyID {
		return ErrNotFound
	}
	delete(m.photos, id)
	return nil
}

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (m *memBlobStore) Put(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = data
	return "/files/" + name, nil
}

func (m *memBlobStore) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}

func photoTestSetup(t *testing.T) (*Service, *memPhotoStore, *memBlobStore, auth.Identity, string) {
	t.Helper()
	equipStore := equipment.NewInMemory()
	caller := auth.Identity{UserID: "u1", CompanyID: "c1", Role: auth.RoleStaff}

	now := time.Now().UTC()
	e := &equipment.Equipment{
		ID:              ids.New(),
		CompanyID:       "c1",
		EquipmentTypeID: "t1",
		Name:            "Drill",
		CurrentStatus:   equipment.StatusGoodToGo,
		Condition:       equipment.ConditionExcellent,
		Location:        "Warehouse",
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	h := &equipment.HistoryEntry{
		ID: ids.New(), EquipmentID: e.ID,
		NewStatus: e.CurrentStatus, NewLocation: e.Location, ChangedAt: now,
	}
	if err := equipStore.CreateWithHistory(context.Background(), e, h); err != nil {
		t.Fatal(err)
	}

	store := newMemPhotoStore()
	blobs := newMemBlobStore()
	svc := NewService(store, blobs, equipStore)
	return svc, store, blobs, caller, e.ID
}

func TestUploadPhotoFirstBecomesPrimary(t *testing.T) {
	svc, _, blobs, caller, equipID := photoTestSetup(t)

	p, err := svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: equipID,
		Filename:    "front.jpg",
		MimeType:    "image/jpeg",
		Data:        bytes.Repeat([]byte{0xff}, 128),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsPrimary {
		t.Fatal("first photo must become primary")
	}
	if p.SizeBytes != 128 {
		t.Fatalf("size = %d", p.SizeBytes)
	}
	blobs.mu.Lock()
	stored := len(blobs.blobs)
	blobs.mu.Unlock()
	if stored != 1 {
		t.Fatalf("stored blobs = %d", stored)
	}
}

func TestUploadPhotoValidation(t *testing.T) {
	svc, _, _, caller, equipID := photoTestSetup(t)

	_, err := svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: equipID, Filename: "x.gif", MimeType: "image/gif", Data: []byte{1},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unsupported mime: err = %v", err)
	}

	_, err = svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: equipID, Filename: "x.jpg", MimeType: "image/jpeg",
		Data: make([]byte, 5<<20+1),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("oversize: err = %v", err)
	}

	_, err = svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: equipID, Filename: "x.jpg", MimeType: "image/jpeg",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty: err = %v", err)
	}

	_, err = svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: "missing", Filename: "x.jpg", MimeType: "image/jpeg", Data: []byte{1},
	})
	if !errors.Is(err, equipment.ErrNotFound) {
		t.Fatalf("unknown equipment: err = %v", err)
	}
}

func TestUploadPhotoPrimaryFlagDemotesOthers(t *testing.T) {
	svc, store, _, caller, equipID := photoTestSetup(t)

	first, err := svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: equipID, Filename: "a.png", MimeType: "image/png", Data: []byte{1},
	})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: equipID, Filename: "b.png", MimeType: "image/png", Data: []byte{2},
		IsPrimary: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !second.IsPrimary {
		t.Fatal("explicit primary flag ignored")
	}

	got, err := store.Find(context.Background(), caller.CompanyID, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsPrimary {
		t.Fatal("previous primary must be demoted")
	}
}

type failingCreateStore struct {
	*memPhotoStore
}

func (f *failingCreateStore) Create(context.Context, *Photo) error {
	return errors.New("insert failed")
}

type finderFunc func(ctx context.Context, companyID, id string) (*equipment.Equipment, error)

func (f finderFunc) Find(ctx context.Context, companyID, id string) (*equipment.Equipment, error) {
	return f(ctx, companyID, id)
}

func TestUploadPhotoCleansUpBlobOnMetadataFailure(t *testing.T) {
	_, store, blobs, caller, equipID := photoTestSetup(t)

	always := finderFunc(func(context.Context, string, string) (*equipment.Equipment, error) {
		return &equipment.Equipment{ID: equipID}, nil
	})
	svc := NewService(&failingCreateStore{store}, blobs, always)
	_, err := svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: equipID, Filename: "a.jpg", MimeType: "image/jpeg", Data: []byte{1},
	})
	if err == nil {
		t.Fatal("expected metadata failure to propagate")
	}
	blobs.mu.Lock()
	remaining := len(blobs.blobs)
	blobs.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("orphaned blobs = %d, want 0", remaining)
	}
}

func TestDeletePhotoRemovesBlob(t *testing.T) {
	svc, _, blobs, caller, equipID := photoTestSetup(t)

	p, err := svc.UploadPhoto(context.Background(), caller, UploadInput{
		EquipmentID: equipID, Filename: "a.webp", MimeType: "image/webp", Data: []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeletePhoto(context.Background(), caller, p.ID); err != nil {
		t.Fatal(err)
	}
	blobs.mu.Lock()
	remaining := len(blobs.blobs)
	blobs.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("blobs remaining = %d", remaining)
	}

	other := auth.Identity{UserID: "u9", CompanyID: "c2", Role: auth.RoleAdmin}
	if err := svc.DeletePhoto(context.Background(), other, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant delete: err = %v", err)
	}
}
