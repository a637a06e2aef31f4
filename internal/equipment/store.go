package equipment

import (
	"context"
	"time"
)

// Store describes persistence for equipment, types and the history ledger.
//
// Every write that changes currentStatus or location must persist the paired
// HistoryEntry in the same atomic unit: a state update visible without its
// history row (or vice versa) is an invariant violation. Implementations
// serialize concurrent transitions on one equipment row so the ledger's
// chronological order matches commit order.
type Store interface {
	CreateType(ctx context.Context, t *EquipmentType) error
	FindType(ctx context.Context, companyID, id string) (*EquipmentType, error)
	FindTypeByName(ctx context.Context, companyID, name string) (*EquipmentType, error)
	ListTypes(ctx context.Context, companyID string) ([]*EquipmentType, error)
	SaveType(ctx context.Context, t *EquipmentType) error
	CountActiveByType(ctx context.Context, companyID, typeID string) (int, error)
	DeactivateType(ctx context.Context, companyID, typeID string) error

	// CreateWithHistory persists the equipment and its creation history entry
	// (old status nil) in one transaction.
	CreateWithHistory(ctx context.Context, e *Equipment, h *HistoryEntry) error
	Find(ctx context.Context, companyID, id string) (*Equipment, error)
	FindBySerial(ctx context.Context, companyID, serial string) (*Equipment, error)
	// Update applies the non-nil fields under a row lock. When the update
	// includes a status different from the locked row's, the paired history
	// entry is written in the same transaction; an unchanged status writes
	// no history row.
	Update(ctx context.Context, companyID, id string, upd Update, changedBy string, now time.Time) (*Equipment, error)
	// TransitionStatus performs a status-only transition under a row lock.
	// A no-op transition (same status) fails with ErrConflict and writes
	// nothing.
	TransitionStatus(ctx context.Context, companyID, id string, upd StatusUpdate, changedBy string, now time.Time) (*Equipment, *HistoryEntry, error)
	History(ctx context.Context, equipmentID string, limit int) ([]*HistoryEntry, error)
	ActiveAssignments(ctx context.Context, equipmentID string) ([]*Assignment, error)
	List(ctx context.Context, companyID string, f Filter) ([]*Equipment, int, error)
	SoftDelete(ctx context.Context, companyID, id string) error
}
