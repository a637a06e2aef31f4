package equipment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equiptrack.io/internal/auth"
)

func admin(company string) auth.Identity {
	return auth.Identity{UserID: "admin-" + company, CompanyID: company, Role: auth.RoleAdmin}
}

func staff(company string) auth.Identity {
	return auth.Identity{UserID: "staff-" + company, CompanyID: company, Role: auth.RoleStaff}
}

func newTestService() (*Service, *InMemory) {
	store := NewInMemory()
	return NewService(store), store
}

func mustType(t *testing.T, svc *Service, caller auth.Identity, name string) *EquipmentType {
	t.Helper()
	et, err := svc.CreateType(context.Background(), caller, TypeInput{Name: name})
	require.NoError(t, err)
	return et
}

func mustEquipment(t *testing.T, svc *Service, caller auth.Identity, in CreateInput) *Equipment {
	t.Helper()
	e, err := svc.Create(context.Background(), caller, in)
	require.NoError(t, err)
	return e
}

func TestCreateAppliesDefaultsAndHistory(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")

	e := mustEquipment(t, svc, caller, CreateInput{Name: "DeWalt 20V", EquipmentTypeID: et.ID})

	assert.Equal(t, StatusGoodToGo, e.CurrentStatus)
	assert.Equal(t, ConditionExcellent, e.Condition)
	assert.Equal(t, "Warehouse", e.Location)
	assert.True(t, strings.HasPrefix(e.TrackingCode, "EQ-"))
	assert.Equal(t, caller.UserID, e.CreatedBy)

	history, err := store.History(context.Background(), e.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].OldStatus)
	assert.Equal(t, StatusGoodToGo, history[0].NewStatus)
	assert.Equal(t, "Equipment created", history[0].Notes)
	assert.Equal(t, "Warehouse", history[0].NewLocation)
}

func TestCreateRequiresKnownType(t *testing.T) {
	svc, _ := newTestService()
	caller := admin("c1")

	_, err := svc.Create(context.Background(), caller, CreateInput{Name: "Drill", EquipmentTypeID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTypeFromOtherCompanyIsNotFound(t *testing.T) {
	svc, _ := newTestService()
	et := mustType(t, svc, admin("c1"), "Drill")

	_, err := svc.Create(context.Background(), admin("c2"), CreateInput{Name: "Drill", EquipmentTypeID: et.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSerialNumberUniquePerCompany(t *testing.T) {
	svc, _ := newTestService()
	a := admin("c1")
	b := admin("c2")
	etA := mustType(t, svc, a, "Drill")
	etB := mustType(t, svc, b, "Drill")

	mustEquipment(t, svc, a, CreateInput{Name: "One", EquipmentTypeID: etA.ID, SerialNumber: "SN-1"})

	_, err := svc.Create(context.Background(), a, CreateInput{Name: "Two", EquipmentTypeID: etA.ID, SerialNumber: "SN-1"})
	assert.ErrorIs(t, err, ErrConflict)

	// Same serial in another company is fine.
	_, err = svc.Create(context.Background(), b, CreateInput{Name: "Two", EquipmentTypeID: etB.ID, SerialNumber: "SN-1"})
	assert.NoError(t, err)
}

func TestEquipmentWithoutSerialTwice(t *testing.T) {
	svc, _ := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")

	mustEquipment(t, svc, caller, CreateInput{Name: "One", EquipmentTypeID: et.ID})
	_, err := svc.Create(context.Background(), caller, CreateInput{Name: "Two", EquipmentTypeID: et.ID})
	assert.NoError(t, err, "missing serials must not collide with each other")
}

func TestStaffCannotCreate(t *testing.T) {
	svc, _ := newTestService()
	et := mustType(t, svc, admin("c1"), "Drill")

	_, err := svc.Create(context.Background(), staff("c1"), CreateInput{Name: "Drill", EquipmentTypeID: et.ID})
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestUpdateStatusAppendsHistory(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	loc := "Site A"
	updated, entry, err := svc.UpdateStatus(context.Background(), staff("c1"), e.ID, StatusUpdate{
		Status:   StatusNeedsMaintenance,
		Notes:    "belt worn",
		Location: &loc,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsMaintenance, updated.CurrentStatus)
	assert.Equal(t, "Site A", updated.Location)
	require.NotNil(t, entry.OldStatus)
	assert.Equal(t, StatusGoodToGo, *entry.OldStatus)
	assert.Equal(t, StatusNeedsMaintenance, entry.NewStatus)
	assert.Equal(t, "belt worn", entry.Notes)

	history, err := store.History(context.Background(), e.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestUpdateStatusNoOpIsConflict(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	_, _, err := svc.UpdateStatus(context.Background(), caller, e.ID, StatusUpdate{Status: StatusGoodToGo})
	assert.ErrorIs(t, err, ErrConflict)

	history, err := store.History(context.Background(), e.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "rejected no-op must not write history")
}

func TestGeneralUpdateUnchangedStatusIsSilent(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	same := StatusGoodToGo
	name := "Renamed Drill"
	updated, err := svc.Update(context.Background(), caller, e.ID, Update{Name: &name, CurrentStatus: &same})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Drill", updated.Name)

	history, err := store.History(context.Background(), e.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "unchanged status in a general update writes no history")
}

func TestGeneralUpdateChangedStatusWritesHistory(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	broken := StatusOutOfOrder
	_, err := svc.Update(context.Background(), caller, e.ID, Update{CurrentStatus: &broken})
	require.NoError(t, err)

	history, err := store.History(context.Background(), e.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, StatusOutOfOrder, history[0].NewStatus)
	require.NotNil(t, history[0].OldStatus)
	assert.Equal(t, StatusGoodToGo, *history[0].OldStatus)
}

func TestHistoryMatchesCurrentState(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	transitions := []Status{StatusNeedsMaintenance, StatusOutOfOrder, StatusGoodToGo, StatusOutOfOrder}
	for _, st := range transitions {
		_, _, err := svc.UpdateStatus(context.Background(), caller, e.ID, StatusUpdate{Status: st})
		require.NoError(t, err)
	}

	current, err := store.Find(context.Background(), "c1", e.ID)
	require.NoError(t, err)
	history, err := store.History(context.Background(), e.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, current.CurrentStatus, history[0].NewStatus,
		"latest ledger entry must equal the row's current status")
	assert.Equal(t, current.Location, history[0].NewLocation)
}

func TestConcurrentTransitionsPairStateAndHistory(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	statuses := []Status{StatusNeedsMaintenance, StatusOutOfOrder, StatusGoodToGo}
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(st Status) {
			defer wg.Done()
			// Conflicts are expected when two workers race to the same status.
			_, _, _ = svc.UpdateStatus(context.Background(), caller, e.ID, StatusUpdate{Status: st})
		}(statuses[i%len(statuses)])
	}
	wg.Wait()

	current, err := store.Find(context.Background(), "c1", e.ID)
	require.NoError(t, err)
	history, err := store.History(context.Background(), e.ID, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, current.CurrentStatus, history[0].NewStatus)
	for i, h := range history[:len(history)-1] {
		// Each entry's old status chains to the next-older entry's new status.
		require.NotNil(t, h.OldStatus)
		assert.Equal(t, history[i+1].NewStatus, *h.OldStatus)
	}
}

func TestGetReturnsRecentHistoryAndAssignments(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	for i := 0; i < 7; i++ {
		st := StatusNeedsMaintenance
		if i%2 == 1 {
			st = StatusGoodToGo
		}
		_, _, err := svc.UpdateStatus(context.Background(), caller, e.ID, StatusUpdate{Status: st})
		require.NoError(t, err)
	}
	store.AddAssignment(&Assignment{ID: "a1", EquipmentID: e.ID, AssignedTo: "u2", AssignedBy: caller.UserID, AssignedAt: time.Now()})
	returned := time.Now()
	store.AddAssignment(&Assignment{ID: "a2", EquipmentID: e.ID, AssignedTo: "u3", AssignedBy: caller.UserID, AssignedAt: time.Now(), ReturnedAt: &returned})

	detail, err := svc.Get(context.Background(), caller, e.ID)
	require.NoError(t, err)
	assert.Len(t, detail.RecentHistory, 5, "detail view caps recent history")
	require.Len(t, detail.ActiveAssignments, 1, "returned assignments are not active")
	assert.Equal(t, "a1", detail.ActiveAssignments[0].ID)
}

func TestGetCrossTenantIsNotFound(t *testing.T) {
	svc, _ := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	_, err := svc.Get(context.Background(), admin("c2"), e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _ := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")

	for i := 0; i < 12; i++ {
		in := CreateInput{Name: "Drill " + string(rune('A'+i)), EquipmentTypeID: et.ID}
		if i < 4 {
			in.CurrentStatus = StatusOutOfOrder
		}
		mustEquipment(t, svc, caller, in)
	}

	res, err := svc.List(context.Background(), caller, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 12, res.Total)
	assert.Len(t, res.Items, 10, "default page size")
	assert.Equal(t, 1, res.Page)

	res, err = svc.List(context.Background(), caller, Filter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)

	res, err = svc.List(context.Background(), caller, Filter{Status: StatusOutOfOrder})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)

	res, err = svc.List(context.Background(), caller, Filter{Search: "drill a"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)

	res, err = svc.List(context.Background(), caller, Filter{SortBy: "name", SortOrder: "asc", PageSize: 3})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "Drill A", res.Items[0].Name)

	_, err = svc.List(context.Background(), caller, Filter{SortBy: "password_hash"})
	assert.ErrorIs(t, err, ErrInvalidInput, "sort fields outside the allow-list are rejected")

	_, err = svc.List(context.Background(), caller, Filter{SortOrder: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteTypeBlockedByActiveEquipment(t *testing.T) {
	svc, _ := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e1 := mustEquipment(t, svc, caller, CreateInput{Name: "One", EquipmentTypeID: et.ID})
	e2 := mustEquipment(t, svc, caller, CreateInput{Name: "Two", EquipmentTypeID: et.ID})

	err := svc.DeleteType(context.Background(), caller, et.ID)
	require.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "2 equipment items", "conflict names the blocking count")

	require.NoError(t, svc.Delete(context.Background(), caller, e1.ID))
	require.NoError(t, svc.Delete(context.Background(), caller, e2.ID))
	assert.NoError(t, svc.DeleteType(context.Background(), caller, et.ID))
}

func TestCreateTypeNameUniqueAmongActive(t *testing.T) {
	svc, _ := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")

	_, err := svc.CreateType(context.Background(), caller, TypeInput{Name: "Drill"})
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, svc.DeleteType(context.Background(), caller, et.ID))
	_, err = svc.CreateType(context.Background(), caller, TypeInput{Name: "Drill"})
	assert.NoError(t, err, "name frees up once the old type is deactivated")
}

func TestSoftDeletePreservesHistory(t *testing.T) {
	svc, store := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})
	_, _, err := svc.UpdateStatus(context.Background(), caller, e.ID, StatusUpdate{Status: StatusOutOfOrder})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), caller, e.ID))

	_, err = svc.Get(context.Background(), caller, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := store.History(context.Background(), e.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2, "ledger survives soft deletion")

	err = svc.Delete(context.Background(), staff("c1"), e.ID)
	assert.True(t, errors.Is(err, auth.ErrForbidden) || errors.Is(err, ErrNotFound))
}

func TestDeleteRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()
	caller := admin("c1")
	et := mustType(t, svc, caller, "Drill")
	e := mustEquipment(t, svc, caller, CreateInput{Name: "Drill", EquipmentTypeID: et.ID})

	err := svc.Delete(context.Background(), staff("c1"), e.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	mgr := auth.Identity{UserID: "m1", CompanyID: "c1", Role: auth.RoleManager}
	err = svc.Delete(context.Background(), mgr, e.ID)
	assert.ErrorIs(t, err, auth.ErrForbidden)
}
