package auth

import "testing"

func TestAllowPolicy(t *testing.T) {
	id := func(role Role) Identity {
		return Identity{UserID: "u1", CompanyID: "c1", Role: role}
	}

	cases := []struct {
		name   string
		id     Identity
		action Action
		target string
		want   bool
	}{
		{"admin creates equipment", id(RoleAdmin), ActionEquipmentCreate, "c1", true},
		{"manager creates equipment", id(RoleManager), ActionEquipmentCreate, "c1", true},
		{"staff cannot create equipment", id(RoleStaff), ActionEquipmentCreate, "c1", false},
		{"manager cannot delete equipment", id(RoleManager), ActionEquipmentDelete, "c1", false},
		{"admin deletes equipment", id(RoleAdmin), ActionEquipmentDelete, "c1", true},
		{"staff updates status", id(RoleStaff), ActionEquipmentStatus, "c1", true},
		{"staff reads equipment", id(RoleStaff), ActionEquipmentRead, "c1", true},
		{"staff uploads photos", id(RoleStaff), ActionPhotoUpload, "c1", true},
		{"manager manages types", id(RoleManager), ActionTypeManage, "c1", true},
		{"staff cannot manage types", id(RoleStaff), ActionTypeManage, "c1", false},
		{"manager lists users", id(RoleManager), ActionUserList, "c1", true},
		{"staff cannot list users", id(RoleStaff), ActionUserList, "c1", false},
		{"manager cannot manage users", id(RoleManager), ActionUserManage, "c1", false},
		{"admin manages users", id(RoleAdmin), ActionUserManage, "c1", true},
		{"manager invites", id(RoleManager), ActionUserInvite, "c1", true},
		{"admin denied across tenants", id(RoleAdmin), ActionEquipmentRead, "c2", false},
		{"empty target denied", id(RoleAdmin), ActionEquipmentRead, "", false},
		{"unknown role denied", id(Role("owner")), ActionEquipmentRead, "c1", false},
		{"unknown action denied", id(RoleAdmin), Action("equipment.export"), "c1", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Allow(tc.id, tc.action, tc.target); got != tc.want {
				t.Fatalf("Allow(%q, %q, %q) = %v, want %v", tc.id.Role, tc.action, tc.target, got, tc.want)
			}
		})
	}
}
