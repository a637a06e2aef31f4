package auth

// Action identifies an operation subject to the authorization policy.
type Action string

const (
	ActionEquipmentCreate Action = "equipment.create"
	ActionEquipmentUpdate Action = "equipment.update"
	ActionEquipmentDelete Action = "equipment.delete"
	ActionEquipmentRead   Action = "equipment.read"
	ActionEquipmentStatus Action = "equipment.status"
	ActionTypeManage      Action = "equipment_type.manage"
	ActionUserList        Action = "user.list"
	ActionUserManage      Action = "user.manage"
	ActionUserInvite      Action = "user.invite"
	ActionPhotoUpload     Action = "photo.upload"
)

// Allow is the single authorization policy. Every business operation routes
// its role/ownership decision through here instead of ad-hoc checks.
// Cross-tenant access is denied regardless of role; callers surface that
// denial as a not-found, never as a forbidden.
func Allow(id Identity, action Action, resourceCompany string) bool {
	if resourceCompany == "" || id.CompanyID != resourceCompany {
		return false
	}
	switch action {
	case ActionEquipmentCreate, ActionEquipmentUpdate, ActionTypeManage, ActionUserList, ActionUserInvite:
		return id.Role == RoleAdmin || id.Role == RoleManager
	case ActionEquipmentDelete, ActionUserManage:
		return id.Role == RoleAdmin
	case ActionEquipmentRead, ActionEquipmentStatus, ActionPhotoUpload:
		return id.Role.Valid()
	}
	return false
}
