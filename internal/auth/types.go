package auth

import "time"

// Role is one of the three fixed tenant roles.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// Company is the tenant isolation boundary. All data is scoped to one company.
type Company struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	SubscriptionPlan string    `json:"subscription_plan"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CompanySettings holds per-tenant defaults created alongside registration.
type CompanySettings struct {
	CompanyID string    `json:"company_id"`
	Timezone  string    `json:"timezone"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a member of exactly one company.
type User struct {
	ID              string     `json:"id"`
	CompanyID       string     `json:"company_id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Phone           string     `json:"phone,omitempty"`
	Role            Role       `json:"role"`
	IsActive        bool       `json:"is_active"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	ProfilePhotoURL string     `json:"profile_photo_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Invitation lets an admin or manager bring a new user into the company.
type Invitation struct {
	ID         string     `json:"id"`
	CompanyID  string     `json:"company_id"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	InvitedBy  string     `json:"invited_by"`
	Token      string     `json:"-"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Identity is the verified caller for the duration of one request.
// It is resolved fresh on every request and never cached past it.
type Identity struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      Role   `json:"role"`
	Email     string `json:"email"`
}

// TenantContext projects an identity into the capability flags consumed by
// downstream authorization checks.
type TenantContext struct {
	CompanyID string `json:"company_id"`
	Role      Role   `json:"role"`
	IsAdmin   bool   `json:"is_admin"`
	IsManager bool   `json:"is_manager"`
	IsStaff   bool   `json:"is_staff"`
}

// Derive builds the tenant context for an identity.
func Derive(id Identity) TenantContext {
	return TenantContext{
		CompanyID: id.CompanyID,
		Role:      id.Role,
		IsAdmin:   id.Role == RoleAdmin,
		IsManager: id.Role == RoleManager,
		IsStaff:   id.Role == RoleStaff,
	}
}

// ProfileUpdate carries the fields a user may change on their own profile.
type ProfileUpdate struct {
	FirstName       *string `json:"first_name,omitempty"`
	LastName        *string `json:"last_name,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	ProfilePhotoURL *string `json:"profile_photo_url,omitempty"`
}
