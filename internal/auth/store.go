package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the identity subsystem.
type Store interface {
	// CreateCompanyWithAdmin persists the company, its first admin user and
	// default settings in a single transaction. A partial company without an
	// admin must never be observable.
	CreateCompanyWithAdmin(ctx context.Context, company *Company, settings *CompanySettings, admin *User) error
	FindCompany(ctx context.Context, id string) (*Company, error)

	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserInCompany(ctx context.Context, companyID, userID string) (*User, error)
	ListUsers(ctx context.Context, companyID string) ([]*User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
	UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateRole(ctx context.Context, companyID, userID string, role Role) (*User, error)
	SetUserActive(ctx context.Context, companyID, userID string, active bool) (*User, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	FindInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	FindPendingInvitation(ctx context.Context, companyID, email string, now time.Time) (*Invitation, error)
	// AcceptInvitation creates the user and marks the invitation accepted in
	// one transaction. It returns ErrConflict when the invitation was already
	// accepted, including by a concurrent request.
	AcceptInvitation(ctx context.Context, invitationID string, user *User, at time.Time) error
}
