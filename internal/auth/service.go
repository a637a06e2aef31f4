package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"equiptrack.io/internal/ids"
)

const (
	defaultTokenTTL     = 7 * 24 * time.Hour
	invitationValidity  = 7 * 24 * time.Hour
	defaultSubscription = "free"
	defaultTimezone     = "UTC"
)

// Service provides identity, invitation and user management operations.
type Service struct {
	store    Store
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithTokenTTL configures issued token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service signing tokens with the given secret.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		store:    store,
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// AuthResult is returned by the credential-issuing operations.
type AuthResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
	Company   *Company  `json:"company"`
}

// RegisterCompanyInput carries the first-admin registration payload.
type RegisterCompanyInput struct {
	CompanyName    string `json:"company_name"`
	AdminEmail     string `json:"admin_email"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	Password       string `json:"password"`
	Phone          string `json:"phone,omitempty"`
}

// RegisterCompany creates a company, its admin user and default settings
// transactionally, then issues a token for the admin.
func (s *Service) RegisterCompany(ctx context.Context, in RegisterCompanyInput) (*AuthResult, error) {
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.AdminEmail = normalizeEmail(in.AdminEmail)
	if in.CompanyName == "" || in.AdminEmail == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: company name, admin email and password are required", ErrInvalidInput)
	}

	if _, err := s.store.FindUserByEmail(ctx, in.AdminEmail); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	company := &Company{
		ID:               ids.New(),
		Name:             in.CompanyName,
		Email:            in.AdminEmail,
		Phone:            in.Phone,
		SubscriptionPlan: defaultSubscription,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	settings := &CompanySettings{
		CompanyID: company.ID,
		Timezone:  defaultTimezone,
		CreatedAt: now,
	}
	verified := now
	admin := &User{
		ID:              ids.New(),
		CompanyID:       company.ID,
		Email:           in.AdminEmail,
		PasswordHash:    hash,
		FirstName:       in.AdminFirstName,
		LastName:        in.AdminLastName,
		Phone:           in.Phone,
		Role:            RoleAdmin,
		IsActive:        true,
		EmailVerifiedAt: &verified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateCompanyWithAdmin(ctx, company, settings, admin); err != nil {
		return nil, err
	}
	return s.authResult(admin, company)
}

// Login authenticates a user by email and password.
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	company, err := s.store.FindCompany(ctx, user.CompanyID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if !company.IsActive {
		return nil, ErrUnauthorized
	}
	_ = s.store.TouchLastLogin(ctx, user.ID, s.now().UTC())
	return s.authResult(user, company)
}

// Resolve verifies a bearer credential and maps it to a live identity.
// Liveness is re-checked on every request: a token for a deactivated user or
// company is rejected immediately, not only at issuance time.
func (s *Service) Resolve(ctx context.Context, rawToken string) (Identity, error) {
	claims, err := s.ParseToken(rawToken)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	user, err := s.store.FindUser(ctx, claims.Subject)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	if !user.IsActive {
		return Identity{}, ErrUnauthorized
	}
	company, err := s.store.FindCompany(ctx, user.CompanyID)
	if err != nil || !company.IsActive {
		return Identity{}, ErrUnauthorized
	}
	return Identity{
		UserID:    user.ID,
		CompanyID: user.CompanyID,
		Role:      user.Role,
		Email:     user.Email,
	}, nil
}

// InviteInput carries an invitation request.
type InviteInput struct {
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// InviteUser records an invitation for a new company member.
// Email delivery is out of scope; the caller distributes the token.
func (s *Service) InviteUser(ctx context.Context, inviter Identity, in InviteInput) (*Invitation, error) {
	if !Allow(inviter, ActionUserInvite, inviter.CompanyID) {
		return nil, ErrForbidden
	}
	in.Email = normalizeEmail(in.Email)
	if in.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if in.Role != RoleManager && in.Role != RoleStaff {
		return nil, fmt.Errorf("%w: invited role must be manager or staff", ErrInvalidInput)
	}

	existing, err := s.store.FindUserByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.CompanyID == inviter.CompanyID {
		return nil, fmt.Errorf("%w: user already exists in this company", ErrConflict)
	}

	now := s.now().UTC()
	if _, err := s.store.FindPendingInvitation(ctx, inviter.CompanyID, in.Email, now); err == nil {
		return nil, fmt.Errorf("%w: invitation already sent to this email", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	inv := &Invitation{
		ID:        ids.New(),
		CompanyID: inviter.CompanyID,
		Email:     in.Email,
		Role:      in.Role,
		InvitedBy: inviter.UserID,
		Token:     ids.NewToken(),
		ExpiresAt: now.Add(invitationValidity),
		CreatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// InvitationDetails is what the public invitation page may see.
type InvitationDetails struct {
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	CompanyName string    `json:"company_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// GetInvitation looks up a pending invitation by its token.
func (s *Service) GetInvitation(ctx context.Context, token string) (*InvitationDetails, error) {
	inv, err := s.lookupPendingInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	company, err := s.store.FindCompany(ctx, inv.CompanyID)
	if err != nil {
		return nil, err
	}
	return &InvitationDetails{
		Email:       inv.Email,
		Role:        inv.Role,
		CompanyName: company.Name,
		ExpiresAt:   inv.ExpiresAt,
	}, nil
}

// AcceptInput carries the invitation acceptance payload.
type AcceptInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	Phone     string `json:"phone,omitempty"`
}

// AcceptInvitation creates the invited user and marks the invitation accepted
// in one transaction. A second acceptance fails with a conflict.
func (s *Service) AcceptInvitation(ctx context.Context, token string, in AcceptInput) (*AuthResult, error) {
	if in.FirstName == "" || in.LastName == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: first name, last name and password are required", ErrInvalidInput)
	}
	inv, err := s.lookupPendingInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	verified := now
	user := &User{
		ID:              ids.New(),
		CompanyID:       inv.CompanyID,
		Email:           inv.Email,
		PasswordHash:    hash,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Phone:           in.Phone,
		Role:            inv.Role,
		IsActive:        true,
		EmailVerifiedAt: &verified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.AcceptInvitation(ctx, inv.ID, user, now); err != nil {
		return nil, err
	}
	company, err := s.store.FindCompany(ctx, inv.CompanyID)
	if err != nil {
		return nil, err
	}
	return s.authResult(user, company)
}

func (s *Service) lookupPendingInvitation(ctx context.Context, token string) (*Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: invitation token is required", ErrInvalidInput)
	}
	inv, err := s.store.FindInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.AcceptedAt != nil {
		return nil, fmt.Errorf("%w: invitation already accepted", ErrConflict)
	}
	if inv.ExpiresAt.Before(s.now().UTC()) {
		return nil, fmt.Errorf("%w: invitation has expired", ErrConflict)
	}
	return inv, nil
}

// ListUsers returns the active members of the caller's company.
func (s *Service) ListUsers(ctx context.Context, caller Identity) ([]*User, error) {
	if !Allow(caller, ActionUserList, caller.CompanyID) {
		return nil, ErrForbidden
	}
	return s.store.ListUsers(ctx, caller.CompanyID)
}

// GetUser returns a single user in the caller's company.
// Users outside the tenant surface as not found, never as forbidden.
func (s *Service) GetUser(ctx context.Context, caller Identity, userID string) (*User, error) {
	return s.store.FindUserInCompany(ctx, caller.CompanyID, userID)
}

// UpdateProfile lets the caller change their own profile fields.
func (s *Service) UpdateProfile(ctx context.Context, caller Identity, upd ProfileUpdate) (*User, error) {
	return s.store.UpdateProfile(ctx, caller.UserID, upd)
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, caller Identity, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	user, err := s.store.FindUser(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrUnauthorized
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, caller.UserID, hash)
}

// ChangeRole lets an admin change another member's role. Changing one's own
// role is rejected so a company cannot lock itself out of admin access.
func (s *Service) ChangeRole(ctx context.Context, caller Identity, userID string, role Role) (*User, error) {
	if !Allow(caller, ActionUserManage, caller.CompanyID) {
		return nil, ErrForbidden
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if caller.UserID == userID {
		return nil, fmt.Errorf("%w: cannot change your own role", ErrConflict)
	}
	return s.store.UpdateRole(ctx, caller.CompanyID, userID, role)
}

// SetUserActive deactivates or reactivates a member of the caller's company.
func (s *Service) SetUserActive(ctx context.Context, caller Identity, userID string, active bool) (*User, error) {
	if !Allow(caller, ActionUserManage, caller.CompanyID) {
		return nil, ErrForbidden
	}
	if !active && caller.UserID == userID {
		return nil, fmt.Errorf("%w: cannot deactivate your own account", ErrConflict)
	}
	return s.store.SetUserActive(ctx, caller.CompanyID, userID, active)
}

func (s *Service) authResult(user *User, company *Company) (*AuthResult, error) {
	token, exp, err := s.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: exp, User: user, Company: company}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
