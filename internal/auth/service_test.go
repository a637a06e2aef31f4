package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeStore is a mutex-guarded in-memory Store for service tests.
type fakeStore struct {
	mu          sync.Mutex
	companies   map[string]*Company
	users       map[string]*User
	invitations map[string]*Invitation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies:   make(map[string]*Company),
		users:       make(map[string]*User),
		invitations: make(map[string]*Invitation),
	}
}

func (f *fakeStore) CreateCompanyWithAdmin(_ context.Context, c *Company, _ *CompanySettings, admin *User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.companies[c.ID] = c
	f.users[admin.ID] = admin
	return nil
}

func (f *fakeStore) FindCompany(_ context.Context, id string) (*Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) FindUser(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) FindUserInCompany(_ context.Context, companyID, userID string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.CompanyID != companyID {
		return nil, ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) ListUsers(_ context.Context, companyID string) ([]*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*User
	for _, u := range f.users {
		if u.CompanyID == companyID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, userID string, upd ProfileUpdate) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.ProfilePhotoURL != nil {
		u.ProfilePhotoURL = *upd.ProfilePhotoURL
	}
	return u, nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, userID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeStore) UpdateRole(_ context.Context, companyID, userID string, role Role) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.CompanyID != companyID {
		return nil, ErrNotFound
	}
	u.Role = role
	return u, nil
}

func (f *fakeStore) SetUserActive(_ context.Context, companyID, userID string, active bool) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.CompanyID != companyID {
		return nil, ErrNotFound
	}
	u.IsActive = active
	return u, nil
}

func (f *fakeStore) CreateInvitation(_ context.Context, inv *Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invitations[inv.ID] = inv
	return nil
}

func (f *fakeStore) FindInvitationByToken(_ context.Context, token string) (*Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) FindPendingInvitation(_ context.Context, companyID, email string, now time.Time) (*Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.CompanyID == companyID && inv.Email == email &&
			inv.AcceptedAt == nil && inv.ExpiresAt.After(now) {
			return inv, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) AcceptInvitation(_ context.Context, invitationID string, user *User, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[invitationID]
	if !ok {
		return ErrNotFound
	}
	if inv.AcceptedAt != nil {
		return ErrConflict
	}
	inv.AcceptedAt = &at
	f.users[user.ID] = user
	return nil
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store, "test-secret")
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func register(t *testing.T, svc *Service, company, email string) *AuthResult {
	t.Helper()
	res, err := svc.RegisterCompany(context.Background(), RegisterCompanyInput{
		CompanyName:    company,
		AdminEmail:     email,
		AdminFirstName: "Ada",
		AdminLastName:  "Admin",
		Password:       "s3cret-pw",
	})
	if err != nil {
		t.Fatalf("register company: %v", err)
	}
	return res
}

func identityOf(res *AuthResult) Identity {
	return Identity{
		UserID:    res.User.ID,
		CompanyID: res.User.CompanyID,
		Role:      res.User.Role,
		Email:     res.User.Email,
	}
}

func TestRegisterCompanyIssuesAdminToken(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	res := register(t, svc, "Acme", "ada@acme.test")

	if res.Token == "" {
		t.Fatal("expected a token")
	}
	if res.User.Role != RoleAdmin {
		t.Fatalf("admin role = %q", res.User.Role)
	}
	if res.User.EmailVerifiedAt == nil {
		t.Fatal("first admin should be verified")
	}
	if res.Company.ID != res.User.CompanyID {
		t.Fatal("user must belong to the created company")
	}

	id, err := svc.Resolve(context.Background(), res.Token)
	if err != nil {
		t.Fatalf("resolve issued token: %v", err)
	}
	if id.UserID != res.User.ID || id.CompanyID != res.Company.ID {
		t.Fatalf("resolved identity mismatch: %+v", id)
	}
}

func TestRegisterCompanyDuplicateEmail(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	register(t, svc, "Acme", "ada@acme.test")

	_, err := svc.RegisterCompany(context.Background(), RegisterCompanyInput{
		CompanyName: "Other Co",
		AdminEmail:  "Ada@Acme.Test",
		Password:    "another-pw",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	register(t, svc, "Acme", "ada@acme.test")

	if _, err := svc.Login(context.Background(), "ada@acme.test", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Login(context.Background(), "ada@acme.test", "s3cret-pw"); err != nil {
		t.Fatalf("valid login failed: %v", err)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	res := register(t, svc, "Acme", "ada@acme.test")

	store.users[res.User.ID].IsActive = false
	if _, err := svc.Login(context.Background(), "ada@acme.test", "s3cret-pw"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
}

func TestResolveRejectsDeactivatedUser(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	res := register(t, svc, "Acme", "ada@acme.test")

	if _, err := svc.Resolve(context.Background(), res.Token); err != nil {
		t.Fatalf("resolve before deactivation: %v", err)
	}
	store.users[res.User.ID].IsActive = false
	if _, err := svc.Resolve(context.Background(), res.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized after deactivation", err)
	}
}

func TestResolveRejectsDeactivatedCompany(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	res := register(t, svc, "Acme", "ada@acme.test")

	store.companies[res.Company.ID].IsActive = false
	if _, err := svc.Resolve(context.Background(), res.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized for dead company", err)
	}
}

func TestInviteUserValidation(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	res := register(t, svc, "Acme", "ada@acme.test")
	admin := identityOf(res)

	if _, err := svc.InviteUser(context.Background(), admin, InviteInput{Email: "new@acme.test", Role: RoleAdmin}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("inviting an admin: err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.InviteUser(context.Background(), admin, InviteInput{Email: "ada@acme.test", Role: RoleStaff}); !errors.Is(err, ErrConflict) {
		t.Fatalf("inviting existing member: err = %v, want ErrConflict", err)
	}

	staff := admin
	staff.Role = RoleStaff
	if _, err := svc.InviteUser(context.Background(), staff, InviteInput{Email: "new@acme.test", Role: RoleStaff}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("staff inviting: err = %v, want ErrForbidden", err)
	}
}

func TestInviteUserDuplicatePending(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	admin := identityOf(register(t, svc, "Acme", "ada@acme.test"))

	if _, err := svc.InviteUser(context.Background(), admin, InviteInput{Email: "new@acme.test", Role: RoleStaff}); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	if _, err := svc.InviteUser(context.Background(), admin, InviteInput{Email: "new@acme.test", Role: RoleStaff}); !errors.Is(err, ErrConflict) {
		t.Fatalf("second invite: err = %v, want ErrConflict", err)
	}
}

func TestAcceptInvitationOnceOnly(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	admin := identityOf(register(t, svc, "Acme", "ada@acme.test"))

	inv, err := svc.InviteUser(context.Background(), admin, InviteInput{Email: "new@acme.test", Role: RoleManager})
	if err != nil {
		t.Fatal(err)
	}

	in := AcceptInput{FirstName: "Max", LastName: "Manager", Password: "welcome-pw"}
	res, err := svc.AcceptInvitation(context.Background(), inv.Token, in)
	if err != nil {
		t.Fatalf("first acceptance: %v", err)
	}
	if res.User.Role != RoleManager {
		t.Fatalf("accepted role = %q", res.User.Role)
	}
	if res.User.CompanyID != admin.CompanyID {
		t.Fatal("accepted user must join the inviting company")
	}

	if _, err := svc.AcceptInvitation(context.Background(), inv.Token, in); !errors.Is(err, ErrConflict) {
		t.Fatalf("second acceptance: err = %v, want ErrConflict", err)
	}
}

func TestAcceptInvitationExpired(t *testing.T) {
	store := newFakeStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	current := base
	svc, err := NewService(store, "test-secret", WithClock(func() time.Time { return current }))
	if err != nil {
		t.Fatal(err)
	}

	admin := identityOf(register(t, svc, "Acme", "ada@acme.test"))
	inv, err := svc.InviteUser(context.Background(), admin, InviteInput{Email: "late@acme.test", Role: RoleStaff})
	if err != nil {
		t.Fatal(err)
	}

	current = base.Add(8 * 24 * time.Hour)
	_, err = svc.AcceptInvitation(context.Background(), inv.Token, AcceptInput{
		FirstName: "Too", LastName: "Late", Password: "pw-123456",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict for expired invitation", err)
	}
}

func TestChangePasswordVerifiesCurrent(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	res := register(t, svc, "Acme", "ada@acme.test")
	admin := identityOf(res)

	if err := svc.ChangePassword(context.Background(), admin, "wrong", "new-pw-123"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := svc.ChangePassword(context.Background(), admin, "s3cret-pw", "new-pw-123"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := svc.Login(context.Background(), "ada@acme.test", "new-pw-123"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestChangeRoleGuards(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store)
	res := register(t, svc, "Acme", "ada@acme.test")
	admin := identityOf(res)

	if _, err := svc.ChangeRole(context.Background(), admin, admin.UserID, RoleStaff); !errors.Is(err, ErrConflict) {
		t.Fatalf("self role change: err = %v, want ErrConflict", err)
	}

	inv, err := svc.InviteUser(context.Background(), admin, InviteInput{Email: "m@acme.test", Role: RoleStaff})
	if err != nil {
		t.Fatal(err)
	}
	accepted, err := svc.AcceptInvitation(context.Background(), inv.Token, AcceptInput{
		FirstName: "Staff", LastName: "Member", Password: "pw-123456",
	})
	if err != nil {
		t.Fatal(err)
	}
	u, err := svc.ChangeRole(context.Background(), admin, accepted.User.ID, RoleManager)
	if err != nil {
		t.Fatalf("change role: %v", err)
	}
	if u.Role != RoleManager {
		t.Fatalf("role = %q, want manager", u.Role)
	}
}

func TestSetUserActiveSelfDeactivation(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	admin := identityOf(register(t, svc, "Acme", "ada@acme.test"))

	if _, err := svc.SetUserActive(context.Background(), admin, admin.UserID, false); !errors.Is(err, ErrConflict) {
		t.Fatalf("self deactivation: err = %v, want ErrConflict", err)
	}
}

func TestGetUserCrossTenantIsNotFound(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	a := register(t, svc, "Acme", "ada@acme.test")
	b := register(t, svc, "Globex", "gus@globex.test")

	_, err := svc.GetUser(context.Background(), identityOf(a), b.User.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound across tenants", err)
	}
}
