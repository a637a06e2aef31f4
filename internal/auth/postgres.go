package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, company_id, email, password_hash, first_name, last_name,
	coalesce(phone, ''), role, is_active, email_verified_at, last_login_at,
	coalesce(profile_photo_url, ''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.CompanyID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Phone, &u.Role, &u.IsActive, &u.EmailVerifiedAt, &u.LastLoginAt,
		&u.ProfilePhotoURL, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) CreateCompanyWithAdmin(ctx context.Context, company *Company, settings *CompanySettings, admin *User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into companies(id, name, email, phone, subscription_plan, is_active, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8)
	`, company.ID, company.Name, company.Email, company.Phone, company.SubscriptionPlan,
		company.IsActive, company.CreatedAt, company.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into company_settings(company_id, timezone, created_at)
		values($1,$2,$3)
	`, settings.CompanyID, settings.Timezone, settings.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into users(id, company_id, email, password_hash, first_name, last_name,
			phone, role, is_active, email_verified_at, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, admin.ID, admin.CompanyID, admin.Email, admin.PasswordHash, admin.FirstName,
		admin.LastName, admin.Phone, admin.Role, admin.IsActive, admin.EmailVerifiedAt,
		admin.CreatedAt, admin.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) FindCompany(ctx context.Context, id string) (*Company, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, name, email, coalesce(phone, ''), subscription_plan, is_active, created_at, updated_at
		from companies where id=$1
	`, id)
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.SubscriptionPlan, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) FindUser(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
}

func (s *PGStore) FindUserInCompany(ctx context.Context, companyID, userID string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1 and company_id=$2 and is_active`, userID, companyID))
}

func (s *PGStore) ListUsers(ctx context.Context, companyID string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users where company_id=$1 and is_active order by created_at desc`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PGStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update users set last_login_at=$2 where id=$1`, userID, at)
	return err
}

func (s *PGStore) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		update users set
			first_name = coalesce($2, first_name),
			last_name = coalesce($3, last_name),
			phone = coalesce($4, phone),
			profile_photo_url = coalesce($5, profile_photo_url),
			updated_at = now()
		where id=$1
		returning `+userColumns,
		userID, upd.FirstName, upd.LastName, upd.Phone, upd.ProfilePhotoURL))
}

func (s *PGStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, updated_at=now() where id=$1`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) UpdateRole(ctx context.Context, companyID, userID string, role Role) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		update users set role=$3, updated_at=now()
		where id=$1 and company_id=$2 and is_active
		returning `+userColumns,
		userID, companyID, role))
}

func (s *PGStore) SetUserActive(ctx context.Context, companyID, userID string, active bool) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		update users set is_active=$3, updated_at=now()
		where id=$1 and company_id=$2
		returning `+userColumns,
		userID, companyID, active))
}

func (s *PGStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_invitations(id, company_id, email, role, invited_by, token, expires_at, created_at)
		values($1,$2,$3,$4,$5,$6,$7,$8)
	`, inv.ID, inv.CompanyID, inv.Email, inv.Role, inv.InvitedBy, inv.Token, inv.ExpiresAt, inv.CreatedAt)
	return err
}

const invitationColumns = `id, company_id, email, role, invited_by, token, expires_at, accepted_at, created_at`

func scanInvitation(row interface{ Scan(...any) error }) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Email, &inv.Role, &inv.InvitedBy,
		&inv.Token, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *PGStore) FindInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	return scanInvitation(s.db.QueryRowContext(ctx,
		`select `+invitationColumns+` from user_invitations where token=$1`, token))
}

func (s *PGStore) FindPendingInvitation(ctx context.Context, companyID, email string, now time.Time) (*Invitation, error) {
	return scanInvitation(s.db.QueryRowContext(ctx, `
		select `+invitationColumns+` from user_invitations
		where company_id=$1 and email=$2 and accepted_at is null and expires_at >= $3
	`, companyID, email, now))
}

func (s *PGStore) AcceptInvitation(ctx context.Context, invitationID string, user *User, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// The accepted_at guard lives inside the statement so a concurrent
	// acceptance observes zero affected rows and rolls back.
	res, err := tx.ExecContext(ctx, `
		update user_invitations set accepted_at=$2
		where id=$1 and accepted_at is null
	`, invitationID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
		insert into users(id, company_id, email, password_hash, first_name, last_name,
			phone, role, is_active, email_verified_at, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, user.ID, user.CompanyID, user.Email, user.PasswordHash, user.FirstName,
		user.LastName, user.Phone, user.Role, user.IsActive, user.EmailVerifiedAt,
		user.CreatedAt, user.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
