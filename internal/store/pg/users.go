package pg

import (
	"context"
	"encoding/json"

	"github.com/dropDatabas3/janus/internal/store/core"
)

const userCols = `id, created_at, version, username, password_hash,
	country_phone_code, phone_number, email, first_name, last_name, avatar,
	profile_update_history, blocked_at, lockout_ends_at, failed_login_attempts,
	totp_secret, domain_attributes, unverified_country_code,
	unverified_country_phone_code, unverified_phone_number, unverified_email,
	country_code, creator_id`

func (s *Store) scanUser(row interface{ Scan(...any) error }) (*core.User, error) {
	var u core.User
	var history, attrs []byte
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Version, &u.Username, &u.PasswordHash,
		&u.CountryPhoneCode, &u.PhoneNumber, &u.Email, &u.FirstName, &u.LastName, &u.Avatar,
		&history, &u.BlockedAt, &u.LockoutEndsAt, &u.FailedLoginAttempts,
		&u.TotpSecret, &attrs, &u.UnverifiedCountryCode,
		&u.UnverifiedCountryPhoneCode, &u.UnverifiedPhoneNumber, &u.UnverifiedEmail,
		&u.CountryCode, &u.CreatorID)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &u.ProfileUpdateHistory); err != nil {
			return nil, err
		}
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &u.DomainAttributes); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*core.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*core.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(username) = lower($1)`, username))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *Store) FindUserByPhone(ctx context.Context, phoneCode int, phoneNumber string) (*core.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE country_phone_code = $1 AND phone_number = $2`,
		phoneCode, phoneNumber))
}

func userJSON(u *core.User) (history, attrs []byte, err error) {
	history, err = json.Marshal(u.ProfileUpdateHistory)
	if err != nil {
		return nil, nil, err
	}
	attrs, err = json.Marshal(u.DomainAttributes)
	if err != nil {
		return nil, nil, err
	}
	return history, attrs, nil
}

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	stamp(&u.Meta)
	history, attrs, err := userJSON(u)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (`+userCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		u.ID, u.CreatedAt, u.Version, u.Username, u.PasswordHash,
		u.CountryPhoneCode, u.PhoneNumber, u.Email, u.FirstName, u.LastName, u.Avatar,
		history, u.BlockedAt, u.LockoutEndsAt, u.FailedLoginAttempts,
		u.TotpSecret, attrs, u.UnverifiedCountryCode,
		u.UnverifiedCountryPhoneCode, u.UnverifiedPhoneNumber, u.UnverifiedEmail,
		u.CountryCode, u.CreatorID)
	return mapErr(err)
}

func (s *Store) SaveUser(ctx context.Context, u *core.User) error {
	history, attrs, err := userJSON(u)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE users SET version = version + 1,
			username = $3, password_hash = $4, country_phone_code = $5,
			phone_number = $6, email = $7, first_name = $8, last_name = $9,
			avatar = $10, profile_update_history = $11, blocked_at = $12,
			lockout_ends_at = $13, failed_login_attempts = $14, totp_secret = $15,
			domain_attributes = $16, unverified_country_code = $17,
			unverified_country_phone_code = $18, unverified_phone_number = $19,
			unverified_email = $20, country_code = $21, creator_id = $22
		WHERE id = $1 AND version = $2`,
		u.ID, u.Version, u.Username, u.PasswordHash, u.CountryPhoneCode,
		u.PhoneNumber, u.Email, u.FirstName, u.LastName,
		u.Avatar, history, u.BlockedAt,
		u.LockoutEndsAt, u.FailedLoginAttempts, u.TotpSecret,
		attrs, u.UnverifiedCountryCode,
		u.UnverifiedCountryPhoneCode, u.UnverifiedPhoneNumber,
		u.UnverifiedEmail, u.CountryCode, u.CreatorID)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return s.saveOutcome(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, u.ID)
	}
	u.Version++
	return nil
}
