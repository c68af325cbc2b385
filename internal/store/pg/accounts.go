package pg

import (
	"context"

	"github.com/dropDatabas3/janus/internal/store/core"
)

// External logins, one-time codes and signup requests.

const externalCols = `id, created_at, version, ip_address, user_agent,
	access_token, refresh_token, id_token, openid_scopes, updated_at,
	previous_refresh_token, user_id, login_id, api_client_id, api_resource_ids`

func (s *Store) GetExternalLogin(ctx context.Context, id string) (*core.ExternalLogin, error) {
	var e core.ExternalLogin
	err := s.pool.QueryRow(ctx, `SELECT `+externalCols+` FROM external_logins WHERE id = $1`, id).
		Scan(&e.ID, &e.CreatedAt, &e.Version, &e.IPAddress, &e.UserAgent,
			&e.AccessToken, &e.RefreshToken, &e.IDToken, &e.OpenIDScopes, &e.UpdatedAt,
			&e.PreviousRefreshToken, &e.UserID, &e.LoginID, &e.ApiClientID, &e.ApiResourceIDs)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (s *Store) CreateExternalLogin(ctx context.Context, e *core.ExternalLogin) error {
	stamp(&e.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO external_logins (`+externalCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.CreatedAt, e.Version, e.IPAddress, e.UserAgent,
		e.AccessToken, e.RefreshToken, e.IDToken, e.OpenIDScopes, e.UpdatedAt,
		e.PreviousRefreshToken, e.UserID, e.LoginID, e.ApiClientID, e.ApiResourceIDs)
	return mapErr(err)
}

func (s *Store) SaveExternalLogin(ctx context.Context, e *core.ExternalLogin) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE external_logins SET version = version + 1,
			access_token = $3, refresh_token = $4, id_token = $5, updated_at = $6,
			previous_refresh_token = $7
		WHERE id = $1 AND version = $2`,
		e.ID, e.Version, e.AccessToken, e.RefreshToken, e.IDToken, e.UpdatedAt,
		e.PreviousRefreshToken)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return s.saveOutcome(ctx, `SELECT EXISTS (SELECT 1 FROM external_logins WHERE id = $1)`, e.ID)
	}
	e.Version++
	return nil
}

const otcCols = `id, created_at, version, code, reason, is_used,
	failed_attempts, ip_address, user_agent, user_id`

func (s *Store) GetOneTimeCode(ctx context.Context, id string) (*core.OneTimeCode, error) {
	var c core.OneTimeCode
	err := s.pool.QueryRow(ctx, `SELECT `+otcCols+` FROM one_time_codes WHERE id = $1`, id).
		Scan(&c.ID, &c.CreatedAt, &c.Version, &c.Code, &c.Reason, &c.IsUsed,
			&c.FailedAttempts, &c.IPAddress, &c.UserAgent, &c.UserID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *Store) CreateOneTimeCode(ctx context.Context, c *core.OneTimeCode) error {
	stamp(&c.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO one_time_codes (`+otcCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.CreatedAt, c.Version, c.Code, c.Reason, c.IsUsed,
		c.FailedAttempts, c.IPAddress, c.UserAgent, c.UserID)
	return mapErr(err)
}

func (s *Store) SaveOneTimeCode(ctx context.Context, c *core.OneTimeCode) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE one_time_codes SET version = version + 1,
			is_used = $3, failed_attempts = $4
		WHERE id = $1 AND version = $2`,
		c.ID, c.Version, c.IsUsed, c.FailedAttempts)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return s.saveOutcome(ctx, `SELECT EXISTS (SELECT 1 FROM one_time_codes WHERE id = $1)`, c.ID)
	}
	c.Version++
	return nil
}

const signupCols = `id, created_at, version, ip_address, user_agent,
	country_phone_code, phone_number, email, username, password_hash,
	first_name, last_name, email_verification_code, sms_verification_code,
	expires_at, failed_attempts, consumed_at, created_user_id, country_code`

func (s *Store) GetSignupRequest(ctx context.Context, id string) (*core.SignupRequest, error) {
	var r core.SignupRequest
	err := s.pool.QueryRow(ctx, `SELECT `+signupCols+` FROM signup_requests WHERE id = $1`, id).
		Scan(&r.ID, &r.CreatedAt, &r.Version, &r.IPAddress, &r.UserAgent,
			&r.CountryPhoneCode, &r.PhoneNumber, &r.Email, &r.Username, &r.PasswordHash,
			&r.FirstName, &r.LastName, &r.EmailVerificationCode, &r.SmsVerificationCode,
			&r.ExpiresAt, &r.FailedAttempts, &r.ConsumedAt, &r.CreatedUserID, &r.CountryCode)
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *Store) CreateSignupRequest(ctx context.Context, r *core.SignupRequest) error {
	stamp(&r.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO signup_requests (`+signupCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, r.CreatedAt, r.Version, r.IPAddress, r.UserAgent,
		r.CountryPhoneCode, r.PhoneNumber, r.Email, r.Username, r.PasswordHash,
		r.FirstName, r.LastName, r.EmailVerificationCode, r.SmsVerificationCode,
		r.ExpiresAt, r.FailedAttempts, r.ConsumedAt, r.CreatedUserID, r.CountryCode)
	return mapErr(err)
}

func (s *Store) SaveSignupRequest(ctx context.Context, r *core.SignupRequest) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE signup_requests SET version = version + 1,
			failed_attempts = $3, consumed_at = $4, created_user_id = $5
		WHERE id = $1 AND version = $2`,
		r.ID, r.Version, r.FailedAttempts, r.ConsumedAt, r.CreatedUserID)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return s.saveOutcome(ctx, `SELECT EXISTS (SELECT 1 FROM signup_requests WHERE id = $1)`, r.ID)
	}
	r.Version++
	return nil
}
