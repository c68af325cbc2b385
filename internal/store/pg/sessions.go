package pg

import (
	"context"

	"github.com/dropDatabas3/janus/internal/store/core"
)

const loginCols = `id, created_at, version, ip_address, is_persistent,
	user_agent, updated_at, successful, ended_at, end_cause,
	ended_by_external_login_id, logout_ip_address, totp_window, user_id`

func (s *Store) scanLogin(row interface{ Scan(...any) error }) (*core.Login, error) {
	var l core.Login
	var cause *string
	err := row.Scan(&l.ID, &l.CreatedAt, &l.Version, &l.IPAddress, &l.IsPersistent,
		&l.UserAgent, &l.UpdatedAt, &l.Successful, &l.EndedAt, &cause,
		&l.EndedByExternalLoginID, &l.LogoutIPAddress, &l.TotpWindow, &l.UserID)
	if err != nil {
		return nil, mapErr(err)
	}
	if cause != nil {
		l.EndCause = core.LoginEndCause(*cause)
	}
	return &l, nil
}

func (s *Store) GetLogin(ctx context.Context, id string) (*core.Login, error) {
	return s.scanLogin(s.pool.QueryRow(ctx, `SELECT `+loginCols+` FROM logins WHERE id = $1`, id))
}

func (s *Store) CreateLogin(ctx context.Context, l *core.Login) error {
	stamp(&l.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO logins (`+loginCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		l.ID, l.CreatedAt, l.Version, l.IPAddress, l.IsPersistent,
		l.UserAgent, l.UpdatedAt, l.Successful, l.EndedAt, nullableCause(l.EndCause),
		l.EndedByExternalLoginID, l.LogoutIPAddress, l.TotpWindow, l.UserID)
	return mapErr(err)
}

func (s *Store) SaveLogin(ctx context.Context, l *core.Login) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE logins SET version = version + 1,
			updated_at = $3, successful = $4, ended_at = $5, end_cause = $6,
			ended_by_external_login_id = $7, logout_ip_address = $8, totp_window = $9
		WHERE id = $1 AND version = $2`,
		l.ID, l.Version, l.UpdatedAt, l.Successful, l.EndedAt, nullableCause(l.EndCause),
		l.EndedByExternalLoginID, l.LogoutIPAddress, l.TotpWindow)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return s.saveOutcome(ctx, `SELECT EXISTS (SELECT 1 FROM logins WHERE id = $1)`, l.ID)
	}
	l.Version++
	return nil
}

func nullableCause(c core.LoginEndCause) *string {
	if c == "" {
		return nil
	}
	v := string(c)
	return &v
}
