package pg

import (
	"context"

	"github.com/dropDatabas3/janus/internal/store/core"
)

// Countries, roles, claims, signing keys and the outbound call audit.

func (s *Store) GetCountry(ctx context.Context, code string) (*core.Country, error) {
	var c core.Country
	err := s.pool.QueryRow(ctx, `
		SELECT code, name, phone_code, allow_phone_number_registration,
			allow_ip_registration, allow_phone_number_login, allow_ip_login
		FROM countries WHERE code = $1`, code).
		Scan(&c.Code, &c.Name, &c.PhoneCode, &c.AllowPhoneNumberRegistration,
			&c.AllowIPRegistration, &c.AllowPhoneNumberLogin, &c.AllowIPLogin)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *Store) CreateCountry(ctx context.Context, c *core.Country) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO countries (code, name, phone_code, allow_phone_number_registration,
			allow_ip_registration, allow_phone_number_login, allow_ip_login)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.Code, c.Name, c.PhoneCode, c.AllowPhoneNumberRegistration,
		c.AllowIPRegistration, c.AllowPhoneNumberLogin, c.AllowIPLogin)
	return mapErr(err)
}

func (s *Store) CreateRole(ctx context.Context, r *core.Role) error {
	stamp(&r.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roles (id, created_at, version, display_name, description)
		VALUES ($1,$2,$3,$4,$5)`,
		r.ID, r.CreatedAt, r.Version, r.DisplayName, r.Description)
	return mapErr(err)
}

func (s *Store) CreateAppClaim(ctx context.Context, c *core.AppClaim) error {
	stamp(&c.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_claims (id, created_at, version, display_name, description, claim_group)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.CreatedAt, c.Version, c.DisplayName, c.Description, c.Group)
	return mapErr(err)
}

func (s *Store) AddRoleClaim(ctx context.Context, rc *core.RoleClaim) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO role_claims (role_id, claim_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING`, rc.RoleID, rc.ClaimID)
	return mapErr(err)
}

func (s *Store) AddUserRole(ctx context.Context, ur *core.UserRole) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_roles (role_id, user_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING`, ur.RoleID, ur.UserID)
	return mapErr(err)
}

func (s *Store) RemoveUserRole(ctx context.Context, ur *core.UserRole) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE role_id = $1 AND user_id = $2`, ur.RoleID, ur.UserID)
	return mapErr(err)
}

func (s *Store) ListUserRoles(ctx context.Context, userID string) ([]core.UserRole, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role_id, user_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.UserRole
	for rows.Next() {
		var ur core.UserRole
		if err := rows.Scan(&ur.RoleID, &ur.UserID); err != nil {
			return nil, err
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}

func (s *Store) GetActiveJsonWebKey(ctx context.Context) (*core.AppJsonWebKey, error) {
	var k core.AppJsonWebKey
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, version, is_active, type, curve, x, y, d
		FROM app_json_web_keys WHERE is_active
		ORDER BY created_at DESC LIMIT 1`).
		Scan(&k.ID, &k.CreatedAt, &k.Version, &k.IsActive, &k.Type, &k.Curve, &k.X, &k.Y, &k.D)
	if err != nil {
		return nil, mapErr(err)
	}
	return &k, nil
}

func (s *Store) CreateJsonWebKey(ctx context.Context, k *core.AppJsonWebKey) error {
	stamp(&k.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO app_json_web_keys (id, created_at, version, is_active, type, curve, x, y, d)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		k.ID, k.CreatedAt, k.Version, k.IsActive, k.Type, k.Curve, k.X, k.Y, k.D)
	return mapErr(err)
}

func (s *Store) CreateHttpCall(ctx context.Context, h *core.ApiClientHttpCall) error {
	stamp(&h.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_client_http_calls (id, created_at, version, address, payload,
			response_code, response_body, external_login_id, api_client_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		h.ID, h.CreatedAt, h.Version, h.Address, h.Payload,
		h.ResponseCode, h.ResponseBody, h.ExternalLoginID, h.ApiClientID)
	return mapErr(err)
}
