package pg

import (
	"context"

	"github.com/dropDatabas3/janus/internal/store/core"
)

const tokenReqCols = `id, created_at, version, ip_address, access_token,
	refresh_token_hash, is_refresh_token_used, revoked, scopes, refreshed_by,
	api_client_id, authorize_request_id, api_resource_ids`

func (s *Store) scanTokenRequest(row interface{ Scan(...any) error }) (*core.ApiClientTokenRequest, error) {
	var t core.ApiClientTokenRequest
	err := row.Scan(&t.ID, &t.CreatedAt, &t.Version, &t.IPAddress, &t.AccessToken,
		&t.RefreshTokenHash, &t.IsRefreshTokenUsed, &t.Revoked, &t.Scopes, &t.RefreshedBy,
		&t.ApiClientID, &t.AuthorizeRequestID, &t.ApiResourceIDs)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *Store) GetTokenRequest(ctx context.Context, id string) (*core.ApiClientTokenRequest, error) {
	return s.scanTokenRequest(s.pool.QueryRow(ctx,
		`SELECT `+tokenReqCols+` FROM api_client_token_requests WHERE id = $1`, id))
}

func (s *Store) FindTokenRequestByRefreshHash(ctx context.Context, hash string) (*core.ApiClientTokenRequest, error) {
	return s.scanTokenRequest(s.pool.QueryRow(ctx,
		`SELECT `+tokenReqCols+` FROM api_client_token_requests WHERE refresh_token_hash = $1`, hash))
}

func (s *Store) FindTokenRequestByAuthorizeRequest(ctx context.Context, authorizeRequestID string) (*core.ApiClientTokenRequest, error) {
	return s.scanTokenRequest(s.pool.QueryRow(ctx, `
		SELECT `+tokenReqCols+` FROM api_client_token_requests
		WHERE authorize_request_id = $1
		ORDER BY created_at LIMIT 1`, authorizeRequestID))
}

func (s *Store) FindTokenRequestRefreshing(ctx context.Context, id string) (*core.ApiClientTokenRequest, error) {
	return s.scanTokenRequest(s.pool.QueryRow(ctx,
		`SELECT `+tokenReqCols+` FROM api_client_token_requests WHERE refreshed_by = $1`, id))
}

func (s *Store) CreateTokenRequest(ctx context.Context, t *core.ApiClientTokenRequest) error {
	stamp(&t.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_client_token_requests (`+tokenReqCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		t.ID, t.CreatedAt, t.Version, t.IPAddress, t.AccessToken,
		t.RefreshTokenHash, t.IsRefreshTokenUsed, t.Revoked, t.Scopes, t.RefreshedBy,
		t.ApiClientID, t.AuthorizeRequestID, t.ApiResourceIDs)
	return mapErr(err)
}

func (s *Store) SaveTokenRequest(ctx context.Context, t *core.ApiClientTokenRequest) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE api_client_token_requests SET version = version + 1,
			is_refresh_token_used = $3, revoked = $4, refreshed_by = $5
		WHERE id = $1 AND version = $2`,
		t.ID, t.Version, t.IsRefreshTokenUsed, t.Revoked, t.RefreshedBy)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return s.saveOutcome(ctx,
			`SELECT EXISTS (SELECT 1 FROM api_client_token_requests WHERE id = $1)`, t.ID)
	}
	t.Version++
	return nil
}
