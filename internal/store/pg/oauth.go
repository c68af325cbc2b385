package pg

import (
	"context"

	"github.com/dropDatabas3/janus/internal/store/core"
)

// Authorize requests, clients, resources and per-client grants.

const authorizeCols = `id, created_at, version, request_type, code_challenge,
	verifier_method, scopes, state, nonce, consented_at, completed_at,
	tokens_issued_at, login_id, user_id, api_client_id, api_resource_ids`

func (s *Store) scanAuthorizeRequest(row interface{ Scan(...any) error }) (*core.AuthorizeRequest, error) {
	var r core.AuthorizeRequest
	err := row.Scan(&r.ID, &r.CreatedAt, &r.Version, &r.RequestType, &r.CodeChallenge,
		&r.VerifierMethod, &r.Scopes, &r.State, &r.Nonce, &r.ConsentedAt, &r.CompletedAt,
		&r.TokensIssuedAt, &r.LoginID, &r.UserID, &r.ApiClientID, &r.ApiResourceIDs)
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *Store) GetAuthorizeRequest(ctx context.Context, id string) (*core.AuthorizeRequest, error) {
	return s.scanAuthorizeRequest(s.pool.QueryRow(ctx,
		`SELECT `+authorizeCols+` FROM authorize_requests WHERE id = $1`, id))
}

func (s *Store) CreateAuthorizeRequest(ctx context.Context, r *core.AuthorizeRequest) error {
	stamp(&r.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO authorize_requests (`+authorizeCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		r.ID, r.CreatedAt, r.Version, r.RequestType, r.CodeChallenge,
		r.VerifierMethod, r.Scopes, r.State, r.Nonce, r.ConsentedAt, r.CompletedAt,
		r.TokensIssuedAt, r.LoginID, r.UserID, r.ApiClientID, r.ApiResourceIDs)
	return mapErr(err)
}

func (s *Store) SaveAuthorizeRequest(ctx context.Context, r *core.AuthorizeRequest) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE authorize_requests SET version = version + 1,
			consented_at = $3, completed_at = $4, tokens_issued_at = $5
		WHERE id = $1 AND version = $2`,
		r.ID, r.Version, r.ConsentedAt, r.CompletedAt, r.TokensIssuedAt)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return s.saveOutcome(ctx, `SELECT EXISTS (SELECT 1 FROM authorize_requests WHERE id = $1)`, r.ID)
	}
	r.Version++
	return nil
}

const clientCols = `id, created_at, version, display_name, logo, is_active,
	type, secret, domain, login_callback_uri, logout_callback_uri,
	backchannel_logout_uri, show_consent, verified_at, supports_ecdsa`

func (s *Store) GetApiClient(ctx context.Context, id string) (*core.ApiClient, error) {
	var c core.ApiClient
	err := s.pool.QueryRow(ctx, `SELECT `+clientCols+` FROM api_clients WHERE id = $1`, id).
		Scan(&c.ID, &c.CreatedAt, &c.Version, &c.DisplayName, &c.Logo, &c.IsActive,
			&c.Type, &c.Secret, &c.Domain, &c.LoginCallbackURI, &c.LogoutCallbackURI,
			&c.BackchannelLogoutURI, &c.ShowConsent, &c.VerifiedAt, &c.SupportsEcdsa)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *Store) CreateApiClient(ctx context.Context, c *core.ApiClient) error {
	stamp(&c.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_clients (`+clientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.CreatedAt, c.Version, c.DisplayName, c.Logo, c.IsActive,
		c.Type, c.Secret, c.Domain, c.LoginCallbackURI, c.LogoutCallbackURI,
		c.BackchannelLogoutURI, c.ShowConsent, c.VerifiedAt, c.SupportsEcdsa)
	return mapErr(err)
}

const resourceCols = `id, created_at, version, display_name, logo, is_active,
	scopes, requires_signed_tokens, symmetric_jwt_secret`

func (s *Store) GetApiResource(ctx context.Context, id string) (*core.ApiResource, error) {
	var r core.ApiResource
	err := s.pool.QueryRow(ctx, `SELECT `+resourceCols+` FROM api_resources WHERE id = $1`, id).
		Scan(&r.ID, &r.CreatedAt, &r.Version, &r.DisplayName, &r.Logo, &r.IsActive,
			&r.Scopes, &r.RequiresSignedTokens, &r.SymmetricJwtSecret)
	if err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *Store) CreateApiResource(ctx context.Context, r *core.ApiResource) error {
	stamp(&r.Meta)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_resources (`+resourceCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		r.ID, r.CreatedAt, r.Version, r.DisplayName, r.Logo, r.IsActive,
		r.Scopes, r.RequiresSignedTokens, r.SymmetricJwtSecret)
	return mapErr(err)
}

// GetApiClientResource keeps the null/empty distinction of allowed_scopes: a
// NULL column comes back as a nil slice (every declared scope), an empty array
// as a non-nil empty slice (none).
func (s *Store) GetApiClientResource(ctx context.Context, clientID, resourceID string) (*core.ApiClientResource, error) {
	g := core.ApiClientResource{ApiClientID: clientID, ApiResourceID: resourceID}
	err := s.pool.QueryRow(ctx, `
		SELECT allowed_scopes FROM api_client_resources
		WHERE api_client_id = $1 AND api_resource_id = $2`,
		clientID, resourceID).Scan(&g.AllowedScopes)
	if err != nil {
		return nil, mapErr(err)
	}
	return &g, nil
}

func (s *Store) SetApiClientResource(ctx context.Context, g *core.ApiClientResource) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_client_resources (api_client_id, api_resource_id, allowed_scopes)
		VALUES ($1,$2,$3)
		ON CONFLICT (api_client_id, api_resource_id)
		DO UPDATE SET allowed_scopes = EXCLUDED.allowed_scopes`,
		g.ApiClientID, g.ApiResourceID, g.AllowedScopes)
	return mapErr(err)
}
