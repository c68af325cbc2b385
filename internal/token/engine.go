// Package token mints access/refresh pairs for completed authorize requests
// and rotates refresh tokens on use. Rotated-out records stay in the store as
// a singly-linked chain (RefreshedBy); presenting an already-rotated token is
// treated as theft and revokes the whole chain plus the owning login.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/janus/internal/authorize"
	jwtx "github.com/dropDatabas3/janus/internal/jwt"
	"github.com/dropDatabas3/janus/internal/metrics"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	tokens "github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/session"
	"github.com/dropDatabas3/janus/internal/store/core"
)

var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenReused   = errors.New("refresh token already used")
	ErrTokenRevoked  = errors.New("token request revoked")
	ErrNotCompleted  = errors.New("authorize request not completed")
)

const casRetries = 3

// Pair is one issued access/refresh pair. RefreshToken is the only time the
// raw value exists outside the client; the store keeps its digest.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenRequest *core.ApiClientTokenRequest
}

// Engine is the token issuance & rotation engine.
type Engine interface {
	// ExchangeCode performs the authorization-code grant: one-shot code
	// consumption, PKCE verification, then first issuance.
	ExchangeCode(ctx context.Context, code, verifier, clientID, ip string) (*Pair, error)
	// IssueTokens mints the single token pair for a completed authorize request.
	IssueTokens(ctx context.Context, authorizeRequestID, ip string) (*Pair, error)
	RefreshTokens(ctx context.Context, refreshToken, ip string) (*Pair, error)
	RevokeChain(ctx context.Context, tokenRequestID string) error
}

type Deps struct {
	Store     core.Store
	Authorize authorize.Service
	Sessions  session.Manager
	// Issuer signs JWT access tokens; optional when no resource demands them.
	Issuer *jwtx.Issuer
	// AccessTTL bounds opaque access tokens. Defaults to the issuer's TTL
	// when one is wired, 15 minutes otherwise.
	AccessTTL  time.Duration
	TokenBytes int
}

type engine struct {
	store      core.Store
	authz      authorize.Service
	sessions   session.Manager
	issuer     *jwtx.Issuer
	accessTTL  time.Duration
	tokenBytes int
}

func NewEngine(d Deps) Engine {
	n := d.TokenBytes
	if n <= 0 {
		n = 32
	}
	ttl := d.AccessTTL
	if ttl <= 0 && d.Issuer != nil {
		ttl = d.Issuer.AccessTTL
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &engine{
		store:      d.Store,
		authz:      d.Authorize,
		sessions:   d.Sessions,
		issuer:     d.Issuer,
		accessTTL:  ttl,
		tokenBytes: n,
	}
}

func (e *engine) ExchangeCode(ctx context.Context, code, verifier, clientID, ip string) (*Pair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("token.exchange"))

	r, err := e.authz.ConsumeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.ApiClientID != clientID {
		log.Warn("client mismatch on code exchange", logger.ClientID(clientID))
		return nil, authorize.ErrCodeInvalid
	}
	if err := authorize.VerifyPKCE(r.VerifierMethod, r.CodeChallenge, verifier); err != nil {
		log.Warn("pkce mismatch", logger.AuthorizeID(r.ID))
		return nil, err
	}
	return e.IssueTokens(ctx, r.ID, ip)
}

func (e *engine) IssueTokens(ctx context.Context, authorizeRequestID, ip string) (*Pair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("token.issue"))

	r, err := e.store.GetAuthorizeRequest(ctx, authorizeRequestID)
	if err != nil {
		return nil, err
	}

	// One pair per authorize request, ever. The issuance is claimed by
	// stamping TokensIssuedAt under a conditional save before minting, so
	// concurrent exchanges of the same code (e.g. a replay racing the cache
	// one-shot) resolve to a single winner.
	claimed := false
	for attempt := 0; attempt < casRetries; attempt++ {
		if r.CompletedAt == nil {
			return nil, ErrNotCompleted
		}
		if r.TokensIssuedAt != nil {
			return nil, authorize.ErrCodeAlreadyExchanged
		}
		now := time.Now().UTC()
		r.TokensIssuedAt = &now
		err = e.store.SaveAuthorizeRequest(ctx, r)
		if err == nil {
			claimed = true
			break
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return nil, err
		}
		metrics.VersionConflictRetries.Inc()
		r, err = e.store.GetAuthorizeRequest(ctx, r.ID)
		if err != nil {
			return nil, err
		}
	}
	if !claimed {
		return nil, core.ErrConcurrentModification
	}

	pair, err := e.mint(ctx, r, r.Scopes, r.ApiResourceIDs, ip)
	if err != nil {
		return nil, err
	}
	log.Info("token pair issued",
		logger.AuthorizeID(r.ID),
		logger.TokenRequest(pair.TokenRequest.ID),
		logger.ClientID(r.ApiClientID),
	)
	return pair, nil
}

// mint creates one ApiClientTokenRequest with fresh token material.
func (e *engine) mint(ctx context.Context, r *core.AuthorizeRequest, scopes, resourceIDs []string, ip string) (*Pair, error) {
	refresh, err := tokens.GenerateOpaque(e.tokenBytes)
	if err != nil {
		return nil, err
	}
	access, exp, err := e.accessToken(ctx, r, scopes, resourceIDs)
	if err != nil {
		return nil, err
	}

	t := &core.ApiClientTokenRequest{
		Meta:               core.Meta{ID: uuid.NewString()},
		IPAddress:          ip,
		AccessToken:        access,
		RefreshTokenHash:   tokens.SHA256Base64URL(refresh),
		Scopes:             append([]string(nil), scopes...),
		ApiClientID:        r.ApiClientID,
		AuthorizeRequestID: r.ID,
		ApiResourceIDs:     append([]string(nil), resourceIDs...),
	}
	if err := e.store.CreateTokenRequest(ctx, t); err != nil {
		return nil, err
	}
	metrics.TokenPairsIssued.Inc()
	return &Pair{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp, TokenRequest: t}, nil
}

// accessToken returns a signed JWT when any granted resource demands one,
// otherwise an opaque reference token.
func (e *engine) accessToken(ctx context.Context, r *core.AuthorizeRequest, scopes, resourceIDs []string) (string, time.Time, error) {
	signed := false
	for _, rid := range resourceIDs {
		res, err := e.store.GetApiResource(ctx, rid)
		if err != nil {
			return "", time.Time{}, err
		}
		if res.RequiresSignedTokens {
			signed = true
			break
		}
	}
	if !signed {
		access, err := tokens.GenerateOpaque(e.tokenBytes)
		if err != nil {
			return "", time.Time{}, err
		}
		return access, time.Now().UTC().Add(e.accessTTL), nil
	}
	if e.issuer == nil {
		return "", time.Time{}, errors.New("signed access token required but no issuer configured")
	}
	extra := map[string]any{
		"client_id": r.ApiClientID,
		"scope":     scopes,
	}
	return e.issuer.IssueAccess(ctx, r.UserID, resourceIDs, extra)
}

func (e *engine) RefreshTokens(ctx context.Context, refreshToken, ip string) (*Pair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("token.refresh"))

	hash := tokens.SHA256Base64URL(refreshToken)
	old, err := e.store.FindTokenRequestByRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		if old.Revoked {
			return nil, ErrTokenRevoked
		}
		if old.IsRefreshTokenUsed {
			return nil, e.onReuse(ctx, old, ip)
		}

		r, err := e.store.GetAuthorizeRequest(ctx, old.AuthorizeRequestID)
		if err != nil {
			return nil, err
		}
		pair, err := e.mint(ctx, r, old.Scopes, old.ApiResourceIDs, ip)
		if err != nil {
			return nil, err
		}

		old.IsRefreshTokenUsed = true
		old.RefreshedBy = &pair.TokenRequest.ID
		err = e.store.SaveTokenRequest(ctx, old)
		if err == nil {
			log.Info("refresh token rotated",
				logger.TokenRequest(old.ID),
				logger.String("refreshed_by", pair.TokenRequest.ID),
			)
			return pair, nil
		}
		// Lost the race: discard the minted successor and re-read. The winner
		// has marked the old record used, so the next pass reports reuse.
		e.discard(ctx, pair.TokenRequest)
		if !errors.Is(err, core.ErrVersionConflict) {
			return nil, err
		}
		metrics.VersionConflictRetries.Inc()
		old, err = e.store.GetTokenRequest(ctx, old.ID)
		if err != nil {
			return nil, err
		}
	}
	return nil, core.ErrConcurrentModification
}

// onReuse handles the theft signal: revoke the whole chain and end the login.
func (e *engine) onReuse(ctx context.Context, t *core.ApiClientTokenRequest, ip string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("token.reuse"))
	metrics.RefreshReuseDetected.Inc()
	log.Warn("refresh token reuse detected", logger.TokenRequest(t.ID), logger.ClientID(t.ApiClientID))

	if err := e.RevokeChain(ctx, t.ID); err != nil {
		log.Error("chain revocation failed", logger.Err(err), logger.TokenRequest(t.ID))
	}
	if r, err := e.store.GetAuthorizeRequest(ctx, t.AuthorizeRequestID); err == nil {
		if err := e.sessions.EndLogin(ctx, r.LoginID, core.EndCauseTokenReuse, ip); err != nil && !errors.Is(err, session.ErrAlreadyEnded) {
			log.Error("failed to end login after reuse", logger.Err(err), logger.LoginID(r.LoginID))
		}
	}
	return ErrTokenReused
}

// discard marks an orphaned successor record unusable after a lost rotation
// race. The row stays for audit.
func (e *engine) discard(ctx context.Context, t *core.ApiClientTokenRequest) {
	t.Revoked = true
	t.IsRefreshTokenUsed = true
	if err := e.store.SaveTokenRequest(ctx, t); err != nil {
		logger.From(ctx).Error("failed to discard orphaned token request",
			logger.Err(err), logger.TokenRequest(t.ID))
	}
}

func (e *engine) RevokeChain(ctx context.Context, tokenRequestID string) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("token.revoke_chain"))

	start, err := e.store.GetTokenRequest(ctx, tokenRequestID)
	if err != nil {
		return err
	}

	// Collect the chain in both directions: forward via RefreshedBy pointers,
	// backward by finding the record pointing at us. Traversal walks
	// identifiers, never live references.
	seen := map[string]bool{start.ID: true}
	chain := []*core.ApiClientTokenRequest{start}

	cur := start
	for cur.RefreshedBy != nil && !seen[*cur.RefreshedBy] {
		next, err := e.store.GetTokenRequest(ctx, *cur.RefreshedBy)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				break
			}
			return err
		}
		seen[next.ID] = true
		chain = append(chain, next)
		cur = next
	}
	cur = start
	for {
		prev, err := e.store.FindTokenRequestRefreshing(ctx, cur.ID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				break
			}
			return err
		}
		if seen[prev.ID] {
			break
		}
		seen[prev.ID] = true
		chain = append(chain, prev)
		cur = prev
	}

	for _, t := range chain {
		if err := e.revokeOne(ctx, t.ID); err != nil {
			return err
		}
	}
	metrics.ChainsRevoked.Inc()
	log.Info("rotation chain revoked", logger.TokenRequest(tokenRequestID), logger.Count(len(chain)))
	return nil
}

func (e *engine) revokeOne(ctx context.Context, id string) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		t, err := e.store.GetTokenRequest(ctx, id)
		if err != nil {
			return err
		}
		if t.Revoked {
			return nil
		}
		t.Revoked = true
		err = e.store.SaveTokenRequest(ctx, t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return err
		}
		metrics.VersionConflictRetries.Inc()
	}
	return core.ErrConcurrentModification
}
