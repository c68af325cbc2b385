// Package authorize drives an authorization request from creation through
// consent to completion, and owns the one-shot authorization codes minted at
// completion. The request is terminal once completed; expiry is an absorbing
// state applied lazily at transition time against the configured TTL.
package authorize

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/janus/internal/cache"
	"github.com/dropDatabas3/janus/internal/observability/logger"
	tokens "github.com/dropDatabas3/janus/internal/security/token"
	"github.com/dropDatabas3/janus/internal/session"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/validation"
)

var (
	ErrInvalidScope       = errors.New("scope not permitted for client")
	ErrClientInactive     = errors.New("api client inactive")
	ErrSessionInvalid     = errors.New("login session invalid")
	ErrConsentNotRequired = errors.New("client does not require consent")
	ErrConsentRequired    = errors.New("consent required before completion")
	ErrAlreadyCompleted   = errors.New("authorize request already completed")
	ErrRequestExpired     = errors.New("authorize request expired")
	ErrCodeInvalid        = errors.New("authorization code invalid or expired")
	ErrCodeAlreadyExchanged = errors.New("authorization code already exchanged")
)

const casRetries = 3

const codeKeyPrefix = "authcode:"

// Service is the consent & authorization state machine.
type Service interface {
	CreateAuthorizeRequest(ctx context.Context, p CreateParams) (*core.AuthorizeRequest, error)
	RecordConsent(ctx context.Context, requestID string) (*core.AuthorizeRequest, error)
	CompleteAndIssueCode(ctx context.Context, requestID string) (string, error)
	// ConsumeCode resolves and invalidates a code in one shot, returning the
	// authorize request it was bound to.
	ConsumeCode(ctx context.Context, code string) (*core.AuthorizeRequest, error)
}

type CreateParams struct {
	LoginID     string
	UserID      string
	ApiClientID string
	RequestType core.RequestType
	Scopes      []string
	ResourceIDs []string
	Challenge   string
	Method      core.VerifierMethod
	State       *string
	Nonce       *string
}

type Deps struct {
	Store         core.Store
	Cache         cache.Cache
	SessionWindow time.Duration
	RequestTTL    time.Duration
	CodeTTL       time.Duration
	CodeBytes     int
}

type service struct {
	store         core.Store
	cache         cache.Cache
	sessionWindow time.Duration
	requestTTL    time.Duration
	codeTTL       time.Duration
	codeBytes     int
}

func NewService(d Deps) Service {
	s := &service{
		store:         d.Store,
		cache:         d.Cache,
		sessionWindow: d.SessionWindow,
		requestTTL:    d.RequestTTL,
		codeTTL:       d.CodeTTL,
		codeBytes:     d.CodeBytes,
	}
	if s.requestTTL <= 0 {
		s.requestTTL = 10 * time.Minute
	}
	if s.codeTTL <= 0 {
		s.codeTTL = 2 * time.Minute
	}
	if s.codeBytes <= 0 {
		s.codeBytes = 32
	}
	return s
}

func (s *service) CreateAuthorizeRequest(ctx context.Context, p CreateParams) (*core.AuthorizeRequest, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("authorize.create"))

	client, err := s.store.GetApiClient(ctx, p.ApiClientID)
	if err != nil {
		return nil, err
	}
	if !client.IsActive {
		return nil, ErrClientInactive
	}

	login, err := s.store.GetLogin(ctx, p.LoginID)
	if err != nil {
		return nil, err
	}
	if !session.Valid(login, time.Now().UTC(), s.sessionWindow) || login.UserID != p.UserID {
		return nil, ErrSessionInvalid
	}

	if err := s.checkScopes(ctx, p.ApiClientID, p.ResourceIDs, p.Scopes); err != nil {
		log.Warn("scope check failed", logger.Err(err), logger.ClientID(p.ApiClientID))
		return nil, err
	}

	r := &core.AuthorizeRequest{
		Meta:           core.Meta{ID: uuid.NewString()},
		RequestType:    p.RequestType,
		CodeChallenge:  p.Challenge,
		VerifierMethod: p.Method,
		Scopes:         append([]string(nil), p.Scopes...),
		State:          p.State,
		Nonce:          p.Nonce,
		LoginID:        p.LoginID,
		UserID:         p.UserID,
		ApiClientID:    p.ApiClientID,
		ApiResourceIDs: append([]string(nil), p.ResourceIDs...),
	}
	if err := s.store.CreateAuthorizeRequest(ctx, r); err != nil {
		return nil, err
	}
	log.Info("authorize request created",
		logger.AuthorizeID(r.ID),
		logger.ClientID(p.ApiClientID),
		logger.UserID(p.UserID),
	)
	return r, nil
}

// checkScopes enforces the per-client allow-list over every requested scope:
// each must be declared by at least one requested, active resource whose
// grant for this client permits it.
func (s *service) checkScopes(ctx context.Context, clientID string, resourceIDs, scopes []string) error {
	type grant struct {
		declared []string
		allowed  []string
	}
	grants := make([]grant, 0, len(resourceIDs))
	for _, rid := range resourceIDs {
		res, err := s.store.GetApiResource(ctx, rid)
		if err != nil {
			return err
		}
		if !res.IsActive {
			return ErrInvalidScope
		}
		cr, err := s.store.GetApiClientResource(ctx, clientID, rid)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				// No grant row at all: the client has no access to this resource.
				return ErrInvalidScope
			}
			return err
		}
		grants = append(grants, grant{declared: res.Scopes, allowed: cr.AllowedScopes})
	}

	for _, scope := range scopes {
		if !validation.ValidScopeName(scope) {
			return ErrInvalidScope
		}
		permitted := false
		for _, g := range grants {
			if validation.ScopeAllowed(g.declared, g.allowed, scope) {
				permitted = true
				break
			}
		}
		if !permitted {
			return ErrInvalidScope
		}
	}
	return nil
}

func (s *service) RecordConsent(ctx context.Context, requestID string) (*core.AuthorizeRequest, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		r, err := s.store.GetAuthorizeRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if r.CompletedAt != nil {
			return nil, ErrAlreadyCompleted
		}
		if s.expired(r) {
			return nil, ErrRequestExpired
		}
		client, err := s.store.GetApiClient(ctx, r.ApiClientID)
		if err != nil {
			return nil, err
		}
		if !client.ShowConsent {
			return nil, ErrConsentNotRequired
		}
		now := time.Now().UTC()
		r.ConsentedAt = &now
		err = s.store.SaveAuthorizeRequest(ctx, r)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, core.ErrConcurrentModification
}

func (s *service) CompleteAndIssueCode(ctx context.Context, requestID string) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("authorize.complete"))

	for attempt := 0; attempt < casRetries; attempt++ {
		r, err := s.store.GetAuthorizeRequest(ctx, requestID)
		if err != nil {
			return "", err
		}
		if r.CompletedAt != nil {
			return "", ErrAlreadyCompleted
		}
		if s.expired(r) {
			return "", ErrRequestExpired
		}
		client, err := s.store.GetApiClient(ctx, r.ApiClientID)
		if err != nil {
			return "", err
		}
		if client.ShowConsent && r.ConsentedAt == nil {
			return "", ErrConsentRequired
		}

		now := time.Now().UTC()
		r.CompletedAt = &now
		err = s.store.SaveAuthorizeRequest(ctx, r)
		if errors.Is(err, core.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return "", err
		}

		// The winner of the CAS mints the one and only code for this request.
		code, err := tokens.GenerateOpaque(s.codeBytes)
		if err != nil {
			return "", err
		}
		s.cache.Set(codeKeyPrefix+tokens.SHA256Base64URL(code), []byte(r.ID), s.codeTTL)
		log.Info("authorize request completed", logger.AuthorizeID(r.ID))
		return code, nil
	}
	return "", core.ErrConcurrentModification
}

func (s *service) ConsumeCode(ctx context.Context, code string) (*core.AuthorizeRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := codeKeyPrefix + tokens.SHA256Base64URL(code)
	data, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrCodeInvalid
	}
	s.cache.Delete(key)

	r, err := s.store.GetAuthorizeRequest(ctx, string(data))
	if err != nil {
		return nil, err
	}
	if r.CompletedAt == nil {
		// A code can only exist for a completed request.
		return nil, ErrCodeInvalid
	}
	return r, nil
}

func (s *service) expired(r *core.AuthorizeRequest) bool {
	return time.Now().UTC().Sub(r.CreatedAt) > s.requestTTL
}
