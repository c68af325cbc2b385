// Package external links upstream identity-provider sessions to local logins
// and keeps their upstream token material fresh. Upstream refresh keeps the
// previous refresh token for one rotation of overlap, so a response lost in
// transit does not strand the link.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/store/core"
)

var (
	ErrNoRefreshToken  = errors.New("external login has no refresh token")
	ErrUpstreamDenied  = errors.New("upstream rejected the refresh")
	ErrUpstreamFailure = errors.New("upstream exchange failed")
)

const casRetries = 3

// Upstream describes the identity provider this deployment federates with.
type Upstream struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type LinkParams struct {
	UserID         string
	LoginID        string
	ApiClientID    string
	IPAddress      string
	UserAgent      string
	AccessToken    *string
	RefreshToken   *string
	IDToken        *string
	OpenIDScopes   []string
	ApiResourceIDs []string
}

type Service interface {
	// LinkExternalLogin records an upstream session against a local login.
	LinkExternalLogin(ctx context.Context, p LinkParams) (*core.ExternalLogin, error)

	// RefreshUpstream exchanges the stored upstream refresh token for fresh
	// material, falling back to the previous token once if the current one is
	// rejected.
	RefreshUpstream(ctx context.Context, externalLoginID string) (*core.ExternalLogin, error)
}

type Deps struct {
	Store    core.Store
	Upstream Upstream
	Client   *http.Client
	Timeout  time.Duration
}

type service struct {
	store    core.Store
	upstream Upstream
	client   *http.Client
	timeout  time.Duration
}

func NewService(d Deps) Service {
	c := d.Client
	if c == nil {
		c = &http.Client{}
	}
	t := d.Timeout
	if t <= 0 {
		t = 10 * time.Second
	}
	return &service{store: d.Store, upstream: d.Upstream, client: c, timeout: t}
}

func (s *service) LinkExternalLogin(ctx context.Context, p LinkParams) (*core.ExternalLogin, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("external.link"))

	if _, err := s.store.GetLogin(ctx, p.LoginID); err != nil {
		return nil, err
	}
	e := &core.ExternalLogin{
		Meta:           core.Meta{ID: uuid.NewString()},
		IPAddress:      p.IPAddress,
		UserAgent:      p.UserAgent,
		AccessToken:    p.AccessToken,
		RefreshToken:   p.RefreshToken,
		IDToken:        p.IDToken,
		OpenIDScopes:   append([]string(nil), p.OpenIDScopes...),
		UserID:         p.UserID,
		LoginID:        p.LoginID,
		ApiClientID:    p.ApiClientID,
		ApiResourceIDs: append([]string(nil), p.ApiResourceIDs...),
	}
	if err := s.store.CreateExternalLogin(ctx, e); err != nil {
		return nil, err
	}
	log.Info("external login linked", logger.UserID(p.UserID), logger.LoginID(p.LoginID))
	return e, nil
}

type upstreamTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

func (s *service) RefreshUpstream(ctx context.Context, externalLoginID string) (*core.ExternalLogin, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("external.refresh"))

	e, err := s.store.GetExternalLogin(ctx, externalLoginID)
	if err != nil {
		return nil, err
	}
	if e.RefreshToken == nil {
		return nil, ErrNoRefreshToken
	}

	fresh, err := s.exchange(ctx, e, *e.RefreshToken)
	if errors.Is(err, ErrUpstreamDenied) && e.PreviousRefreshToken != nil {
		// The last rotation's response may have been lost before we stored it.
		// The previous token is kept for exactly this retry.
		log.Warn("current upstream token rejected, retrying with previous", logger.ID(e.ID))
		fresh, err = s.exchange(ctx, e, *e.PreviousRefreshToken)
	}
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		now := time.Now().UTC()
		e.PreviousRefreshToken = e.RefreshToken
		e.RefreshToken = &fresh.RefreshToken
		e.AccessToken = &fresh.AccessToken
		if fresh.IDToken != "" {
			e.IDToken = &fresh.IDToken
		}
		e.UpdatedAt = &now
		err = s.store.SaveExternalLogin(ctx, e)
		if err == nil {
			log.Info("upstream tokens rotated", logger.ID(e.ID), logger.UserID(e.UserID))
			return e, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return nil, err
		}
		e, err = s.store.GetExternalLogin(ctx, externalLoginID)
		if err != nil {
			return nil, err
		}
	}
	return nil, core.ErrConcurrentModification
}

// exchange performs the outbound refresh grant and writes one audit row
// regardless of outcome. Audit failure only logs.
func (s *service) exchange(ctx context.Context, e *core.ExternalLogin, refreshToken string) (*upstreamTokens, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {s.upstream.ClientID},
	}
	if s.upstream.ClientSecret != "" {
		form.Set("client_secret", s.upstream.ClientSecret)
	}
	payload := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.upstream.TokenURL, strings.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		s.audit(ctx, e, payload, 0, nil)
		return nil, errors.Join(ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	s.audit(ctx, e, payload, resp.StatusCode, body)

	switch {
	case resp.StatusCode == http.StatusOK:
		var t upstreamTokens
		if err := json.Unmarshal(body, &t); err != nil {
			return nil, errors.Join(ErrUpstreamFailure, err)
		}
		return &t, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUpstreamDenied
	default:
		return nil, ErrUpstreamFailure
	}
}

func (s *service) audit(ctx context.Context, e *core.ExternalLogin, payload string, code int, body []byte) {
	row := &core.ApiClientHttpCall{
		Meta:            core.Meta{ID: uuid.NewString()},
		Address:         s.upstream.TokenURL,
		Payload:         redactForm(payload),
		ResponseCode:    code,
		ExternalLoginID: e.ID,
		ApiClientID:     e.ApiClientID,
	}
	if len(body) > 0 {
		b := string(body)
		row.ResponseBody = &b
	}
	if err := s.store.CreateHttpCall(ctx, row); err != nil {
		logger.From(ctx).Error("failed to record upstream call", logger.Err(err), logger.ID(e.ID))
	}
}

// redactForm strips secret values from an audited request body.
func redactForm(payload string) *string {
	v, err := url.ParseQuery(payload)
	if err != nil {
		return nil
	}
	for _, k := range []string{"refresh_token", "client_secret"} {
		if v.Has(k) {
			v.Set(k, "REDACTED")
		}
	}
	out := v.Encode()
	return &out
}
