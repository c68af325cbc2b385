// Package memory implements the core.Store contract in process memory.
// It is the reference adapter: tests run against it, and it is the ground
// truth for conditional-save semantics. Records are cloned through JSON on
// both reads and writes so callers never hold live references into the store.
package memory

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/janus/internal/store/core"
)

type Store struct {
	mu sync.RWMutex

	users          map[string]*core.User
	logins         map[string]*core.Login
	authorizeReqs  map[string]*core.AuthorizeRequest
	clients        map[string]*core.ApiClient
	resources      map[string]*core.ApiResource
	clientResource map[string]*core.ApiClientResource // clientID + "/" + resourceID
	tokenReqs      map[string]*core.ApiClientTokenRequest
	externalLogins map[string]*core.ExternalLogin
	oneTimeCodes   map[string]*core.OneTimeCode
	signupReqs     map[string]*core.SignupRequest
	countries      map[string]*core.Country
	roles          map[string]*core.Role
	claims         map[string]*core.AppClaim
	roleClaims     map[string]core.RoleClaim // roleID + "/" + claimID
	userRoles      map[string]core.UserRole  // roleID + "/" + userID
	jwks           map[string]*core.AppJsonWebKey
	httpCalls      map[string]*core.ApiClientHttpCall
}

var _ core.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:          map[string]*core.User{},
		logins:         map[string]*core.Login{},
		authorizeReqs:  map[string]*core.AuthorizeRequest{},
		clients:        map[string]*core.ApiClient{},
		resources:      map[string]*core.ApiResource{},
		clientResource: map[string]*core.ApiClientResource{},
		tokenReqs:      map[string]*core.ApiClientTokenRequest{},
		externalLogins: map[string]*core.ExternalLogin{},
		oneTimeCodes:   map[string]*core.OneTimeCode{},
		signupReqs:     map[string]*core.SignupRequest{},
		countries:      map[string]*core.Country{},
		roles:          map[string]*core.Role{},
		claims:         map[string]*core.AppClaim{},
		roleClaims:     map[string]core.RoleClaim{},
		userRoles:      map[string]core.UserRole{},
		jwks:           map[string]*core.AppJsonWebKey{},
		httpCalls:      map[string]*core.ApiClientHttpCall{},
	}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// clone round-trips through JSON so stored and returned values share nothing.
func clone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(b, out); err != nil {
		panic(err)
	}
	return out
}

func initMeta(m *core.Meta) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Version == 0 {
		m.Version = 1
	}
}

// create inserts v under its ID, failing with ErrConflict when taken.
func create[T any](ctx context.Context, s *Store, coll map[string]*T, id string, m *core.Meta, v *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return core.ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := coll[id]; ok {
		return core.ErrConflict
	}
	initMeta(m)
	coll[id] = clone(v)
	return nil
}

// save replaces the record conditionally on the version stamp. On success the
// caller's copy observes the bumped version.
func save[T any](ctx context.Context, s *Store, coll map[string]*T, id string, m *core.Meta, v *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := coll[id]
	if !ok {
		return core.ErrNotFound
	}
	curVersion := versionOf(cur)
	if curVersion != m.Version {
		return core.ErrVersionConflict
	}
	m.Version++
	coll[id] = clone(v)
	return nil
}

func versionOf(v any) uint64 {
	switch t := v.(type) {
	case *core.User:
		return t.Version
	case *core.Login:
		return t.Version
	case *core.AuthorizeRequest:
		return t.Version
	case *core.ApiClient:
		return t.Version
	case *core.ApiResource:
		return t.Version
	case *core.ApiClientTokenRequest:
		return t.Version
	case *core.ExternalLogin:
		return t.Version
	case *core.OneTimeCode:
		return t.Version
	case *core.SignupRequest:
		return t.Version
	case *core.Role:
		return t.Version
	case *core.AppClaim:
		return t.Version
	case *core.AppJsonWebKey:
		return t.Version
	case *core.ApiClientHttpCall:
		return t.Version
	}
	return 0
}

func get[T any](ctx context.Context, s *Store, coll map[string]*T, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := coll[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(v), nil
}

// ---- Users ----

func (s *Store) GetUser(ctx context.Context, id string) (*core.User, error) {
	return get(ctx, s, s.users, id)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*core.User, error) {
	return s.findUser(ctx, func(u *core.User) bool {
		return strings.EqualFold(u.Username, username)
	})
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.findUser(ctx, func(u *core.User) bool {
		return strings.EqualFold(u.Email, email)
	})
}

func (s *Store) FindUserByPhone(ctx context.Context, phoneCode int, phoneNumber string) (*core.User, error) {
	return s.findUser(ctx, func(u *core.User) bool {
		return u.CountryPhoneCode == phoneCode && u.PhoneNumber == phoneNumber
	})
}

func (s *Store) findUser(ctx context.Context, match func(*core.User) bool) (*core.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return core.ErrConflict
	}
	for _, other := range s.users {
		if strings.EqualFold(other.Username, u.Username) ||
			strings.EqualFold(other.Email, u.Email) {
			return core.ErrConflict
		}
		// Phone uniqueness only binds when a phone is present.
		if u.PhoneNumber != "" &&
			other.CountryPhoneCode == u.CountryPhoneCode && other.PhoneNumber == u.PhoneNumber {
			return core.ErrConflict
		}
	}
	initMeta(&u.Meta)
	s.users[u.ID] = clone(u)
	return nil
}

func (s *Store) SaveUser(ctx context.Context, u *core.User) error {
	return save(ctx, s, s.users, u.ID, &u.Meta, u)
}

// ---- Logins ----

func (s *Store) GetLogin(ctx context.Context, id string) (*core.Login, error) {
	return get(ctx, s, s.logins, id)
}

func (s *Store) CreateLogin(ctx context.Context, l *core.Login) error {
	return create(ctx, s, s.logins, l.ID, &l.Meta, l)
}

func (s *Store) SaveLogin(ctx context.Context, l *core.Login) error {
	return save(ctx, s, s.logins, l.ID, &l.Meta, l)
}

// ---- Authorize requests ----

func (s *Store) GetAuthorizeRequest(ctx context.Context, id string) (*core.AuthorizeRequest, error) {
	return get(ctx, s, s.authorizeReqs, id)
}

func (s *Store) CreateAuthorizeRequest(ctx context.Context, r *core.AuthorizeRequest) error {
	return create(ctx, s, s.authorizeReqs, r.ID, &r.Meta, r)
}

func (s *Store) SaveAuthorizeRequest(ctx context.Context, r *core.AuthorizeRequest) error {
	return save(ctx, s, s.authorizeReqs, r.ID, &r.Meta, r)
}

// ---- Clients and resources ----

func (s *Store) GetApiClient(ctx context.Context, id string) (*core.ApiClient, error) {
	return get(ctx, s, s.clients, id)
}

func (s *Store) CreateApiClient(ctx context.Context, c *core.ApiClient) error {
	return create(ctx, s, s.clients, c.ID, &c.Meta, c)
}

func (s *Store) GetApiResource(ctx context.Context, id string) (*core.ApiResource, error) {
	return get(ctx, s, s.resources, id)
}

func (s *Store) CreateApiResource(ctx context.Context, r *core.ApiResource) error {
	return create(ctx, s, s.resources, r.ID, &r.Meta, r)
}

func (s *Store) GetApiClientResource(ctx context.Context, clientID, resourceID string) (*core.ApiClientResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.clientResource[clientID+"/"+resourceID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(g), nil
}

func (s *Store) SetApiClientResource(ctx context.Context, g *core.ApiClientResource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientResource[g.ApiClientID+"/"+g.ApiResourceID] = clone(g)
	return nil
}

// ---- Token requests ----

func (s *Store) GetTokenRequest(ctx context.Context, id string) (*core.ApiClientTokenRequest, error) {
	return get(ctx, s, s.tokenReqs, id)
}

func (s *Store) FindTokenRequestByRefreshHash(ctx context.Context, hash string) (*core.ApiClientTokenRequest, error) {
	return s.findTokenRequest(ctx, func(t *core.ApiClientTokenRequest) bool {
		return t.RefreshTokenHash == hash
	})
}

func (s *Store) FindTokenRequestByAuthorizeRequest(ctx context.Context, authorizeRequestID string) (*core.ApiClientTokenRequest, error) {
	return s.findTokenRequest(ctx, func(t *core.ApiClientTokenRequest) bool {
		return t.AuthorizeRequestID == authorizeRequestID
	})
}

func (s *Store) FindTokenRequestRefreshing(ctx context.Context, id string) (*core.ApiClientTokenRequest, error) {
	return s.findTokenRequest(ctx, func(t *core.ApiClientTokenRequest) bool {
		return t.RefreshedBy != nil && *t.RefreshedBy == id
	})
}

func (s *Store) findTokenRequest(ctx context.Context, match func(*core.ApiClientTokenRequest) bool) (*core.ApiClientTokenRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokenReqs {
		if match(t) {
			return clone(t), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) CreateTokenRequest(ctx context.Context, t *core.ApiClientTokenRequest) error {
	return create(ctx, s, s.tokenReqs, t.ID, &t.Meta, t)
}

func (s *Store) SaveTokenRequest(ctx context.Context, t *core.ApiClientTokenRequest) error {
	return save(ctx, s, s.tokenReqs, t.ID, &t.Meta, t)
}

// ---- External logins ----

func (s *Store) GetExternalLogin(ctx context.Context, id string) (*core.ExternalLogin, error) {
	return get(ctx, s, s.externalLogins, id)
}

func (s *Store) CreateExternalLogin(ctx context.Context, e *core.ExternalLogin) error {
	return create(ctx, s, s.externalLogins, e.ID, &e.Meta, e)
}

func (s *Store) SaveExternalLogin(ctx context.Context, e *core.ExternalLogin) error {
	return save(ctx, s, s.externalLogins, e.ID, &e.Meta, e)
}

// ---- One-time codes ----

func (s *Store) GetOneTimeCode(ctx context.Context, id string) (*core.OneTimeCode, error) {
	return get(ctx, s, s.oneTimeCodes, id)
}

func (s *Store) CreateOneTimeCode(ctx context.Context, c *core.OneTimeCode) error {
	return create(ctx, s, s.oneTimeCodes, c.ID, &c.Meta, c)
}

func (s *Store) SaveOneTimeCode(ctx context.Context, c *core.OneTimeCode) error {
	return save(ctx, s, s.oneTimeCodes, c.ID, &c.Meta, c)
}

// ---- Signup requests ----

func (s *Store) GetSignupRequest(ctx context.Context, id string) (*core.SignupRequest, error) {
	return get(ctx, s, s.signupReqs, id)
}

func (s *Store) CreateSignupRequest(ctx context.Context, r *core.SignupRequest) error {
	return create(ctx, s, s.signupReqs, r.ID, &r.Meta, r)
}

func (s *Store) SaveSignupRequest(ctx context.Context, r *core.SignupRequest) error {
	return save(ctx, s, s.signupReqs, r.ID, &r.Meta, r)
}

// ---- Countries ----

func (s *Store) GetCountry(ctx context.Context, code string) (*core.Country, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.countries[code]
	if !ok {
		return nil, core.ErrNotFound
	}
	return clone(c), nil
}

func (s *Store) CreateCountry(ctx context.Context, c *core.Country) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.countries[c.Code]; ok {
		return core.ErrConflict
	}
	s.countries[c.Code] = clone(c)
	return nil
}

// ---- Roles and claims ----

func (s *Store) CreateRole(ctx context.Context, r *core.Role) error {
	return create(ctx, s, s.roles, r.ID, &r.Meta, r)
}

func (s *Store) CreateAppClaim(ctx context.Context, c *core.AppClaim) error {
	return create(ctx, s, s.claims, c.ID, &c.Meta, c)
}

func (s *Store) AddRoleClaim(ctx context.Context, rc *core.RoleClaim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roleClaims[rc.RoleID+"/"+rc.ClaimID] = *rc
	return nil
}

func (s *Store) AddUserRole(ctx context.Context, ur *core.UserRole) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[ur.RoleID+"/"+ur.UserID] = *ur
	return nil
}

func (s *Store) RemoveUserRole(ctx context.Context, ur *core.UserRole) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userRoles, ur.RoleID+"/"+ur.UserID)
	return nil
}

func (s *Store) ListUserRoles(ctx context.Context, userID string) ([]core.UserRole, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.UserRole
	for _, ur := range s.userRoles {
		if ur.UserID == userID {
			out = append(out, ur)
		}
	}
	return out, nil
}

// ---- Signing keys ----

func (s *Store) GetActiveJsonWebKey(ctx context.Context) (*core.AppJsonWebKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.jwks {
		if k.IsActive {
			return clone(k), nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) CreateJsonWebKey(ctx context.Context, k *core.AppJsonWebKey) error {
	return create(ctx, s, s.jwks, k.ID, &k.Meta, k)
}

// ---- Outbound call audit ----

func (s *Store) CreateHttpCall(ctx context.Context, h *core.ApiClientHttpCall) error {
	return create(ctx, s, s.httpCalls, h.ID, &h.Meta, h)
}
