package core

import "context"

// Store is the persistence boundary. Implementations must honor conditional
// save semantics: every Save* compares the entity's Version against the stored
// one and fails with ErrVersionConflict on mismatch, bumping Version by one on
// success. Create* fails with ErrConflict when a uniqueness constraint is
// violated. Get*/Find* return ErrNotFound when no record matches.
//
// Reads return detached copies; callers never share live references with the
// store or with each other.
type Store interface {
	Ping(ctx context.Context) error

	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByPhone(ctx context.Context, phoneCode int, phoneNumber string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	SaveUser(ctx context.Context, u *User) error

	// Logins
	GetLogin(ctx context.Context, id string) (*Login, error)
	CreateLogin(ctx context.Context, l *Login) error
	SaveLogin(ctx context.Context, l *Login) error

	// Authorize requests
	GetAuthorizeRequest(ctx context.Context, id string) (*AuthorizeRequest, error)
	CreateAuthorizeRequest(ctx context.Context, r *AuthorizeRequest) error
	SaveAuthorizeRequest(ctx context.Context, r *AuthorizeRequest) error

	// Clients and resources
	GetApiClient(ctx context.Context, id string) (*ApiClient, error)
	CreateApiClient(ctx context.Context, c *ApiClient) error
	GetApiResource(ctx context.Context, id string) (*ApiResource, error)
	CreateApiResource(ctx context.Context, r *ApiResource) error
	GetApiClientResource(ctx context.Context, clientID, resourceID string) (*ApiClientResource, error)
	SetApiClientResource(ctx context.Context, g *ApiClientResource) error

	// Token requests
	GetTokenRequest(ctx context.Context, id string) (*ApiClientTokenRequest, error)
	FindTokenRequestByRefreshHash(ctx context.Context, hash string) (*ApiClientTokenRequest, error)
	FindTokenRequestByAuthorizeRequest(ctx context.Context, authorizeRequestID string) (*ApiClientTokenRequest, error)
	// FindTokenRequestRefreshing returns the token request whose RefreshedBy
	// points at id, i.e. the chain predecessor of id.
	FindTokenRequestRefreshing(ctx context.Context, id string) (*ApiClientTokenRequest, error)
	CreateTokenRequest(ctx context.Context, t *ApiClientTokenRequest) error
	SaveTokenRequest(ctx context.Context, t *ApiClientTokenRequest) error

	// External logins
	GetExternalLogin(ctx context.Context, id string) (*ExternalLogin, error)
	CreateExternalLogin(ctx context.Context, e *ExternalLogin) error
	SaveExternalLogin(ctx context.Context, e *ExternalLogin) error

	// One-time codes
	GetOneTimeCode(ctx context.Context, id string) (*OneTimeCode, error)
	CreateOneTimeCode(ctx context.Context, c *OneTimeCode) error
	SaveOneTimeCode(ctx context.Context, c *OneTimeCode) error

	// Signup requests
	GetSignupRequest(ctx context.Context, id string) (*SignupRequest, error)
	CreateSignupRequest(ctx context.Context, s *SignupRequest) error
	SaveSignupRequest(ctx context.Context, s *SignupRequest) error

	// Countries
	GetCountry(ctx context.Context, code string) (*Country, error)
	CreateCountry(ctx context.Context, c *Country) error

	// Roles and claims
	CreateRole(ctx context.Context, r *Role) error
	CreateAppClaim(ctx context.Context, c *AppClaim) error
	AddRoleClaim(ctx context.Context, rc *RoleClaim) error
	AddUserRole(ctx context.Context, ur *UserRole) error
	RemoveUserRole(ctx context.Context, ur *UserRole) error
	ListUserRoles(ctx context.Context, userID string) ([]UserRole, error)

	// Signing keys
	GetActiveJsonWebKey(ctx context.Context) (*AppJsonWebKey, error)
	CreateJsonWebKey(ctx context.Context, k *AppJsonWebKey) error

	// Outbound call audit
	CreateHttpCall(ctx context.Context, h *ApiClientHttpCall) error
}
