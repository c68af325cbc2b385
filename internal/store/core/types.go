package core

import "time"

// Meta is embedded by every persisted entity. Version is the optimistic
// concurrency stamp: conditional saves compare it and bump it on success.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Version   uint64    `json:"version"`
}

// RequestType is the OAuth/OIDC shape of an authorize request.
type RequestType int

const (
	RequestTypeOpenIDOAuth RequestType = iota
	RequestTypeOpenID
	RequestTypeOAuth
)

// VerifierMethod is the PKCE challenge transformation. There is no fallback
// between methods at verification time.
type VerifierMethod int

const (
	VerifierPlain VerifierMethod = iota
	VerifierS256
)

// ClientType distinguishes confidential clients (hold a secret) from public ones.
type ClientType int

const (
	ClientConfidential ClientType = iota
	ClientPublic
)

// JwkType is the key family of an AppJsonWebKey.
type JwkType int

const (
	JwkEC JwkType = iota
	JwkRSA
	JwkOct
)

// LoginEndCause records why a login was ended.
type LoginEndCause string

const (
	EndCauseLogout     LoginEndCause = "logout"
	EndCauseTokenReuse LoginEndCause = "token_reuse"
	EndCauseAdmin      LoginEndCause = "admin"
	EndCauseExternal   LoginEndCause = "external"
)

// OneTimeCodeReason tags what a one-time code is allowed to confirm.
type OneTimeCodeReason string

const (
	ReasonPhoneNumber   OneTimeCodeReason = "phone_number"
	ReasonEmail         OneTimeCodeReason = "email"
	ReasonPassword      OneTimeCodeReason = "password"
	ReasonDeleteAccount OneTimeCodeReason = "delete_account"
)

// ProfileUpdate is one immutable row of a user's profile change history.
type ProfileUpdate struct {
	CreatedAt time.Time `json:"created_at"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Avatar    *string   `json:"avatar,omitempty"`
}

type User struct {
	Meta
	Username             string            `json:"username"`
	PasswordHash         string            `json:"password_hash"`
	CountryPhoneCode     int               `json:"country_phone_code"`
	PhoneNumber          string            `json:"phone_number"`
	Email                string            `json:"email"`
	FirstName            string            `json:"first_name"`
	LastName             string            `json:"last_name"`
	Avatar               *string           `json:"avatar,omitempty"`
	ProfileUpdateHistory []ProfileUpdate   `json:"profile_update_history,omitempty"`
	BlockedAt            *time.Time        `json:"blocked_at,omitempty"`
	LockoutEndsAt        *time.Time        `json:"lockout_ends_at,omitempty"`
	FailedLoginAttempts  int               `json:"failed_login_attempts"`
	TotpSecret           *string           `json:"totp_secret,omitempty"`
	DomainAttributes     map[string]string `json:"domain_attributes,omitempty"`

	UnverifiedCountryCode      *string `json:"unverified_country_code,omitempty"`
	UnverifiedCountryPhoneCode *int    `json:"unverified_country_phone_code,omitempty"`
	UnverifiedPhoneNumber      *string `json:"unverified_phone_number,omitempty"`
	UnverifiedEmail            *string `json:"unverified_email,omitempty"`

	CountryCode string  `json:"country_code"`
	CreatorID   *string `json:"creator_id,omitempty"`
}

type Login struct {
	Meta
	IPAddress    string     `json:"ip_address"`
	IsPersistent bool       `json:"is_persistent"`
	UserAgent    string     `json:"user_agent,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
	Successful   bool       `json:"successful"`

	EndedAt                *time.Time    `json:"ended_at,omitempty"`
	EndCause               LoginEndCause `json:"end_cause,omitempty"`
	EndedByExternalLoginID *string       `json:"ended_by_external_login_id,omitempty"`
	LogoutIPAddress        *string       `json:"logout_ip_address,omitempty"`

	// TotpWindow is the last accepted TOTP time-step counter, kept to reject
	// replays of codes from the same or an earlier step.
	TotpWindow *int64 `json:"totp_window,omitempty"`

	UserID string `json:"user_id"`
}

type AuthorizeRequest struct {
	Meta
	RequestType    RequestType    `json:"request_type"`
	CodeChallenge  string         `json:"code_challenge"`
	VerifierMethod VerifierMethod `json:"verifier_method"`
	Scopes         []string       `json:"scopes"`
	State          *string        `json:"state,omitempty"`
	Nonce          *string        `json:"nonce,omitempty"`
	ConsentedAt    *time.Time     `json:"consented_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	// TokensIssuedAt marks the single first issuance for this request; the
	// token engine stamps it under a conditional save so concurrent code
	// exchanges cannot both mint.
	TokensIssuedAt *time.Time `json:"tokens_issued_at,omitempty"`

	LoginID        string   `json:"login_id"`
	UserID         string   `json:"user_id"`
	ApiClientID    string   `json:"api_client_id"`
	ApiResourceIDs []string `json:"api_resource_ids"`
}

type ApiClient struct {
	Meta
	DisplayName          string     `json:"display_name"`
	Logo                 *string    `json:"logo,omitempty"`
	IsActive             bool       `json:"is_active"`
	Type                 ClientType `json:"type"`
	Secret               *string    `json:"secret,omitempty"`
	Domain               string     `json:"domain"`
	LoginCallbackURI     string     `json:"login_callback_uri"`
	LogoutCallbackURI    string     `json:"logout_callback_uri"`
	BackchannelLogoutURI *string    `json:"backchannel_logout_uri,omitempty"`
	ShowConsent          bool       `json:"show_consent"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	SupportsEcdsa        bool       `json:"supports_ecdsa"`
}

type ApiResource struct {
	Meta
	DisplayName string   `json:"display_name"`
	Logo        *string  `json:"logo,omitempty"`
	IsActive    bool     `json:"is_active"`
	Scopes      []string `json:"scopes"`
	// RequiresSignedTokens selects JWT access tokens for this resource;
	// otherwise access is by opaque reference.
	RequiresSignedTokens bool `json:"requires_signed_tokens"`
	// SymmetricJwtSecret is carried in the model but symmetric signing is not
	// a supported path; the issuer rejects oct keys.
	SymmetricJwtSecret *string `json:"symmetric_jwt_secret,omitempty"`
}

// ApiClientResource is the per-client scope grant for one resource.
// AllowedScopes: nil means every scope the resource declares, an empty list
// means none of them, an explicit list means exactly those. No omitempty:
// an empty list must survive serialization as [] rather than collapse to nil.
type ApiClientResource struct {
	ApiClientID   string   `json:"api_client_id"`
	ApiResourceID string   `json:"api_resource_id"`
	AllowedScopes []string `json:"allowed_scopes"`
}

type ApiClientTokenRequest struct {
	Meta
	IPAddress          string   `json:"ip_address"`
	AccessToken        string   `json:"access_token"`
	RefreshTokenHash   string   `json:"refresh_token_hash"`
	IsRefreshTokenUsed bool     `json:"is_refresh_token_used"`
	Revoked            bool     `json:"revoked"`
	Scopes             []string `json:"scopes"`

	// RefreshedBy links to the token request that superseded this one,
	// forming the rotation chain walked on revocation.
	RefreshedBy *string `json:"refreshed_by,omitempty"`

	ApiClientID        string   `json:"api_client_id"`
	AuthorizeRequestID string   `json:"authorize_request_id"`
	ApiResourceIDs     []string `json:"api_resource_ids"`
}

type ExternalLogin struct {
	Meta
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent,omitempty"`
	AccessToken  *string    `json:"access_token,omitempty"`
	RefreshToken *string    `json:"refresh_token,omitempty"`
	IDToken      *string    `json:"id_token,omitempty"`
	OpenIDScopes []string   `json:"openid_scopes"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`

	// PreviousRefreshToken keeps the last rotated-out upstream refresh token
	// for recovery overlap. Only one previous value is retained.
	PreviousRefreshToken *string `json:"previous_refresh_token,omitempty"`

	UserID         string   `json:"user_id"`
	LoginID        string   `json:"login_id"`
	ApiClientID    string   `json:"api_client_id"`
	ApiResourceIDs []string `json:"api_resource_ids"`
}

type OneTimeCode struct {
	Meta
	Code           string            `json:"code"`
	Reason         OneTimeCodeReason `json:"reason"`
	IsUsed         bool              `json:"is_used"`
	FailedAttempts int               `json:"failed_attempts"`
	IPAddress      string            `json:"ip_address"`
	UserAgent      string            `json:"user_agent,omitempty"`

	UserID string `json:"user_id"`
}

type SignupRequest struct {
	Meta
	IPAddress             string     `json:"ip_address"`
	UserAgent             string     `json:"user_agent,omitempty"`
	CountryPhoneCode      int        `json:"country_phone_code"`
	PhoneNumber           string     `json:"phone_number"`
	Email                 string     `json:"email"`
	Username              string     `json:"username"`
	PasswordHash          string     `json:"password_hash"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	EmailVerificationCode string     `json:"email_verification_code"`
	SmsVerificationCode   *string    `json:"sms_verification_code,omitempty"`
	ExpiresAt             time.Time  `json:"expires_at"`
	FailedAttempts        int        `json:"failed_attempts"`
	ConsumedAt            *time.Time `json:"consumed_at,omitempty"`
	CreatedUserID         *string    `json:"created_user_id,omitempty"`

	CountryCode string `json:"country_code"`
}

type Country struct {
	Code                         string `json:"code"`
	Name                         string `json:"name"`
	PhoneCode                    int    `json:"phone_code"`
	AllowPhoneNumberRegistration bool   `json:"allow_phone_number_registration"`
	AllowIPRegistration          bool   `json:"allow_ip_registration"`
	AllowPhoneNumberLogin        bool   `json:"allow_phone_number_login"`
	AllowIPLogin                 bool   `json:"allow_ip_login"`
}

type Role struct {
	Meta
	DisplayName *string `json:"display_name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type AppClaim struct {
	Meta
	DisplayName *string `json:"display_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Group       string  `json:"group"`
}

type RoleClaim struct {
	RoleID  string `json:"role_id"`
	ClaimID string `json:"claim_id"`
}

type UserRole struct {
	RoleID string `json:"role_id"`
	UserID string `json:"user_id"`
}

// AppJsonWebKey is a signing key record. Only EC keys are a supported signing
// path; RSA and oct values exist so the enum stays closed at consumption sites.
type AppJsonWebKey struct {
	Meta
	IsActive bool    `json:"is_active"`
	Type     JwkType `json:"type"`
	Curve    string  `json:"curve"`
	X        string  `json:"x"`
	Y        string  `json:"y"`
	D        string  `json:"d"`
}

// ApiClientHttpCall is the audit row for one outbound call made on behalf of
// an external login exchange.
type ApiClientHttpCall struct {
	Meta
	Address      string  `json:"address"`
	Payload      *string `json:"payload,omitempty"`
	ResponseCode int     `json:"response_code"`
	ResponseBody *string `json:"response_body,omitempty"`

	ExternalLoginID string `json:"external_login_id"`
	ApiClientID     string `json:"api_client_id"`
}
