// Package identity manages user records: creation, profile changes with an
// append-only history, staged contact changes, and role assignment. All
// mutations go through conditional saves so concurrent writers never clobber
// each other's fields.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/janus/internal/observability/logger"
	"github.com/dropDatabas3/janus/internal/security/password"
	"github.com/dropDatabas3/janus/internal/store/core"
)

var (
	ErrSelfCreator     = errors.New("user cannot be its own creator")
	ErrNothingToApply  = errors.New("no staged contact change")
	ErrCreatorNotFound = errors.New("creator not found")
)

const casRetries = 3

// Service is the user record surface used by the policy and HTTP layers.
type Service interface {
	CreateUser(ctx context.Context, p NewUserParams) (*core.User, error)

	// UpdateProfile changes the display fields and appends the previous values
	// to ProfileUpdateHistory inside the same conditional save.
	UpdateProfile(ctx context.Context, userID string, firstName, lastName string, avatar *string) (*core.User, error)

	// StagePendingEmail and StagePendingPhone park a contact change in the
	// unverified fields until a one-time code confirms it.
	StagePendingEmail(ctx context.Context, userID, newEmail string) error
	StagePendingPhone(ctx context.Context, userID, countryCode string, phoneCode int, phoneNumber string) error

	// ApplyVerifiedContact promotes whichever staged values exist for the
	// reason's field and clears the staging slots.
	ApplyVerifiedContact(ctx context.Context, userID string, reason core.OneTimeCodeReason) (*core.User, error)

	AssignRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	Roles(ctx context.Context, userID string) ([]core.UserRole, error)
}

type NewUserParams struct {
	ID               string
	Username         string
	Password         string
	Email            string
	CountryCode      string
	CountryPhoneCode int
	PhoneNumber      string
	FirstName        string
	LastName         string
	CreatorID        *string
}

type Deps struct {
	Store  core.Store
	Hasher password.Hasher
}

type service struct {
	store  core.Store
	hasher password.Hasher
}

func NewService(d Deps) Service {
	return &service{store: d.Store, hasher: d.Hasher}
}

func (s *service) CreateUser(ctx context.Context, p NewUserParams) (*core.User, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("identity.create"))

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	if p.CreatorID != nil {
		if *p.CreatorID == id {
			return nil, ErrSelfCreator
		}
		if _, err := s.store.GetUser(ctx, *p.CreatorID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return nil, ErrCreatorNotFound
			}
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return nil, err
	}
	u := &core.User{
		Meta:             core.Meta{ID: id},
		Username:         p.Username,
		PasswordHash:     hash,
		Email:            p.Email,
		CountryCode:      p.CountryCode,
		CountryPhoneCode: p.CountryPhoneCode,
		PhoneNumber:      p.PhoneNumber,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		CreatorID:        p.CreatorID,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	log.Info("user created", logger.UserID(u.ID), logger.String("username", u.Username))
	return u, nil
}

func (s *service) UpdateProfile(ctx context.Context, userID string, firstName, lastName string, avatar *string) (*core.User, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		u.ProfileUpdateHistory = append(u.ProfileUpdateHistory, core.ProfileUpdate{
			CreatedAt: time.Now().UTC(),
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Avatar:    u.Avatar,
		})
		u.FirstName = firstName
		u.LastName = lastName
		u.Avatar = avatar
		err = s.store.SaveUser(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, core.ErrConcurrentModification
}

func (s *service) StagePendingEmail(ctx context.Context, userID, newEmail string) error {
	return s.mutate(ctx, userID, func(u *core.User) {
		u.UnverifiedEmail = &newEmail
	})
}

func (s *service) StagePendingPhone(ctx context.Context, userID, countryCode string, phoneCode int, phoneNumber string) error {
	return s.mutate(ctx, userID, func(u *core.User) {
		u.UnverifiedCountryCode = &countryCode
		u.UnverifiedCountryPhoneCode = &phoneCode
		u.UnverifiedPhoneNumber = &phoneNumber
	})
}

func (s *service) ApplyVerifiedContact(ctx context.Context, userID string, reason core.OneTimeCodeReason) (*core.User, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		switch reason {
		case core.ReasonEmail:
			if u.UnverifiedEmail == nil {
				return nil, ErrNothingToApply
			}
			u.Email = *u.UnverifiedEmail
			u.UnverifiedEmail = nil
		case core.ReasonPhoneNumber:
			if u.UnverifiedPhoneNumber == nil {
				return nil, ErrNothingToApply
			}
			u.PhoneNumber = *u.UnverifiedPhoneNumber
			if u.UnverifiedCountryPhoneCode != nil {
				u.CountryPhoneCode = *u.UnverifiedCountryPhoneCode
			}
			if u.UnverifiedCountryCode != nil {
				u.CountryCode = *u.UnverifiedCountryCode
			}
			u.UnverifiedPhoneNumber = nil
			u.UnverifiedCountryPhoneCode = nil
			u.UnverifiedCountryCode = nil
		default:
			return nil, ErrNothingToApply
		}
		err = s.store.SaveUser(ctx, u)
		if err == nil {
			logger.From(ctx).Info("verified contact applied",
				logger.UserID(userID), logger.Reason(string(reason)))
			return u, nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, core.ErrConcurrentModification
}

func (s *service) mutate(ctx context.Context, userID string, fn func(*core.User)) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		fn(u)
		err = s.store.SaveUser(ctx, u)
		if err == nil {
			return nil
		}
		if !errors.Is(err, core.ErrVersionConflict) {
			return err
		}
	}
	return core.ErrConcurrentModification
}

func (s *service) AssignRole(ctx context.Context, userID, roleID string) error {
	return s.store.AddUserRole(ctx, &core.UserRole{RoleID: roleID, UserID: userID})
}

func (s *service) RevokeRole(ctx context.Context, userID, roleID string) error {
	return s.store.RemoveUserRole(ctx, &core.UserRole{RoleID: roleID, UserID: userID})
}

func (s *service) Roles(ctx context.Context, userID string) ([]core.UserRole, error) {
	return s.store.ListUserRoles(ctx, userID)
}
