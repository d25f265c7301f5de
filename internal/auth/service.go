package auth

import (
	"context"

	"github.com/contestcal/contestcal/internal/domain"
	"github.com/contestcal/contestcal/internal/logger"
	"github.com/contestcal/contestcal/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// SessionPayload is the identity document delivered by the external
// identity provider after the user completes its flow. The tokens are
// opaque calendar credentials; they are stored, never inspected.
type SessionPayload struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Picture      string `json:"picture"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Service interface {
	// UpsertSession stores or refreshes the identity record and
	// returns the resulting user. Subscription state and preferences
	// survive re-login.
	UpsertSession(ctx context.Context, payload SessionPayload) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	// VerifyAdminToken checks a presented token against the
	// configured bcrypt hash.
	VerifyAdminToken(token string) error
}

type service struct {
	log      zerolog.Logger
	config   *domain.Config
	userRepo domain.UserRepo
}

func NewService(log logger.Logger, config *domain.Config, userRepo domain.UserRepo) Service {
	return &service{
		log:      log.With().Str("module", "auth").Logger(),
		config:   config,
		userRepo: userRepo,
	}
}

func (s *service) UpsertSession(ctx context.Context, payload SessionPayload) (*domain.User, error) {
	if payload.UserID == "" {
		return nil, errors.New("userId is required")
	}
	if payload.Email == "" {
		return nil, errors.New("email is required")
	}

	err := s.userRepo.Store(ctx, domain.User{
		UserID:       payload.UserID,
		Email:        payload.Email,
		Name:         payload.Name,
		Picture:      payload.Picture,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to store user session")
	}

	user, err := s.userRepo.FindByID(ctx, payload.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load user after upsert")
	}
	if user == nil {
		return nil, errors.New("user %s missing after upsert", payload.UserID)
	}

	s.log.Debug().Str("user_id", user.UserID).Msg("Session upserted")
	return user, nil
}

func (s *service) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

func (s *service) VerifyAdminToken(token string) error {
	if s.config.AdminTokenHash == "" {
		return errors.New("admin token is not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.AdminTokenHash), []byte(token)); err != nil {
		return errors.Wrap(err, "invalid admin token")
	}
	return nil
}
