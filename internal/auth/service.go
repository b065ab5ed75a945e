package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/model"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned when the token version was bumped by logout.
	ErrTokenRevoked = errors.New("token version invalidated")
)

// Claims is the token payload.
type Claims struct {
	Subject   uuid.UUID `json:"sub"`
	OrgID     uuid.UUID `json:"org"`
	Version   int       `json:"ver"`
	Type      string    `json:"typ"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
}

// Service issues and verifies tokens.
type Service struct {
	cfg    config.Config
	idRepo identity.Repository
	now    func() time.Time
}

// NewService builds the token service.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, now: time.Now}
}

// TokenPair is returned by login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues a token pair for an authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	access, err := s.sign(user, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(user, tokenRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(user identity.User, typ, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	return SignHS256(Claims{
		Subject:   user.ID,
		OrgID:     user.OrgID,
		Version:   user.TokenVersion,
		Type:      typ,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}, []byte(secret))
}

// Refresh verifies the refresh token and returns a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	user, err := s.verify(ctx, refreshToken, tokenRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, err := s.sign(user, tokenAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Authenticate resolves an access token to the actor it was issued for.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (model.Actor, error) {
	user, err := s.verify(ctx, accessToken, tokenAccess, s.cfg.JWTSecret)
	if err != nil {
		return model.Actor{}, err
	}
	return user.Actor(), nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func (s *Service) verify(ctx context.Context, token, typ, secret string) (identity.User, error) {
	var claims Claims
	if err := ParseAndVerifyHS256(token, []byte(secret), &claims); err != nil {
		return identity.User{}, ErrInvalidToken
	}
	if claims.Type != typ || claims.Subject == uuid.Nil || s.now().Unix() >= claims.ExpiresAt {
		return identity.User{}, ErrInvalidToken
	}
	user, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return identity.User{}, ErrInvalidToken
	}
	if user.TokenVersion != claims.Version || user.OrgID != claims.OrgID {
		return identity.User{}, ErrTokenRevoked
	}
	return user, nil
}
