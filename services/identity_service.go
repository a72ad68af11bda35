//go:generate go run go.uber.org/mock/mockgen -source=identity_service.go -destination=../mocks/mock_identity_provider.go -package=mocks
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"labchat_server/apperrors"
	"labchat_server/models"
	"labchat_server/repositories"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// IdentityProvider turns a bearer credential into the caller identity.
type IdentityProvider interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// CustomClaims is the payload of access tokens issued by the platform's auth service.
type CustomClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// IdentityService validates HS256 tokens and resolves the subject in the user directory, which
// stays the source of truth for roles and the active flag.
type IdentityService struct {
	secret []byte
	issuer string
	users  repositories.UserRepository
	log    *logrus.Logger
}

func NewIdentityService(secret, issuer string, users repositories.UserRepository, log *logrus.Logger) *IdentityService {
	return &IdentityService{secret: []byte(secret), issuer: issuer, users: users, log: log}
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (s *IdentityService) ValidateToken(tokenString string) (*CustomClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

func (s *IdentityService) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, apperrors.Unauthorized("missing credentials")
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		s.log.WithError(err).Debug("rejected token")
		return models.Identity{}, apperrors.Unauthorized("invalid or expired token")
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return models.Identity{}, apperrors.Unauthorized("token has no subject")
	}

	profile, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return models.Identity{}, apperrors.Unauthorized("unknown user")
	}
	if err != nil {
		return models.Identity{}, err
	}
	if !profile.Active {
		return models.Identity{}, apperrors.Unauthorized("inactive user")
	}
	return models.IdentityFromProfile(*profile), nil
}

// IssueToken signs a token for userID. The server never hands these out; tools and tests use it.
func (s *IdentityService) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
