package auth

import (
	"context"

	"pollhub/internal/domain"
	"pollhub/internal/service"
	"pollhub/pkg/errors"
	"pollhub/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// Service validates bearer tokens minted by the external identity provider
// and maps their claims to user identities.
type Service struct {
	secret []byte
	logger *logger.Logger
}

// NewService creates a new auth gateway
func NewService(jwtSecret string, logger *logger.Logger) service.AuthGateway {
	return &Service{
		secret: []byte(jwtSecret),
		logger: logger,
	}
}

// ResolveUser resolves a credential best-effort. An unresolvable credential
// yields (nil, nil); read paths use this to enrich responses without
// demanding authentication.
func (s *Service) ResolveUser(ctx context.Context, credential string) (*domain.User, error) {
	if credential == "" {
		return nil, nil
	}

	user, err := s.parseToken(credential)
	if err != nil {
		s.logger.WithError(err).Debug("Credential did not resolve to a user")
		return nil, nil
	}

	return user, nil
}

// RequireUser resolves a credential or fails with AUTHENTICATION_ERROR.
func (s *Service) RequireUser(ctx context.Context, credential string) (*domain.User, error) {
	if credential == "" {
		return nil, errors.NewAuthenticationError("Authentication required")
	}

	user, err := s.parseToken(credential)
	if err != nil {
		s.logger.WithError(err).Warn("Token validation failed")
		return nil, errors.NewAuthenticationError("Invalid or expired token")
	}

	return user, nil
}

func (s *Service) parseToken(tokenString string) (*domain.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, jwt.ErrTokenInvalidSubject
	}

	user := &domain.User{
		ID: sub,
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := claims["name"].(string); ok {
		user.DisplayName = name
	}
	if picture, ok := claims["picture"].(string); ok {
		user.AvatarURL = picture
	}

	return user, nil
}
