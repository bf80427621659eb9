package service

import (
	"context"

	"pollhub/internal/domain"
)

// AuthGateway resolves opaque bearer credentials to user identities. The
// token format is owned by the external identity provider; the core never
// mints or introspects credentials beyond this boundary.
type AuthGateway interface {
	// ResolveUser resolves a credential best-effort: (nil, nil) when the
	// credential is absent or invalid, an error only on infrastructure
	// failure.
	ResolveUser(ctx context.Context, credential string) (*domain.User, error)

	// RequireUser resolves a credential or fails with an
	// AUTHENTICATION_ERROR. Mutating operations call this before touching
	// the repository.
	RequireUser(ctx context.Context, credential string) (*domain.User, error)
}
