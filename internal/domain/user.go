package domain

import "time"

// User is the identity record resolved from a bearer credential. Profiles
// are created by the identity provider out of band; the core treats them as
// read-only reference data.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuthClaims are the JWT claims the identity provider places in a token.
type AuthClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Iat     int64  `json:"iat"`
	Exp     int64  `json:"exp"`
}
