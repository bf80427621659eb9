package redis

import (
	"testing"
)

func TestKeyBuilder_Environment_Prefixes(t *testing.T) {
	tests := []struct {
		name           string
		environment    string
		expectedPrefix string
	}{
		{
			name:           "Production environment should use prod prefix",
			environment:    "production",
			expectedPrefix: "prod",
		},
		{
			name:           "Development environment should use staging prefix",
			environment:    "development",
			expectedPrefix: "staging",
		},
		{
			name:           "Staging environment should use staging prefix",
			environment:    "staging",
			expectedPrefix: "staging",
		},
		{
			name:           "Test environment should use staging prefix",
			environment:    "test",
			expectedPrefix: "staging",
		},
		{
			name:           "Unknown environment should default to prod prefix",
			environment:    "unknown",
			expectedPrefix: "prod",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb := NewKeyBuilder(tt.environment)
			if kb.GetPrefix() != tt.expectedPrefix {
				t.Errorf("NewKeyBuilder(%s).GetPrefix() = %s, want %s",
					tt.environment, kb.GetPrefix(), tt.expectedPrefix)
			}
		})
	}
}

func TestKeyBuilder_KeyGeneration(t *testing.T) {
	kb := NewKeyBuilder("production")

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "Polls list key",
			key:      kb.KeyPollsList(),
			expected: "prod:polls:active",
		},
		{
			name:     "Poll stats key",
			key:      kb.KeyPollStats("p1"),
			expected: "prod:polls:p1:stats",
		},
		{
			name:     "Poll detail key",
			key:      kb.KeyPollDetail("p1"),
			expected: "prod:polls:p1:detail",
		},
		{
			name:     "User vote key",
			key:      kb.KeyUserVote("p1", "u1"),
			expected: "prod:polls:p1:vote:u1",
		},
		{
			name:     "Idempotency key",
			key:      kb.KeyIdem("vote:p1:u1"),
			expected: "prod:idem:vote:p1:u1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key != tt.expected {
				t.Errorf("got %s, want %s", tt.key, tt.expected)
			}
		})
	}
}

func TestKeyBuilder_EnvironmentIsolation(t *testing.T) {
	prod := NewKeyBuilder("production")
	staging := NewKeyBuilder("staging")

	if prod.KeyPollsList() == staging.KeyPollsList() {
		t.Error("production and staging keys must not collide")
	}
}
