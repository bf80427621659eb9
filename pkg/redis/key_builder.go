package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" || environment == "test" {
		prefix = "staging"
	}

	return &KeyBuilder{prefix: prefix}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

func (kb *KeyBuilder) KeyPollsList() string {
	return kb.BuildKey(KeyPollsList)
}

func (kb *KeyBuilder) KeyPollStats(pollID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPollStats, pollID))
}

func (kb *KeyBuilder) KeyPollDetail(pollID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPollDetail, pollID))
}

func (kb *KeyBuilder) KeyUserVote(pollID, userID string) string {
	return kb.BuildKey(fmt.Sprintf(KeyUserVote, pollID, userID))
}

func (kb *KeyBuilder) KeyIdem(key string) string {
	return kb.BuildKey(fmt.Sprintf(KeyIdem, key))
}
