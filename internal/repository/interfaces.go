package repository

import (
	"context"

	"pollhub/internal/domain"
)

// PollRepository defines the store operations the poll lifecycle service
// depends on. The pgx implementation lives in this package; tests substitute
// a mock.
type PollRepository interface {
	// CreatePoll inserts a poll row and fills in generated timestamps.
	CreatePoll(ctx context.Context, poll *domain.Poll) error

	// CreateOptions inserts the full option set for a poll.
	CreateOptions(ctx context.Context, pollID string, options []domain.PollOption) error

	// GetPollByID retrieves a poll by ID, (nil, nil) when absent.
	GetPollByID(ctx context.Context, id string) (*domain.Poll, error)

	// GetPollWithAggregates retrieves a poll with its total vote count and
	// creator display name, (nil, nil) when absent.
	GetPollWithAggregates(ctx context.Context, id string) (*domain.PollWithAggregates, error)

	// ListActivePolls retrieves effectively active polls with aggregates,
	// newest first.
	ListActivePolls(ctx context.Context) ([]domain.PollWithAggregates, error)

	// UpdatePoll persists title, description, expiry and active flag.
	UpdatePoll(ctx context.Context, poll *domain.Poll) error

	// ReconcileOptions applies an option diff in one transaction: updates
	// entries with matching IDs, inserts entries without one, and deletes
	// stored options missing from the list. Deleting an option that carries
	// votes fails the whole transaction with domain.ErrOptionHasVotes.
	ReconcileOptions(ctx context.Context, pollID string, options []domain.UpdateOption) error

	// SoftDeletePoll clears is_active and touches updated_at.
	SoftDeletePoll(ctx context.Context, id string) error

	// HardDeletePoll removes the poll row, cascading to options and votes.
	// Used only as the compensating action when option creation fails after
	// the poll row committed.
	HardDeletePoll(ctx context.Context, id string) error

	// GetOptionByID retrieves an option by ID, (nil, nil) when absent.
	GetOptionByID(ctx context.Context, id string) (*domain.PollOption, error)

	// GetOptionsWithStats retrieves every option of a poll with vote counts
	// and percentages, plus the poll's total vote count.
	GetOptionsWithStats(ctx context.Context, pollID string) ([]domain.OptionWithStats, int, error)

	// UpsertVote atomically inserts the user's vote or, when one already
	// exists for (pollID, userID), updates its option in place.
	UpsertVote(ctx context.Context, pollID, optionID, userID string) (*domain.Vote, error)

	// GetVoteByUserAndPoll retrieves a user's vote on a poll, (nil, nil)
	// when the user has not voted.
	GetVoteByUserAndPoll(ctx context.Context, userID, pollID string) (*domain.Vote, error)

	// DeleteVote removes the user's vote on a poll. Deleting a vote that
	// does not exist is not an error.
	DeleteVote(ctx context.Context, pollID, userID string) error
}
