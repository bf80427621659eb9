package domain

import "time"

// Vote records a user's single vote on a poll. At most one row exists per
// (poll, user) pair; a re-vote updates OptionID in place.
type Vote struct {
	ID        string    `json:"id"`
	PollID    string    `json:"poll_id"`
	OptionID  string    `json:"option_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CastVoteRequest is the payload for casting a vote on a poll.
type CastVoteRequest struct {
	OptionID string `json:"option_id"`
}

// VoteResult is returned after a vote is cast or removed: the refreshed
// options view plus the poll totals, so a client can re-render results
// without a second round trip.
type VoteResult struct {
	PollID     string            `json:"poll_id"`
	Options    []OptionWithStats `json:"options"`
	TotalVotes int               `json:"total_votes"`
	UserVote   string            `json:"user_vote,omitempty"`
}
