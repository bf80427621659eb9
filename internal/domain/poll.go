package domain

import (
	"time"
)

// Poll represents a poll created by a user.
type Poll struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsEffectivelyActive reports whether the poll accepts votes at the given
// instant: the active flag must be set and the expiry, when present, must be
// strictly in the future. Callers re-evaluate this on every read and vote
// attempt instead of trusting a cached result.
func (p *Poll) IsEffectivelyActive(now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return false
	}
	return true
}

// PollOption represents a single choice within a poll.
type PollOption struct {
	ID           string    `json:"id"`
	PollID       string    `json:"poll_id"`
	Text         string    `json:"text"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OptionWithStats is a poll option together with its derived vote aggregates.
// Percentage is 0 when the poll has no votes, otherwise the option's share of
// the poll total rounded to one decimal place.
type OptionWithStats struct {
	PollOption
	VoteCount  int     `json:"vote_count"`
	Percentage float64 `json:"percentage"`
}

// PollWithAggregates is a poll together with its derived totals and the
// creator's display name, as returned by list and detail reads.
type PollWithAggregates struct {
	Poll
	TotalVotes  int    `json:"total_votes"`
	CreatorName string `json:"creator_name,omitempty"`
}

// PollDetail is the full read view of a single poll: the poll with its
// aggregates, every option with stats, and, when the caller could be
// resolved, the option the caller voted for.
type PollDetail struct {
	PollWithAggregates
	Options      []OptionWithStats `json:"options"`
	UserVote     string            `json:"user_vote,omitempty"`
	UserHasVoted bool              `json:"user_has_voted"`
}

// CreatePollRequest is the payload for creating a poll.
type CreatePollRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Options     []string   `json:"options"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// UpdateOption is one entry of an option list supplied on update. Entries
// with an ID refer to existing options; entries without one are inserted.
type UpdateOption struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// UpdatePollRequest is the payload for updating a poll. Nil fields are left
// untouched; a non-nil Options slice is reconciled against the stored set.
type UpdatePollRequest struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Options     []UpdateOption `json:"options,omitempty"`
}
