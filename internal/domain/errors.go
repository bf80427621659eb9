package domain

import "errors"

// Sentinel errors surfaced by repositories so services can map store
// outcomes onto the error taxonomy without parsing driver errors.
var (
	ErrPollNotFound    = errors.New("poll not found")
	ErrOptionNotFound  = errors.New("option not found")
	ErrOptionHasVotes  = errors.New("option has votes and cannot be removed")
	ErrDuplicateOption = errors.New("duplicate option text for poll")
	ErrVoteConflict    = errors.New("user has already voted on this poll")
)
