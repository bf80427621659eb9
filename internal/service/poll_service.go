package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pollhub/internal/domain"
	"pollhub/internal/repository"
	"pollhub/internal/validation"
	"pollhub/pkg/errors"
	"pollhub/pkg/redis"

	"go.uber.org/zap"
)

// PollService orchestrates poll lifecycle and voting operations against the
// repository, enforcing ownership, activity and one-vote-per-user rules.
// Every failure crossing this boundary is an *errors.AppError carrying a
// code from the closed taxonomy.
//
// Authentication and validation always run before any repository write; a
// failed credential short-circuits with zero store side effects.
type PollService struct {
	repo   repository.PollRepository
	auth   AuthGateway
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
}

// NewPollService creates a new poll service. redisClient may be nil, which
// disables caching.
func NewPollService(repo repository.PollRepository, auth AuthGateway, redisClient *redis.Client, logger *zap.Logger) *PollService {
	return &PollService{
		repo:   repo,
		auth:   auth,
		cache:  NewCacheService(redisClient, logger),
		logger: logger,
		now:    time.Now,
	}
}

// ListPolls returns the effectively active polls with aggregates, newest
// first. No authentication required.
func (s *PollService) ListPolls(ctx context.Context) ([]domain.PollWithAggregates, error) {
	if polls, ok := s.cache.GetPollList(ctx); ok {
		return polls, nil
	}

	polls, err := s.repo.ListActivePolls(ctx)
	if err != nil {
		s.logger.Error("Failed to list polls", zap.Error(err))
		return nil, errors.NewUnknownError(err)
	}
	if polls == nil {
		polls = []domain.PollWithAggregates{}
	}

	s.cache.SetPollList(ctx, polls)
	return polls, nil
}

// GetPoll returns a poll's full detail view. A resolvable credential
// attaches the caller's own vote; this enrichment is best-effort and never
// requires authentication. Soft-deleted polls are visible only to their
// owner.
func (s *PollService) GetPoll(ctx context.Context, pollID, credential string) (*domain.PollDetail, error) {
	if fieldErrs := validation.ID("poll_id", pollID); len(fieldErrs) > 0 {
		return nil, errors.NewValidationError("Invalid poll id", validation.Fields(fieldErrs))
	}

	// Anonymous requests serve from the cached detail view; only views with
	// no caller vote attached are ever cached.
	if credential == "" {
		if detail, ok := s.cache.GetPollDetail(ctx, pollID); ok {
			return detail, nil
		}
	}

	poll, err := s.repo.GetPollWithAggregates(ctx, pollID)
	if err != nil {
		s.logger.Error("Failed to fetch poll",
			zap.String("poll_id", pollID),
			zap.Error(err))
		return nil, errors.NewInternalError(errors.CodeFetchError, "Failed to fetch poll", err)
	}
	if poll == nil {
		return nil, errors.NewPollNotFoundError("Poll not found")
	}

	user, err := s.auth.ResolveUser(ctx, credential)
	if err != nil {
		s.logger.Warn("Credential resolution failed, continuing anonymously", zap.Error(err))
		user = nil
	}

	// Anonymous viewers only see effectively active polls. A resolvable
	// user may still view expired polls (their results stay readable), and
	// only the owner may view a soft-deleted one.
	if user == nil && !poll.IsEffectivelyActive(s.now()) {
		return nil, errors.NewPollNotFoundError("Poll not found")
	}
	if !poll.IsActive && (user == nil || user.ID != poll.CreatedBy) {
		return nil, errors.NewPollNotFoundError("Poll not found")
	}

	options, total, err := s.repo.GetOptionsWithStats(ctx, pollID)
	if err != nil {
		s.logger.Error("Failed to fetch poll options",
			zap.String("poll_id", pollID),
			zap.Error(err))
		return nil, errors.NewInternalError(errors.CodeFetchError, "Failed to fetch poll options", err)
	}

	detail := &domain.PollDetail{
		PollWithAggregates: *poll,
		Options:            options,
	}
	detail.TotalVotes = total

	if user == nil {
		s.cache.SetPollDetail(ctx, pollID, detail)
		return detail, nil
	}

	if optionID, ok := s.cache.GetUserVote(ctx, pollID, user.ID); ok {
		detail.UserVote = optionID
		detail.UserHasVoted = true
	} else if vote, err := s.repo.GetVoteByUserAndPoll(ctx, user.ID, pollID); err != nil {
		s.logger.Warn("Failed to attach caller vote",
			zap.String("poll_id", pollID),
			zap.Error(err))
	} else if vote != nil {
		detail.UserVote = vote.OptionID
		detail.UserHasVoted = true
		s.cache.CacheUserVote(ctx, pollID, user.ID, vote.OptionID)
	}

	return detail, nil
}

// CreatePoll validates the request, creates the poll row set to active and
// its option rows, and returns the poll re-fetched with options attached.
// When option creation fails after the poll row committed, the just-created
// poll is deleted best-effort before CREATE_ERROR is surfaced.
func (s *PollService) CreatePoll(ctx context.Context, req *domain.CreatePollRequest, credential string) (*domain.PollDetail, error) {
	user, err := s.auth.RequireUser(ctx, credential)
	if err != nil {
		return nil, errors.FromError(err)
	}

	if fieldErrs := validation.CreatePoll(req, s.now()); len(fieldErrs) > 0 {
		return nil, errors.NewValidationError("Poll validation failed", validation.Fields(fieldErrs))
	}

	poll := &domain.Poll{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		CreatedBy:   user.ID,
	}

	if err := s.repo.CreatePoll(ctx, poll); err != nil {
		s.logger.Error("Failed to create poll",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return nil, errors.NewInternalError(errors.CodeCreateError, "Failed to create poll", err)
	}

	options := make([]domain.PollOption, 0, len(req.Options))
	order := 0
	for _, text := range req.Options {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		options = append(options, domain.PollOption{
			Text:         trimmed,
			DisplayOrder: order,
		})
		order++
	}

	if err := s.repo.CreateOptions(ctx, poll.ID, options); err != nil {
		// The poll row already committed; compensate by removing it so no
		// option-less poll is left behind. The compensation is best-effort
		// and its own failure is logged, not retried.
		if delErr := s.repo.HardDeletePoll(ctx, poll.ID); delErr != nil {
			s.logger.Error("Compensating poll delete failed",
				zap.String("poll_id", poll.ID),
				zap.Error(delErr))
		}
		s.logger.Error("Failed to create poll options",
			zap.String("poll_id", poll.ID),
			zap.Error(err))
		return nil, errors.NewInternalError(errors.CodeCreateError, "Failed to create poll options", err)
	}

	s.cache.InvalidatePoll(ctx, poll.ID, "")

	detail, fetchErr := s.refetchDetail(ctx, poll.ID)
	if fetchErr != nil {
		return nil, errors.NewInternalError(errors.CodeCreateError, "Poll created but could not be read back", fetchErr)
	}

	s.logger.Info("Poll created",
		zap.String("poll_id", poll.ID),
		zap.String("user_id", user.ID),
		zap.Int("options", len(options)))

	return detail, nil
}

// UpdatePoll applies field updates and, when an option list is supplied,
// reconciles it against the stored set: matched options are updated, new
// ones inserted, and removed ones deleted only while they carry no votes.
// Ownership is the only authorization rule.
func (s *PollService) UpdatePoll(ctx context.Context, pollID string, req *domain.UpdatePollRequest, credential string) (*domain.PollDetail, error) {
	user, err := s.auth.RequireUser(ctx, credential)
	if err != nil {
		return nil, errors.FromError(err)
	}

	fieldErrs := validation.ID("poll_id", pollID)
	fieldErrs = append(fieldErrs, validation.UpdatePoll(req, s.now())...)
	if len(fieldErrs) > 0 {
		return nil, errors.NewValidationError("Poll validation failed", validation.Fields(fieldErrs))
	}

	existing, err := s.repo.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, errors.NewInternalError(errors.CodeUpdateError, "Failed to fetch poll", err)
	}
	if existing == nil || !existing.IsActive {
		return nil, errors.NewPollNotFoundError("Poll not found")
	}
	if existing.CreatedBy != user.ID {
		return nil, errors.NewPermissionDeniedError("Only the poll creator can modify this poll")
	}

	if req.Title != nil {
		existing.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		existing.Description = strings.TrimSpace(*req.Description)
	}
	if req.ExpiresAt != nil {
		existing.ExpiresAt = req.ExpiresAt
	}

	if err := s.repo.UpdatePoll(ctx, existing); err != nil {
		if err == domain.ErrPollNotFound {
			return nil, errors.NewPollNotFoundError("Poll not found")
		}
		s.logger.Error("Failed to update poll",
			zap.String("poll_id", pollID),
			zap.Error(err))
		return nil, errors.NewInternalError(errors.CodeUpdateError, "Failed to update poll", err)
	}

	if req.Options != nil {
		if err := s.repo.ReconcileOptions(ctx, pollID, req.Options); err != nil {
			switch err {
			case domain.ErrOptionHasVotes:
				return nil, &errors.AppError{
					Code:       errors.CodeUpdateError,
					Message:    "Options with recorded votes cannot be removed",
					StatusCode: http.StatusConflict,
				}
			case domain.ErrOptionNotFound:
				return nil, errors.NewValidationError("Option does not belong to this poll", nil)
			case domain.ErrDuplicateOption:
				return nil, errors.NewValidationError("Duplicate option text", nil)
			default:
				s.logger.Error("Failed to reconcile options",
					zap.String("poll_id", pollID),
					zap.Error(err))
				return nil, errors.NewInternalError(errors.CodeUpdateError, "Failed to update poll options", err)
			}
		}
	}

	s.cache.InvalidatePoll(ctx, pollID, "")

	detail, fetchErr := s.refetchDetail(ctx, pollID)
	if fetchErr != nil {
		return nil, errors.NewInternalError(errors.CodeUpdateError, "Poll updated but could not be read back", fetchErr)
	}

	s.logger.Info("Poll updated",
		zap.String("poll_id", pollID),
		zap.String("user_id", user.ID))

	return detail, nil
}

// DeletePoll soft-deletes a poll: the active flag is cleared and options and
// votes are preserved for history. Ownership is the only authorization rule.
func (s *PollService) DeletePoll(ctx context.Context, pollID, credential string) error {
	user, err := s.auth.RequireUser(ctx, credential)
	if err != nil {
		return errors.FromError(err)
	}

	if fieldErrs := validation.ID("poll_id", pollID); len(fieldErrs) > 0 {
		return errors.NewValidationError("Invalid poll id", validation.Fields(fieldErrs))
	}

	existing, err := s.repo.GetPollByID(ctx, pollID)
	if err != nil {
		return errors.NewInternalError(errors.CodeDeleteError, "Failed to fetch poll", err)
	}
	if existing == nil || !existing.IsActive {
		return errors.NewPollNotFoundError("Poll not found")
	}
	if existing.CreatedBy != user.ID {
		return errors.NewPermissionDeniedError("Only the poll creator can delete this poll")
	}

	if err := s.repo.SoftDeletePoll(ctx, pollID); err != nil {
		if err == domain.ErrPollNotFound {
			return errors.NewPollNotFoundError("Poll not found")
		}
		s.logger.Error("Failed to delete poll",
			zap.String("poll_id", pollID),
			zap.Error(err))
		return errors.NewInternalError(errors.CodeDeleteError, "Failed to delete poll", err)
	}

	s.cache.InvalidatePoll(ctx, pollID, "")

	s.logger.Info("Poll deleted",
		zap.String("poll_id", pollID),
		zap.String("user_id", user.ID))

	return nil
}

// CastVote records the caller's vote for an option. Activity is recomputed
// from the wall clock on every attempt; a second cast by the same user is an
// idempotent option change through the store's atomic upsert, never an
// error. Returns the refreshed options-with-stats view.
func (s *PollService) CastVote(ctx context.Context, pollID, optionID, credential string) (*domain.VoteResult, error) {
	user, err := s.auth.RequireUser(ctx, credential)
	if err != nil {
		return nil, errors.FromError(err)
	}

	fieldErrs := validation.ID("poll_id", pollID)
	fieldErrs = append(fieldErrs, validation.ID("option_id", optionID)...)
	if len(fieldErrs) > 0 {
		return nil, errors.NewValidationError("Invalid vote request", validation.Fields(fieldErrs))
	}

	poll, err := s.repo.GetPollByID(ctx, pollID)
	if err != nil {
		return nil, errors.NewInternalError(errors.CodeVoteError, "Failed to fetch poll", err)
	}
	if poll == nil || !poll.IsActive {
		return nil, errors.NewPollNotFoundError("Poll not found")
	}
	if !poll.IsEffectivelyActive(s.now()) {
		return nil, errors.NewPollExpiredError("This poll has expired")
	}

	option, err := s.repo.GetOptionByID(ctx, optionID)
	if err != nil {
		return nil, errors.NewInternalError(errors.CodeVoteError, "Failed to fetch option", err)
	}
	if option == nil || option.PollID != pollID {
		return nil, errors.NewInvalidOptionError("Option does not belong to this poll")
	}

	// A rapid duplicate of the same user/option submission (double click,
	// client retry) is answered from the cached stats without touching the
	// store again. The lock is released on upsert failure so a real retry
	// goes through.
	idemKey := fmt.Sprintf("%s:%s:%s", pollID, user.ID, optionID)
	if !s.cache.TryIdempotencyLock(ctx, idemKey, redis.TTLIdem) {
		if stats, ok := s.cache.GetPollStats(ctx, pollID); ok {
			stats.UserVote = optionID
			return stats, nil
		}
	}

	vote, err := s.repo.UpsertVote(ctx, pollID, optionID, user.ID)
	if err != nil {
		s.cache.ReleaseIdempotencyLock(ctx, idemKey)
		switch err {
		case domain.ErrPollNotFound:
			// Poll deleted while the vote was in flight.
			return nil, errors.NewPollNotFoundError("Poll not found")
		case domain.ErrOptionNotFound:
			return nil, errors.NewInvalidOptionError("Option does not belong to this poll")
		default:
			s.logger.Error("Failed to cast vote",
				zap.String("poll_id", pollID),
				zap.String("user_id", user.ID),
				zap.Error(err))
			return nil, errors.NewInternalError(errors.CodeVoteError, "Failed to cast vote", err)
		}
	}

	s.cache.InvalidatePoll(ctx, pollID, user.ID)
	s.cache.CacheUserVote(ctx, pollID, user.ID, vote.OptionID)

	options, total, err := s.repo.GetOptionsWithStats(ctx, pollID)
	if err != nil {
		return nil, errors.NewInternalError(errors.CodeVoteError, "Vote recorded but results could not be read back", err)
	}

	result := &domain.VoteResult{
		PollID:     pollID,
		Options:    options,
		TotalVotes: total,
		UserVote:   vote.OptionID,
	}
	s.cache.SetPollStats(ctx, pollID, result)

	s.logger.Info("Vote cast",
		zap.String("poll_id", pollID),
		zap.String("option_id", vote.OptionID),
		zap.String("user_id", user.ID))

	return result, nil
}

// RemoveVote deletes the caller's vote on a poll. Removing a vote that does
// not exist is a no-op, not an error. Returns the refreshed
// options-with-stats view.
func (s *PollService) RemoveVote(ctx context.Context, pollID, credential string) (*domain.VoteResult, error) {
	user, err := s.auth.RequireUser(ctx, credential)
	if err != nil {
		return nil, errors.FromError(err)
	}

	if fieldErrs := validation.ID("poll_id", pollID); len(fieldErrs) > 0 {
		return nil, errors.NewValidationError("Invalid poll id", validation.Fields(fieldErrs))
	}

	if err := s.repo.DeleteVote(ctx, pollID, user.ID); err != nil {
		s.logger.Error("Failed to remove vote",
			zap.String("poll_id", pollID),
			zap.String("user_id", user.ID),
			zap.Error(err))
		return nil, errors.NewInternalError(errors.CodeDeleteError, "Failed to remove vote", err)
	}

	s.cache.InvalidatePoll(ctx, pollID, user.ID)

	options, total, err := s.repo.GetOptionsWithStats(ctx, pollID)
	if err != nil {
		return nil, errors.NewInternalError(errors.CodeDeleteError, "Vote removed but results could not be read back", err)
	}

	result := &domain.VoteResult{
		PollID:     pollID,
		Options:    options,
		TotalVotes: total,
	}

	s.logger.Info("Vote removed",
		zap.String("poll_id", pollID),
		zap.String("user_id", user.ID))

	return result, nil
}

// HealthCheck verifies the service's cache dependency.
func (s *PollService) HealthCheck(ctx context.Context) error {
	return s.cache.HealthCheck(ctx)
}

// refetchDetail reads a poll back in its canonical response shape after a
// mutation.
func (s *PollService) refetchDetail(ctx context.Context, pollID string) (*domain.PollDetail, error) {
	poll, err := s.repo.GetPollWithAggregates(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll == nil {
		return nil, domain.ErrPollNotFound
	}

	options, total, err := s.repo.GetOptionsWithStats(ctx, pollID)
	if err != nil {
		return nil, err
	}

	detail := &domain.PollDetail{
		PollWithAggregates: *poll,
		Options:            options,
	}
	detail.TotalVotes = total
	return detail, nil
}
