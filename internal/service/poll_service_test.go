package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"pollhub/internal/domain"
	apperrors "pollhub/pkg/errors"
	"pollhub/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPollRepository is a testify mock of repository.PollRepository.
type MockPollRepository struct {
	mock.Mock
}

func (m *MockPollRepository) CreatePoll(ctx context.Context, poll *domain.Poll) error {
	args := m.Called(ctx, poll)
	return args.Error(0)
}

func (m *MockPollRepository) CreateOptions(ctx context.Context, pollID string, options []domain.PollOption) error {
	args := m.Called(ctx, pollID, options)
	return args.Error(0)
}

func (m *MockPollRepository) GetPollByID(ctx context.Context, id string) (*domain.Poll, error) {
	args := m.Called(ctx, id)
	if poll := args.Get(0); poll != nil {
		return poll.(*domain.Poll), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPollRepository) GetPollWithAggregates(ctx context.Context, id string) (*domain.PollWithAggregates, error) {
	args := m.Called(ctx, id)
	if poll := args.Get(0); poll != nil {
		return poll.(*domain.PollWithAggregates), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPollRepository) ListActivePolls(ctx context.Context) ([]domain.PollWithAggregates, error) {
	args := m.Called(ctx)
	if polls := args.Get(0); polls != nil {
		return polls.([]domain.PollWithAggregates), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPollRepository) UpdatePoll(ctx context.Context, poll *domain.Poll) error {
	args := m.Called(ctx, poll)
	return args.Error(0)
}

func (m *MockPollRepository) ReconcileOptions(ctx context.Context, pollID string, options []domain.UpdateOption) error {
	args := m.Called(ctx, pollID, options)
	return args.Error(0)
}

func (m *MockPollRepository) SoftDeletePoll(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPollRepository) HardDeletePoll(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPollRepository) GetOptionByID(ctx context.Context, id string) (*domain.PollOption, error) {
	args := m.Called(ctx, id)
	if opt := args.Get(0); opt != nil {
		return opt.(*domain.PollOption), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPollRepository) GetOptionsWithStats(ctx context.Context, pollID string) ([]domain.OptionWithStats, int, error) {
	args := m.Called(ctx, pollID)
	if opts := args.Get(0); opts != nil {
		return opts.([]domain.OptionWithStats), args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *MockPollRepository) UpsertVote(ctx context.Context, pollID, optionID, userID string) (*domain.Vote, error) {
	args := m.Called(ctx, pollID, optionID, userID)
	if vote := args.Get(0); vote != nil {
		return vote.(*domain.Vote), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPollRepository) GetVoteByUserAndPoll(ctx context.Context, userID, pollID string) (*domain.Vote, error) {
	args := m.Called(ctx, userID, pollID)
	if vote := args.Get(0); vote != nil {
		return vote.(*domain.Vote), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPollRepository) DeleteVote(ctx context.Context, pollID, userID string) error {
	args := m.Called(ctx, pollID, userID)
	return args.Error(0)
}

// stubAuthGateway resolves a fixed user for a fixed credential and rejects
// everything else, matching the gateway contract.
type stubAuthGateway struct {
	credential string
	user       *domain.User
}

func (s *stubAuthGateway) ResolveUser(ctx context.Context, credential string) (*domain.User, error) {
	if credential == s.credential && s.user != nil {
		return s.user, nil
	}
	return nil, nil
}

func (s *stubAuthGateway) RequireUser(ctx context.Context, credential string) (*domain.User, error) {
	if credential == s.credential && s.user != nil {
		return s.user, nil
	}
	return nil, apperrors.NewAuthenticationError("Invalid or expired token")
}

const (
	testCredential = "valid-token"
	testUserID     = "user-1"
	testPollID     = "poll-1"
	testOptionID   = "opt-1"
)

func newTestService(repo *MockPollRepository) *PollService {
	gateway := &stubAuthGateway{
		credential: testCredential,
		user:       &domain.User{ID: testUserID, DisplayName: "Test User"},
	}
	svc := NewPollService(repo, gateway, nil, zap.NewNop())
	svc.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func activePoll() *domain.Poll {
	return &domain.Poll{
		ID:        testPollID,
		Title:     "Favorite language?",
		IsActive:  true,
		CreatedBy: testUserID,
	}
}

func pollAggregates() *domain.PollWithAggregates {
	return &domain.PollWithAggregates{
		Poll:        *activePoll(),
		TotalVotes:  3,
		CreatorName: "Test User",
	}
}

func optionStats() []domain.OptionWithStats {
	return []domain.OptionWithStats{
		{PollOption: domain.PollOption{ID: testOptionID, PollID: testPollID, Text: "Go"}, VoteCount: 2, Percentage: 66.7},
		{PollOption: domain.PollOption{ID: "opt-2", PollID: testPollID, Text: "Rust"}, VoteCount: 1, Percentage: 33.3},
	}
}

func assertAppError(t *testing.T, err error, code apperrors.Code, status int) *apperrors.AppError {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.StatusCode)
	return appErr
}

func TestListPolls(t *testing.T) {
	t.Run("returns polls newest first", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("ListActivePolls", mock.Anything).Return([]domain.PollWithAggregates{*pollAggregates()}, nil)

		svc := newTestService(repo)
		polls, err := svc.ListPolls(context.Background())

		require.NoError(t, err)
		assert.Len(t, polls, 1)
		assert.Equal(t, testPollID, polls[0].ID)
		repo.AssertExpectations(t)
	})

	t.Run("empty store yields empty slice, not nil", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("ListActivePolls", mock.Anything).Return(nil, nil)

		svc := newTestService(repo)
		polls, err := svc.ListPolls(context.Background())

		require.NoError(t, err)
		assert.NotNil(t, polls)
		assert.Empty(t, polls)
	})

	t.Run("store failure maps to UNKNOWN_ERROR", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("ListActivePolls", mock.Anything).Return(nil, errors.New("connection refused"))

		svc := newTestService(repo)
		_, err := svc.ListPolls(context.Background())

		assertAppError(t, err, apperrors.CodeUnknown, http.StatusInternalServerError)
	})
}

func TestGetPoll(t *testing.T) {
	t.Run("anonymous caller gets stats without user vote", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(pollAggregates(), nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)

		svc := newTestService(repo)
		detail, err := svc.GetPoll(context.Background(), testPollID, "")

		require.NoError(t, err)
		assert.Equal(t, 3, detail.TotalVotes)
		assert.Len(t, detail.Options, 2)
		assert.False(t, detail.UserHasVoted)
		assert.Empty(t, detail.UserVote)
	})

	t.Run("authenticated caller gets own vote attached", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(pollAggregates(), nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)
		repo.On("GetVoteByUserAndPoll", mock.Anything, testUserID, testPollID).
			Return(&domain.Vote{ID: "v1", PollID: testPollID, OptionID: testOptionID, UserID: testUserID}, nil)

		svc := newTestService(repo)
		detail, err := svc.GetPoll(context.Background(), testPollID, testCredential)

		require.NoError(t, err)
		assert.True(t, detail.UserHasVoted)
		assert.Equal(t, testOptionID, detail.UserVote)
	})

	t.Run("invalid credential degrades to anonymous", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(pollAggregates(), nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)

		svc := newTestService(repo)
		detail, err := svc.GetPoll(context.Background(), testPollID, "garbage-token")

		require.NoError(t, err)
		assert.False(t, detail.UserHasVoted)
	})

	t.Run("missing poll maps to POLL_NOT_FOUND", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, "missing").Return(nil, nil)

		svc := newTestService(repo)
		_, err := svc.GetPoll(context.Background(), "missing", "")

		assertAppError(t, err, apperrors.CodePollNotFound, http.StatusNotFound)
	})

	t.Run("soft-deleted poll hidden from non-owners", func(t *testing.T) {
		deleted := pollAggregates()
		deleted.IsActive = false

		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(deleted, nil)

		svc := newTestService(repo)
		_, err := svc.GetPoll(context.Background(), testPollID, "")

		assertAppError(t, err, apperrors.CodePollNotFound, http.StatusNotFound)
	})

	t.Run("soft-deleted poll visible to its owner", func(t *testing.T) {
		deleted := pollAggregates()
		deleted.IsActive = false

		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(deleted, nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)
		repo.On("GetVoteByUserAndPoll", mock.Anything, testUserID, testPollID).Return(nil, nil)

		svc := newTestService(repo)
		detail, err := svc.GetPoll(context.Background(), testPollID, testCredential)

		require.NoError(t, err)
		assert.False(t, detail.IsActive)
	})

	t.Run("store failure maps to FETCH_ERROR", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(nil, errors.New("timeout"))

		svc := newTestService(repo)
		_, err := svc.GetPoll(context.Background(), testPollID, "")

		assertAppError(t, err, apperrors.CodeFetchError, http.StatusInternalServerError)
	})
}

func TestCreatePoll(t *testing.T) {
	validReq := func() *domain.CreatePollRequest {
		return &domain.CreatePollRequest{
			Title:   "Favorite language?",
			Options: []string{"Go", "Rust"},
		}
	}

	t.Run("anonymous caller is rejected before any write", func(t *testing.T) {
		repo := new(MockPollRepository)

		svc := newTestService(repo)
		_, err := svc.CreatePoll(context.Background(), validReq(), "")

		assertAppError(t, err, apperrors.CodeAuthentication, http.StatusUnauthorized)
		repo.AssertNotCalled(t, "CreatePoll", mock.Anything, mock.Anything)
	})

	t.Run("invalid payload is rejected before any write", func(t *testing.T) {
		repo := new(MockPollRepository)

		svc := newTestService(repo)
		_, err := svc.CreatePoll(context.Background(), &domain.CreatePollRequest{Title: "x", Options: []string{"One"}}, testCredential)

		appErr := assertAppError(t, err, apperrors.CodeValidation, http.StatusBadRequest)
		assert.NotNil(t, appErr.Details["fields"])
		repo.AssertNotCalled(t, "CreatePoll", mock.Anything, mock.Anything)
	})

	t.Run("creates poll with trimmed options in order", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("CreatePoll", mock.Anything, mock.MatchedBy(func(p *domain.Poll) bool {
			return p.Title == "Favorite language?" && p.IsActive && p.CreatedBy == testUserID
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Poll).ID = testPollID
		}).Return(nil)
		repo.On("CreateOptions", mock.Anything, testPollID, mock.MatchedBy(func(opts []domain.PollOption) bool {
			return len(opts) == 2 && opts[0].Text == "Go" && opts[0].DisplayOrder == 0 &&
				opts[1].Text == "Rust" && opts[1].DisplayOrder == 1
		})).Return(nil)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(pollAggregates(), nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 0, nil)

		svc := newTestService(repo)
		req := validReq()
		req.Options = []string{" Go ", "Rust"}
		detail, err := svc.CreatePoll(context.Background(), req, testCredential)

		require.NoError(t, err)
		assert.Equal(t, testPollID, detail.ID)
		repo.AssertExpectations(t)
	})

	t.Run("option failure triggers compensating delete", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("CreatePoll", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Poll).ID = testPollID
		}).Return(nil)
		repo.On("CreateOptions", mock.Anything, testPollID, mock.Anything).Return(errors.New("constraint violation"))
		repo.On("HardDeletePoll", mock.Anything, testPollID).Return(nil)

		svc := newTestService(repo)
		_, err := svc.CreatePoll(context.Background(), validReq(), testCredential)

		assertAppError(t, err, apperrors.CodeCreateError, http.StatusInternalServerError)
		repo.AssertCalled(t, "HardDeletePoll", mock.Anything, testPollID)
	})

	t.Run("poll insert failure maps to CREATE_ERROR", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("CreatePoll", mock.Anything, mock.Anything).Return(errors.New("pool exhausted"))

		svc := newTestService(repo)
		_, err := svc.CreatePoll(context.Background(), validReq(), testCredential)

		assertAppError(t, err, apperrors.CodeCreateError, http.StatusInternalServerError)
		repo.AssertNotCalled(t, "CreateOptions", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestUpdatePoll(t *testing.T) {
	newTitle := "Updated title"

	t.Run("owner updates title", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("UpdatePoll", mock.Anything, mock.MatchedBy(func(p *domain.Poll) bool {
			return p.Title == newTitle
		})).Return(nil)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(pollAggregates(), nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)

		svc := newTestService(repo)
		_, err := svc.UpdatePoll(context.Background(), testPollID, &domain.UpdatePollRequest{Title: &newTitle}, testCredential)

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("non-owner gets PERMISSION_DENIED", func(t *testing.T) {
		other := activePoll()
		other.CreatedBy = "someone-else"

		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(other, nil)

		svc := newTestService(repo)
		_, err := svc.UpdatePoll(context.Background(), testPollID, &domain.UpdatePollRequest{Title: &newTitle}, testCredential)

		assertAppError(t, err, apperrors.CodePermissionDenied, http.StatusForbidden)
		repo.AssertNotCalled(t, "UpdatePoll", mock.Anything, mock.Anything)
	})

	t.Run("soft-deleted poll cannot be updated", func(t *testing.T) {
		deleted := activePoll()
		deleted.IsActive = false

		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(deleted, nil)

		svc := newTestService(repo)
		_, err := svc.UpdatePoll(context.Background(), testPollID, &domain.UpdatePollRequest{Title: &newTitle}, testCredential)

		assertAppError(t, err, apperrors.CodePollNotFound, http.StatusNotFound)
	})

	t.Run("removing a voted option is a conflict", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("UpdatePoll", mock.Anything, mock.Anything).Return(nil)
		repo.On("ReconcileOptions", mock.Anything, testPollID, mock.Anything).Return(domain.ErrOptionHasVotes)

		svc := newTestService(repo)
		req := &domain.UpdatePollRequest{
			Options: []domain.UpdateOption{{Text: "Go"}, {Text: "Zig"}},
		}
		_, err := svc.UpdatePoll(context.Background(), testPollID, req, testCredential)

		assertAppError(t, err, apperrors.CodeUpdateError, http.StatusConflict)
	})

	t.Run("foreign option id is a validation error", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("UpdatePoll", mock.Anything, mock.Anything).Return(nil)
		repo.On("ReconcileOptions", mock.Anything, testPollID, mock.Anything).Return(domain.ErrOptionNotFound)

		svc := newTestService(repo)
		req := &domain.UpdatePollRequest{
			Options: []domain.UpdateOption{{ID: "foreign-opt", Text: "Go"}, {Text: "Zig"}},
		}
		_, err := svc.UpdatePoll(context.Background(), testPollID, req, testCredential)

		assertAppError(t, err, apperrors.CodeValidation, http.StatusBadRequest)
	})

	t.Run("anonymous caller is rejected before any read", func(t *testing.T) {
		repo := new(MockPollRepository)

		svc := newTestService(repo)
		_, err := svc.UpdatePoll(context.Background(), testPollID, &domain.UpdatePollRequest{Title: &newTitle}, "")

		assertAppError(t, err, apperrors.CodeAuthentication, http.StatusUnauthorized)
		repo.AssertNotCalled(t, "GetPollByID", mock.Anything, mock.Anything)
	})
}

func TestDeletePoll(t *testing.T) {
	t.Run("owner soft-deletes", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("SoftDeletePoll", mock.Anything, testPollID).Return(nil)

		svc := newTestService(repo)
		err := svc.DeletePoll(context.Background(), testPollID, testCredential)

		require.NoError(t, err)
		repo.AssertCalled(t, "SoftDeletePoll", mock.Anything, testPollID)
		repo.AssertNotCalled(t, "HardDeletePoll", mock.Anything, mock.Anything)
	})

	t.Run("non-owner gets PERMISSION_DENIED", func(t *testing.T) {
		other := activePoll()
		other.CreatedBy = "someone-else"

		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(other, nil)

		svc := newTestService(repo)
		err := svc.DeletePoll(context.Background(), testPollID, testCredential)

		assertAppError(t, err, apperrors.CodePermissionDenied, http.StatusForbidden)
		repo.AssertNotCalled(t, "SoftDeletePoll", mock.Anything, mock.Anything)
	})

	t.Run("deleting twice is POLL_NOT_FOUND", func(t *testing.T) {
		deleted := activePoll()
		deleted.IsActive = false

		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(deleted, nil)

		svc := newTestService(repo)
		err := svc.DeletePoll(context.Background(), testPollID, testCredential)

		assertAppError(t, err, apperrors.CodePollNotFound, http.StatusNotFound)
	})
}

func TestCastVote(t *testing.T) {
	castVote := func(repo *MockPollRepository) (*domain.VoteResult, error) {
		svc := newTestService(repo)
		return svc.CastVote(context.Background(), testPollID, testOptionID, testCredential)
	}

	t.Run("records vote and returns refreshed stats", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("GetOptionByID", mock.Anything, testOptionID).
			Return(&domain.PollOption{ID: testOptionID, PollID: testPollID, Text: "Go"}, nil)
		repo.On("UpsertVote", mock.Anything, testPollID, testOptionID, testUserID).
			Return(&domain.Vote{ID: "v1", PollID: testPollID, OptionID: testOptionID, UserID: testUserID}, nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)

		result, err := castVote(repo)

		require.NoError(t, err)
		assert.Equal(t, testPollID, result.PollID)
		assert.Equal(t, testOptionID, result.UserVote)
		assert.Equal(t, 3, result.TotalVotes)
		repo.AssertExpectations(t)
	})

	t.Run("anonymous caller is rejected before any read", func(t *testing.T) {
		repo := new(MockPollRepository)

		svc := newTestService(repo)
		_, err := svc.CastVote(context.Background(), testPollID, testOptionID, "")

		assertAppError(t, err, apperrors.CodeAuthentication, http.StatusUnauthorized)
		repo.AssertNotCalled(t, "UpsertVote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expired poll is POLL_EXPIRED", func(t *testing.T) {
		expired := activePoll()
		past := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
		expired.ExpiresAt = &past

		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(expired, nil)

		_, err := castVote(repo)

		assertAppError(t, err, apperrors.CodePollExpired, http.StatusGone)
		repo.AssertNotCalled(t, "UpsertVote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("soft-deleted poll is POLL_NOT_FOUND", func(t *testing.T) {
		deleted := activePoll()
		deleted.IsActive = false

		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(deleted, nil)

		_, err := castVote(repo)

		assertAppError(t, err, apperrors.CodePollNotFound, http.StatusNotFound)
	})

	t.Run("option from another poll is INVALID_OPTION", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("GetOptionByID", mock.Anything, testOptionID).
			Return(&domain.PollOption{ID: testOptionID, PollID: "other-poll", Text: "Go"}, nil)

		_, err := castVote(repo)

		assertAppError(t, err, apperrors.CodeInvalidOption, http.StatusBadRequest)
		repo.AssertNotCalled(t, "UpsertVote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("missing option is INVALID_OPTION", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("GetOptionByID", mock.Anything, testOptionID).Return(nil, nil)

		_, err := castVote(repo)

		assertAppError(t, err, apperrors.CodeInvalidOption, http.StatusBadRequest)
	})

	t.Run("re-vote changes option idempotently", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("GetOptionByID", mock.Anything, "opt-2").
			Return(&domain.PollOption{ID: "opt-2", PollID: testPollID, Text: "Rust"}, nil)
		// The store upsert resolves the existing (poll, user) row in place.
		repo.On("UpsertVote", mock.Anything, testPollID, "opt-2", testUserID).
			Return(&domain.Vote{ID: "v1", PollID: testPollID, OptionID: "opt-2", UserID: testUserID}, nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)

		svc := newTestService(repo)
		result, err := svc.CastVote(context.Background(), testPollID, "opt-2", testCredential)

		require.NoError(t, err)
		assert.Equal(t, "opt-2", result.UserVote)
	})

	t.Run("poll deleted mid-flight maps to POLL_NOT_FOUND", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("GetOptionByID", mock.Anything, testOptionID).
			Return(&domain.PollOption{ID: testOptionID, PollID: testPollID, Text: "Go"}, nil)
		repo.On("UpsertVote", mock.Anything, testPollID, testOptionID, testUserID).
			Return(nil, domain.ErrPollNotFound)

		_, err := castVote(repo)

		assertAppError(t, err, apperrors.CodePollNotFound, http.StatusNotFound)
	})
}

func TestRemoveVote(t *testing.T) {
	t.Run("removes vote and returns refreshed stats", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("DeleteVote", mock.Anything, testPollID, testUserID).Return(nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 2, nil)

		svc := newTestService(repo)
		result, err := svc.RemoveVote(context.Background(), testPollID, testCredential)

		require.NoError(t, err)
		assert.Equal(t, 2, result.TotalVotes)
		assert.Empty(t, result.UserVote)
	})

	t.Run("anonymous caller is rejected", func(t *testing.T) {
		repo := new(MockPollRepository)

		svc := newTestService(repo)
		_, err := svc.RemoveVote(context.Background(), testPollID, "")

		assertAppError(t, err, apperrors.CodeAuthentication, http.StatusUnauthorized)
		repo.AssertNotCalled(t, "DeleteVote", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure maps to DELETE_ERROR", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("DeleteVote", mock.Anything, testPollID, testUserID).Return(errors.New("timeout"))

		svc := newTestService(repo)
		_, err := svc.RemoveVote(context.Background(), testPollID, testCredential)

		assertAppError(t, err, apperrors.CodeDeleteError, http.StatusInternalServerError)
	})
}

func TestGetPoll_ExpiredVisibility(t *testing.T) {
	past := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	expired := pollAggregates()
	expired.ExpiresAt = &past

	t.Run("hidden from anonymous viewers", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(expired, nil)

		svc := newTestService(repo)
		_, err := svc.GetPoll(context.Background(), testPollID, "")

		assertAppError(t, err, apperrors.CodePollNotFound, http.StatusNotFound)
	})

	t.Run("still readable for authenticated users", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(expired, nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)
		repo.On("GetVoteByUserAndPoll", mock.Anything, testUserID, testPollID).Return(nil, nil)

		svc := newTestService(repo)
		detail, err := svc.GetPoll(context.Background(), testPollID, testCredential)

		require.NoError(t, err)
		assert.Equal(t, 3, detail.TotalVotes)
	})
}

func newCachedTestService(t *testing.T, repo *MockPollRepository) *PollService {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)

	gateway := &stubAuthGateway{
		credential: testCredential,
		user:       &domain.User{ID: testUserID, DisplayName: "Test User"},
	}
	svc := NewPollService(repo, gateway, client, zap.NewNop())
	svc.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestGetPoll_AnonymousDetailCached(t *testing.T) {
	t.Run("repeat anonymous reads hit the cache", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(pollAggregates(), nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)

		svc := newCachedTestService(t, repo)

		first, err := svc.GetPoll(context.Background(), testPollID, "")
		require.NoError(t, err)

		second, err := svc.GetPoll(context.Background(), testPollID, "")
		require.NoError(t, err)
		assert.Equal(t, first.TotalVotes, second.TotalVotes)
		assert.Len(t, second.Options, 2)
		assert.False(t, second.UserHasVoted)

		repo.AssertNumberOfCalls(t, "GetPollWithAggregates", 1)
	})

	t.Run("credentialed reads bypass the cached view", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollWithAggregates", mock.Anything, testPollID).Return(pollAggregates(), nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)
		repo.On("GetVoteByUserAndPoll", mock.Anything, testUserID, testPollID).
			Return(&domain.Vote{ID: "v1", PollID: testPollID, OptionID: testOptionID, UserID: testUserID}, nil)

		svc := newCachedTestService(t, repo)

		_, err := svc.GetPoll(context.Background(), testPollID, "")
		require.NoError(t, err)

		detail, err := svc.GetPoll(context.Background(), testPollID, testCredential)
		require.NoError(t, err)
		assert.True(t, detail.UserHasVoted)
		assert.Equal(t, testOptionID, detail.UserVote)

		repo.AssertNumberOfCalls(t, "GetPollWithAggregates", 2)
	})
}

func TestCastVote_DuplicateSubmission(t *testing.T) {
	t.Run("rapid identical resubmit is served from cached stats", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("GetOptionByID", mock.Anything, testOptionID).
			Return(&domain.PollOption{ID: testOptionID, PollID: testPollID, Text: "Go"}, nil)
		repo.On("UpsertVote", mock.Anything, testPollID, testOptionID, testUserID).
			Return(&domain.Vote{ID: "v1", PollID: testPollID, OptionID: testOptionID, UserID: testUserID}, nil)
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)

		svc := newCachedTestService(t, repo)

		first, err := svc.CastVote(context.Background(), testPollID, testOptionID, testCredential)
		require.NoError(t, err)
		assert.Equal(t, testOptionID, first.UserVote)

		second, err := svc.CastVote(context.Background(), testPollID, testOptionID, testCredential)
		require.NoError(t, err)
		assert.Equal(t, testOptionID, second.UserVote)
		assert.Equal(t, first.TotalVotes, second.TotalVotes)

		repo.AssertNumberOfCalls(t, "UpsertVote", 1)
		repo.AssertNumberOfCalls(t, "GetOptionsWithStats", 1)
	})

	t.Run("failed upsert releases the lock so a retry reaches the store", func(t *testing.T) {
		repo := new(MockPollRepository)
		repo.On("GetPollByID", mock.Anything, testPollID).Return(activePoll(), nil)
		repo.On("GetOptionByID", mock.Anything, testOptionID).
			Return(&domain.PollOption{ID: testOptionID, PollID: testPollID, Text: "Go"}, nil)
		repo.On("UpsertVote", mock.Anything, testPollID, testOptionID, testUserID).
			Return(nil, errors.New("connection reset")).Once()
		repo.On("UpsertVote", mock.Anything, testPollID, testOptionID, testUserID).
			Return(&domain.Vote{ID: "v1", PollID: testPollID, OptionID: testOptionID, UserID: testUserID}, nil).Once()
		repo.On("GetOptionsWithStats", mock.Anything, testPollID).Return(optionStats(), 3, nil)

		svc := newCachedTestService(t, repo)

		_, err := svc.CastVote(context.Background(), testPollID, testOptionID, testCredential)
		assertAppError(t, err, apperrors.CodeVoteError, http.StatusInternalServerError)

		result, err := svc.CastVote(context.Background(), testPollID, testOptionID, testCredential)
		require.NoError(t, err)
		assert.Equal(t, testOptionID, result.UserVote)

		repo.AssertNumberOfCalls(t, "UpsertVote", 2)
	})
}
