package repository

import (
	"context"
	"fmt"
	"math"
	"strings"

	"pollhub/internal/domain"
	"pollhub/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRep      = "22P02"
)

type PgPollRepository struct {
	db *database.PostgresDB
}

func NewPollRepository(db *database.PostgresDB) *PgPollRepository {
	return &PgPollRepository{db: db}
}

// CreatePoll inserts a poll row. A zero ID is generated here so callers can
// pass a pre-built domain object.
func (r *PgPollRepository) CreatePoll(ctx context.Context, poll *domain.Poll) error {
	if poll.ID == "" {
		poll.ID = uuid.NewString()
	}

	query := `
		INSERT INTO polls (id, title, description, is_active, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		poll.ID,
		poll.Title,
		poll.Description,
		poll.IsActive,
		poll.ExpiresAt,
		poll.CreatedBy,
	).Scan(&poll.CreatedAt, &poll.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create poll: %w", err)
	}

	return nil
}

// CreateOptions inserts the full option set for a new poll.
func (r *PgPollRepository) CreateOptions(ctx context.Context, pollID string, options []domain.PollOption) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range options {
		opt := &options[i]
		if opt.ID == "" {
			opt.ID = uuid.NewString()
		}
		opt.PollID = pollID

		err := tx.QueryRow(ctx, `
			INSERT INTO poll_options (id, poll_id, text, display_order)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`, opt.ID, pollID, opt.Text, opt.DisplayOrder).Scan(&opt.CreatedAt, &opt.UpdatedAt)

		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateOption
			}
			return fmt.Errorf("failed to create option: %w", err)
		}
	}

	// The option text constraint is deferred; a duplicate surfaces here.
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOption
		}
		return fmt.Errorf("failed to commit options: %w", err)
	}
	return nil
}

// GetPollByID gets a poll by ID
func (r *PgPollRepository) GetPollByID(ctx context.Context, id string) (*domain.Poll, error) {
	var poll domain.Poll
	query := `
		SELECT id, title, description, is_active, expires_at, created_by, created_at, updated_at
		FROM polls
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&poll.ID,
		&poll.Title,
		&poll.Description,
		&poll.IsActive,
		&poll.ExpiresAt,
		&poll.CreatedBy,
		&poll.CreatedAt,
		&poll.UpdatedAt,
	)

	if err == pgx.ErrNoRows || isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}

	return &poll, nil
}

// GetPollWithAggregates gets a poll with its total vote count and creator name
func (r *PgPollRepository) GetPollWithAggregates(ctx context.Context, id string) (*domain.PollWithAggregates, error) {
	var p domain.PollWithAggregates
	query := `
		SELECT p.id, p.title, p.description, p.is_active, p.expires_at,
		       p.created_by, p.created_at, p.updated_at,
		       pr.display_name,
		       COUNT(v.id) AS total_votes
		FROM polls p
		JOIN profiles pr ON pr.id = p.created_by
		LEFT JOIN votes v ON v.poll_id = p.id
		WHERE p.id = $1
		GROUP BY p.id, pr.display_name
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.IsActive,
		&p.ExpiresAt,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.CreatorName,
		&p.TotalVotes,
	)

	if err == pgx.ErrNoRows || isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll with aggregates: %w", err)
	}

	return &p, nil
}

// ListActivePolls lists effectively active polls with aggregates, newest first
func (r *PgPollRepository) ListActivePolls(ctx context.Context) ([]domain.PollWithAggregates, error) {
	query := `
		SELECT p.id, p.title, p.description, p.is_active, p.expires_at,
		       p.created_by, p.created_at, p.updated_at,
		       pr.display_name,
		       COUNT(v.id) AS total_votes
		FROM polls p
		JOIN profiles pr ON pr.id = p.created_by
		LEFT JOIN votes v ON v.poll_id = p.id
		WHERE p.is_active = true
		  AND (p.expires_at IS NULL OR p.expires_at > NOW())
		GROUP BY p.id, pr.display_name
		ORDER BY p.created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	defer rows.Close()

	var polls []domain.PollWithAggregates
	for rows.Next() {
		var p domain.PollWithAggregates
		err := rows.Scan(
			&p.ID,
			&p.Title,
			&p.Description,
			&p.IsActive,
			&p.ExpiresAt,
			&p.CreatedBy,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.CreatorName,
			&p.TotalVotes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, p)
	}

	return polls, rows.Err()
}

// UpdatePoll persists the mutable poll fields and touches updated_at
func (r *PgPollRepository) UpdatePoll(ctx context.Context, poll *domain.Poll) error {
	query := `
		UPDATE polls
		SET title = $2, description = $3, expires_at = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		poll.ID,
		poll.Title,
		poll.Description,
		poll.ExpiresAt,
		poll.IsActive,
	).Scan(&poll.UpdatedAt)

	if err == pgx.ErrNoRows {
		return domain.ErrPollNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update poll: %w", err)
	}

	return nil
}

// ReconcileOptions applies an option diff inside one transaction. Stored
// options absent from the supplied list are deleted only when their vote
// count is zero; otherwise the transaction rolls back.
func (r *PgPollRepository) ReconcileOptions(ctx context.Context, pollID string, options []domain.UpdateOption) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id FROM poll_options WHERE poll_id = $1 FOR UPDATE`, pollID)
	if err != nil {
		return fmt.Errorf("failed to lock options: %w", err)
	}
	existing := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan option id: %w", err)
		}
		existing[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read options: %w", err)
	}

	kept := make(map[string]bool, len(options))
	for i, opt := range options {
		text := strings.TrimSpace(opt.Text)
		if opt.ID == "" {
			id := uuid.NewString()
			_, err := tx.Exec(ctx, `
				INSERT INTO poll_options (id, poll_id, text, display_order)
				VALUES ($1, $2, $3, $4)
			`, id, pollID, text, i)
			if err != nil {
				if isUniqueViolation(err) {
					return domain.ErrDuplicateOption
				}
				return fmt.Errorf("failed to insert option: %w", err)
			}
			continue
		}

		if !existing[opt.ID] {
			return domain.ErrOptionNotFound
		}
		kept[opt.ID] = true

		_, err := tx.Exec(ctx, `
			UPDATE poll_options
			SET text = $3, display_order = $4, updated_at = NOW()
			WHERE id = $1 AND poll_id = $2
		`, opt.ID, pollID, text, i)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateOption
			}
			return fmt.Errorf("failed to update option: %w", err)
		}
	}

	for id := range existing {
		if kept[id] {
			continue
		}

		var voteCount int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM votes WHERE option_id = $1`, id).Scan(&voteCount); err != nil {
			return fmt.Errorf("failed to count option votes: %w", err)
		}
		if voteCount > 0 {
			return domain.ErrOptionHasVotes
		}

		if _, err := tx.Exec(ctx, `DELETE FROM poll_options WHERE id = $1 AND poll_id = $2`, id, pollID); err != nil {
			return fmt.Errorf("failed to delete option: %w", err)
		}
	}

	// The option text constraint is deferred, so a swap of two kept options'
	// texts passes the intermediate state and a genuine duplicate only
	// surfaces here.
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOption
		}
		return fmt.Errorf("failed to commit option changes: %w", err)
	}
	return nil
}

// SoftDeletePoll deactivates a poll, preserving its options and votes
func (r *PgPollRepository) SoftDeletePoll(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE polls SET is_active = false, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPollNotFound
	}
	return nil
}

// HardDeletePoll removes the poll row; the store cascades to options and votes
func (r *PgPollRepository) HardDeletePoll(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}
	return nil
}

// GetOptionByID gets an option by ID
func (r *PgPollRepository) GetOptionByID(ctx context.Context, id string) (*domain.PollOption, error) {
	var opt domain.PollOption
	query := `
		SELECT id, poll_id, text, display_order, created_at, updated_at
		FROM poll_options
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&opt.ID,
		&opt.PollID,
		&opt.Text,
		&opt.DisplayOrder,
		&opt.CreatedAt,
		&opt.UpdatedAt,
	)

	if err == pgx.ErrNoRows || isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get option: %w", err)
	}

	return &opt, nil
}

// GetOptionsWithStats gets every option of a poll with vote counts and
// percentages plus the poll total. Percentages are computed here so every
// read path reports the same rounding.
func (r *PgPollRepository) GetOptionsWithStats(ctx context.Context, pollID string) ([]domain.OptionWithStats, int, error) {
	query := `
		SELECT o.id, o.poll_id, o.text, o.display_order, o.created_at, o.updated_at,
		       COUNT(v.id) AS vote_count
		FROM poll_options o
		LEFT JOIN votes v ON v.option_id = o.id
		WHERE o.poll_id = $1
		GROUP BY o.id
		ORDER BY o.display_order ASC, o.created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, pollID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get option stats: %w", err)
	}
	defer rows.Close()

	var options []domain.OptionWithStats
	total := 0
	for rows.Next() {
		var o domain.OptionWithStats
		err := rows.Scan(
			&o.ID,
			&o.PollID,
			&o.Text,
			&o.DisplayOrder,
			&o.CreatedAt,
			&o.UpdatedAt,
			&o.VoteCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan option stats: %w", err)
		}
		total += o.VoteCount
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read option stats: %w", err)
	}

	for i := range options {
		options[i].Percentage = Percentage(options[i].VoteCount, total)
	}

	return options, total, nil
}

// UpsertVote casts or re-casts a vote in a single atomic statement: the
// unique (poll_id, user_id) constraint turns a second cast into an option
// update instead of a duplicate row, closing the check-then-insert race.
func (r *PgPollRepository) UpsertVote(ctx context.Context, pollID, optionID, userID string) (*domain.Vote, error) {
	var vote domain.Vote
	query := `
		INSERT INTO votes (id, poll_id, option_id, user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (poll_id, user_id) DO UPDATE SET option_id = EXCLUDED.option_id, updated_at = NOW()
		RETURNING id, poll_id, option_id, user_id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query, uuid.NewString(), pollID, optionID, userID).Scan(
		&vote.ID,
		&vote.PollID,
		&vote.OptionID,
		&vote.UserID,
		&vote.CreatedAt,
	)

	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == pgForeignKeyViolation {
			// Poll or option deleted between the activity check and the
			// insert. Report which reference broke.
			if strings.Contains(pgErr.ConstraintName, "option") {
				return nil, domain.ErrOptionNotFound
			}
			return nil, domain.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to upsert vote: %w", err)
	}

	return &vote, nil
}

// GetVoteByUserAndPoll gets a user's vote on a poll
func (r *PgPollRepository) GetVoteByUserAndPoll(ctx context.Context, userID, pollID string) (*domain.Vote, error) {
	var vote domain.Vote
	query := `
		SELECT id, poll_id, option_id, user_id, created_at
		FROM votes
		WHERE user_id = $1 AND poll_id = $2
	`

	err := r.db.Pool.QueryRow(ctx, query, userID, pollID).Scan(
		&vote.ID,
		&vote.PollID,
		&vote.OptionID,
		&vote.UserID,
		&vote.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vote: %w", err)
	}

	return &vote, nil
}

// DeleteVote removes a user's vote on a poll; removing a missing vote is a no-op
func (r *PgPollRepository) DeleteVote(ctx context.Context, pollID, userID string) error {
	if _, err := r.db.Pool.Exec(ctx, `
		DELETE FROM votes WHERE poll_id = $1 AND user_id = $2
	`, pollID, userID); err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

// Percentage returns an option's share of the poll total rounded to one
// decimal place, 0 when the poll has no votes.
func Percentage(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*1000) / 10
}

func isUniqueViolation(err error) bool {
	pgErr, ok := err.(*pgconn.PgError)
	return ok && pgErr.Code == pgUniqueViolation
}

// isInvalidUUID reports a 22P02 invalid_text_representation failure, raised
// when a well-formed but non-UUID identifier is bound to a uuid column.
// Lookups treat it as no rows: such an identifier can never match.
func isInvalidUUID(err error) bool {
	pgErr, ok := err.(*pgconn.PgError)
	return ok && pgErr.Code == pgInvalidTextRep
}

// interface conformance check
var _ PollRepository = (*PgPollRepository)(nil)
