package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"pollhub/internal/domain"
)

// Field limits matching the database schema.
const (
	MinTitleLen       = 3
	MaxTitleLen       = 200
	MaxDescriptionLen = 1000
	MinOptionCount    = 2
	MaxOptionCount    = 10
	MaxOptionLen      = 100
	MaxExpiryWindow   = 365 * 24 * time.Hour
)

// idRe matches identifiers safe to interpolate from path segments:
// letters, digits, hyphen, underscore.
var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FieldError is a single field-scoped violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Title checks a poll title: required, 3-200 characters after trimming.
func Title(title string) []FieldError {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return []FieldError{{Field: "title", Message: "title is required"}}
	}
	if utf8.RuneCountInString(trimmed) < MinTitleLen {
		return []FieldError{{Field: "title", Message: fmt.Sprintf("title must be at least %d characters", MinTitleLen)}}
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleLen {
		return []FieldError{{Field: "title", Message: fmt.Sprintf("title must be at most %d characters", MaxTitleLen)}}
	}
	return nil
}

// Description checks an optional poll description.
func Description(description string) []FieldError {
	if utf8.RuneCountInString(strings.TrimSpace(description)) > MaxDescriptionLen {
		return []FieldError{{Field: "description", Message: fmt.Sprintf("description must be at most %d characters", MaxDescriptionLen)}}
	}
	return nil
}

// Options checks a full option list: 2-10 entries after trimming, each
// non-empty and at most 100 characters, no case-insensitive duplicates.
func Options(options []string) []FieldError {
	var errs []FieldError

	trimmed := make([]string, 0, len(options))
	for _, opt := range options {
		if t := strings.TrimSpace(opt); t != "" {
			trimmed = append(trimmed, t)
		}
	}

	if len(trimmed) < MinOptionCount {
		errs = append(errs, FieldError{Field: "options", Message: fmt.Sprintf("at least %d options are required", MinOptionCount)})
	}
	if len(trimmed) > MaxOptionCount {
		errs = append(errs, FieldError{Field: "options", Message: fmt.Sprintf("at most %d options are allowed", MaxOptionCount)})
	}

	seen := make(map[string]bool, len(trimmed))
	for i, opt := range trimmed {
		if utf8.RuneCountInString(opt) > MaxOptionLen {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("options[%d]", i),
				Message: fmt.Sprintf("option must be at most %d characters", MaxOptionLen),
			})
		}
		folded := strings.ToLower(opt)
		if seen[folded] {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("options[%d]", i),
				Message: "duplicate option",
			})
		}
		seen[folded] = true
	}

	return errs
}

// Expiry checks an optional expiry timestamp against the given reference
// instant: strictly in the future and no more than one year out.
func Expiry(expiresAt *time.Time, now time.Time) []FieldError {
	if expiresAt == nil {
		return nil
	}
	if !expiresAt.After(now) {
		return []FieldError{{Field: "expires_at", Message: "expiry must be in the future"}}
	}
	if expiresAt.After(now.Add(MaxExpiryWindow)) {
		return []FieldError{{Field: "expires_at", Message: "expiry must be within one year"}}
	}
	return nil
}

// ID checks a path-derived identifier against a restricted character class.
func ID(field, id string) []FieldError {
	if strings.TrimSpace(id) == "" {
		return []FieldError{{Field: field, Message: field + " is required"}}
	}
	if !idRe.MatchString(id) {
		return []FieldError{{Field: field, Message: field + " contains invalid characters"}}
	}
	return nil
}

// CreatePoll aggregates all field violations for a create request so the
// caller can report every problem in one response.
func CreatePoll(req *domain.CreatePollRequest, now time.Time) []FieldError {
	var errs []FieldError
	errs = append(errs, Title(req.Title)...)
	errs = append(errs, Description(req.Description)...)
	errs = append(errs, Options(req.Options)...)
	errs = append(errs, Expiry(req.ExpiresAt, now)...)
	return errs
}

// UpdatePoll aggregates all field violations for an update request. Nil
// fields are skipped; a supplied option list is validated like a create.
func UpdatePoll(req *domain.UpdatePollRequest, now time.Time) []FieldError {
	var errs []FieldError
	if req.Title != nil {
		errs = append(errs, Title(*req.Title)...)
	}
	if req.Description != nil {
		errs = append(errs, Description(*req.Description)...)
	}
	if req.Options != nil {
		texts := make([]string, len(req.Options))
		for i, opt := range req.Options {
			texts[i] = opt.Text
		}
		errs = append(errs, Options(texts)...)
		for i, opt := range req.Options {
			if opt.ID != "" {
				errs = append(errs, ID(fmt.Sprintf("options[%d].id", i), opt.ID)...)
			}
		}
	}
	errs = append(errs, Expiry(req.ExpiresAt, now)...)
	return errs
}

// Fields converts violations into the details map attached to a
// VALIDATION_ERROR response.
func Fields(errs []FieldError) map[string]interface{} {
	if len(errs) == 0 {
		return nil
	}
	return map[string]interface{}{"fields": errs}
}
