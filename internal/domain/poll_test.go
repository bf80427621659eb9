package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoll_IsEffectivelyActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name      string
		isActive  bool
		expiresAt *time.Time
		want      bool
	}{
		{name: "Active without expiry", isActive: true, want: true},
		{name: "Active with future expiry", isActive: true, expiresAt: &future, want: true},
		{name: "Active with past expiry", isActive: true, expiresAt: &past, want: false},
		{name: "Expiry exactly now is expired", isActive: true, expiresAt: &now, want: false},
		{name: "Inactive without expiry", isActive: false, want: false},
		{name: "Inactive with future expiry", isActive: false, expiresAt: &future, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Poll{IsActive: tt.isActive, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, p.IsEffectivelyActive(now))
		})
	}
}
