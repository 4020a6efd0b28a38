package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const maxRetries = 3

func TestRecipientTerminal(t *testing.T) {
	tests := []struct {
		name     string
		r        Recipient
		terminal bool
		eligible bool
	}{
		{"fresh", Recipient{}, false, true},
		{"sent", Recipient{Sent: true}, true, false},
		{"mid retries", Recipient{Retries: 2}, false, true},
		{"exhausted", Recipient{Retries: 3}, true, false},
		{"over max", Recipient{Retries: 5}, true, false},
		{"sent with retries", Recipient{Sent: true, Retries: 2}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.r.Terminal(maxRetries))
			assert.Equal(t, tt.eligible, tt.r.Eligible(maxRetries))
		})
	}
}

func TestBatchTerminal(t *testing.T) {
	t.Run("all recipients terminal", func(t *testing.T) {
		b := &Batch{
			Status: BatchRetryPending,
			Recipients: []Recipient{
				{Sent: true},
				{Retries: 3},
			},
		}
		assert.True(t, b.Terminal(maxRetries))
	})

	t.Run("one recipient pending", func(t *testing.T) {
		b := &Batch{
			Status: BatchRetryPending,
			Recipients: []Recipient{
				{Sent: true},
				{Retries: 2},
			},
		}
		assert.False(t, b.Terminal(maxRetries))
	})

	t.Run("sent status never regresses", func(t *testing.T) {
		b := &Batch{
			Status:     BatchSent,
			Recipients: []Recipient{{}},
		}
		assert.True(t, b.Terminal(maxRetries))
	})

	t.Run("single recipient", func(t *testing.T) {
		b := &Batch{Status: BatchPending, Recipients: []Recipient{{Sent: true}}}
		assert.True(t, b.Terminal(maxRetries))
	})
}

func TestRecountTotals(t *testing.T) {
	b := &Batch{
		Recipients: []Recipient{
			{Sent: true},
			{Sent: true},
			{Retries: 3},
			{Retries: 1},
		},
	}

	b.RecountTotals(maxRetries)
	assert.Equal(t, 2, b.SentCount)
	assert.Equal(t, 1, b.FailedCount)

	// Recounting again must not double-count the exhausted recipient.
	b.RecountTotals(maxRetries)
	assert.Equal(t, 2, b.SentCount)
	assert.Equal(t, 1, b.FailedCount)

	assert.LessOrEqual(t, b.SentCount+b.FailedCount, len(b.Recipients))
}
