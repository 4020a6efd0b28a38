package audience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trybemarket/bulkmail/internal/models"
)

// memIndexStore keeps the index document in memory for tests.
type memIndexStore struct {
	idx   *models.AudienceIndex
	saves int
}

func (m *memIndexStore) Load(_ context.Context) (*models.AudienceIndex, error) {
	if m.idx == nil {
		return nil, ErrIndexMissing
	}
	return m.idx, nil
}

func (m *memIndexStore) Save(_ context.Context, idx *models.AudienceIndex) error {
	m.idx = idx
	m.saves++
	return nil
}

func TestResolveExplicitList(t *testing.T) {
	r := NewResolver(&memIndexStore{})

	got, err := r.Resolve(context.Background(), models.TargetSelected, []models.Recipient{
		{Email: "a@x.com", FullName: "Ada"},
		{Email: "A@X.com", FullName: "Ada Again"},
		{Email: "  ", FullName: "No Email"},
		{Email: "b@x.com", FullName: "Bob"},
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "a@x.com", got[0].Email)
	assert.Equal(t, "b@x.com", got[1].Email)
}

func TestResolveAllUsersFromIndex(t *testing.T) {
	idx := &memIndexStore{idx: &models.AudienceIndex{
		Entries: []models.IndexEntry{
			{Value: "a@x.com", Label: "a@x.com (Ada Lovelace)"},
			{Value: "b@x.com", Label: "b@x.com"},
			{Value: "", Label: ""},
		},
		TotalCount: 3,
	}}
	r := NewResolver(idx)

	got, err := r.Resolve(context.Background(), models.TargetAllUsers, nil)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "a@x.com", got[0].Email)
	assert.Equal(t, "Ada Lovelace", got[0].FullName)
	assert.Equal(t, "b@x.com", got[1].Email)
	assert.Equal(t, "", got[1].FullName)
}

func TestResolveAllUsersWithoutIndex(t *testing.T) {
	r := NewResolver(&memIndexStore{})

	_, err := r.Resolve(context.Background(), models.TargetAllUsers, nil)
	assert.ErrorIs(t, err, ErrIndexMissing)
}

func TestResolveEmptyResult(t *testing.T) {
	r := NewResolver(&memIndexStore{})

	_, err := r.Resolve(context.Background(), models.TargetSelected, nil)
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = r.Resolve(context.Background(), models.TargetSelected, []models.Recipient{{Email: " "}})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestResolveIgnoresIndexTimestamp(t *testing.T) {
	idx := &memIndexStore{idx: &models.AudienceIndex{
		Entries:     []models.IndexEntry{{Value: "a@x.com", Label: "a@x.com"}},
		LastUpdated: time.Now().Add(-24 * time.Hour),
		TotalCount:  1,
	}}
	r := NewResolver(idx)

	// A stale index still resolves; freshness is the sync operation's job.
	got, err := r.Resolve(context.Background(), models.TargetAllUsers, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
