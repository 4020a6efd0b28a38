package audience

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trybemarket/bulkmail/internal/models"
)

// UserSource pages through the source-of-truth user table ordered by email.
type UserSource interface {
	ListUsers(ctx context.Context, afterEmail string, limit int) ([]models.User, error)
}

// Syncer rebuilds the cached audience index from the user table. This is an
// explicit maintenance operation, not part of the send path.
type Syncer struct {
	Users    UserSource
	Index    IndexStore
	PageSize int
	Log      *zap.Logger
}

func NewSyncer(users UserSource, index IndexStore, pageSize int, log *zap.Logger) *Syncer {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Syncer{Users: users, Index: index, PageSize: pageSize, Log: log}
}

// RebuildIndex scans the full user table once and overwrites the index
// document wholesale. Users without a resolvable email are skipped.
// Idempotent: two runs with no underlying user changes produce the same
// entries.
func (s *Syncer) RebuildIndex(ctx context.Context) (int, error) {
	entries := make([]models.IndexEntry, 0)

	cursor := ""
	for {
		users, err := s.Users.ListUsers(ctx, cursor, s.PageSize)
		if err != nil {
			return 0, fmt.Errorf("list users: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for _, u := range users {
			email := strings.TrimSpace(u.Email)
			if email == "" {
				continue
			}

			label := email
			if u.FullName != "" {
				label = fmt.Sprintf("%s (%s)", email, u.FullName)
			}

			entries = append(entries, models.IndexEntry{Value: email, Label: label})
		}

		cursor = users[len(users)-1].Email
		if len(users) < s.PageSize {
			break
		}
	}

	idx := &models.AudienceIndex{
		Entries:     entries,
		LastUpdated: time.Now().UTC(),
		TotalCount:  len(entries),
	}

	if err := s.Index.Save(ctx, idx); err != nil {
		return 0, err
	}

	s.Log.Info("audience index rebuilt", zap.Int("count", len(entries)))

	return len(entries), nil
}
