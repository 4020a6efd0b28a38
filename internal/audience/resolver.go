package audience

import (
	"context"
	"strings"

	"github.com/trybemarket/bulkmail/internal/models"
)

// Resolver turns an audience selector into a concrete recipient list.
type Resolver struct {
	Index IndexStore
}

func NewResolver(index IndexStore) *Resolver {
	return &Resolver{Index: index}
}

// Resolve returns the recipients for a send request. For the "all users"
// selector it reads the cached index rather than scanning the user table;
// a full scan on every send would be O(total users). Explicit lists are
// deduplicated by email and entries without a usable email are dropped.
func (r *Resolver) Resolve(ctx context.Context, target string, explicit []models.Recipient) ([]models.Recipient, error) {
	var recipients []models.Recipient

	switch target {
	case models.TargetAllUsers:
		idx, err := r.Index.Load(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range idx.Entries {
			email, name := splitLabel(e)
			if email == "" {
				continue
			}
			recipients = append(recipients, models.Recipient{Email: email, FullName: name})
		}
	default:
		recipients = explicit
	}

	recipients = dedupe(recipients)
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	return recipients, nil
}

// splitLabel recovers email and full name from an index entry. Labels are
// formatted "email (Full Name)" or just the bare email.
func splitLabel(e models.IndexEntry) (string, string) {
	email := strings.TrimSpace(e.Value)

	label := strings.TrimSpace(e.Label)
	if open := strings.Index(label, " ("); open >= 0 && strings.HasSuffix(label, ")") {
		return email, label[open+2 : len(label)-1]
	}

	return email, ""
}

func dedupe(in []models.Recipient) []models.Recipient {
	seen := make(map[string]bool, len(in))
	out := make([]models.Recipient, 0, len(in))

	for _, r := range in {
		email := strings.ToLower(strings.TrimSpace(r.Email))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		r.Email = email
		out = append(out, r)
	}

	return out
}
