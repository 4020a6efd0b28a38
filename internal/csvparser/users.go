// Package csvparser reads admin-uploaded CSVs of marketplace users for
// seeding the source-of-truth user table.
package csvparser

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/trybemarket/bulkmail/internal/models"
)

// ParseUsers parses a CSV from an io.Reader. The CSV must contain a header
// row with an "Email" column (case-insensitive); a "FullName" or "Name"
// column is picked up when present. Rows without an email are skipped.
//
// maxRows limits how many data rows are parsed (excluding header).
func ParseUsers(r io.Reader, maxRows int) ([]models.User, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, errors.New("csv header row is empty")
	}

	emailIdx, nameIdx := -1, -1
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if strings.EqualFold(h, "email") {
			emailIdx = i
		}
		if strings.EqualFold(h, "fullname") || strings.EqualFold(h, "name") {
			nameIdx = i
		}
	}
	if emailIdx == -1 {
		return nil, errors.New("csv must contain an Email column")
	}

	if maxRows <= 0 {
		maxRows = 5000
	}

	users := make([]models.User, 0)
	for len(users) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, csv.ErrFieldCount) {
			// skip malformed row
			continue
		}
		if err != nil {
			return nil, err
		}

		email := strings.ToLower(strings.TrimSpace(record[emailIdx]))
		if email == "" {
			continue
		}

		fullName := ""
		if nameIdx >= 0 {
			fullName = strings.TrimSpace(record[nameIdx])
		}

		users = append(users, models.User{
			ID:       uuid.NewString(),
			Email:    email,
			FullName: fullName,
		})
	}

	if len(users) == 0 {
		return nil, errors.New("csv must contain at least one data row")
	}

	return users, nil
}
