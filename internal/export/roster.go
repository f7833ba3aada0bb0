package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gitcohort/gitcohort-go/internal/errors"
	"github.com/gitcohort/gitcohort-go/internal/models"
)

// ReadRoster parses the batch input: one username per row with an
// optional display name column. A leading header row is recognized and
// skipped. Display names are cosmetic and never used for API lookup.
func ReadRoster(r io.Reader) ([]models.RosterEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries []models.RosterEntry
	seen := make(map[string]bool)
	line := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read roster row %d: %w", line+1, err)
		}
		line++

		if len(record) == 0 {
			continue
		}
		username := strings.TrimSpace(record[0])
		if username == "" {
			continue
		}
		if line == 1 && strings.EqualFold(username, "username") {
			continue
		}

		displayName := ""
		if len(record) > 1 {
			displayName = strings.TrimSpace(record[1])
		}

		lower := strings.ToLower(username)
		if seen[lower] {
			continue
		}
		seen[lower] = true

		entries = append(entries, models.RosterEntry{
			Username:    username,
			DisplayName: displayName,
		})
	}

	if len(entries) == 0 {
		return nil, errors.ValidationErrorf("roster contains no usernames")
	}
	return entries, nil
}

// ReadRosterFile opens and parses a roster CSV from disk.
func ReadRosterFile(path string) ([]models.RosterEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster %s: %w", path, err)
	}
	defer f.Close()
	return ReadRoster(f)
}

// ParseUsernameList parses a comma-separated username list, the manual
// alternative to a roster file.
func ParseUsernameList(raw string) []models.RosterEntry {
	var entries []models.RosterEntry
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		username := strings.TrimSpace(part)
		if username == "" {
			continue
		}
		lower := strings.ToLower(username)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		entries = append(entries, models.RosterEntry{Username: username})
	}
	return entries
}
