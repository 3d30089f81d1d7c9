package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
)

// entryDecoder converts the raw entry_date column into a time.Time.
type entryDecoder func(raw interface{}) (time.Time, error)

// scanEntries reads id, user_id, entry_date, content rows.
func scanEntries(rows *sql.Rows, decode entryDecoder) ([]models.JournalEntry, error) {
	var entries []models.JournalEntry
	for rows.Next() {
		var (
			e   models.JournalEntry
			raw interface{}
		)
		if err := rows.Scan(&e.ID, &e.UserID, &raw, &e.Content); err != nil {
			return nil, fmt.Errorf("scan entry row failed: %w", err)
		}
		date, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode entry date failed: %w", err)
		}
		e.Date = date
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows failed: %w", err)
	}
	return entries, nil
}

// decodeUnixMicro decodes SQLite's integer microsecond timestamps.
func decodeUnixMicro(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case int64:
		return time.UnixMicro(v).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected entry_date type %T", raw)
	}
}

// decodeTimestamp decodes PostgreSQL TIMESTAMPTZ values.
func decodeTimestamp(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected entry_date type %T", raw)
	}
}
