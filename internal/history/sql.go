package history

import (
	"context"
	"database/sql"
	"time"
)

// ScanEvents reads rows of (id, occurred_at, event, device, app, failures,
// detail) as produced by the SQL sinks.
func ScanEvents(rows *sql.Rows) ([]Event, error) {
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var (
			e      Event
			typ    string
			at     time.Time
			detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &typ, &e.Device, &e.App, &e.Failures, &detail); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		e.OccurredAt = at.UTC()
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// NullString maps "" to NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// QueryRecent runs q with limit and scans the result.
func QueryRecent(ctx context.Context, db *sql.DB, q string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	return ScanEvents(rows)
}
