package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Record is one row of the append-only event_log table.
type Record struct {
	Seq       int64  `json:"seq"`
	SiteID    string `json:"site_id"`
	Type      string `json:"type"`
	Key       string `json:"key"`
	DataJSON  string `json:"data"`
	CreatedAt int64  `json:"created_at"`
}

// EventLog appends events to event_log so downstream consumers can tail by seq.
type EventLog struct {
	db     *sql.DB
	siteID string
}

func NewEventLog(db *sql.DB, siteID string) *EventLog {
	if siteID == "" {
		siteID = "local"
	}
	return &EventLog{db: db, siteID: siteID}
}

func (l *EventLog) Notify(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return errors.Wrap(err, "marshal event data")
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		l.siteID, e.Type, e.Key, string(data), at.Unix())
	return errors.Wrap(err, "append event")
}

// Since returns up to limit records with seq > after, oldest first.
func (l *EventLog) Since(ctx context.Context, after int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log
		 WHERE seq > $1 ORDER BY seq LIMIT $2`, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query event_log")
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Seq, &r.SiteID, &r.Type, &r.Key, &r.DataJSON, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate event_log")
}
