package store

import (
	"database/sql"
	"fmt"

	"github.com/gateview/gateview/internal/model"
)

// InsertDisruption persists an event and returns its id.
func (r *Repo) InsertDisruption(ev *model.DisruptionEvent) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO disruption_events (
		timestamp, timestamp_unix, event_type, severity, description,
		before_state, after_state, duration_seconds, resolved, resolved_at
	) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		ev.Timestamp, ev.TimestampUnix, string(ev.EventType), string(ev.Severity),
		ev.Description, ev.BeforeState, ev.AfterState,
		ev.DurationSeconds, boolToInt(ev.Resolved), ev.ResolvedAt)
	if err != nil {
		return 0, fmt.Errorf("disruption insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("disruption insert id: %w", err)
	}
	ev.ID = id
	return id, nil
}

// ResolveDisruption marks an event resolved. Only the resolution fields (and
// optionally after_state) change.
func (r *Repo) ResolveDisruption(id int64, durationSeconds float64, resolvedAt string, afterState string) error {
	var (
		res sql.Result
		err error
	)
	if afterState != "" {
		res, err = r.db.Exec(`UPDATE disruption_events
			SET resolved = 1, duration_seconds = ?, resolved_at = ?, after_state = ?
			WHERE id = ?`, durationSeconds, resolvedAt, afterState, id)
	} else {
		res, err = r.db.Exec(`UPDATE disruption_events
			SET resolved = 1, duration_seconds = ?, resolved_at = ?
			WHERE id = ?`, durationSeconds, resolvedAt, id)
	}
	if err != nil {
		return fmt.Errorf("disruption resolve: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("disruption resolve rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("disruption resolve: id %d not found", id)
	}
	return nil
}

// QueryDisruptions returns events within the last hours, newest first.
func (r *Repo) QueryDisruptions(hours int) ([]model.DisruptionEvent, error) {
	if hours <= 0 {
		hours = 24
	}
	rows, err := r.db.Query(`SELECT id, timestamp, timestamp_unix, event_type,
		severity, description, before_state, after_state,
		duration_seconds, resolved, resolved_at
		FROM disruption_events
		WHERE timestamp_unix >= unixepoch('now') - ?*3600.0
		ORDER BY timestamp_unix DESC`, hours)
	if err != nil {
		return nil, fmt.Errorf("disruption query: %w", err)
	}
	defer rows.Close()

	var out []model.DisruptionEvent
	for rows.Next() {
		var (
			ev         model.DisruptionEvent
			evType     string
			severity   string
			duration   sql.NullFloat64
			resolved   int
			resolvedAt sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.TimestampUnix, &evType,
			&severity, &ev.Description, &ev.BeforeState, &ev.AfterState,
			&duration, &resolved, &resolvedAt); err != nil {
			return nil, fmt.Errorf("disruption scan: %w", err)
		}
		ev.EventType = model.EventType(evType)
		ev.Severity = model.Severity(severity)
		ev.DurationSeconds = nullFloat(duration)
		ev.Resolved = resolved != 0
		ev.ResolvedAt = nullString(resolvedAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DisruptionStats summarizes events in the last hours.
type DisruptionStats struct {
	Total              int            `json:"total"`
	ByType             map[string]int `json:"by_type"`
	BySeverity         map[string]int `json:"by_severity"`
	AvgDurationSeconds float64        `json:"avg_duration_seconds"`
	Unresolved         int            `json:"unresolved"`
}

// QueryDisruptionStats computes totals, per-type and per-severity counts,
// and the average duration of resolved events.
func (r *Repo) QueryDisruptionStats(hours int) (*DisruptionStats, error) {
	if hours <= 0 {
		hours = 24
	}
	stats := &DisruptionStats{
		ByType:     make(map[string]int),
		BySeverity: make(map[string]int),
	}

	rows, err := r.db.Query(`SELECT event_type, severity, duration_seconds, resolved
		FROM disruption_events
		WHERE timestamp_unix >= unixepoch('now') - ?*3600.0`, hours)
	if err != nil {
		return nil, fmt.Errorf("disruption stats query: %w", err)
	}
	defer rows.Close()

	var durationSum float64
	var durationCount int
	for rows.Next() {
		var (
			evType, severity string
			duration         sql.NullFloat64
			resolved         int
		)
		if err := rows.Scan(&evType, &severity, &duration, &resolved); err != nil {
			return nil, fmt.Errorf("disruption stats scan: %w", err)
		}
		stats.Total++
		stats.ByType[evType]++
		stats.BySeverity[severity]++
		if resolved == 0 {
			stats.Unresolved++
		}
		if duration.Valid {
			durationSum += duration.Float64
			durationCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if durationCount > 0 {
		stats.AvgDurationSeconds = durationSum / float64(durationCount)
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
