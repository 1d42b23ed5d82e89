package store

import (
	"database/sql"
	"fmt"

	"github.com/gateview/gateview/internal/model"
)

// InsertNetworkQuality persists one probe result and returns its id.
func (r *Repo) InsertNetworkQuality(rec *model.NetworkQualityResult) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO network_quality_results (
		timestamp, timestamp_unix, target_host, target_name,
		ping_ms, jitter_ms, packet_loss_percent, status, error_message
	) VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.Timestamp, rec.TimestampUnix, rec.TargetHost, rec.TargetName,
		rec.PingMs, rec.JitterMs, rec.PacketLossPercent,
		string(rec.Status), rec.ErrorMessage)
	if err != nil {
		return 0, fmt.Errorf("quality insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("quality insert id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// QueryNetworkQuality returns probe rows within the last hours, newest first.
func (r *Repo) QueryNetworkQuality(hours int) ([]model.NetworkQualityResult, error) {
	if hours <= 0 {
		hours = 24
	}
	rows, err := r.db.Query(`SELECT id, timestamp, timestamp_unix, target_host,
		target_name, ping_ms, jitter_ms, packet_loss_percent, status, error_message
		FROM network_quality_results
		WHERE timestamp_unix >= unixepoch('now') - ?*3600.0
		ORDER BY timestamp_unix DESC`, hours)
	if err != nil {
		return nil, fmt.Errorf("quality query: %w", err)
	}
	defer rows.Close()

	var out []model.NetworkQualityResult
	for rows.Next() {
		var (
			q      model.NetworkQualityResult
			ping   sql.NullFloat64
			status string
		)
		if err := rows.Scan(&q.ID, &q.Timestamp, &q.TimestampUnix, &q.TargetHost,
			&q.TargetName, &ping, &q.JitterMs, &q.PacketLossPercent,
			&status, &q.ErrorMessage); err != nil {
			return nil, fmt.Errorf("quality scan: %w", err)
		}
		q.PingMs = nullFloat(ping)
		q.Status = model.QualityStatus(status)
		out = append(out, q)
	}
	return out, rows.Err()
}
