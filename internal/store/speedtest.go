package store

import (
	"database/sql"
	"fmt"

	"github.com/gateview/gateview/internal/model"
)

// InsertSpeedtest persists one speedtest invocation and returns its id.
func (r *Repo) InsertSpeedtest(rec *model.SpeedtestResult) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO speedtest_results (
		timestamp, timestamp_unix, download_mbps, upload_mbps, ping_ms,
		jitter_ms, packet_loss_percent,
		server_name, server_location, server_host, server_id, client_ip, isp,
		tool, result_url, signal_snapshot, status, error_message,
		triggered_by, network_context, pre_test_latency_ms
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.Timestamp, rec.TimestampUnix, rec.DownloadMbps, rec.UploadMbps, rec.PingMs,
		rec.JitterMs, rec.PacketLossPercent,
		rec.ServerName, rec.ServerLocation, rec.ServerHost, rec.ServerID, rec.ClientIP, rec.ISP,
		rec.Tool, rec.ResultURL, rec.SignalSnapshot, string(rec.Status), rec.ErrorMessage,
		string(rec.TriggeredBy), string(rec.NetworkContext), rec.PreTestLatencyMs)
	if err != nil {
		return 0, fmt.Errorf("speedtest insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("speedtest insert id: %w", err)
	}
	rec.ID = id
	return id, nil
}

const speedtestColumns = `id, timestamp, timestamp_unix, download_mbps, upload_mbps,
	ping_ms, jitter_ms, packet_loss_percent,
	server_name, server_location, server_host, server_id, client_ip, isp,
	tool, result_url, signal_snapshot, status, error_message,
	triggered_by, network_context, pre_test_latency_ms`

// QuerySpeedtests returns the most recent results, newest first.
func (r *Repo) QuerySpeedtests(limit int) ([]model.SpeedtestResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`SELECT `+speedtestColumns+`
		FROM speedtest_results ORDER BY timestamp_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("speedtest query: %w", err)
	}
	defer rows.Close()
	return scanSpeedtestRows(rows)
}

// LatestSpeedtest returns the most recent result, or nil when none exists.
func (r *Repo) LatestSpeedtest() (*model.SpeedtestResult, error) {
	results, err := r.QuerySpeedtests(1)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

func scanSpeedtestRows(rows *sql.Rows) ([]model.SpeedtestResult, error) {
	var out []model.SpeedtestResult
	for rows.Next() {
		var (
			t                  model.SpeedtestResult
			jitter, loss, preL sql.NullFloat64
			status, triggered  string
			netCtx             string
		)
		if err := rows.Scan(
			&t.ID, &t.Timestamp, &t.TimestampUnix, &t.DownloadMbps, &t.UploadMbps,
			&t.PingMs, &jitter, &loss,
			&t.ServerName, &t.ServerLocation, &t.ServerHost, &t.ServerID, &t.ClientIP, &t.ISP,
			&t.Tool, &t.ResultURL, &t.SignalSnapshot, &status, &t.ErrorMessage,
			&triggered, &netCtx, &preL,
		); err != nil {
			return nil, fmt.Errorf("speedtest scan: %w", err)
		}
		t.JitterMs = nullFloat(jitter)
		t.PacketLossPercent = nullFloat(loss)
		t.PreTestLatencyMs = nullFloat(preL)
		t.Status = model.SpeedtestStatus(status)
		t.TriggeredBy = model.TriggerSource(triggered)
		t.NetworkContext = model.NetworkContext(netCtx)
		out = append(out, t)
	}
	return out, rows.Err()
}
