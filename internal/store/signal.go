package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"

	"github.com/gateview/gateview/internal/model"
)

const signalColumns = `id, timestamp, timestamp_unix,
	nr_sinr, nr_rsrp, nr_rsrq, nr_rssi, nr_bands, nr_gnb_id, nr_cid,
	lte_sinr, lte_rsrp, lte_rsrq, lte_rssi, lte_bands, lte_enb_id, lte_cid,
	registration_status, device_uptime`

// InsertSignalHistory bulk-inserts samples in a single transaction and
// returns the number of rows written. ctx bounds the whole transaction.
func (r *Repo) InsertSignalHistory(ctx context.Context, records []model.SignalSample) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("signal insert begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO signal_history (
		timestamp, timestamp_unix,
		nr_sinr, nr_rsrp, nr_rsrq, nr_rssi, nr_bands, nr_gnb_id, nr_cid,
		lte_sinr, lte_rsrp, lte_rsrq, lte_rssi, lte_bands, lte_enb_id, lte_cid,
		registration_status, device_uptime
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("signal insert prepare: %w", err)
	}
	defer stmt.Close()

	count := 0
	for i := range records {
		s := &records[i]
		if _, err := stmt.ExecContext(ctx,
			s.Timestamp, s.TimestampUnix,
			s.NRSINR, s.NRRSRP, s.NRRSRQ, s.NRRSSI, s.NRBands, s.NRGNBID, s.NRCID,
			s.LTESINR, s.LTERSRP, s.LTERSRQ, s.LTERSSI, s.LTEBands, s.LTEENBID, s.LTECID,
			s.RegistrationStatus, s.DeviceUptime,
		); err != nil {
			return 0, fmt.Errorf("signal insert row %d: %w", i, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("signal insert commit: %w", err)
	}
	return count, nil
}

// SignalHistoryParams selects a range and resolution for QuerySignalHistory.
type SignalHistoryParams struct {
	DurationMinutes int
	// Resolution is "full", "auto", or a bucket size in seconds as a
	// decimal string.
	Resolution string
}

// rawHistoryMaxMinutes is the range at or below which downsampling is always
// bypassed.
const rawHistoryMaxMinutes = 5

// resolveBucketSeconds maps params to a bucket size; 0 means raw rows.
func resolveBucketSeconds(p SignalHistoryParams) (int, error) {
	if p.Resolution == "full" || p.DurationMinutes <= rawHistoryMaxMinutes {
		return 0, nil
	}
	switch p.Resolution {
	case "", "auto":
		switch {
		case p.DurationMinutes <= 60:
			return 5, nil
		case p.DurationMinutes <= 6*60:
			return 30, nil
		case p.DurationMinutes <= 24*60:
			return 60, nil
		default:
			return 300, nil
		}
	default:
		n, err := strconv.Atoi(p.Resolution)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid resolution %q", p.Resolution)
		}
		return n, nil
	}
}

// QuerySignalHistory returns samples within the range, ascending by
// timestamp_unix, downsampled per the resolution policy. The second return
// value is the effective resolution ("full" or the bucket seconds).
func (r *Repo) QuerySignalHistory(p SignalHistoryParams, nowUnix float64) ([]model.SignalSample, string, error) {
	bucket, err := resolveBucketSeconds(p)
	if err != nil {
		return nil, "", err
	}
	since := nowUnix - float64(p.DurationMinutes)*60

	if bucket == 0 {
		rows, err := r.querySignalRaw(since)
		return rows, "full", err
	}

	resolution := strconv.Itoa(bucket)
	cacheKey := fmt.Sprintf("%d:%d:%d", p.DurationMinutes, bucket, int64(since))
	if cached, ok := r.historyCache.Get(cacheKey); ok {
		return cached, resolution, nil
	}

	samples, err := r.querySignalBucketed(since, bucket)
	if err != nil {
		return nil, "", err
	}
	r.historyCache.Set(cacheKey, samples)
	return samples, resolution, nil
}

func (r *Repo) querySignalRaw(since float64) ([]model.SignalSample, error) {
	rows, err := r.db.Query(`SELECT `+signalColumns+`
		FROM signal_history WHERE timestamp_unix >= ?
		ORDER BY timestamp_unix ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("signal history query: %w", err)
	}
	defer rows.Close()
	return scanSignalRows(rows)
}

// querySignalBucketed groups rows on floor(timestamp_unix/bucket). Numeric
// metrics average the non-null values in the bucket, categorical fields and
// tower ids take the in-bucket maximum, id and timestamp take the minimum,
// and timestamp_unix is the bucket's left edge.
func (r *Repo) querySignalBucketed(since float64, bucketSeconds int) ([]model.SignalSample, error) {
	rows, err := r.db.Query(`SELECT
		MIN(id), MIN(timestamp), CAST(timestamp_unix/? AS INTEGER)*? AS bucket_ts,
		AVG(nr_sinr), AVG(nr_rsrp), AVG(nr_rsrq), AVG(nr_rssi),
		MAX(nr_bands), MAX(nr_gnb_id), MAX(nr_cid),
		AVG(lte_sinr), AVG(lte_rsrp), AVG(lte_rsrq), AVG(lte_rssi),
		MAX(lte_bands), MAX(lte_enb_id), MAX(lte_cid),
		MAX(registration_status), AVG(device_uptime)
		FROM signal_history WHERE timestamp_unix >= ?
		GROUP BY CAST(timestamp_unix/? AS INTEGER)
		ORDER BY bucket_ts ASC`,
		bucketSeconds, bucketSeconds, since, bucketSeconds)
	if err != nil {
		return nil, fmt.Errorf("signal history bucketed query: %w", err)
	}
	defer rows.Close()

	var out []model.SignalSample
	for rows.Next() {
		var (
			s        model.SignalSample
			bucketTs int64
			nrSINR, nrRSRP, nrRSRQ, nrRSSI     sql.NullFloat64
			lteSINR, lteRSRP, lteRSRQ, lteRSSI sql.NullFloat64
			nrBands, lteBands, regStatus       sql.NullString
			nrGNB, nrCID, lteENB, lteCID       sql.NullInt64
			uptime                             sql.NullFloat64
		)
		if err := rows.Scan(
			&s.ID, &s.Timestamp, &bucketTs,
			&nrSINR, &nrRSRP, &nrRSRQ, &nrRSSI, &nrBands, &nrGNB, &nrCID,
			&lteSINR, &lteRSRP, &lteRSRQ, &lteRSSI, &lteBands, &lteENB, &lteCID,
			&regStatus, &uptime,
		); err != nil {
			return nil, fmt.Errorf("signal history bucketed scan: %w", err)
		}
		s.TimestampUnix = float64(bucketTs)
		s.NRSINR, s.NRRSRP, s.NRRSRQ, s.NRRSSI = nullFloat(nrSINR), nullFloat(nrRSRP), nullFloat(nrRSRQ), nullFloat(nrRSSI)
		s.LTESINR, s.LTERSRP, s.LTERSRQ, s.LTERSSI = nullFloat(lteSINR), nullFloat(lteRSRP), nullFloat(lteRSRQ), nullFloat(lteRSSI)
		s.NRBands, s.LTEBands = nullString(nrBands), nullString(lteBands)
		s.NRGNBID, s.NRCID, s.LTEENBID, s.LTECID = nullInt(nrGNB), nullInt(nrCID), nullInt(lteENB), nullInt(lteCID)
		if regStatus.Valid {
			s.RegistrationStatus = regStatus.String
		}
		if uptime.Valid {
			up := int64(math.Round(uptime.Float64))
			s.DeviceUptime = &up
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSignal returns the most recent sample, or nil when the table is
// empty.
func (r *Repo) LatestSignal() (*model.SignalSample, error) {
	rows, err := r.db.Query(`SELECT ` + signalColumns + `
		FROM signal_history ORDER BY timestamp_unix DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("latest signal query: %w", err)
	}
	defer rows.Close()

	samples, err := scanSignalRows(rows)
	if err != nil || len(samples) == 0 {
		return nil, err
	}
	return &samples[0], nil
}

func scanSignalRows(rows *sql.Rows) ([]model.SignalSample, error) {
	var out []model.SignalSample
	for rows.Next() {
		var (
			s model.SignalSample
			nrSINR, nrRSRP, nrRSRQ, nrRSSI     sql.NullFloat64
			lteSINR, lteRSRP, lteRSRQ, lteRSSI sql.NullFloat64
			nrBands, lteBands                  sql.NullString
			nrGNB, nrCID, lteENB, lteCID       sql.NullInt64
			uptime                             sql.NullInt64
		)
		if err := rows.Scan(
			&s.ID, &s.Timestamp, &s.TimestampUnix,
			&nrSINR, &nrRSRP, &nrRSRQ, &nrRSSI, &nrBands, &nrGNB, &nrCID,
			&lteSINR, &lteRSRP, &lteRSRQ, &lteRSSI, &lteBands, &lteENB, &lteCID,
			&s.RegistrationStatus, &uptime,
		); err != nil {
			return nil, fmt.Errorf("signal history scan: %w", err)
		}
		s.NRSINR, s.NRRSRP, s.NRRSRQ, s.NRRSSI = nullFloat(nrSINR), nullFloat(nrRSRP), nullFloat(nrRSRQ), nullFloat(nrRSSI)
		s.LTESINR, s.LTERSRP, s.LTERSRQ, s.LTERSSI = nullFloat(lteSINR), nullFloat(lteRSRP), nullFloat(lteRSRQ), nullFloat(lteRSSI)
		s.NRBands, s.LTEBands = nullString(nrBands), nullString(lteBands)
		s.NRGNBID, s.NRCID, s.LTEENBID, s.LTECID = nullInt(nrGNB), nullInt(nrCID), nullInt(lteENB), nullInt(lteCID)
		s.DeviceUptime = nullInt(uptime)
		out = append(out, s)
	}
	return out, rows.Err()
}

// TowerChange is one derived tower handoff record.
type TowerChange struct {
	Timestamp     string  `json:"timestamp"`
	TimestampUnix float64 `json:"timestamp_unix"`
	Radio         string  `json:"radio"` // "5g" or "4g"
	PrevGNBID     *int64  `json:"prev_gnb_id,omitempty"`
	NewGNBID      *int64  `json:"new_gnb_id,omitempty"`
	PrevENBID     *int64  `json:"prev_enb_id,omitempty"`
	NewENBID      *int64  `json:"new_enb_id,omitempty"`
}

// TowerHistory scans samples ascending and emits a change record whenever
// the 5G or LTE tower id differs from the previous observed value. Records
// are tagged "5g" when the 5G id changed, "4g" when only the LTE id changed;
// rows where neither id changed produce nothing.
func (r *Repo) TowerHistory(durationMinutes int, nowUnix float64) ([]TowerChange, error) {
	since := nowUnix - float64(durationMinutes)*60
	rows, err := r.db.Query(`SELECT timestamp, timestamp_unix, nr_gnb_id, lte_enb_id
		FROM signal_history WHERE timestamp_unix >= ?
		ORDER BY timestamp_unix ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("tower history query: %w", err)
	}
	defer rows.Close()

	// Track the last non-null id per radio so a gap of null samples does not
	// manufacture a handoff.
	var (
		out              []TowerChange
		lastGNB, lastENB *int64
	)
	for rows.Next() {
		var (
			ts     string
			tsUnix float64
			gnb    sql.NullInt64
			enb    sql.NullInt64
		)
		if err := rows.Scan(&ts, &tsUnix, &gnb, &enb); err != nil {
			return nil, fmt.Errorf("tower history scan: %w", err)
		}
		curGNB, curENB := nullInt(gnb), nullInt(enb)

		gnbChanged := curGNB != nil && lastGNB != nil && *curGNB != *lastGNB
		enbChanged := curENB != nil && lastENB != nil && *curENB != *lastENB
		if gnbChanged || enbChanged {
			radio := "4g"
			if gnbChanged {
				radio = "5g"
			}
			out = append(out, TowerChange{
				Timestamp:     ts,
				TimestampUnix: tsUnix,
				Radio:         radio,
				PrevGNBID:     lastGNB,
				NewGNBID:      curGNB,
				PrevENBID:     lastENB,
				NewENBID:      curENB,
			})
		}
		if curGNB != nil {
			lastGNB = curGNB
		}
		if curENB != nil {
			lastENB = curENB
		}
	}
	return out, rows.Err()
}
