package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Session is one run of the filter against a device.
type Session struct {
	ID         string          `json:"session_id"`
	Device     string          `json:"device"`
	StartedAt  time.Time       `json:"started_at"`
	EndedAt    *time.Time      `json:"ended_at,omitempty"`
	ParamsJSON json.RawMessage `json:"params"`
	Reports    int             `json:"reports"`
}

// Duration is the session length, up to now for a running session.
func (s Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// StartSession opens a session and returns it with a fresh ID. params is
// stored as JSON so a session can be reproduced later.
func (db *DB) StartSession(device string, params any, at time.Time) (Session, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Session{}, fmt.Errorf("encode session params: %w", err)
	}
	s := Session{
		ID:         uuid.NewString(),
		Device:     device,
		StartedAt:  at.UTC(),
		ParamsJSON: raw,
	}
	_, err = db.Exec(
		`INSERT INTO sessions (session_id, device, started_at, params_json) VALUES (?, ?, ?, ?)`,
		s.ID, s.Device, s.StartedAt.UnixMicro(), string(raw),
	)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

// EndSession stamps the end time of a session.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ?`, at.UTC().UnixMicro(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// RecordReports stores a batch of reports in one transaction.
func (db *DB) RecordReports(id string, reports []wheel.Report) error {
	if len(reports) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO wheel_reports (
			session_id, seq, event_time, x, y, angle, magnitude, state,
			wheel_angle, axis_value, synthetic, skew_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range reports {
		var angle sql.NullFloat64
		if r.Angle != nil {
			angle = sql.NullFloat64{Float64: *r.Angle, Valid: true}
		}
		if _, err := stmt.Exec(
			id, r.Seq, r.Time.UnixMicro(), r.X, r.Y, angle, r.Magnitude, r.State.String(),
			r.WheelAngle, r.AxisValue, r.Synthetic, r.Skew.Microseconds(),
		); err != nil {
			return fmt.Errorf("insert report %d: %w", r.Seq, err)
		}
	}
	return tx.Commit()
}

const sessionColumns = `s.session_id, s.device, s.started_at, s.ended_at, s.params_json,
	(SELECT COUNT(*) FROM wheel_reports r WHERE r.session_id = s.session_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
		params  string
	)
	if err := row.Scan(&s.ID, &s.Device, &started, &ended, &params, &s.Reports); err != nil {
		return Session{}, err
	}
	s.StartedAt = time.UnixMicro(started).UTC()
	if ended.Valid {
		t := time.UnixMicro(ended.Int64).UTC()
		s.EndedAt = &t
	}
	s.ParamsJSON = json.RawMessage(params)
	return s, nil
}

// Sessions lists sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM sessions s ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Session returns one session by ID.
func (db *DB) Session(id string) (Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// Reports returns a session's reports in sequence order.
func (db *DB) Reports(id string) ([]wheel.Report, error) {
	rows, err := db.Query(`SELECT seq, event_time, x, y, angle, magnitude, state,
			wheel_angle, axis_value, synthetic, skew_us
		FROM wheel_reports WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []wheel.Report
	for rows.Next() {
		var (
			r         wheel.Report
			eventTime int64
			angle     sql.NullFloat64
			state     string
			skewUS    int64
		)
		if err := rows.Scan(&r.Seq, &eventTime, &r.X, &r.Y, &angle, &r.Magnitude, &state,
			&r.WheelAngle, &r.AxisValue, &r.Synthetic, &skewUS); err != nil {
			return nil, err
		}
		r.Time = time.UnixMicro(eventTime).UTC()
		if angle.Valid {
			a := angle.Float64
			r.Angle = &a
		}
		if err := r.State.UnmarshalText([]byte(state)); err != nil {
			return nil, err
		}
		r.Skew = time.Duration(skewUS) * time.Microsecond
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// DeleteSession removes a session and its reports.
func (db *DB) DeleteSession(id string) error {
	res, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}
