package db

import (
	"context"
	"time"

	"github.com/banshee-data/stick2wheel/internal/monitoring"
	"github.com/banshee-data/stick2wheel/internal/timeutil"
	"github.com/banshee-data/stick2wheel/internal/wheel"
)

// Source hands out report subscriptions, normally a telemetry.Hub.
type Source interface {
	Subscribe() (string, <-chan wheel.Report)
	Unsubscribe(id string)
}

// Recorder persists the reports of one session in batches.
type Recorder struct {
	DB        *DB
	SessionID string
	Source    Source

	// BatchSize reports trigger an immediate write; otherwise whatever is
	// pending is written every FlushInterval.
	BatchSize     int
	FlushInterval time.Duration
	Clock         timeutil.Clock

	recorded int
}

const (
	defaultBatchSize     = 256
	defaultFlushInterval = time.Second
)

// Run records until ctx is cancelled or the source closes the subscription,
// then writes whatever is still pending.
func (r *Recorder) Run(ctx context.Context) error {
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	interval := r.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	id, ch := r.Source.Subscribe()
	defer r.Source.Unsubscribe(id)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	pending := make([]wheel.Report, 0, batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := r.DB.RecordReports(r.SessionID, pending); err != nil {
			return err
		}
		r.recorded += len(pending)
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return flush()
		case <-ticker.C():
			if err := flush(); err != nil {
				return err
			}
		case rep, ok := <-ch:
			if !ok {
				return flush()
			}
			pending = append(pending, rep)
			if len(pending) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// Recorded returns how many reports have been written. Only valid once Run
// has returned.
func (r *Recorder) Recorded() int { return r.recorded }

// Record runs a Recorder for a new session and closes the session when it
// stops.
func Record(ctx context.Context, db *DB, src Source, device string, params any) error {
	clock := timeutil.RealClock{}
	s, err := db.StartSession(device, params, clock.Now())
	if err != nil {
		return err
	}
	monitoring.Logf("recording session %s", s.ID)

	rec := &Recorder{DB: db, SessionID: s.ID, Source: src, Clock: clock}
	runErr := rec.Run(ctx)
	if err := db.EndSession(s.ID, clock.Now()); err != nil && runErr == nil {
		runErr = err
	}
	monitoring.Logf("session %s closed with %d reports", s.ID, rec.Recorded())
	return runErr
}
