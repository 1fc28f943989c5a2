package db

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/stick2wheel/internal/wheel"
)

var t0 = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func testReports(n int) []wheel.Report {
	reports := make([]wheel.Report, n)
	for i := range reports {
		angle := float64(i) / 10
		reports[i] = wheel.Report{
			Seq:        uint64(i + 1),
			Time:       t0.Add(time.Duration(i) * 8 * time.Millisecond),
			X:          int32(1000 * i),
			Y:          -int32(500 * i),
			Angle:      &angle,
			Magnitude:  0.95,
			State:      wheel.Gripped,
			WheelAngle: angle * 2,
			AxisValue:  32767 + int32(i),
			Skew:       time.Duration(i) * time.Millisecond,
		}
	}
	// an idle tick with no stick angle
	reports[n-1].Angle = nil
	reports[n-1].State = wheel.Freewheel
	reports[n-1].Synthetic = true
	return reports
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)

	params := wheel.DefaultParams()
	s, err := db.StartSession("/dev/input/event7", params, t0)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if s.ID == "" {
		t.Fatal("session has no ID")
	}

	reports := testReports(5)
	if err := db.RecordReports(s.ID, reports[:3]); err != nil {
		t.Fatalf("RecordReports: %v", err)
	}
	if err := db.RecordReports(s.ID, reports[3:]); err != nil {
		t.Fatalf("RecordReports: %v", err)
	}
	if err := db.RecordReports(s.ID, nil); err != nil {
		t.Errorf("RecordReports(nil): %v", err)
	}

	got, err := db.Reports(s.ID)
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if diff := cmp.Diff(reports, got); diff != "" {
		t.Errorf("Reports mismatch (-want +got):\n%s", diff)
	}

	end := t0.Add(time.Minute)
	if err := db.EndSession(s.ID, end); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	loaded, err := db.Session(s.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if loaded.Reports != 5 {
		t.Errorf("Reports count = %d, want 5", loaded.Reports)
	}
	if loaded.EndedAt == nil || !loaded.EndedAt.Equal(end) {
		t.Errorf("EndedAt = %v, want %v", loaded.EndedAt, end)
	}
	if d := loaded.Duration(time.Time{}); d != time.Minute {
		t.Errorf("Duration = %v, want 1m", d)
	}

	var p wheel.Params
	if err := json.Unmarshal(loaded.ParamsJSON, &p); err != nil {
		t.Fatalf("params json: %v", err)
	}
	if p != params {
		t.Errorf("stored params = %+v, want %+v", p, params)
	}
}

func TestSessionsOrder(t *testing.T) {
	db := newTestDB(t)

	first, _ := db.StartSession("a", nil, t0)
	second, _ := db.StartSession("b", nil, t0.Add(time.Hour))

	list, err := db.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("Sessions not newest first: %+v", list)
	}
	if list[0].EndedAt != nil {
		t.Error("running session has EndedAt set")
	}
}

func TestUnknownSession(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.Session("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session err = %v, want ErrSessionNotFound", err)
	}
	if err := db.EndSession("nope", t0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("EndSession err = %v, want ErrSessionNotFound", err)
	}
	if err := db.DeleteSession("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("DeleteSession err = %v, want ErrSessionNotFound", err)
	}
	// foreign key keeps orphan reports out
	if err := db.RecordReports("nope", testReports(1)); err == nil {
		t.Error("RecordReports for unknown session succeeded")
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	db := newTestDB(t)

	s, _ := db.StartSession("dev", nil, t0)
	if err := db.RecordReports(s.ID, testReports(4)); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteSession(s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM wheel_reports`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d reports left after delete", n)
	}
}
