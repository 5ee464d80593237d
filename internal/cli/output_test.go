package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Synchronizer/internal/domain"
	"github.com/shaiso/Synchronizer/internal/synchronizer"
)

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, false)

	out.Print([]string{"ID", "NAME"}, [][]string{{"1", "orders"}}, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, separator and row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[1], "--") {
		t.Errorf("expected separator line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "orders") {
		t.Errorf("expected row, got %q", lines[2])
	}
}

func TestOutput_Report_JSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, true)

	r := synchronizer.Report{Mode: domain.SelectDue, Selected: 3, Err: errors.New("connection refused")}
	r.Dispatched = 2
	r.Failed = 1
	out.Report(r)

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got["mode"] != "due" {
		t.Errorf("unexpected mode %v", got["mode"])
	}
	if got["dispatched"] != float64(2) || got["failed"] != float64(1) || got["selected"] != float64(3) {
		t.Errorf("unexpected counters %v", got)
	}
	if got["error"] != "connection refused" {
		t.Errorf("expected error string, got %v", got["error"])
	}
}

func TestOutput_Report_Table(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(&buf, false)

	out.Report(synchronizer.Report{Mode: domain.SelectStalled, Selected: 1})

	if !strings.Contains(buf.String(), "stalled") {
		t.Errorf("expected mode in table, got %q", buf.String())
	}
}

func TestStatusRows(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	longAgo := now.Add(-5 * time.Hour)

	syncs := []domain.Synchronization{
		{ID: uuid.New(), Name: "due", State: domain.SyncStateSuccess, RunAt: &past},
		{ID: uuid.New(), Name: "stuck", State: domain.SyncStateSyncing, RanAt: &longAgo},
		{ID: uuid.New(), Name: "exhausted", State: domain.SyncStateFailure, RunAt: &past, RetriedTimes: 3},
	}

	statuses := buildStatuses(syncs, now, 3, 3*time.Hour)
	rows := statusRows(statuses)

	tests := []struct {
		name    string
		due     bool
		stalled bool
		runAt   string
	}{
		{"due", true, false, past.Format(time.RFC3339)},
		{"stuck", false, true, "-"},
		{"exhausted", false, false, past.Format(time.RFC3339)},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if statuses[i].Due != tt.due || statuses[i].Stalled != tt.stalled {
				t.Errorf("expected due=%v stalled=%v, got %+v", tt.due, tt.stalled, statuses[i])
			}
			if rows[i][1] != tt.name || rows[i][3] != tt.runAt {
				t.Errorf("unexpected row %v", rows[i])
			}
			if len(rows[i]) != len(statusHeaders) {
				t.Errorf("row has %d columns, headers %d", len(rows[i]), len(statusHeaders))
			}
		})
	}
}
