package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/joelkehle/irb-copilot/internal/irbprofile"
	"github.com/joelkehle/irb-copilot/internal/profileimport"
	"github.com/joelkehle/irb-copilot/internal/readiness"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.clock = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestRecordAndListImports(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res := profileimport.Result{
		Confidence:     0.64,
		ConfidenceBand: "medium",
		Warnings:       []string{"2 source(s) failed to fetch; see the source list for details."},
		ProfileDraft:   irbprofile.Profile{ID: "imported_acme_v1"},
		Stats: profileimport.Stats{
			CandidateSourceCount: 5,
			FetchedSourceCount:   3,
			FailedSourceCount:    2,
			SignalCount:          4,
		},
	}
	if err := s.RecordImport(ctx, "Acme University", res); err != nil {
		t.Fatalf("record: %v", err)
	}
	res.ConfidenceBand = "low"
	if err := s.RecordImport(ctx, "Tiny College", res); err != nil {
		t.Fatalf("record second: %v", err)
	}

	runs, err := s.RecentImports(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d", len(runs))
	}
	if runs[0].Organization != "Tiny College" {
		t.Fatalf("order wrong: %+v", runs)
	}
	if runs[1].Confidence != 0.64 || runs[1].SignalCount != 4 {
		t.Fatalf("row = %+v", runs[1])
	}
	if len(runs[1].Warnings) != 1 {
		t.Fatalf("warnings not round-tripped: %+v", runs[1])
	}
}

func TestRecordAndListReadiness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := readiness.Readiness{NextSteps: []string{"Share the packet with your advisor for a final review."}}
	r.Summary.ReadyForAdvisorReview = true
	r.Summary.WarningCount = 1
	if err := s.RecordReadiness(ctx, "generic_classroom_research_us_v1", r); err != nil {
		t.Fatalf("record: %v", err)
	}

	snaps, err := s.RecentReadiness(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d", len(snaps))
	}
	snap := snaps[0]
	if !snap.AdvisorReady || snap.PacketReady {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.NextSteps) != 1 {
		t.Fatalf("next steps not round-tripped: %+v", snap)
	}
	if snap.CreatedAt == "" {
		t.Fatal("created_at empty")
	}
}

func TestListLimitBounds(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.RecentImports(context.Background(), -5); err != nil {
		t.Fatalf("negative limit: %v", err)
	}
	if _, err := s.RecentReadiness(context.Background(), 10000); err != nil {
		t.Fatalf("huge limit: %v", err)
	}
}
