package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	dashboard "parking-monitor/internal/dashboard/application"
)

func sampleSummary() *dashboard.Summary {
	return &dashboard.Summary{
		Date:      "2026-03-01",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Totals:    dashboard.Totals{TotalEvents: 12, CurrentOccupancy: 3, TotalDevices: 5, ActiveDevices: 4, AlertsToday: 2, CriticalAlerts: 1},
		Zones: []dashboard.ZoneSummary{
			{ZoneName: "North", ZoneCode: "N", Events: 12, Target: 20, Efficiency: 60, Status: dashboard.StatusWarning},
		},
	}
}

func TestBuildSummaryXLSX(t *testing.T) {
	body, err := BuildSummaryXLSX(sampleSummary())
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue("summary", "B3"); got != "2026-03-01" {
		t.Fatalf("unexpected date cell %q", got)
	}
	if got, _ := f.GetCellValue("summary", "B5"); got != "12" {
		t.Fatalf("unexpected total events cell %q", got)
	}
	if got, _ := f.GetCellValue("zones", "A2"); got != "North" {
		t.Fatalf("unexpected zone cell %q", got)
	}
	if got, _ := f.GetCellValue("zones", "F2"); got != dashboard.StatusWarning {
		t.Fatalf("unexpected status cell %q", got)
	}
}

func TestBuildSummaryPDF(t *testing.T) {
	body, err := BuildSummaryPDF(sampleSummary())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		t.Fatalf("missing pdf header")
	}
}

func TestNilSummary(t *testing.T) {
	if _, err := BuildSummaryPDF(nil); err == nil {
		t.Fatal("expected error for nil pdf summary")
	}
	if _, err := BuildSummaryXLSX(nil); err == nil {
		t.Fatal("expected error for nil xlsx summary")
	}
}
