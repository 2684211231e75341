package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	dashboard "parking-monitor/internal/dashboard/application"
)

// BuildSummaryPDF renders a one-page PDF of a dashboard summary.
func BuildSummaryPDF(summary *dashboard.Summary) ([]byte, error) {
	if summary == nil {
		return nil, fmt.Errorf("export: nil summary")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Parking Daily Summary")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", summary.Date))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", summary.Timestamp.Format(time.RFC3339)))
	pdf.Ln(8)

	totals := summary.Totals
	for _, line := range []struct {
		label string
		value int
	}{
		{"Total Events", totals.TotalEvents},
		{"Current Occupancy", totals.CurrentOccupancy},
		{"Total Devices", totals.TotalDevices},
		{"Active Devices", totals.ActiveDevices},
		{"Alerts Today", totals.AlertsToday},
		{"Critical Alerts", totals.CriticalAlerts},
	} {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %d", line.label, line.value))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Zone", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Code", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Events", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Target", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Efficiency (%)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, zone := range summary.Zones {
		pdf.CellFormat(50, 6, zone.ZoneName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, zone.ZoneCode, "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", zone.Events), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", zone.Target), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", zone.Efficiency), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, zone.Status, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSummaryXLSX renders a workbook with a totals sheet and a zones sheet.
func BuildSummaryXLSX(summary *dashboard.Summary) ([]byte, error) {
	if summary == nil {
		return nil, fmt.Errorf("export: nil summary")
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	zonesSheet := "zones"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(zonesSheet)

	totals := summary.Totals
	rows := [][]any{
		{"Parking Daily Summary"},
		{},
		{"Date", summary.Date},
		{"Generated", summary.Timestamp.Format(time.RFC3339)},
		{"Total Events", totals.TotalEvents},
		{"Current Occupancy", totals.CurrentOccupancy},
		{"Total Devices", totals.TotalDevices},
		{"Active Devices", totals.ActiveDevices},
		{"Alerts Today", totals.AlertsToday},
		{"Critical Alerts", totals.CriticalAlerts},
	}
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(summarySheet, cell, value)
		}
	}

	_ = f.SetCellValue(zonesSheet, "A1", "Zone")
	_ = f.SetCellValue(zonesSheet, "B1", "Code")
	_ = f.SetCellValue(zonesSheet, "C1", "Events")
	_ = f.SetCellValue(zonesSheet, "D1", "Target")
	_ = f.SetCellValue(zonesSheet, "E1", "Efficiency (%)")
	_ = f.SetCellValue(zonesSheet, "F1", "Status")
	for i, zone := range summary.Zones {
		row := i + 2
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("A%d", row), zone.ZoneName)
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("B%d", row), zone.ZoneCode)
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("C%d", row), zone.Events)
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("D%d", row), zone.Target)
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("E%d", row), zone.Efficiency)
		_ = f.SetCellValue(zonesSheet, fmt.Sprintf("F%d", row), zone.Status)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
