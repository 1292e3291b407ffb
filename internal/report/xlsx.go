// Package report writes the summary and log of a migration run to an XLSX
// workbook for people who were not watching the console.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	logSheet     = "Log"
)

var levelColors = map[models.Level]string{
	models.LevelWarning: "FFE699",
	models.LevelError:   "F4B084",
	models.LevelSuccess: "C6E0B4",
	models.LevelDryRun:  "BDD7EE",
}

// Build renders summary and entries into a new workbook.
func Build(summary *models.MigrationSummary, entries []models.LogEntry) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}

	writeSummary(f, summary, headerStyle)
	if err := writeLog(f, entries, headerStyle); err != nil {
		return nil, err
	}
	return f, nil
}

// Write renders the workbook to w.
func Write(w io.Writer, summary *models.MigrationSummary, entries []models.LogEntry) error {
	f, err := Build(summary, entries)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(w)
	return err
}

// Save writes the workbook to path, creating its directory.
func Save(path string, summary *models.MigrationSummary, entries []models.LogEntry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := Build(summary, entries)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, s *models.MigrationSummary, headerStyle int) {
	f.SetCellValue(summarySheet, "A1", "Metric")
	f.SetCellValue(summarySheet, "B1", "Value")
	f.SetCellStyle(summarySheet, "A1", "B1", headerStyle)

	failed := make([]string, len(s.FailedPages))
	for i, p := range s.FailedPages {
		failed[i] = fmt.Sprint(p)
	}

	rows := [][2]interface{}{
		{"Run ID", s.RunID},
		{"Job", string(s.Job)},
		{"Dry run", s.DryRun},
		{"Started", s.StartedAt.Format(time.RFC3339)},
		{"Finished", s.FinishedAt.Format(time.RFC3339)},
		{"Duration", s.Duration().Round(time.Second).String()},
		{"Start page", s.StartPage},
		{"Pages processed", s.PagesProcessed},
		{"Total pages", s.TotalPages},
		{"Fetched", s.TotalFetched},
		{"Migrated", s.Migrated},
		{"Imported", s.Imported},
		{"Created", s.Created},
		{"Updated", s.Updated},
		{"Skipped", s.Skipped},
		{"Errors", s.Errors},
		{"Images attached", s.ImagesAttached},
		{"Images skipped", s.ImagesSkipped},
		{"Images failed", s.ImagesFailed},
		{"Failed pages", strings.Join(failed, ", ")},
	}
	for i, r := range rows {
		row := i + 2
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), r[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), r[1])
	}
	f.SetColWidth(summarySheet, "A", "A", 20)
	f.SetColWidth(summarySheet, "B", "B", 40)
}

func writeLog(f *excelize.File, entries []models.LogEntry, headerStyle int) error {
	if _, err := f.NewSheet(logSheet); err != nil {
		return err
	}
	for i, h := range []string{"Time", "Level", "Message"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(logSheet, cell, h)
		f.SetCellStyle(logSheet, cell, cell, headerStyle)
	}

	styles := make(map[models.Level]int)
	for level, color := range levelColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return err
		}
		styles[level] = id
	}

	for i, e := range entries {
		row := i + 2
		f.SetCellValue(logSheet, fmt.Sprintf("A%d", row), e.Time.Format("2006-01-02 15:04:05"))
		f.SetCellValue(logSheet, fmt.Sprintf("B%d", row), string(e.Level))
		f.SetCellValue(logSheet, fmt.Sprintf("C%d", row), e.Message)
		if id, ok := styles[e.Level]; ok {
			f.SetCellStyle(logSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row), id)
		}
	}
	f.SetColWidth(logSheet, "A", "A", 20)
	f.SetColWidth(logSheet, "B", "B", 10)
	f.SetColWidth(logSheet, "C", "C", 100)
	return nil
}
