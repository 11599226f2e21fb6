// Package report renders an optional post-run Excel workbook summarizing
// an engine run, for operators without netCDF tooling on hand —
// SPEC_FULL.md §4.16. It never substitutes for the gridded archive
// written by internal/archive; it is a convenience artifact only.
package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"router/internal/domain"
	"router/pkg/apperror"
)

// Warning is one non-fatal event worth surfacing to an operator: a
// reach skip or a kernel non-convergence, keyed by reach id.
type Warning struct {
	ReachID uint32
	Message string
}

// Write renders the three-sheet workbook (Run Summary, Per-Reach Peaks,
// Warnings) and saves it to path.
func Write(path string, meta domain.RunMetadata, stats domain.EngineStats, results []domain.ReachResult, warnings []Warning) error {
	f := excelize.NewFile()
	defer f.Close()

	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	writeRunSummary(f, headerStyle, meta, stats)
	writePerReachPeaks(f, headerStyle, results)
	writeWarnings(f, headerStyle, warnings)

	if err := f.SaveAs(path); err != nil {
		return apperror.Wrap(err, apperror.CodeReportIOError, "writing summary workbook").WithDetails("path", path)
	}
	return nil
}

func cellAddr(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func writeRunSummary(f *excelize.File, headerStyle int, meta domain.RunMetadata, stats domain.EngineStats) {
	const sheet = "Run Summary"
	f.NewSheet(sheet)

	row := 1
	f.SetCellValue(sheet, cellAddr("A", row), "Run Summary")
	f.MergeCell(sheet, cellAddr("A", row), cellAddr("B", row))
	row += 2

	fields := []struct {
		name  string
		value any
	}{
		{"Run ID", meta.RunID},
		{"Route Directory", meta.RouteDir},
		{"Started At", meta.StartedAt.Format("2006-01-02T15:04:05Z07:00")},
		{"Finished At", meta.FinishedAt.Format("2006-01-02T15:04:05Z07:00")},
		{"Internal Timestep", meta.InternalStep.String()},
		{"External Timestep", meta.ExternalStep.String()},
		{"Reach Count", meta.ReachCount},
		{"Reaches Completed", stats.ReachesCompleted},
		{"Reaches Skipped", stats.ReachesSkipped},
		{"Kernel Fallbacks", stats.KernelFallbacks},
		{"Blocks Written", stats.BlocksWritten},
		{"Duration", stats.Duration.String()},
	}

	f.SetCellValue(sheet, cellAddr("A", row), "Field")
	f.SetCellValue(sheet, cellAddr("B", row), "Value")
	f.SetCellStyle(sheet, cellAddr("A", row), cellAddr("B", row), headerStyle)
	row++

	for _, field := range fields {
		f.SetCellValue(sheet, cellAddr("A", row), field.name)
		f.SetCellValue(sheet, cellAddr("B", row), field.value)
		row++
	}

	f.SetColWidth(sheet, "A", "B", 22)
}

func writePerReachPeaks(f *excelize.File, headerStyle int, results []domain.ReachResult) {
	const sheet = "Per-Reach Peaks"
	f.NewSheet(sheet)

	headers := []string{"Reach ID", "Peak Discharge (m3/s)", "Peak Velocity (m/s)", "Peak Depth (m)", "Non-Convergent Steps", "Skipped"}
	for i, h := range headers {
		f.SetCellValue(sheet, cellAddr(string(rune('A'+i)), 1), h)
	}
	f.SetCellStyle(sheet, "A1", cellAddr(string(rune('A'+len(headers)-1)), 1), headerStyle)

	ordered := make([]domain.ReachResult, len(results))
	copy(ordered, results)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ReachID < ordered[j].ReachID })

	for i, r := range ordered {
		row := i + 2
		f.SetCellValue(sheet, cellAddr("A", row), r.ReachID)
		f.SetCellValue(sheet, cellAddr("B", row), r.PeakDischarge())
		f.SetCellValue(sheet, cellAddr("C", row), r.PeakVelocity())
		f.SetCellValue(sheet, cellAddr("D", row), r.PeakDepth())
		f.SetCellValue(sheet, cellAddr("E", row), r.NonConvergence)
		f.SetCellValue(sheet, cellAddr("F", row), r.Skipped)
	}

	f.SetColWidth(sheet, "A", "F", 20)
}

func writeWarnings(f *excelize.File, headerStyle int, warnings []Warning) {
	const sheet = "Warnings"
	f.NewSheet(sheet)

	if len(warnings) == 0 {
		f.SetCellValue(sheet, "A1", "No warnings recorded for this run")
		return
	}

	headers := []string{"Reach ID", "Message"}
	for i, h := range headers {
		f.SetCellValue(sheet, cellAddr(string(rune('A'+i)), 1), h)
	}
	f.SetCellStyle(sheet, "A1", "B1", headerStyle)

	for i, w := range warnings {
		row := i + 2
		f.SetCellValue(sheet, cellAddr("A", row), w.ReachID)
		f.SetCellValue(sheet, cellAddr("B", row), w.Message)
	}

	f.SetColWidth(sheet, "A", "B", 30)
}
