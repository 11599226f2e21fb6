package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"router/internal/domain"
)

func TestWrite_ProducesThreeSheetWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")

	meta := domain.RunMetadata{
		RunID:        "run-1",
		RouteDir:     "/data/route",
		StartedAt:    time.Unix(0, 0).UTC(),
		FinishedAt:   time.Unix(120, 0).UTC(),
		InternalStep: 300 * time.Second,
		ExternalStep: 3600 * time.Second,
		ReachCount:   2,
	}
	stats := domain.EngineStats{ReachesCompleted: 2, ReachesSkipped: 0, KernelFallbacks: 1, BlocksWritten: 2, Duration: 2 * time.Minute}
	results := []domain.ReachResult{
		{ReachID: 2, Outflow: []float64{1, 5, 2}, Velocity: []float64{0.1, 0.4, 0.2}, Depth: []float64{1, 2, 1}},
		{ReachID: 1, Outflow: []float64{3, 1}, Velocity: []float64{0.2, 0.1}, Depth: []float64{1, 1}, NonConvergence: 1},
	}
	warnings := []Warning{{ReachID: 1, Message: "exceeded secant iteration budget"}}

	require.NoError(t, Write(path, meta, stats, results, warnings))

	_, err := os.Stat(path)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Contains(t, sheets, "Run Summary")
	assert.Contains(t, sheets, "Per-Reach Peaks")
	assert.Contains(t, sheets, "Warnings")

	v, err := f.GetCellValue("Per-Reach Peaks", "A2")
	require.NoError(t, err)
	assert.Equal(t, "1", v) // sorted ascending by reach id

	v, err = f.GetCellValue("Per-Reach Peaks", "B2")
	require.NoError(t, err)
	assert.Equal(t, "3", v) // peak discharge for reach 1
}

func TestWrite_NoWarningsProducesPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, Write(path, domain.RunMetadata{}, domain.EngineStats{}, nil, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Warnings", "A1")
	require.NoError(t, err)
	assert.Equal(t, "No warnings recorded for this run", v)
}
