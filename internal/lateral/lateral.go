// Package lateral loads a reach's lateral (catchment) inflow series from
// its per-reach CSV file and converts it to the kernel's native m^3/s
// units, per spec.md §4.7.
package lateral

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"router/pkg/apperror"
	"router/pkg/logger"
)

// defaultColumnIndex is the fallback value column (third column) used
// when no column name is configured or the named column isn't found.
const defaultColumnIndex = 2

// Series is a lateral inflow sequence, already converted to m^3/s,
// consumable head-first.
type Series []float64

// At returns the zero-order-hold value for internal timestep t, given
// the upsampling ratio between internal and external (lateral) steps.
// An empty series reads as all-zero.
func (s Series) At(t, upsampling int) float64 {
	if len(s) == 0 {
		return 0
	}
	if upsampling <= 0 {
		upsampling = 1
	}
	idx := t / upsampling
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return s[idx]
}

// Upsampling computes the ratio of internal to external timesteps
// (typically 12: hourly external, 5-minute internal). A lateral series
// of length zero yields an upsampling of 1 since Series.At never reads
// from it.
func Upsampling(internalSteps, lateralLen int) int {
	if lateralLen <= 0 {
		return 1
	}
	u := internalSteps / lateralLen
	if u <= 0 {
		u = 1
	}
	return u
}

// Loader reads lateral inflow CSVs from a directory, one file per reach
// named "cat-<id>.csv".
type Loader struct {
	dir        string
	columnName string
}

// NewLoader returns a Loader rooted at dir. columnName selects the value
// column by header name; if empty (or not found), the third column is
// used.
func NewLoader(dir, columnName string) *Loader {
	return &Loader{dir: dir, columnName: columnName}
}

// Path returns the expected lateral CSV path for a reach id.
func (l *Loader) Path(reachID uint32) string {
	return filepath.Join(l.dir, fmt.Sprintf("cat-%d.csv", reachID))
}

// Load reads and unit-converts a reach's lateral series. A missing file
// is not an error: it returns a nil series, which Series.At treats as
// all-zero.
func (l *Loader) Load(reachID uint32, areaSqKM float64) (Series, error) {
	path := l.Path(reachID)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Log.Debug("no lateral inflow file found, treating as zero", "reach_id", reachID, "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMissingLateralFile, "opening lateral inflow file").
			WithDetails("reach_id", reachID).WithDetails("path", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeMalformedLateralRow, "reading lateral inflow header").
			WithDetails("reach_id", reachID).WithDetails("path", path)
	}

	colIdx := defaultColumnIndex
	if l.columnName != "" {
		for i, h := range header {
			if strings.TrimSpace(h) == l.columnName {
				colIdx = i
				break
			}
		}
	}

	var series Series
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeMalformedLateralRow, "reading lateral inflow row").
				WithDetails("reach_id", reachID).WithDetails("path", path)
		}
		if colIdx >= len(record) {
			return nil, apperror.New(apperror.CodeMalformedLateralRow, "lateral inflow row too short").
				WithDetails("reach_id", reachID).WithDetails("path", path).WithDetails("column", colIdx)
		}

		q, err := strconv.ParseFloat(strings.TrimSpace(record[colIdx]), 64)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.CodeMalformedLateralRow, "parsing lateral inflow value").
				WithDetails("reach_id", reachID).WithDetails("path", path)
		}

		// mm/hr over the catchment area, converted to m^3/s.
		series = append(series, (q*areaSqKM*1e6)/3600)
	}

	return series, nil
}
