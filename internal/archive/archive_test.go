package archive

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_SubmitAndClosePlainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.gob")

	times := []float64{0, 300, 600}
	attrs := Attributes{Title: "test run", ReferenceTime: time.Unix(0, 0).UTC(), CodeVersion: "v0.0.0-test"}
	w := NewWriter(times, attrs, 4)

	w.Submit(Block{FeatureID: 1, Flow: []float64{1, 2, 3}, Velocity: []float64{0.1, 0.2, 0.3}, Depth: []float64{1, 1, 1}})
	w.Submit(Block{FeatureID: 2, Flow: []float64{4, 5, 6}, Velocity: []float64{0.4, 0.5, 0.6}, Depth: []float64{2, 2, 2}})

	require.NoError(t, w.Close(path, false))

	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, attrs.Title, got.Attributes.Title)
	assert.Equal(t, attrs.CodeVersion, got.Attributes.CodeVersion)
	assert.Equal(t, times, got.Times)
	assert.ElementsMatch(t, []int64{1, 2}, got.FeatureIDs)
	require.Len(t, got.Flow, 2)
}

func TestWriter_GzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.gob.gz")

	w := NewWriter([]float64{0, 1}, Attributes{Title: "gz"}, 1)
	w.Submit(Block{FeatureID: 7, Flow: []float64{1, 2}, Velocity: []float64{1, 2}, Depth: []float64{1, 2}})
	require.NoError(t, w.Close(path, true))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got.FeatureIDs, 1)
	assert.Equal(t, int64(7), got.FeatureIDs[0])
	assert.Equal(t, []float64{1, 2}, got.Flow[0])
}

func TestWriter_ConcurrentSubmit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concurrent.gob")

	const n = 50
	w := NewWriter([]float64{0}, Attributes{Title: "concurrent"}, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			w.Submit(Block{FeatureID: id, Flow: []float64{float64(id)}})
		}(uint32(i))
	}
	wg.Wait()

	require.NoError(t, w.Close(path, false))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, got.FeatureIDs, n)
}

func TestFillValue(t *testing.T) {
	assert.Equal(t, -9999.0, FillValue)
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.gob"))
	assert.Error(t, err)
}
