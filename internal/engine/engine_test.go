package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"router/internal/archive"
	"router/internal/domain"
	"router/internal/lateral"
	"router/pkg/config"
	"router/pkg/logger"
)

func init() {
	logger.Init("error")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "router"
	cfg.App.Version = "test"
	cfg.Engine.Workers = 2
	cfg.Engine.InternalTimestepSeconds = 300
	cfg.Engine.ExternalTimestepSeconds = 3600
	cfg.Engine.WriterQueueDepth = 8
	cfg.Engine.KernelMaxIterations = 50
	cfg.Engine.KernelMinDepth = 0.01
	cfg.Engine.SlopeFloor = 1e-5
	return cfg
}

func simpleGeometry() domain.ChannelGeometry {
	return domain.ChannelGeometry{
		LengthM:     1000,
		Manning:     0.06,
		ManningCC:   0.12,
		Slope:       0.001,
		BottomWidth: 5,
		TopWidth:    10,
		TopWidthCC:  50,
		SideSlope:   1,
	}
}

func TestEngine_RoutesChainAndWritesArchive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cat-1.csv"), []byte("time,id,q\n1,cat-1,1.0\n2,cat-1,2.0\n"), 0o644))
	// no lateral file for reach 2: must not be fatal.

	reaches := []domain.Reach{
		{ID: 1, DownstreamID: 2, HasDownstream: true, AreaSqKM: 1.0},
		{ID: 2},
	}
	geometries := map[uint32]domain.ChannelGeometry{
		1: simpleGeometry(),
		2: simpleGeometry(),
	}

	cfg := testConfig()
	loader := lateral.NewLoader(dir, "")

	e, err := New(cfg, "test-run", dir, reaches, geometries, loader)
	require.NoError(t, err)

	outputPath := filepath.Join(dir, "out.gob.gz")
	meta, stats, err := e.Execute(context.Background(), outputPath)
	require.NoError(t, err)

	assert.Equal(t, "test-run", meta.RunID)
	assert.Equal(t, 2, meta.ReachCount)
	assert.Equal(t, 2, stats.ReachesCompleted)
	assert.Equal(t, 0, stats.ReachesSkipped)

	got, err := archive.Load(outputPath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, got.FeatureIDs)
}

func TestEngine_MissingGeometrySkipsReach(t *testing.T) {
	dir := t.TempDir()
	reaches := []domain.Reach{{ID: 1}}
	geometries := map[uint32]domain.ChannelGeometry{} // no geometry for reach 1

	cfg := testConfig()
	loader := lateral.NewLoader(dir, "")

	e, err := New(cfg, "test-run-2", dir, reaches, geometries, loader)
	require.NoError(t, err)

	outputPath := filepath.Join(dir, "out2.gob.gz")
	_, stats, err := e.Execute(context.Background(), outputPath)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.ReachesCompleted)
	assert.Equal(t, 1, stats.ReachesSkipped)
}
