package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"router/internal/domain"
	"router/internal/scheduler"
	"router/internal/topology"
)

type recordingRunner struct {
	mu  sync.Mutex
	ran []uint32
	err error
	on  map[uint32]error
}

func (r *recordingRunner) Run(ctx context.Context, reachID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, reachID)
	if r.on != nil {
		if err, ok := r.on[reachID]; ok {
			return err
		}
	}
	return r.err
}

func buildTopology(t *testing.T, reaches ...domain.Reach) *topology.Topology {
	t.Helper()
	topo := topology.New()
	for _, r := range reaches {
		require.NoError(t, topo.AddReach(r))
	}
	require.NoError(t, topo.Build())
	return topo
}

func TestPool_RunsEveryReach(t *testing.T) {
	topo := buildTopology(t,
		domain.Reach{ID: 1, DownstreamID: 3, HasDownstream: true},
		domain.Reach{ID: 2, DownstreamID: 3, HasDownstream: true},
		domain.Reach{ID: 3},
	)
	sched := scheduler.New(topo)
	runner := &recordingRunner{}
	pool := New(2, sched, runner)

	err := pool.Run(context.Background())
	require.NoError(t, err)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.ElementsMatch(t, []uint32{1, 2, 3}, runner.ran)
}

func TestPool_PropagatesRunnerError(t *testing.T) {
	topo := buildTopology(t, domain.Reach{ID: 1})
	sched := scheduler.New(topo)
	boom := errors.New("kernel blew up")
	runner := &recordingRunner{on: map[uint32]error{1: boom}}
	pool := New(1, sched, runner)

	err := pool.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestPool_DefaultsWorkerCountWhenZero(t *testing.T) {
	topo := buildTopology(t, domain.Reach{ID: 1})
	sched := scheduler.New(topo)
	pool := New(0, sched, &recordingRunner{})
	assert.Greater(t, pool.size, 0)
}

func TestPool_RespectsContextCancellation(t *testing.T) {
	topo := buildTopology(t,
		domain.Reach{ID: 1, DownstreamID: 2, HasDownstream: true},
		domain.Reach{ID: 2},
	)
	sched := scheduler.New(topo)
	runner := &recordingRunner{}
	pool := New(1, sched, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not exit after context cancellation")
	}
}
