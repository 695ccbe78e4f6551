package daemon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorkerGroupRunsWorkers(t *testing.T) {
	var g WorkerGroup
	var ran atomic.Int32

	require.True(t, g.Go(func() { ran.Add(1) }))
	require.True(t, g.Go(func() { ran.Add(1) }))

	require.NoError(t, g.StopAndWait(context.Background()))
	require.Equal(t, int32(2), ran.Load())
}

func TestWorkerGroupRefusesAfterStop(t *testing.T) {
	var g WorkerGroup
	require.NoError(t, g.StopAndWait(context.Background()))
	require.False(t, g.Go(func() {}))
}

func TestWorkerGroupRefusesNil(t *testing.T) {
	var g WorkerGroup
	require.False(t, g.Go(nil))
}

func TestWorkerGroupStopTimeout(t *testing.T) {
	var g WorkerGroup
	release := make(chan struct{})
	g.Go(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, g.StopAndWait(ctx))

	close(release)
	require.NoError(t, g.StopAndWait(context.Background()))
}
