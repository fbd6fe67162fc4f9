package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSixFieldSpec(t *testing.T) {
	r, err := New("pull", "0 */1 * * * *", func(context.Context) {})
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC), r.Next(base))
}

func TestParseFiveFieldAndDescriptor(t *testing.T) {
	r, err := New("pull", "0 6 1 * *", func(context.Context) {})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
		r.Next(time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)))

	_, err = New("pull", "@daily", func(context.Context) {})
	assert.NoError(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := New("pull", "every tuesday", func(context.Context) {})
	assert.Error(t, err)
}

func TestFireSkipsOverlappingRun(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	r, err := New("pull", "* * * * * *", func(context.Context) {
		calls.Add(1)
		<-release
	})
	require.NoError(t, err)

	assert.True(t, r.Fire(context.Background()))
	assert.False(t, r.Fire(context.Background()), "second firing must be skipped while first runs")

	close(release)
	r.Wait()
	assert.Equal(t, int32(1), calls.Load())

	assert.True(t, r.Fire(context.Background()), "firing allowed again after completion")
	r.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestFireRecoversPanic(t *testing.T) {
	r, err := New("pull", "* * * * * *", func(context.Context) { panic("boom") })
	require.NoError(t, err)

	assert.True(t, r.Fire(context.Background()))
	r.Wait()
	assert.True(t, r.Fire(context.Background()), "runner usable after a panicking job")
	r.Wait()
}

func TestRunFiresUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	r, err := New("pull", "* * * * * *", func(context.Context) { calls.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
