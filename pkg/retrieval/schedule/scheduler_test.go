package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/models"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture/capturetest"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/errs"
)

type harness struct {
	clock  *clockwork.FakeClock
	mic    *capturetest.Microphone
	sched  *Scheduler
	chunks chan models.Chunk
}

func newHarness(t *testing.T, mic *capturetest.Microphone) *harness {
	t.Helper()
	if mic == nil {
		mic = &capturetest.Microphone{}
	}
	h := &harness{
		clock:  clockwork.NewFakeClock(),
		mic:    mic,
		chunks: make(chan models.Chunk, 16),
	}
	h.sched = New(mic, func(c models.Chunk) { h.chunks <- c },
		WithClock(h.clock),
		WithLogger(logger.Discard()),
	)
	t.Cleanup(func() { h.sched.Stop() })
	return h
}

// advance waits until the scheduler has armed its timer, then moves the
// clock forward.
func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1), "no timer armed")
	h.clock.Advance(d)
}

func (h *harness) chunk(t *testing.T) models.Chunk {
	t.Helper()
	select {
	case c := <-h.chunks:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched chunk")
		return models.Chunk{}
	}
}

func (h *harness) noChunk(t *testing.T) {
	t.Helper()
	select {
	case c := <-h.chunks:
		t.Fatalf("unexpected chunk %d dispatched", c.Seq)
	case <-time.After(100 * time.Millisecond):
	}
}

func continuous() Config {
	return Config{Mode: Continuous, Segment: 5 * time.Second, Settle: time.Second}
}

func TestContinuousCycleTiming(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sched.Start(context.Background(), continuous()))
	assert.Equal(t, 1, h.mic.Begins())
	assert.Equal(t, Capturing, h.sched.Status().State)

	// t=5s: chunk 1 ends and is dispatched.
	h.advance(t, 5*time.Second)
	assert.Equal(t, 1, h.chunk(t).Seq)
	assert.Equal(t, 1, h.mic.Ends())

	// t=6s: settle elapsed, chunk 2 begins.
	h.advance(t, time.Second)
	require.Eventually(t, func() bool { return h.mic.Begins() == 2 }, time.Second, 5*time.Millisecond)

	// t=11s: chunk 2 dispatched.
	h.advance(t, 5*time.Second)
	assert.Equal(t, 2, h.chunk(t).Seq)
}

func TestContinuousStopMidSegment(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sched.Start(context.Background(), continuous()))

	h.advance(t, 5*time.Second)
	h.chunk(t)
	h.advance(t, time.Second)
	require.Eventually(t, func() bool { return h.mic.Begins() == 2 }, time.Second, 5*time.Millisecond)

	// t=7s: stop while chunk 2 is recording.
	h.advance(t, time.Second)
	require.NoError(t, h.sched.Stop())

	h.clock.Advance(20 * time.Second)
	h.noChunk(t)
	assert.Equal(t, 2, h.mic.Begins(), "no chunk 3 may begin")
	assert.Equal(t, 0, h.mic.OpenStreams())
	assert.Equal(t, Stopped, h.sched.Status().State)
}

func TestStopDuringSettleDelay(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.sched.Start(context.Background(), continuous()))

	h.advance(t, 5*time.Second)
	h.chunk(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	require.Eventually(t, func() bool { return h.sched.Status().State == Cooling }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.sched.Stop())
	h.clock.Advance(5 * time.Second)

	assert.Never(t, func() bool { return h.mic.Begins() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSingleShotCountdown(t *testing.T) {
	h := newHarness(t, nil)
	cfg := Config{Mode: SingleShot, Countdown: 5 * time.Second}
	require.NoError(t, h.sched.Start(context.Background(), cfg))
	assert.Equal(t, 5, h.sched.Status().Remaining)

	for i := 0; i < 5; i++ {
		h.advance(t, time.Second)
	}

	c := h.chunk(t)
	assert.Equal(t, 1, c.Seq)
	require.Eventually(t, func() bool { return h.sched.Status().State == Stopped }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.mic.Ends())
	assert.Equal(t, 0, h.mic.OpenStreams())

	h.clock.Advance(10 * time.Second)
	h.noChunk(t)

	var ticks []int
	for {
		select {
		case ev := <-h.sched.Events():
			if ev.Type == EventCountdown {
				ticks = append(ticks, ev.Remaining)
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, []int{5, 4, 3, 2, 1, 0}, ticks)
}

func TestFlushAfterStopIsDropped(t *testing.T) {
	mic := &capturetest.Microphone{Hold: true}
	h := newHarness(t, mic)
	require.NoError(t, h.sched.Start(context.Background(), continuous()))

	h.advance(t, 5*time.Second)
	require.Eventually(t, func() bool { return mic.Ends() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.sched.Stop())
	mic.Release()
	h.noChunk(t)
}

func TestStopWaitsForRunningHandler(t *testing.T) {
	clock := clockwork.NewFakeClock()
	entered := make(chan struct{})
	release := make(chan struct{})
	var handled atomic.Bool
	sched := New(&capturetest.Microphone{}, func(models.Chunk) {
		close(entered)
		<-release
		handled.Store(true)
	}, WithClock(clock), WithLogger(logger.Discard()))
	t.Cleanup(func() { sched.Stop() })

	require.NoError(t, sched.Start(context.Background(), continuous()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(5 * time.Second)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("chunk was never handed over")
	}

	// Given the handler is still running, Stop must not return before it.
	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()
	select {
	case <-stopped:
		t.Fatal("Stop returned while the handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}
	assert.True(t, handled.Load())
	assert.Equal(t, Stopped, sched.Status().State)
}

func TestCaptureErrorTearsDown(t *testing.T) {
	mic := &capturetest.Microphone{FlushErr: errs.New(errs.CodeDeviceUnavailable, "device unplugged", nil)}
	h := newHarness(t, mic)
	require.NoError(t, h.sched.Start(context.Background(), continuous()))

	h.advance(t, 5*time.Second)
	require.Eventually(t, func() bool { return h.sched.Status().State == Stopped }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, mic.OpenStreams())

	h.clock.Advance(10 * time.Second)
	h.noChunk(t)
	assert.Equal(t, 1, mic.Begins(), "no automatic retry")

	var sawError bool
	for len(h.sched.Events()) > 0 {
		if ev := <-h.sched.Events(); ev.Type == EventError {
			sawError = true
			assert.ErrorIs(t, ev.Err, errs.ErrDeviceUnavailable)
		}
	}
	assert.True(t, sawError)
}

func TestStartPermissionDenied(t *testing.T) {
	mic := &capturetest.Microphone{OpenErr: errs.ErrPermissionDenied}
	h := newHarness(t, mic)

	err := h.sched.Start(context.Background(), continuous())
	assert.ErrorIs(t, err, errs.ErrPermissionDenied)
	assert.Equal(t, Stopped, h.sched.Status().State)
	assert.False(t, h.sched.Status().Active)
}

func TestAtMostOneSessionOpen(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		mode := continuous()
		if i%2 == 1 {
			mode = Config{Mode: SingleShot, Countdown: 3 * time.Second}
		}
		require.NoError(t, h.sched.Start(ctx, mode))
		if i%3 == 0 {
			require.NoError(t, h.sched.Stop())
		}
	}
	require.NoError(t, h.sched.Stop())

	assert.Equal(t, 1, h.mic.MaxOpen())
	assert.Equal(t, 0, h.mic.OpenStreams())
	assert.Equal(t, 20, h.mic.Opens())
}

func TestConcurrentStartStop(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				h.sched.Start(ctx, continuous())
			} else {
				h.sched.Stop()
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, h.sched.Stop())

	assert.Equal(t, 1, h.mic.MaxOpen())
	assert.Equal(t, 0, h.mic.OpenStreams())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Mode: SingleShot, Countdown: 500 * time.Millisecond}.Validate())
	assert.Error(t, Config{Mode: Continuous}.Validate())
	assert.Error(t, Config{Mode: Continuous, Segment: time.Second, Settle: -time.Second}.Validate())
	assert.Error(t, Config{Mode: Mode(9)}.Validate())
}
