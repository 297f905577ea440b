package capture_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/capture/capturetest"
	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/retrieval/errs"
)

func openSession(t *testing.T, mic capture.Microphone, opts ...capture.SessionOption) *capture.Session {
	t.Helper()
	opts = append(opts, capture.WithLogger(logger.Discard()))
	s, err := capture.Open(context.Background(), mic, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func receive(t *testing.T, ch <-chan capture.Result) capture.Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk")
		return capture.Result{}
	}
}

func TestSessionChunkLifecycle(t *testing.T) {
	mic := &capturetest.Microphone{}
	s := openSession(t, mic)
	assert.Equal(t, capture.StateIdle, s.State())

	require.NoError(t, s.BeginChunk())
	assert.Equal(t, capture.StateRecording, s.State())

	ch, err := s.EndChunk()
	require.NoError(t, err)

	res := receive(t, ch)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Chunk.Seq)
	assert.Equal(t, s.ID(), res.Chunk.SessionID)
	assert.Equal(t, "audio.wav", res.Chunk.Filename)

	require.Eventually(t, func() bool { return s.State() == capture.StateIdle }, time.Second, 5*time.Millisecond)
}

func TestBeginChunkWhileRecording(t *testing.T) {
	s := openSession(t, &capturetest.Microphone{})

	require.NoError(t, s.BeginChunk())
	err := s.BeginChunk()
	assert.ErrorIs(t, err, errs.ErrAlreadyRecording)
}

func TestFlushingSessionCannotRestart(t *testing.T) {
	mic := &capturetest.Microphone{Hold: true}
	s := openSession(t, mic)

	require.NoError(t, s.BeginChunk())
	ch, err := s.EndChunk()
	require.NoError(t, err)
	assert.Equal(t, capture.StateFlushing, s.State())

	assert.ErrorIs(t, s.BeginChunk(), errs.ErrFlushing)
	_, err = s.EndChunk()
	assert.ErrorIs(t, err, errs.ErrFlushing)

	mic.Release()
	receive(t, ch)
	require.Eventually(t, func() bool { return s.State() == capture.StateIdle }, time.Second, 5*time.Millisecond)
	assert.NoError(t, s.BeginChunk())
	assert.Equal(t, 2, mic.Begins())
}

func TestEndChunkWhenIdle(t *testing.T) {
	s := openSession(t, &capturetest.Microphone{})
	_, err := s.EndChunk()
	assert.ErrorIs(t, err, errs.ErrNotRecording)
}

func TestCloseIsIdempotentAndReleasesOnce(t *testing.T) {
	mic := &capturetest.Microphone{}
	s := openSession(t, mic)
	require.NoError(t, s.BeginChunk())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, capture.StateClosed, s.State())
	assert.Equal(t, 1, mic.Closes())
	assert.Equal(t, 0, mic.OpenStreams())
	assert.ErrorIs(t, s.BeginChunk(), errs.ErrSessionClosed)
}

func TestOpenPropagatesPermissionDenied(t *testing.T) {
	mic := &capturetest.Microphone{OpenErr: errs.ErrPermissionDenied}
	_, err := capture.Open(context.Background(), mic, capture.WithLogger(logger.Discard()))
	assert.ErrorIs(t, err, errs.ErrPermissionDenied)
}

func TestOpenWrapsUnknownErrors(t *testing.T) {
	mic := &capturetest.Microphone{OpenErr: errors.New("no such device")}
	_, err := capture.Open(context.Background(), mic, capture.WithLogger(logger.Discard()))
	assert.ErrorIs(t, err, errs.ErrDeviceUnavailable)
}

func TestLockFileExcludesSecondSession(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "mic.lock")
	mic := &capturetest.Microphone{}

	first, err := capture.Open(context.Background(), mic, capture.WithLockFile(lockPath), capture.WithLogger(logger.Discard()))
	require.NoError(t, err)

	_, err = capture.Open(context.Background(), mic, capture.WithLockFile(lockPath), capture.WithLogger(logger.Discard()))
	assert.ErrorIs(t, err, errs.ErrDeviceUnavailable)
	assert.Equal(t, 1, mic.Opens(), "second open must not touch the device")

	require.NoError(t, first.Close())

	second, err := capture.Open(context.Background(), mic, capture.WithLockFile(lockPath), capture.WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}
