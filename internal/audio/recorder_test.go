package audio

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestWAVRecorderSchedulesAndFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.wav")
	rec := NewWAVRecorder(path, 1000)
	clock := rec.opened
	rec.now = func() time.Time { return clock }

	require.NoError(t, rec.Play(0, constant(100, 0.5)))
	require.NoError(t, rec.Play(200*time.Millisecond, constant(10, 0.25)))
	got := rec.Samples()
	require.Len(t, got, 210)
	assert.Equal(t, float32(0), got[150], "gap is padded with silence")
	assert.Equal(t, float32(0.25), got[205])

	clock = clock.Add(50 * time.Millisecond)
	require.NoError(t, rec.Flush())
	assert.Len(t, rec.Samples(), 50, "flush drops audio scheduled after now")

	require.NoError(t, rec.Close())
	require.ErrorIs(t, rec.Play(0, constant(1, 0.1)), ErrDeviceClosed)
	require.NoError(t, rec.Close(), "second close is a no-op")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	samples, rate, err := ReadWAV(f)
	require.NoError(t, err)
	assert.Equal(t, 1000, rate)
	assert.Equal(t, constant(50, 0.5), samples)
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	_, _, err := ReadWAV(bytes.NewReader([]byte("definitely not a riff header, but long enough to fill one")))
	require.ErrorIs(t, err, ErrNotWAV)
}

func TestWriteWAVHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWAV(&buf, constant(4, 0), 24000))
	raw := buf.Bytes()
	require.Len(t, raw, 44+8)
	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, "data", string(raw[36:40]))
}

func TestRecordingOpenerRequiresPath(t *testing.T) {
	_, err := RecordingOpener{}.OpenPlayback(context.Background(), PlaybackSampleRate)
	require.Error(t, err)

	dev, err := RecordingOpener{Path: filepath.Join(t.TempDir(), "out.wav")}.OpenPlayback(context.Background(), PlaybackSampleRate)
	require.NoError(t, err)
	require.NoError(t, dev.Close())
}
