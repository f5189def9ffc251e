package asr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dubwise/dubwise-backend/internal/audio"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/stages"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return NewWorker(Config{Model: "small", Device: "cpu", ComputeType: "int8"}, log)
}

func writeSource(t *testing.T, dir string, seconds float64) string {
	t.Helper()
	path := filepath.Join(dir, "source.wav")
	clip := audio.Tone(220, seconds, 16000)
	require.NoError(t, workspace.AtomicWrite(path, audio.EncodeWAV(clip)))
	return path
}

func TestTranscribe_StubSegments(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorker(t)
	source := writeSource(t, dir, 6.0)
	outPath := filepath.Join(dir, "asr", "segments_src.json")

	turns := w.Diarize(source)
	require.Len(t, turns, 1)
	require.Equal(t, "spk0", turns[0].Speaker)

	segs, err := w.Transcribe(context.Background(), source, outPath, "en", turns)
	require.NoError(t, err)
	require.Len(t, segs, 3)

	for i, seg := range segs {
		require.Equal(t, i, seg.Idx)
		require.Equal(t, "spk0", seg.SpeakerID)
		require.Equal(t, "en", seg.Lang)
		require.Less(t, seg.T0, seg.T1)
	}
	require.InDelta(t, 6.0, segs[2].T1, 0.01)

	// Artifact is readable through the shared decoder.
	fromDisk, err := stages.ReadSourceSegments(outPath)
	require.NoError(t, err)
	require.Equal(t, segs, fromDisk)
}

func TestTranscribe_Deterministic(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorker(t)
	source := writeSource(t, dir, 5.0)
	outPath := filepath.Join(dir, "segments_src.json")

	_, err := w.Transcribe(context.Background(), source, outPath, "en", nil)
	require.NoError(t, err)
	first, err := os.ReadFile(outPath)
	require.NoError(t, err)

	_, err = w.Transcribe(context.Background(), source, outPath, "en", nil)
	require.NoError(t, err)
	second, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestTranscribe_MissingSourceStillStubs(t *testing.T) {
	dir := t.TempDir()
	w := newTestWorker(t)
	outPath := filepath.Join(dir, "segments_src.json")

	segs, err := w.Transcribe(context.Background(), filepath.Join(dir, "nope.wav"), outPath, "", nil)
	require.NoError(t, err)
	require.NotEmpty(t, segs)
	require.Equal(t, "en", segs[0].Lang)
}

func TestAssignSpeakers(t *testing.T) {
	segs := []stages.SourceSegment{
		{Idx: 0, T0: 0, T1: 2},
		{Idx: 1, T0: 2, T1: 4},
	}
	turns := []stages.SpeakerTurn{
		{Speaker: "spk0", T0: 0, T1: 2},
		{Speaker: "spk1", T0: 2, T1: 4},
	}
	got := assignSpeakers(segs, turns)
	require.Equal(t, "spk0", got[0].SpeakerID)
	require.Equal(t, "spk1", got[1].SpeakerID)
}
