package mix

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dubwise/dubwise-backend/internal/audio"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/stages"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

func testConfig() Config {
	return Config{
		VoiceGain:      1.0,
		BackgroundGain: 0.35,
		TargetLoudness: -16.0,
	}
}

func writeClip(t *testing.T, path string, clip *audio.Clip) {
	t.Helper()
	require.NoError(t, workspace.AtomicWrite(path, audio.EncodeWAV(clip)))
}

func TestMix_ProducesAllTracks(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)
	w := NewWorker(testConfig(), log)
	ws := workspace.New(t.TempDir())

	segs := []stages.TranslatedSegment{
		{Idx: 0, T0: 0.5, T1: 1.5},
		{Idx: 1, T0: 2.0, T1: 3.0},
	}
	synthPaths := make([]string, len(segs))
	for i, seg := range segs {
		synthPaths[i] = ws.SynthSegmentPath("abc", "es", i)
		writeClip(t, synthPaths[i], audio.Tone(260, seg.T1-seg.T0, audio.MixRate))
	}
	sourcePath := ws.SourceAudioPath("abc")
	writeClip(t, sourcePath, audio.Tone(110, 3.0, 16000))

	in := Input{
		Segments:       segs,
		SynthPaths:     synthPaths,
		SourcePath:     sourcePath,
		VoicePath:      ws.VoiceTrackPath("abc", "es"),
		BackgroundPath: ws.BackgroundTrackPath("abc", "es"),
		DubbedPath:     ws.DubbedPath("abc", "es"),
	}
	require.NoError(t, w.Mix(context.Background(), in))

	dubbed, err := audio.ReadWAVFile(in.DubbedPath)
	require.NoError(t, err)
	require.Equal(t, audio.MixRate, dubbed.SampleRate)
	require.GreaterOrEqual(t, dubbed.Duration(), 3.0)
	require.InDelta(t, -16.0, audio.MeasureLoudness(dubbed), 1.5)

	voice, err := audio.ReadWAVFile(in.VoicePath)
	require.NoError(t, err)
	// Voice bed is silent before the first segment.
	for _, s := range voice.Samples[:audio.MixRate/4] {
		require.Zero(t, s)
	}
	_, err = audio.ReadWAVFile(in.BackgroundPath)
	require.NoError(t, err)

	require.Empty(t, ws.MissingMixes("abc", []string{"es"}))
}

func TestMix_NoSourceUsesSilentBed(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)
	w := NewWorker(testConfig(), log)
	ws := workspace.New(t.TempDir())

	segs := []stages.TranslatedSegment{{Idx: 0, T0: 0, T1: 1}}
	synth := ws.SynthSegmentPath("abc", "es", 0)
	writeClip(t, synth, audio.Tone(200, 1.0, audio.MixRate))

	in := Input{
		Segments:       segs,
		SynthPaths:     []string{synth},
		VoicePath:      ws.VoiceTrackPath("abc", "es"),
		BackgroundPath: ws.BackgroundTrackPath("abc", "es"),
		DubbedPath:     ws.DubbedPath("abc", "es"),
	}
	require.NoError(t, w.Mix(context.Background(), in))

	background, err := audio.ReadWAVFile(in.BackgroundPath)
	require.NoError(t, err)
	for _, s := range background.Samples {
		require.Zero(t, s)
	}
}

func TestMix_CountMismatch(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)
	w := NewWorker(testConfig(), log)

	in := Input{
		Segments:   []stages.TranslatedSegment{{Idx: 0, T0: 0, T1: 1}},
		SynthPaths: nil,
		DubbedPath: "unused",
	}
	require.Error(t, w.Mix(context.Background(), in))
}

func TestMix_Deterministic(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)
	w := NewWorker(testConfig(), log)
	ws := workspace.New(t.TempDir())

	segs := []stages.TranslatedSegment{{Idx: 0, T0: 0.25, T1: 1.25}}
	synth := ws.SynthSegmentPath("abc", "es", 0)
	writeClip(t, synth, audio.Tone(260, 1.0, audio.MixRate))

	in := Input{
		Segments:       segs,
		SynthPaths:     []string{synth},
		VoicePath:      ws.VoiceTrackPath("abc", "es"),
		BackgroundPath: ws.BackgroundTrackPath("abc", "es"),
		DubbedPath:     ws.DubbedPath("abc", "es"),
	}
	require.NoError(t, w.Mix(context.Background(), in))
	first, err := os.ReadFile(in.DubbedPath)
	require.NoError(t, err)

	require.NoError(t, w.Mix(context.Background(), in))
	second, err := os.ReadFile(in.DubbedPath)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
