package mix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/dubwise/dubwise-backend/internal/audio"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/stages"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

// bedAttenuation keeps the untreated source audible under the voice track
// when no vocal separation runs.
const bedAttenuation = 0.5

type Config struct {
	UseDemucs      bool
	DemucsCommand  string
	DemucsModel    string
	VoiceGain      float64
	BackgroundGain float64
	TargetLoudness float64
}

type Input struct {
	Segments       []stages.TranslatedSegment
	SynthPaths     []string
	SourcePath     string
	VoicePath      string
	BackgroundPath string
	DubbedPath     string
}

// Worker assembles the dubbed track: synth segments placed at their t0 on a
// 48 kHz mono voice bed, summed with a background track, loudness-normalised.
type Worker struct {
	cfg Config
	log *logger.Logger
}

func NewWorker(cfg Config, baseLog *logger.Logger) *Worker {
	return &Worker{cfg: cfg, log: baseLog.With("service", "MixWorker")}
}

func (w *Worker) Mix(ctx context.Context, in Input) error {
	voice, err := w.buildVoiceTrack(in)
	if err != nil {
		return err
	}
	background := w.buildBackgroundTrack(ctx, in.SourcePath, len(voice.Samples))

	if err := workspace.AtomicWrite(in.VoicePath, audio.EncodeWAV(voice)); err != nil {
		return err
	}
	if err := workspace.AtomicWrite(in.BackgroundPath, audio.EncodeWAV(background)); err != nil {
		return err
	}

	mixed := audio.NewClip(audio.MixRate, 0)
	audio.ApplyGain(voice, w.cfg.VoiceGain)
	audio.ApplyGain(background, w.cfg.BackgroundGain)
	if err := audio.MixInto(mixed, voice); err != nil {
		return err
	}
	if err := audio.MixInto(mixed, background); err != nil {
		return err
	}
	audio.NormalizeLoudness(mixed, w.cfg.TargetLoudness)
	return workspace.AtomicWrite(in.DubbedPath, audio.EncodeWAV(mixed))
}

// buildVoiceTrack places each synth segment at its t0 and sums overlaps.
func (w *Worker) buildVoiceTrack(in Input) (*audio.Clip, error) {
	if len(in.SynthPaths) != len(in.Segments) {
		return nil, fmt.Errorf("segment/synth count mismatch: %d vs %d", len(in.Segments), len(in.SynthPaths))
	}
	var end float64
	for _, seg := range in.Segments {
		if seg.T1 > end {
			end = seg.T1
		}
	}
	track := audio.NewClip(audio.MixRate, end)
	for i, seg := range in.Segments {
		clip, err := audio.ReadWAVFile(in.SynthPaths[i])
		if err != nil {
			return nil, fmt.Errorf("read synth %s: %w", in.SynthPaths[i], err)
		}
		clip = audio.Resample(clip, audio.MixRate)
		if err := audio.PlaceAt(track, clip, seg.T0); err != nil {
			return nil, err
		}
	}
	return track, nil
}

// buildBackgroundTrack extracts a bed from the source: demucs when enabled
// and working, otherwise the attenuated source, otherwise silence.
func (w *Worker) buildBackgroundTrack(ctx context.Context, sourcePath string, minSamples int) *audio.Clip {
	if sourcePath != "" {
		if w.cfg.UseDemucs {
			if clip, err := w.runDemucs(ctx, sourcePath); err == nil {
				return audio.Resample(clip, audio.MixRate)
			} else {
				w.log.Warn("Demucs separation failed, using attenuated source", "error", err)
			}
		}
		if clip, err := audio.ReadWAVFile(sourcePath); err == nil {
			clip = audio.Resample(clip, audio.MixRate)
			audio.ApplyGain(clip, bedAttenuation)
			return clip
		}
	}
	silent := &audio.Clip{SampleRate: audio.MixRate, Samples: make([]float64, minSamples)}
	return silent
}

// runDemucs shells out to the separator and loads its no_vocals stem.
func (w *Worker) runDemucs(ctx context.Context, sourcePath string) (*audio.Clip, error) {
	outDir, err := os.MkdirTemp("", "demucs-*")
	if err != nil {
		return nil, fmt.Errorf("demucs temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, w.cfg.DemucsCommand,
		"--two-stems", "vocals",
		"-n", w.cfg.DemucsModel,
		"-o", outDir,
		sourcePath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("demucs: %w: %s", err, stderr.String())
	}

	matches, err := globNoVocals(outDir)
	if err != nil {
		return nil, err
	}
	return audio.ReadWAVFile(matches)
}
