package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dubwise/dubwise-backend/internal/audio"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/stages"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

// Tempo correction bounds: synthesized speech is stretched to fit its slot
// but never by more than 10% either way.
const (
	minTempo = 0.90
	maxTempo = 1.10
)

// voicePreset tunes synthesis per configured preset name.
type voicePreset struct {
	toneFreq    float64
	lengthScale float64
}

var presets = map[string]voicePreset{
	"female_bright": {toneFreq: 260, lengthScale: 0.95},
	"elderly_male":  {toneFreq: 160, lengthScale: 1.12},
	"default":       {toneFreq: 180, lengthScale: 1.0},
}

func presetFor(name string) voicePreset {
	if p, ok := presets[name]; ok {
		return p
	}
	return presets["default"]
}

type Config struct {
	Engine       string
	PiperCommand string
	ModelDir     string
	Voices       map[string]string
}

// Worker synthesizes one WAV per translated segment. With piper unavailable
// (or the voice model file absent) it falls back to a preset-pitched tone of
// the segment's length, keeping downstream stages runnable.
type Worker struct {
	cfg Config
	log *logger.Logger
}

func NewWorker(cfg Config, baseLog *logger.Logger) *Worker {
	return &Worker{cfg: cfg, log: baseLog.With("service", "TTSWorker")}
}

// ResolveVoice picks the preset for a segment:
// presets[speaker] or presets["default"] or the raw speaker id.
func ResolveVoice(jobPresets map[string]string, speakerID string) string {
	if v, ok := jobPresets[speakerID]; ok && v != "" {
		return v
	}
	if v, ok := jobPresets["default"]; ok && v != "" {
		return v
	}
	return speakerID
}

// Synthesize writes seg_XXXX.wav files in idx order and returns their paths.
func (w *Worker) Synthesize(ctx context.Context, segs []stages.TranslatedSegment, lang string, jobPresets map[string]string, outDir func(idx int) string) ([]string, error) {
	paths := make([]string, 0, len(segs))
	for _, seg := range segs {
		voice := ResolveVoice(jobPresets, seg.SpeakerID)
		path := outDir(seg.Idx)
		clip, err := w.synthesizeSegment(ctx, seg, lang, voice)
		if err != nil {
			return nil, fmt.Errorf("synthesize segment %d: %w", seg.Idx, err)
		}
		clip = fitToSlot(clip, seg.T1-seg.T0)
		if err := workspace.AtomicWrite(path, audio.EncodeWAV(clip)); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (w *Worker) synthesizeSegment(ctx context.Context, seg stages.TranslatedSegment, lang, voice string) (*audio.Clip, error) {
	if modelPath, ok := w.voiceModel(lang); ok && w.cfg.PiperCommand != "" {
		clip, err := w.runPiper(ctx, seg.TextTgt, modelPath, voice)
		if err == nil {
			return clip, nil
		}
		w.log.Warn("Piper synthesis failed, using tone fallback", "segment", seg.Idx, "error", err)
	}
	return w.toneFallback(seg, voice), nil
}

// voiceModel resolves the per-language model file; a missing file means
// fallback, not failure.
func (w *Worker) voiceModel(lang string) (string, bool) {
	rel, ok := w.cfg.Voices[lang]
	if !ok || rel == "" {
		return "", false
	}
	path := rel
	if !filepath.IsAbs(path) && w.cfg.ModelDir != "" {
		path = filepath.Join(w.cfg.ModelDir, rel)
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (w *Worker) runPiper(ctx context.Context, text, modelPath, voice string) (*audio.Clip, error) {
	tmp, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp synth file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	scale := presetFor(voice).lengthScale
	cmd := exec.CommandContext(ctx, w.cfg.PiperCommand,
		"--model", modelPath,
		"--length-scale", fmt.Sprintf("%.2f", scale),
		"--output_file", tmpName,
	)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("piper: %w: %s", err, stderr.String())
	}
	clip, err := audio.ReadWAVFile(tmpName)
	if err != nil {
		return nil, fmt.Errorf("read piper output: %w", err)
	}
	return audio.Resample(clip, audio.MixRate), nil
}

// toneFallback emits a preset-pitched sine filling the segment slot.
func (w *Worker) toneFallback(seg stages.TranslatedSegment, voice string) *audio.Clip {
	dur := seg.T1 - seg.T0
	if dur <= 0 {
		dur = 0.5
	}
	return audio.Tone(presetFor(voice).toneFreq, dur, audio.MixRate)
}

// fitToSlot stretches the clip toward the slot duration, clamped to the
// tempo bounds. Clips already close enough are returned as-is.
func fitToSlot(clip *audio.Clip, slotSec float64) *audio.Clip {
	if slotSec <= 0 || clip.Duration() == 0 {
		return clip
	}
	factor := slotSec / clip.Duration()
	if factor > maxTempo {
		factor = maxTempo
	} else if factor < minTempo {
		factor = minTempo
	}
	if factor == 1.0 {
		return clip
	}
	return audio.Stretch(clip, factor)
}
