package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"

	"github.com/dubwise/dubwise-backend/internal/audio"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/stages"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

// stubSegmentSec is the utterance length the stub transcriber emits.
const stubSegmentSec = 2.5

type Config struct {
	Command     string
	Model       string
	Device      string
	ComputeType string
	ModelDir    string
}

// Worker produces the transcript artifact. With no external command
// configured it emits deterministic stub segments sized from the source
// audio, so the pipeline stays runnable without a speech model.
type Worker struct {
	cfg Config
	log *logger.Logger
}

func NewWorker(cfg Config, baseLog *logger.Logger) *Worker {
	return &Worker{cfg: cfg, log: baseLog.With("service", "ASRWorker")}
}

// Diarize assigns speaker turns for the source audio. The built-in pass is a
// single-speaker stub covering the full duration.
func (w *Worker) Diarize(sourcePath string) []stages.SpeakerTurn {
	duration := sourceDuration(sourcePath)
	return []stages.SpeakerTurn{{Speaker: "spk0", T0: 0, T1: duration}}
}

// Transcribe writes segments_src.json atomically and returns the segments.
func (w *Worker) Transcribe(ctx context.Context, sourcePath, outPath, srcLang string, turns []stages.SpeakerTurn) ([]stages.SourceSegment, error) {
	var (
		segs []stages.SourceSegment
		err  error
	)
	if w.cfg.Command != "" {
		segs, err = w.runCommand(ctx, sourcePath)
		if err != nil {
			return nil, err
		}
	} else {
		segs = w.stubSegments(sourcePath, srcLang)
	}
	segs = assignSpeakers(segs, turns)

	data, err := json.MarshalIndent(segs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode segments: %w", err)
	}
	if err := workspace.AtomicWrite(outPath, data); err != nil {
		return nil, err
	}
	return segs, nil
}

// runCommand invokes the external transcriber, expected to print a JSON
// array of segments on stdout.
func (w *Worker) runCommand(ctx context.Context, sourcePath string) ([]stages.SourceSegment, error) {
	args := []string{sourcePath, "--model", w.cfg.Model, "--device", w.cfg.Device, "--compute-type", w.cfg.ComputeType}
	if w.cfg.ModelDir != "" {
		args = append(args, "--model-dir", w.cfg.ModelDir)
	}
	cmd := exec.CommandContext(ctx, w.cfg.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("asr command: %w: %s", err, stderr.String())
	}
	var segs []stages.SourceSegment
	if err := json.Unmarshal(stdout.Bytes(), &segs); err != nil {
		return nil, fmt.Errorf("decode asr output: %w", err)
	}
	return segs, nil
}

// stubSegments slices the source duration into fixed-length utterances with
// deterministic placeholder text.
func (w *Worker) stubSegments(sourcePath, srcLang string) []stages.SourceSegment {
	duration := sourceDuration(sourcePath)
	count := int(math.Ceil(duration / stubSegmentSec))
	if count < 1 {
		count = 1
	}
	lang := srcLang
	if lang == "" {
		lang = "en"
	}
	w.log.Warn("No transcriber configured, emitting stub segments", "count", count)
	segs := make([]stages.SourceSegment, count)
	for i := 0; i < count; i++ {
		t0 := float64(i) * stubSegmentSec
		t1 := t0 + stubSegmentSec
		if t1 > duration {
			t1 = duration
		}
		segs[i] = stages.SourceSegment{
			Idx:     i,
			T0:      t0,
			T1:      t1,
			TextSrc: fmt.Sprintf("[auto] segment %d", i),
			Lang:    lang,
		}
	}
	return segs
}

// assignSpeakers labels each segment with the turn covering its midpoint.
func assignSpeakers(segs []stages.SourceSegment, turns []stages.SpeakerTurn) []stages.SourceSegment {
	if len(turns) == 0 {
		return segs
	}
	for i := range segs {
		mid := (segs[i].T0 + segs[i].T1) / 2
		segs[i].SpeakerID = turns[0].Speaker
		for _, turn := range turns {
			if mid >= turn.T0 && mid < turn.T1 {
				segs[i].SpeakerID = turn.Speaker
				break
			}
		}
	}
	return segs
}

// sourceDuration reads the WAV duration, defaulting to a short clip when the
// source is absent or not decodable.
func sourceDuration(sourcePath string) float64 {
	clip, err := audio.ReadWAVFile(sourcePath)
	if err != nil || clip.Duration() == 0 {
		return 3 * stubSegmentSec
	}
	return clip.Duration()
}
