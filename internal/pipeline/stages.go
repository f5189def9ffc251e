package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dubwise/dubwise-backend/internal/broker"
	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/joblog"
	"github.com/dubwise/dubwise-backend/internal/stages"
	"github.com/dubwise/dubwise-backend/internal/stages/mix"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

// stageTable fixes the pipeline order, baselines, and successor tasks.
func (c *Coordinator) stageTable() []stageSpec {
	return []stageSpec{
		{
			stage:    domain.StageASR,
			baseline: 0.10,
			taskName: TaskASR,
			nextTask: TaskTranslate,
			ready: func(jc *jobContext) bool {
				return c.deps.WS.HasASR(jc.asset.ExternalID)
			},
			run: c.runASR,
		},
		{
			stage:    domain.StageTranslate,
			baseline: 0.30,
			taskName: TaskTranslate,
			nextTask: TaskTTS,
			ready: func(jc *jobContext) bool {
				return len(c.deps.WS.MissingTranslations(jc.asset.ExternalID, jc.langs)) == 0
			},
			run: c.runTranslate,
		},
		{
			stage:    domain.StageTTS,
			baseline: 0.55,
			taskName: TaskTTS,
			nextTask: TaskMix,
			ready: func(jc *jobContext) bool {
				return len(c.deps.WS.MissingTTS(jc.asset.ExternalID, jc.langs)) == 0
			},
			run: c.runTTS,
		},
		{
			stage:    domain.StageAlignMix,
			baseline: 0.75,
			taskName: TaskMix,
			nextTask: TaskPackage,
			ready: func(jc *jobContext) bool {
				return len(c.deps.WS.MissingMixes(jc.asset.ExternalID, jc.langs)) == 0
			},
			run: c.runMix,
		},
		{
			stage:    domain.StagePackage,
			baseline: 0.90,
			taskName: TaskPackage,
			nextTask: TaskFinalize,
			ready: func(jc *jobContext) bool {
				return len(workspace.MissingPackages(jc.asset, jc.langs)) == 0
			},
			run: c.runPackage,
		},
	}
}

// runASR downloads the raw source when needed, diarizes, transcribes, and
// mirrors the transcript into the segments table.
func (c *Coordinator) runASR(ctx context.Context, jc *jobContext) (map[string]any, error) {
	assetID := jc.asset.ExternalID
	sourcePath := c.deps.WS.SourceAudioPath(assetID)
	if !fileExists(sourcePath) {
		if rawKey, ok := jc.asset.StorageKey(domain.StorageRoleRaw); ok {
			if err := c.deps.Store.DownloadFile(ctx, c.deps.BucketRaw, c.rawObjectKey(rawKey), sourcePath); err != nil {
				jc.sink.Emit(string(domain.StageASR), joblog.EventWarn, "Source download failed, transcriber will stub", map[string]any{"error": err.Error()})
			}
		}
	}

	srcLang := ""
	if jc.asset.SrcLang != nil {
		srcLang = *jc.asset.SrcLang
	}

	turns := c.deps.ASR.Diarize(sourcePath)
	if doc, err := json.MarshalIndent(turns, "", "  "); err == nil {
		if err := workspace.AtomicWrite(c.deps.WS.DiarizationPath(assetID), doc); err != nil {
			c.log.Warn("Diarization artifact write failed", "assetId", assetID, "error", err)
		}
	}

	segs, err := c.deps.ASR.Transcribe(ctx, sourcePath, c.deps.WS.SegmentsSrcPath(assetID), srcLang, turns)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	rows := make([]domain.Segment, 0, len(segs))
	for _, seg := range segs {
		var speaker *string
		if seg.SpeakerID != "" {
			s := seg.SpeakerID
			speaker = &s
		}
		rows = append(rows, domain.Segment{
			Idx:       seg.Idx,
			SpeakerID: speaker,
			T0:        seg.T0,
			T1:        seg.T1,
			TextSrc:   seg.TextSrc,
		})
	}
	if err := c.deps.Segments.ReplaceForAsset(ctx, jc.asset.ID, rows); err != nil {
		return nil, fmt.Errorf("persist segments: %w", err)
	}

	return map[string]any{"segments": len(segs)}, nil
}

// runTranslate fills the per-language translation artifacts. A missing
// transcript is a permanent failure, not a retry.
func (c *Coordinator) runTranslate(ctx context.Context, jc *jobContext) (map[string]any, error) {
	assetID := jc.asset.ExternalID
	if !c.deps.WS.HasASR(assetID) {
		return nil, broker.Fatal("transcript missing for asset %s", assetID)
	}
	srcSegs, err := stages.ReadSourceSegments(c.deps.WS.SegmentsSrcPath(assetID))
	if err != nil {
		return nil, broker.Fatal("unreadable transcript for asset %s: %v", assetID, err)
	}

	srcLang := ""
	if jc.asset.SrcLang != nil {
		srcLang = *jc.asset.SrcLang
	}

	missing := toSet(c.deps.WS.MissingTranslations(assetID, jc.langs))
	langStatus := make(map[string]string, len(jc.langs))
	for _, lang := range jc.langs {
		if !missing[lang] {
			langStatus[lang] = "existing"
			continue
		}
		if _, err := c.deps.Translate.Translate(ctx, srcSegs, srcLang, lang, c.deps.WS.SegmentsTgtPath(assetID, lang)); err != nil {
			return nil, fmt.Errorf("translate %s: %w", lang, err)
		}
		langStatus[lang] = "success"
	}

	// Mirror the primary-language text into the segments table for the
	// transcript endpoint.
	primary := jc.langs[0]
	translated, err := stages.ReadTranslatedSegments(c.deps.WS.SegmentsTgtPath(assetID, primary))
	if err == nil {
		texts := make(map[int]string, len(translated))
		for _, seg := range translated {
			texts[seg.Idx] = seg.TextTgt
		}
		if err := c.deps.Segments.ApplyTranslations(ctx, jc.asset.ID, texts); err != nil {
			c.log.Warn("Persisting translations failed", "assetId", assetID, "error", err)
		}
	}

	return map[string]any{"languages": langStatus}, nil
}

// runTTS synthesizes per-language segment audio.
func (c *Coordinator) runTTS(ctx context.Context, jc *jobContext) (map[string]any, error) {
	assetID := jc.asset.ExternalID
	presets := jc.job.Presets.Data()

	missing := toSet(c.deps.WS.MissingTTS(assetID, jc.langs))
	langStatus := make(map[string]string, len(jc.langs))
	for _, lang := range jc.langs {
		if !missing[lang] {
			langStatus[lang] = "existing"
			continue
		}
		tgtPath := c.deps.WS.SegmentsTgtPath(assetID, lang)
		if !fileExists(tgtPath) {
			return nil, broker.Fatal("translation missing for asset %s lang %s", assetID, lang)
		}
		segs, err := stages.ReadTranslatedSegments(tgtPath)
		if err != nil {
			return nil, broker.Fatal("unreadable translation for asset %s lang %s: %v", assetID, lang, err)
		}
		paths, err := c.deps.TTS.Synthesize(ctx, segs, lang, presets, func(idx int) string {
			return c.deps.WS.SynthSegmentPath(assetID, lang, idx)
		})
		if err != nil {
			return nil, fmt.Errorf("synthesize %s: %w", lang, err)
		}
		if lang == jc.langs[0] {
			keys := make(map[int]string, len(segs))
			for i, seg := range segs {
				if i < len(paths) {
					keys[seg.Idx] = paths[i]
				}
			}
			if err := c.deps.Segments.ApplySynthKeys(ctx, jc.asset.ID, keys); err != nil {
				c.log.Warn("Persisting synth keys failed", "assetId", assetID, "error", err)
			}
		}
		langStatus[lang] = "success"
	}
	return map[string]any{"languages": langStatus}, nil
}

// runMix assembles the dubbed track per language.
func (c *Coordinator) runMix(ctx context.Context, jc *jobContext) (map[string]any, error) {
	assetID := jc.asset.ExternalID

	sourcePath := c.deps.WS.SourceAudioPath(assetID)
	if !fileExists(sourcePath) {
		sourcePath = ""
	}

	missing := toSet(c.deps.WS.MissingMixes(assetID, jc.langs))
	langStatus := make(map[string]string, len(jc.langs))
	for _, lang := range jc.langs {
		if !missing[lang] {
			langStatus[lang] = "existing"
			continue
		}
		tgtPath := c.deps.WS.SegmentsTgtPath(assetID, lang)
		if !fileExists(tgtPath) {
			return nil, broker.Fatal("translation missing for asset %s lang %s", assetID, lang)
		}
		segs, err := stages.ReadTranslatedSegments(tgtPath)
		if err != nil {
			return nil, broker.Fatal("unreadable translation for asset %s lang %s: %v", assetID, lang, err)
		}
		synthPaths := make([]string, len(segs))
		for i, seg := range segs {
			p := c.deps.WS.SynthSegmentPath(assetID, lang, seg.Idx)
			if !fileExists(p) {
				return nil, broker.Fatal("synth segment missing for asset %s lang %s idx %d", assetID, lang, seg.Idx)
			}
			synthPaths[i] = p
		}
		err = c.deps.Mix.Mix(ctx, mix.Input{
			Segments:       segs,
			SynthPaths:     synthPaths,
			SourcePath:     sourcePath,
			VoicePath:      c.deps.WS.VoiceTrackPath(assetID, lang),
			BackgroundPath: c.deps.WS.BackgroundTrackPath(assetID, lang),
			DubbedPath:     c.deps.WS.DubbedPath(assetID, lang),
		})
		if err != nil {
			return nil, fmt.Errorf("mix %s: %w", lang, err)
		}
		langStatus[lang] = "success"
	}
	return map[string]any{"languages": langStatus}, nil
}

// runPackage publishes per-language tracks and extends the asset's storage
// keys: public_<lang> always, public on first publish only.
func (c *Coordinator) runPackage(ctx context.Context, jc *jobContext) (map[string]any, error) {
	assetID := jc.asset.ExternalID

	missing := toSet(workspace.MissingPackages(jc.asset, jc.langs))
	langStatus := make(map[string]string, len(jc.langs))
	newKeys := make(map[string]string)
	for _, lang := range jc.langs {
		if !missing[lang] {
			langStatus[lang] = "existing"
			continue
		}
		dubbedPath := c.deps.WS.DubbedPath(assetID, lang)
		if !fileExists(dubbedPath) {
			return nil, broker.Fatal("dubbed track missing for asset %s lang %s", assetID, lang)
		}
		res, err := c.deps.Package.Publish(ctx, assetID, lang, dubbedPath)
		if err != nil {
			return nil, fmt.Errorf("publish %s: %w", lang, err)
		}
		newKeys[domain.PublicLangRole(lang)] = res.Audio
		if _, published := jc.asset.StorageKey(domain.StorageRolePublic); !published {
			if _, pending := newKeys[domain.StorageRolePublic]; !pending {
				newKeys[domain.StorageRolePublic] = res.Master
			}
		}
		langStatus[lang] = "success"
	}

	if len(newKeys) > 0 {
		updated, err := c.deps.Assets.MergeStorageKeys(ctx, assetID, newKeys)
		if err != nil {
			return nil, fmt.Errorf("record published keys: %w", err)
		}
		jc.asset = updated
	}
	return map[string]any{"languages": langStatus}, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
