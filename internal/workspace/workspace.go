package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dubwise/dubwise-backend/internal/domain"
)

// Workspace resolves the canonical on-disk location of every stage artifact.
// It never writes artifacts itself; stage workers own the contents.
type Workspace struct {
	ProcRoot string
	PubRoot  string
}

func New(dataDir string) Workspace {
	return Workspace{
		ProcRoot: filepath.Join(dataDir, "proc"),
		PubRoot:  filepath.Join(dataDir, "pub"),
	}
}

func (w Workspace) AssetDir(assetID string) string {
	return filepath.Join(w.ProcRoot, assetID)
}

func (w Workspace) SourceAudioPath(assetID string) string {
	return filepath.Join(w.AssetDir(assetID), "source.wav")
}

func (w Workspace) DiarizationPath(assetID string) string {
	return filepath.Join(w.AssetDir(assetID), "diarization", "speakers.json")
}

func (w Workspace) SegmentsSrcPath(assetID string) string {
	return filepath.Join(w.AssetDir(assetID), "asr", "segments_src.json")
}

func (w Workspace) SegmentsTgtPath(assetID, lang string) string {
	return filepath.Join(w.AssetDir(assetID), "translations", fmt.Sprintf("segments_tgt.%s.json", lang))
}

func (w Workspace) TTSDir(assetID, lang string) string {
	return filepath.Join(w.AssetDir(assetID), "tts", lang)
}

func (w Workspace) SynthSegmentPath(assetID, lang string, idx int) string {
	return filepath.Join(w.TTSDir(assetID, lang), fmt.Sprintf("seg_%04d.wav", idx))
}

func (w Workspace) MixDir(assetID, lang string) string {
	return filepath.Join(w.AssetDir(assetID), "mix", lang)
}

func (w Workspace) DubbedPath(assetID, lang string) string {
	return filepath.Join(w.MixDir(assetID, lang), "dubbed.wav")
}

func (w Workspace) VoiceTrackPath(assetID, lang string) string {
	return filepath.Join(w.MixDir(assetID, lang), fmt.Sprintf("voice_%s.wav", lang))
}

func (w Workspace) BackgroundTrackPath(assetID, lang string) string {
	return filepath.Join(w.MixDir(assetID, lang), fmt.Sprintf("background_%s.wav", lang))
}

func (w Workspace) JobLogPath(assetID, jobID string) string {
	return filepath.Join(w.AssetDir(assetID), "logs", jobID+".jsonl")
}

func (w Workspace) PublicDir(assetID string) string {
	return filepath.Join(w.PubRoot, assetID)
}

// HasASR reports whether the transcript artifact exists.
func (w Workspace) HasASR(assetID string) bool {
	return fileExists(w.SegmentsSrcPath(assetID))
}

// MissingTranslations returns the languages with no translated segment file.
func (w Workspace) MissingTranslations(assetID string, langs []string) []string {
	var missing []string
	for _, lang := range langs {
		if !fileExists(w.SegmentsTgtPath(assetID, lang)) {
			missing = append(missing, lang)
		}
	}
	return missing
}

// MissingTTS returns the languages with no synthesized segments. An existing
// but empty directory counts as missing.
func (w Workspace) MissingTTS(assetID string, langs []string) []string {
	var missing []string
	for _, lang := range langs {
		matches, err := filepath.Glob(filepath.Join(w.TTSDir(assetID, lang), "seg_*.wav"))
		if err != nil || len(matches) == 0 {
			missing = append(missing, lang)
		}
	}
	return missing
}

// MissingMixes returns the languages with no dubbed track.
func (w Workspace) MissingMixes(assetID string, langs []string) []string {
	var missing []string
	for _, lang := range langs {
		if !fileExists(w.DubbedPath(assetID, lang)) {
			missing = append(missing, lang)
		}
	}
	return missing
}

// MissingPackages asks the asset which languages were never published.
func MissingPackages(asset *domain.Asset, langs []string) []string {
	var missing []string
	for _, lang := range langs {
		if _, ok := asset.StorageKey(domain.PublicLangRole(lang)); !ok {
			missing = append(missing, lang)
		}
	}
	return missing
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// AtomicWrite writes data via a temp file in the destination directory and
// renames it into place, so concurrent retries racing on the same path never
// observe a torn artifact.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename artifact into place: %w", err)
	}
	return nil
}
