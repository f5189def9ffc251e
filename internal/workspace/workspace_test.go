package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/dubwise/dubwise-backend/internal/domain"
)

func TestPaths(t *testing.T) {
	w := New("data")
	require.Equal(t, filepath.Join("data", "proc", "abc", "asr", "segments_src.json"), w.SegmentsSrcPath("abc"))
	require.Equal(t, filepath.Join("data", "proc", "abc", "translations", "segments_tgt.es.json"), w.SegmentsTgtPath("abc", "es"))
	require.Equal(t, filepath.Join("data", "proc", "abc", "tts", "es", "seg_0007.wav"), w.SynthSegmentPath("abc", "es", 7))
	require.Equal(t, filepath.Join("data", "proc", "abc", "mix", "es", "dubbed.wav"), w.DubbedPath("abc", "es"))
	require.Equal(t, filepath.Join("data", "proc", "abc", "logs", "job1.jsonl"), w.JobLogPath("abc", "job1"))
	require.Equal(t, filepath.Join("data", "pub", "abc"), w.PublicDir("abc"))
}

func TestPredicates(t *testing.T) {
	w := New(t.TempDir())
	langs := []string{"es", "fr"}

	require.False(t, w.HasASR("abc"))
	require.Equal(t, langs, w.MissingTranslations("abc", langs))
	require.Equal(t, langs, w.MissingTTS("abc", langs))
	require.Equal(t, langs, w.MissingMixes("abc", langs))

	require.NoError(t, AtomicWrite(w.SegmentsSrcPath("abc"), []byte("[]")))
	require.True(t, w.HasASR("abc"))

	require.NoError(t, AtomicWrite(w.SegmentsTgtPath("abc", "es"), []byte("[]")))
	require.Equal(t, []string{"fr"}, w.MissingTranslations("abc", langs))

	// An empty TTS directory still counts as missing.
	require.NoError(t, os.MkdirAll(w.TTSDir("abc", "es"), 0o755))
	require.Equal(t, langs, w.MissingTTS("abc", langs))
	require.NoError(t, AtomicWrite(w.SynthSegmentPath("abc", "es", 0), []byte("wav")))
	require.Equal(t, []string{"fr"}, w.MissingTTS("abc", langs))

	require.NoError(t, AtomicWrite(w.DubbedPath("abc", "fr"), []byte("wav")))
	require.Equal(t, []string{"es"}, w.MissingMixes("abc", langs))
}

func TestMissingPackages(t *testing.T) {
	asset := &domain.Asset{
		StorageKeys: datatypes.NewJSONType(map[string]string{
			domain.PublicLangRole("es"): "pub/abc/es/dubbed.wav",
		}),
	}
	require.Equal(t, []string{"fr"}, MissingPackages(asset, []string{"es", "fr"}))
	require.Empty(t, MissingPackages(asset, []string{"es"}))
}

func TestAtomicWriteReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	require.NoError(t, AtomicWrite(path, []byte("one")))
	require.NoError(t, AtomicWrite(path, []byte("two")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "two", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
