package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/stages"
)

func testSegments() []stages.SourceSegment {
	return []stages.SourceSegment{
		{Idx: 0, T0: 0, T1: 2, TextSrc: "hello world", Lang: "en", SpeakerID: "spk0"},
		{Idx: 1, T0: 2, T1: 4, TextSrc: "goodbye", Lang: "en", SpeakerID: "spk0"},
	}
}

func newTestWorker(t *testing.T, cfg Config) *Worker {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return NewWorker(cfg, log)
}

func TestTranslate_UsesService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/translate", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "en", body["source"])
		require.Equal(t, "es", body["target"])
		json.NewEncoder(rw).Encode(map[string]string{"translatedText": "<es>" + body["q"]})
	}))
	defer srv.Close()

	w := newTestWorker(t, Config{BaseURL: srv.URL})
	outPath := filepath.Join(t.TempDir(), "segments_tgt.es.json")

	out, err := w.Translate(context.Background(), testSegments(), "en", "es", outPath)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "<es>hello world", out[0].TextTgt)
	require.Equal(t, "hello world", out[0].TextSrc)
	require.Equal(t, "spk0", out[0].SpeakerID)

	fromDisk, err := stages.ReadTranslatedSegments(outPath)
	require.NoError(t, err)
	require.Equal(t, out, fromDisk)
}

func TestTranslate_IdentityFallback(t *testing.T) {
	w := newTestWorker(t, Config{BaseURL: "http://127.0.0.1:1"})
	outPath := filepath.Join(t.TempDir(), "segments_tgt.es.json")

	out, err := w.Translate(context.Background(), testSegments(), "en", "es", outPath)
	require.NoError(t, err)
	require.Equal(t, "hello world", out[0].TextTgt)
	require.Equal(t, "goodbye", out[1].TextTgt)
}

func TestTranslate_GlossaryPreSubstitution(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		received = body["q"]
		json.NewEncoder(rw).Encode(map[string]string{"translatedText": body["q"]})
	}))
	defer srv.Close()

	w := newTestWorker(t, Config{
		BaseURL:  srv.URL,
		Glossary: map[string]string{"world": "mundo"},
	})
	outPath := filepath.Join(t.TempDir(), "segments_tgt.es.json")

	_, err := w.Translate(context.Background(), testSegments()[:1], "en", "es", outPath)
	require.NoError(t, err)
	require.True(t, strings.Contains(received, "mundo"))
}

func TestResolveSrcLang(t *testing.T) {
	require.Equal(t, "fr", resolveSrcLang(stages.SourceSegment{Lang: "fr"}, "en"))
	require.Equal(t, "en", resolveSrcLang(stages.SourceSegment{}, "en"))
	require.Equal(t, "auto", resolveSrcLang(stages.SourceSegment{}, ""))
}
