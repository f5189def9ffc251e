package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/stages"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

type Config struct {
	BaseURL  string
	Glossary map[string]string
	Timeout  time.Duration
}

// Worker translates segments through a LibreTranslate endpoint. When the
// service is unreachable it degrades to identity translation so the pipeline
// can complete; the real text can be produced on a retry run.
type Worker struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger
}

func NewWorker(cfg Config, baseLog *logger.Logger) *Worker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Worker{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    baseLog.With("service", "TranslateWorker"),
	}
}

// Translate writes segments_tgt.<lang>.json atomically and returns the
// translated segments.
func (w *Worker) Translate(ctx context.Context, segs []stages.SourceSegment, srcLang, targetLang, outPath string) ([]stages.TranslatedSegment, error) {
	out := make([]stages.TranslatedSegment, 0, len(segs))
	degraded := false
	for _, seg := range segs {
		text := w.applyGlossary(seg.TextSrc)
		translated, err := w.translateText(ctx, text, resolveSrcLang(seg, srcLang), targetLang)
		if err != nil {
			if !degraded {
				w.log.Warn("Translation service unavailable, using identity fallback", "lang", targetLang, "error", err)
				degraded = true
			}
			translated = text
		}
		out = append(out, stages.TranslatedSegment{
			Idx:       seg.Idx,
			T0:        seg.T0,
			T1:        seg.T1,
			TextSrc:   seg.TextSrc,
			TextTgt:   translated,
			SpeakerID: seg.SpeakerID,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode translated segments: %w", err)
	}
	if err := workspace.AtomicWrite(outPath, data); err != nil {
		return nil, err
	}
	return out, nil
}

// applyGlossary substitutes pinned terminology before the text reaches the
// MT engine.
func (w *Worker) applyGlossary(text string) string {
	for term, replacement := range w.cfg.Glossary {
		text = strings.ReplaceAll(text, term, replacement)
	}
	return text
}

func (w *Worker) translateText(ctx context.Context, text, srcLang, targetLang string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"q":      text,
		"source": srcLang,
		"target": targetLang,
		"format": "text",
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call translate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate returned %d", resp.StatusCode)
	}
	var body struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return body.TranslatedText, nil
}

func resolveSrcLang(seg stages.SourceSegment, fallback string) string {
	if seg.Lang != "" {
		return seg.Lang
	}
	if fallback != "" {
		return fallback
	}
	return "auto"
}
