// Package stages holds the wire types shared by the stage workers: the
// segment records exchanged through the asset workspace as JSON artifacts.
package stages

import (
	"encoding/json"
	"fmt"
	"os"
)

// SourceSegment is one transcribed utterance, as written to
// asr/segments_src.json.
type SourceSegment struct {
	Idx       int     `json:"idx"`
	T0        float64 `json:"t0"`
	T1        float64 `json:"t1"`
	TextSrc   string  `json:"text_src"`
	Lang      string  `json:"lang,omitempty"`
	SpeakerID string  `json:"speakerId,omitempty"`
}

// TranslatedSegment is one translated utterance, as written to
// translations/segments_tgt.<lang>.json.
type TranslatedSegment struct {
	Idx       int     `json:"idx"`
	T0        float64 `json:"t0"`
	T1        float64 `json:"t1"`
	TextSrc   string  `json:"text_src"`
	TextTgt   string  `json:"text_tgt"`
	SpeakerID string  `json:"speakerId,omitempty"`
}

// SpeakerTurn is one diarized interval, as written to
// diarization/speakers.json.
type SpeakerTurn struct {
	Speaker string  `json:"speaker"`
	T0      float64 `json:"t0"`
	T1      float64 `json:"t1"`
}

func ReadSourceSegments(path string) ([]SourceSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source segments: %w", err)
	}
	var segs []SourceSegment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, fmt.Errorf("decode source segments: %w", err)
	}
	return segs, nil
}

func ReadTranslatedSegments(path string) ([]TranslatedSegment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read translated segments: %w", err)
	}
	var segs []TranslatedSegment
	if err := json.Unmarshal(data, &segs); err != nil {
		return nil, fmt.Errorf("decode translated segments: %w", err)
	}
	return segs, nil
}
