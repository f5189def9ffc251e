package domain

// Segment is one ASR utterance of an asset, ordered densely by Idx.
// TextTgt and WavTgtKey are filled by the Translate and TTS stages.
type Segment struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	AssetID   uint     `gorm:"column:asset_id;not null;index" json:"asset_id"`
	Idx       int      `gorm:"column:idx;not null;index" json:"idx"`
	SpeakerID *string  `gorm:"column:speaker_id;index" json:"speaker_id,omitempty"`
	T0        float64  `gorm:"column:t0;not null" json:"t0"`
	T1        float64  `gorm:"column:t1;not null" json:"t1"`
	TextSrc   string   `gorm:"column:text_src;not null" json:"text_src"`
	TextTgt   *string  `gorm:"column:text_tgt" json:"text_tgt,omitempty"`
	WavTgtKey *string  `gorm:"column:wav_tgt_key" json:"wav_tgt_key,omitempty"`
}

func (Segment) TableName() string { return "segments" }
