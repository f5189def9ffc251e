package domain

import (
	"time"

	"gorm.io/datatypes"
)

// StageHistoryEntry is the most recent outcome recorded for one stage of a
// job. The slot is overwritten on every new attempt of that stage.
type StageHistoryEntry struct {
	Status    string         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	UpdatedAt string         `json:"updatedAt"`
}

type Job struct {
	ID           uint                                             `gorm:"primaryKey" json:"id"`
	ExternalID   string                                           `gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`
	AssetID      uint                                             `gorm:"column:asset_id;not null;index" json:"asset_id"`
	Stage        JobStage                                         `gorm:"column:stage;not null;index" json:"stage"`
	Status       JobStatus                                        `gorm:"column:status;not null;index" json:"status"`
	Progress     float64                                          `gorm:"column:progress;not null;default:0" json:"progress"`
	TargetLangs  datatypes.JSONSlice[string]                      `gorm:"column:target_langs" json:"target_langs"`
	Presets      datatypes.JSONType[map[string]string]            `gorm:"column:presets" json:"presets"`
	RequestedBy  *string                                          `gorm:"column:requested_by;index" json:"requested_by,omitempty"`
	StartedAt    *time.Time                                       `gorm:"column:started_at" json:"started_at,omitempty"`
	EndedAt      *time.Time                                       `gorm:"column:ended_at" json:"ended_at,omitempty"`
	FailedStage  *JobStage                                        `gorm:"column:failed_stage" json:"failed_stage,omitempty"`
	ErrorMessage *string                                          `gorm:"column:error_message" json:"error_message,omitempty"`
	LogsKey      *string                                          `gorm:"column:logs_key" json:"logs_key,omitempty"`
	StageHistory datatypes.JSONType[map[string]StageHistoryEntry] `gorm:"column:stage_history" json:"stage_history"`
	CreatedAt    time.Time                                        `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time                                        `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

// HistoryEntry returns the recorded outcome for a stage, if any.
func (j *Job) HistoryEntry(stage JobStage) (StageHistoryEntry, bool) {
	hist := j.StageHistory.Data()
	if hist == nil {
		return StageHistoryEntry{}, false
	}
	e, ok := hist[string(stage)]
	return e, ok
}
