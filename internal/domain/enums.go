package domain

import "strings"

type JobStage string

const (
	StageIngested  JobStage = "INGESTED"
	StageASR       JobStage = "ASR"
	StageTranslate JobStage = "TRANSLATE"
	StageTTS       JobStage = "TTS"
	StageAlignMix  JobStage = "ALIGN/MIX"
	StagePackage   JobStage = "PACKAGE"
	StagePublished JobStage = "PUBLISHED"
	StageDone      JobStage = "DONE"
)

type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusSuccess   JobStatus = "SUCCESS"
	StatusFailed    JobStatus = "FAILED"
	StatusCancelled JobStatus = "CANCELLED"
)

// StageOutcome values recorded in a job's stage history.
const (
	OutcomeStarted  = "started"
	OutcomeSuccess  = "success"
	OutcomeSkipped  = "skipped"
	OutcomeRetrying = "retrying"
	OutcomeFailed   = "failed"
)

var stageOrder = map[JobStage]int{
	StageASR:       1,
	StageTranslate: 2,
	StageTTS:       3,
	StageAlignMix:  4,
	StagePackage:   5,
	StageDone:      6,
}

// Order returns the position of the stage in the pipeline, or 0 for
// stages outside the runnable sequence (INGESTED, PUBLISHED, unknown).
func (s JobStage) Order() int {
	return stageOrder[s]
}

// ParseStage maps a wire value to a stage. "ALIGN_MIX" is accepted as a
// spelling of "ALIGN/MIX" since the slash is awkward in some clients.
func ParseStage(value string) (JobStage, bool) {
	v := strings.ToUpper(strings.TrimSpace(value))
	if v == "ALIGN_MIX" {
		return StageAlignMix, true
	}
	switch s := JobStage(v); s {
	case StageIngested, StageASR, StageTranslate, StageTTS, StageAlignMix, StagePackage, StagePublished, StageDone:
		return s, true
	}
	return "", false
}

func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func AllStatuses() []JobStatus {
	return []JobStatus{StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled}
}

func AllStages() []JobStage {
	return []JobStage{StageIngested, StageASR, StageTranslate, StageTTS, StageAlignMix, StagePackage, StagePublished, StageDone}
}

// PipelineStages is the runnable stage sequence in execution order.
func PipelineStages() []JobStage {
	return []JobStage{StageASR, StageTranslate, StageTTS, StageAlignMix, StagePackage}
}
