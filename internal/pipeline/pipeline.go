package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/dubwise/dubwise-backend/internal/broker"
	"github.com/dubwise/dubwise-backend/internal/data/repos/assets"
	"github.com/dubwise/dubwise-backend/internal/data/repos/jobs"
	"github.com/dubwise/dubwise-backend/internal/data/repos/segments"
	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/joblog"
	"github.com/dubwise/dubwise-backend/internal/observability"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/stages"
	"github.com/dubwise/dubwise-backend/internal/stages/mix"
	"github.com/dubwise/dubwise-backend/internal/stages/packager"
	"github.com/dubwise/dubwise-backend/internal/storage"
	"github.com/dubwise/dubwise-backend/internal/worker"
	"github.com/dubwise/dubwise-backend/internal/workspace"
)

// Task names carried on the broker.
const (
	TaskRun       = "pipeline.run"
	TaskASR       = "pipeline.asr"
	TaskTranslate = "pipeline.translate"
	TaskTTS       = "pipeline.tts"
	TaskMix       = "pipeline.mix"
	TaskPackage   = "pipeline.package"
	TaskFinalize  = "pipeline.finalize"
)

// DefaultLang applies when neither the job nor the asset names targets.
const DefaultLang = "es"

// Stage worker contracts. Tests substitute deterministic in-memory workers.
type ASRWorker interface {
	Diarize(sourcePath string) []stages.SpeakerTurn
	Transcribe(ctx context.Context, sourcePath, outPath, srcLang string, turns []stages.SpeakerTurn) ([]stages.SourceSegment, error)
}

type TranslateWorker interface {
	Translate(ctx context.Context, segs []stages.SourceSegment, srcLang, targetLang, outPath string) ([]stages.TranslatedSegment, error)
}

type TTSWorker interface {
	Synthesize(ctx context.Context, segs []stages.TranslatedSegment, lang string, jobPresets map[string]string, outPath func(idx int) string) ([]string, error)
}

type MixWorker interface {
	Mix(ctx context.Context, in mix.Input) error
}

type PackageWorker interface {
	Publish(ctx context.Context, assetID, lang, dubbedPath string) (packager.Result, error)
}

type Deps struct {
	Jobs     jobs.JobRepo
	Assets   assets.AssetRepo
	Segments segments.SegmentRepo
	Broker   broker.Broker
	Store    storage.ObjectStore
	WS       workspace.Workspace
	Metrics  *observability.Metrics
	Log      *logger.Logger

	ASR       ASRWorker
	Translate TranslateWorker
	TTS       TTSWorker
	Mix       MixWorker
	Package   PackageWorker

	BucketRaw       string
	BucketProcessed string
	Retry           broker.RetryPolicy
}

// Coordinator owns the stage table and the task handlers that walk a job
// through it.
type Coordinator struct {
	deps  Deps
	specs []stageSpec
	log   *logger.Logger
}

func NewCoordinator(deps Deps) *Coordinator {
	c := &Coordinator{
		deps: deps,
		log:  deps.Log.With("service", "PipelineCoordinator"),
	}
	c.specs = c.stageTable()
	return c
}

// Register binds every pipeline task to the worker registry under the shared
// retry policy.
func (c *Coordinator) Register(registry *worker.Registry) {
	registry.Register(TaskRun, c.deps.Retry, c.handleRun)
	for _, spec := range c.specs {
		registry.Register(spec.taskName, c.deps.Retry, c.stageHandler(spec))
	}
	registry.Register(TaskFinalize, c.deps.Retry, c.handleFinalize)
}

// jobContext is everything a stage invocation needs, loaded fresh from the
// database at task entry.
type jobContext struct {
	job    *domain.Job
	asset  *domain.Asset
	langs  []string
	resume domain.JobStage
	sink   *joblog.Sink
}

func (c *Coordinator) loadContext(ctx context.Context, task *broker.Task) (*jobContext, error) {
	jobID := task.StringArg("jobId")
	job, err := c.deps.Jobs.GetByExternalID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, broker.Fatal("job %s not found", jobID)
	}
	asset, err := c.deps.Assets.GetByID(ctx, job.AssetID)
	if err != nil {
		return nil, fmt.Errorf("load asset %d: %w", job.AssetID, err)
	}
	if asset == nil {
		return nil, broker.Fatal("asset %d for job %s not found", job.AssetID, jobID)
	}

	langs := []string(job.TargetLangs)
	if len(langs) == 0 {
		langs = []string(asset.TargetLangs)
	}
	if len(langs) == 0 {
		langs = []string{DefaultLang}
	}

	resume := domain.StageASR
	if parsed, ok := domain.ParseStage(task.StringArg("resumeFrom")); ok && parsed.Order() > 0 {
		resume = parsed
	}

	sink, err := joblog.NewSink(
		c.deps.WS.JobLogPath(asset.ExternalID, job.ExternalID),
		job.ExternalID, asset.ExternalID, c.deps.Log,
	)
	if err != nil {
		return nil, fmt.Errorf("bind job log: %w", err)
	}

	return &jobContext{job: job, asset: asset, langs: langs, resume: resume, sink: sink}, nil
}

// enqueueNext passes resumeFrom through so downstream skip decisions see the
// original request.
func (c *Coordinator) enqueueNext(ctx context.Context, taskName string, prev *broker.Task) error {
	next := broker.NewTask(taskName, map[string]any{
		"jobId":      prev.StringArg("jobId"),
		"resumeFrom": prev.StringArg("resumeFrom"),
	})
	if err := c.deps.Broker.Enqueue(ctx, next); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskName, err)
	}
	return nil
}

// handleRun is the pipeline entry: it moves the job out of PENDING and hands
// off to the ASR stage.
func (c *Coordinator) handleRun(ctx context.Context, task *broker.Task, _ broker.RetryState) error {
	jc, err := c.loadContext(ctx, task)
	if err != nil {
		return err
	}
	jobID := jc.job.ExternalID
	if jc.job.Status == domain.StatusCancelled {
		jc.sink.Emit(string(domain.StageIngested), joblog.EventSkip, "Job cancelled before start", map[string]any{"reason": "cancelled"})
		return nil
	}
	if _, ok := jc.asset.StorageKey(domain.StorageRoleRaw); !ok {
		msg := "asset has no raw upload"
		failed := domain.StageIngested
		if _, err := c.deps.Jobs.UpdateStage(ctx, jobID, jobs.StageUpdate{
			Stage:        domain.StageIngested,
			Status:       domain.StatusFailed,
			Progress:     0.01,
			ErrorMessage: &msg,
			FailedStage:  &failed,
		}); err != nil {
			return err
		}
		jc.sink.Emit(string(domain.StageIngested), joblog.EventFailed, msg, nil)
		return broker.Fatal("%s", msg)
	}

	if _, err := c.deps.Jobs.UpdateStage(ctx, jobID, jobs.StageUpdate{
		Stage:    domain.StageIngested,
		Status:   domain.StatusRunning,
		Progress: 0.01,
	}); err != nil {
		return err
	}
	jc.sink.Emit(string(domain.StageIngested), joblog.EventStart, "Pipeline started", map[string]any{
		"resumeFrom": string(jc.resume),
		"languages":  jc.langs,
	})
	return c.enqueueNext(ctx, TaskASR, task)
}

// handleFinalize uploads the job log and marks the job done. Log upload
// failures never fail the job.
func (c *Coordinator) handleFinalize(ctx context.Context, task *broker.Task, _ broker.RetryState) error {
	jc, err := c.loadContext(ctx, task)
	if err != nil {
		return err
	}
	jobID := jc.job.ExternalID
	if jc.job.Status == domain.StatusCancelled {
		jc.sink.Emit(string(domain.StageDone), joblog.EventSkip, "Job cancelled, skipping finalize", map[string]any{"reason": "cancelled"})
		return nil
	}

	jc.sink.Emit(string(domain.StageDone), joblog.EventEnd, "Pipeline finished", nil)

	logPath := jc.sink.Path()
	logKey := path.Join(jc.asset.ExternalID, "logs", jc.job.ExternalID+".jsonl")
	if _, statErr := os.Stat(logPath); statErr == nil {
		if upErr := c.deps.Store.UploadFile(ctx, c.deps.BucketProcessed, logKey, logPath, "application/x-ndjson"); upErr != nil {
			c.log.Warn("Job log upload failed, leaving logs_key empty", "jobId", jobID, "error", upErr)
		} else {
			qualified := c.deps.BucketProcessed + "/" + logKey
			if dbErr := c.deps.Jobs.UpdateLogsKey(ctx, jobID, &qualified); dbErr != nil {
				c.log.Warn("Persisting logs_key failed", "jobId", jobID, "error", dbErr)
			}
		}
	}

	_, err = c.deps.Jobs.UpdateStage(ctx, jobID, jobs.StageUpdate{
		Stage:    domain.StageDone,
		Status:   domain.StatusSuccess,
		Progress: 1.0,
	})
	return err
}

// rawObjectKey strips the bucket qualifier from a stored raw key.
func (c *Coordinator) rawObjectKey(qualified string) string {
	return strings.TrimPrefix(qualified, c.deps.BucketRaw+"/")
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
