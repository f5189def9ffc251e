package joblog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

// Event names emitted on the per-job log stream.
const (
	EventStart   = "START"
	EventSuccess = "SUCCESS"
	EventFailed  = "FAILED"
	EventSkip    = "SKIP"
	EventRetry   = "RETRY"
	EventError   = "ERROR"
	EventWarn    = "WARN"
	EventEnd     = "END"
)

// Sink appends one JSON document per line to a job's log file and mirrors
// each event to the process logger. It is an explicit value threaded through
// stage invocations; there is no ambient per-task binding.
type Sink struct {
	mu      sync.Mutex
	path    string
	jobID   string
	assetID string
	log     *logger.Logger
}

func NewSink(path, jobID, assetID string, baseLog *logger.Logger) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Sink{
		path:    path,
		jobID:   jobID,
		assetID: assetID,
		log:     baseLog.With("jobId", jobID, "assetId", assetID),
	}, nil
}

func (s *Sink) Path() string { return s.path }

// Emit records one event. Extras merge into the JSON document at the top
// level; reserved field names are not overridable.
func (s *Sink) Emit(stage, event, message string, extras map[string]any) {
	doc := make(map[string]any, len(extras)+6)
	for k, v := range extras {
		doc[k] = v
	}
	doc["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	doc["jobId"] = s.jobID
	doc["assetId"] = s.assetID
	doc["stage"] = stage
	doc["event"] = event
	doc["message"] = message

	line, err := json.Marshal(doc)
	if err != nil {
		s.log.Warn("Dropping unencodable log event", "stage", stage, "event", event, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.log.Warn("Cannot open job log file", "path", s.path, "error", err)
	} else {
		if _, err := f.Write(append(line, '\n')); err != nil {
			s.log.Warn("Cannot append job log event", "path", s.path, "error", err)
		}
		f.Close()
	}

	kvs := []interface{}{"stage", stage, "event", event}
	for k, v := range extras {
		kvs = append(kvs, k, v)
	}
	switch event {
	case EventFailed, EventError:
		s.log.Error(message, kvs...)
	case EventRetry, EventWarn:
		s.log.Warn(message, kvs...)
	default:
		s.log.Info(message, kvs...)
	}
}

// StageTimer measures elapsed stage time on the monotonic clock.
type StageTimer struct {
	start time.Time
}

func StartTimer() *StageTimer {
	return &StageTimer{start: time.Now()}
}

func (t *StageTimer) DurationMs() int64 {
	return time.Since(t.start).Milliseconds()
}

func (t *StageTimer) Duration() time.Duration {
	return time.Since(t.start)
}
