package packager

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/dubwise/dubwise-backend/internal/platform/logger"
	"github.com/dubwise/dubwise-backend/internal/storage"
)

// Result carries the published object keys, bucket-qualified.
type Result struct {
	Master string `json:"master"`
	Audio  string `json:"audio"`
}

// manifest is the master manifest document uploaded next to the audio.
type manifest struct {
	AssetID     string `json:"assetId"`
	Language    string `json:"language"`
	AudioObject string `json:"audioObject"`
}

type Worker struct {
	store  storage.ObjectStore
	bucket string
	log    *logger.Logger
}

func NewWorker(store storage.ObjectStore, publicBucket string, baseLog *logger.Logger) *Worker {
	return &Worker{
		store:  store,
		bucket: publicBucket,
		log:    baseLog.With("service", "PackageWorker"),
	}
}

// AudioKey is the bucket-relative location of the published track.
func (w *Worker) AudioKey(assetID, lang string) string {
	return path.Join(assetID, lang, "dubbed.wav")
}

// MasterKey is the bucket-relative location of the master manifest.
func (w *Worker) MasterKey(assetID string) string {
	return path.Join(assetID, "master.m3u8")
}

// Publish uploads the dubbed track and master manifest. On total object-store
// failure it degrades: the master key is left at the local path and the stage
// still succeeds, so operators can re-publish later.
func (w *Worker) Publish(ctx context.Context, assetID, lang, dubbedPath string) (Result, error) {
	audioKey := w.AudioKey(assetID, lang)
	masterKey := w.MasterKey(assetID)

	if err := w.store.UploadFile(ctx, w.bucket, audioKey, dubbedPath, "audio/wav"); err != nil {
		w.log.Warn("Publish degraded, audio upload failed", "assetId", assetID, "lang", lang, "error", err)
		return Result{Master: dubbedPath, Audio: dubbedPath}, nil
	}

	doc, err := json.MarshalIndent(manifest{
		AssetID:     assetID,
		Language:    lang,
		AudioObject: w.bucket + "/" + audioKey,
	}, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := w.store.UploadBytes(ctx, w.bucket, masterKey, doc, "application/vnd.apple.mpegurl"); err != nil {
		w.log.Warn("Publish degraded, manifest upload failed", "assetId", assetID, "error", err)
		return Result{Master: dubbedPath, Audio: w.bucket + "/" + audioKey}, nil
	}

	return Result{
		Master: w.bucket + "/" + masterKey,
		Audio:  w.bucket + "/" + audioKey,
	}, nil
}
