package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/dubwise/dubwise-backend/internal/broker"
	"github.com/dubwise/dubwise-backend/internal/data/repos/assets"
	"github.com/dubwise/dubwise-backend/internal/data/repos/jobs"
	"github.com/dubwise/dubwise-backend/internal/data/repos/testutil"
	"github.com/dubwise/dubwise-backend/internal/domain"
	httpH "github.com/dubwise/dubwise-backend/internal/http/handlers"
	httpMW "github.com/dubwise/dubwise-backend/internal/http/middleware"
	"github.com/dubwise/dubwise-backend/internal/observability"
	"github.com/dubwise/dubwise-backend/internal/pipeline"
	"github.com/dubwise/dubwise-backend/internal/services"
	"github.com/dubwise/dubwise-backend/internal/storage"
)

type routerEnv struct {
	engine *gin.Engine
	broker *broker.MemoryBroker
	store  *storage.MemoryStore
	assets assets.AssetRepo
	jobs   jobs.JobRepo
}

type routerOpts struct {
	apiKeys      []string
	ratePerMin   int
	maxActive    int
	allowedLangs []string
}

func newRouterEnv(t *testing.T, opts routerOpts) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, log := testutil.OpenTestDB(t)

	if opts.maxActive == 0 {
		opts.maxActive = 5
	}
	if opts.allowedLangs == nil {
		opts.allowedLangs = []string{"en", "es", "fr", "de"}
	}

	env := &routerEnv{
		broker: broker.NewMemoryBroker(),
		store:  storage.NewMemoryStore(),
		assets: assets.NewAssetRepo(db, log),
		jobs:   jobs.NewJobRepo(db, log),
	}
	metrics := observability.NewMetrics()

	jobSvc := services.NewJobService(env.jobs, env.assets, env.broker, opts.allowedLangs, opts.maxActive, log)
	assetSvc := services.NewAssetService(env.assets, env.store, "pub", time.Hour, log)
	uploadSvc := services.NewUploadService(env.assets, env.store, "raw", 8<<20, 1<<30, time.Hour, log)
	metricsSvc := services.NewMetricsService(env.jobs, metrics, log)

	env.engine = NewRouter(RouterConfig{
		APIPrefix:      "/v1",
		AuthMiddleware: httpMW.NewAuthMiddleware("X-API-Key", opts.apiKeys, log),
		RateLimiter:    httpMW.NewRateLimiter(opts.ratePerMin, log),
		Log:            log,
		UploadHandler:  httpH.NewUploadHandler(uploadSvc),
		AssetHandler:   httpH.NewAssetHandler(assetSvc),
		JobHandler:     httpH.NewJobHandler(jobSvc),
		MetricsHandler: httpH.NewMetricsHandler(metricsSvc, metrics, log),
		HealthHandler:  httpH.NewHealthHandler(),
	})
	return env
}

func (e *routerEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func (e *routerEnv) seedAsset(t *testing.T, langs []string) *domain.Asset {
	t.Helper()
	src := "en"
	asset := &domain.Asset{
		ExternalID:  uuid.NewString(),
		SrcLang:     &src,
		TargetLangs: datatypes.NewJSONSlice(langs),
	}
	asset.SetStorageKey(domain.StorageRoleRaw, "raw/"+asset.ExternalID+"/demo.wav")
	require.NoError(t, e.assets.Create(context.Background(), asset))
	return asset
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRouter_Health(t *testing.T) {
	env := newRouterEnv(t, routerOpts{})
	rec := env.do(t, "GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AuthRequired(t *testing.T) {
	env := newRouterEnv(t, routerOpts{apiKeys: []string{"secret-key"}})

	rec := env.do(t, "GET", "/v1/jobs", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, "GET", "/v1/jobs", nil, map[string]string{"X-API-Key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, "GET", "/v1/jobs", nil, map[string]string{"X-API-Key": "secret-key"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Health and metrics bypass auth.
	rec = env.do(t, "GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, "GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_NoKeysMeansAnonymous(t *testing.T) {
	env := newRouterEnv(t, routerOpts{})
	rec := env.do(t, "GET", "/v1/jobs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	env := newRouterEnv(t, routerOpts{ratePerMin: 2})

	require.Equal(t, http.StatusOK, env.do(t, "GET", "/v1/jobs", nil, nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, "GET", "/v1/jobs", nil, nil).Code)
	require.Equal(t, http.StatusTooManyRequests, env.do(t, "GET", "/v1/jobs", nil, nil).Code)
}

func TestRouter_UploadFlow(t *testing.T) {
	env := newRouterEnv(t, routerOpts{})

	rec := env.do(t, "POST", "/v1/upload/init", gin.H{"filename": "demo.wav", "sizeBytes": 1024}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assetID := body["assetId"].(string)
	require.NotEmpty(t, assetID)
	require.Equal(t, "raw/"+assetID+"/demo.wav", body["key"])
	parts := body["parts"].([]any)
	require.Len(t, parts, 1)

	// Complete before the PUT lands.
	rec = env.do(t, "POST", "/v1/upload/complete", gin.H{"assetId": assetID, "srcLang": "en", "targetLangs": []string{"es"}}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.NoError(t, env.store.UploadBytes(context.Background(), "raw", assetID+"/demo.wav", []byte("riff"), "audio/wav"))
	rec = env.do(t, "POST", "/v1/upload/complete", gin.H{"assetId": assetID, "srcLang": "en", "targetLangs": []string{"es"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CreateJob(t *testing.T) {
	env := newRouterEnv(t, routerOpts{})
	asset := env.seedAsset(t, []string{"es"})

	rec := env.do(t, "POST", "/v1/jobs/translate", gin.H{"assetId": asset.ExternalID, "targetLangs": []string{"es"}}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "ASR", body["stage"])
	require.Equal(t, "PENDING", body["status"])

	task, err := env.broker.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, pipeline.TaskRun, task.Name)

	// Unknown asset and unsupported language map to 404 and 422.
	rec = env.do(t, "POST", "/v1/jobs/translate", gin.H{"assetId": "missing"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, "POST", "/v1/jobs/translate", gin.H{"assetId": asset.ExternalID, "targetLangs": []string{"xx"}}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errBody := decodeBody(t, rec)
	msg := errBody["error"].(map[string]any)["message"].(string)
	require.Equal(t, "Unsupported language requested: xx", msg)
}

func TestRouter_QuotaReturns429(t *testing.T) {
	env := newRouterEnv(t, routerOpts{apiKeys: []string{"key-x"}, maxActive: 1})
	asset := env.seedAsset(t, []string{"es"})
	headers := map[string]string{"X-API-Key": "key-x"}

	rec := env.do(t, "POST", "/v1/jobs/translate", gin.H{"assetId": asset.ExternalID}, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "POST", "/v1/jobs/translate", gin.H{"assetId": asset.ExternalID}, headers)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRouter_JobLifecycle(t *testing.T) {
	env := newRouterEnv(t, routerOpts{})
	asset := env.seedAsset(t, []string{"es"})

	rec := env.do(t, "POST", "/v1/jobs/translate", gin.H{"assetId": asset.ExternalID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decodeBody(t, rec)["jobId"].(string)

	rec = env.do(t, "GET", "/v1/jobs/"+jobID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "POST", "/v1/jobs/"+jobID+"/retry", gin.H{"resumeFrom": "ALIGN/MIX"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ALIGN/MIX", decodeBody(t, rec)["stage"])

	rec = env.do(t, "DELETE", "/v1/jobs/"+jobID, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, "GET", "/v1/jobs/"+jobID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "CANCELLED", decodeBody(t, rec)["status"])

	// Cancelling a finished job is a 400.
	done := env.do(t, "POST", "/v1/jobs/translate", gin.H{"assetId": asset.ExternalID}, nil)
	doneID := decodeBody(t, done)["jobId"].(string)
	_, err := env.jobs.UpdateStage(context.Background(), doneID, jobs.StageUpdate{
		Stage:    domain.StageDone,
		Status:   domain.StatusSuccess,
		Progress: 1.0,
	})
	require.NoError(t, err)
	rec = env.do(t, "DELETE", "/v1/jobs/"+doneID, nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_AssetEndpoints(t *testing.T) {
	env := newRouterEnv(t, routerOpts{})

	rec := env.do(t, "GET", "/v1/assets/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	asset := env.seedAsset(t, []string{"es"})
	_, err := env.assets.MergeStorageKeys(context.Background(), asset.ExternalID, map[string]string{
		domain.StorageRolePublic: "pub/" + asset.ExternalID + "/master.m3u8",
	})
	require.NoError(t, err)

	rec = env.do(t, "GET", "/v1/assets/"+asset.ExternalID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	outputs := body["outputs"].(map[string]any)
	require.Contains(t, outputs["hls"], "master.m3u8")

	rec = env.do(t, "GET", "/v1/assets/"+asset.ExternalID+"/hls/master.m3u8", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	require.Equal(t, asset.ExternalID, body["assetId"])
	require.NotEmpty(t, body["masterUrl"])
}

func TestRouter_MetricsExposition(t *testing.T) {
	env := newRouterEnv(t, routerOpts{})
	asset := env.seedAsset(t, []string{"es"})
	rec := env.do(t, "POST", "/v1/jobs/translate", gin.H{"assetId": asset.ExternalID}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `jobs_total{status="PENDING"} 1`)
}
