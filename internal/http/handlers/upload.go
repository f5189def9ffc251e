package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dubwise/dubwise-backend/internal/http/middleware"
	"github.com/dubwise/dubwise-backend/internal/http/response"
	"github.com/dubwise/dubwise-backend/internal/services"
)

type UploadHandler struct {
	uploads *services.UploadService
}

func NewUploadHandler(uploads *services.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

type uploadInitRequest struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
}

type uploadCompleteRequest struct {
	AssetID     string   `json:"assetId" binding:"required"`
	SrcLang     string   `json:"srcLang"`
	TargetLangs []string `json:"targetLangs"`
}

// POST /v1/upload/init
func (h *UploadHandler) Init(c *gin.Context) {
	var req uploadInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	var userID *string
	if id := middleware.ClientID(c); id != middleware.AnonymousClient {
		userID = &id
	}
	init, err := h.uploads.Init(c.Request.Context(), req.Filename, req.SizeBytes, userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, init)
}

// POST /v1/upload/complete
func (h *UploadHandler) Complete(c *gin.Context) {
	var req uploadCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	asset, err := h.uploads.Complete(c.Request.Context(), req.AssetID, req.SrcLang, req.TargetLangs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"assetId":     asset.ExternalID,
		"srcLang":     asset.SrcLang,
		"targetLangs": []string(asset.TargetLangs),
	})
}
