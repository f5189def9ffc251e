package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/dubwise/dubwise-backend/internal/http/response"
	"github.com/dubwise/dubwise-backend/internal/services"
)

type AssetHandler struct {
	assets *services.AssetService
}

func NewAssetHandler(assets *services.AssetService) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// GET /v1/assets/:id
func (h *AssetHandler) GetAsset(c *gin.Context) {
	view, err := h.assets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// GET /v1/assets/:id/hls/master.m3u8
func (h *AssetHandler) GetMasterPlaylist(c *gin.Context) {
	assetID := c.Param("id")
	url, err := h.assets.MasterPlaylistURL(c.Request.Context(), assetID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assetId": assetID, "masterUrl": url})
}
