package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// AssetsHandler maps the files in the kiosk asset directory to their public
// URLs, so the UI can resolve item pictures by name instead of hardcoding
// paths.
type AssetsHandler struct {
	dir     string
	baseURL string
}

func NewAssetsHandler(dir, baseURL string) *AssetsHandler {
	return &AssetsHandler{dir: dir, baseURL: baseURL}
}

func (h *AssetsHandler) Manifest(ctx *gin.Context) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		RespondInternal(ctx, "Could not read assets")
		return
	}

	assets := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		key := strings.TrimSuffix(name, filepath.Ext(name))
		assets[key] = h.baseURL + "/ui-assets/" + name
	}

	ctx.JSON(http.StatusOK, gin.H{"assets": assets})
}
