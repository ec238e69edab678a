package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"

	id "georef/pkg/domain"
	"georef/pkg/platform/httputil"
	"georef/pkg/requestcontext"
)

// HandleExport serves the GCP file of an image as a download, gzip-encoded
// when the client accepts it.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, err := id.ParseImageID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	file, err := h.service.ExportGCPs(ctx, imageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="gcps-%s.json"`, imageID))
	w.Header().Add("Vary", "Accept-Encoding")

	if !acceptsGzip(r) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(file)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(http.StatusOK)
	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(file); err != nil {
		h.logger.WarnContext(ctx, "failed to write gcp export",
			"request_id", requestcontext.RequestID(ctx),
			"image_id", imageID,
			"error", err,
		)
	}
	_ = gz.Close()
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(coding, "gzip") {
			return true
		}
	}
	return false
}
