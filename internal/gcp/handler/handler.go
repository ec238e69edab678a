// Package handler exposes GCP management and residual computation over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"georef/internal/gcp/models"
	id "georef/pkg/domain"
	"georef/pkg/platform/httputil"
	"georef/pkg/requestcontext"
)

// Service defines the GCP operations the handler needs.
type Service interface {
	AddGCP(ctx context.Context, req models.AddGCPRequest) (*models.GCP, error)
	ListGCPs(ctx context.Context, imageID id.ImageID) ([]models.GCP, error)
	UpdateGCP(ctx context.Context, req models.UpdateGCPRequest) (*models.GCP, error)
	DeleteGCP(ctx context.Context, gcpID id.GCPID) ([]models.GCP, error)
	LoadGCPs(ctx context.Context, req models.LoadGCPsRequest) ([]models.GCP, error)
	DeleteAllGCPs(ctx context.Context, imageID id.ImageID) error
	UpdateResiduals(ctx context.Context, req models.ResidualsRequest) (*models.ResidualsResult, error)
	ExportGCPs(ctx context.Context, imageID id.ImageID) (*models.ExportFile, error)
}

// Handler wires GCP endpoints to the GCP service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts GCP endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/georef/gcp", h.HandleAdd)
	r.Put("/georef/gcp", h.HandleUpdate)
	r.Put("/georef/gcp/residuals", h.HandleUpdateResiduals)
	r.Post("/georef/gcp/load", h.HandleLoad)
	r.Delete("/georef/gcp/all/{imageId}", h.HandleDeleteAll)
	// The {id} segment is an image ID for reads and a GCP ID for deletes.
	r.Get("/georef/gcp/{id}", h.HandleList)
	r.Get("/georef/gcp/{id}/export", h.HandleExport)
	r.Delete("/georef/gcp/{id}", h.HandleDelete)
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AddGCPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	gcp, err := h.service.AddGCP(ctx, models.AddGCPRequest{ImageID: req.ImageID, Coordinates: req.coordinates()})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to add gcp",
			"request_id", requestID,
			"image_id", req.ImageID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, gcp)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, err := id.ParseImageID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	gcps, err := h.service.ListGCPs(ctx, imageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, gcps)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[UpdateGCPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	gcp, err := h.service.UpdateGCP(ctx, models.UpdateGCPRequest{ID: req.ID, Coordinates: req.coordinates()})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update gcp",
			"request_id", requestID,
			"gcp_id", req.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, gcp)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	gcpID, err := id.ParseGCPID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	remaining, err := h.service.DeleteGCP(ctx, gcpID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to delete gcp",
			"request_id", requestID,
			"gcp_id", gcpID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, remaining)
}

func (h *Handler) HandleUpdateResiduals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ResidualsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.UpdateResiduals(ctx, models.ResidualsRequest{
		ImageID: req.ImageID,
		Type:    req.Type,
		SRID:    req.SRID,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update residuals",
			"request_id", requestID,
			"image_id", req.ImageID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoadGCPsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	gcps, err := h.service.LoadGCPs(ctx, models.LoadGCPsRequest{
		ImageID:   req.ImageID,
		GCPs:      req.coordinates(),
		Overwrite: req.Overwrite,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load gcps",
			"request_id", requestID,
			"image_id", req.ImageID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, gcps)
}

func (h *Handler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, err := id.ParseImageID(chi.URLParam(r, "imageId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.DeleteAllGCPs(ctx, imageID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
