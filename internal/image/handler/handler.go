// Package handler exposes image records over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"georef/internal/image/models"
	id "georef/pkg/domain"
	"georef/pkg/platform/httputil"
	"georef/pkg/requestcontext"
)

// Service defines the image operations the handler needs.
type Service interface {
	Register(ctx context.Context, req models.RegisterImageRequest) (*models.Image, error)
	Get(ctx context.Context, imageID id.ImageID) (*models.Image, error)
	UpdateSettings(ctx context.Context, req models.UpdateSettingsRequest) (*models.Image, error)
}

// Handler wires image endpoints to the image service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts image endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/georef/images", h.HandleRegister)
	r.Get("/georef/images/{imageId}", h.HandleGet)
	r.Put("/georef/images/{imageId}/settings", h.HandleUpdateSettings)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterImageRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	image, err := h.service.Register(ctx, models.RegisterImageRequest{
		Filename: req.Filename,
		Hash:     req.Hash,
		Settings: req.Settings,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to register image",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, image)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID, err := id.ParseImageID(chi.URLParam(r, "imageId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	image, err := h.service.Get(ctx, imageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, image)
}

func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	imageID, err := id.ParseImageID(chi.URLParam(r, "imageId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateSettingsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	image, err := h.service.UpdateSettings(ctx, models.UpdateSettingsRequest{
		ImageID:            imageID,
		TransformationType: req.TransformationType,
		SRID:               req.SRID,
		ResamplingMethod:   req.ResamplingMethod,
		Compression:        req.Compression,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to update image settings",
			"request_id", requestID,
			"image_id", imageID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, image)
}
