// Package service orchestrates image registration and settings.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"georef/internal/audit"
	"georef/internal/image/models"
	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
	"georef/pkg/platform/sentinel"
	"georef/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, image *models.Image) error
	FindByID(ctx context.Context, imageID id.ImageID) (*models.Image, error)
	UpdateSettings(ctx context.Context, imageID id.ImageID, settings models.Settings, updatedAt time.Time) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages image records.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an image record with default or supplied settings.
func (s *Service) Register(ctx context.Context, req models.RegisterImageRequest) (*models.Image, error) {
	image, err := models.NewImage(id.NewImageID(), req.Filename, req.Hash, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, err.Error())
	}
	if req.Settings != nil {
		if err := req.Settings.Validate(); err != nil {
			return nil, err
		}
		image.Settings = *req.Settings
	}

	if err := s.store.Create(ctx, image); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "image already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create image")
	}

	s.logger.InfoContext(ctx, "image registered",
		"request_id", requestcontext.RequestID(ctx),
		"image_id", image.ID,
		"filename", image.Filename,
	)
	s.emit(ctx, audit.Event{Type: audit.EventImageRegistered, ImageID: image.ID, Detail: image.Filename})
	return image, nil
}

func (s *Service) Get(ctx context.Context, imageID id.ImageID) (*models.Image, error) {
	image, err := s.store.FindByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "image not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load image")
	}
	return image, nil
}

// UpdateSettings merges the supplied fields into the stored settings.
func (s *Service) UpdateSettings(ctx context.Context, req models.UpdateSettingsRequest) (*models.Image, error) {
	image, err := s.Get(ctx, req.ImageID)
	if err != nil {
		return nil, err
	}

	settings := image.Settings
	if req.TransformationType != nil {
		settings.TransformationType = *req.TransformationType
	}
	if req.SRID != nil {
		settings.SRID = *req.SRID
	}
	if req.ResamplingMethod != nil {
		settings.ResamplingMethod = *req.ResamplingMethod
	}
	if req.Compression != nil {
		settings.Compression = *req.Compression
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	if err := s.store.UpdateSettings(ctx, image.ID, settings, now); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "image not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update image settings")
	}
	image.Settings = settings
	image.UpdatedAt = now

	s.logger.InfoContext(ctx, "image settings updated",
		"request_id", requestcontext.RequestID(ctx),
		"image_id", image.ID,
		"transformation_type", settings.TransformationType.String(),
		"srid", int(settings.SRID),
	)
	s.emit(ctx, audit.Event{Type: audit.EventImageSettingsUpdated, ImageID: image.ID, Detail: settings.TransformationType.String()})
	return image, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"type", event.Type,
			"error", err,
		)
	}
}
