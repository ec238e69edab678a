// Package service manages ground control points and applies residual
// computations to them.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ResidualCache,AuditPublisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"georef/internal/audit"
	"georef/internal/gcp/metrics"
	"georef/internal/gcp/models"
	imagemodels "georef/internal/image/models"
	"georef/internal/transform"
	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
	"georef/pkg/platform/sentinel"
	"georef/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, gcp *models.GCP) error
	CreateMany(ctx context.Context, gcps []models.GCP) error
	FindByID(ctx context.Context, gcpID id.GCPID) (*models.GCP, error)
	ListByImage(ctx context.Context, imageID id.ImageID) ([]models.GCP, error)
	MaxIndex(ctx context.Context, imageID id.ImageID) (int, error)
	UpdateCoordinates(ctx context.Context, gcp *models.GCP) error
	Delete(ctx context.Context, gcpID id.GCPID) error
	DeleteByImage(ctx context.Context, imageID id.ImageID) (int, error)
	Reindex(ctx context.Context, imageID id.ImageID, updatedAt time.Time) error
	SetResiduals(ctx context.Context, gcpIDs []id.GCPID, residuals []*float64, updatedAt time.Time) error
	ClearResiduals(ctx context.Context, imageID id.ImageID, updatedAt time.Time) error
}

// ImageStore is the slice of the image registry the GCP service needs.
type ImageStore interface {
	FindByID(ctx context.Context, imageID id.ImageID) (*imagemodels.Image, error)
	UpdateMeanResidual(ctx context.Context, imageID id.ImageID, mean *float64, updatedAt time.Time) error
}

// ResidualCache memoizes engine results by input fingerprint. Get returns
// sentinel.ErrCacheMiss when nothing is stored.
type ResidualCache interface {
	Get(ctx context.Context, fingerprint uint64) (transform.ResidualSet, error)
	Set(ctx context.Context, fingerprint uint64, set transform.ResidualSet) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the GCP application service.
type Service struct {
	store          Store
	images         ImageStore
	tx             StoreTx
	cache          ResidualCache
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithCache(cache ResidualCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithTx replaces the default in-process lock with a database-backed
// transaction boundary.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, images ImageStore, opts ...Option) *Service {
	s := &Service{
		store:  store,
		images: images,
		logger: slog.Default(),
		tracer: otel.Tracer("georef/gcp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx()
	}
	return s
}

// AddGCP appends a point to the image, indexed after the current last one.
func (s *Service) AddGCP(ctx context.Context, req models.AddGCPRequest) (*models.GCP, error) {
	if !req.Coordinates.Finite() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "coordinates must be finite numbers")
	}
	if _, err := s.requireImage(ctx, req.ImageID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var gcp *models.GCP
	err := s.tx.RunInTx(ctx, req.ImageID, func(ctx context.Context) error {
		maxIndex, err := s.store.MaxIndex(ctx, req.ImageID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read gcp indices")
		}
		gcp = newGCP(req.ImageID, req.Coordinates, maxIndex+1, now)
		if err := s.store.Create(ctx, gcp); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a gcp with this index already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create gcp")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "gcp added",
		"request_id", requestcontext.RequestID(ctx),
		"image_id", gcp.ImageID,
		"gcp_id", gcp.ID,
		"index", gcp.Index,
	)
	s.emit(ctx, audit.Event{Type: audit.EventGCPAdded, ImageID: gcp.ImageID, GCPID: &gcp.ID})
	return gcp, nil
}

// ListGCPs returns the image's points ordered by index.
func (s *Service) ListGCPs(ctx context.Context, imageID id.ImageID) ([]models.GCP, error) {
	if _, err := s.requireImage(ctx, imageID); err != nil {
		return nil, err
	}
	gcps, err := s.store.ListByImage(ctx, imageID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list gcps")
	}
	return gcps, nil
}

// UpdateGCP replaces the coordinates of a point. Index and residual are kept.
func (s *Service) UpdateGCP(ctx context.Context, req models.UpdateGCPRequest) (*models.GCP, error) {
	if req.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "gcp id is required")
	}
	if !req.Coordinates.Finite() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "coordinates must be finite numbers")
	}

	gcp, err := s.findGCP(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	gcp.SourceX, gcp.SourceY = req.SourceX, req.SourceY
	gcp.MapX, gcp.MapY = req.MapX, req.MapY
	gcp.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.UpdateCoordinates(ctx, gcp); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "gcp not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update gcp")
	}

	s.logger.InfoContext(ctx, "gcp updated",
		"request_id", requestcontext.RequestID(ctx),
		"image_id", gcp.ImageID,
		"gcp_id", gcp.ID,
	)
	s.emit(ctx, audit.Event{Type: audit.EventGCPUpdated, ImageID: gcp.ImageID, GCPID: &gcp.ID})
	return gcp, nil
}

// DeleteGCP removes a point, renumbers the rest 1..n and returns them.
func (s *Service) DeleteGCP(ctx context.Context, gcpID id.GCPID) ([]models.GCP, error) {
	gcp, err := s.findGCP(ctx, gcpID)
	if err != nil {
		return nil, err
	}

	var remaining []models.GCP
	err = s.tx.RunInTx(ctx, gcp.ImageID, func(ctx context.Context) error {
		if err := s.store.Delete(ctx, gcpID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "gcp not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete gcp")
		}
		if err := s.store.Reindex(ctx, gcp.ImageID, requestcontext.Now(ctx)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reindex gcps")
		}
		var err error
		remaining, err = s.store.ListByImage(ctx, gcp.ImageID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list gcps")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "gcp deleted",
		"request_id", requestcontext.RequestID(ctx),
		"image_id", gcp.ImageID,
		"gcp_id", gcpID,
		"remaining", len(remaining),
	)
	s.emit(ctx, audit.Event{Type: audit.EventGCPDeleted, ImageID: gcp.ImageID, GCPID: &gcpID})
	return remaining, nil
}

// LoadGCPs bulk-appends points, optionally replacing the existing set, and
// returns the image's full list.
func (s *Service) LoadGCPs(ctx context.Context, req models.LoadGCPsRequest) ([]models.GCP, error) {
	if len(req.GCPs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "gcp list must not be empty")
	}
	for _, c := range req.GCPs {
		if !c.Finite() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "coordinates must be finite numbers")
		}
	}
	if _, err := s.requireImage(ctx, req.ImageID); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var all []models.GCP
	err := s.tx.RunInTx(ctx, req.ImageID, func(ctx context.Context) error {
		if req.Overwrite {
			if _, err := s.store.DeleteByImage(ctx, req.ImageID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear gcps")
			}
		}
		maxIndex, err := s.store.MaxIndex(ctx, req.ImageID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read gcp indices")
		}
		batch := make([]models.GCP, len(req.GCPs))
		for i, c := range req.GCPs {
			batch[i] = *newGCP(req.ImageID, c, maxIndex+1+i, now)
		}
		if err := s.store.CreateMany(ctx, batch); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a gcp with this index already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load gcps")
		}
		all, err = s.store.ListByImage(ctx, req.ImageID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list gcps")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "gcps loaded",
		"request_id", requestcontext.RequestID(ctx),
		"image_id", req.ImageID,
		"loaded", len(req.GCPs),
		"overwrite", req.Overwrite,
	)
	s.emit(ctx, audit.Event{Type: audit.EventGCPsLoaded, ImageID: req.ImageID})
	return all, nil
}

// DeleteAllGCPs removes every point of the image. It reports NotFound when
// the image had none. The image mean residual is cleared with them.
func (s *Service) DeleteAllGCPs(ctx context.Context, imageID id.ImageID) error {
	if _, err := s.requireImage(ctx, imageID); err != nil {
		return err
	}

	var deleted int
	err := s.tx.RunInTx(ctx, imageID, func(ctx context.Context) error {
		var err error
		deleted, err = s.store.DeleteByImage(ctx, imageID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete gcps")
		}
		if deleted == 0 {
			return dErrors.New(dErrors.CodeNotFound, "no gcps found for image")
		}
		if err := s.images.UpdateMeanResidual(ctx, imageID, nil, requestcontext.Now(ctx)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear mean residual")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "gcps cleared",
		"request_id", requestcontext.RequestID(ctx),
		"image_id", imageID,
		"deleted", deleted,
	)
	s.emit(ctx, audit.Event{Type: audit.EventGCPsCleared, ImageID: imageID})
	return nil
}

// ExportGCPs renders the image's points in the load-file format.
func (s *Service) ExportGCPs(ctx context.Context, imageID id.ImageID) (*models.ExportFile, error) {
	image, err := s.requireImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	gcps, err := s.store.ListByImage(ctx, imageID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list gcps")
	}
	coords := make([]models.Coordinates, len(gcps))
	for i, g := range gcps {
		coords[i] = models.Coordinates{SourceX: g.SourceX, SourceY: g.SourceY, MapX: g.MapX, MapY: g.MapY}
	}
	return &models.ExportFile{
		ImageID:            imageID,
		TransformationType: image.Settings.TransformationType,
		SRID:               int(image.Settings.SRID),
		GCPs:               coords,
		ExportedAt:         requestcontext.Now(ctx),
	}, nil
}

func (s *Service) requireImage(ctx context.Context, imageID id.ImageID) (*imagemodels.Image, error) {
	image, err := s.images.FindByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "image not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load image")
	}
	return image, nil
}

func (s *Service) findGCP(ctx context.Context, gcpID id.GCPID) (*models.GCP, error) {
	gcp, err := s.store.FindByID(ctx, gcpID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "gcp not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load gcp")
	}
	return gcp, nil
}

func newGCP(imageID id.ImageID, c models.Coordinates, index int, now time.Time) *models.GCP {
	return &models.GCP{
		ID:        id.NewGCPID(),
		ImageID:   imageID,
		SourceX:   c.SourceX,
		SourceY:   c.SourceY,
		MapX:      c.MapX,
		MapY:      c.MapY,
		Index:     index,
		CreatedAt: now,
		UpdatedAt: now,
	}
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
