package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"georef/internal/audit"
	"georef/internal/gcp/cache"
	"georef/internal/gcp/metrics"
	"georef/internal/gcp/models"
	imagemodels "georef/internal/image/models"
	"georef/internal/transform"
	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
	"georef/pkg/platform/sentinel"
	"georef/pkg/requestcontext"
)

// UpdateResiduals fits the image's points and stores the per-point residuals
// and the image mean residual (the RMSE), both rounded to 4 decimals.
//
// Degree and SRID come from the request when set, else from the image
// settings. With too few points every residual is cleared and the result
// reports Success=false; a degenerate fit fails with CodeUnprocessable and
// leaves stored residuals as they were.
func (s *Service) UpdateResiduals(ctx context.Context, req models.ResidualsRequest) (*models.ResidualsResult, error) {
	ctx, span := s.tracer.Start(ctx, "gcp.UpdateResiduals",
		trace.WithAttributes(attribute.String("image_id", req.ImageID.String())))
	defer span.End()

	result, outcome, err := s.updateResiduals(ctx, req, span)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *Service) updateResiduals(ctx context.Context, req models.ResidualsRequest, span trace.Span) (*models.ResidualsResult, string, error) {
	image, err := s.requireImage(ctx, req.ImageID)
	if err != nil {
		return nil, metrics.OutcomeError, err
	}
	degree, ref, err := resolveFit(image.Settings, req)
	if err != nil {
		return nil, metrics.OutcomeError, err
	}
	minPoints, _ := transform.MinimumPoints(degree)
	span.SetAttributes(
		attribute.String("degree", degree.String()),
		attribute.String("reference", ref.String()),
	)

	var (
		result  *models.ResidualsResult
		outcome string
	)
	err = s.tx.RunInTx(ctx, image.ID, func(ctx context.Context) error {
		gcps, err := s.store.ListByImage(ctx, image.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list gcps")
		}
		if len(gcps) == 0 {
			outcome = metrics.OutcomeError
			return dErrors.New(dErrors.CodeNotFound, "no gcps found for image")
		}
		span.SetAttributes(attribute.Int("points", len(gcps)))

		now := requestcontext.Now(ctx)
		if len(gcps) < minPoints {
			outcome = metrics.OutcomeInsufficient
			gcps, err = s.clearResiduals(ctx, image.ID, now)
			if err != nil {
				return err
			}
			result = &models.ResidualsResult{Success: false, GCPs: gcps, MinPointsRequired: minPoints}
			return nil
		}

		set, err := s.compute(ctx, models.ControlPoints(gcps), degree, ref)
		if err != nil {
			if errors.Is(err, transform.ErrNumericalDegeneracy) {
				outcome = metrics.OutcomeDegenerate
				return dErrors.Wrap(err, dErrors.CodeUnprocessable, "control points do not determine the transformation")
			}
			outcome = metrics.OutcomeError
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute residuals")
		}

		outcome = metrics.OutcomeComputed
		gcps, rmse, err := s.storeResiduals(ctx, image.ID, gcps, set, now)
		if err != nil {
			return err
		}
		result = &models.ResidualsResult{Success: true, GCPs: gcps, RMSE: &rmse, MinPointsRequired: minPoints}
		return nil
	})
	if outcome == "" {
		outcome = metrics.OutcomeError
	}
	s.metrics.IncrementOutcome(outcome, degree.String())
	if err != nil {
		s.logger.WarnContext(ctx, "residual computation failed",
			"request_id", requestcontext.RequestID(ctx),
			"image_id", image.ID,
			"degree", degree.String(),
			"outcome", outcome,
			"error", err,
		)
		return nil, outcome, err
	}

	if result.Success {
		s.metrics.SetLastRMSE(degree.String(), *result.RMSE)
		s.logger.InfoContext(ctx, "residuals computed",
			"request_id", requestcontext.RequestID(ctx),
			"image_id", image.ID,
			"degree", degree.String(),
			"points", len(result.GCPs),
			"rmse", *result.RMSE,
		)
		s.emit(ctx, audit.Event{Type: audit.EventResidualsComputed, ImageID: image.ID, Detail: degree.String()})
	} else {
		s.logger.InfoContext(ctx, "residuals cleared: not enough points",
			"request_id", requestcontext.RequestID(ctx),
			"image_id", image.ID,
			"degree", degree.String(),
			"points", len(result.GCPs),
			"min_points_required", minPoints,
		)
		s.emit(ctx, audit.Event{Type: audit.EventResidualsCleared, ImageID: image.ID, Detail: degree.String()})
	}
	return result, outcome, nil
}

func resolveFit(settings imagemodels.Settings, req models.ResidualsRequest) (transform.Degree, transform.ReferenceKind, error) {
	degree := settings.TransformationType
	if req.Type != nil {
		degree = *req.Type
	}
	if !degree.Valid() {
		return 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid transformation type")
	}
	srid := settings.SRID
	if req.SRID != nil {
		srid = imagemodels.SRID(*req.SRID)
	}
	if !srid.Valid() {
		return 0, 0, dErrors.New(dErrors.CodeBadRequest, "srid must be a positive EPSG code")
	}
	return degree, srid.Reference(), nil
}

// compute runs the engine, consulting the cache first. Cache failures are
// logged and never fail the computation.
func (s *Service) compute(ctx context.Context, points []transform.ControlPoint, degree transform.Degree, ref transform.ReferenceKind) (transform.ResidualSet, error) {
	var fingerprint uint64
	if s.cache != nil {
		fingerprint = cache.Fingerprint(points, degree, ref)
		set, err := s.cache.Get(ctx, fingerprint)
		switch {
		case err == nil && len(set.Residuals) == len(points):
			s.metrics.IncrementCache("hit")
			return set, nil
		case err == nil, errors.Is(err, sentinel.ErrCacheMiss):
			s.metrics.IncrementCache("miss")
		default:
			s.metrics.IncrementCache("error")
			s.logger.WarnContext(ctx, "residual cache read failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	start := time.Now()
	set, err := transform.Compute(points, degree, ref)
	s.metrics.ObserveComputeLatency(degree.String(), time.Since(start))
	if err != nil {
		return transform.ResidualSet{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, fingerprint, set); err != nil {
			s.logger.WarnContext(ctx, "residual cache write failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	return set, nil
}

func (s *Service) clearResiduals(ctx context.Context, imageID id.ImageID, now time.Time) ([]models.GCP, error) {
	if err := s.store.ClearResiduals(ctx, imageID, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear residuals")
	}
	if err := s.images.UpdateMeanResidual(ctx, imageID, nil, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear mean residual")
	}
	gcps, err := s.store.ListByImage(ctx, imageID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list gcps")
	}
	return gcps, nil
}

func (s *Service) storeResiduals(ctx context.Context, imageID id.ImageID, gcps []models.GCP, set transform.ResidualSet, now time.Time) ([]models.GCP, float64, error) {
	ids := make([]id.GCPID, len(gcps))
	residuals := make([]*float64, len(gcps))
	for i := range gcps {
		r := models.RoundResidual(set.Residuals[i])
		ids[i] = gcps[i].ID
		residuals[i] = &r
		gcps[i].Residual = &r
		gcps[i].UpdatedAt = now
	}
	rmse := models.RoundResidual(set.RMSE)

	if err := s.store.SetResiduals(ctx, ids, residuals, now); err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store residuals")
	}
	if err := s.images.UpdateMeanResidual(ctx, imageID, &rmse, now); err != nil {
		return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store mean residual")
	}
	return gcps, rmse, nil
}
