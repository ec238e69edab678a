package service

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"georef/internal/audit"
	cachepkg "georef/internal/gcp/cache"
	"georef/internal/gcp/metrics"
	"georef/internal/gcp/models"
	"georef/internal/gcp/service/mocks"
	imagemodels "georef/internal/image/models"
	"georef/internal/transform"
	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
	"georef/pkg/platform/sentinel"
	bdd "georef/pkg/testutil"
)

func nan() float64 { return math.NaN() }

// unitSquare fits a linear model with a residual of exactly 0.1 at every
// corner: only the (1,1) corner is displaced, by 0.4 along map x.
var unitSquare = []models.Coordinates{
	{SourceX: 0, SourceY: 0, MapX: 0, MapY: 0},
	{SourceX: 1, SourceY: 0, MapX: 1, MapY: 0},
	{SourceX: 0, SourceY: 1, MapX: 0, MapY: 1},
	{SourceX: 1, SourceY: 1, MapX: 1.4, MapY: 1},
}

func (s *ServiceSuite) load(coords []models.Coordinates) []models.GCP {
	all, err := s.service.LoadGCPs(s.ctx, models.LoadGCPsRequest{ImageID: s.imageID, GCPs: coords})
	s.Require().NoError(err)
	return all
}

func (s *ServiceSuite) TestUpdateResiduals_Computes() {
	s.load(unitSquare)

	result, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
	s.Require().NoError(err)

	s.True(result.Success)
	s.Equal(3, result.MinPointsRequired)
	s.Require().NotNil(result.RMSE)
	s.Equal(0.1, *result.RMSE)
	s.Require().Len(result.GCPs, 4)
	for _, g := range result.GCPs {
		s.Require().NotNil(g.Residual)
		s.Equal(0.1, *g.Residual, "gcp %d", g.Index)
	}

	stored, err := s.store.ListByImage(s.ctx, s.imageID)
	s.Require().NoError(err)
	for _, g := range stored {
		s.Require().NotNil(g.Residual)
		s.Equal(0.1, *g.Residual)
	}
	image, err := s.images.FindByID(s.ctx, s.imageID)
	s.Require().NoError(err)
	s.Require().NotNil(image.MeanResidual)
	s.Equal(0.1, *image.MeanResidual)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.ResidualComputations.WithLabelValues(metrics.OutcomeComputed, "Polynomiale 1")))
	s.Equal(0.1, testutil.ToFloat64(s.metrics.LastRMSE.WithLabelValues("Polynomiale 1")))
	s.Contains(s.audit.Types(s.imageID), audit.EventResidualsComputed)
}

func (s *ServiceSuite) TestUpdateResiduals_RequestOverridesSettings() {
	s.load(unitSquare)
	quadratic := transform.Quadratic

	result, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID, Type: &quadratic})
	s.Require().NoError(err)
	s.False(result.Success, "4 points cannot fit a quadratic")
	s.Equal(6, result.MinPointsRequired)

	s.Run("invalid degree", func() {
		bad := transform.Degree(9)
		_, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID, Type: &bad})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("invalid srid", func() {
		srid := -1
		_, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID, SRID: &srid})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestUpdateResiduals_GeodesicUsesMeters() {
	s.imageID = s.createImage(imagemodels.Settings{
		TransformationType: transform.Linear,
		SRID:               imagemodels.SRIDWGS84,
		ResamplingMethod:   imagemodels.ResamplingNearest,
		Compression:        imagemodels.CompressionNone,
	})
	s.load(unitSquare)

	result, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
	s.Require().NoError(err)
	s.Require().NotNil(result.RMSE)
	// 0.1 degree of longitude near the equator is roughly 11 km.
	s.InDelta(11_000, *result.RMSE, 200)
}

func (s *ServiceSuite) TestUpdateResiduals_NoGCPs() {
	_, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: id.NewImageID()})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestUpdateResiduals_DegenerateKeepsResiduals() {
	s.load(unitSquare)
	_, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
	s.Require().NoError(err)

	// Move every point onto the diagonal so the fit is collinear.
	gcps, err := s.store.ListByImage(s.ctx, s.imageID)
	s.Require().NoError(err)
	for i, g := range gcps {
		v := float64(i)
		_, err := s.service.UpdateGCP(s.ctx, models.UpdateGCPRequest{
			ID:          g.ID,
			Coordinates: models.Coordinates{SourceX: v, SourceY: v, MapX: v, MapY: v},
		})
		s.Require().NoError(err)
	}

	_, err = s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
	s.True(dErrors.HasCode(err, dErrors.CodeUnprocessable))
	s.ErrorIs(err, transform.ErrNumericalDegeneracy)

	stored, err := s.store.ListByImage(s.ctx, s.imageID)
	s.Require().NoError(err)
	for _, g := range stored {
		s.Require().NotNil(g.Residual)
		s.Equal(0.1, *g.Residual)
	}
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ResidualComputations.WithLabelValues(metrics.OutcomeDegenerate, "Polynomiale 1")))
}

func (s *ServiceSuite) TestUpdateResiduals_InsufficientClears() {
	bdd.Given(s.T(), "an image whose residuals were computed", func(t *testing.T) {
		s.load(unitSquare)
		_, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
		require.NoError(t, err)

		bdd.When(t, "points are removed below the linear minimum", func(t *testing.T) {
			gcps, err := s.store.ListByImage(s.ctx, s.imageID)
			require.NoError(t, err)
			for _, g := range gcps[:2] {
				_, err := s.service.DeleteGCP(s.ctx, g.ID)
				require.NoError(t, err)
			}
			result, err := s.service.UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
			require.NoError(t, err)

			bdd.Then(t, "the result reports failure and residuals are cleared", func(t *testing.T) {
				assert.False(t, result.Success)
				assert.Nil(t, result.RMSE)
				assert.Equal(t, 3, result.MinPointsRequired)
				require.Len(t, result.GCPs, 2)
				for _, g := range result.GCPs {
					assert.Nil(t, g.Residual)
				}

				image, err := s.images.FindByID(s.ctx, s.imageID)
				require.NoError(t, err)
				assert.Nil(t, image.MeanResidual)
				assert.Contains(t, s.audit.Types(s.imageID), audit.EventResidualsCleared)
			})
		})
	})
}

func (s *ServiceSuite) TestUpdateResiduals_Cache() {
	s.load(unitSquare)
	points := []transform.ControlPoint{
		{SourceX: 0, SourceY: 0, MapX: 0, MapY: 0},
		{SourceX: 1, SourceY: 0, MapX: 1, MapY: 0},
		{SourceX: 0, SourceY: 1, MapX: 0, MapY: 1},
		{SourceX: 1, SourceY: 1, MapX: 1.4, MapY: 1},
	}

	s.Run("hit skips the engine", func() {
		ctrl := gomock.NewController(s.T())
		cache := mocks.NewMockResidualCache(ctrl)
		cached := transform.ResidualSet{Residuals: []float64{1, 2, 3, 4}, RMSE: 2.73861}
		cache.EXPECT().Get(gomock.Any(), fingerprintOf(points)).Return(cached, nil)

		result, err := s.newService(WithCache(cache)).UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
		s.Require().NoError(err)
		s.Equal(2.7386, *result.RMSE)
		s.Equal(4.0, *result.GCPs[3].Residual)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("hit")))
	})

	s.Run("miss computes and stores", func() {
		ctrl := gomock.NewController(s.T())
		cache := mocks.NewMockResidualCache(ctrl)
		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(transform.ResidualSet{}, sentinel.ErrCacheMiss)
		cache.EXPECT().Set(gomock.Any(), fingerprintOf(points), gomock.Any()).
			DoAndReturn(func(_ any, _ uint64, set transform.ResidualSet) error {
				s.Len(set.Residuals, 4)
				s.InDelta(0.1, set.RMSE, 1e-9)
				return nil
			})

		result, err := s.newService(WithCache(cache)).UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
		s.Require().NoError(err)
		s.Equal(0.1, *result.RMSE)
	})

	s.Run("cache failures never fail the request", func() {
		ctrl := gomock.NewController(s.T())
		cache := mocks.NewMockResidualCache(ctrl)
		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(transform.ResidualSet{}, errors.New("connection refused"))
		cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

		result, err := s.newService(WithCache(cache)).UpdateResiduals(s.ctx, models.ResidualsRequest{ImageID: s.imageID})
		s.Require().NoError(err)
		s.True(result.Success)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("error")))
	})
}

func (s *ServiceSuite) TestAuditFailureIsNotReturned() {
	ctrl := gomock.NewController(s.T())
	publisher := mocks.NewMockAuditPublisher(ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	svc := New(s.store, s.images, WithAuditPublisher(publisher))
	_, err := svc.AddGCP(s.ctx, models.AddGCPRequest{ImageID: s.imageID})
	s.NoError(err)
}

func fingerprintOf(points []transform.ControlPoint) uint64 {
	return cachepkg.Fingerprint(points, transform.Linear, transform.Planar)
}
