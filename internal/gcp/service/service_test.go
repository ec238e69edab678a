package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"georef/internal/audit"
	"georef/internal/gcp/metrics"
	"georef/internal/gcp/models"
	"georef/internal/gcp/store"
	imagemodels "georef/internal/image/models"
	imagestore "georef/internal/image/store"
	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
	"georef/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *store.InMemory
	images  *imagestore.InMemory
	audit   *audit.InMemoryStore
	metrics *metrics.Metrics
	service *Service
	imageID id.ImageID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), s.now), "req-1")
	s.store = store.NewInMemory()
	s.images = imagestore.NewInMemory()
	s.audit = audit.NewInMemoryStore()
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.service = s.newService()
	s.imageID = s.createImage(imagemodels.DefaultSettings())
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(audit.NewPublisher(s.audit)),
		WithMetrics(s.metrics),
	}
	return New(s.store, s.images, append(base, opts...)...)
}

func (s *ServiceSuite) createImage(settings imagemodels.Settings) id.ImageID {
	image, err := imagemodels.NewImage(id.NewImageID(), "scan.tif", "", s.now)
	s.Require().NoError(err)
	image.Settings = settings
	s.Require().NoError(s.images.Create(s.ctx, image))
	return image.ID
}

func (s *ServiceSuite) add(imageID id.ImageID, c models.Coordinates) *models.GCP {
	gcp, err := s.service.AddGCP(s.ctx, models.AddGCPRequest{ImageID: imageID, Coordinates: c})
	s.Require().NoError(err)
	return gcp
}

func indices(gcps []models.GCP) []int {
	out := make([]int, len(gcps))
	for i, g := range gcps {
		out[i] = g.Index
	}
	return out
}

func (s *ServiceSuite) TestAddGCP() {
	s.Run("assigns consecutive indices starting at 1", func() {
		first := s.add(s.imageID, models.Coordinates{SourceX: 1, SourceY: 2, MapX: 3, MapY: 4})
		second := s.add(s.imageID, models.Coordinates{SourceX: 5, SourceY: 6, MapX: 7, MapY: 8})

		s.Equal(1, first.Index)
		s.Equal(2, second.Index)
		s.Equal(s.imageID, first.ImageID)
		s.Nil(first.Residual)
		s.Equal(s.now, first.CreatedAt)
	})

	s.Run("unknown image is not found", func() {
		_, err := s.service.AddGCP(s.ctx, models.AddGCPRequest{ImageID: id.NewImageID()})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-finite coordinates are rejected", func() {
		_, err := s.service.AddGCP(s.ctx, models.AddGCPRequest{
			ImageID:     s.imageID,
			Coordinates: models.Coordinates{SourceX: nan()},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Contains(s.audit.Types(s.imageID), audit.EventGCPAdded)
}

func (s *ServiceSuite) TestListGCPs() {
	s.add(s.imageID, models.Coordinates{SourceX: 1})
	s.add(s.imageID, models.Coordinates{SourceX: 2})

	gcps, err := s.service.ListGCPs(s.ctx, s.imageID)
	s.Require().NoError(err)
	s.Equal([]int{1, 2}, indices(gcps))

	empty := s.createImage(imagemodels.DefaultSettings())
	gcps, err = s.service.ListGCPs(s.ctx, empty)
	s.Require().NoError(err)
	s.Empty(gcps)

	_, err = s.service.ListGCPs(s.ctx, id.NewImageID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestUpdateGCP() {
	gcp := s.add(s.imageID, models.Coordinates{SourceX: 1, SourceY: 1, MapX: 1, MapY: 1})
	residual := 0.5
	s.Require().NoError(s.store.SetResiduals(s.ctx, []id.GCPID{gcp.ID}, []*float64{&residual}, s.now))

	updated, err := s.service.UpdateGCP(s.ctx, models.UpdateGCPRequest{
		ID:          gcp.ID,
		Coordinates: models.Coordinates{SourceX: 10, SourceY: 20, MapX: 30, MapY: 40},
	})
	s.Require().NoError(err)
	s.Equal(10.0, updated.SourceX)
	s.Equal(40.0, updated.MapY)
	s.Equal(1, updated.Index)

	stored, err := s.store.FindByID(s.ctx, gcp.ID)
	s.Require().NoError(err)
	s.Equal(30.0, stored.MapX)
	s.Require().NotNil(stored.Residual, "residual is untouched by a coordinate edit")
	s.Equal(0.5, *stored.Residual)

	_, err = s.service.UpdateGCP(s.ctx, models.UpdateGCPRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = s.service.UpdateGCP(s.ctx, models.UpdateGCPRequest{ID: id.NewGCPID()})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeleteGCPReindexes() {
	first := s.add(s.imageID, models.Coordinates{SourceX: 1})
	second := s.add(s.imageID, models.Coordinates{SourceX: 2})
	third := s.add(s.imageID, models.Coordinates{SourceX: 3})

	remaining, err := s.service.DeleteGCP(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Equal([]int{1, 2}, indices(remaining))
	s.Equal(first.ID, remaining[0].ID)
	s.Equal(third.ID, remaining[1].ID)

	next := s.add(s.imageID, models.Coordinates{SourceX: 4})
	s.Equal(3, next.Index)

	_, err = s.service.DeleteGCP(s.ctx, second.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Contains(s.audit.Types(s.imageID), audit.EventGCPDeleted)
}

func (s *ServiceSuite) TestLoadGCPs() {
	s.add(s.imageID, models.Coordinates{SourceX: 1})
	batch := []models.Coordinates{{SourceX: 10}, {SourceX: 20}}

	s.Run("appends after the current maximum", func() {
		all, err := s.service.LoadGCPs(s.ctx, models.LoadGCPsRequest{ImageID: s.imageID, GCPs: batch})
		s.Require().NoError(err)
		s.Equal([]int{1, 2, 3}, indices(all))
		s.Equal(20.0, all[2].SourceX)
	})

	s.Run("overwrite replaces the existing set", func() {
		all, err := s.service.LoadGCPs(s.ctx, models.LoadGCPsRequest{ImageID: s.imageID, GCPs: batch, Overwrite: true})
		s.Require().NoError(err)
		s.Equal([]int{1, 2}, indices(all))
		s.Equal(10.0, all[0].SourceX)
	})

	s.Run("empty list is rejected", func() {
		_, err := s.service.LoadGCPs(s.ctx, models.LoadGCPsRequest{ImageID: s.imageID})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown image is not found", func() {
		_, err := s.service.LoadGCPs(s.ctx, models.LoadGCPsRequest{ImageID: id.NewImageID(), GCPs: batch})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDeleteAllGCPs() {
	s.add(s.imageID, models.Coordinates{SourceX: 1})
	s.add(s.imageID, models.Coordinates{SourceX: 2})
	mean := 0.3
	s.Require().NoError(s.images.UpdateMeanResidual(s.ctx, s.imageID, &mean, s.now))

	s.Require().NoError(s.service.DeleteAllGCPs(s.ctx, s.imageID))

	gcps, err := s.service.ListGCPs(s.ctx, s.imageID)
	s.Require().NoError(err)
	s.Empty(gcps)
	image, err := s.images.FindByID(s.ctx, s.imageID)
	s.Require().NoError(err)
	s.Nil(image.MeanResidual)

	err = s.service.DeleteAllGCPs(s.ctx, s.imageID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "second delete finds nothing")
	s.Contains(s.audit.Types(s.imageID), audit.EventGCPsCleared)
}

func (s *ServiceSuite) TestExportGCPs() {
	s.add(s.imageID, models.Coordinates{SourceX: 1, SourceY: 2, MapX: 3, MapY: 4})
	s.add(s.imageID, models.Coordinates{SourceX: 5, SourceY: 6, MapX: 7, MapY: 8})

	file, err := s.service.ExportGCPs(s.ctx, s.imageID)
	s.Require().NoError(err)
	s.Equal(s.imageID, file.ImageID)
	s.Equal(imagemodels.DefaultSettings().TransformationType, file.TransformationType)
	s.Equal(int(imagemodels.SRIDWebMercator), file.SRID)
	s.Equal([]models.Coordinates{{SourceX: 1, SourceY: 2, MapX: 3, MapY: 4}, {SourceX: 5, SourceY: 6, MapX: 7, MapY: 8}}, file.GCPs)
	s.Equal(s.now, file.ExportedAt)

	reloaded, err := s.service.LoadGCPs(s.ctx, models.LoadGCPsRequest{ImageID: s.imageID, GCPs: file.GCPs, Overwrite: true})
	s.Require().NoError(err)
	s.Len(reloaded, 2)
}

func (s *ServiceSuite) TestShardedTxHonoursCancellation() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := NewShardedTx().RunInTx(ctx, s.imageID, func(context.Context) error {
		called = true
		return nil
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)
}
