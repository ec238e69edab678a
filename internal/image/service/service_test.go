package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"georef/internal/audit"
	"georef/internal/image/models"
	"georef/internal/image/store"
	"georef/internal/transform"
	id "georef/pkg/domain"
	dErrors "georef/pkg/domain-errors"
	"georef/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	audit   *audit.InMemoryStore
	service *Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.audit = audit.NewInMemoryStore()
	s.service = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(audit.NewPublisher(s.audit)),
	)
}

func (s *ServiceSuite) TestRegister() {
	s.Run("applies default settings", func() {
		image, err := s.service.Register(s.ctx, models.RegisterImageRequest{Filename: " scan_1890.tif "})
		s.Require().NoError(err)

		s.Equal("scan_1890.tif", image.Filename)
		s.Equal(models.StatusUploaded, image.Status)
		s.Equal(models.DefaultSettings(), image.Settings)
		s.Nil(image.MeanResidual)
		s.Equal(s.now, image.UploadedAt)
		s.Equal([]audit.EventType{audit.EventImageRegistered}, s.audit.Types(image.ID))
	})

	s.Run("accepts explicit settings", func() {
		settings := models.Settings{
			TransformationType: transform.Cubic,
			SRID:               models.SRIDWGS84,
			ResamplingMethod:   models.ResamplingBilinear,
			Compression:        models.CompressionLZW,
		}
		image, err := s.service.Register(s.ctx, models.RegisterImageRequest{Filename: "map.png", Settings: &settings})
		s.Require().NoError(err)
		s.Equal(settings, image.Settings)
	})

	s.Run("rejects empty filename", func() {
		_, err := s.service.Register(s.ctx, models.RegisterImageRequest{Filename: "   "})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects invalid settings", func() {
		settings := models.DefaultSettings()
		settings.TransformationType = transform.Degree(5)
		_, err := s.service.Register(s.ctx, models.RegisterImageRequest{Filename: "map.png", Settings: &settings})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestGet() {
	_, err := s.service.Get(s.ctx, id.NewImageID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestUpdateSettings() {
	image, err := s.service.Register(s.ctx, models.RegisterImageRequest{Filename: "map.png"})
	s.Require().NoError(err)

	s.Run("merges supplied fields", func() {
		degree := transform.Quadratic
		srid := models.SRIDWGS84
		later := s.now.Add(time.Hour)
		ctx := requestcontext.WithTime(s.ctx, later)

		updated, err := s.service.UpdateSettings(ctx, models.UpdateSettingsRequest{
			ImageID:            image.ID,
			TransformationType: &degree,
			SRID:               &srid,
		})
		s.Require().NoError(err)
		s.Equal(transform.Quadratic, updated.Settings.TransformationType)
		s.Equal(models.SRIDWGS84, updated.Settings.SRID)
		s.Equal(models.ResamplingNearest, updated.Settings.ResamplingMethod)
		s.Equal(later, updated.UpdatedAt)

		stored, err := s.service.Get(s.ctx, image.ID)
		s.Require().NoError(err)
		s.Equal(updated.Settings, stored.Settings)
	})

	s.Run("rejects invalid SRID", func() {
		srid := models.SRID(-1)
		_, err := s.service.UpdateSettings(s.ctx, models.UpdateSettingsRequest{ImageID: image.ID, SRID: &srid})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown image", func() {
		_, err := s.service.UpdateSettings(s.ctx, models.UpdateSettingsRequest{ImageID: id.NewImageID()})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
