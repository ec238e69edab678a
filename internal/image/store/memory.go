// Package store persists image records in memory or PostgreSQL.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"georef/internal/image/models"
	id "georef/pkg/domain"
	"georef/pkg/platform/sentinel"
)

// InMemory keeps images in a map guarded by a RWMutex.
type InMemory struct {
	mu     sync.RWMutex
	images map[id.ImageID]models.Image
}

func NewInMemory() *InMemory {
	return &InMemory{images: make(map[id.ImageID]models.Image)}
}

func (s *InMemory) Create(_ context.Context, image *models.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[image.ID]; ok {
		return fmt.Errorf("image %s: %w", image.ID, sentinel.ErrConflict)
	}
	s.images[image.ID] = cloneImage(*image)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, imageID id.ImageID) (*models.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	image, ok := s.images[imageID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := cloneImage(image)
	return &out, nil
}

func (s *InMemory) UpdateSettings(_ context.Context, imageID id.ImageID, settings models.Settings, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	image, ok := s.images[imageID]
	if !ok {
		return sentinel.ErrNotFound
	}
	image.Settings = settings
	image.UpdatedAt = updatedAt
	s.images[imageID] = image
	return nil
}

// UpdateMeanResidual stores the image RMSE; nil clears it.
func (s *InMemory) UpdateMeanResidual(_ context.Context, imageID id.ImageID, mean *float64, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	image, ok := s.images[imageID]
	if !ok {
		return sentinel.ErrNotFound
	}
	image.MeanResidual = copyFloat(mean)
	image.UpdatedAt = updatedAt
	s.images[imageID] = image
	return nil
}

func cloneImage(image models.Image) models.Image {
	image.MeanResidual = copyFloat(image.MeanResidual)
	return image
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
