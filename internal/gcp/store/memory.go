// Package store persists ground control points in memory or PostgreSQL.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"georef/internal/gcp/models"
	id "georef/pkg/domain"
	"georef/pkg/platform/sentinel"
)

// InMemory keeps GCPs in a map guarded by a RWMutex. Lists are returned as
// copies ordered by index.
type InMemory struct {
	mu   sync.RWMutex
	gcps map[id.GCPID]models.GCP
}

func NewInMemory() *InMemory {
	return &InMemory{gcps: make(map[id.GCPID]models.GCP)}
}

func (s *InMemory) Create(_ context.Context, gcp *models.GCP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkInsertLocked(*gcp); err != nil {
		return err
	}
	s.gcps[gcp.ID] = cloneGCP(*gcp)
	return nil
}

// CreateMany inserts all gcps or none.
func (s *InMemory) CreateMany(_ context.Context, gcps []models.GCP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[indexKey]struct{}, len(gcps))
	for _, g := range gcps {
		if err := s.checkInsertLocked(g); err != nil {
			return err
		}
		key := indexKey{g.ImageID, g.Index}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("gcp index %d: %w", g.Index, sentinel.ErrConflict)
		}
		seen[key] = struct{}{}
	}
	for _, g := range gcps {
		s.gcps[g.ID] = cloneGCP(g)
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, gcpID id.GCPID) (*models.GCP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gcps[gcpID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := cloneGCP(g)
	return &out, nil
}

func (s *InMemory) ListByImage(_ context.Context, imageID id.ImageID) ([]models.GCP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(imageID), nil
}

// MaxIndex returns the highest index of the image, 0 when it has no GCPs.
func (s *InMemory) MaxIndex(_ context.Context, imageID id.ImageID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	maxIndex := 0
	for _, g := range s.gcps {
		if g.ImageID == imageID && g.Index > maxIndex {
			maxIndex = g.Index
		}
	}
	return maxIndex, nil
}

func (s *InMemory) UpdateCoordinates(_ context.Context, gcp *models.GCP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.gcps[gcp.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	stored.SourceX, stored.SourceY = gcp.SourceX, gcp.SourceY
	stored.MapX, stored.MapY = gcp.MapX, gcp.MapY
	stored.UpdatedAt = gcp.UpdatedAt
	s.gcps[gcp.ID] = stored
	return nil
}

func (s *InMemory) Delete(_ context.Context, gcpID id.GCPID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gcps[gcpID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.gcps, gcpID)
	return nil
}

// DeleteByImage removes every GCP of the image and reports how many existed.
func (s *InMemory) DeleteByImage(_ context.Context, imageID id.ImageID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for gcpID, g := range s.gcps {
		if g.ImageID == imageID {
			delete(s.gcps, gcpID)
			n++
		}
	}
	return n, nil
}

// Reindex renumbers the image's GCPs 1..n keeping their relative order.
func (s *InMemory) Reindex(_ context.Context, imageID id.ImageID, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.listLocked(imageID) {
		if g.Index == i+1 {
			continue
		}
		g.Index = i + 1
		g.UpdatedAt = updatedAt
		s.gcps[g.ID] = g
	}
	return nil
}

// SetResiduals writes residuals[i] onto gcpIDs[i]; a nil entry clears it.
func (s *InMemory) SetResiduals(_ context.Context, gcpIDs []id.GCPID, residuals []*float64, updatedAt time.Time) error {
	if len(gcpIDs) != len(residuals) {
		return fmt.Errorf("set residuals: %d ids for %d residuals", len(gcpIDs), len(residuals))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, gcpID := range gcpIDs {
		if _, ok := s.gcps[gcpID]; !ok {
			return fmt.Errorf("gcp %s: %w", gcpID, sentinel.ErrNotFound)
		}
	}
	for i, gcpID := range gcpIDs {
		g := s.gcps[gcpID]
		g.Residual = copyFloat(residuals[i])
		g.UpdatedAt = updatedAt
		s.gcps[gcpID] = g
	}
	return nil
}

// ClearResiduals nils the residual of every GCP of the image.
func (s *InMemory) ClearResiduals(_ context.Context, imageID id.ImageID, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for gcpID, g := range s.gcps {
		if g.ImageID == imageID && g.Residual != nil {
			g.Residual = nil
			g.UpdatedAt = updatedAt
			s.gcps[gcpID] = g
		}
	}
	return nil
}

type indexKey struct {
	imageID id.ImageID
	index   int
}

func (s *InMemory) checkInsertLocked(gcp models.GCP) error {
	if _, ok := s.gcps[gcp.ID]; ok {
		return fmt.Errorf("gcp %s: %w", gcp.ID, sentinel.ErrConflict)
	}
	for _, g := range s.gcps {
		if g.ImageID == gcp.ImageID && g.Index == gcp.Index {
			return fmt.Errorf("gcp index %d: %w", gcp.Index, sentinel.ErrConflict)
		}
	}
	return nil
}

func (s *InMemory) listLocked(imageID id.ImageID) []models.GCP {
	out := make([]models.GCP, 0)
	for _, g := range s.gcps {
		if g.ImageID == imageID {
			out = append(out, cloneGCP(g))
		}
	}
	slices.SortFunc(out, func(a, b models.GCP) int { return a.Index - b.Index })
	return out
}

func cloneGCP(g models.GCP) models.GCP {
	g.Residual = copyFloat(g.Residual)
	return g
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
