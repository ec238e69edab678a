package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundResidual(t *testing.T) {
	assert.Equal(t, 0.1235, RoundResidual(0.12346))
	assert.Equal(t, 0.0, RoundResidual(0.00004))
	assert.Equal(t, 12.5, RoundResidual(12.49996))
}

func TestCoordinatesFinite(t *testing.T) {
	assert.True(t, Coordinates{SourceX: 1, SourceY: 2, MapX: 3, MapY: 4}.Finite())
	assert.False(t, Coordinates{SourceX: math.NaN()}.Finite())
	assert.False(t, Coordinates{MapY: math.Inf(-1)}.Finite())
}

func TestControlPointsPreserveOrder(t *testing.T) {
	gcps := []GCP{
		{SourceX: 1, SourceY: 2, MapX: 3, MapY: 4, Index: 1},
		{SourceX: 5, SourceY: 6, MapX: 7, MapY: 8, Index: 2},
	}
	points := ControlPoints(gcps)
	assert.Len(t, points, 2)
	assert.Equal(t, 5.0, points[1].SourceX)
	assert.Equal(t, 8.0, points[1].MapY)
}
