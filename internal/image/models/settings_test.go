package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georef/internal/transform"
	dErrors "georef/pkg/domain-errors"
)

func TestSRIDReference(t *testing.T) {
	assert.Equal(t, transform.Geodesic, SRIDWGS84.Reference())
	assert.Equal(t, transform.Planar, SRIDWebMercator.Reference())
	assert.Equal(t, transform.Planar, SRID(2154).Reference())
}

func TestParseSRID(t *testing.T) {
	tests := []struct {
		in      string
		want    SRID
		wantErr bool
	}{
		{in: "4326", want: 4326},
		{in: "EPSG:3857", want: 3857},
		{in: " epsg:2154 ", want: 2154},
		{in: "0", wantErr: true},
		{in: "wgs84", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSRID(tt.in)
		if tt.wantErr {
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSettingsJSON(t *testing.T) {
	var settings Settings
	raw := `{"transformation_type":"Polynomiale 3","srid":4326,"resampling_method":"bilinear","compression":"lzw"}`
	require.NoError(t, json.Unmarshal([]byte(raw), &settings))

	assert.Equal(t, transform.Cubic, settings.TransformationType)
	assert.Equal(t, ResamplingBilinear, settings.ResamplingMethod)
	assert.Equal(t, CompressionLZW, settings.Compression)
	require.NoError(t, settings.Validate())

	out, err := json.Marshal(settings)
	require.NoError(t, err)
	assert.JSONEq(t, `{"transformation_type":"Polynomiale 3","srid":4326,"resampling_method":"Bilinear","compression":"LZW"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"compression":"zip"}`), &settings))
}
