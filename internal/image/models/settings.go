package models

import (
	"fmt"
	"strconv"
	"strings"

	"georef/internal/transform"
	dErrors "georef/pkg/domain-errors"
)

// SRID is an EPSG spatial reference code.
type SRID int

const (
	// SRIDWGS84 is geographic lon/lat; residuals are measured on the sphere.
	SRIDWGS84 SRID = 4326
	// SRIDWebMercator is the default projected reference.
	SRIDWebMercator SRID = 3857
)

// ParseSRID accepts "4326" or "EPSG:4326".
func ParseSRID(s string) (SRID, error) {
	s = strings.TrimSpace(s)
	if len(s) > 5 && strings.EqualFold(s[:5], "epsg:") {
		s = s[5:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid srid %q", s))
	}
	return SRID(n), nil
}

// Valid reports whether the code is positive.
func (s SRID) Valid() bool { return s > 0 }

// Reference maps the SRID to the residual distance kind. Only WGS84 is
// treated as geographic.
func (s SRID) Reference() transform.ReferenceKind {
	if s == SRIDWGS84 {
		return transform.Geodesic
	}
	return transform.Planar
}

func (s SRID) String() string { return "EPSG:" + strconv.Itoa(int(s)) }

// ResamplingMethod is the pixel interpolation used when warping.
type ResamplingMethod string

const (
	ResamplingNearest  ResamplingMethod = "Nearest"
	ResamplingBilinear ResamplingMethod = "Bilinear"
	ResamplingCubic    ResamplingMethod = "Cubic"
)

// Compression is the output raster compression.
type Compression string

const (
	CompressionNone    Compression = "None"
	CompressionLZW     Compression = "LZW"
	CompressionJPEG    Compression = "JPEG"
	CompressionDeflate Compression = "Deflate"
)

var (
	resamplingMethods = []ResamplingMethod{ResamplingNearest, ResamplingBilinear, ResamplingCubic}
	compressions      = []Compression{CompressionNone, CompressionLZW, CompressionJPEG, CompressionDeflate}
)

func ParseResamplingMethod(s string) (ResamplingMethod, error) {
	return parseLabel(s, resamplingMethods, "resampling_method")
}

func ParseCompression(s string) (Compression, error) {
	return parseLabel(s, compressions, "compression")
}

func (m *ResamplingMethod) UnmarshalText(text []byte) error {
	parsed, err := ParseResamplingMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func parseLabel[T ~string](s string, allowed []T, field string) (T, error) {
	s = strings.TrimSpace(s)
	for _, v := range allowed {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	var zero T
	return zero, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("invalid %s %q", field, s))
}

// Settings are the georeferencing parameters stored with an image.
type Settings struct {
	TransformationType transform.Degree `json:"transformation_type"`
	SRID               SRID             `json:"srid"`
	ResamplingMethod   ResamplingMethod `json:"resampling_method"`
	Compression        Compression      `json:"compression"`
}

// DefaultSettings returns the settings a freshly registered image starts with.
func DefaultSettings() Settings {
	return Settings{
		TransformationType: transform.DefaultDegree,
		SRID:               SRIDWebMercator,
		ResamplingMethod:   ResamplingNearest,
		Compression:        CompressionNone,
	}
}

// Validate checks every field is a supported value.
func (s Settings) Validate() error {
	if !s.TransformationType.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "transformation_type must be a polynomial of order 1 to 3")
	}
	if !s.SRID.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "srid must be a positive EPSG code")
	}
	if _, err := ParseResamplingMethod(string(s.ResamplingMethod)); err != nil {
		return err
	}
	if _, err := ParseCompression(string(s.Compression)); err != nil {
		return err
	}
	return nil
}
