// Package cache memoizes residual computations keyed by a fingerprint of
// their inputs. The engine is deterministic, so equal inputs always yield
// equal outputs and a cached set can stand in for a fresh computation.
package cache

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"georef/internal/transform"
)

// KeyPrefix namespaces residual entries in a shared Redis.
const KeyPrefix = "georef:residuals:"

// Fingerprint hashes the exact IEEE-754 bits of every coordinate, in order,
// together with the degree and the reference kind.
func Fingerprint(points []transform.ControlPoint, d transform.Degree, ref transform.ReferenceKind) uint64 {
	h := xxhash.New()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	write(uint64(d))
	write(uint64(ref))
	write(uint64(len(points)))
	for _, p := range points {
		write(math.Float64bits(p.SourceX))
		write(math.Float64bits(p.SourceY))
		write(math.Float64bits(p.MapX))
		write(math.Float64bits(p.MapY))
	}
	return h.Sum64()
}

// Key renders a fingerprint as its storage key.
func Key(fingerprint uint64) string {
	return KeyPrefix + strconv.FormatUint(fingerprint, 16)
}
