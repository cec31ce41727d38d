package tracewire

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Sampler decides, once per trace, whether the trace's spans are
// retained by the recorder. Implementations must be pure: repeated
// calls with the same trace id agree, and no call performs I/O or
// blocks. The tracer consults the sampler only at root-span creation;
// children inherit the verdict.
type Sampler interface {
	IsSampled(traceID uint64) bool
}

// Verdicts are computed in a 63-bit space so a rate of 1.0 cannot
// overflow the boundary.
const samplerBits = 63

// RateSampler samples a fixed fraction of traces. The decision is a
// pure function of the trace id: the id is hashed to a uniform value
// and compared against a boundary precomputed from the rate.
type RateSampler struct {
	rate     float64
	boundary uint64
}

// NewRateSampler builds a sampler with the given rate. Rates outside
// [0, 1] are clamped; the rate is fixed for the sampler's lifetime.
func NewRateSampler(rate float64) *RateSampler {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &RateSampler{
		rate:     rate,
		boundary: uint64(rate * float64(uint64(1)<<samplerBits)),
	}
}

// Rate returns the configured sampling rate.
func (s *RateSampler) Rate() float64 {
	return s.rate
}

// IsSampled reports whether the trace should be retained. Deterministic
// for a given trace id.
func (s *RateSampler) IsSampled(traceID uint64) bool {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], traceID)
	v := xxhash.Sum64(buf[:]) & (uint64(1)<<samplerBits - 1)
	return v < s.boundary
}
