package domain

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Destination is a derived coordinate: produced once from a stock
// record, never mutated. A nil Graticule marks the global destination.
type Destination struct {
	Lat       float64
	Lon       float64
	Graticule *Graticule
	Date      time.Time // the request date the destination answers for
}

// Global reports whether the destination is graticule-free.
func (d Destination) Global() bool { return d.Graticule == nil }

// ComputeDestination derives the coordinate for an effective trading
// date and the exact published index value string. The transform is
// pure and deterministic: identical inputs yield bit-identical output
// on every platform, which is what keeps independently computed
// destinations in agreement.
//
// indexValue must already have passed ValidIndexValue; this function
// hashes it verbatim.
func ComputeDestination(effective time.Time, indexValue string, g *Graticule) Destination {
	line := fmt.Sprintf("%s-%s", effective.Format("2006-01-02"), indexValue)
	sum := md5.Sum([]byte(line))

	latFrac := hexFraction(sum[:8])
	lonFrac := hexFraction(sum[8:])

	dest := Destination{Graticule: g, Date: midnightUTC(effective)}
	if g == nil {
		dest.Lat = latFrac*180 - 90
		dest.Lon = lonFrac*360 - 180
		return dest
	}

	dest.Lat = float64(g.LatMagnitude()) + latFrac
	if g.South() {
		dest.Lat = -dest.Lat
	}
	dest.Lon = float64(g.LonMagnitude()) + lonFrac
	if g.West() {
		dest.Lon = -dest.Lon
	}
	return dest
}

// hexFraction reads 8 digest bytes (16 hex digits) as a base-16
// fixed-point fraction in [0,1): value = Σ digit_i · 16^−(i+1), which
// is exactly the 64-bit big-endian integer scaled by 2^−64.
func hexFraction(b []byte) float64 {
	return math.Ldexp(float64(binary.BigEndian.Uint64(b)), -64)
}
