package domain

import (
	"fmt"
	"math"
)

// Graticule identifies a 1°×1° cell by integer degree magnitudes and
// hemisphere flags. Magnitude and sign are stored separately so that a
// magnitude of 0 can still carry a hemisphere: the "-0" cell spanning
// (−1,0) is distinct from the "0" cell spanning (0,1). The zero value
// is the cell touching the equator and prime meridian from the
// northeast.
//
// Graticules are immutable values; equality is the == operator.
type Graticule struct {
	latMag int
	lonMag int
	south  bool
	west   bool
}

// NewGraticule builds a graticule from magnitudes and hemisphere flags.
// Latitude magnitude must be in [0,89], longitude magnitude in [0,179].
func NewGraticule(latMag, lonMag int, south, west bool) (Graticule, error) {
	if latMag < 0 || latMag > 89 {
		return Graticule{}, fmt.Errorf("latitude magnitude %d out of range [0,89]", latMag)
	}
	if lonMag < 0 || lonMag > 179 {
		return Graticule{}, fmt.Errorf("longitude magnitude %d out of range [0,179]", lonMag)
	}
	return Graticule{latMag: latMag, lonMag: lonMag, south: south, west: west}, nil
}

// GraticuleAt returns the graticule containing the given coordinate.
// Degree designators truncate toward zero, so −30.5 falls in the "-30"
// cell and −0.5 in the "-0" cell.
func GraticuleAt(lat, lon float64) (Graticule, error) {
	if lat <= -90 || lat >= 90 {
		return Graticule{}, fmt.Errorf("latitude %v out of range (-90,90)", lat)
	}
	if lon <= -180 || lon >= 180 {
		return Graticule{}, fmt.Errorf("longitude %v out of range (-180,180)", lon)
	}
	return Graticule{
		latMag: int(math.Trunc(math.Abs(lat))),
		lonMag: int(math.Trunc(math.Abs(lon))),
		south:  lat < 0,
		west:   lon < 0,
	}, nil
}

// LatMagnitude returns the integer latitude degrees, always >= 0.
func (g Graticule) LatMagnitude() int { return g.latMag }

// LonMagnitude returns the integer longitude degrees, always >= 0.
func (g Graticule) LonMagnitude() int { return g.lonMag }

// South reports whether the cell is in the southern hemisphere.
func (g Graticule) South() bool { return g.south }

// West reports whether the cell is in the western hemisphere.
func (g Graticule) West() bool { return g.west }

// Uses30W reports whether the cell lies east of the 30°W meridian and
// therefore hashes the previous trading day's opening value. The w30
// cell spans (−31,−30) and sits west of the line, so it does not.
func (g Graticule) Uses30W() bool {
	return !g.west || g.lonMag < 30
}

// Class returns the stock-value class the cell belongs to.
func (g Graticule) Class() StockClass {
	if g.Uses30W() {
		return Class30W
	}
	return ClassNon30W
}

// Offset returns the graticule latOff cells north and lonOff cells east
// of g. Crossing the equator or prime meridian consumes one step and
// flips the hemisphere flag, honoring the negative-zero convention.
// Longitude wraps around the antimeridian; latitude past a pole is an
// error.
func (g Graticule) Offset(latOff, lonOff int) (Graticule, error) {
	latIdx := cellIndex(g.latMag, g.south) + latOff
	if latIdx < -90 || latIdx > 89 {
		return Graticule{}, fmt.Errorf("latitude offset %d moves past a pole", latOff)
	}

	lonIdx := cellIndex(g.lonMag, g.west) + lonOff
	for lonIdx < -180 {
		lonIdx += 360
	}
	for lonIdx > 179 {
		lonIdx -= 360
	}

	out := Graticule{}
	out.latMag, out.south = cellFromIndex(latIdx)
	out.lonMag, out.west = cellFromIndex(lonIdx)
	return out, nil
}

// String renders the cell designator, e.g. "37,-122" or "-0,5".
func (g Graticule) String() string {
	return fmt.Sprintf("%s,%s", designator(g.latMag, g.south), designator(g.lonMag, g.west))
}

// cellIndex maps magnitude+flag to a contiguous integer index where
// northern/eastern cell m is m and southern/western cell m is −(m+1),
// so ...,-2,-1 (the "-0" cell),0,1,... are adjacent.
func cellIndex(mag int, negative bool) int {
	if negative {
		return -(mag + 1)
	}
	return mag
}

func cellFromIndex(idx int) (mag int, negative bool) {
	if idx < 0 {
		return -idx - 1, true
	}
	return idx, false
}

func designator(mag int, negative bool) string {
	if negative {
		return fmt.Sprintf("-%d", mag)
	}
	return fmt.Sprintf("%d", mag)
}
