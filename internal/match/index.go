package match

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/couchcryptid/geohash-dispatch/internal/domain"
)

const earthRadiusKm = 6371.0

// indexedLocation is a known location stored in the spatial index. ord
// records registration order so equal distances resolve the same way
// every pass.
type indexedLocation struct {
	loc        domain.KnownLocation
	ord        int
	distanceKm float64
	rect       *rtreego.Rect
}

func (l *indexedLocation) Bounds() *rtreego.Rect {
	return l.rect
}

// locationIndex is an R-tree over the known-location registry in
// (lat, lon) degree space.
type locationIndex struct {
	tree *rtreego.Rtree
}

func newLocationIndex(locs []domain.KnownLocation) *locationIndex {
	tree := rtreego.NewTree(2, 25, 50)
	for i, loc := range locs {
		rect := rtreego.Point{loc.Lat, loc.Lon}.ToRect(0.01)
		tree.Insert(&indexedLocation{loc: loc, ord: i, rect: rect})
	}
	return &locationIndex{tree: tree}
}

// searchRadius returns the locations within radiusKm of (lat, lon),
// in registration order. The R-tree narrows to a degree bounding box;
// great-circle distance does the exact filter. The prefilter must never
// exclude a qualifying location, so the box is only ever too wide.
func (x *locationIndex) searchRadius(lat, lon, radiusKm float64) []*indexedLocation {
	deg := radiusKm / earthRadiusKm * (180 / math.Pi)

	latMin := math.Max(lat-deg, -90)
	latMax := math.Min(lat+deg, 90)

	// A km radius spans deg/cos(lat) degrees of longitude; use the
	// box latitude nearest a pole so the widening is an upper bound.
	lonHalf := 180.0
	maxAbsLat := math.Max(math.Abs(latMin), math.Abs(latMax))
	if cosLat := math.Cos(maxAbsLat * math.Pi / 180); cosLat > 1e-9 {
		lonHalf = math.Min(deg/cosLat, 180)
	}

	lonMin, lonMax := lon-lonHalf, lon+lonHalf
	if lonMin < -180 || lonMax > 180 {
		// The box crosses the antimeridian; take the full longitude
		// span rather than splitting the query. The registry is small
		// and the haversine filter stays exact.
		lonMin, lonMax = -180, 180
	}

	box, err := rtreego.NewRect(rtreego.Point{latMin, lonMin}, []float64{latMax - latMin, lonMax - lonMin})
	if err != nil {
		return nil
	}

	var out []*indexedLocation
	for _, sp := range x.tree.SearchIntersect(box) {
		c := sp.(*indexedLocation)
		d := domain.DistanceKm(lat, lon, c.loc.Lat, c.loc.Lon)
		if d <= radiusKm {
			c.distanceKm = d
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ord < out[j].ord })
	return out
}
