package tile

import "math"

const (
	// Size of a tile in pixels for grid calculations.
	gridSize = 256

	d2r = math.Pi / 180
)

// WorldBounds is the full spherical mercator extent as west, south, east, north.
var WorldBounds = [4]float64{-180, -85.0511, 180, 85.0511}

// Range is the inclusive span of tile indices covered by some bounds at one zoom.
type Range struct {
	MinX, MinY, MaxX, MaxY int
}

func (r Range) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// px projects a lon/lat to global pixel coordinates at zoom z, clamped to the
// edge of the world.
func px(lon, lat float64, z int) (float64, float64) {
	worldSize := gridSize * math.Exp2(float64(z))
	center := worldSize / 2

	f := math.Min(math.Max(math.Sin(d2r*lat), -0.9999), 0.9999)
	x := jsRound(center + lon*(worldSize/360))
	y := jsRound(center + 0.5*math.Log((1+f)/(1-f))*(-worldSize/(2*math.Pi)))

	if x > worldSize {
		x = worldSize
	}
	if y > worldSize {
		y = worldSize
	}
	return x, y
}

// jsRound rounds halves towards positive infinity.
func jsRound(v float64) float64 {
	return math.Floor(v + 0.5)
}

// GridRange computes the tile index range that bounds covers at zoom z. Rows
// are counted from the top of the world.
func GridRange(bounds [4]float64, z int) Range {
	llx, lly := px(bounds[0], bounds[1], z)
	urx, ury := px(bounds[2], bounds[3], z)

	x0 := int(math.Floor(llx / gridSize))
	x1 := int(math.Floor((urx - 1) / gridSize))
	y0 := int(math.Floor(ury / gridSize))
	y1 := int(math.Floor((lly - 1) / gridSize))

	r := Range{
		MinX: minInt(x0, x1),
		MinY: minInt(y0, y1),
		MaxX: maxInt(x0, x1),
		MaxY: maxInt(y0, y1),
	}
	if r.MinX < 0 {
		r.MinX = 0
	}
	if r.MinY < 0 {
		r.MinY = 0
	}
	return r
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
