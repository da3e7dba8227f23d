// Package geometry implements the polygon tests used to mask and measure
// annotated contours.
package geometry

import "math"

// Point is an integer pixel coordinate.
type Point struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Rect is an integer bounding box. Max is inclusive for the contour and
// exclusive when used as a crop.
type Rect struct {
	MinX, MinY int
	MaxX, MaxY int
}

// Dx returns the crop width.
func (r Rect) Dx() int { return r.MaxX - r.MinX }

// Dy returns the crop height.
func (r Rect) Dy() int { return r.MaxY - r.MinY }

// Empty reports whether the crop has no pixels.
func (r Rect) Empty() bool { return r.Dx() <= 0 || r.Dy() <= 0 }

// Intersect clips r to the [0,w) x [0,h) grid.
func (r Rect) Intersect(w, h int) Rect {
	return Rect{
		MinX: max(r.MinX, 0),
		MinY: max(r.MinY, 0),
		MaxX: min(r.MaxX, w),
		MaxY: min(r.MaxY, h),
	}
}

// Bounds returns the bounding box of points. The zero Rect is returned for
// an empty contour.
func Bounds(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := Rect{MinX: points[0].X, MinY: points[0].Y, MaxX: points[0].X, MaxY: points[0].Y}
	for _, p := range points[1:] {
		r.MinX = min(r.MinX, p.X)
		r.MinY = min(r.MinY, p.Y)
		r.MaxX = max(r.MaxX, p.X)
		r.MaxY = max(r.MaxY, p.Y)
	}
	return r
}

// Polygon is a closed contour with a boundary tolerance. A pixel counts as
// inside when the even-odd rule says so or when it lies within the
// tolerance of an edge.
type Polygon struct {
	points    []Point
	tolerance float64
}

// NewPolygon creates a polygon. The contour is closed implicitly.
func NewPolygon(points []Point, tolerance float64) Polygon {
	return Polygon{points: points, tolerance: math.Abs(tolerance)}
}

// Contains tests whether (x, y) is inside or on the boundary.
func (p Polygon) Contains(x, y float64) bool {
	n := len(p.points)
	if n == 0 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := float64(p.points[i].X), float64(p.points[i].Y)
		xj, yj := float64(p.points[j].X), float64(p.points[j].Y)

		if segmentDistance(x, y, xi, yi, xj, yj) <= p.tolerance {
			return true
		}
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// SignedArea returns the shoelace area of the contour.
func (p Polygon) SignedArea() float64 {
	n := len(p.points)
	var sum float64
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		sum += float64(p.points[j].X*p.points[i].Y - p.points[i].X*p.points[j].Y)
	}
	return sum / 2
}

// Degenerate reports whether the contour encloses no area, for example when
// all points are collinear.
func (p Polygon) Degenerate() bool {
	return len(p.points) < 3 || p.SignedArea() == 0
}

// Area counts the pixels of a local grid covering the contour's bounding
// box, translated to the origin, that the polygon contains.
func Area(points []Point, tolerance float64) int {
	if len(points) == 0 {
		return 0
	}
	b := Bounds(points)
	local := make([]Point, len(points))
	for i, pt := range points {
		local[i] = Point{X: pt.X - b.MinX, Y: pt.Y - b.MinY}
	}
	poly := NewPolygon(local, tolerance)

	count := 0
	for y := 0; y <= b.Dy(); y++ {
		for x := 0; x <= b.Dx(); x++ {
			if poly.Contains(float64(x), float64(y)) {
				count++
			}
		}
	}
	return count
}

func segmentDistance(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}
