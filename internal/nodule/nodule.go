// Package nodule holds the reconciled records: slices identified by their
// contour and position, nodules identified by (study, series, nodule id),
// and the set that merges them.
package nodule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mvp-joe/nodule-extract/internal/geometry"
)

// UnknownMalignancy is the diagnosis code of a nodule that has not been
// joined with the diagnosis table, or whose patient has no diagnosis.
const UnknownMalignancy = "unknown"

// AreaTolerance is the boundary tolerance used when counting slice area.
const AreaTolerance = 0.001

// Point is an integer pixel coordinate.
type Point = geometry.Point

// Slice is one included region of interest on one image.
type Slice struct {
	ImageUID  string  `json:"image_uid" yaml:"image_uid"`
	ZPosition float64 `json:"z_position" yaml:"z_position"`
	Points    []Point `json:"points" yaml:"points"`
	Area      int     `json:"area" yaml:"area"`
}

// NewSlice creates a slice and computes its area once.
func NewSlice(imageUID string, z float64, points []Point) Slice {
	pts := make([]Point, len(points))
	copy(pts, points)
	return Slice{
		ImageUID:  imageUID,
		ZPosition: z,
		Points:    pts,
		Area:      geometry.Area(pts, AreaTolerance),
	}
}

// Key returns the identity of the slice: image, position and contour.
func (s Slice) Key() string {
	var b strings.Builder
	b.WriteString(s.ImageUID)
	b.WriteByte('|')
	z := s.ZPosition
	if z == 0 {
		z = 0 // -0 and +0 are the same position
	}
	b.WriteString(strconv.FormatFloat(z, 'g', -1, 64))
	b.WriteByte('|')
	for i, p := range s.Points {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Itoa(p.X))
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(p.Y))
	}
	return b.String()
}

// Equal reports whether two slices have the same identity.
func (s Slice) Equal(o Slice) bool {
	return s.Key() == o.Key()
}

// Key identifies a nodule.
type Key struct {
	Study  string
	Series string
	ID     string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Study, k.Series, k.ID)
}

// Nodule is one physical nodule aggregated over reading sessions and files.
type Nodule struct {
	Study      string
	Series     string
	ID         string
	Malignancy string

	slices map[string]Slice
}

// New creates a nodule with no slices and an unknown malignancy.
func New(study, series, id string) *Nodule {
	return &Nodule{
		Study:      study,
		Series:     series,
		ID:         id,
		Malignancy: UnknownMalignancy,
		slices:     make(map[string]Slice),
	}
}

// Key returns the nodule identity.
func (n *Nodule) Key() Key {
	return Key{Study: n.Study, Series: n.Series, ID: n.ID}
}

// AddSlices unions slices into the nodule and returns how many were new.
func (n *Nodule) AddSlices(slices ...Slice) int {
	if n.slices == nil {
		n.slices = make(map[string]Slice)
	}
	added := 0
	for _, s := range slices {
		k := s.Key()
		if _, ok := n.slices[k]; !ok {
			added++
		}
		n.slices[k] = s
	}
	return added
}

// ReplaceSlices swaps the slice set for the given slices.
func (n *Nodule) ReplaceSlices(slices []Slice) {
	n.slices = make(map[string]Slice, len(slices))
	n.AddSlices(slices...)
}

// Slices returns the slices ordered by z position, then image uid.
func (n *Nodule) Slices() []Slice {
	out := make([]Slice, 0, len(n.slices))
	for _, s := range n.slices {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessSlice(out[i], out[j])
	})
	return out
}

// Len returns the number of slices.
func (n *Nodule) Len() int {
	return len(n.slices)
}

// BestSlice returns the slice with the largest area.
func (n *Nodule) BestSlice() (Slice, bool) {
	var best Slice
	found := false
	for _, s := range n.Slices() {
		if !found || s.Area > best.Area {
			best = s
			found = true
		}
	}
	return best, found
}

// Clone returns a copy that shares no slice storage with n.
func (n *Nodule) Clone() *Nodule {
	c := New(n.Study, n.Series, n.ID)
	c.Malignancy = n.Malignancy
	for k, s := range n.slices {
		c.slices[k] = s
	}
	return c
}

func lessSlice(a, b Slice) bool {
	if a.ZPosition != b.ZPosition {
		return a.ZPosition < b.ZPosition
	}
	if a.ImageUID != b.ImageUID {
		return a.ImageUID < b.ImageUID
	}
	return a.Key() < b.Key()
}
