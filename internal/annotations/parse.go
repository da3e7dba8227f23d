package annotations

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/nodule"
	"github.com/mvp-joe/nodule-extract/internal/tree"
)

const noduleIDPrefix = "Nodule "

// NormalizeID strips the "Nodule " prefix and rewrites a numeric id through
// an integer round trip so "Nodule 007", "007" and "7" collide.
func NormalizeID(id string) string {
	id = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), noduleIDPrefix))
	if n, err := strconv.Atoi(id); err == nil {
		return strconv.Itoa(n)
	}
	return id
}

// ParseDocument reads one annotation document and merges its nodules into
// set. The document is staged first, so a failure anywhere leaves set
// untouched.
func ParseDocument(r io.Reader, set *nodule.Set) error {
	doc, err := tree.Parse(r)
	if err != nil {
		return err
	}

	staged, err := extract(doc.Root())
	if err != nil {
		return err
	}
	set.MergeSet(staged)
	return nil
}

func extract(root *tree.Node) (*nodule.Set, error) {
	header, ok := root.Child("ResponseHeader")
	if !ok {
		return nil, errors.NewFieldError("ResponseHeader", "document", "")
	}
	study := header.String("StudyInstanceUID")
	if study == "" {
		return nil, errors.NewFieldError("StudyInstanceUID", "response header", "")
	}
	series := header.String("SeriesInstanceUid")
	if series == "" {
		return nil, errors.NewFieldError("SeriesInstanceUid", "response header", "")
	}

	staged := nodule.NewSet()
	sessions, _ := root.Get("ReadingSession")
	for _, session := range sessions.Nodes() {
		reads, _ := session.Get("UnblindedReadNodule")
		for _, read := range reads.Nodes() {
			n, err := parseNodule(read, study, series)
			if err != nil {
				return nil, err
			}
			staged.Merge(n)
		}
	}
	return staged, nil
}

func parseNodule(read *tree.Node, study, series string) (*nodule.Nodule, error) {
	raw := read.String("noduleID")
	id := NormalizeID(raw)
	if id == "" {
		return nil, errors.NewFieldError("noduleID", "unblinded read nodule", "")
	}

	n := nodule.New(study, series, id)
	record := fmt.Sprintf("nodule %q", raw)

	rois, _ := read.Get("roi")
	for _, roi := range rois.Nodes() {
		s, include, err := parseROI(roi, record)
		if err != nil {
			return nil, err
		}
		if include {
			n.AddSlices(s)
		}
	}
	return n, nil
}

func parseROI(roi *tree.Node, record string) (nodule.Slice, bool, error) {
	uid := roi.String("imageSOP_UID")
	if uid == "" {
		return nodule.Slice{}, false, errors.NewFieldError("imageSOP_UID", record, "")
	}

	rawZ := roi.String("imageZposition")
	if rawZ == "" {
		return nodule.Slice{}, false, errors.NewFieldError("imageZposition", record, "")
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(rawZ), 64)
	if err != nil {
		return nodule.Slice{}, false, errors.NewFieldError("imageZposition", record, "is not a number")
	}

	inclusion := roi.String("inclusion")
	if inclusion == "" {
		return nodule.Slice{}, false, errors.NewFieldError("inclusion", record, "")
	}
	include := strings.EqualFold(strings.TrimSpace(inclusion), "true")

	edges, _ := roi.Get("edgeMap")
	var points []nodule.Point
	for _, edge := range edges.Nodes() {
		x, err := coordinate(edge, "xCoord", record)
		if err != nil {
			return nodule.Slice{}, false, err
		}
		y, err := coordinate(edge, "yCoord", record)
		if err != nil {
			return nodule.Slice{}, false, err
		}
		points = append(points, nodule.Point{X: x, Y: y})
	}

	if !include {
		return nodule.Slice{}, false, nil
	}
	return nodule.NewSlice(uid, z, points), true, nil
}

func coordinate(edge *tree.Node, field, record string) (int, error) {
	raw := strings.TrimSpace(edge.String(field))
	if raw == "" {
		return 0, errors.NewFieldError(field, record, "")
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewFieldError(field, record, "is not an integer")
	}
	return v, nil
}
