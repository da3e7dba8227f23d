// Package imageindex maps (study, series, image uid) to the image file
// holding it, built from the metadata headers of an image directory.
package imageindex

import (
	"encoding/json"
	"sort"
)

// Entry is one indexed image file.
type Entry struct {
	Path      string `json:"path"`
	PatientID string `json:"patient_id"`
}

// Index is the three level study, series, image lookup. It is read-only
// once Build returns.
type Index struct {
	studies map[string]map[string]map[string]Entry
	size    int
}

// New creates an empty index.
func New() *Index {
	return &Index{studies: make(map[string]map[string]map[string]Entry)}
}

// Add stores an entry and returns the entry it replaced, if any.
func (x *Index) Add(study, series, imageUID string, e Entry) (Entry, bool) {
	seriesMap, ok := x.studies[study]
	if !ok {
		seriesMap = make(map[string]map[string]Entry)
		x.studies[study] = seriesMap
	}
	images, ok := seriesMap[series]
	if !ok {
		images = make(map[string]Entry)
		seriesMap[series] = images
	}
	prev, replaced := images[imageUID]
	images[imageUID] = e
	if !replaced {
		x.size++
	}
	return prev, replaced
}

// Series returns the images of one series. The first missing level, "study"
// or "series", is reported when the series is not indexed.
func (x *Index) Series(study, series string) (map[string]Entry, string, bool) {
	seriesMap, ok := x.studies[study]
	if !ok {
		return nil, "study", false
	}
	images, ok := seriesMap[series]
	if !ok {
		return nil, "series", false
	}
	return images, "", true
}

// Lookup resolves one image.
func (x *Index) Lookup(study, series, imageUID string) (Entry, string, bool) {
	images, level, ok := x.Series(study, series)
	if !ok {
		return Entry{}, level, false
	}
	e, ok := images[imageUID]
	if !ok {
		return Entry{}, "image", false
	}
	return e, "", true
}

// Len returns the number of indexed images.
func (x *Index) Len() int {
	return x.size
}

// Studies returns the number of indexed studies.
func (x *Index) Studies() int {
	return len(x.studies)
}

// Patients returns the distinct patient ids in sorted order.
func (x *Index) Patients() []string {
	seen := make(map[string]struct{})
	for _, seriesMap := range x.studies {
		for _, images := range seriesMap {
			for _, e := range images {
				if e.PatientID != "" {
					seen[e.PatientID] = struct{}{}
				}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarshalJSON implements json.Marshaler.
func (x *Index) MarshalJSON() ([]byte, error) {
	return json.Marshal(x.studies)
}

// UnmarshalJSON implements json.Unmarshaler.
func (x *Index) UnmarshalJSON(data []byte) error {
	var studies map[string]map[string]map[string]Entry
	if err := json.Unmarshal(data, &studies); err != nil {
		return err
	}
	*x = *New()
	for study, seriesMap := range studies {
		for series, images := range seriesMap {
			for uid, e := range images {
				x.Add(study, series, uid, e)
			}
		}
	}
	return nil
}
