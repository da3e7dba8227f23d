package nodule

import (
	"encoding/json"
	"sort"
)

// Set holds nodules keyed by identity.
type Set struct {
	nodules map[Key]*Nodule
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{nodules: make(map[Key]*Nodule)}
}

// Merge inserts n, or unions its slices into the nodule already stored
// under the same key. The stored nodule is returned.
func (s *Set) Merge(n *Nodule) *Nodule {
	k := n.Key()
	if existing, ok := s.nodules[k]; ok {
		existing.AddSlices(n.Slices()...)
		return existing
	}
	s.nodules[k] = n
	return n
}

// MergeSet merges every nodule of other into s.
func (s *Set) MergeSet(other *Set) {
	for _, n := range other.Sorted() {
		s.Merge(n)
	}
}

// Get returns the nodule stored under k.
func (s *Set) Get(k Key) (*Nodule, bool) {
	n, ok := s.nodules[k]
	return n, ok
}

// Remove deletes the nodule stored under k.
func (s *Set) Remove(k Key) {
	delete(s.nodules, k)
}

// Len returns the number of nodules.
func (s *Set) Len() int {
	return len(s.nodules)
}

// SliceCount returns the number of slices over all nodules.
func (s *Set) SliceCount() int {
	total := 0
	for _, n := range s.nodules {
		total += n.Len()
	}
	return total
}

// Sorted returns the nodules ordered by study, series and id.
func (s *Set) Sorted() []*Nodule {
	out := make([]*Nodule, 0, len(s.nodules))
	for _, n := range s.nodules {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Study != b.Study {
			return a.Study < b.Study
		}
		if a.Series != b.Series {
			return a.Series < b.Series
		}
		return a.ID < b.ID
	})
	return out
}

// Record is the serialized form of a nodule.
type Record struct {
	Study      string  `json:"study" yaml:"study"`
	Series     string  `json:"series" yaml:"series"`
	NoduleID   string  `json:"nodule_id" yaml:"nodule_id"`
	Malignancy string  `json:"malignancy" yaml:"malignancy"`
	Slices     []Slice `json:"slices" yaml:"slices"`
}

// Records returns the set in serialized form, sorted.
func (s *Set) Records() []Record {
	nodules := s.Sorted()
	out := make([]Record, 0, len(nodules))
	for _, n := range nodules {
		out = append(out, Record{
			Study:      n.Study,
			Series:     n.Series,
			NoduleID:   n.ID,
			Malignancy: n.Malignancy,
			Slices:     n.Slices(),
		})
	}
	return out
}

// FromRecords rebuilds a set from its serialized form.
func FromRecords(records []Record) *Set {
	s := NewSet()
	for _, r := range records {
		n := New(r.Study, r.Series, r.NoduleID)
		if r.Malignancy != "" {
			n.Malignancy = r.Malignancy
		}
		n.AddSlices(r.Slices...)
		s.Merge(n)
	}
	return s
}

// MarshalJSON implements json.Marshaler.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Records())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Set) UnmarshalJSON(data []byte) error {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = *FromRecords(records)
	return nil
}
