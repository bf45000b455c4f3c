package domain

import (
	"sort"
	"strings"
)

// ValidationError maps field names to what is wrong with them.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+v[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Add records the first problem found for a field.
func (v ValidationError) Add(field, msg string) {
	if _, ok := v[field]; !ok {
		v[field] = msg
	}
}

// OrNil returns nil when no problem was recorded.
func (v ValidationError) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

func checkCoordinates(v ValidationError, lat, lon float64) {
	if !inRange(lat, -90, 90) {
		v.Add("latitude", "must be in [-90, 90]")
	}
	if !inRange(lon, -180, 180) {
		v.Add("longitude", "must be in [-180, 180]")
	}
}

// inRange reports whether v lies in [lo, hi]. NaN is never in range.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
