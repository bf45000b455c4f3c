package domain

import (
	"time"

	"github.com/paulmach/orb"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Query filters a dataset listing. Zero values mean "no filter".
type Query struct {
	Species    string
	VesselID   string
	VesselType string
	ReportedBy string
	Bounds     *orb.Bound
	Since      time.Time
	Until      time.Time
	Limit      int
	PageToken  string
}

// PageSize returns the effective limit.
func (q Query) PageSize() int {
	switch {
	case q.Limit <= 0:
		return DefaultPageSize
	case q.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return q.Limit
	}
}

// ContainsPoint reports whether the location passes the bounding box filter.
func (q Query) ContainsPoint(lat, lon float64) bool {
	if q.Bounds == nil {
		return true
	}
	return q.Bounds.Contains(orb.Point{lon, lat})
}

// InWindow reports whether t passes the time window filter. Since is
// inclusive and Until exclusive.
func (q Query) InWindow(t time.Time) bool {
	if !q.Since.IsZero() && t.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !t.Before(q.Until) {
		return false
	}
	return true
}
