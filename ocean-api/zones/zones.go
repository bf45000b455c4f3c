// Package zones holds the fishing zone catalog and point-in-zone lookups.
package zones

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gopkg.in/yaml.v3"

	"ocean-platform/ocean-api/domain"
)

//go:embed zones.yaml
var defaultCatalog []byte

// Catalog is an immutable set of fishing zones.
type Catalog struct {
	zones []domain.FishingZone
}

type catalogFile struct {
	Zones []domain.FishingZone `yaml:"zones"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("zones: embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file; an empty path yields the default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode zones: %w", err)
	}
	for _, z := range f.Zones {
		if z.Name == "" {
			return nil, fmt.Errorf("zone without name")
		}
		if z.RadiusM <= 0 {
			return nil, fmt.Errorf("zone %q: radius must be positive", z.Name)
		}
		switch z.Status {
		case domain.ZoneOpen, domain.ZoneClosed, domain.ZoneSeasonal:
		default:
			return nil, fmt.Errorf("zone %q: unknown status %q", z.Name, z.Status)
		}
	}
	return &Catalog{zones: f.Zones}, nil
}

// All returns a copy of every zone.
func (c *Catalog) All() []domain.FishingZone {
	return append([]domain.FishingZone(nil), c.zones...)
}

// Lookup returns the zones whose circle contains the point.
func (c *Catalog) Lookup(lat, lon float64) []domain.FishingZone {
	p := orb.Point{lon, lat}
	out := []domain.FishingZone{}
	for _, z := range c.zones {
		if geo.DistanceHaversine(p, orb.Point{z.Longitude, z.Latitude}) <= z.RadiusM {
			out = append(out, z)
		}
	}
	return out
}

// Closed reports whether the point lies in any closed zone.
func (c *Catalog) Closed(lat, lon float64) bool {
	for _, z := range c.Lookup(lat, lon) {
		if z.Status == domain.ZoneClosed {
			return true
		}
	}
	return false
}
