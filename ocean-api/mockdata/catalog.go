package mockdata

import "github.com/paulmach/orb"

// Species caught off the south-west Indian coast, keyed by scientific name.
var Species = []struct {
	Scientific string
	Common     string
}{
	{"Thunnus albacares", "Yellowfin tuna"},
	{"Scomberomorus commerson", "Narrow-barred Spanish mackerel"},
	{"Lutjanus argentimaculatus", "Mangrove red snapper"},
	{"Epinephelus coioides", "Orange-spotted grouper"},
	{"Rastrelliger kanagurta", "Indian mackerel"},
	{"Sardinella longiceps", "Indian oil sardine"},
	{"Katsuwonus pelamis", "Skipjack tuna"},
	{"Euthynnus affinis", "Kawakawa"},
}

// Region is the Arabian Sea box the generator scatters records in.
var Region = orb.Bound{Min: orb.Point{72, 8}, Max: orb.Point{78, 16}}

var markers = []string{"COI", "12S", "16S"}
