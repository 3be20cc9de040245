package google

import (
	"slices"

	"github.com/couchcryptid/site-registry/internal/domain"
	"googlemaps.github.io/maps"
)

// AddressFromResult flattens a geocoding result into a domain address.
//
// Each component is matched against every rule in order; a component that
// carries several listed types fills every matching target. When two
// components map to the same field the later one wins.
func AddressFromResult(r maps.GeocodingResult) domain.AddressResult {
	var out domain.AddressResult
	a := &out.Address

	for _, comp := range r.AddressComponents {
		name := comp.LongName
		if hasAny(comp.Types, "locality", "administrative_area_level_3") {
			a.Town, a.City = name, name
		}
		if hasAny(comp.Types, "administrative_area_level_2") {
			a.District, a.County = name, name
		}
		if hasAny(comp.Types, "administrative_area_level_1") {
			a.Region = name
		}
		if hasAny(comp.Types, "route") {
			a.Street = name
		}
		if hasAny(comp.Types, "country") {
			a.Country = name
		}
		if hasAny(comp.Types, "sublocality", "sublocality_level_1") {
			a.Parish, a.Division, a.Village, a.SubCounty = name, name, name, name
		}
		out.Tags = appendUnique(out.Tags, comp.Types...)
	}
	out.Tags = appendUnique(out.Tags, r.Types...)

	a.FormattedName = r.FormattedAddress
	a.PlaceID = r.PlaceID
	return out
}

func hasAny(types []string, want ...string) bool {
	for _, w := range want {
		if slices.Contains(types, w) {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v != "" && !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
