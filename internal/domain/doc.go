// Package domain models the monitoring-site registry of an environmental
// sensor network and the ports its enrichment pipeline talks to.
//
// # Sites
//
// A site is a physical location hosting one or more sensors. Callers submit a
// raw (latitude, longitude, name) triple; the registry turns it into a fully
// qualified record:
//
//	true coordinates      →  approximate (public) coordinates + bearing
//	tenant counter        →  generated name, e.g. "site_42"
//	reverse geocoder      →  country, region, district, city, street, tags
//	elevation service     →  altitude (metres above sea level)
//	weather directory     →  nearest weather station
//	airqloud polygons     →  ids of every airqloud containing the site
//
// # Tenants
//
// Every operation is scoped to a tenant. Tenants own separate site collections
// and separate unique-identifier counters, so "site_1" may exist once per tenant.
//
// # Coordinates
//
// Coordinates are WGS-84 decimal degrees. Latitude is in [-90, 90] and longitude
// in [-180, 180]. Airqloud boundaries arrive as GeoJSON rings of [lng, lat]
// pairs and are converted to Coordinate at the adapter boundary.
//
// # Degradation
//
// Reverse geocoding is the only enrichment source whose failure aborts a create
// or refresh. Elevation, weather-station and airqloud lookups degrade to an
// absent field and are logged.
package domain
