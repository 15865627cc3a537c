// Package coordinates provides the great-circle geometry used to filter
// reference data and rank nearby aircraft and facilities.
//
// All positions are WGS84 decimal degrees. Distances are computed on a
// sphere of mean Earth radius and ignore altitude.
package coordinates

import "math"

const (
	// EarthRadiusKm is the WGS84 mean radius.
	EarthRadiusKm = 6371.0

	// KmPerNauticalMile is the international nautical mile.
	KmPerNauticalMile = 1.852

	earthRadiusNM = EarthRadiusKm / KmPerNauticalMile

	// boxMargin widens bounding boxes so that points sitting exactly on the
	// search circle are not lost to floating point rounding.
	boxMargin = 1.0001

	// boxEpsilonDeg keeps zero-radius boxes from rejecting their own center.
	boxEpsilonDeg = 1e-9
)

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Geographic is a WGS84 position. North and East are positive.
type Geographic struct {
	Latitude  float64 `json:"latitude" msgpack:"lat"`
	Longitude float64 `json:"longitude" msgpack:"lon"`
}

func (g Geographic) rad() (lat, lon float64) {
	return radians(g.Latitude), radians(g.Longitude)
}

// Box is a latitude/longitude rectangle. Bounds are inclusive.
type Box struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p Geographic) bool {
	return p.Latitude >= b.South && p.Latitude <= b.North &&
		p.Longitude >= b.West && p.Longitude <= b.East
}

// NormalizeAzimuth wraps an angle in degrees into [0, 360).
func NormalizeAzimuth(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		return 0
	}
	return deg
}

// Bearing is the initial great-circle course from one point to another in
// degrees true, 0 for identical points.
func Bearing(from, to Geographic) float64 {
	if from == to {
		return 0
	}
	φ1, λ1 := from.rad()
	φ2, λ2 := to.rad()
	Δλ := λ2 - λ1

	east := math.Sin(Δλ) * math.Cos(φ2)
	north := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	if east == 0 && north == 0 {
		return 0
	}
	return NormalizeAzimuth(degrees(math.Atan2(east, north)))
}

// hav is the haversine of an angle.
func hav(θ float64) float64 {
	s := math.Sin(θ / 2)
	return s * s
}

// DistanceNauticalMiles is the haversine great-circle distance.
func DistanceNauticalMiles(from, to Geographic) float64 {
	if from == to {
		return 0
	}
	φ1, λ1 := from.rad()
	φ2, λ2 := to.rad()

	h := min(hav(φ2-φ1)+math.Cos(φ1)*math.Cos(φ2)*hav(λ2-λ1), 1)
	return 2 * earthRadiusNM * math.Asin(math.Sqrt(h))
}

// Destination is the point reached after flying distanceNM along a great
// circle that leaves from on the given initial course.
func Destination(from Geographic, courseDeg, distanceNM float64) Geographic {
	φ1, λ1 := from.rad()
	θ := radians(courseDeg)
	δ := distanceNM / earthRadiusNM

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(math.Sin(θ)*math.Sin(δ)*math.Cos(φ1), math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2))

	return Geographic{
		Latitude:  degrees(φ2),
		Longitude: wrapLongitude(degrees(λ2)),
	}
}

func wrapLongitude(lon float64) float64 {
	switch {
	case lon > 180:
		return lon - 360
	case lon < -180:
		return lon + 360
	}
	return lon
}

// BoundingBoxAround returns a box that contains every point within radiusNM
// of center.
//
// The latitude span is the angular radius of the circle. The longitude span
// is asin(sin(r)/cos(lat)), which is the exact half-width of a spherical cap
// and is always at least r/cos(lat) for small radii. The box over-approximates:
//   - if the circle reaches a pole, the box spans every longitude and is
//     clamped to ±90° latitude;
//   - if the circle crosses the antimeridian, the box spans every longitude
//     rather than being split in two.
//
// Extreme latitudes never fail; they only produce wider boxes.
func BoundingBoxAround(center Geographic, radiusNM float64) Box {
	if radiusNM < 0 || math.IsNaN(radiusNM) {
		radiusNM = 0
	}

	angular := radiusNM / earthRadiusNM * boxMargin
	dLat := degrees(angular) + boxEpsilonDeg

	box := Box{
		South: center.Latitude - dLat,
		North: center.Latitude + dLat,
		West:  -180,
		East:  180,
	}

	if box.North >= 90 || box.South <= -90 {
		box.North = math.Min(box.North, 90)
		box.South = math.Max(box.South, -90)
		return box
	}

	ratio := math.Sin(angular) / math.Cos(radians(center.Latitude))
	if ratio >= 1 || angular >= math.Pi/2 {
		return box
	}

	dLon := degrees(math.Asin(ratio)) + boxEpsilonDeg
	west, east := center.Longitude-dLon, center.Longitude+dLon
	if west < -180 || east > 180 {
		return box
	}

	box.West, box.East = west, east
	return box
}
