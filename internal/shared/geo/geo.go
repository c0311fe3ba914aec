package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Box is a lat/lng rectangle. When MinLng > MaxLng the box crosses the
// antimeridian and covers [MinLng, 180] plus [-180, MaxLng].
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns the smallest box containing every point within radiusKm
// of (lat, lng). The longitude spread widens with latitude, and a circle that
// reaches a pole spans every longitude.
func BoundingBox(lat, lng, radiusKm float64) Box {
	angular := radiusKm / earthRadiusKm
	delta := toDeg(angular)
	box := Box{MinLat: lat - delta, MaxLat: lat + delta, MinLng: -180, MaxLng: 180}
	if box.MinLat <= -90 || box.MaxLat >= 90 || angular >= math.Pi/2 {
		box.MinLat = math.Max(box.MinLat, -90)
		box.MaxLat = math.Min(box.MaxLat, 90)
		return box
	}

	spread := math.Sin(angular) / math.Cos(toRad(lat))
	if spread >= 1 {
		return box
	}
	dLng := toDeg(math.Asin(spread))
	if dLng >= 180 {
		return box
	}
	box.MinLng = wrapLng(lng - dLng)
	box.MaxLng = wrapLng(lng + dLng)
	return box
}

// Wraps reports whether the box crosses the antimeridian.
func (b Box) Wraps() bool {
	return b.MinLng > b.MaxLng
}

// LngRanges splits the longitude span into two closed ranges usable in SQL
// BETWEEN clauses. A box that does not wrap returns its span twice.
func (b Box) LngRanges() [2][2]float64 {
	if b.Wraps() {
		return [2][2]float64{{b.MinLng, 180}, {-180, b.MaxLng}}
	}
	span := [2]float64{b.MinLng, b.MaxLng}
	return [2][2]float64{span, span}
}

func (b Box) Contains(lat, lng float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	if b.Wraps() {
		return lng >= b.MinLng || lng <= b.MaxLng
	}
	return lng >= b.MinLng && lng <= b.MaxLng
}

// LngScale is the east-west length of a degree relative to a degree of
// latitude at lat, floored so distances near the poles stay ordered.
func LngScale(lat float64) float64 {
	return math.Max(math.Cos(toRad(lat)), 0.01)
}

func ValidLat(lat float64) bool {
	return !math.IsNaN(lat) && lat >= -90 && lat <= 90
}

func ValidLng(lng float64) bool {
	return !math.IsNaN(lng) && lng >= -180 && lng <= 180
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

func wrapLng(lng float64) float64 {
	switch {
	case lng > 180:
		return lng - 360
	case lng < -180:
		return lng + 360
	}
	return lng
}
