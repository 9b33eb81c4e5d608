package geo

import (
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// WGS84 ellipsoid constants
const (
	// SemiMajorAxis is the equatorial radius in meters
	SemiMajorAxis = 6378137.0
	// Flattening of the ellipsoid
	Flattening = 1.0 / 298.257223563
	// EccentricitySq is the first eccentricity squared
	EccentricitySq = Flattening * (2 - Flattening)
	// SecondEccentricitySq is the second eccentricity squared
	SecondEccentricitySq = EccentricitySq / (1 - EccentricitySq)
)

const degToRad = math.Pi / 180

// Converter converts between geodetic, planet-centered Cartesian and UTM positions.
// Implementations are stateless; a false return means the input is outside the
// domain the converter can represent.
type Converter interface {
	// GeodeticToUTM projects pos into UTM. zone <= 0 selects the natural zone of pos,
	// a positive zone forces the projection into that zone.
	GeodeticToUTM(pos LatPos, zone int) (UTMPos, bool)
	UTMToGeodetic(pos UTMPos) (LatPos, bool)
	GeodeticToCartesian(pos LatPos) (CartPos, bool)
	CartesianToGeodetic(pos CartPos) (LatPos, bool)
	// OrientationAt returns the East-North-Up tangent basis at a Cartesian point.
	OrientationAt(pos CartPos) (mgl32.Mat3, bool)
}

// WGS84 is the Converter for the WGS84 ellipsoid
type WGS84 struct{}

// NewWGS84 returns a WGS84 converter
func NewWGS84() *WGS84 {
	return &WGS84{}
}

var _ Converter = (*WGS84)(nil)

// GeodeticToCartesian converts a geodetic position to ECEF coordinates
func (WGS84) GeodeticToCartesian(pos LatPos) (CartPos, bool) {
	if err := ValidateLatPos(pos); err != nil {
		log.Printf("[Geo] Warning: geodetic to cartesian declined: %v", err)
		return CartPos{}, false
	}
	lat := pos.Lat * degToRad
	lon := pos.Lon * degToRad
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)

	// Radius of curvature in the prime vertical
	n := SemiMajorAxis / math.Sqrt(1-EccentricitySq*sinLat*sinLat)

	return CartPos{
		X: (n + pos.Alt) * cosLat * math.Cos(lon),
		Y: (n + pos.Alt) * cosLat * math.Sin(lon),
		Z: (n*(1-EccentricitySq) + pos.Alt) * sinLat,
	}, true
}

// CartesianToGeodetic converts ECEF coordinates to a geodetic position
// using the iterative Bowring method.
func (WGS84) CartesianToGeodetic(pos CartPos) (LatPos, bool) {
	if err := ValidateCartPos(pos); err != nil {
		log.Printf("[Geo] Warning: cartesian to geodetic declined: %v", err)
		return LatPos{}, false
	}
	p := math.Hypot(pos.X, pos.Y)
	if p == 0 && pos.Z == 0 {
		// Planet center has no geodetic representation
		return LatPos{}, false
	}

	lon := math.Atan2(pos.Y, pos.X)
	lat := math.Atan2(pos.Z, p*(1-EccentricitySq))

	for i := 0; i < 10; i++ {
		sinLat := math.Sin(lat)
		n := SemiMajorAxis / math.Sqrt(1-EccentricitySq*sinLat*sinLat)
		next := math.Atan2(pos.Z+EccentricitySq*n*sinLat, p)
		if math.Abs(next-lat) < 1e-12 {
			lat = next
			break
		}
		lat = next
	}

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := SemiMajorAxis / math.Sqrt(1-EccentricitySq*sinLat*sinLat)
	// Stable at all latitudes, including the poles
	alt := p*cosLat + pos.Z*sinLat - SemiMajorAxis*SemiMajorAxis/n

	return LatPos{
		Lat: lat / degToRad,
		Lon: lon / degToRad,
		Alt: alt,
	}, true
}

// OrientationAt returns the East-North-Up basis at an ECEF point.
// Columns are East, North and Up.
func (w WGS84) OrientationAt(pos CartPos) (mgl32.Mat3, bool) {
	lp, ok := w.CartesianToGeodetic(pos)
	if !ok {
		return mgl32.Mat3{}, false
	}
	return enuBasis(lp.Lat*degToRad, lp.Lon*degToRad), true
}

func enuBasis(lat, lon float64) mgl32.Mat3 {
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	east := mgl32.Vec3{float32(-sinLon), float32(cosLon), 0}
	north := mgl32.Vec3{
		float32(-sinLat * cosLon),
		float32(-sinLat * sinLon),
		float32(cosLat),
	}
	up := mgl32.Vec3{
		float32(cosLat * cosLon),
		float32(cosLat * sinLon),
		float32(sinLat),
	}
	return mgl32.Mat3FromCols(east, north, up)
}
