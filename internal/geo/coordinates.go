package geo

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// LatPos is a geodetic position on the WGS84 ellipsoid
// Lat: latitude in degrees, positive north
// Lon: longitude in degrees, positive east
// Alt: height above the ellipsoid in meters
type LatPos struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// CartPos is a planet-centered, planet-fixed Cartesian position (ECEF)
// (0,0,0) = center of the planet
// +X = intersection of equator and prime meridian
// +Y = 90°E on the equator
// +Z = North Pole
type CartPos struct {
	X float64 `json:"x"` // meters
	Y float64 `json:"y"` // meters
	Z float64 `json:"z"` // meters
}

// UTMPos is a position in Universal Transverse Mercator coordinates
type UTMPos struct {
	Zone     int     `json:"zone"`     // 1..60
	North    bool    `json:"north"`    // hemisphere
	Easting  float64 `json:"easting"`  // meters, false easting 500,000 included
	Northing float64 `json:"northing"` // meters, false northing included in the south
	Height   float64 `json:"height"`   // meters above the ellipsoid
}

// Vec returns the position as a double precision vector
func (c CartPos) Vec() mgl64.Vec3 {
	return mgl64.Vec3{c.X, c.Y, c.Z}
}

// CartFromVec builds a CartPos from a double precision vector
func CartFromVec(v mgl64.Vec3) CartPos {
	return CartPos{X: v[0], Y: v[1], Z: v[2]}
}

// UTMToGlobal maps a UTM position onto the engine axes.
// The engine is right-handed and Y-up, so Easting->X, Height->Y, -Northing->Z.
func UTMToGlobal(u UTMPos) mgl64.Vec3 {
	return mgl64.Vec3{u.Easting, u.Height, -u.Northing}
}

// GlobalToUTM is the inverse of UTMToGlobal for the given zone and hemisphere
func GlobalToUTM(v mgl64.Vec3, zone int, north bool) UTMPos {
	return UTMPos{
		Zone:     zone,
		North:    north,
		Easting:  v[0],
		Height:   v[1],
		Northing: -v[2],
	}
}

// InHemisphere re-expresses the position relative to the false origin of the
// given hemisphere so points across the equator stay continuous in one map.
func (u UTMPos) InHemisphere(north bool) UTMPos {
	switch {
	case u.North == north:
	case north:
		u.Northing -= utmFalseNorthing
	default:
		u.Northing += utmFalseNorthing
	}
	u.North = north
	return u
}

// FlatOrientation is the fixed East-North-Up basis of projected (Y-up) maps.
// Columns: East = +X, North = -Z, Up = +Y.
func FlatOrientation() mgl32.Mat3 {
	return mgl32.Mat3FromCols(
		mgl32.Vec3{1, 0, 0},
		mgl32.Vec3{0, 0, -1},
		mgl32.Vec3{0, 1, 0},
	)
}

// Vec3To32 narrows a double precision vector to single precision
func Vec3To32(v mgl64.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// Vec3To64 widens a single precision vector to double precision
func Vec3To64(v mgl32.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}

// ValidateLatPos validates a geodetic position
func ValidateLatPos(pos LatPos) error {
	if math.IsNaN(pos.Lat) || math.IsInf(pos.Lat, 0) || pos.Lat < -90 || pos.Lat > 90 {
		return fmt.Errorf("invalid latitude: %f", pos.Lat)
	}
	if math.IsNaN(pos.Lon) || math.IsInf(pos.Lon, 0) || pos.Lon < -180 || pos.Lon > 180 {
		return fmt.Errorf("invalid longitude: %f", pos.Lon)
	}
	if math.IsNaN(pos.Alt) || math.IsInf(pos.Alt, 0) {
		return fmt.Errorf("invalid altitude: %f", pos.Alt)
	}
	return nil
}

// ValidateCartPos validates a Cartesian position
func ValidateCartPos(pos CartPos) error {
	if math.IsNaN(pos.X) || math.IsInf(pos.X, 0) {
		return fmt.Errorf("invalid X: %f", pos.X)
	}
	if math.IsNaN(pos.Y) || math.IsInf(pos.Y, 0) {
		return fmt.Errorf("invalid Y: %f", pos.Y)
	}
	if math.IsNaN(pos.Z) || math.IsInf(pos.Z, 0) {
		return fmt.Errorf("invalid Z: %f", pos.Z)
	}
	return nil
}

// ValidateUTMPos validates a UTM position
func ValidateUTMPos(pos UTMPos) error {
	if pos.Zone < 1 || pos.Zone > 60 {
		return fmt.Errorf("invalid UTM zone: %d (must be 1-60)", pos.Zone)
	}
	if math.IsNaN(pos.Easting) || math.IsInf(pos.Easting, 0) {
		return fmt.Errorf("invalid easting: %f", pos.Easting)
	}
	if math.IsNaN(pos.Northing) || math.IsInf(pos.Northing, 0) {
		return fmt.Errorf("invalid northing: %f", pos.Northing)
	}
	if math.IsNaN(pos.Height) || math.IsInf(pos.Height, 0) {
		return fmt.Errorf("invalid height: %f", pos.Height)
	}
	return nil
}
